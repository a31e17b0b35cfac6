package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type addCartItemRequest struct {
	ProductID string       `json:"productId" validate:"required,max=128"`
	Quantity  *int         `json:"quantity" validate:"omitempty,min=0,max=999"`
	Variant   cart.Variant `json:"variant"`
}

type updateCartItemRequest struct {
	Quantity int          `json:"quantity" validate:"min=0,max=999"`
	Variant  cart.Variant `json:"variant"`
}

type removeCartItemRequest struct {
	Variant *cart.Variant `json:"variant"`
}

type cartMutationResponse struct {
	Result cart.Result `json:"result"`
	Cart   cart.View   `json:"cart"`
}

type cartRefreshResponse struct {
	Warnings []cart.Warning `json:"warnings"`
	Cart     cart.View      `json:"cart"`
}

// GetCart returns the lines, vendor groups and total of the session cart.
func GetCart(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess.Cart.View())
	}
}

// AddCartItem adds a product, merging with an existing line for the same variant.
func AddCartItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body addCartItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity := 1
		if body.Quantity != nil {
			quantity = *body.Quantity
		}
		if quantity == 0 {
			responses.WriteSuccess(w, cartMutationResponse{Result: cart.Result{}, Cart: sess.Cart.View()})
			return
		}

		res, err := sess.Cart.Add(r.Context(), cart.AddInput{
			ProductID: body.ProductID,
			Quantity:  quantity,
			Variant:   body.Variant,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, cartMutationResponse{Result: res, Cart: sess.Cart.View()})
	}
}

// UpdateCartItem sets an absolute quantity. Zero removes the line.
func UpdateCartItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateCartItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := sess.Cart.UpdateQuantity(r.Context(), productID, body.Quantity, body.Variant)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartMutationResponse{Result: res, Cart: sess.Cart.View()})
	}
}

// RemoveCartItem drops one line. The variant comes from the body when
// present, otherwise from the query string.
func RemoveCartItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body removeCartItemRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variant := variantFromQuery(r)
		if body.Variant != nil {
			variant = *body.Variant
		}

		res, err := sess.Cart.Remove(r.Context(), productID, variant)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartMutationResponse{Result: res, Cart: sess.Cart.View()})
	}
}

// ClearCart empties the cart.
func ClearCart(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := sess.Cart.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess.Cart.View())
	}
}

// RefreshCart re-reads stock and price for every line and reports clamps.
func RefreshCart(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		warnings, err := sess.Cart.Refresh(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if warnings == nil {
			warnings = []cart.Warning{}
		}
		responses.WriteSuccess(w, cartRefreshResponse{Warnings: warnings, Cart: sess.Cart.View()})
	}
}

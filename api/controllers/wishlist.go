package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/wishlist"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type addWishlistItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
}

type moveToCartRequest struct {
	Variant cart.Variant `json:"variant"`
}

type wishlistResponse struct {
	Items []wishlist.Item `json:"items"`
	Count int             `json:"count"`
}

type wishlistMutationResponse struct {
	Changed  bool             `json:"changed"`
	Wishlist wishlistResponse `json:"wishlist"`
}

type moveToCartResponse struct {
	Result   cart.Result      `json:"result"`
	Cart     cart.View        `json:"cart"`
	Wishlist wishlistResponse `json:"wishlist"`
}

func wishlistView(svc wishlist.Service) wishlistResponse {
	items := svc.List()
	if items == nil {
		items = []wishlist.Item{}
	}
	return wishlistResponse{Items: items, Count: len(items)}
}

func GetWishlist(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wishlistView(sess.Wishlist))
	}
}

func AddWishlistItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body addWishlistItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		changed, err := sess.Wishlist.Add(r.Context(), body.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if changed {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, wishlistMutationResponse{Changed: changed, Wishlist: wishlistView(sess.Wishlist)})
	}
}

func RemoveWishlistItem(logg *logger.Logger) http.HandlerFunc {
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
		changed, err := sess.Wishlist.Remove(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wishlistMutationResponse{Changed: changed, Wishlist: wishlistView(sess.Wishlist)})
	}
}

// MoveWishlistItemToCart adds the product to the cart and drops it from the
// wishlist once the cart accepted it.
func MoveWishlistItemToCart(logg *logger.Logger) http.HandlerFunc {
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
		var body moveToCartRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := sess.Wishlist.MoveToCart(r.Context(), productID, variantAdder{target: sess.Cart, variant: body.Variant})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, moveToCartResponse{
			Result:   res,
			Cart:     sess.Cart.View(),
			Wishlist: wishlistView(sess.Wishlist),
		})
	}
}

// variantAdder applies the requested selection to the wishlist's add.
type variantAdder struct {
	target  wishlist.CartAdder
	variant cart.Variant
}

func (a variantAdder) Add(ctx context.Context, input cart.AddInput) (cart.Result, error) {
	if input.Variant.Signature() == "" {
		input.Variant = a.variant
	}
	return a.target.Add(ctx, input)
}

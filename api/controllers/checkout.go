package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/address"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/shipping"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

type savedAddressReader interface {
	Get(ctx context.Context, ownerID string, id uuid.UUID) (address.Address, error)
}

type proceedRequest struct {
	AddressID *string                `json:"addressId"`
	Details   *types.ShippingAddress `json:"details"`
}

type paymentRequest struct {
	PaymentMethod  *string `json:"paymentMethod"`
	ShippingOption *string `json:"shippingOption"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type checkoutResponse struct {
	State    checkout.State  `json:"state"`
	Totals   checkout.Totals `json:"totals"`
	Shipping shipping.Quote  `json:"shipping"`
}

func writeCheckout(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, o *checkout.Orchestrator, status int) {
	totals, quote, err := o.Quote(ctx)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, status, checkoutResponse{State: o.State(), Totals: totals, Shipping: quote})
}

// GetCheckout returns the step, details, coupon, estimate and priced totals.
func GetCheckout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCheckout(r.Context(), w, logg, sess.Checkout, http.StatusOK)
	}
}

// UpdateShippingDraft stores the partially filled shipping form.
func UpdateShippingDraft(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var draft types.ShippingAddress
		if err := validators.DecodeJSONBody(r, &draft); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := sess.Checkout.UpdateShippingDraft(r.Context(), draft)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// ProceedToPayment validates the shipping details, or loads a saved address
// when addressId is given, and moves to the payment step.
func ProceedToPayment(addresses savedAddressReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body proceedRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var state checkout.State
		switch {
		case body.AddressID != nil:
			if addresses == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
				return
			}
			id, parseErr := uuid.Parse(strings.TrimSpace(*body.AddressID))
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid address id"))
				return
			}
			saved, getErr := addresses.Get(r.Context(), sess.Identity.OwnerID(), id)
			if getErr != nil {
				responses.WriteError(r.Context(), logg, w, getErr)
				return
			}
			state, err = sess.Checkout.UseSavedAddress(r.Context(), saved.Shipping())
		case body.Details != nil:
			state, err = sess.Checkout.ProceedToPayment(r.Context(), *body.Details)
		default:
			err = pkgerrors.FieldErrors("shipping details required", map[string]string{"details": "is required"})
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

func BackToShipping(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := sess.Checkout.BackToShipping(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// UpdatePayment sets the payment method and/or the shipping option.
func UpdatePayment(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body paymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.PaymentMethod == nil && body.ShippingOption == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.FieldErrors("nothing to update", map[string]string{
				"paymentMethod":  "paymentMethod or shippingOption is required",
				"shippingOption": "paymentMethod or shippingOption is required",
			}))
			return
		}

		if body.ShippingOption != nil {
			tier := enums.ShippingTier(strings.ToLower(strings.TrimSpace(*body.ShippingOption)))
			if _, err := sess.Checkout.SetShippingTier(r.Context(), tier); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if body.PaymentMethod != nil {
			method := enums.PaymentMethod(strings.ToLower(strings.TrimSpace(*body.PaymentMethod)))
			if _, err := sess.Checkout.SetPaymentMethod(r.Context(), method); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		writeCheckout(r.Context(), w, logg, sess.Checkout, http.StatusOK)
	}
}

// ApplyCoupon validates a code against the cart total. A request arriving
// while another validation runs is reported as ignored.
func ApplyCoupon(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body couponRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := sess.Checkout.ApplyCoupon(r.Context(), validators.Clean(body.Code, 64))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func RemoveCoupon(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := sess.Checkout.RemoveCoupon(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// SubmitCheckout places the order. A duplicate submit while one is running
// returns 200 with ignored set and places nothing.
func SubmitCheckout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := sess.Checkout.Submit(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if res.Ignored {
			responses.WriteSuccess(w, res)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, res)
	}
}

// ResetCheckout starts a fresh checkout after a submitted order.
func ResetCheckout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := shopperFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := sess.Checkout.Reset(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

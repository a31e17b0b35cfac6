package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/address"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type resolveAddressPayload struct {
	PlaceID string `json:"placeId" validate:"required"`
}

// addressCall is one address-book operation for an already resolved owner.
// A nil result with a nil error means 204.
type addressCall func(r *http.Request, owner string) (any, error)

// addressBook resolves the shopper and the service before running call.
// Owner-less operations such as suggestions pass anonymous.
func addressBook(svc address.Service, logg *logger.Logger, status int, anonymous bool, call addressCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
			return
		}
		var owner string
		if !anonymous {
			sess, err := shopperFrom(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			owner = sess.Identity.OwnerID()
		}

		out, err := call(r, owner)
		switch {
		case err != nil:
			responses.WriteError(ctx, logg, w, err)
		case out == nil:
			responses.WriteNoContent(w)
		default:
			responses.WriteSuccessStatus(w, status, out)
		}
	}
}

func addressID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "addressId")))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address id")
	}
	return id, nil
}

// ListAddresses returns the caller's address book, default first.
func ListAddresses(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return addressBook(svc, logg, http.StatusOK, false, func(r *http.Request, owner string) (any, error) {
		list, err := svc.List(r.Context(), owner)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []address.Address{}
		}
		return map[string]any{"addresses": list}, nil
	})
}

func GetAddress(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return addressBook(svc, logg, http.StatusOK, false, func(r *http.Request, owner string) (any, error) {
		id, err := addressID(r)
		if err != nil {
			return nil, err
		}
		return svc.Get(r.Context(), owner, id)
	})
}

// CreateAddress saves a new address. The first address becomes the default.
func CreateAddress(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return addressBook(svc, logg, http.StatusCreated, false, func(r *http.Request, owner string) (any, error) {
		var in address.Input
		if err := validators.DecodeJSONBody(r, &in); err != nil {
			return nil, err
		}
		return svc.Create(r.Context(), owner, in)
	})
}

func UpdateAddress(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return addressBook(svc, logg, http.StatusOK, false, func(r *http.Request, owner string) (any, error) {
		id, err := addressID(r)
		if err != nil {
			return nil, err
		}
		var in address.Input
		if err := validators.DecodeJSONBody(r, &in); err != nil {
			return nil, err
		}
		return svc.Update(r.Context(), owner, id, in)
	})
}

func SetDefaultAddress(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return addressBook(svc, logg, http.StatusOK, false, func(r *http.Request, owner string) (any, error) {
		id, err := addressID(r)
		if err != nil {
			return nil, err
		}
		return svc.SetDefault(r.Context(), owner, id)
	})
}

// DeleteAddress removes an address, promoting the newest remaining one when
// the default was deleted.
func DeleteAddress(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return addressBook(svc, logg, http.StatusNoContent, false, func(r *http.Request, owner string) (any, error) {
		id, err := addressID(r)
		if err != nil {
			return nil, err
		}
		return nil, svc.Delete(r.Context(), owner, id)
	})
}

// SuggestAddresses returns autocomplete suggestions for the address form.
func SuggestAddresses(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return addressBook(svc, logg, http.StatusOK, true, func(r *http.Request, _ string) (any, error) {
		query := validators.Clean(r.URL.Query().Get("query"), 256)
		country := validators.Clean(r.URL.Query().Get("country"), 8)
		suggestions, err := svc.Suggest(r.Context(), query, country)
		if err != nil {
			return nil, err
		}
		if suggestions == nil {
			suggestions = []address.Suggestion{}
		}
		return map[string]any{"suggestions": suggestions}, nil
	})
}

// ResolveAddress turns a suggestion into a shipping address block.
func ResolveAddress(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return addressBook(svc, logg, http.StatusOK, true, func(r *http.Request, _ string) (any, error) {
		var payload resolveAddressPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Resolve(r.Context(), payload.PlaceID)
	})
}

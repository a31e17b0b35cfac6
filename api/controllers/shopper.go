package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

func shopperFrom(r *http.Request) (*session.Session, error) {
	sess := middleware.ShopperFromContext(r.Context())
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
	}
	return sess, nil
}

func productIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "productId"))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return id, nil
}

// variantFromQuery reads size, color and attr.<name> query parameters.
func variantFromQuery(r *http.Request) cart.Variant {
	q := r.URL.Query()
	v := cart.Variant{
		Size:  strings.TrimSpace(q.Get("size")),
		Color: strings.TrimSpace(q.Get("color")),
	}
	for key, values := range q {
		name, ok := strings.CutPrefix(key, "attr.")
		if !ok || name == "" || len(values) == 0 {
			continue
		}
		if v.Custom == nil {
			v.Custom = map[string]string{}
		}
		v.Custom[name] = values[0]
	}
	return v
}

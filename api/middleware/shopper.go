package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type sessionResolver interface {
	Get(ctx context.Context, id string, identity session.Identity) (*session.Session, error)
}

// Shopper resolves the live session for the authenticated caller, creating
// and hydrating it on the first request.
func Shopper(resolver sessionResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if resolver == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session manager unavailable"))
				return
			}

			identity := session.Identity{
				SessionID: claims.SessionID(),
				Guest:     claims.Guest,
				Scopes:    claims.Scopes,
			}
			if !claims.Guest && claims.UserID != uuid.Nil {
				identity.UserID = claims.UserID.String()
			}

			sess, err := resolver.Get(r.Context(), identity.SessionID, identity)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithShopper(r.Context(), sess)))
		})
	}
}

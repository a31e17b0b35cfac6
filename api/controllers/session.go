package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/api/responses"
	pkgAuth "github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type sessionRegistrar interface {
	Register(ctx context.Context, rec session.Record) (session.Record, error)
}

type sessionRevoker interface {
	Revoke(ctx context.Context, sessionID string) error
}

type liveSessionCloser interface {
	Close(ctx context.Context, id string) error
}

type guestSessionResponse struct {
	AccessToken string    `json:"accessToken"`
	SessionID   string    `json:"sessionId"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Guest       bool      `json:"guest"`
}

type sessionResponse struct {
	SessionID string                    `json:"sessionId"`
	UserID    string                    `json:"userId,omitempty"`
	Guest     bool                      `json:"guest"`
	Scopes    []enums.NotificationScope `json:"scopes"`
}

type currentSessionResponse struct {
	sessionResponse
	CartCount     int                             `json:"cartCount"`
	WishlistCount int                             `json:"wishlistCount"`
	CheckoutStep  enums.CheckoutStep              `json:"checkoutStep"`
	Unread        map[enums.NotificationScope]int `json:"unread"`
}

func describe(claims *pkgAuth.AccessTokenClaims) sessionResponse {
	resp := sessionResponse{
		SessionID: claims.SessionID(),
		Guest:     claims.Guest,
		Scopes:    claims.Scopes,
	}
	if !claims.Guest && claims.UserID != uuid.Nil {
		resp.UserID = claims.UserID.String()
	}
	if resp.Scopes == nil {
		resp.Scopes = []enums.NotificationScope{}
	}
	return resp
}

// CreateGuestSession registers an anonymous session and mints its token.
func CreateGuestSession(registry sessionRegistrar, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if registry == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session registry unavailable"))
			return
		}

		now := time.Now().UTC()
		rec, err := registry.Register(ctx, session.Record{
			SessionID: session.NewSessionID(),
			Guest:     true,
			CreatedAt: now,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register session"))
			return
		}

		token, err := pkgAuth.MintAccessToken(cfg, now, pkgAuth.AccessTokenPayload{SessionID: rec.SessionID, Guest: true})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token"))
			return
		}

		if logg != nil {
			logg.Info(logg.WithSessionID(ctx, rec.SessionID), "session.guest.created")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, guestSessionResponse{
			AccessToken: token,
			SessionID:   rec.SessionID,
			ExpiresAt:   now.Add(cfg.AccessTTL()),
			Guest:       true,
		})
	}
}

// StartSession registers the session of a shopper token issued by the
// identity provider. It runs behind token verification without the registry
// check, since the session is not registered yet.
func StartSession(registry sessionRegistrar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if registry == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session registry unavailable"))
			return
		}
		claims := middleware.ClaimsFromContext(ctx)
		if claims == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		desc := describe(claims)
		if _, err := registry.Register(ctx, session.Record{
			SessionID: desc.SessionID,
			UserID:    desc.UserID,
			Guest:     desc.Guest,
		}); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register session"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, desc)
	}
}

// CurrentSession summarizes the caller's live session.
func CurrentSession(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		claims := middleware.ClaimsFromContext(ctx)
		sess, err := shopperFrom(r)
		if err == nil && claims == nil {
			err = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		unread := map[enums.NotificationScope]int{}
		for _, scope := range claims.Scopes {
			if box, err := sess.Mailboxes.For(scope); err == nil {
				unread[scope] = box.Snapshot().UnreadCount
			}
		}
		responses.WriteSuccess(w, currentSessionResponse{
			sessionResponse: describe(claims),
			CartCount:       sess.Cart.View().Count,
			WishlistCount:   len(sess.Wishlist.List()),
			CheckoutStep:    sess.Checkout.State().Step,
			Unread:          unread,
		})
	}
}

// EndSession revokes the token's session and tears down its live state.
func EndSession(registry sessionRevoker, live liveSessionCloser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if registry == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session registry unavailable"))
			return
		}
		sessionID := middleware.SessionIDFromContext(ctx)
		if sessionID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
			return
		}
		if err := registry.Revoke(ctx, sessionID); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session"))
			return
		}
		if live != nil {
			if err := live.Close(ctx, sessionID); err != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "session.close.failed")
			}
		}
		responses.WriteNoContent(w)
	}
}

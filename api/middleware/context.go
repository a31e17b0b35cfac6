package middleware

import (
	"context"

	"github.com/angelmondragon/storefront/internal/session"
	pkgAuth "github.com/angelmondragon/storefront/pkg/auth"
)

type contextKey string

const (
	ctxClaims  contextKey = "access_claims"
	ctxShopper contextKey = "shopper_session"
)

// ClaimsFromContext returns the verified access token claims, or nil.
func ClaimsFromContext(ctx context.Context) *pkgAuth.AccessTokenClaims {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxClaims).(*pkgAuth.AccessTokenClaims); ok {
		return v
	}
	return nil
}

// SessionIDFromContext returns the session bound to the access token.
func SessionIDFromContext(ctx context.Context) string {
	return ClaimsFromContext(ctx).SessionID()
}

// UserIDFromContext returns the shopper id, empty for guests.
func UserIDFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil || claims.Guest {
		return ""
	}
	return claims.UserID.String()
}

// WithClaims injects verified claims into the context.
func WithClaims(ctx context.Context, claims *pkgAuth.AccessTokenClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClaims, claims)
}

// ShopperFromContext returns the live session resolved for the request.
func ShopperFromContext(ctx context.Context) *session.Session {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxShopper).(*session.Session); ok {
		return v
	}
	return nil
}

// WithShopper injects the live session for downstream handlers.
func WithShopper(ctx context.Context, sess *session.Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxShopper, sess)
}

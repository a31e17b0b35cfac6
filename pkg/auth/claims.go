package auth

import (
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID    uuid.UUID
	SessionID string
	Scopes    []enums.NotificationScope
	Guest     bool
}

// AccessTokenClaims represents the typed JWT presented by storefront clients.
// The registered jti doubles as the shopper session identifier.
type AccessTokenClaims struct {
	UserID uuid.UUID                 `json:"user_id"`
	Scopes []enums.NotificationScope `json:"scopes"`
	Guest  bool                      `json:"guest,omitempty"`
	jwt.RegisteredClaims
}

// SessionID returns the session bound to the token.
func (c *AccessTokenClaims) SessionID() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// HasScope reports whether the token may read the given mailbox.
func (c *AccessTokenClaims) HasScope(scope enums.NotificationScope) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
)

// clockSkew is tolerated on exp, nbf and iat.
const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

var (
	ErrSecretMissing  = errors.New("auth: jwt secret is required")
	ErrIssuerMissing  = errors.New("auth: jwt issuer is required")
	ErrTTLInvalid     = errors.New("auth: jwt expiration must be positive")
	ErrUserRequired   = errors.New("auth: user id is required for non-guest tokens")
	ErrSessionMissing = errors.New("auth: token carries no session id")
)

// MintAccessToken signs an HS256 access token valid for cfg.AccessTTL from
// now. A blank session id gets a fresh uuid. Registered users default to
// the user mailbox scope; guests never carry scopes.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrSecretMissing
	case cfg.Issuer == "":
		return "", ErrIssuerMissing
	case cfg.AccessTTL() <= 0:
		return "", ErrTTLInvalid
	case !payload.Guest && payload.UserID == uuid.Nil:
		return "", ErrUserRequired
	}

	scopes, err := tokenScopes(payload)
	if err != nil {
		return "", err
	}
	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Scopes: scopes,
		Guest:  payload.Guest,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessTTL())),
		},
	}
	if payload.UserID != uuid.Nil {
		claims.Subject = payload.UserID.String()
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func tokenScopes(payload AccessTokenPayload) ([]enums.NotificationScope, error) {
	if payload.Guest {
		return nil, nil
	}
	if len(payload.Scopes) == 0 {
		return []enums.NotificationScope{enums.NotificationScopeUser}, nil
	}
	out := make([]enums.NotificationScope, 0, len(payload.Scopes))
	for _, scope := range payload.Scopes {
		if !scope.IsValid() {
			return nil, fmt.Errorf("auth: invalid scope %q", scope)
		}
		if !slices.Contains(out, scope) {
			out = append(out, scope)
		}
	}
	return out, nil
}

// ParseAccessToken verifies signature, issuer and expiry and returns the
// claims. Expired tokens yield an error matching jwt.ErrTokenExpired.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretMissing
	}
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.ID) == "" {
		return nil, ErrSessionMissing
	}
	return claims, nil
}

package redis

import "strings"

const namespace = "sf"

type keyKind string

const (
	kindIdempotency keyKind = "idempotency"
	kindRateLimit   keyKind = "rate_limit"
	kindSession     keyKind = "session"
	kindCart        keyKind = "cart"
	kindWishlist    keyKind = "wishlist"
)

// key joins namespace, kind and the non-blank parts with ':'.
func key(kind keyKind, parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(string(kind))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string { return key(kindIdempotency, scope, id) }

// RateLimitKey names a fixed-window counter, e.g. ("ip", "coupon", addr).
func (c *Client) RateLimitKey(parts ...string) string { return key(kindRateLimit, parts...) }

func (c *Client) SessionKey(sessionID string) string { return key(kindSession, sessionID) }

func (c *Client) CartKey(sessionID string) string { return key(kindCart, sessionID) }

func (c *Client) WishlistKey(sessionID string) string { return key(kindWishlist, sessionID) }

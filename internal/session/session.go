package session

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/coupons"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/shipping"
	"github.com/angelmondragon/storefront/internal/wishlist"
	"github.com/angelmondragon/storefront/pkg/enums"
)

// Identity is the caller behind a session, taken from the access token.
type Identity struct {
	SessionID string
	UserID    string
	Guest     bool
	Scopes    []enums.NotificationScope
}

// OwnerID keys per-shopper records such as the address book. Guests own
// records through their session.
func (i Identity) OwnerID() string {
	if i.UserID != "" && !i.Guest {
		return i.UserID
	}
	return "guest:" + i.SessionID
}

// Session is one shopper's live state. Its context is canceled on close,
// which stops pending shipping estimates and mailbox syncs.
type Session struct {
	ID       string
	Identity Identity

	Cart      cart.Service
	Wishlist  wishlist.Service
	Coupons   *coupons.Evaluator
	Shipping  *shipping.Estimator
	Debouncer *shipping.Debouncer
	Checkout  *checkout.Orchestrator
	Mailboxes *notifications.Set

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
}

// Context is canceled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen reports the last time the session was fetched from the manager.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(s.LastSeen())
}

// close stops background work and returns mailbox sync failures that were
// still unreported.
func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Debouncer.Stop()
	s.Shipping.Cancel()
	s.cancel()
	return s.Mailboxes.Wait()
}

// wire subscribes the coupon evaluator and checkout to cart total changes.
func (s *Session) wire() {
	s.Cart.OnTotalChange(s.Coupons.OnTotalChange)
	s.Cart.OnTotalChange(func(_, _ decimal.Decimal) {
		s.Checkout.CartChanged()
	})
}

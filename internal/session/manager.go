package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/coupons"
	"github.com/angelmondragon/storefront/internal/cron"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/shipping"
	"github.com/angelmondragon/storefront/internal/wishlist"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const (
	defaultIdleTTL       = 2 * time.Hour
	defaultSweepInterval = time.Minute
	sweepJobName         = "session-sweep"
)

// Settings are the per-session tunables.
type Settings struct {
	TaxRate        decimal.Decimal
	Rates          shipping.Rates
	Debounce       time.Duration
	RemoteTimeout  time.Duration
	MaxCartLines   int
	MailboxPage    int
	MailboxTimeout time.Duration
	IdleTTL        time.Duration
	SweepInterval  time.Duration
}

// ManagerParams are the collaborators shared by every session.
type ManagerParams struct {
	Catalog       catalog.Loader
	CartStore     cart.Store
	WishlistStore wishlist.Store
	Coupons       coupons.Validator
	Quoter        shipping.Quoter
	Placer        checkout.OrderPlacer
	Notifications notifications.Remote
	Metrics       *metrics.Set
	Logger        *logger.Logger
	Settings      Settings
	Now           func() time.Time
	NewOrderKey   func() string
}

// Manager owns the live sessions of this process.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	creating singleflight.Group

	params   ManagerParams
	settings Settings
	metrics  *metrics.Set
	logg     *logger.Logger
	now      func() time.Time
}

func NewManager(params ManagerParams) (*Manager, error) {
	switch {
	case params.Catalog == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog loader required")
	case params.CartStore == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart store required")
	case params.WishlistStore == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wishlist store required")
	case params.Coupons == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon validator required")
	case params.Quoter == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipping quoter required")
	case params.Placer == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order placer required")
	case params.Notifications == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications remote required")
	}
	settings := params.Settings
	if settings.IdleTTL <= 0 {
		settings.IdleTTL = defaultIdleTTL
	}
	if settings.SweepInterval <= 0 {
		settings.SweepInterval = defaultSweepInterval
	}
	if settings.Debounce <= 0 {
		settings.Debounce = shipping.DefaultDebounce
	}
	set := params.Metrics
	if set == nil {
		set = metrics.NewSet(nil)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sessions: map[string]*Session{},
		params:   params,
		settings: settings,
		metrics:  set,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Get returns the live session for id, creating and hydrating it on first
// use. Concurrent first requests share one hydration.
func (m *Manager) Get(ctx context.Context, id string, identity Identity) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session id required")
	}
	identity.SessionID = id

	if sess, ok := m.lookup(id); ok {
		if err := sameOwner(sess.Identity, identity); err != nil {
			return nil, err
		}
		sess.touch(m.now())
		return sess, nil
	}

	v, err, _ := m.creating.Do(id, func() (any, error) {
		if sess, ok := m.lookup(id); ok {
			return sess, nil
		}
		sess, err := m.build(ctx, identity)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.sessions[id] = sess
		m.mu.Unlock()
		m.logg.Info(m.logg.WithSessionID(ctx, id), "session.created")
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	sess := v.(*Session)
	if err := sameOwner(sess.Identity, identity); err != nil {
		return nil, err
	}
	sess.touch(m.now())
	return sess, nil
}

// Peek returns a live session without creating one.
func (m *Manager) Peek(id string) (*Session, bool) {
	return m.lookup(id)
}

// Close tears down one session. Closing an unknown id is a no-op.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	err := sess.close()
	if err != nil {
		m.logg.Warn(m.logg.WithSessionID(ctx, id), "session.close.unsynced_mailbox")
	}
	return err
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were evicted.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	var stale []*Session
	for id, sess := range m.sessions {
		if sess.idleSince(now) > m.settings.IdleTTL {
			stale = append(stale, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	var errs error
	for _, sess := range stale {
		errs = multierr.Append(errs, sess.close())
	}
	if len(stale) > 0 {
		m.metrics.Jobs.AddEvicted(len(stale))
		m.logg.Info(m.logg.WithField(ctx, "evicted", len(stale)), "session.sweep.evicted")
	}
	return len(stale), errs
}

// Run sweeps idle sessions every SweepInterval until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	svc, err := cron.NewService(cron.ServiceParams{
		Logger:   m.logg,
		Registry: cron.NewRegistry(m.SweepJob()),
		Metrics:  m.metrics.Jobs,
		Interval: m.settings.SweepInterval,
	})
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

// SweepJob exposes the idle sweep as a scheduled job.
func (m *Manager) SweepJob() cron.Job {
	return cron.JobFunc(sweepJobName, func(ctx context.Context) error {
		_, err := m.Sweep(ctx, m.now())
		return err
	})
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// IDs lists live session ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CloseAll tears down every session, used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs error
	for _, id := range m.IDs() {
		errs = multierr.Append(errs, m.Close(ctx, id))
	}
	return errs
}

func (m *Manager) lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *Manager) build(ctx context.Context, identity Identity) (*Session, error) {
	id := identity.SessionID
	base, cancel := context.WithCancel(context.WithoutCancel(m.logg.WithSessionID(ctx, id)))

	sess, err := m.assemble(base, identity)
	if err != nil {
		cancel()
		return nil, err
	}
	sess.ctx, sess.cancel = base, cancel

	if err := multierr.Combine(sess.Cart.Hydrate(ctx), sess.Wishlist.Hydrate(ctx)); err != nil {
		_ = sess.close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hydrate session")
	}
	sess.wire()
	sess.lastSeen = m.now()
	return sess, nil
}

func (m *Manager) assemble(base context.Context, identity Identity) (*Session, error) {
	p := m.params
	s := m.settings
	id := identity.SessionID

	cartSvc, err := cart.NewService(cart.ServiceParams{
		SessionID: id,
		Loader:    p.Catalog,
		Store:     p.CartStore,
		MaxLines:  s.MaxCartLines,
		Logger:    m.logg,
	})
	if err != nil {
		return nil, err
	}
	wish, err := wishlist.NewService(wishlist.ServiceParams{
		SessionID: id,
		Loader:    p.Catalog,
		Store:     p.WishlistStore,
		Logger:    m.logg,
		Now:       m.now,
	})
	if err != nil {
		return nil, err
	}
	evaluator, err := coupons.NewEvaluator(coupons.EvaluatorParams{
		Validator: p.Coupons,
		Metrics:   m.metrics.Coupons,
		Logger:    m.logg,
		Now:       m.now,
	})
	if err != nil {
		return nil, err
	}
	estimator, err := shipping.NewEstimator(shipping.EstimatorParams{
		Quoter:        p.Quoter,
		Rates:         s.Rates,
		RemoteTimeout: s.RemoteTimeout,
		Metrics:       m.metrics.Shipping,
		Logger:        m.logg,
		Now:           m.now,
	})
	if err != nil {
		return nil, err
	}
	debouncer := shipping.NewDebouncer(base, estimator, s.Debounce, nil, m.logg)
	orchestrator, err := checkout.NewOrchestrator(checkout.Params{
		Cart:      cartSvc,
		Coupons:   evaluator,
		Shipping:  estimator,
		Scheduler: debouncer,
		Placer:    p.Placer,
		TaxRate:   s.TaxRate,
		Metrics:   m.metrics.Checkout,
		Logger:    m.logg,
		Now:       m.now,
		NewKey:    p.NewOrderKey,
	})
	if err != nil {
		debouncer.Stop()
		return nil, err
	}
	mailboxes, err := notifications.NewSet(notifications.SetParams{
		Remote:      p.Notifications,
		Base:        base,
		PageSize:    s.MailboxPage,
		SyncTimeout: s.MailboxTimeout,
		Metrics:     m.metrics.Mailbox,
		Logger:      m.logg,
	})
	if err != nil {
		debouncer.Stop()
		return nil, err
	}

	return &Session{
		ID:        id,
		Identity:  identity,
		Cart:      cartSvc,
		Wishlist:  wish,
		Coupons:   evaluator,
		Shipping:  estimator,
		Debouncer: debouncer,
		Checkout:  orchestrator,
		Mailboxes: mailboxes,
	}, nil
}

func sameOwner(have, want Identity) error {
	if have.UserID != want.UserID || have.Guest != want.Guest {
		return pkgerrors.New(pkgerrors.CodeForbidden, "session belongs to another identity")
	}
	return nil
}

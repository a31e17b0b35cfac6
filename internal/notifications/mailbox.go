package notifications

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

const (
	DefaultPageSize    = 20
	DefaultSyncTimeout = 10 * time.Second

	opFetch       = "fetch"
	opMarkRead    = "mark_read"
	opMarkAllRead = "mark_all_read"
	opRemove      = "remove"
)

type mailboxMetrics interface {
	IncSync(scope, op, outcome string)
}

// Params configures a single-scope mailbox. Base bounds the lifetime of
// background syncs and is normally the owning session's context.
type Params struct {
	Scope       enums.NotificationScope
	Remote      Remote
	Base        context.Context
	PageSize    int
	SyncTimeout time.Duration
	Metrics     mailboxMetrics
	Logger      *logger.Logger
}

// Item is a notification as shown to the caller. Pending is set while a
// local change to it has not been confirmed by the server.
type Item struct {
	Notification
	Pending bool `json:"pending"`
}

// View is a point-in-time copy of a mailbox.
type View struct {
	Scope       enums.NotificationScope `json:"scope"`
	Items       []Item                  `json:"items"`
	UnreadCount int                     `json:"unreadCount"`
	Page        int                     `json:"page"`
	HasMore     bool                    `json:"hasMore"`
	IsLoading   bool                    `json:"isLoading"`
	HasFetched  bool                    `json:"hasFetched"`
}

type entry struct {
	n       Notification
	version uint64
}

// pendingOp is an optimistic mutation awaiting the server. ids maps each
// item the op touched to the version it wrote; a rollback only restores
// items still at that version. hidden counts unread items a mark-all
// covered that were not loaded yet.
type pendingOp struct {
	kind    string
	ids     map[string]uint64
	removed *entry
	hidden  int
}

// Mailbox holds one scope's notifications and applies read and remove
// operations optimistically, rolling them back when the server rejects them.
type Mailbox struct {
	mu       sync.Mutex
	items    []entry
	unread   int
	page     int
	hasMore  bool
	loading  bool
	fetched  bool
	clock    uint64
	fetchSeq uint64
	opSeq    uint64
	pending  map[uint64]*pendingOp
	gone     map[string]bool
	errs     error

	wg      sync.WaitGroup
	hydrate singleflight.Group

	scope   enums.NotificationScope
	remote  Remote
	base    context.Context
	limit   int
	timeout time.Duration
	metrics mailboxMetrics
	logg    *logger.Logger
}

func NewMailbox(params Params) (*Mailbox, error) {
	if !params.Scope.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notification scope required")
	}
	if params.Remote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notification remote required")
	}
	base := params.Base
	if base == nil {
		base = context.Background()
	}
	limit := params.PageSize
	if limit <= 0 {
		limit = DefaultPageSize
	}
	timeout := params.SyncTimeout
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	m := params.Metrics
	if m == nil {
		m = (*metrics.MailboxMetrics)(nil)
	}
	return &Mailbox{
		pending: map[uint64]*pendingOp{},
		gone:    map[string]bool{},
		scope:   params.Scope,
		remote:  params.Remote,
		base:    base,
		limit:   pagination.NormalizeLimit(limit),
		timeout: timeout,
		metrics: m,
		logg:    params.Logger,
	}, nil
}

func (m *Mailbox) Scope() enums.NotificationScope { return m.scope }

// Fetch loads page from the server. Page 1 replaces the list, later pages
// append entries not already present. Only the most recent fetch applies.
func (m *Mailbox) Fetch(ctx context.Context, page int) error {
	page = pagination.NormalizePage(page)

	m.mu.Lock()
	m.fetchSeq++
	seq := m.fetchSeq
	m.loading = true
	m.mu.Unlock()

	res, err := m.remote.List(ctx, m.scope, page, m.limit)

	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.fetchSeq {
		return nil
	}
	m.loading = false
	if err != nil {
		m.metrics.IncSync(string(m.scope), opFetch, metrics.OutcomeFailure)
		return err
	}
	m.applyPageLocked(page, res)
	m.metrics.IncSync(string(m.scope), opFetch, metrics.OutcomeSuccess)
	return nil
}

// EnsureHydrated fetches the first page once. Concurrent callers share the
// same request.
func (m *Mailbox) EnsureHydrated(ctx context.Context) error {
	m.mu.Lock()
	skip := m.fetched || m.loading
	m.mu.Unlock()
	if skip {
		return nil
	}
	_, err, _ := m.hydrate.Do("hydrate", func() (any, error) {
		m.mu.Lock()
		fetched := m.fetched
		m.mu.Unlock()
		if fetched {
			return nil, nil
		}
		return nil, m.Fetch(ctx, 1)
	})
	return err
}

func (m *Mailbox) MarkAsRead(ctx context.Context, id string) error {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	e := &m.items[idx]
	if e.n.IsRead {
		m.mu.Unlock()
		return nil
	}
	e.n.IsRead = true
	e.version = m.tickLocked()
	m.unread = max(0, m.unread-1)
	op := &pendingOp{kind: opMarkRead, ids: map[string]uint64{id: e.version}}
	seq := m.trackLocked(op)
	m.mu.Unlock()

	m.sync(ctx, seq, op, func(ctx context.Context) error {
		return m.remote.MarkRead(ctx, m.scope, id)
	})
	return nil
}

func (m *Mailbox) MarkAllAsRead(ctx context.Context) error {
	m.mu.Lock()
	op := &pendingOp{kind: opMarkAllRead, ids: map[string]uint64{}}
	for i := range m.items {
		if m.items[i].n.IsRead {
			continue
		}
		m.items[i].n.IsRead = true
		m.items[i].version = m.tickLocked()
		op.ids[m.items[i].n.ID] = m.items[i].version
	}
	op.hidden = max(0, m.unread-len(op.ids))
	m.unread = 0
	seq := m.trackLocked(op)
	m.mu.Unlock()

	m.sync(ctx, seq, op, func(ctx context.Context) error {
		return m.remote.MarkAllRead(ctx, m.scope)
	})
	return nil
}

func (m *Mailbox) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	removed := m.items[idx]
	m.items = slices.Delete(m.items, idx, idx+1)
	m.gone[id] = true
	if !removed.n.IsRead {
		m.unread = max(0, m.unread-1)
	}
	op := &pendingOp{kind: opRemove, removed: &removed}
	seq := m.trackLocked(op)
	m.mu.Unlock()

	m.sync(ctx, seq, op, func(ctx context.Context) error {
		return m.remote.Delete(ctx, m.scope, id)
	})
	return nil
}

// Snapshot copies the mailbox state.
func (m *Mailbox) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := map[string]bool{}
	for _, op := range m.pending {
		for id := range op.ids {
			pending[id] = true
		}
	}
	items := make([]Item, 0, len(m.items))
	for _, e := range m.items {
		items = append(items, Item{Notification: e.n, Pending: pending[e.n.ID]})
	}
	return View{
		Scope:       m.scope,
		Items:       items,
		UnreadCount: m.unread,
		Page:        m.page,
		HasMore:     m.hasMore,
		IsLoading:   m.loading,
		HasFetched:  m.fetched,
	}
}

// Wait blocks until every outstanding sync settles and returns the
// failures collected since the previous call.
func (m *Mailbox) Wait() error {
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.errs
	m.errs = nil
	return err
}

func (m *Mailbox) sync(ctx context.Context, seq uint64, op *pendingOp, call func(context.Context) error) {
	logCtx := m.logg.WithFields(ctx, map[string]any{"scope": string(m.scope), "op": op.kind})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		syncCtx, cancel := context.WithTimeout(m.base, m.timeout)
		err := call(syncCtx)
		cancel()

		m.mu.Lock()
		delete(m.pending, seq)
		if err != nil {
			m.revertLocked(op)
			m.errs = multierr.Append(m.errs, fmt.Errorf("%s %s: %w", m.scope, op.kind, err))
		}
		m.mu.Unlock()

		if err != nil {
			m.metrics.IncSync(string(m.scope), op.kind, metrics.OutcomeRollback)
			m.logg.Error(logCtx, "notifications.sync.rolled_back", err)
			return
		}
		m.metrics.IncSync(string(m.scope), op.kind, metrics.OutcomeSuccess)
	}()
}

func (m *Mailbox) revertLocked(op *pendingOp) {
	switch op.kind {
	case opMarkRead, opMarkAllRead:
		for id, version := range op.ids {
			idx := m.indexLocked(id)
			if idx < 0 {
				// Dropped by a page 1 reload: the server still counts it.
				// Removed locally: the delete owns the count now.
				if !m.gone[id] {
					m.unread++
				}
				continue
			}
			if m.items[idx].version != version {
				continue
			}
			m.items[idx].n.IsRead = false
			m.items[idx].version = m.tickLocked()
			m.unread++
		}
		m.unread += op.hidden
	case opRemove:
		if m.indexLocked(op.removed.n.ID) >= 0 {
			return
		}
		restored := *op.removed
		restored.version = m.tickLocked()
		delete(m.gone, restored.n.ID)
		m.insertLocked(restored)
		if !restored.n.IsRead {
			m.unread++
		}
	}
}

// applyPageLocked merges a server page, keeping unconfirmed local changes
// visible on top of it. The server count still includes every pending
// decrement it has not applied, wherever the item sits in the list.
func (m *Mailbox) applyPageLocked(page int, res Page) {
	removing := map[string]bool{}
	reading := map[string]uint64{}
	var markAll *pendingOp
	for _, op := range m.pending {
		if op.removed != nil {
			removing[op.removed.n.ID] = true
		}
		for id, v := range op.ids {
			reading[id] = v
		}
		if op.kind == opMarkAllRead && op.hidden > 0 {
			markAll = op
		}
	}

	serverRead := make(map[string]bool, len(res.Items))
	incoming := make([]entry, 0, len(res.Items))
	for _, n := range res.Items {
		serverRead[n.ID] = n.IsRead
		if removing[n.ID] {
			continue
		}
		e := entry{n: n}
		switch v, ok := reading[n.ID]; {
		case n.IsRead:
			e.version = m.tickLocked()
		case ok:
			e.n.IsRead = true
			e.version = v
		case markAll != nil:
			// One of the unloaded items a pending mark-all already covered.
			e.n.IsRead = true
			e.version = m.tickLocked()
			markAll.ids[n.ID] = e.version
			markAll.hidden--
			if markAll.hidden == 0 {
				markAll = nil
			}
		default:
			e.version = m.tickLocked()
		}
		incoming = append(incoming, e)
	}

	if page == 1 {
		m.items = m.items[:0]
	}
	seen := make(map[string]bool, len(m.items))
	for _, e := range m.items {
		seen[e.n.ID] = true
	}
	for _, e := range incoming {
		if seen[e.n.ID] {
			continue
		}
		seen[e.n.ID] = true
		m.items = append(m.items, e)
	}

	m.unread = max(0, res.UnreadCount-m.unappliedLocked(serverRead))
	m.page = page
	m.hasMore = pagination.HasMore(page, res.TotalPages)
	m.fetched = true
}

// unappliedLocked counts pending decrements the server has not reflected.
// serverRead holds the read state of the items the server just returned.
func (m *Mailbox) unappliedLocked(serverRead map[string]bool) int {
	n := 0
	for _, op := range m.pending {
		switch op.kind {
		case opMarkRead, opMarkAllRead:
			for id := range op.ids {
				if !serverRead[id] {
					n++
				}
			}
			n += op.hidden
		case opRemove:
			if op.removed.n.IsRead || serverRead[op.removed.n.ID] {
				continue
			}
			n++
		}
	}
	return n
}

func (m *Mailbox) insertLocked(e entry) {
	idx := len(m.items)
	for i, cur := range m.items {
		if cur.n.CreatedAt.Before(e.n.CreatedAt) {
			idx = i
			break
		}
	}
	m.items = slices.Insert(m.items, idx, e)
}

func (m *Mailbox) indexLocked(id string) int {
	for i := range m.items {
		if m.items[i].n.ID == id {
			return i
		}
	}
	return -1
}

func (m *Mailbox) trackLocked(op *pendingOp) uint64 {
	m.opSeq++
	m.pending[m.opSeq] = op
	return m.opSeq
}

func (m *Mailbox) tickLocked() uint64 {
	m.clock++
	return m.clock
}

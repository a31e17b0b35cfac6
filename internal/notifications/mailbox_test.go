package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

type fakeRemote struct {
	mu        sync.Mutex
	pages     map[int]Page
	listCalls atomic.Int32
	listGate  chan struct{}
	failRead  error
	failAll   error
	failDel   error
	gate      chan struct{}
}

func (f *fakeRemote) List(ctx context.Context, scope enums.NotificationScope, page, limit int) (Page, error) {
	f.listCalls.Add(1)
	if f.listGate != nil {
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[page]
	if !ok {
		return Page{}, pkgerrors.New(pkgerrors.CodeDependency, "no page")
	}
	return p, nil
}

func (f *fakeRemote) wait() {
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeRemote) MarkRead(ctx context.Context, scope enums.NotificationScope, id string) error {
	f.wait()
	return f.failRead
}

func (f *fakeRemote) MarkAllRead(ctx context.Context, scope enums.NotificationScope) error {
	f.wait()
	return f.failAll
}

func (f *fakeRemote) Delete(ctx context.Context, scope enums.NotificationScope, id string) error {
	f.wait()
	return f.failDel
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func note(id string, read bool, age int) Notification {
	return Notification{ID: id, Title: "t-" + id, IsRead: read, CreatedAt: baseTime.Add(-time.Duration(age) * time.Minute)}
}

func newRemote() *fakeRemote {
	return &fakeRemote{pages: map[int]Page{
		1: {Items: []Notification{note("n1", false, 1), note("n2", true, 2), note("n3", false, 3)}, UnreadCount: 3, TotalPages: 2},
		2: {Items: []Notification{note("n3", false, 3), note("n4", false, 4)}, UnreadCount: 3, TotalPages: 2},
	}}
}

func newMailbox(t *testing.T, remote Remote, reg prometheus.Registerer) *Mailbox {
	t.Helper()
	m, err := NewMailbox(Params{
		Scope:       enums.NotificationScopeUser,
		Remote:      remote,
		SyncTimeout: time.Second,
		Metrics:     metrics.NewMailboxMetrics(reg),
	})
	if err != nil {
		t.Fatalf("new mailbox: %v", err)
	}
	return m
}

func ids(v View) string {
	out := ""
	for _, it := range v.Items {
		out += fmt.Sprintf("%s:%t ", it.ID, it.IsRead)
	}
	return out
}

func TestFetchReplacesAndAppends(t *testing.T) {
	m := newMailbox(t, newRemote(), nil)
	ctx := context.Background()

	if err := m.Fetch(ctx, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	v := m.Snapshot()
	if len(v.Items) != 3 || v.UnreadCount != 3 || !v.HasMore || !v.HasFetched {
		t.Fatalf("unexpected first page %+v", v)
	}

	if err := m.Fetch(ctx, 2); err != nil {
		t.Fatalf("fetch page 2: %v", err)
	}
	v = m.Snapshot()
	if len(v.Items) != 4 || v.HasMore || v.Page != 2 {
		t.Fatalf("expected de-duplicated append, got %s hasMore=%t", ids(v), v.HasMore)
	}

	if err := m.Fetch(ctx, 1); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if v = m.Snapshot(); len(v.Items) != 3 {
		t.Fatalf("page 1 should replace, got %s", ids(v))
	}
}

func TestOptimisticMutations(t *testing.T) {
	m := newMailbox(t, newRemote(), nil)
	ctx := context.Background()
	if err := m.Fetch(ctx, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if err := m.MarkAsRead(ctx, "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if got := m.Snapshot().UnreadCount; got != 2 {
		t.Fatalf("expected 2 unread, got %d", got)
	}
	if err := m.MarkAsRead(ctx, "n2"); err != nil {
		t.Fatalf("mark already read: %v", err)
	}
	if got := m.Snapshot().UnreadCount; got != 2 {
		t.Fatalf("already-read item must not decrement, got %d", got)
	}
	if err := m.Remove(ctx, "n3"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	v := m.Snapshot()
	if len(v.Items) != 2 || v.UnreadCount != 1 {
		t.Fatalf("unexpected state after remove %s unread=%d", ids(v), v.UnreadCount)
	}
	if err := m.MarkAllAsRead(ctx); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if err := m.Wait(); err != nil {
		t.Fatalf("expected syncs to succeed, got %v", err)
	}
	if got := m.Snapshot().UnreadCount; got != 0 {
		t.Fatalf("expected 0 unread, got %d", got)
	}

	err := m.MarkAsRead(ctx, "missing")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkAsReadRollsBackOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	remote := newRemote()
	remote.failRead = errors.New("boom")
	remote.gate = make(chan struct{})
	m := newMailbox(t, remote, reg)
	ctx := context.Background()
	if err := m.Fetch(ctx, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if err := m.MarkAsRead(ctx, "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	v := m.Snapshot()
	if !v.Items[0].IsRead || !v.Items[0].Pending || v.UnreadCount != 2 {
		t.Fatalf("expected optimistic pending read, got %+v", v.Items[0])
	}
	close(remote.gate)

	if err := m.Wait(); err == nil {
		t.Fatal("expected aggregated sync error")
	}
	v = m.Snapshot()
	if v.Items[0].IsRead || v.Items[0].Pending || v.UnreadCount != 3 {
		t.Fatalf("expected rollback, got %+v unread=%d", v.Items[0], v.UnreadCount)
	}
	if err := m.Wait(); err != nil {
		t.Fatalf("errors should reset after Wait, got %v", err)
	}
	if got := syncCount(t, reg, opMarkRead, metrics.OutcomeRollback); got != 1 {
		t.Fatalf("expected one rollback metric, got %v", got)
	}
}

func TestRollbackSkipsItemsTouchedLater(t *testing.T) {
	remote := newRemote()
	remote.failAll = errors.New("boom")
	remote.gate = make(chan struct{})
	m := newMailbox(t, remote, nil)
	ctx := context.Background()
	if err := m.Fetch(ctx, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if err := m.MarkAllAsRead(ctx); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	// n3 is removed while mark-all is in flight; the removal succeeds.
	if err := m.Remove(ctx, "n3"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	close(remote.gate)
	if err := m.Wait(); err == nil {
		t.Fatal("expected mark-all failure")
	}

	v := m.Snapshot()
	if len(v.Items) != 2 {
		t.Fatalf("removed item must stay removed, got %s", ids(v))
	}
	if v.Items[0].ID != "n1" || v.Items[0].IsRead {
		t.Fatalf("n1 should be unread again, got %s", ids(v))
	}
	if !v.Items[1].IsRead {
		t.Fatalf("n2 was already read, got %s", ids(v))
	}
	// n1 plus n4, which the server counted but page 1 did not include
	if v.UnreadCount != 2 {
		t.Fatalf("expected 2 unread after rollback, got %d", v.UnreadCount)
	}
}

func TestRemoveRollbackRestoresOrder(t *testing.T) {
	remote := newRemote()
	remote.failDel = pkgerrors.New(pkgerrors.CodeDependency, "down")
	m := newMailbox(t, remote, nil)
	ctx := context.Background()
	if err := m.Fetch(ctx, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if err := m.Remove(ctx, "n2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := m.Wait(); err == nil {
		t.Fatal("expected delete failure")
	}
	v := m.Snapshot()
	if got := ids(v); got != "n1:false n2:true n3:false " {
		t.Fatalf("expected n2 restored in place, got %s", got)
	}
	if v.UnreadCount != 3 {
		t.Fatalf("read item restore must not change unread, got %d", v.UnreadCount)
	}
}

func TestEnsureHydratedSharesFetch(t *testing.T) {
	remote := newRemote()
	remote.listGate = make(chan struct{})
	m := newMailbox(t, remote, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.EnsureHydrated(context.Background()); err != nil {
				t.Errorf("hydrate: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(remote.listGate)
	wg.Wait()

	if got := remote.listCalls.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
	if err := m.EnsureHydrated(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if got := remote.listCalls.Load(); got != 1 {
		t.Fatalf("hydrated mailbox must not refetch, got %d", got)
	}
}

func TestFetchKeepsPendingChanges(t *testing.T) {
	remote := newRemote()
	remote.gate = make(chan struct{})
	m := newMailbox(t, remote, nil)
	ctx := context.Background()
	if err := m.Fetch(ctx, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := m.MarkAsRead(ctx, "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := m.Remove(ctx, "n3"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if err := m.Fetch(ctx, 1); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	v := m.Snapshot()
	if got := ids(v); got != "n1:true n2:true " {
		t.Fatalf("expected pending changes over server page, got %s", got)
	}
	if v.UnreadCount != 1 {
		t.Fatalf("expected server unread minus pending, got %d", v.UnreadCount)
	}
	close(remote.gate)
	if err := m.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestLaterPageKeepsPendingReadOutsideIt(t *testing.T) {
	for _, tc := range []struct {
		name   string
		fail   error
		unread int
	}{
		{name: "acknowledged", unread: 2},
		{name: "rejected", fail: errors.New("boom"), unread: 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			remote := newRemote()
			remote.failRead = tc.fail
			remote.gate = make(chan struct{})
			m := newMailbox(t, remote, nil)
			ctx := context.Background()
			if err := m.Fetch(ctx, 1); err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if err := m.MarkAsRead(ctx, "n1"); err != nil {
				t.Fatalf("mark read: %v", err)
			}
			if err := m.Fetch(ctx, 2); err != nil {
				t.Fatalf("fetch page 2: %v", err)
			}
			if got := m.Snapshot().UnreadCount; got != 2 {
				t.Fatalf("expected n3 and n4 unread while n1 is pending, got %d", got)
			}

			close(remote.gate)
			_ = m.Wait()
			v := m.Snapshot()
			unreadItems := 0
			for _, it := range v.Items {
				if !it.IsRead {
					unreadItems++
				}
			}
			if v.UnreadCount != tc.unread || unreadItems != tc.unread {
				t.Fatalf("expected %d unread, got count=%d items=%d (%s)", tc.unread, v.UnreadCount, unreadItems, ids(v))
			}
		})
	}
}

func TestPendingMarkAllCoversLaterPage(t *testing.T) {
	remote := newRemote()
	remote.failAll = errors.New("boom")
	remote.gate = make(chan struct{})
	m := newMailbox(t, remote, nil)
	ctx := context.Background()
	if err := m.Fetch(ctx, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := m.MarkAllAsRead(ctx); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if err := m.Fetch(ctx, 2); err != nil {
		t.Fatalf("fetch page 2: %v", err)
	}
	v := m.Snapshot()
	if v.UnreadCount != 0 || ids(v) != "n1:true n2:true n3:true n4:true " {
		t.Fatalf("expected everything read while mark-all is pending, got %s unread=%d", ids(v), v.UnreadCount)
	}

	close(remote.gate)
	if err := m.Wait(); err == nil {
		t.Fatal("expected mark-all failure")
	}
	v = m.Snapshot()
	if v.UnreadCount != 3 || ids(v) != "n1:false n2:true n3:false n4:false " {
		t.Fatalf("expected full rollback, got %s unread=%d", ids(v), v.UnreadCount)
	}
}

func TestSetRoutesScopes(t *testing.T) {
	set, err := NewSet(SetParams{Remote: newRemote()})
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	mb, err := set.For(enums.NotificationScopeDelivery)
	if err != nil || mb != set.Delivery || mb.Scope() != enums.NotificationScopeDelivery {
		t.Fatalf("unexpected mailbox for delivery: %v", err)
	}
	if _, err := set.For(enums.NotificationScope("admin")); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := set.User.Fetch(context.Background(), 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if set.Vendor.Snapshot().HasFetched {
		t.Fatal("scopes must be independent")
	}
	if err := set.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func syncCount(t *testing.T, reg *prometheus.Registry, op, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "storefront_mailbox_sync_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["op"] == op && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

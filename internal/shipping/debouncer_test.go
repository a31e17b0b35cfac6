package shipping

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/enums"
)

type recordingQuoter struct {
	mu   sync.Mutex
	reqs []Request
}

func (r *recordingQuoter) Quote(_ context.Context, req Request) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return decimal.NewFromInt(int64(len(r.reqs))), nil
}

func (r *recordingQuoter) calls() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.reqs...)
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	quoter := &recordingQuoter{}
	e := newEstimator(t, quoter)
	quotes := make(chan Quote, 4)
	d := NewDebouncer(context.Background(), e, 30*time.Millisecond, func(q Quote) { quotes <- q }, nil)
	defer d.Stop()

	var last Request
	for i := 1; i <= 5; i++ {
		last = request(int64(i), enums.ShippingTierStandard)
		d.Schedule(last)
	}

	select {
	case q := <-quotes:
		if q.Key != last.Key() {
			t.Fatalf("expected quote for the last request, got key %s", q.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounced estimate never fired")
	}

	time.Sleep(60 * time.Millisecond)
	if got := quoter.calls(); len(got) != 1 {
		t.Fatalf("expected a single remote call, got %d", len(got))
	}
}

func TestDebouncerFlushAndStop(t *testing.T) {
	quoter := &recordingQuoter{}
	e := newEstimator(t, quoter)
	d := NewDebouncer(context.Background(), e, time.Hour, nil, nil)

	if _, ran, _ := d.Flush(context.Background()); ran {
		t.Fatal("flush with nothing pending must not run")
	}

	req := request(10, enums.ShippingTierExpress)
	d.Schedule(req)
	if !d.Pending() {
		t.Fatal("expected pending request")
	}
	q, ran, err := d.Flush(context.Background())
	if err != nil || !ran || q.Key != req.Key() {
		t.Fatalf("unexpected flush result %+v ran=%v err=%v", q, ran, err)
	}

	d.Schedule(request(11, enums.ShippingTierExpress))
	d.Stop()
	d.Schedule(request(12, enums.ShippingTierExpress))
	if d.Pending() {
		t.Fatal("stopped debouncer must ignore new requests")
	}
	if got := quoter.calls(); len(got) != 1 {
		t.Fatalf("expected only the flushed call, got %d", len(got))
	}
}

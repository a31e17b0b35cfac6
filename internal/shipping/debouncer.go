package shipping

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/pkg/logger"
)

const DefaultDebounce = 250 * time.Millisecond

// Debouncer coalesces bursts of estimate requests into one call made after
// the quiet period, always with the last request scheduled.
type Debouncer struct {
	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	pending *Request
	stopped bool
	wg      sync.WaitGroup

	base      context.Context
	delay     time.Duration
	estimator *Estimator
	onQuote   func(Quote)
	logg      *logger.Logger
}

// NewDebouncer runs estimates against base, which should outlive individual
// requests. onQuote may be nil.
func NewDebouncer(base context.Context, estimator *Estimator, delay time.Duration, onQuote func(Quote), logg *logger.Logger) *Debouncer {
	if base == nil {
		base = context.Background()
	}
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{base: base, delay: delay, estimator: estimator, onQuote: onQuote, logg: logg}
}

// Schedule records req as the newest input and restarts the quiet period.
func (d *Debouncer) Schedule(req Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = &req
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.seq++
	seq := d.seq
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

// Pending reports whether a request is waiting for the quiet period.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Flush runs the pending request now. It reports false when nothing was pending.
func (d *Debouncer) Flush(ctx context.Context) (Quote, bool, error) {
	d.mu.Lock()
	if d.timer == nil || !d.timer.Stop() {
		d.mu.Unlock()
		return Quote{}, false, nil
	}
	req := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	defer d.wg.Done()

	if req == nil {
		return Quote{}, false, nil
	}
	q, err := d.estimator.Estimate(ctx, *req)
	if err != nil {
		return Quote{}, true, err
	}
	d.deliver(q)
	return q, true, nil
}

// Stop drops any pending request and waits for a running estimate to finish.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.pending = nil
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.timer = nil
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Debouncer) fire(seq uint64) {
	defer d.wg.Done()

	d.mu.Lock()
	if seq != d.seq {
		// a newer timer owns the pending request
		d.mu.Unlock()
		return
	}
	req := d.pending
	d.pending = nil
	d.timer = nil
	stopped := d.stopped
	d.mu.Unlock()
	if stopped || req == nil {
		return
	}

	q, err := d.estimator.Estimate(d.base, *req)
	switch {
	case err == nil:
		d.deliver(q)
	case errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
		d.logg.Debug(d.base, "shipping.debounce.superseded")
	default:
		d.logg.Warn(d.logg.WithField(d.base, "error", err.Error()), "shipping.debounce.failed")
	}
}

func (d *Debouncer) deliver(q Quote) {
	if d.onQuote != nil {
		d.onQuote(q)
	}
}

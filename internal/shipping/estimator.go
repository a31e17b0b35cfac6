package shipping

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/money"
)

const defaultRemoteTimeout = 3 * time.Second

// ErrSuperseded is returned by an estimate that a newer request overtook.
var ErrSuperseded = errors.New("shipping estimate superseded")

// Quote is a published shipping cost.
type Quote struct {
	Amount      decimal.Decimal    `json:"amount"`
	Source      enums.QuoteSource  `json:"source"`
	Tier        enums.ShippingTier `json:"tier"`
	Key         string             `json:"key"`
	Generation  uint64             `json:"generation"`
	EstimatedAt time.Time          `json:"estimatedAt"`
}

type shippingMetrics interface {
	IncEstimate(source string)
	IncSuperseded()
}

// EstimatorParams groups dependencies for the estimator.
type EstimatorParams struct {
	Quoter        Quoter
	Rates         Rates
	RemoteTimeout time.Duration
	Metrics       shippingMetrics
	Logger        *logger.Logger
	Now           func() time.Time
}

// Estimator serializes shipping estimates so only the newest request
// publishes. Starting an estimate cancels the one in flight.
type Estimator struct {
	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	latest     *Quote

	quoter  Quoter
	rates   Rates
	timeout time.Duration
	metrics shippingMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewEstimator(params EstimatorParams) (*Estimator, error) {
	if params.Quoter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipping quoter is required")
	}
	timeout := params.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	m := params.Metrics
	if m == nil {
		m = (*metrics.ShippingMetrics)(nil)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Estimator{
		quoter:  params.Quoter,
		rates:   params.Rates,
		timeout: timeout,
		metrics: m,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// Estimate prices req. Freeship coupons short-circuit to zero; remote
// failures fall back to the local rates.
func (e *Estimator) Estimate(ctx context.Context, req Request) (Quote, error) {
	key := req.Key()

	e.mu.Lock()
	e.generation++
	generation := e.generation
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if req.CouponType == enums.CouponTypeFreeShip {
		q := e.publishLocked(req, key, generation, decimal.Zero, enums.QuoteSourceCoupon)
		e.mu.Unlock()
		return q, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	e.cancel = cancel
	e.mu.Unlock()

	amount, err := e.quoter.Quote(callCtx, req)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != generation {
		e.metrics.IncSuperseded()
		return Quote{}, ErrSuperseded
	}
	e.cancel = nil

	if err != nil {
		if ctx.Err() != nil {
			return Quote{}, ctx.Err()
		}
		e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
			"error": err.Error(),
			"tier":  string(req.tier()),
		}), "shipping.estimate.fallback")
		return e.publishLocked(req, key, generation, e.rates.Fallback(req), enums.QuoteSourceFallback), nil
	}
	return e.publishLocked(req, key, generation, amount, enums.QuoteSourceRemote), nil
}

// Latest returns the most recently published quote.
func (e *Estimator) Latest() (Quote, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil {
		return Quote{}, false
	}
	return *e.latest, true
}

// Resolve returns the published quote for req when its inputs still match,
// otherwise estimates synchronously.
func (e *Estimator) Resolve(ctx context.Context, req Request) (Quote, error) {
	key := req.Key()
	if q, ok := e.Latest(); ok && q.Key == key {
		return q, nil
	}
	q, err := e.Estimate(ctx, req)
	if !errors.Is(err, ErrSuperseded) {
		return q, err
	}
	if latest, ok := e.Latest(); ok && latest.Key == key {
		return latest, nil
	}
	return Quote{
		Amount:      e.rates.Fallback(req),
		Source:      enums.QuoteSourceFallback,
		Tier:        req.tier(),
		Key:         key,
		EstimatedAt: e.now().UTC(),
	}, nil
}

// Cancel aborts any in-flight estimate.
func (e *Estimator) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Estimator) publishLocked(req Request, key string, generation uint64, amount decimal.Decimal, source enums.QuoteSource) Quote {
	q := Quote{
		Amount:      money.Round(money.NonNegative(amount)),
		Source:      source,
		Tier:        req.tier(),
		Key:         key,
		Generation:  generation,
		EstimatedAt: e.now().UTC(),
	}
	e.latest = &q
	e.metrics.IncEstimate(string(source))
	return q
}

package coupons

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// ErrApplyInFlight is returned when Apply is called while a validation is pending.
var ErrApplyInFlight = errors.New("coupon validation already in flight")

type couponMetrics interface {
	IncValidation(outcome string)
	IncInvalidation()
}

// EvaluatorParams groups dependencies for the evaluator.
type EvaluatorParams struct {
	Validator Validator
	Metrics   couponMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Evaluator holds the applied coupon for one session.
type Evaluator struct {
	mu         sync.Mutex
	validator  Validator
	applied    *Application
	applying   bool
	generation uint64

	metrics couponMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewEvaluator(params EvaluatorParams) (*Evaluator, error) {
	if params.Validator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon validator is required")
	}
	m := params.Metrics
	if m == nil {
		m = (*metrics.CouponMetrics)(nil)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Evaluator{validator: params.Validator, metrics: m, logg: params.Logger, now: now}, nil
}

// Apply validates code against cartTotal and records it as the applied
// coupon. A failed validation clears any coupon already applied.
func (e *Evaluator) Apply(ctx context.Context, code string, cartTotal decimal.Decimal) (Application, error) {
	return e.ApplyCurrent(ctx, code, func() decimal.Decimal { return cartTotal })
}

// ApplyCurrent is Apply with the total read through total once the
// validation is registered, so any cart change after the read is caught
// as stale.
func (e *Evaluator) ApplyCurrent(ctx context.Context, code string, total func() decimal.Decimal) (Application, error) {
	e.mu.Lock()
	if e.applying {
		e.mu.Unlock()
		e.metrics.IncValidation(metrics.OutcomeIgnored)
		return Application{}, ErrApplyInFlight
	}
	e.applying = true
	generation := e.generation
	e.mu.Unlock()

	cartTotal := total()
	app, err := Validate(ctx, e.validator, code, cartTotal)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.applying = false

	if err != nil {
		e.applied = nil
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			e.metrics.IncValidation(metrics.OutcomeInvalid)
		} else {
			e.metrics.IncValidation(metrics.OutcomeFailure)
		}
		return Application{}, err
	}
	if e.generation != generation {
		e.metrics.IncValidation(metrics.OutcomeStale)
		e.logg.Info(e.logg.WithField(ctx, "coupon", app.Coupon.Code), "coupon.apply.stale")
		return Application{}, pkgerrors.New(pkgerrors.CodeStateConflict, "cart changed during validation")
	}

	app.ValidatedAt = e.now().UTC()
	e.applied = &app
	e.metrics.IncValidation(metrics.OutcomeSuccess)
	return app, nil
}

// Remove clears the applied coupon and discards any pending validation result.
func (e *Evaluator) Remove() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	had := e.applied != nil
	e.applied = nil
	return had
}

// Applied returns the current application, if any.
func (e *Evaluator) Applied() (Application, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applied == nil {
		return Application{}, false
	}
	return *e.applied, true
}

// InFlight reports whether a validation is pending.
func (e *Evaluator) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applying
}

// OnTotalChange invalidates the applied coupon when the cart total moves.
func (e *Evaluator) OnTotalChange(old, new decimal.Decimal) {
	if old.Equal(new) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	if e.applied != nil {
		e.applied = nil
		e.metrics.IncInvalidation()
	}
}

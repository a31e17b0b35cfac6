package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/coupons"
	"github.com/angelmondragon/storefront/internal/shipping"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/types"
)

type cartReader interface {
	Items() []cart.Line
	Total() decimal.Decimal
	Clear(ctx context.Context) error
}

type couponApplier interface {
	ApplyCurrent(ctx context.Context, code string, total func() decimal.Decimal) (coupons.Application, error)
	Remove() bool
	Applied() (coupons.Application, bool)
	InFlight() bool
}

type shippingResolver interface {
	Resolve(ctx context.Context, req shipping.Request) (shipping.Quote, error)
	Latest() (shipping.Quote, bool)
}

type estimateScheduler interface {
	Schedule(req shipping.Request)
}

type checkoutMetrics interface {
	IncSubmit(outcome string)
	ObserveSubmit(d time.Duration)
	IncTransition(from, to string)
}

// Params groups the orchestrator's collaborators.
type Params struct {
	Cart      cartReader
	Coupons   couponApplier
	Shipping  shippingResolver
	Scheduler estimateScheduler
	Placer    OrderPlacer
	TaxRate   decimal.Decimal
	Metrics   checkoutMetrics
	Logger    *logger.Logger
	Now       func() time.Time
	NewKey    func() string
}

// State is a read-only view of the checkout.
type State struct {
	Step           enums.CheckoutStep     `json:"step"`
	Draft          types.ShippingAddress  `json:"draft"`
	Details        *types.ShippingAddress `json:"details,omitempty"`
	PaymentMethod  enums.PaymentMethod    `json:"paymentMethod,omitempty"`
	ShippingTier   enums.ShippingTier     `json:"shippingTier"`
	Coupon         *coupons.Application   `json:"coupon,omitempty"`
	ApplyingCoupon bool                   `json:"applyingCoupon"`
	Estimate       *shipping.Quote        `json:"shippingEstimate,omitempty"`
	Submitting     bool                   `json:"submitting"`
	Order          *Order                 `json:"order,omitempty"`
}

// CouponResult reports an apply attempt. Ignored is set when another
// validation was already running.
type CouponResult struct {
	Application *coupons.Application `json:"application,omitempty"`
	Ignored     bool                 `json:"ignored"`
}

// SubmitResult reports a submit attempt. Ignored is set when another
// submission was already running.
type SubmitResult struct {
	Order   *Order `json:"order,omitempty"`
	Ignored bool   `json:"ignored"`
}

// Orchestrator drives one session through shipping, payment and submission.
type Orchestrator struct {
	mu            sync.Mutex
	step          enums.CheckoutStep
	draft         types.ShippingAddress
	details       *types.ShippingAddress
	paymentMethod enums.PaymentMethod
	tier          enums.ShippingTier
	submitting    bool
	order         *Order

	cart      cartReader
	coupons   couponApplier
	shipping  shippingResolver
	scheduler estimateScheduler
	placer    OrderPlacer
	taxRate   decimal.Decimal
	metrics   checkoutMetrics
	logg      *logger.Logger
	now       func() time.Time
	newKey    func() string
}

func NewOrchestrator(params Params) (*Orchestrator, error) {
	if params.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart is required")
	}
	if params.Coupons == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon evaluator is required")
	}
	if params.Shipping == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipping estimator is required")
	}
	if params.Placer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order placer is required")
	}
	m := params.Metrics
	if m == nil {
		m = (*metrics.CheckoutMetrics)(nil)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	newKey := params.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	return &Orchestrator{
		step:      enums.CheckoutStepShipping,
		tier:      enums.ShippingTierStandard,
		cart:      params.Cart,
		coupons:   params.Coupons,
		shipping:  params.Shipping,
		scheduler: params.Scheduler,
		placer:    params.Placer,
		taxRate:   params.TaxRate,
		metrics:   m,
		logg:      params.Logger,
		now:       now,
		newKey:    newKey,
	}, nil
}

// State returns a snapshot of the checkout.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	st := State{
		Step:          o.step,
		Draft:         o.draft,
		PaymentMethod: o.paymentMethod,
		ShippingTier:  o.tier,
		Submitting:    o.submitting,
	}
	if o.details != nil {
		d := *o.details
		st.Details = &d
	}
	if o.order != nil {
		order := o.order.Clone()
		st.Order = &order
	}
	o.mu.Unlock()

	if app, ok := o.coupons.Applied(); ok {
		st.Coupon = &app
	}
	st.ApplyingCoupon = o.coupons.InFlight()
	if q, ok := o.shipping.Latest(); ok {
		st.Estimate = &q
	}
	return st
}

// UpdateShippingDraft stores the in-progress shipping form and schedules a
// debounced estimate for its destination.
func (o *Orchestrator) UpdateShippingDraft(ctx context.Context, draft types.ShippingAddress) (State, error) {
	o.mu.Lock()
	if o.step != enums.CheckoutStepShipping {
		step := o.step
		o.mu.Unlock()
		return State{}, stepConflict("shipping details can only be edited in the shipping step", step)
	}
	o.draft = draft
	o.mu.Unlock()

	o.scheduleEstimate()
	return o.State(), nil
}

// ProceedToPayment validates details and moves to the payment step.
func (o *Orchestrator) ProceedToPayment(ctx context.Context, details types.ShippingAddress) (State, error) {
	if len(o.cart.Items()) == 0 {
		return State{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	normalized, err := ValidateShipping(details)
	if err != nil {
		o.mu.Lock()
		o.draft = details
		o.mu.Unlock()
		return State{}, err
	}

	o.mu.Lock()
	if o.step != enums.CheckoutStepShipping {
		step := o.step
		o.mu.Unlock()
		return State{}, stepConflict("checkout is not in the shipping step", step)
	}
	o.draft = normalized
	o.details = &normalized
	o.transitionLocked(enums.CheckoutStepPayment)
	o.mu.Unlock()

	o.logg.Info(ctx, "checkout.step.payment")
	o.scheduleEstimate()
	return o.State(), nil
}

// UseSavedAddress proceeds to payment with an address-book entry.
func (o *Orchestrator) UseSavedAddress(ctx context.Context, addr types.ShippingAddress) (State, error) {
	return o.ProceedToPayment(ctx, addr)
}

// BackToShipping returns from payment to the shipping step, keeping the
// validated details as the draft.
func (o *Orchestrator) BackToShipping(ctx context.Context) (State, error) {
	o.mu.Lock()
	if o.step != enums.CheckoutStepPayment || o.submitting {
		step := o.step
		o.mu.Unlock()
		return State{}, stepConflict("checkout is not in the payment step", step)
	}
	if o.details != nil {
		o.draft = *o.details
	}
	o.details = nil
	o.transitionLocked(enums.CheckoutStepShipping)
	o.mu.Unlock()
	return o.State(), nil
}

func (o *Orchestrator) SetPaymentMethod(ctx context.Context, method enums.PaymentMethod) (State, error) {
	if !method.IsValid() {
		return State{}, pkgerrors.FieldErrors("invalid payment method", map[string]string{"paymentMethod": "must be one of cod, card, upi, wallet"})
	}
	o.mu.Lock()
	if err := o.requirePaymentLocked(); err != nil {
		o.mu.Unlock()
		return State{}, err
	}
	o.paymentMethod = method
	o.mu.Unlock()
	return o.State(), nil
}

func (o *Orchestrator) SetShippingTier(ctx context.Context, tier enums.ShippingTier) (State, error) {
	if !tier.IsValid() {
		return State{}, pkgerrors.FieldErrors("invalid shipping option", map[string]string{"shippingOption": "must be standard or express"})
	}
	o.mu.Lock()
	if o.step == enums.CheckoutStepSubmitted || o.submitting {
		step := o.step
		o.mu.Unlock()
		return State{}, stepConflict("shipping option is locked", step)
	}
	o.tier = tier
	o.mu.Unlock()

	o.scheduleEstimate()
	return o.State(), nil
}

// ApplyCoupon validates code against the current cart total.
func (o *Orchestrator) ApplyCoupon(ctx context.Context, code string) (CouponResult, error) {
	o.mu.Lock()
	if err := o.requirePaymentLocked(); err != nil {
		o.mu.Unlock()
		return CouponResult{}, err
	}
	o.mu.Unlock()

	app, err := o.coupons.ApplyCurrent(ctx, code, o.cart.Total)
	if errors.Is(err, coupons.ErrApplyInFlight) {
		return CouponResult{Ignored: true}, nil
	}
	// the coupon type feeds the shipping estimate either way
	o.scheduleEstimate()
	if err != nil {
		o.logg.Warn(o.logg.WithField(ctx, "error", err.Error()), "checkout.coupon.rejected")
		return CouponResult{}, err
	}
	return CouponResult{Application: &app}, nil
}

func (o *Orchestrator) RemoveCoupon(ctx context.Context) (State, error) {
	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return State{}, stepConflict("order submission in progress", enums.CheckoutStepPayment)
	}
	o.mu.Unlock()
	if o.coupons.Remove() {
		o.scheduleEstimate()
	}
	return o.State(), nil
}

// CartChanged re-estimates shipping for the new cart contents.
func (o *Orchestrator) CartChanged() {
	o.mu.Lock()
	step := o.step
	o.mu.Unlock()
	if step == enums.CheckoutStepSubmitted {
		return
	}
	o.scheduleEstimate()
}

// Quote prices the checkout as it stands.
func (o *Orchestrator) Quote(ctx context.Context) (Totals, shipping.Quote, error) {
	req, discount, _ := o.pricingInputs()
	q, err := o.shipping.Resolve(ctx, req)
	if err != nil {
		return Totals{}, shipping.Quote{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "estimate shipping")
	}
	return ComputeTotals(req.Subtotal, q.Amount, discount, o.taxRate), q, nil
}

// Submit places the order. A concurrent second call returns Ignored and
// has no other effect. The cart is cleared only after the order is accepted.
func (o *Orchestrator) Submit(ctx context.Context) (SubmitResult, error) {
	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		o.metrics.IncSubmit(metrics.OutcomeIgnored)
		o.logg.Info(ctx, "checkout.submit.ignored")
		return SubmitResult{Ignored: true}, nil
	}
	if o.step != enums.CheckoutStepPayment || o.details == nil {
		step := o.step
		o.mu.Unlock()
		return SubmitResult{}, stepConflict("checkout is not ready for submission", step)
	}
	if o.paymentMethod == "" {
		o.mu.Unlock()
		return SubmitResult{}, pkgerrors.FieldErrors("payment method is required", map[string]string{"paymentMethod": "required"})
	}
	if o.coupons.InFlight() {
		o.mu.Unlock()
		return SubmitResult{}, stepConflict("coupon validation in progress", o.step)
	}
	o.submitting = true
	details := *o.details
	method := o.paymentMethod
	tier := o.tier
	o.mu.Unlock()

	order, err := o.buildOrder(ctx, details, method, tier)
	if err != nil {
		o.finishSubmit(nil)
		o.metrics.IncSubmit(metrics.OutcomeFailure)
		return SubmitResult{}, err
	}

	key := o.newKey()
	ctx = o.logg.WithFields(ctx, map[string]any{"idempotency_key": key, "order_total": order.Total.StringFixed(2)})
	start := o.now()
	id, err := o.placer.PlaceOrder(ctx, key, order)
	o.metrics.ObserveSubmit(o.now().Sub(start))
	if err != nil {
		o.finishSubmit(nil)
		o.metrics.IncSubmit(metrics.OutcomeFailure)
		o.logg.Error(ctx, "checkout.submit.failed", err)
		return SubmitResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order submission failed")
	}

	order.ID = id
	order.Status = enums.OrderStatusPending
	order.PlacedAt = o.now().UTC()
	o.finishSubmit(&order)
	o.metrics.IncSubmit(metrics.OutcomeSuccess)

	if err := o.cart.Clear(ctx); err != nil {
		o.logg.Error(ctx, "checkout.cart.clear_failed", err)
	}
	o.coupons.Remove()
	o.logg.Info(o.logg.WithField(ctx, "order_id", id), "checkout.submit.succeeded")

	out := order.Clone()
	return SubmitResult{Order: &out}, nil
}

// Reset starts a fresh checkout. It is refused while a submission runs.
func (o *Orchestrator) Reset(ctx context.Context) (State, error) {
	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return State{}, stepConflict("order submission in progress", enums.CheckoutStepPayment)
	}
	from := o.step
	o.step = enums.CheckoutStepShipping
	o.draft = types.ShippingAddress{}
	o.details = nil
	o.paymentMethod = ""
	o.tier = enums.ShippingTierStandard
	o.order = nil
	if from != o.step {
		o.metrics.IncTransition(string(from), string(o.step))
	}
	o.mu.Unlock()
	return o.State(), nil
}

// LastOrder returns the most recently placed order.
func (o *Orchestrator) LastOrder() (Order, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.order == nil {
		return Order{}, false
	}
	return o.order.Clone(), true
}

func (o *Orchestrator) buildOrder(ctx context.Context, details types.ShippingAddress, method enums.PaymentMethod, tier enums.ShippingTier) (Order, error) {
	lines := o.cart.Items()
	if len(lines) == 0 {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	totals, _, err := o.Quote(ctx)
	if err != nil {
		return Order{}, err
	}
	var couponCode string
	if app, ok := o.coupons.Applied(); ok {
		couponCode = app.Coupon.Code
	}
	return Order{
		Items:           snapshotItems(lines),
		ShippingAddress: details,
		PaymentMethod:   method,
		Subtotal:        totals.Subtotal,
		Shipping:        totals.Shipping,
		Tax:             totals.Tax,
		Discount:        totals.Discount,
		Total:           totals.Total,
		CouponCode:      couponCode,
		ShippingOption:  tier,
	}, nil
}

func (o *Orchestrator) finishSubmit(order *Order) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitting = false
	if order == nil {
		return
	}
	placed := order.Clone()
	o.order = &placed
	o.transitionLocked(enums.CheckoutStepSubmitted)
}

// pricingInputs assembles the shipping request from the current cart,
// destination, tier and applied coupon.
func (o *Orchestrator) pricingInputs() (shipping.Request, decimal.Decimal, bool) {
	o.mu.Lock()
	dest := o.draft
	if o.details != nil {
		dest = *o.details
	}
	tier := o.tier
	o.mu.Unlock()

	lines := o.cart.Items()
	items := make([]shipping.Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, shipping.Item{ProductID: l.ProductID, VendorID: l.VendorID, Quantity: l.Quantity, Price: l.Price})
	}

	req := shipping.Request{
		Items: items,
		Destination: shipping.Destination{
			Country: strings.TrimSpace(dest.Country),
			ZipCode: strings.TrimSpace(dest.ZipCode),
			City:    strings.TrimSpace(dest.City),
			State:   strings.TrimSpace(dest.State),
		},
		Tier:     tier,
		Subtotal: o.cart.Total(),
	}
	discount := decimal.Zero
	app, ok := o.coupons.Applied()
	if ok {
		req.CouponType = app.Coupon.Type
		discount = app.Discount
	}
	return req, discount, len(lines) > 0
}

func (o *Orchestrator) scheduleEstimate() {
	if o.scheduler == nil {
		return
	}
	req, _, hasItems := o.pricingInputs()
	if !hasItems || req.Destination.Country == "" {
		return
	}
	o.scheduler.Schedule(req)
}

func (o *Orchestrator) requirePaymentLocked() error {
	if o.step != enums.CheckoutStepPayment {
		return stepConflict("checkout is not in the payment step", o.step)
	}
	if o.submitting {
		return stepConflict("order submission in progress", o.step)
	}
	return nil
}

func (o *Orchestrator) transitionLocked(to enums.CheckoutStep) {
	from := o.step
	o.step = to
	o.metrics.IncTransition(string(from), string(to))
}

func stepConflict(message string, step enums.CheckoutStep) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).WithDetails(map[string]string{"step": string(step)})
}

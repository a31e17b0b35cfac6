package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/coupons"
	"github.com/angelmondragon/storefront/internal/shipping"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

type fakeCart struct {
	mu      sync.Mutex
	lines   []cart.Line
	cleared int
}

func (c *fakeCart) Items() []cart.Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cart.Line(nil), c.lines...)
}

func (c *fakeCart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c *fakeCart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	c.cleared++
	return nil
}

type validatorFunc func(ctx context.Context, code string, total decimal.Decimal) (coupons.Coupon, error)

func (f validatorFunc) Validate(ctx context.Context, code string, total decimal.Decimal) (coupons.Coupon, error) {
	return f(ctx, code, total)
}

type quoterFunc func(ctx context.Context, req shipping.Request) (decimal.Decimal, error)

func (f quoterFunc) Quote(ctx context.Context, req shipping.Request) (decimal.Decimal, error) {
	return f(ctx, req)
}

type placerFunc func(ctx context.Context, key string, order Order) (string, error)

func (f placerFunc) PlaceOrder(ctx context.Context, key string, order Order) (string, error) {
	return f(ctx, key, order)
}

type recordingScheduler struct {
	mu   sync.Mutex
	reqs []shipping.Request
}

func (s *recordingScheduler) Schedule(req shipping.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

type fixture struct {
	orch      *Orchestrator
	cart      *fakeCart
	scheduler *recordingScheduler
	reg       *prometheus.Registry
}

func newFixture(t *testing.T, placer OrderPlacer) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	set := metrics.NewSet(reg)

	c := &fakeCart{lines: []cart.Line{
		{ProductID: "p1", Name: "Tee", Price: decimal.NewFromInt(20), Quantity: 2, VendorID: "v1", StockQuantity: 10},
		{ProductID: "p2", Name: "Cap", Price: decimal.NewFromInt(15), Quantity: 1, VendorID: "v2", StockQuantity: 10, Variant: cart.Variant{Color: "red"}},
	}}
	evaluator, err := coupons.NewEvaluator(coupons.EvaluatorParams{
		Validator: validatorFunc(func(ctx context.Context, code string, total decimal.Decimal) (coupons.Coupon, error) {
			if code != "SAVE10" {
				return coupons.Coupon{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon")
			}
			return coupons.Coupon{Code: code, Type: enums.CouponTypePercentage, Value: decimal.NewFromInt(10)}, nil
		}),
		Metrics: set.Coupons,
	})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	estimator, err := shipping.NewEstimator(shipping.EstimatorParams{
		Quoter: quoterFunc(func(ctx context.Context, req shipping.Request) (decimal.Decimal, error) {
			return decimal.NewFromInt(50), nil
		}),
		Rates:   shipping.Rates{Standard: decimal.NewFromInt(50), Express: decimal.NewFromInt(150)},
		Metrics: set.Shipping,
	})
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	sched := &recordingScheduler{}
	orch, err := NewOrchestrator(Params{
		Cart:      c,
		Coupons:   evaluator,
		Shipping:  estimator,
		Scheduler: sched,
		Placer:    placer,
		TaxRate:   decimal.RequireFromString("0.18"),
		Metrics:   set.Checkout,
		NewKey:    func() string { return "idem-1" },
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return fixture{orch: orch, cart: c, scheduler: sched, reg: reg}
}

func (f fixture) toPayment(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.orch.ProceedToPayment(ctx, validAddress()); err != nil {
		t.Fatalf("proceed to payment: %v", err)
	}
	if _, err := f.orch.SetPaymentMethod(ctx, enums.PaymentMethodCOD); err != nil {
		t.Fatalf("set payment method: %v", err)
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func okPlacer(id string) OrderPlacer {
	return placerFunc(func(ctx context.Context, key string, order Order) (string, error) {
		return id, nil
	})
}

func TestSubmitPlacesOrderAndClearsCart(t *testing.T) {
	var got Order
	var gotKey string
	f := newFixture(t, placerFunc(func(ctx context.Context, key string, order Order) (string, error) {
		got, gotKey = order, key
		return "ord-1", nil
	}))
	f.toPayment(t)
	ctx := context.Background()

	res, err := f.orch.ApplyCoupon(ctx, "SAVE10")
	if err != nil || res.Application == nil {
		t.Fatalf("apply coupon: %+v %v", res, err)
	}

	out, err := f.orch.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Ignored || out.Order == nil || out.Order.ID != "ord-1" {
		t.Fatalf("unexpected result %+v", out)
	}
	if gotKey != "idem-1" {
		t.Fatalf("expected idempotency key, got %q", gotKey)
	}
	if got.Total.StringFixed(2) != "108.41" || got.Tax.StringFixed(2) != "8.91" || got.Discount.StringFixed(2) != "5.50" {
		t.Fatalf("unexpected totals total=%s tax=%s discount=%s", got.Total, got.Tax, got.Discount)
	}
	if got.CouponCode != "SAVE10" || got.PaymentMethod != enums.PaymentMethodCOD {
		t.Fatalf("unexpected order fields %+v", got)
	}
	if got.ShippingAddress.Phone != "9876543210" {
		t.Fatalf("expected normalized phone in order, got %q", got.ShippingAddress.Phone)
	}
	if f.cart.cleared != 1 {
		t.Fatalf("expected cart cleared once, got %d", f.cart.cleared)
	}
	st := f.orch.State()
	if st.Step != enums.CheckoutStepSubmitted || st.Coupon != nil || st.Order == nil {
		t.Fatalf("unexpected state after submit %+v", st)
	}
	if st.Order.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", st.Order.Status)
	}
}

func TestSubmitFailureKeepsCart(t *testing.T) {
	f := newFixture(t, placerFunc(func(ctx context.Context, key string, order Order) (string, error) {
		return "", errors.New("upstream down")
	}))
	f.toPayment(t)

	_, err := f.orch.Submit(context.Background())
	requireCode(t, err, pkgerrors.CodeDependency)
	if f.cart.cleared != 0 || len(f.cart.Items()) != 2 {
		t.Fatal("cart must survive a failed submission")
	}
	st := f.orch.State()
	if st.Step != enums.CheckoutStepPayment || st.Submitting {
		t.Fatalf("expected to remain in payment, got %+v", st)
	}
}

func TestConcurrentSubmitIsIgnored(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	calls := 0
	f := newFixture(t, placerFunc(func(ctx context.Context, key string, order Order) (string, error) {
		calls++
		close(entered)
		<-release
		return "ord-2", nil
	}))
	f.toPayment(t)

	done := make(chan SubmitResult, 1)
	go func() {
		res, err := f.orch.Submit(context.Background())
		if err != nil {
			t.Errorf("first submit: %v", err)
		}
		done <- res
	}()
	<-entered

	second, err := f.orch.Submit(context.Background())
	if err != nil || !second.Ignored {
		t.Fatalf("expected ignored second submit, got %+v %v", second, err)
	}
	close(release)

	select {
	case first := <-done:
		if first.Order == nil || first.Order.ID != "ord-2" {
			t.Fatalf("unexpected first result %+v", first)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first submit did not finish")
	}
	if calls != 1 {
		t.Fatalf("expected one placement, got %d", calls)
	}
	if got := submitCount(t, f.reg, metrics.OutcomeIgnored); got != 1 {
		t.Fatalf("expected one ignored submit recorded, got %v", got)
	}
}

func submitCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "storefront_checkout_submit_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestSubmitPreconditions(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, okPlacer("x"))
	_, err := f.orch.Submit(ctx)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	if _, err := f.orch.ProceedToPayment(ctx, validAddress()); err != nil {
		t.Fatalf("proceed: %v", err)
	}
	_, err = f.orch.Submit(ctx)
	requireCode(t, err, pkgerrors.CodeValidation)

	if _, err := f.orch.SetPaymentMethod(ctx, enums.PaymentMethod("cheque")); err == nil {
		t.Fatal("expected invalid payment method to be rejected")
	}
}

func TestProceedToPaymentRejectsIncompleteDetails(t *testing.T) {
	f := newFixture(t, okPlacer("x"))
	in := validAddress()
	in.ZipCode = ""

	_, err := f.orch.ProceedToPayment(context.Background(), in)
	requireCode(t, err, pkgerrors.CodeValidation)
	if st := f.orch.State(); st.Step != enums.CheckoutStepShipping || st.Draft.ZipCode != "" || st.Draft.City != "Bengaluru" {
		t.Fatalf("expected draft retained in shipping step, got %+v", st)
	}
}

func TestProceedToPaymentRequiresItems(t *testing.T) {
	f := newFixture(t, okPlacer("x"))
	_ = f.cart.Clear(context.Background())
	_, err := f.orch.ProceedToPayment(context.Background(), validAddress())
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestBackToShippingKeepsDetailsAsDraft(t *testing.T) {
	f := newFixture(t, okPlacer("x"))
	f.toPayment(t)

	st, err := f.orch.BackToShipping(context.Background())
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if st.Step != enums.CheckoutStepShipping || st.Details != nil || st.Draft.Phone != "9876543210" {
		t.Fatalf("unexpected state %+v", st)
	}
	if _, err := f.orch.BackToShipping(context.Background()); err == nil {
		t.Fatal("expected second back to fail outside payment step")
	}
}

func TestDraftAndTierScheduleEstimates(t *testing.T) {
	f := newFixture(t, okPlacer("x"))
	ctx := context.Background()

	if _, err := f.orch.UpdateShippingDraft(ctx, validAddress()); err != nil {
		t.Fatalf("draft: %v", err)
	}
	if _, err := f.orch.SetShippingTier(ctx, enums.ShippingTierExpress); err != nil {
		t.Fatalf("tier: %v", err)
	}
	f.orch.CartChanged()
	if got := f.scheduler.count(); got != 3 {
		t.Fatalf("expected 3 scheduled estimates, got %d", got)
	}
	last := f.scheduler.reqs[2]
	if last.Tier != enums.ShippingTierExpress || last.Destination.ZipCode != "560001" {
		t.Fatalf("unexpected request %+v", last)
	}
}

func TestQuoteUsesAppliedCoupon(t *testing.T) {
	f := newFixture(t, okPlacer("x"))
	f.toPayment(t)
	ctx := context.Background()
	if _, err := f.orch.ApplyCoupon(ctx, "SAVE10"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	totals, quote, err := f.orch.Quote(ctx)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Source != enums.QuoteSourceRemote {
		t.Fatalf("expected remote quote, got %s", quote.Source)
	}
	if totals.Total.StringFixed(2) != "108.41" {
		t.Fatalf("expected 108.41, got %s", totals.Total.StringFixed(2))
	}

	if _, err := f.orch.ApplyCoupon(ctx, "NOPE"); err == nil {
		t.Fatal("expected invalid coupon error")
	}
	totals, _, err = f.orch.Quote(ctx)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !totals.Discount.IsZero() {
		t.Fatalf("failed coupon must clear discount, got %s", totals.Discount)
	}
}

func TestResetReturnsToShipping(t *testing.T) {
	f := newFixture(t, okPlacer("ord-3"))
	f.toPayment(t)
	if _, err := f.orch.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	st, err := f.orch.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if st.Step != enums.CheckoutStepShipping || st.Order != nil || st.PaymentMethod != "" {
		t.Fatalf("unexpected state after reset %+v", st)
	}
	if _, ok := f.orch.LastOrder(); ok {
		t.Fatal("reset should forget the last order")
	}
}

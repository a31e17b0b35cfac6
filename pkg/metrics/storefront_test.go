package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSetRegistersStorefrontCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	set := NewSet(reg)

	set.Checkout.IncSubmit(OutcomeSuccess)
	set.Checkout.IncSubmit(OutcomeIgnored)
	set.Checkout.IncSubmit(OutcomeIgnored)
	set.Checkout.ObserveSubmit(40 * time.Millisecond)
	set.Checkout.IncTransition("shipping", "payment")
	set.Shipping.IncEstimate("fallback")
	set.Shipping.IncSuperseded()
	set.Coupons.IncValidation(OutcomeStale)
	set.Mailbox.IncSync("vendor", "remove", OutcomeRollback)
	set.HTTP.Observe("GET", "/api/v1/cart/", 200, 3*time.Millisecond)
	set.HTTP.Observe("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "storefront_checkout_submit_total", "outcome", OutcomeIgnored); err != nil || got != 2 {
		t.Fatalf("expected ignored=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_checkout_transitions_total", "to", "payment"); err != nil || got != 1 {
		t.Fatalf("expected one transition, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_shipping_estimates_total", "source", "fallback"); err != nil || got != 1 {
		t.Fatalf("expected fallback=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_coupon_validations_total", "outcome", OutcomeStale); err != nil || got != 1 {
		t.Fatalf("expected stale=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_mailbox_sync_total", "scope", "vendor"); err != nil || got != 1 {
		t.Fatalf("expected vendor sync=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_http_requests_total", "route", "unmatched"); err != nil || got != 1 {
		t.Fatalf("expected unmatched=1, got %f (%v)", got, err)
	}
	if findMetricFamily(mfs, "storefront_shipping_superseded_total") == nil {
		t.Fatal("superseded counter not exported")
	}
}

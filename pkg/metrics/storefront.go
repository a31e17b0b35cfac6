package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Outcome label values shared by the storefront collectors.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeIgnored  = "ignored"
	OutcomeInvalid  = "invalid"
	OutcomeStale    = "stale"
	OutcomeRollback = "rollback"
)

// CheckoutMetrics tracks order submissions and step transitions.
type CheckoutMetrics struct {
	submits     *prometheus.CounterVec
	duration    prometheus.Histogram
	transitions *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	submits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_submit_total",
		Help:      "Order submissions by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkout_submit_duration_seconds",
		Help:      "Latency of the upstream order creation call.",
		Buckets:   prometheus.DefBuckets,
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_transitions_total",
		Help:      "Checkout step transitions.",
	}, []string{"from", "to"})
	reg.MustRegister(submits, duration, transitions)
	return &CheckoutMetrics{submits: submits, duration: duration, transitions: transitions}
}

func (c *CheckoutMetrics) IncSubmit(outcome string) {
	if c == nil || c.submits == nil {
		return
	}
	c.submits.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *CheckoutMetrics) ObserveSubmit(d time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.Observe(d.Seconds())
}

func (c *CheckoutMetrics) IncTransition(from, to string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// ShippingMetrics tracks which path produced each estimate.
type ShippingMetrics struct {
	estimates  *prometheus.CounterVec
	superseded prometheus.Counter
}

func NewShippingMetrics(reg prometheus.Registerer) *ShippingMetrics {
	if reg == nil {
		return &ShippingMetrics{}
	}
	estimates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shipping_estimates_total",
		Help:      "Shipping quotes published by source.",
	}, []string{"source"})
	superseded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shipping_superseded_total",
		Help:      "Estimates discarded because a newer request arrived.",
	})
	reg.MustRegister(estimates, superseded)
	return &ShippingMetrics{estimates: estimates, superseded: superseded}
}

func (s *ShippingMetrics) IncEstimate(source string) {
	if s == nil || s.estimates == nil {
		return
	}
	s.estimates.WithLabelValues(normalizeLabel(source)).Inc()
}

func (s *ShippingMetrics) IncSuperseded() {
	if s == nil || s.superseded == nil {
		return
	}
	s.superseded.Inc()
}

// CouponMetrics tracks validation attempts and invalidations.
type CouponMetrics struct {
	validations   *prometheus.CounterVec
	invalidations prometheus.Counter
}

func NewCouponMetrics(reg prometheus.Registerer) *CouponMetrics {
	if reg == nil {
		return &CouponMetrics{}
	}
	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "coupon_validations_total",
		Help:      "Coupon validations by outcome.",
	}, []string{"outcome"})
	invalidations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "coupon_invalidations_total",
		Help:      "Applied coupons cleared because the cart total changed.",
	})
	reg.MustRegister(validations, invalidations)
	return &CouponMetrics{validations: validations, invalidations: invalidations}
}

func (c *CouponMetrics) IncValidation(outcome string) {
	if c == nil || c.validations == nil {
		return
	}
	c.validations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *CouponMetrics) IncInvalidation() {
	if c == nil || c.invalidations == nil {
		return
	}
	c.invalidations.Inc()
}

// MailboxMetrics tracks background sync of optimistic mailbox mutations.
type MailboxMetrics struct {
	syncs *prometheus.CounterVec
}

func NewMailboxMetrics(reg prometheus.Registerer) *MailboxMetrics {
	if reg == nil {
		return &MailboxMetrics{}
	}
	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mailbox_sync_total",
		Help:      "Remote mailbox mutations by scope, operation and outcome.",
	}, []string{"scope", "op", "outcome"})
	reg.MustRegister(syncs)
	return &MailboxMetrics{syncs: syncs}
}

func (m *MailboxMetrics) IncSync(scope, op, outcome string) {
	if m == nil || m.syncs == nil {
		return
	}
	m.syncs.WithLabelValues(normalizeLabel(scope), normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

// Set bundles every storefront collector.
type Set struct {
	Checkout *CheckoutMetrics
	Shipping *ShippingMetrics
	Coupons  *CouponMetrics
	Mailbox  *MailboxMetrics
	Jobs     *JobMetrics
	HTTP     *HTTPMetrics
}

// NewSet registers all storefront collectors on reg. A nil reg yields no-op collectors.
func NewSet(reg prometheus.Registerer) *Set {
	return &Set{
		Checkout: NewCheckoutMetrics(reg),
		Shipping: NewShippingMetrics(reg),
		Coupons:  NewCouponMetrics(reg),
		Mailbox:  NewMailboxMetrics(reg),
		Jobs:     NewJobMetrics(reg),
		HTTP:     NewHTTPMetrics(reg),
	}
}

package enums

import "slices"

// CheckoutStep is the orchestrator state.
type CheckoutStep string

const (
	CheckoutStepShipping  CheckoutStep = "shipping"
	CheckoutStepPayment   CheckoutStep = "payment"
	CheckoutStepSubmitted CheckoutStep = "submitted"
)

var validCheckoutSteps = []CheckoutStep{
	CheckoutStepShipping,
	CheckoutStepPayment,
	CheckoutStepSubmitted,
}

func (c CheckoutStep) String() string {
	return string(c)
}

func (c CheckoutStep) IsValid() bool {
	return slices.Contains(validCheckoutSteps, c)
}

func ParseCheckoutStep(value string) (CheckoutStep, error) {
	return parse("checkout step", validCheckoutSteps, value)
}

// IsTerminal reports whether no further transitions are allowed from the step.
func (c CheckoutStep) IsTerminal() bool {
	return c == CheckoutStepSubmitted
}

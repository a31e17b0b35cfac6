package enums

import "slices"

// ShippingTier is the delivery speed chosen at checkout.
type ShippingTier string

const (
	ShippingTierStandard ShippingTier = "standard"
	ShippingTierExpress  ShippingTier = "express"
)

var validShippingTiers = []ShippingTier{
	ShippingTierStandard,
	ShippingTierExpress,
}

func (s ShippingTier) String() string {
	return string(s)
}

func (s ShippingTier) IsValid() bool {
	return slices.Contains(validShippingTiers, s)
}

func ParseShippingTier(value string) (ShippingTier, error) {
	return parse("shipping tier", validShippingTiers, value)
}

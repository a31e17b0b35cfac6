package enums

import "slices"

// CartWarningType enumerates the reasons a cart mutation was adjusted or rejected.
type CartWarningType string

const (
	CartWarningTypeLimitedStock CartWarningType = "limited_stock"
	CartWarningTypeOutOfStock   CartWarningType = "out_of_stock"
	CartWarningTypeNotFound     CartWarningType = "not_found"
	CartWarningTypePriceChanged CartWarningType = "price_changed"
	CartWarningTypeUnavailable  CartWarningType = "unavailable"
)

var validCartWarningTypes = []CartWarningType{
	CartWarningTypeLimitedStock,
	CartWarningTypeOutOfStock,
	CartWarningTypeNotFound,
	CartWarningTypePriceChanged,
	CartWarningTypeUnavailable,
}

func (c CartWarningType) String() string {
	return string(c)
}

func (c CartWarningType) IsValid() bool {
	return slices.Contains(validCartWarningTypes, c)
}

func ParseCartWarningType(value string) (CartWarningType, error) {
	return parse("cart warning type", validCartWarningTypes, value)
}

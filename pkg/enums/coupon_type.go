package enums

import "slices"

// CouponType is the adjustment a coupon applies.
type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFixed      CouponType = "fixed"
	CouponTypeFreeShip   CouponType = "freeship"
)

var validCouponTypes = []CouponType{
	CouponTypePercentage,
	CouponTypeFixed,
	CouponTypeFreeShip,
}

func (c CouponType) String() string {
	return string(c)
}

func (c CouponType) IsValid() bool {
	return slices.Contains(validCouponTypes, c)
}

func ParseCouponType(value string) (CouponType, error) {
	return parse("coupon type", validCouponTypes, value)
}

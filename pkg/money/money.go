// Package money holds the decimal helpers shared by pricing, cart, coupon,
// shipping and checkout arithmetic. Amounts are decimal.Decimal in major
// currency units and are rounded to two places at every published boundary.
package money

import (
	"github.com/shopspring/decimal"
)

const Places int32 = 2

var hundred = decimal.NewFromInt(100)

// Round rounds half away from zero to two places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// Percent returns total * pct / 100 with pct clamped to [0,100], rounded.
func Percent(total, pct decimal.Decimal) decimal.Decimal {
	pct = Clamp(pct, decimal.Zero, hundred)
	return Round(total.Mul(pct).Div(hundred))
}

// Line returns unit * quantity.
func Line(unit decimal.Decimal, quantity int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(quantity)))
}

// Sum adds the supplied amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Package money holds the fixed-point currency helpers shared by the order
// and analysis code. Amounts are shopspring decimals kept at cent scale.
package money

import (
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for currency amounts.
const Scale = 2

// Round normalises an amount to cent scale, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// LineTotal is unitPrice × quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Percent returns 100 × part / whole rounded to one decimal place.
// A zero whole yields 0.
func Percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	p := decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(whole))).
		Round(1)
	return p.InexactFloat64()
}

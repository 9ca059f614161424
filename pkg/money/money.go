// Package money holds the rounding and formatting rules for currency values.
package money

import (
	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for currency.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Round rounds half away from zero to two places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Percent returns round(amount × rate / 100).
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate).Div(hundred))
}

// HasCents reports whether d needs no more than two fractional digits,
// which is what the NUMERIC(…,2) columns hold.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(Round(d))
}

// Sum adds the values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// USD formats d as $1234.50, or -$1.00 for negatives.
func USD(d decimal.Decimal) string {
	d = Round(d)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(Places)
	}
	return "$" + d.StringFixed(Places)
}

// PercentString formats a rate as 12.50%.
func PercentString(rate decimal.Decimal) string {
	return rate.StringFixed(Places) + "%"
}

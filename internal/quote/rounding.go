package quote

import "github.com/shopspring/decimal"

// Rounding goes through shopspring/decimal so tick math stays exact; float
// division by small ticks otherwise produces off-by-one-tick prices.

// RoundDownTo floors v to a multiple of step. Non-positive step or value is
// returned unchanged.
func RoundDownTo(v, step float64) float64 {
	if step <= 0 || v <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	s := decimal.NewFromFloat(step)
	return d.Div(s).Floor().Mul(s).InexactFloat64()
}

// RoundUpTo ceils v to a multiple of step.
func RoundUpTo(v, step float64) float64 {
	if step <= 0 || v <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	s := decimal.NewFromFloat(step)
	return d.Div(s).Ceil().Mul(s).InexactFloat64()
}

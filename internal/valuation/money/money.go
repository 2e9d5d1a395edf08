// Package money rounds the DCF engine's float64 currency amounts to
// decimal cents before they cross the persistence boundary. The valuation
// math itself stays in ordinary float64 arithmetic throughout, but two
// float64 runs of the same inputs can differ in their last bit, which
// turns an idempotent re-run into a spurious audit-log diff. Rounding at
// the write boundary with shopspring/decimal removes that noise without
// touching the math.
package money

import "github.com/shopspring/decimal"

// RoundCurrency rounds a currency amount to 2 decimal places, rounding
// halves away from zero, the convention the audit trail expects.
func RoundCurrency(amount float64) float64 {
	rounded, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return rounded
}

// RoundRate rounds a rate (a coupon, yield, or discount rate) to 6 decimal
// places — enough precision to distinguish basis-point spreads without
// carrying float64 noise into stored calculation steps.
func RoundRate(rate float64) float64 {
	rounded, _ := decimal.NewFromFloat(rate).Round(6).Float64()
	return rounded
}

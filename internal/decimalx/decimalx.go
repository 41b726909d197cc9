// Package decimalx centralizes the exact-decimal boundary conversions
// spec §9 requires: monetary and ratio fields persist as
// shopspring/decimal values, while in-memory analytics (returns,
// drawdowns, volatility) are free to use float64 as long as anything
// that crosses back over a persistence boundary round-trips through
// decimal first.
package decimalx

import (
	"math"

	"github.com/shopspring/decimal"
)

// FromFloat converts f to a decimal.Decimal, or returns (zero, false)
// when f is absent in the sense the system cares about: NaN or +/-Inf.
// A numeric attribute absent from the source must remain absent from
// the persisted item rather than being coerced to zero, so callers
// check the bool before storing.
func FromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// FromFloatPtr converts an optional float64 (nil meaning "not present
// in the source") into an optional decimal.Decimal following the same
// rule as FromFloat.
func FromFloatPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d, ok := FromFloat(*f)
	if !ok {
		return nil
	}
	return &d
}

// ToFloat converts a decimal.Decimal back to float64 for analytics
// that need real arithmetic (e.g. Sharpe, drawdown).
func ToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// ToFloatPtr converts an optional decimal.Decimal to an optional float64.
func ToFloatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := ToFloat(*d)
	return &f
}

// IsFinitePositive reports whether f is usable as a price: finite and
// strictly greater than zero. Non-positive or non-finite prices are
// treated as unavailable throughout the backtest core (spec 4.11).
func IsFinitePositive(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}

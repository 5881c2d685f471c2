package models

import (
	"math"

	"github.com/shopspring/decimal"
)

// Precision used for each rounded field.
const (
	PrecisionPower    = 2 // ~10 W
	PrecisionCurrent  = 2 // ~10 mA
	PrecisionPosition = 5 // ~1.1 m
	PrecisionDefault  = 0
)

// RoundFloat rounds x to precision decimal places, half away from zero. Rounding goes
// through the shortest decimal representation so applying it twice is a no-op.
func RoundFloat(x float64, precision int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x == 0 {
		return x
	}
	if precision < 0 {
		precision = 0
	}
	out, _ := decimal.NewFromFloat(x).Round(int32(precision)).Float64()
	return out
}

// Round is RoundFloat for optional values: nil stays nil.
func Round(v *float64, precision int) *float64 {
	if v == nil {
		return nil
	}
	return Float(RoundFloat(*v, precision))
}

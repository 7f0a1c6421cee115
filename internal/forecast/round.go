package forecast

import (
	"math"

	"github.com/shopspring/decimal"
)

// GuidancePrecision is the number of decimals kept for aggregate guidance.
const GuidancePrecision = 3

// Round3 rounds half away from zero to GuidancePrecision decimals.
// Non-finite input yields 0.
func Round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	rounded, _ := decimal.NewFromFloat(v).Round(GuidancePrecision).Float64()
	return rounded
}

func ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	r := numerator / denominator
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

package utils

import (
	"math"
)

// IsFinite は NaN と ±Inf を除外する。
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

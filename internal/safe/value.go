// Package safe provides overflow-aware numeric conversions.
package safe

// ClampInt64 clamps val to the inclusive range [lo, hi].
// Returns the clamped value and a boolean indicating whether clamping occurred.
func ClampInt64(val, lo, hi int64) (int64, bool) {
	if val < lo {
		return lo, true
	}
	if val > hi {
		return hi, true
	}
	return val, false
}

package aggregate

import "math"

// MaxNormalize divides each value by the maximum of the slice. NaN entries are
// skipped when locating the maximum and stay NaN. A maximum of zero (or a slice
// with no finite values) divides by one, so all-zero input comes back as zeros.
func MaxNormalize(values []float64) []float64 {
	out := make([]float64, len(values))
	divisor, ok := Max(values)
	if !ok || divisor == 0 {
		divisor = 1
	}
	for i, v := range values {
		out[i] = v / divisor
	}
	return out
}

// Max returns the largest non-NaN value. ok is false when there is none.
func Max(values []float64) (float64, bool) {
	var (
		best float64
		ok   bool
	)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if !ok || v > best {
			best = v
			ok = true
		}
	}
	return best, ok
}

// MaxAbs returns the largest absolute non-NaN value, or zero.
func MaxAbs(values []float64) float64 {
	var out float64
	for _, v := range values {
		if a := math.Abs(v); a > out {
			out = a
		}
	}
	return out
}

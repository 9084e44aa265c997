package mat

import "math"

// Vector helpers shared by the solver loops. All operate on plain
// []float64 and never allocate unless they return a new slice.

// Sum returns Σ x[i].
func Sum(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s
}

// L1Diff returns Σ |x[i] - y[i]|.
func L1Diff(x, y []float64) float64 {
	s := 0.0
	for i, v := range x {
		s += math.Abs(v - y[i])
	}
	return s
}

// Max returns the largest element, or 0 for an empty slice.
func Max(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := x[0]
	for _, v := range x[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// MaxAbs returns the largest absolute value, or 0 for an empty slice.
func MaxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// AllFinite reports whether every element is finite (no NaN/Inf).
func AllFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LogSumExp computes log Σ exp(x[i]) with the usual max-shift.
// Returns -Inf for an all -Inf input.
func LogSumExp(x []float64) float64 {
	m := math.Inf(-1)
	for _, v := range x {
		if v > m {
			m = v
		}
	}
	if math.IsInf(m, -1) {
		return m
	}
	s := 0.0
	for _, v := range x {
		s += math.Exp(v - m)
	}
	return m + math.Log(s)
}

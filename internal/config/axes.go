package config

import "slices"

// Names of the two axes every run must sweep.
const (
	AxisReactionCoordinate = "ReactionCoordinate"
	AxisTemperature        = "Temperature"
)

// Axis is one named dimension of the sweep grid.
type Axis struct {
	Name   string
	Values []float64
}

// ExpandAxis interprets an axis specification. Three values (lo, hi, n) with
// lo < hi and 1 < n < 20 expand to n evenly spaced points from lo to hi; any
// other specification is returned as a literal list.
func ExpandAxis(spec []float64) []float64 {
	if IsGridSpec(spec) {
		return Linspace(spec[0], spec[1], int(spec[2]))
	}
	return slices.Clone(spec)
}

// IsGridSpec reports whether spec would be expanded by ExpandAxis.
func IsGridSpec(spec []float64) bool {
	if len(spec) != 3 {
		return false
	}
	lo, hi, n := spec[0], spec[1], int(spec[2])
	return lo < hi && n > 1 && n < 20
}

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

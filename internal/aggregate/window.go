package aggregate

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"ephyscore/pkg/ephys"
)

// HalfOpenWindow returns the indices i with start <= ts[i] < end.
func HalfOpenWindow(ts []float64, start, end float64) []int {
	var idx []int
	for i, t := range ts {
		if t >= start && t < end {
			idx = append(idx, i)
		}
	}
	return idx
}

// ClosedWindow returns the bin indices whose right edge lies in [start, end].
// The result indexes the rate array (len(edges)-1 bins).
func ClosedWindow(edges []float64, start, end float64) []int {
	var idx []int
	for i := 1; i < len(edges); i++ {
		if edges[i] >= start && edges[i] <= end {
			idx = append(idx, i-1)
		}
	}
	return idx
}

// Pick gathers values at the given indices.
func Pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

// WindowMeans averages each row of m over the half-open window [start, end)
// of the time axis ts.
func WindowMeans(m Matrix, ts []float64, start, end float64) ([]float64, error) {
	if err := m.checkRect("window"); err != nil {
		return nil, err
	}
	if _, cols := m.Dims(); len(m) > 0 && cols != len(ts) {
		return nil, fmt.Errorf("window means: %w: %d columns for %d time stamps", ephys.ErrShapeMismatch, cols, len(ts))
	}
	idx := HalfOpenWindow(ts, start, end)
	if len(idx) == 0 {
		return nil, ephys.NoData("no time stamps in [%g, %g)", start, end)
	}
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = stat.Mean(Pick(row, idx), nil)
	}
	return out, nil
}

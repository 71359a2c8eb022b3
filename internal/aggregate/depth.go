// Package aggregate holds the array arithmetic that feeds every figure: depth
// correction, max-normalization, hemisphere resolution, selectivity partitions,
// stacked PSTH differences and time windowing. Functions are pure and never
// touch a store.
package aggregate

import (
	"fmt"
	"slices"

	"ephyscore/pkg/ephys"
)

// CorrectDepth adds the insertion depth offset to each y-position. Missing or
// non-finite offsets count as zero.
func CorrectDepth(y, offsets []float64) ([]float64, error) {
	if len(y) != len(offsets) {
		return nil, fmt.Errorf("correct depth: %w: %d positions, %d offsets", ephys.ErrShapeMismatch, len(y), len(offsets))
	}
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] + ephys.FiniteOrZero(offsets[i])
	}
	return out, nil
}

// CorrectedDepths returns the corrected y-position of each record.
func CorrectedDepths(units []ephys.UnitRecord) []float64 {
	out := make([]float64, len(units))
	for i, u := range units {
		out[i] = u.CorrectedY()
	}
	return out
}

// SortByDepthDesc returns a copy of units ordered deepest corrected y first.
// The sort is stable for equal keys.
func SortByDepthDesc(units []ephys.UnitRecord) []ephys.UnitRecord {
	out := slices.Clone(units)
	slices.SortStableFunc(out, ephys.CompareDepthDesc)
	return out
}

// Keys extracts unit keys preserving order.
func Keys(units []ephys.UnitRecord) []ephys.UnitKey {
	out := make([]ephys.UnitKey, len(units))
	for i, u := range units {
		out[i] = u.Key
	}
	return out
}

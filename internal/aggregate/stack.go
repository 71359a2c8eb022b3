package aggregate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"ephyscore/pkg/ephys"
)

// Matrix is a row-major PSTH matrix; rows are units (or trials), columns bins.
type Matrix [][]float64

// Dims returns the row and column counts. A ragged matrix reports the width
// of its first row.
func (m Matrix) Dims() (rows, cols int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

func (m Matrix) checkRect(name string) error {
	_, cols := m.Dims()
	for i, row := range m {
		if len(row) != cols {
			return fmt.Errorf("%s row %d: %w: %d columns, want %d", name, i, ephys.ErrShapeMismatch, len(row), cols)
		}
	}
	return nil
}

// PSTHMatrix stacks PSTH rates into a matrix in series order and returns the
// shared bin edges. All series must validate and share the same bin count.
func PSTHMatrix(series []ephys.PSTHSeries) (Matrix, []float64, error) {
	if len(series) == 0 {
		return nil, nil, nil
	}
	m := make(Matrix, len(series))
	edges := series[0].Edges
	for i, s := range series {
		if err := s.Validate(); err != nil {
			return nil, nil, err
		}
		if len(s.Edges) != len(edges) {
			return nil, nil, fmt.Errorf("psth %s: %w: %d bins, want %d", s.Key, ephys.ErrShapeMismatch, len(s.Rates), len(edges)-1)
		}
		if !floats.Equal(s.Edges, edges) {
			return nil, nil, fmt.Errorf("psth %s: %w: bin edges differ from %s", s.Key, ephys.ErrShapeMismatch, series[0].Key)
		}
		m[i] = append([]float64(nil), s.Rates...)
	}
	return m, append([]float64(nil), edges...), nil
}

// PairByUnit lines b up with a row for row, in the order of a. Both sides
// must hold the same units; a unit present on one side only is a shape
// mismatch naming the unpaired units.
func PairByUnit(a, b []ephys.PSTHSeries) ([]ephys.PSTHSeries, []ephys.PSTHSeries, error) {
	idx := make(map[ephys.UnitKey]int, len(b))
	for i, s := range b {
		idx[s.Key] = i
	}
	var (
		onlyA  []string
		paired = make(map[ephys.UnitKey]struct{}, len(a))
		outA   = make([]ephys.PSTHSeries, 0, len(a))
		outB   = make([]ephys.PSTHSeries, 0, len(a))
	)
	for _, s := range a {
		j, ok := idx[s.Key]
		if !ok {
			onlyA = append(onlyA, s.Key.String())
			continue
		}
		paired[s.Key] = struct{}{}
		outA = append(outA, s)
		outB = append(outB, b[j])
	}
	var onlyB []string
	for _, s := range b {
		if _, ok := paired[s.Key]; !ok {
			onlyB = append(onlyB, s.Key.String())
		}
	}
	if len(onlyA) > 0 || len(onlyB) > 0 {
		return nil, nil, fmt.Errorf("pair psth: %w: unpaired units %v (first side) %v (second side)", ephys.ErrShapeMismatch, onlyA, onlyB)
	}
	return outA, outB, nil
}

// DiffOptions tunes StackedDifference.
type DiffOptions struct {
	// Flip negates the result so contra-preferring rows share a colour with
	// ipsi-preferring rows of the opposite panel.
	Flip bool
	// NormalizeRows scales each row by its largest absolute value, leaving
	// all-zero rows untouched.
	NormalizeRows bool
	// Smooth is a centred moving-mean window in bins; values below 2 disable it.
	Smooth int
}

// StackedDifference returns a - b row by row. Row order is preserved.
func StackedDifference(a, b Matrix, opts DiffOptions) (Matrix, error) {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		return nil, fmt.Errorf("stacked difference: %w: %dx%d vs %dx%d", ephys.ErrShapeMismatch, ra, ca, rb, cb)
	}
	if err := a.checkRect("minuend"); err != nil {
		return nil, err
	}
	if err := b.checkRect("subtrahend"); err != nil {
		return nil, err
	}
	out := make(Matrix, ra)
	for i := range a {
		row := make([]float64, ca)
		floats.SubTo(row, a[i], b[i])
		if opts.NormalizeRows {
			if m := MaxAbs(row); m > 0 {
				floats.Scale(1/m, row)
			}
		}
		if opts.Flip {
			floats.Scale(-1, row)
		}
		if opts.Smooth > 1 {
			row = MovingMean(row, opts.Smooth)
		}
		out[i] = row
	}
	return out, nil
}

// VStack concatenates matrices along the row axis in argument order. Empty
// parts are skipped; the rest must agree on column count.
func VStack(parts ...Matrix) (Matrix, error) {
	var (
		out  Matrix
		cols = -1
	)
	for i, p := range parts {
		rows, c := p.Dims()
		if rows == 0 {
			continue
		}
		if cols >= 0 && c != cols {
			return nil, fmt.Errorf("vstack part %d: %w: %d columns, want %d", i, ephys.ErrShapeMismatch, c, cols)
		}
		cols = c
		for _, row := range p {
			out = append(out, append([]float64(nil), row...))
		}
	}
	return out, nil
}

// MovingMean smooths values with a centred window, shrinking the window at the
// edges so the output length matches the input.
func MovingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 2 {
		copy(out, values)
		return out
	}
	before := (window - 1) / 2
	after := window - 1 - before
	for i := range values {
		lo := max(0, i-before)
		hi := min(len(values), i+after+1)
		out[i] = floats.Sum(values[lo:hi]) / float64(hi-lo)
	}
	return out
}

package aggregate

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"ephyscore/pkg/ephys"
)

func ptr(v float64) *float64 { return &v }

func key(u int) ephys.UnitKey { return ephys.UnitKey{InsertionID: 1, Unit: u} }

func TestCorrectDepthTreatsMissingOffsetsAsZero(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 50; trial++ {
		n := rng.IntN(20) + 1
		y := make([]float64, n)
		offsets := make([]float64, n)
		for i := range y {
			y[i] = rng.Float64() * 100
			offsets[i] = math.NaN()
		}
		got, err := CorrectDepth(y, offsets)
		if err != nil {
			t.Fatalf("correct depth: %v", err)
		}
		if !slices.Equal(got, y) {
			t.Fatalf("expected raw y %v, got %v", y, got)
		}
	}
}

func TestCorrectDepthMixedOffsets(t *testing.T) {
	got, err := CorrectDepth([]float64{10, 30, 20, 40}, []float64{0, math.NaN(), 5, math.Inf(-1)})
	if err != nil {
		t.Fatalf("correct depth: %v", err)
	}
	want := []float64{10, 30, 25, 40}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, err := CorrectDepth([]float64{1}, nil); !errors.Is(err, ephys.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestMaxNormalizeScalesToUnitMaximum(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for trial := 0; trial < 100; trial++ {
		n := rng.IntN(30) + 1
		values := make([]float64, n)
		for i := range values {
			values[i] = rng.Float64() * 50
		}
		values[rng.IntN(n)] = 1 + rng.Float64()
		got := MaxNormalize(values)
		top, _ := Max(values)
		for i := range values {
			if got[i] != values[i]/top {
				t.Fatalf("element %d: expected %v, got %v", i, values[i]/top, got[i])
			}
		}
		if m, _ := Max(got); m != 1 {
			t.Fatalf("expected max 1, got %v", m)
		}
	}
}

func TestMaxNormalizeDegenerateInput(t *testing.T) {
	if got := MaxNormalize(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
	zeros := MaxNormalize([]float64{0, 0, 0})
	if !slices.Equal(zeros, []float64{0, 0, 0}) {
		t.Fatalf("expected zeros, got %v", zeros)
	}
	withNaN := MaxNormalize([]float64{math.NaN(), 2, 4})
	if !math.IsNaN(withNaN[0]) || withNaN[1] != 0.5 || withNaN[2] != 1 {
		t.Fatalf("unexpected NaN handling: %v", withNaN)
	}
	allNaN := MaxNormalize([]float64{math.NaN()})
	if !math.IsNaN(allNaN[0]) {
		t.Fatalf("expected NaN preserved, got %v", allNaN)
	}
}

func TestResolveHemisphere(t *testing.T) {
	left := ephys.UnitRecord{Unit: ephys.Unit{Key: key(1)}, Hemisphere: ephys.HemisphereLeft}
	right := ephys.UnitRecord{Unit: ephys.Unit{Key: key(2)}, Hemisphere: ephys.HemisphereRight}
	odd := ephys.UnitRecord{Unit: ephys.Unit{Key: key(3)}, Hemisphere: "middle"}

	hemi, err := ResolveHemisphere([]ephys.UnitRecord{left, left})
	if err != nil || hemi != ephys.HemisphereLeft {
		t.Fatalf("expected left, got %q (%v)", hemi, err)
	}
	if _, err := ResolveHemisphere(nil); !errors.Is(err, ephys.ErrNoData) {
		t.Fatalf("expected no data, got %v", err)
	}
	if _, err := ResolveHemisphere([]ephys.UnitRecord{left, right}); !errors.Is(err, ephys.ErrMixedHemisphere) {
		t.Fatalf("expected mixed hemisphere error, got %v", err)
	}
	if _, err := ResolveHemisphere([]ephys.UnitRecord{odd}); !errors.Is(err, ephys.ErrInvalid) {
		t.Fatalf("expected invalid hemisphere error, got %v", err)
	}
}

func TestHitConditions(t *testing.T) {
	l, err := HitConditions(ephys.HemisphereLeft)
	if err != nil || l.Ipsi != HitLeft || l.Contra != HitRight {
		t.Fatalf("left: unexpected sides %+v (%v)", l, err)
	}
	r, err := HitConditions(ephys.HemisphereRight)
	if err != nil || r.Ipsi != HitRight || r.Contra != HitLeft {
		t.Fatalf("right: unexpected sides %+v (%v)", r, err)
	}
	if _, err := HitConditions(""); !errors.Is(err, ephys.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestPartitionIsDisjointAndCovering(t *testing.T) {
	labels := []ephys.Selectivity{ephys.NonSelective, ephys.IpsiSelective, ephys.ContraSelective}
	rng := rand.New(rand.NewPCG(42, 1))
	for trial := 0; trial < 200; trial++ {
		n := rng.IntN(12)
		units := make([]ephys.UnitKey, n)
		var records []ephys.PeriodSelectivity
		for i := range units {
			units[i] = key(i)
			for _, p := range ephys.TaskPeriods {
				if rng.IntN(4) == 0 {
					continue // missing record
				}
				records = append(records, ephys.PeriodSelectivity{Key: units[i], Period: p, Selectivity: labels[rng.IntN(3)]})
			}
		}
		part := PartitionBySelectivity(units, records)

		seen := map[ephys.UnitKey]int{}
		for _, g := range append(part.Groups(), part.Excluded) {
			for _, k := range g {
				seen[k]++
			}
		}
		if len(seen) != n {
			t.Fatalf("trial %d: covered %d of %d units", trial, len(seen), n)
		}
		for k, c := range seen {
			if c != 1 {
				t.Fatalf("trial %d: unit %s placed %d times", trial, k, c)
			}
		}
		for gi, g := range part.Groups() {
			if !isSubsequence(g, units) {
				t.Fatalf("trial %d: group %d lost input order: %v", trial, gi, g)
			}
		}
	}
}

func TestPartitionCoversAllSelectiveUnits(t *testing.T) {
	units := []ephys.UnitKey{key(1), key(2), key(3)}
	records := []ephys.PeriodSelectivity{
		{Key: key(1), Period: ephys.PeriodSample, Selectivity: ephys.ContraSelective},
		{Key: key(1), Period: ephys.PeriodResponse, Selectivity: ephys.NonSelective},
		{Key: key(2), Period: ephys.PeriodDelay, Selectivity: ephys.IpsiSelective},
		{Key: key(2), Period: ephys.PeriodResponse, Selectivity: ephys.IpsiSelective},
		{Key: key(3), Period: ephys.PeriodResponse, Selectivity: ephys.ContraSelective},
		{Key: key(9), Period: ephys.PeriodResponse, Selectivity: ephys.ContraSelective},
	}
	part := PartitionBySelectivity(units, records)
	if !slices.Equal(part.SampleDelay, []ephys.UnitKey{key(1)}) ||
		!slices.Equal(part.SampleDelayResponse, []ephys.UnitKey{key(2)}) ||
		!slices.Equal(part.Response, []ephys.UnitKey{key(3)}) ||
		len(part.Excluded) != 0 {
		t.Fatalf("unexpected partition %+v", part)
	}
	if part.Len() != len(units) {
		t.Fatalf("expected the three groups to cover all selective units")
	}
}

func TestPartitionOrderIsStableAcrossCalls(t *testing.T) {
	units := []ephys.UnitKey{key(5), key(3), key(8), key(1)}
	records := []ephys.PeriodSelectivity{
		{Key: key(5), Period: ephys.PeriodResponse, Selectivity: ephys.IpsiSelective},
		{Key: key(3), Period: ephys.PeriodSample, Selectivity: ephys.IpsiSelective},
		{Key: key(8), Period: ephys.PeriodSample, Selectivity: ephys.ContraSelective},
		{Key: key(1), Period: ephys.PeriodResponse, Selectivity: ephys.ContraSelective},
	}
	first := PartitionBySelectivity(units, records).Groups()
	for i := 0; i < 10; i++ {
		again := PartitionBySelectivity(units, records).Groups()
		for g := range first {
			if !slices.Equal(first[g], again[g]) {
				t.Fatalf("group %d changed between calls: %v vs %v", g, first[g], again[g])
			}
		}
	}
	if !slices.Equal(first[0], []ephys.UnitKey{key(3), key(8)}) || !slices.Equal(first[2], []ephys.UnitKey{key(5), key(1)}) {
		t.Fatalf("unexpected group order %v", first)
	}
}

func TestSplitBySelectivity(t *testing.T) {
	units := []ephys.UnitKey{key(1), key(2), key(3), key(4)}
	labels := []ephys.UnitSelectivity{
		{Key: key(4), Selectivity: ephys.ContraSelective},
		{Key: key(1), Selectivity: ephys.ContraSelective},
		{Key: key(2), Selectivity: ephys.IpsiSelective},
		{Key: key(3), Selectivity: ephys.NonSelective},
	}
	split := SplitBySelectivity(units, labels)
	if !slices.Equal(split.Contra, []ephys.UnitKey{key(1), key(4)}) || !slices.Equal(split.Ipsi, []ephys.UnitKey{key(2)}) {
		t.Fatalf("unexpected split %+v", split)
	}
}

func TestStackedDifference(t *testing.T) {
	a := Matrix{{3, 4, 5}, {1, 1, 1}}
	b := Matrix{{1, 1, 1}, {1, 1, 1}}

	got, err := StackedDifference(a, b, DiffOptions{})
	if err != nil {
		t.Fatalf("difference: %v", err)
	}
	if !slices.Equal(got[0], []float64{2, 3, 4}) || !slices.Equal(got[1], []float64{0, 0, 0}) {
		t.Fatalf("unexpected difference %v", got)
	}

	flipped, err := StackedDifference(a, b, DiffOptions{Flip: true, NormalizeRows: true})
	if err != nil {
		t.Fatalf("difference: %v", err)
	}
	if !slices.Equal(flipped[0], []float64{-0.5, -0.75, -1}) || !slices.Equal(flipped[1], []float64{0, 0, 0}) {
		t.Fatalf("unexpected flipped difference %v", flipped)
	}

	if _, err := StackedDifference(a, Matrix{{1, 1, 1}}, DiffOptions{}); !errors.Is(err, ephys.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
	if _, err := StackedDifference(Matrix{{1, 2}, {1}}, Matrix{{1, 2}, {1, 2}}, DiffOptions{}); !errors.Is(err, ephys.ErrShapeMismatch) {
		t.Fatalf("expected ragged shape mismatch, got %v", err)
	}
}

func TestVStackKeepsPartitionOrder(t *testing.T) {
	sd := Matrix{{1, 1}, {2, 2}}
	sdr := Matrix{{3, 3}}
	resp := Matrix{{4, 4}, {5, 5}, {6, 6}}
	got, err := VStack(sd, nil, sdr, resp)
	if err != nil {
		t.Fatalf("vstack: %v", err)
	}
	if len(got) != len(sd)+len(sdr)+len(resp) {
		t.Fatalf("expected %d rows, got %d", len(sd)+len(sdr)+len(resp), len(got))
	}
	for i, row := range got {
		if row[0] != float64(i+1) {
			t.Fatalf("row %d out of order: %v", i, row)
		}
	}
	if _, err := VStack(sd, Matrix{{1, 2, 3}}); !errors.Is(err, ephys.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestMovingMean(t *testing.T) {
	got := MovingMean([]float64{0, 3, 6, 9}, 3)
	want := []float64{1.5, 3, 6, 7.5}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := MovingMean([]float64{1, 2}, 1); !slices.Equal(got, []float64{1, 2}) {
		t.Fatalf("window 1 should copy input, got %v", got)
	}
}

func TestPSTHMatrixAndPairing(t *testing.T) {
	edges := []float64{0, 1, 2}
	a := []ephys.PSTHSeries{
		{Key: key(1), Edges: edges, Rates: []float64{1, 2}},
		{Key: key(2), Edges: edges, Rates: []float64{3, 4}},
		{Key: key(3), Edges: edges, Rates: []float64{5, 6}},
	}
	b := []ephys.PSTHSeries{
		{Key: key(3), Edges: edges, Rates: []float64{0, 0}},
		{Key: key(1), Edges: edges, Rates: []float64{1, 1}},
	}
	if _, _, err := PairByUnit(a, b); !errors.Is(err, ephys.ErrShapeMismatch) || !strings.Contains(err.Error(), key(2).String()) {
		t.Fatalf("expected shape mismatch naming %s, got %v", key(2), err)
	}
	if _, _, err := PairByUnit(b, a); !errors.Is(err, ephys.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch for extra series on the second side, got %v", err)
	}
	pa, pb, err := PairByUnit(a[:1:1], b[1:])
	if err != nil || len(pa) != 1 || pb[0].Key != key(1) {
		t.Fatalf("unexpected single pairing %v / %v: %v", pa, pb, err)
	}
	pa, pb, err = PairByUnit([]ephys.PSTHSeries{a[2], a[0]}, b)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	if len(pa) != 2 || pa[0].Key != key(3) || pb[0].Key != key(3) || pa[1].Key != key(1) || pb[1].Key != key(1) {
		t.Fatalf("unexpected pairing %v / %v", pa, pb)
	}
	m, gotEdges, err := PSTHMatrix(pa)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	if rows, cols := m.Dims(); rows != 2 || cols != 2 || !slices.Equal(gotEdges, edges) {
		t.Fatalf("unexpected matrix %v edges %v", m, gotEdges)
	}
	uneven := append(slices.Clone(pa), ephys.PSTHSeries{Key: key(4), Edges: []float64{0, 1, 2, 3}, Rates: []float64{1, 1, 1}})
	if _, _, err := PSTHMatrix(uneven); !errors.Is(err, ephys.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
	shifted := append(slices.Clone(pa), ephys.PSTHSeries{Key: key(5), Edges: []float64{0.5, 1.5, 2.5}, Rates: []float64{1, 1}})
	if _, _, err := PSTHMatrix(shifted); !errors.Is(err, ephys.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch for misaligned edges, got %v", err)
	}
}

func TestHalfOpenWindow(t *testing.T) {
	got := HalfOpenWindow([]float64{-1, 0, 1, 2}, 0, 2)
	if !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("expected [1 2], got %v", got)
	}
}

func TestClosedWindowUsesRightEdges(t *testing.T) {
	edges := []float64{-1, -0.5, 0, 0.5, 1}
	got := ClosedWindow(edges, 0, 0.5)
	if !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("expected [1 2], got %v", got)
	}
}

func TestWindowMeans(t *testing.T) {
	ts := []float64{-1, 0, 1, 2}
	m := Matrix{{9, 1, 3, 9}, {0, 2, 2, 0}}
	got, err := WindowMeans(m, ts, 0, 2)
	if err != nil {
		t.Fatalf("window means: %v", err)
	}
	if !slices.Equal(got, []float64{2, 2}) {
		t.Fatalf("expected [2 2], got %v", got)
	}
	if _, err := WindowMeans(m, ts, 5, 6); !errors.Is(err, ephys.ErrNoData) {
		t.Fatalf("expected no data, got %v", err)
	}
	if _, err := WindowMeans(m, ts[:3], 0, 2); !errors.Is(err, ephys.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestExtractOneStimDuration(t *testing.T) {
	tests := []struct {
		name      string
		in        []float64
		want      float64
		defaulted bool
		ambiguous bool
	}{
		{"none", nil, DefaultStimDuration, true, false},
		{"zeros and nan", []float64{0, math.NaN()}, DefaultStimDuration, true, false},
		{"single", []float64{0.8, 0.8}, 0.8, false, false},
		{"shortest wins", []float64{1.2, 0.8, 1.2}, 0.8, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractOneStimDuration(tc.in, DefaultStimDuration)
			if got.Value != tc.want || got.Defaulted != tc.defaulted || got.Ambiguous() != tc.ambiguous {
				t.Fatalf("unexpected result %+v", got)
			}
		})
	}
}

func TestPhotostimTiming(t *testing.T) {
	events := []ephys.PhotostimEvent{
		{Trial: 1, Onset: -1.0, Duration: 1.2},
		{Trial: 2, Onset: -1.4, Duration: 0.8},
		{Trial: 3, Onset: -1.2, Duration: 0.8},
	}
	onset, dur, err := PhotostimTiming(events, DefaultStimDuration)
	if err != nil {
		t.Fatalf("timing: %v", err)
	}
	if onset != -1.4 || dur.Value != 0.8 {
		t.Fatalf("unexpected timing onset=%v dur=%+v", onset, dur)
	}
	if _, _, err := PhotostimTiming(nil, DefaultStimDuration); !errors.Is(err, ephys.ErrNoData) {
		t.Fatalf("expected no data, got %v", err)
	}
}

func TestFiringRateChange(t *testing.T) {
	got, err := FiringRateChange([]float64{2, 2}, []float64{3, 3})
	if err != nil || got != 0.5 {
		t.Fatalf("expected 0.5, got %v (%v)", got, err)
	}
	zeroBase, err := FiringRateChange([]float64{0}, []float64{4})
	if err != nil || zeroBase != 4 {
		t.Fatalf("expected 4 for zero baseline, got %v (%v)", zeroBase, err)
	}
	if _, err := FiringRateChange(nil, []float64{1}); !errors.Is(err, ephys.ErrNoData) {
		t.Fatalf("expected no data, got %v", err)
	}
}

func TestMeanSEM(t *testing.T) {
	mean, sem, err := MeanSEM(Matrix{{1, 2}, {3, 2}})
	if err != nil {
		t.Fatalf("mean sem: %v", err)
	}
	if !slices.Equal(mean, []float64{2, 2}) {
		t.Fatalf("unexpected mean %v", mean)
	}
	if math.Abs(sem[0]-1) > 1e-12 || sem[1] != 0 {
		t.Fatalf("unexpected sem %v", sem)
	}
	_, single, err := MeanSEM(Matrix{{5, 6}})
	if err != nil || !slices.Equal(single, []float64{0, 0}) {
		t.Fatalf("single row should have zero sem, got %v (%v)", single, err)
	}
	if _, _, err := MeanSEM(nil); !errors.Is(err, ephys.ErrNoData) {
		t.Fatalf("expected no data, got %v", err)
	}
	if top := UpperBound(mean, sem); math.Abs(top-3) > 1e-12 {
		t.Fatalf("expected upper bound 3, got %v", top)
	}
}

func TestConditionNameFromKeywords(t *testing.T) {
	names := []string{
		"all_noearlylick_both_alm_stim_right",
		"all_noearlylick_both_alm_stim_left",
		"all_noearlylick_nostim_left",
		"all_noearlylick_both_alm_nostim",
	}
	got := ConditionNameFromKeywords(names, "both_alm", "_stim_left")
	if !slices.Equal(got, []string{"all_noearlylick_both_alm_stim_left"}) {
		t.Fatalf("unexpected match %v", got)
	}
	nostim := ConditionNameFromKeywords(names, "_nostim", "_left")
	if !slices.Equal(nostim, []string{"all_noearlylick_nostim_left"}) {
		t.Fatalf("unexpected nostim match %v", nostim)
	}
	if got := ConditionNameFromKeywords(names, "_stim", "_stim"); len(got) != 0 {
		t.Fatalf("repeated keyword must appear twice, got %v", got)
	}
	if Percent(1, 4) != 25 || Percent(1, 0) != 0 {
		t.Fatalf("unexpected percent arithmetic")
	}
}

// Four units: two contra-selective (y 10, 30) and two ipsi-selective (y 20, 40)
// with depth offsets [0, NaN, 5, 0].
func TestDepthCorrectionThenPartitionScenario(t *testing.T) {
	units := []ephys.UnitRecord{
		{Unit: ephys.Unit{Key: key(1), PosY: 10}, DVLocation: ptr(0)},
		{Unit: ephys.Unit{Key: key(2), PosY: 30}, DVLocation: ptr(math.NaN())},
		{Unit: ephys.Unit{Key: key(3), PosY: 20}, DVLocation: ptr(5)},
		{Unit: ephys.Unit{Key: key(4), PosY: 40}, DVLocation: ptr(0)},
	}
	if got := CorrectedDepths(units); !slices.Equal(got, []float64{10, 30, 25, 40}) {
		t.Fatalf("unexpected corrected depths %v", got)
	}
	labels := []ephys.UnitSelectivity{
		{Key: key(1), Selectivity: ephys.ContraSelective},
		{Key: key(2), Selectivity: ephys.ContraSelective},
		{Key: key(3), Selectivity: ephys.IpsiSelective},
		{Key: key(4), Selectivity: ephys.IpsiSelective},
	}
	split := SplitBySelectivity(Keys(SortByDepthDesc(units)), labels)
	if !slices.Equal(split.Contra, []ephys.UnitKey{key(2), key(1)}) {
		t.Fatalf("contra group out of depth order: %v", split.Contra)
	}
	if !slices.Equal(split.Ipsi, []ephys.UnitKey{key(4), key(3)}) {
		t.Fatalf("ipsi group out of depth order: %v", split.Ipsi)
	}
}

func isSubsequence(sub, full []ephys.UnitKey) bool {
	i := 0
	for _, k := range full {
		if i < len(sub) && sub[i] == k {
			i++
		}
	}
	return i == len(sub)
}

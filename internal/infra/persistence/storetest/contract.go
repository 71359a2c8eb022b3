package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"

	"ephyscore/pkg/ephys"
)

// Backend is a store that can be seeded.
type Backend interface {
	ephys.Store
	ephys.Importer
}

// Seeded imports the fixture into b and fails the test on error.
func Seeded(t testing.TB, b Backend) Backend {
	t.Helper()
	if err := b.Import(context.Background(), Snapshot()); err != nil {
		t.Fatalf("import fixture: %v", err)
	}
	return b
}

// RunContract exercises every Store operation against a fresh backend from open.
func RunContract(t *testing.T, open func(t *testing.T) Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("units ordered by corrected depth", func(t *testing.T) {
		s := Seeded(t, open(t))
		units, err := s.Units(ctx, ephys.Insertion(LeftInsertion))
		if err != nil {
			t.Fatalf("units: %v", err)
		}
		got := unitIDs(units)
		if want := []int{4, 2, 3, 1}; !slices.Equal(got, want) {
			t.Fatalf("expected unit order %v, got %v", want, got)
		}
		for _, u := range units {
			if u.Hemisphere != ephys.HemisphereLeft {
				t.Fatalf("unit %s: expected left hemisphere, got %q", u.Key, u.Hemisphere)
			}
			if u.CorrectedY() != u.PosY+5 {
				t.Fatalf("unit %s: expected offset 5, got corrected %v for y %v", u.Key, u.CorrectedY(), u.PosY)
			}
		}
	})

	t.Run("good units drop catch-all quality", func(t *testing.T) {
		s := Seeded(t, open(t))
		units, err := s.Units(ctx, ephys.Insertion(LeftInsertion).Good())
		if err != nil {
			t.Fatalf("units: %v", err)
		}
		if got := unitIDs(units); !slices.Equal(got, []int{4, 2, 1}) {
			t.Fatalf("unexpected good units %v", got)
		}
	})

	t.Run("explicit empty unit list selects nothing", func(t *testing.T) {
		s := Seeded(t, open(t))
		units, err := s.Units(ctx, ephys.UnitFilter{}.WithUnits(nil))
		if err != nil {
			t.Fatalf("units: %v", err)
		}
		if len(units) != 0 {
			t.Fatalf("expected no units, got %d", len(units))
		}
		all, err := s.Units(ctx, ephys.UnitFilter{})
		if err != nil {
			t.Fatalf("units: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("expected all 5 units, got %d", len(all))
		}
	})

	t.Run("missing insertion offset reads as zero", func(t *testing.T) {
		s := Seeded(t, open(t))
		units, err := s.Units(ctx, ephys.Insertion(RightInsertion))
		if err != nil {
			t.Fatalf("units: %v", err)
		}
		if len(units) != 1 || units[0].DVLocation != nil || units[0].CorrectedY() != 250 {
			t.Fatalf("unexpected right insertion units %+v", units)
		}
	})

	t.Run("period selectivity", func(t *testing.T) {
		s := Seeded(t, open(t))
		recs, err := s.PeriodSelectivity(ctx, ephys.SelectivityQuery{
			Units:         ephys.Insertion(LeftInsertion),
			ExcludeLabels: []ephys.Selectivity{ephys.NonSelective},
		})
		if err != nil {
			t.Fatalf("period selectivity: %v", err)
		}
		type row struct {
			unit   int
			period ephys.Period
		}
		var got []row
		for _, r := range recs {
			got = append(got, row{r.Key.Unit, r.Period})
		}
		want := []row{{2, ephys.PeriodDelay}, {2, ephys.PeriodResponse}, {3, ephys.PeriodResponse}, {1, ephys.PeriodSample}}
		if !slices.Equal(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		sample, err := s.PeriodSelectivity(ctx, ephys.SelectivityQuery{
			Units:   ephys.Insertion(LeftInsertion),
			Periods: []ephys.Period{ephys.PeriodSample},
		})
		if err != nil {
			t.Fatalf("period selectivity: %v", err)
		}
		if len(sample) != 2 {
			t.Fatalf("expected 2 sample records, got %d", len(sample))
		}
	})

	t.Run("unit selectivity", func(t *testing.T) {
		s := Seeded(t, open(t))
		labels, err := s.UnitSelectivity(ctx, ephys.Insertion(LeftInsertion))
		if err != nil {
			t.Fatalf("unit selectivity: %v", err)
		}
		var got []int
		for _, l := range labels {
			got = append(got, l.Key.Unit)
		}
		if !slices.Equal(got, []int{4, 2, 3, 1}) {
			t.Fatalf("unexpected label order %v", got)
		}
	})

	t.Run("psth by condition", func(t *testing.T) {
		s := Seeded(t, open(t))
		series, err := s.PSTH(ctx, ephys.PSTHQuery{Units: ephys.Insertion(LeftInsertion), Condition: HitRight})
		if err != nil {
			t.Fatalf("psth: %v", err)
		}
		if len(series) != 4 {
			t.Fatalf("expected 4 series, got %d", len(series))
		}
		if series[0].Key != Key(LeftInsertion, 4) || series[3].Key != Key(LeftInsertion, 1) {
			t.Fatalf("psth not ordered by depth: %v, %v", series[0].Key, series[3].Key)
		}
		if !slices.Equal(series[0].Edges, Edges()) || series[3].Rates[0] != 6 {
			t.Fatalf("unexpected psth payload %+v", series[3])
		}
		picked, err := s.PSTH(ctx, ephys.PSTHQuery{
			Units:     ephys.UnitFilter{}.WithUnits([]ephys.UnitKey{Key(LeftInsertion, 1), Key(RightInsertion, 1)}),
			Condition: HitLeft,
		})
		if err != nil {
			t.Fatalf("psth: %v", err)
		}
		if len(picked) != 2 || picked[0].Key != Key(RightInsertion, 1) {
			t.Fatalf("unexpected picked series %+v", picked)
		}
		if _, err := s.PSTH(ctx, ephys.PSTHQuery{}); !errors.Is(err, ephys.ErrInvalid) {
			t.Fatalf("expected invalid query error, got %v", err)
		}
	})

	t.Run("trial conditions", func(t *testing.T) {
		s := Seeded(t, open(t))
		names, err := s.TrialConditionNames(ctx)
		if err != nil {
			t.Fatalf("names: %v", err)
		}
		if len(names) != 8 || !slices.IsSorted(names) {
			t.Fatalf("expected 8 sorted names, got %v", names)
		}
		c, err := s.TrialCondition(ctx, BothALMStim)
		if err != nil {
			t.Fatalf("condition: %v", err)
		}
		if !slices.Equal(c.Trials, []int{5, 6, 7}) {
			t.Fatalf("unexpected trials %v", c.Trials)
		}
		if _, err := s.TrialCondition(ctx, "nope"); !errors.Is(err, ephys.ErrNoData) {
			t.Fatalf("expected no data, got %v", err)
		}
	})

	t.Run("periods", func(t *testing.T) {
		s := Seeded(t, open(t))
		all, err := s.Periods(ctx)
		if err != nil {
			t.Fatalf("periods: %v", err)
		}
		if len(all) != 3 || all[0].Period != ephys.PeriodSample || all[2].Period != ephys.PeriodResponse {
			t.Fatalf("unexpected periods %+v", all)
		}
		delay, err := s.Periods(ctx, ephys.PeriodDelay)
		if err != nil || len(delay) != 1 || delay[0].Start != -1.2 {
			t.Fatalf("unexpected delay period %+v (%v)", delay, err)
		}
	})

	t.Run("photostim events", func(t *testing.T) {
		s := Seeded(t, open(t))
		events, err := s.PhotostimEvents(ctx, ephys.PhotostimQuery{InsertionIDs: []int{LeftInsertion}, Condition: BothALMStim})
		if err != nil {
			t.Fatalf("events: %v", err)
		}
		var trials []int
		for _, ev := range events {
			trials = append(trials, ev.Trial)
		}
		if !slices.Equal(trials, []int{5, 6, 7}) {
			t.Fatalf("unexpected trials %v", trials)
		}
	})

	t.Run("projection", func(t *testing.T) {
		s := Seeded(t, open(t))
		p, err := s.Projection(ctx, "alm-left")
		if err != nil {
			t.Fatalf("projection: %v", err)
		}
		if len(p.Contra) != 3 || len(p.Ipsi) != 3 || len(p.TimeStamps) != 5 {
			t.Fatalf("unexpected projection shape %+v", p)
		}
		if _, err := s.Projection(ctx, "missing"); !errors.Is(err, ephys.ErrNoData) {
			t.Fatalf("expected no data, got %v", err)
		}
	})

	t.Run("import replaces by primary key", func(t *testing.T) {
		s := Seeded(t, open(t))
		update := ephys.Snapshot{Units: []ephys.Unit{{Key: Key(LeftInsertion, 1), Quality: "good", PosY: 1000}}}
		if err := s.Import(ctx, update); err != nil {
			t.Fatalf("import: %v", err)
		}
		units, err := s.Units(ctx, ephys.Insertion(LeftInsertion))
		if err != nil {
			t.Fatalf("units: %v", err)
		}
		if len(units) != 4 || units[0].Key != Key(LeftInsertion, 1) {
			t.Fatalf("expected replaced unit first, got %v", unitIDs(units))
		}
	})

	t.Run("import rejects invalid psth", func(t *testing.T) {
		s := open(t)
		bad := ephys.Snapshot{PSTH: []ephys.PSTHSeries{{Key: Key(1, 1), Condition: HitLeft, Edges: []float64{0, 1}, Rates: []float64{1, 2}}}}
		if err := s.Import(ctx, bad); !errors.Is(err, ephys.ErrInvalid) {
			t.Fatalf("expected invalid error, got %v", err)
		}
	})

	t.Run("results are copies", func(t *testing.T) {
		s := Seeded(t, open(t))
		q := ephys.PSTHQuery{Units: ephys.Insertion(LeftInsertion), Condition: HitLeft}
		first, err := s.PSTH(ctx, q)
		if err != nil {
			t.Fatalf("psth: %v", err)
		}
		first[0].Rates[0] = -99
		again, err := s.PSTH(ctx, q)
		if err != nil {
			t.Fatalf("psth: %v", err)
		}
		if again[0].Rates[0] == -99 {
			t.Fatalf("store leaked internal slice")
		}
	})
}

func unitIDs(units []ephys.UnitRecord) []int {
	out := make([]int, len(units))
	for i, u := range units {
		out[i] = u.Key.Unit
	}
	return out
}

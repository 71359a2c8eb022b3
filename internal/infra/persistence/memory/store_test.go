package memory

import (
	"context"
	"math"
	"sync"
	"testing"

	"ephyscore/internal/infra/persistence/storetest"
	"ephyscore/pkg/ephys"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.RunContract(t, func(*testing.T) storetest.Backend { return NewStore() })
}

func TestImportDropsNonFiniteOffsets(t *testing.T) {
	nan := math.NaN()
	store, err := NewStoreFromSnapshot(ephys.Snapshot{
		Insertions: []ephys.ProbeInsertion{{InsertionID: 9, Hemisphere: ephys.HemisphereRight, DVLocation: &nan}},
		Units:      []ephys.Unit{{Key: ephys.UnitKey{InsertionID: 9, Unit: 1}, PosY: 30}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	units, err := store.Units(context.Background(), ephys.Insertion(9))
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	if len(units) != 1 || units[0].DVLocation != nil || units[0].CorrectedY() != 30 {
		t.Fatalf("unexpected units %+v", units)
	}
	if _, err := EncodeBucket(store.ExportState(), "insertions"); err != nil {
		t.Fatalf("state with NaN offset must stay encodable: %v", err)
	}
}

func TestImportValidatesLabels(t *testing.T) {
	cases := map[string]ephys.Snapshot{
		"hemisphere":   {Insertions: []ephys.ProbeInsertion{{InsertionID: 1, Hemisphere: "up"}}},
		"period":       {PeriodSelectivity: []ephys.PeriodSelectivity{{Period: "iti", Selectivity: ephys.NonSelective}}},
		"label":        {UnitSelectivity: []ephys.UnitSelectivity{{Selectivity: "maybe"}}},
		"projection":   {Projections: []ephys.Projection{{Group: "g", TimeStamps: []float64{0, 1}, Contra: [][]float64{{1}}}}},
		"boundary":     {Periods: []ephys.PeriodBoundary{{Period: ephys.PeriodDelay, Start: 1, End: 0}}},
		"nan rate":     {PSTH: []ephys.PSTHSeries{{Key: ephys.UnitKey{InsertionID: 1, Unit: 1}, Condition: "c", Edges: []float64{0, 1}, Rates: []float64{math.NaN()}}}},
		"inf boundary": {Periods: []ephys.PeriodBoundary{{Period: ephys.PeriodDelay, Start: math.Inf(-1), End: 0}}},
		"nan stim":     {PhotostimEvents: []ephys.PhotostimEvent{{InsertionID: 1, Trial: 1, Duration: math.NaN()}}},
		"nan sample":   {Projections: []ephys.Projection{{Group: "g", TimeStamps: []float64{0}, Contra: [][]float64{{math.NaN()}}}}},
	}
	for name, snap := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewStore()
			if err := s.Import(context.Background(), snap); err == nil {
				t.Fatalf("expected import error")
			}
			if got := s.ExportState(); len(got.Insertions)+len(got.Projections) != 0 {
				t.Fatalf("failed import must not apply rows")
			}
		})
	}
}

func TestReplaceSwapsWorkingSet(t *testing.T) {
	s := storetest.Seeded(t, NewStore()).(*Store)
	only := ephys.Snapshot{
		Insertions: []ephys.ProbeInsertion{{InsertionID: 7, Hemisphere: ephys.HemisphereLeft}},
		Units:      []ephys.Unit{{Key: ephys.UnitKey{InsertionID: 7, Unit: 1}}},
	}
	if err := s.Replace(context.Background(), only); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got := s.ExportState()
	if len(got.Units) != 1 || len(got.PSTH) != 0 || got.Insertions[0].InsertionID != 7 {
		t.Fatalf("expected only the replacement rows, got %d units %d psth", len(got.Units), len(got.PSTH))
	}
	bad := ephys.Snapshot{Insertions: []ephys.ProbeInsertion{{InsertionID: 8, Hemisphere: "up"}}}
	if err := s.Replace(context.Background(), bad); err == nil {
		t.Fatalf("expected validation error")
	}
	if after := s.ExportState(); len(after.Units) != 1 || after.Insertions[0].InsertionID != 7 {
		t.Fatalf("rejected replace must keep the working set")
	}
}

func TestBucketsRoundTripFixture(t *testing.T) {
	want := storetest.Seeded(t, NewStore()).(*Store).ExportState()
	var got ephys.Snapshot
	for _, bucket := range Buckets {
		data, err := EncodeBucket(want, bucket)
		if err != nil {
			t.Fatalf("encode %s: %v", bucket, err)
		}
		if err := DecodeBucket(&got, bucket, data); err != nil {
			t.Fatalf("decode %s: %v", bucket, err)
		}
	}
	if len(got.Units) != len(want.Units) || len(got.PSTH) != len(want.PSTH) || len(got.Projections) != len(want.Projections) {
		t.Fatalf("bucket round trip lost rows")
	}
	if got.Insertions[0].DVLocation == nil || *got.Insertions[0].DVLocation != 5 {
		t.Fatalf("expected offset to survive, got %+v", got.Insertions[0])
	}
	if _, err := EncodeBucket(want, "nope"); err == nil {
		t.Fatalf("expected unknown bucket error")
	}
	if err := DecodeBucket(&got, "legacy", []byte(`[]`)); err != nil {
		t.Fatalf("unknown buckets must be ignored: %v", err)
	}
}

func TestConcurrentReaders(t *testing.T) {
	s := storetest.Seeded(t, NewStore())
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.Units(ctx, ephys.Insertion(storetest.LeftInsertion)); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := s.PSTH(ctx, ephys.PSTHQuery{Condition: storetest.HitLeft}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent read: %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStore().Units(ctx, ephys.UnitFilter{}); err == nil {
		t.Fatalf("expected context error")
	}
}

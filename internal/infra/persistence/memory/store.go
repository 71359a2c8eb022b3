// Package memory provides an in-memory implementation of the experiment
// store used for tests, fixtures and as the working set behind the SQL stores.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"ephyscore/pkg/ephys"
)

// Compile-time contract assertions.
var (
	_ ephys.Store    = (*Store)(nil)
	_ ephys.Importer = (*Store)(nil)
)

type periodKey struct {
	unit   ephys.UnitKey
	period ephys.Period
}

type psthKey struct {
	unit      ephys.UnitKey
	condition string
}

type stimKey struct {
	insertion int
	trial     int
	condition string
}

type memoryState struct {
	insertions  map[int]ephys.ProbeInsertion
	units       map[ephys.UnitKey]ephys.Unit
	periodSel   map[periodKey]ephys.PeriodSelectivity
	unitSel     map[ephys.UnitKey]ephys.UnitSelectivity
	psth        map[psthKey]ephys.PSTHSeries
	conditions  map[string]ephys.TrialCondition
	periods     map[ephys.Period]ephys.PeriodBoundary
	photostim   map[stimKey]ephys.PhotostimEvent
	projections map[string]ephys.Projection
}

func newMemoryState() memoryState {
	return memoryState{
		insertions:  make(map[int]ephys.ProbeInsertion),
		units:       make(map[ephys.UnitKey]ephys.Unit),
		periodSel:   make(map[periodKey]ephys.PeriodSelectivity),
		unitSel:     make(map[ephys.UnitKey]ephys.UnitSelectivity),
		psth:        make(map[psthKey]ephys.PSTHSeries),
		conditions:  make(map[string]ephys.TrialCondition),
		periods:     make(map[ephys.Period]ephys.PeriodBoundary),
		photostim:   make(map[stimKey]ephys.PhotostimEvent),
		projections: make(map[string]ephys.Projection),
	}
}

// Store keeps every table of the experiment schema in maps keyed by primary key.
type Store struct {
	mu    sync.RWMutex
	state memoryState
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

// NewStoreFromSnapshot constructs a store seeded with the snapshot.
func NewStoreFromSnapshot(snapshot ephys.Snapshot) (*Store, error) {
	s := NewStore()
	if err := s.Import(context.Background(), snapshot); err != nil {
		return nil, err
	}
	return s, nil
}

// Import validates the snapshot and merges it into the store. Nothing is
// applied when any row fails validation.
func (s *Store) Import(ctx context.Context, snapshot ephys.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &s.state
	for _, ins := range snapshot.Insertions {
		ins = cloneInsertion(ins)
		// a non-finite offset reads the same as a missing one and keeps the
		// state JSON encodable
		if ins.DVLocation != nil && ephys.FiniteOrZero(*ins.DVLocation) != *ins.DVLocation {
			ins.DVLocation = nil
		}
		st.insertions[ins.InsertionID] = ins
	}
	for _, u := range snapshot.Units {
		st.units[u.Key] = u
	}
	for _, rec := range snapshot.PeriodSelectivity {
		st.periodSel[periodKey{rec.Key, rec.Period}] = rec
	}
	for _, rec := range snapshot.UnitSelectivity {
		st.unitSel[rec.Key] = rec
	}
	for _, p := range snapshot.PSTH {
		st.psth[psthKey{p.Key, p.Condition}] = clonePSTH(p)
	}
	for _, c := range snapshot.TrialConditions {
		c.Trials = slices.Clone(c.Trials)
		st.conditions[c.Name] = c
	}
	for _, p := range snapshot.Periods {
		st.periods[p.Period] = p
	}
	for _, ev := range snapshot.PhotostimEvents {
		st.photostim[stimKey{ev.InsertionID, ev.Trial, ev.Condition}] = ev
	}
	for _, p := range snapshot.Projections {
		st.projections[p.Group] = cloneProjection(p)
	}
	return nil
}

// Replace swaps the whole working set for the snapshot. The current state is
// kept when the snapshot fails validation.
func (s *Store) Replace(ctx context.Context, snapshot ephys.Snapshot) error {
	fresh := NewStore()
	if err := fresh.Import(ctx, snapshot); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fresh.state
	return nil
}

func validateSnapshot(snapshot ephys.Snapshot) error {
	for _, ins := range snapshot.Insertions {
		if !ins.Hemisphere.Valid() {
			return fmt.Errorf("insertion %d: %w: hemisphere %q", ins.InsertionID, ephys.ErrInvalid, ins.Hemisphere)
		}
	}
	for _, rec := range snapshot.PeriodSelectivity {
		if ephys.PeriodRank(rec.Period) == len(ephys.TaskPeriods) {
			return fmt.Errorf("period selectivity %s: %w: period %q", rec.Key, ephys.ErrInvalid, rec.Period)
		}
		if !rec.Selectivity.Valid() {
			return fmt.Errorf("period selectivity %s: %w: label %q", rec.Key, ephys.ErrInvalid, rec.Selectivity)
		}
	}
	for _, rec := range snapshot.UnitSelectivity {
		if !rec.Selectivity.Valid() {
			return fmt.Errorf("unit selectivity %s: %w: label %q", rec.Key, ephys.ErrInvalid, rec.Selectivity)
		}
	}
	for _, p := range snapshot.PSTH {
		if p.Condition == "" {
			return fmt.Errorf("psth %s: %w: missing trial condition", p.Key, ephys.ErrInvalid)
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for _, c := range snapshot.TrialConditions {
		if c.Name == "" {
			return fmt.Errorf("trial condition: %w: missing name", ephys.ErrInvalid)
		}
	}
	for _, p := range snapshot.Periods {
		if ephys.PeriodRank(p.Period) == len(ephys.TaskPeriods) {
			return fmt.Errorf("period boundary: %w: period %q", ephys.ErrInvalid, p.Period)
		}
		if !finite(p.Start, p.End) {
			return fmt.Errorf("period %s: %w: non-finite boundary", p.Period, ephys.ErrInvalid)
		}
		if p.End < p.Start {
			return fmt.Errorf("period %s: %w: end %g before start %g", p.Period, ephys.ErrInvalid, p.End, p.Start)
		}
	}
	for _, ev := range snapshot.PhotostimEvents {
		if !finite(ev.Onset, ev.Duration) {
			return fmt.Errorf("photostim insertion %d trial %d: %w: non-finite timing", ev.InsertionID, ev.Trial, ephys.ErrInvalid)
		}
	}
	for _, p := range snapshot.Projections {
		if p.Group == "" {
			return fmt.Errorf("projection: %w: missing unit group", ephys.ErrInvalid)
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ExportState returns a deterministic snapshot of the whole store.
func (s *Store) ExportState() ephys.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	var out ephys.Snapshot
	for _, ins := range st.insertions {
		out.Insertions = append(out.Insertions, cloneInsertion(ins))
	}
	sort.Slice(out.Insertions, func(i, j int) bool { return out.Insertions[i].InsertionID < out.Insertions[j].InsertionID })
	for _, u := range st.units {
		out.Units = append(out.Units, u)
	}
	slices.SortFunc(out.Units, func(a, b ephys.Unit) int { return compareKeys(a.Key, b.Key) })
	for _, rec := range st.periodSel {
		out.PeriodSelectivity = append(out.PeriodSelectivity, rec)
	}
	slices.SortFunc(out.PeriodSelectivity, comparePeriodRecords)
	for _, rec := range st.unitSel {
		out.UnitSelectivity = append(out.UnitSelectivity, rec)
	}
	slices.SortFunc(out.UnitSelectivity, func(a, b ephys.UnitSelectivity) int { return compareKeys(a.Key, b.Key) })
	for _, p := range st.psth {
		out.PSTH = append(out.PSTH, clonePSTH(p))
	}
	slices.SortFunc(out.PSTH, func(a, b ephys.PSTHSeries) int {
		if c := compareKeys(a.Key, b.Key); c != 0 {
			return c
		}
		return cmp.Compare(a.Condition, b.Condition)
	})
	for _, name := range sortedKeys(st.conditions) {
		c := st.conditions[name]
		c.Trials = slices.Clone(c.Trials)
		out.TrialConditions = append(out.TrialConditions, c)
	}
	for _, p := range ephys.TaskPeriods {
		if b, ok := st.periods[p]; ok {
			out.Periods = append(out.Periods, b)
		}
	}
	for _, ev := range st.photostim {
		out.PhotostimEvents = append(out.PhotostimEvents, ev)
	}
	slices.SortFunc(out.PhotostimEvents, compareEvents)
	for _, group := range sortedKeys(st.projections) {
		out.Projections = append(out.Projections, cloneProjection(st.projections[group]))
	}
	return out
}

// Units returns the matching units joined with their insertion, deepest first.
func (s *Store) Units(ctx context.Context, filter ephys.UnitFilter) ([]ephys.UnitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.Empty() {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ephys.UnitRecord
	for _, u := range s.state.units {
		if filter.Match(u) {
			out = append(out, s.state.record(u))
		}
	}
	slices.SortFunc(out, ephys.CompareDepthDesc)
	return out, nil
}

// PeriodSelectivity returns period records of matching units ordered by unit
// depth, then task period.
func (s *Store) PeriodSelectivity(ctx context.Context, query ephys.SelectivityQuery) ([]ephys.PeriodSelectivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query.Units.Empty() {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	type row struct {
		unit ephys.UnitRecord
		rec  ephys.PeriodSelectivity
	}
	var rows []row
	for _, rec := range s.state.periodSel {
		u, ok := s.state.units[rec.Key]
		if !ok || !query.Units.Match(u) || !query.Match(rec) {
			continue
		}
		rows = append(rows, row{unit: s.state.record(u), rec: rec})
	}
	slices.SortFunc(rows, func(a, b row) int {
		if c := ephys.CompareDepthDesc(a.unit, b.unit); c != 0 {
			return c
		}
		return cmp.Compare(ephys.PeriodRank(a.rec.Period), ephys.PeriodRank(b.rec.Period))
	})
	out := make([]ephys.PeriodSelectivity, len(rows))
	for i, r := range rows {
		out[i] = r.rec
	}
	return out, nil
}

// UnitSelectivity returns the overall labels of matching units, deepest first.
func (s *Store) UnitSelectivity(ctx context.Context, filter ephys.UnitFilter) ([]ephys.UnitSelectivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.Empty() {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var units []ephys.UnitRecord
	for k := range s.state.unitSel {
		u, ok := s.state.units[k]
		if ok && filter.Match(u) {
			units = append(units, s.state.record(u))
		}
	}
	slices.SortFunc(units, ephys.CompareDepthDesc)
	out := make([]ephys.UnitSelectivity, len(units))
	for i, u := range units {
		out[i] = s.state.unitSel[u.Key]
	}
	return out, nil
}

// PSTH returns the series of matching units under one condition, deepest first.
func (s *Store) PSTH(ctx context.Context, query ephys.PSTHQuery) ([]ephys.PSTHSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query.Condition == "" {
		return nil, fmt.Errorf("psth query: %w: missing trial condition", ephys.ErrInvalid)
	}
	if query.Units.Empty() {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var units []ephys.UnitRecord
	for k := range s.state.psth {
		if k.condition != query.Condition {
			continue
		}
		u, ok := s.state.units[k.unit]
		if ok && query.Units.Match(u) {
			units = append(units, s.state.record(u))
		}
	}
	slices.SortFunc(units, ephys.CompareDepthDesc)
	out := make([]ephys.PSTHSeries, len(units))
	for i, u := range units {
		out[i] = clonePSTH(s.state.psth[psthKey{u.Key, query.Condition}])
	}
	return out, nil
}

// TrialCondition looks up a condition by name.
func (s *Store) TrialCondition(ctx context.Context, name string) (ephys.TrialCondition, error) {
	if err := ctx.Err(); err != nil {
		return ephys.TrialCondition{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.conditions[name]
	if !ok {
		return ephys.TrialCondition{}, ephys.NoData("trial condition %q", name)
	}
	c.Trials = slices.Clone(c.Trials)
	return c, nil
}

// TrialConditionNames lists every condition name in lexical order.
func (s *Store) TrialConditionNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.state.conditions), nil
}

// Periods returns the requested period boundaries in argument order, or every
// stored period in task order when none is named.
func (s *Store) Periods(ctx context.Context, periods ...ephys.Period) ([]ephys.PeriodBoundary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(periods) == 0 {
		var out []ephys.PeriodBoundary
		for _, p := range ephys.TaskPeriods {
			if b, ok := s.state.periods[p]; ok {
				out = append(out, b)
			}
		}
		return out, nil
	}
	out := make([]ephys.PeriodBoundary, 0, len(periods))
	for _, p := range periods {
		b, ok := s.state.periods[p]
		if !ok {
			return nil, ephys.NoData("period %q", p)
		}
		out = append(out, b)
	}
	return out, nil
}

// PhotostimEvents returns the events of matching insertions and condition
// ordered by insertion and trial.
func (s *Store) PhotostimEvents(ctx context.Context, query ephys.PhotostimQuery) ([]ephys.PhotostimEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ephys.PhotostimEvent
	for k, ev := range s.state.photostim {
		if query.Condition != "" && k.condition != query.Condition {
			continue
		}
		if len(query.InsertionIDs) > 0 && !slices.Contains(query.InsertionIDs, k.insertion) {
			continue
		}
		out = append(out, ev)
	}
	slices.SortFunc(out, compareEvents)
	return out, nil
}

// Projection returns the coding-direction projection of a unit group.
func (s *Store) Projection(ctx context.Context, group string) (ephys.Projection, error) {
	if err := ctx.Err(); err != nil {
		return ephys.Projection{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projections[group]
	if !ok {
		return ephys.Projection{}, ephys.NoData("projection for unit group %q", group)
	}
	return cloneProjection(p), nil
}

func (st memoryState) record(u ephys.Unit) ephys.UnitRecord {
	rec := ephys.UnitRecord{Unit: u}
	if ins, ok := st.insertions[u.Key.InsertionID]; ok {
		rec.Hemisphere = ins.Hemisphere
		if ins.DVLocation != nil {
			v := *ins.DVLocation
			rec.DVLocation = &v
		}
	}
	return rec
}

func compareKeys(a, b ephys.UnitKey) int {
	if c := cmp.Compare(a.InsertionID, b.InsertionID); c != 0 {
		return c
	}
	return cmp.Compare(a.Unit, b.Unit)
}

func comparePeriodRecords(a, b ephys.PeriodSelectivity) int {
	if c := compareKeys(a.Key, b.Key); c != 0 {
		return c
	}
	return cmp.Compare(ephys.PeriodRank(a.Period), ephys.PeriodRank(b.Period))
}

func compareEvents(a, b ephys.PhotostimEvent) int {
	if c := cmp.Compare(a.InsertionID, b.InsertionID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Trial, b.Trial); c != 0 {
		return c
	}
	return cmp.Compare(a.Condition, b.Condition)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneInsertion(ins ephys.ProbeInsertion) ephys.ProbeInsertion {
	if ins.DVLocation != nil {
		v := *ins.DVLocation
		ins.DVLocation = &v
	}
	return ins
}

func clonePSTH(p ephys.PSTHSeries) ephys.PSTHSeries {
	p.Edges = slices.Clone(p.Edges)
	p.Rates = slices.Clone(p.Rates)
	return p
}

func cloneProjection(p ephys.Projection) ephys.Projection {
	p.Contra = cloneRows(p.Contra)
	p.Ipsi = cloneRows(p.Ipsi)
	p.TimeStamps = slices.Clone(p.TimeStamps)
	return p
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}

package ephys

import (
	"cmp"
	"context"
	"slices"
)

// UnitFilter restricts unit queries. Empty fields do not restrict.
type UnitFilter struct {
	InsertionIDs     []int     `json:"insertion_ids,omitempty"`
	Units            []UnitKey `json:"units,omitempty"`
	ExcludeQualities []string  `json:"exclude_qualities,omitempty"`
}

// Insertion selects every unit of the given probe insertions.
func Insertion(ids ...int) UnitFilter {
	return UnitFilter{InsertionIDs: append([]int(nil), ids...)}
}

// Good drops units whose quality is the catch-all "all" label.
func (f UnitFilter) Good() UnitFilter {
	out := f.clone()
	if !slices.Contains(out.ExcludeQualities, QualityAll) {
		out.ExcludeQualities = append(out.ExcludeQualities, QualityAll)
	}
	return out
}

// WithUnits narrows the filter to an explicit unit list.
func (f UnitFilter) WithUnits(keys []UnitKey) UnitFilter {
	out := f.clone()
	out.Units = append([]UnitKey{}, keys...)
	return out
}

// Empty reports whether the filter selects an explicit but empty unit list.
// A nil Units slice means "no restriction"; an empty non-nil slice selects nothing.
func (f UnitFilter) Empty() bool {
	return f.Units != nil && len(f.Units) == 0
}

// Match reports whether a unit passes the filter.
func (f UnitFilter) Match(u Unit) bool {
	if len(f.InsertionIDs) > 0 && !slices.Contains(f.InsertionIDs, u.Key.InsertionID) {
		return false
	}
	if f.Units != nil && !slices.Contains(f.Units, u.Key) {
		return false
	}
	if slices.Contains(f.ExcludeQualities, u.Quality) {
		return false
	}
	return true
}

func (f UnitFilter) clone() UnitFilter {
	out := UnitFilter{
		InsertionIDs:     append([]int(nil), f.InsertionIDs...),
		ExcludeQualities: append([]string(nil), f.ExcludeQualities...),
	}
	if f.Units != nil {
		out.Units = append([]UnitKey{}, f.Units...)
	}
	return out
}

// SelectivityQuery selects period selectivity records.
type SelectivityQuery struct {
	Units   UnitFilter    `json:"units"`
	Periods []Period      `json:"periods,omitempty"`
	Labels  []Selectivity `json:"labels,omitempty"`
	// ExcludeLabels drops records carrying any of these labels.
	ExcludeLabels []Selectivity `json:"exclude_labels,omitempty"`
}

// Match reports whether a period record passes the period and label restrictions.
func (q SelectivityQuery) Match(rec PeriodSelectivity) bool {
	if len(q.Periods) > 0 && !slices.Contains(q.Periods, rec.Period) {
		return false
	}
	if len(q.Labels) > 0 && !slices.Contains(q.Labels, rec.Selectivity) {
		return false
	}
	return !slices.Contains(q.ExcludeLabels, rec.Selectivity)
}

// PSTHQuery selects unit PSTHs recorded under a single trial condition.
type PSTHQuery struct {
	Units     UnitFilter `json:"units"`
	Condition string     `json:"trial_condition_name"`
}

// PhotostimQuery selects photostim events for trials of a condition.
type PhotostimQuery struct {
	InsertionIDs []int  `json:"insertion_ids,omitempty"`
	Condition    string `json:"trial_condition_name"`
}

// Store is the read side of the experiment schema. Unit and PSTH results are
// ordered by corrected depth, deepest (largest y) first.
type Store interface {
	Units(ctx context.Context, filter UnitFilter) ([]UnitRecord, error)
	PeriodSelectivity(ctx context.Context, query SelectivityQuery) ([]PeriodSelectivity, error)
	UnitSelectivity(ctx context.Context, filter UnitFilter) ([]UnitSelectivity, error)
	PSTH(ctx context.Context, query PSTHQuery) ([]PSTHSeries, error)
	TrialCondition(ctx context.Context, name string) (TrialCondition, error)
	TrialConditionNames(ctx context.Context) ([]string, error)
	Periods(ctx context.Context, periods ...Period) ([]PeriodBoundary, error)
	PhotostimEvents(ctx context.Context, query PhotostimQuery) ([]PhotostimEvent, error)
	Projection(ctx context.Context, group string) (Projection, error)
}

// Importer seeds a store from a snapshot. Importing is additive; rows with an
// existing primary key are replaced.
type Importer interface {
	Import(ctx context.Context, snapshot Snapshot) error
}

// Snapshot carries every table of the experiment schema.
type Snapshot struct {
	Insertions        []ProbeInsertion    `json:"insertions"`
	Units             []Unit              `json:"units"`
	PeriodSelectivity []PeriodSelectivity `json:"period_selectivity"`
	UnitSelectivity   []UnitSelectivity   `json:"unit_selectivity"`
	PSTH              []PSTHSeries        `json:"unit_psth"`
	TrialConditions   []TrialCondition    `json:"trial_conditions"`
	Periods           []PeriodBoundary    `json:"periods"`
	PhotostimEvents   []PhotostimEvent    `json:"photostim_events"`
	Projections       []Projection        `json:"projections"`
}

// CompareDepthDesc orders unit records deepest corrected y first, breaking ties
// by insertion and unit id.
func CompareDepthDesc(a, b UnitRecord) int {
	if c := cmp.Compare(b.CorrectedY(), a.CorrectedY()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Key.InsertionID, b.Key.InsertionID); c != 0 {
		return c
	}
	return cmp.Compare(a.Key.Unit, b.Key.Unit)
}

// PeriodRank returns the position of p within TaskPeriods, or len(TaskPeriods).
func PeriodRank(p Period) int {
	if i := slices.Index(TaskPeriods, p); i >= 0 {
		return i
	}
	return len(TaskPeriods)
}

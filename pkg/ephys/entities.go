// Package ephys defines the read-only experiment records, typed query filters and
// store contracts shared by the aggregation, figure and persistence layers.
package ephys

import (
	"fmt"
	"math"
)

// Hemisphere identifies the brain side of a probe insertion.
type Hemisphere string

const (
	HemisphereLeft  Hemisphere = "left"
	HemisphereRight Hemisphere = "right"
)

// Valid reports whether h is one of the canonical hemisphere labels.
func (h Hemisphere) Valid() bool {
	return h == HemisphereLeft || h == HemisphereRight
}

// Period names a task epoch.
type Period string

// Task periods in trial order.
const (
	PeriodSample   Period = "sample"
	PeriodDelay    Period = "delay"
	PeriodResponse Period = "response"
)

// TaskPeriods lists the periods used for period markers and selectivity panels.
var TaskPeriods = []Period{PeriodSample, PeriodDelay, PeriodResponse}

// Selectivity is the label assigned to a unit by the upstream selectivity analysis.
type Selectivity string

const (
	NonSelective    Selectivity = "non-selective"
	IpsiSelective   Selectivity = "ipsi-selective"
	ContraSelective Selectivity = "contra-selective"
)

// Selective reports whether the label marks a selective unit.
func (s Selectivity) Selective() bool {
	return s == IpsiSelective || s == ContraSelective
}

// Valid reports whether s is a known selectivity label.
func (s Selectivity) Valid() bool {
	return s == NonSelective || s.Selective()
}

// QualityAll is the catch-all unit quality excluded from "good unit" selections.
const QualityAll = "all"

// UnitKey identifies a unit within a probe insertion.
type UnitKey struct {
	InsertionID int `json:"insertion_id"`
	Unit        int `json:"unit"`
}

func (k UnitKey) String() string {
	return fmt.Sprintf("%d/%d", k.InsertionID, k.Unit)
}

// ProbeInsertion describes where a probe was placed.
type ProbeInsertion struct {
	InsertionID int        `json:"insertion_id"`
	Subject     string     `json:"subject,omitempty"`
	Session     int        `json:"session,omitempty"`
	Hemisphere  Hemisphere `json:"hemisphere"`
	// DVLocation is the manipulator depth offset; nil when not recorded.
	DVLocation *float64 `json:"dv_location,omitempty"`
}

// Unit is the stored per-unit row joined with its statistics.
type Unit struct {
	Key          UnitKey `json:"key"`
	Quality      string  `json:"unit_quality"`
	PosX         float64 `json:"unit_posx"`
	PosY         float64 `json:"unit_posy"`
	Amplitude    float64 `json:"unit_amp"`
	SNR          float64 `json:"unit_snr"`
	FiringRate   float64 `json:"avg_firing_rate"`
	ISIViolation float64 `json:"isi_violation"`
}

// UnitRecord is a unit joined with its insertion location.
type UnitRecord struct {
	Unit
	Hemisphere Hemisphere `json:"hemisphere"`
	DVLocation *float64   `json:"dv_location,omitempty"`
}

// DepthOffset returns the insertion depth offset, treating a missing or
// non-finite value as zero.
func (u UnitRecord) DepthOffset() float64 {
	if u.DVLocation == nil {
		return 0
	}
	return FiniteOrZero(*u.DVLocation)
}

// CorrectedY returns the probe y-position shifted by the insertion depth.
func (u UnitRecord) CorrectedY() float64 {
	return u.PosY + u.DepthOffset()
}

// FiniteOrZero maps NaN and ±Inf to zero.
func FiniteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// PeriodSelectivity is the selectivity of a unit within one task period.
type PeriodSelectivity struct {
	Key              UnitKey     `json:"key"`
	Period           Period      `json:"period"`
	Selectivity      Selectivity `json:"period_selectivity"`
	ContraFiringRate float64     `json:"contra_firing_rate"`
	IpsiFiringRate   float64     `json:"ipsi_firing_rate"`
}

// UnitSelectivity is the overall selectivity of a unit across periods.
type UnitSelectivity struct {
	Key         UnitKey     `json:"key"`
	Selectivity Selectivity `json:"unit_selectivity"`
}

// PSTHSeries is a binned firing-rate sequence for one unit under one trial condition.
type PSTHSeries struct {
	Key       UnitKey   `json:"key"`
	Condition string    `json:"trial_condition_name"`
	Edges     []float64 `json:"edges"`
	Rates     []float64 `json:"rates"`
}

// Validate checks the bin invariants: finite values, edges strictly
// increasing and one rate per bin.
func (s PSTHSeries) Validate() error {
	if len(s.Edges) < 2 {
		return fmt.Errorf("psth %s/%s: %w: need at least two bin edges", s.Key, s.Condition, ErrInvalid)
	}
	if len(s.Rates) != len(s.Edges)-1 {
		return fmt.Errorf("psth %s/%s: %w: %d rates for %d edges", s.Key, s.Condition, ErrInvalid, len(s.Rates), len(s.Edges))
	}
	for i := 1; i < len(s.Edges); i++ {
		if !(s.Edges[i] > s.Edges[i-1]) {
			return fmt.Errorf("psth %s/%s: %w: edges not strictly increasing at %d", s.Key, s.Condition, ErrInvalid, i)
		}
	}
	if i := firstNonFinite(s.Edges); i >= 0 {
		return fmt.Errorf("psth %s/%s: %w: non-finite edge at %d", s.Key, s.Condition, ErrInvalid, i)
	}
	if i := firstNonFinite(s.Rates); i >= 0 {
		return fmt.Errorf("psth %s/%s: %w: non-finite rate at bin %d", s.Key, s.Condition, ErrInvalid, i)
	}
	return nil
}

// TrialCondition is a named trial filter resolved by the store.
type TrialCondition struct {
	Name        string `json:"trial_condition_name"`
	Description string `json:"trial_condition_desc,omitempty"`
	Trials      []int  `json:"trials,omitempty"`
}

// PeriodBoundary holds the timing of a task period relative to the go-cue.
type PeriodBoundary struct {
	Period Period  `json:"period"`
	Start  float64 `json:"period_start"`
	End    float64 `json:"period_end"`
}

// PhotostimEvent is a photostimulation delivered on one trial.
type PhotostimEvent struct {
	InsertionID int     `json:"insertion_id"`
	Trial       int     `json:"trial"`
	Condition   string  `json:"trial_condition_name"`
	Onset       float64 `json:"onset"`
	Duration    float64 `json:"duration"`
}

// Projection is a coding-direction projected PSTH for one unit group. Rows of
// Contra and Ipsi are trials; columns follow TimeStamps.
type Projection struct {
	Group      string      `json:"unit_group"`
	Contra     [][]float64 `json:"proj_contra_trial"`
	Ipsi       [][]float64 `json:"proj_ipsi_trial"`
	TimeStamps []float64   `json:"time_stamps"`
}

// Validate checks that every projected trial spans the time axis and that
// every sample is finite.
func (p Projection) Validate() error {
	if i := firstNonFinite(p.TimeStamps); i >= 0 {
		return fmt.Errorf("projection %s: %w: non-finite time stamp at %d", p.Group, ErrInvalid, i)
	}
	for _, rows := range [][][]float64{p.Contra, p.Ipsi} {
		for i, row := range rows {
			if len(row) != len(p.TimeStamps) {
				return fmt.Errorf("projection %s trial %d: %w: %d samples for %d time stamps", p.Group, i, ErrShapeMismatch, len(row), len(p.TimeStamps))
			}
			if j := firstNonFinite(row); j >= 0 {
				return fmt.Errorf("projection %s trial %d: %w: non-finite sample at %d", p.Group, i, ErrInvalid, j)
			}
		}
	}
	return nil
}

func firstNonFinite(values []float64) int {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}

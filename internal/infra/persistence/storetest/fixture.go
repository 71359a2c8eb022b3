// Package storetest holds the experiment fixture and the behavioural contract
// shared by every ephys.Store backend.
package storetest

import (
	"ephyscore/pkg/ephys"
)

// Trial condition names used by the fixture.
const (
	HitLeft          = "good_noearlylick_left_hit"
	HitRight         = "good_noearlylick_right_hit"
	BothALMNoStim    = "all_noearlylick_both_alm_nostim"
	BothALMStim      = "all_noearlylick_both_alm_stim"
	BothALMStimLeft  = "all_noearlylick_both_alm_stim_left"
	BothALMStimRight = "all_noearlylick_both_alm_stim_right"
	NoStimLeft       = "all_noearlylick_nostim_left"
	NoStimRight      = "all_noearlylick_nostim_right"
)

// Insertion ids of the fixture: LeftInsertion carries four units with a depth
// offset of 5, RightInsertion a single unit and no recorded offset.
const (
	LeftInsertion  = 1
	RightInsertion = 2
)

// Edges are the shared PSTH bin edges: -3 s to 2 s in 0.5 s bins.
func Edges() []float64 {
	out := make([]float64, 11)
	for i := range out {
		out[i] = -3 + 0.5*float64(i)
	}
	return out
}

func flat(v float64) []float64 {
	out := make([]float64, 10)
	for i := range out {
		out[i] = v
	}
	return out
}

// Key builds a unit key.
func Key(insertion, unit int) ephys.UnitKey {
	return ephys.UnitKey{InsertionID: insertion, Unit: unit}
}

func offset(v float64) *float64 { return &v }

// hit rates per unit: ipsi (left) and contra (right) for the left insertion.
var hitRates = map[ephys.UnitKey][2]float64{
	Key(LeftInsertion, 1):  {2, 6},
	Key(LeftInsertion, 2):  {8, 4},
	Key(LeftInsertion, 3):  {1, 3},
	Key(LeftInsertion, 4):  {5, 5},
	Key(RightInsertion, 1): {7, 2},
}

// Snapshot returns the complete fixture.
//
// Left insertion units, deepest corrected y first: 4 (405), 2 (305), 3 (205),
// 1 (105). Unit 3 carries the catch-all quality. Unit 1 is selective in sample
// only, unit 2 in delay and response, unit 3 in response only and unit 4 in no
// period.
func Snapshot() ephys.Snapshot {
	s := ephys.Snapshot{
		Insertions: []ephys.ProbeInsertion{
			{InsertionID: LeftInsertion, Subject: "SC011", Session: 1, Hemisphere: ephys.HemisphereLeft, DVLocation: offset(5)},
			{InsertionID: RightInsertion, Subject: "SC011", Session: 2, Hemisphere: ephys.HemisphereRight},
		},
		Units: []ephys.Unit{
			{Key: Key(LeftInsertion, 1), Quality: "good", PosX: 10, PosY: 100, Amplitude: 80, SNR: 4, FiringRate: 10, ISIViolation: 0.01},
			{Key: Key(LeftInsertion, 2), Quality: "good", PosX: 20, PosY: 300, Amplitude: 160, SNR: 8, FiringRate: 20, ISIViolation: 0.02},
			{Key: Key(LeftInsertion, 3), Quality: ephys.QualityAll, PosX: 30, PosY: 200, Amplitude: 40, SNR: 2, FiringRate: 5, ISIViolation: 0.05},
			{Key: Key(LeftInsertion, 4), Quality: "fair", PosX: 40, PosY: 400, Amplitude: 120, SNR: 6, FiringRate: 40, ISIViolation: 0},
			{Key: Key(RightInsertion, 1), Quality: "good", PosX: 15, PosY: 250, Amplitude: 90, SNR: 5, FiringRate: 12, ISIViolation: 0.03},
		},
		PeriodSelectivity: []ephys.PeriodSelectivity{
			{Key: Key(LeftInsertion, 1), Period: ephys.PeriodSample, Selectivity: ephys.ContraSelective, ContraFiringRate: 12, IpsiFiringRate: 4},
			{Key: Key(LeftInsertion, 1), Period: ephys.PeriodDelay, Selectivity: ephys.NonSelective, ContraFiringRate: 5, IpsiFiringRate: 5},
			{Key: Key(LeftInsertion, 1), Period: ephys.PeriodResponse, Selectivity: ephys.NonSelective, ContraFiringRate: 5, IpsiFiringRate: 5},
			{Key: Key(LeftInsertion, 2), Period: ephys.PeriodDelay, Selectivity: ephys.IpsiSelective, ContraFiringRate: 2, IpsiFiringRate: 6},
			{Key: Key(LeftInsertion, 2), Period: ephys.PeriodResponse, Selectivity: ephys.IpsiSelective, ContraFiringRate: 3, IpsiFiringRate: 5},
			{Key: Key(LeftInsertion, 3), Period: ephys.PeriodResponse, Selectivity: ephys.ContraSelective, ContraFiringRate: 9, IpsiFiringRate: 1},
			{Key: Key(LeftInsertion, 4), Period: ephys.PeriodSample, Selectivity: ephys.NonSelective, ContraFiringRate: 5, IpsiFiringRate: 5},
		},
		UnitSelectivity: []ephys.UnitSelectivity{
			{Key: Key(LeftInsertion, 1), Selectivity: ephys.ContraSelective},
			{Key: Key(LeftInsertion, 2), Selectivity: ephys.IpsiSelective},
			{Key: Key(LeftInsertion, 3), Selectivity: ephys.ContraSelective},
			{Key: Key(LeftInsertion, 4), Selectivity: ephys.NonSelective},
			{Key: Key(RightInsertion, 1), Selectivity: ephys.IpsiSelective},
		},
		TrialConditions: []ephys.TrialCondition{
			{Name: HitLeft, Description: "good no-early-lick left hit trials", Trials: []int{1, 3}},
			{Name: HitRight, Description: "good no-early-lick right hit trials", Trials: []int{2, 4}},
			{Name: BothALMNoStim, Description: "no-early-lick trials without photostim", Trials: []int{1, 2, 3, 4}},
			{Name: BothALMStim, Description: "no-early-lick bilateral ALM photostim trials", Trials: []int{5, 6, 7}},
			{Name: BothALMStimLeft, Trials: []int{5}},
			{Name: BothALMStimRight, Trials: []int{6}},
			{Name: NoStimLeft, Trials: []int{1}},
			{Name: NoStimRight, Trials: []int{2}},
		},
		Periods: []ephys.PeriodBoundary{
			{Period: ephys.PeriodSample, Start: -2.4, End: -1.2},
			{Period: ephys.PeriodDelay, Start: -1.2, End: 0},
			{Period: ephys.PeriodResponse, Start: 0, End: 1.2},
		},
		PhotostimEvents: []ephys.PhotostimEvent{
			{InsertionID: LeftInsertion, Trial: 5, Condition: BothALMStim, Onset: -1.2, Duration: 0.8},
			{InsertionID: LeftInsertion, Trial: 6, Condition: BothALMStim, Onset: -1.2, Duration: 0.8},
			{InsertionID: LeftInsertion, Trial: 7, Condition: BothALMStim, Onset: -1.6, Duration: 1.2},
			{InsertionID: RightInsertion, Trial: 5, Condition: BothALMStim, Onset: -1.0, Duration: 0.5},
		},
		Projections: []ephys.Projection{
			{
				Group:      "alm-left",
				TimeStamps: []float64{-1, -0.5, 0, 0.5, 1},
				Contra:     [][]float64{{0, 1, 2, 3, 4}, {0, 1, 2, 5, 6}, {0, 1, 2, 4, 5}},
				Ipsi:       [][]float64{{0, -1, -2, -3, -4}, {0, -1, -2, -1, 0}, {0, -1, -2, -2, -2}},
			},
			{
				Group:      "alm-right",
				TimeStamps: []float64{-1, -0.5, 0, 0.5, 1},
				Contra:     [][]float64{{1, 1, 1, 2, 2}, {1, 1, 1, 4, 4}, {1, 1, 1, 3, 3}},
				Ipsi:       [][]float64{{1, 1, 1, 0, 0}, {1, 1, 1, -2, -2}, {1, 1, 1, -1, -1}},
			},
			{
				Group:      "short",
				TimeStamps: []float64{-1, -0.5, 0, 0.5, 1},
				Contra:     [][]float64{{0, 0, 0, 1, 1}},
				Ipsi:       [][]float64{{0, 0, 0, -1, -1}},
			},
		},
	}

	edges := Edges()
	for _, u := range s.Units {
		hit := hitRates[u.Key]
		s.PSTH = append(s.PSTH,
			ephys.PSTHSeries{Key: u.Key, Condition: HitLeft, Edges: edges, Rates: flat(hit[0])},
			ephys.PSTHSeries{Key: u.Key, Condition: HitRight, Edges: edges, Rates: flat(hit[1])},
		)
		if u.Key.InsertionID != LeftInsertion {
			continue
		}
		// photostim raises unit n by 10*n percent over a 10*n spike/s baseline
		base := 10 * float64(u.Key.Unit)
		s.PSTH = append(s.PSTH,
			ephys.PSTHSeries{Key: u.Key, Condition: BothALMNoStim, Edges: edges, Rates: flat(base)},
			ephys.PSTHSeries{Key: u.Key, Condition: BothALMStim, Edges: edges, Rates: flat(base * (1 + 0.1*float64(u.Key.Unit)))},
			ephys.PSTHSeries{Key: u.Key, Condition: NoStimLeft, Edges: edges, Rates: flat(hit[0])},
			ephys.PSTHSeries{Key: u.Key, Condition: NoStimRight, Edges: edges, Rates: flat(hit[1])},
			ephys.PSTHSeries{Key: u.Key, Condition: BothALMStimLeft, Edges: edges, Rates: flat(hit[0] / 2)},
			ephys.PSTHSeries{Key: u.Key, Condition: BothALMStimRight, Edges: edges, Rates: flat(hit[1] / 2)},
		)
	}
	return s
}

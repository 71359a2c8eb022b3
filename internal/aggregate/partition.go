package aggregate

import (
	"ephyscore/pkg/ephys"
)

// Partition splits a unit group by where in the trial its units are selective.
// Groups never share a unit and each keeps the input order.
type Partition struct {
	// SampleDelay holds units selective in sample or delay but not response.
	SampleDelay []ephys.UnitKey
	// SampleDelayResponse holds units selective in sample or delay and in response.
	SampleDelayResponse []ephys.UnitKey
	// Response holds units selective in response only.
	Response []ephys.UnitKey
	// Excluded holds units selective in no period; they are never stacked.
	Excluded []ephys.UnitKey
}

// PartitionLabels names the stacked groups in stacking order.
var PartitionLabels = []string{"sample/delay", "sample/delay+response", "response"}

// Groups returns the three stacked groups in their fixed order:
// sample/delay, sample/delay+response, response.
func (p Partition) Groups() [][]ephys.UnitKey {
	return [][]ephys.UnitKey{p.SampleDelay, p.SampleDelayResponse, p.Response}
}

// Len counts the units placed in the three stacked groups.
func (p Partition) Len() int {
	return len(p.SampleDelay) + len(p.SampleDelayResponse) + len(p.Response)
}

// PartitionBySelectivity assigns each unit to a group using its period
// records. A period with no record counts as non-selective. Records for units
// outside the group are ignored and duplicate input keys are kept once.
func PartitionBySelectivity(units []ephys.UnitKey, records []ephys.PeriodSelectivity) Partition {
	type flags struct{ early, response bool }
	seen := make(map[ephys.UnitKey]flags, len(units))
	for _, k := range units {
		seen[k] = flags{}
	}
	for _, rec := range records {
		f, ok := seen[rec.Key]
		if !ok || !rec.Selectivity.Selective() {
			continue
		}
		switch rec.Period {
		case ephys.PeriodSample, ephys.PeriodDelay:
			f.early = true
		case ephys.PeriodResponse:
			f.response = true
		}
		seen[rec.Key] = f
	}

	var p Partition
	placed := make(map[ephys.UnitKey]struct{}, len(units))
	for _, k := range units {
		if _, dup := placed[k]; dup {
			continue
		}
		placed[k] = struct{}{}
		f := seen[k]
		switch {
		case f.early && !f.response:
			p.SampleDelay = append(p.SampleDelay, k)
		case f.early && f.response:
			p.SampleDelayResponse = append(p.SampleDelayResponse, k)
		case f.response:
			p.Response = append(p.Response, k)
		default:
			p.Excluded = append(p.Excluded, k)
		}
	}
	return p
}

// SelectivitySplit divides units by their overall selectivity label.
type SelectivitySplit struct {
	Ipsi   []ephys.UnitKey
	Contra []ephys.UnitKey
}

// SplitBySelectivity keeps the order of units; units without a selective label
// are dropped.
func SplitBySelectivity(units []ephys.UnitKey, labels []ephys.UnitSelectivity) SelectivitySplit {
	byKey := make(map[ephys.UnitKey]ephys.Selectivity, len(labels))
	for _, l := range labels {
		byKey[l.Key] = l.Selectivity
	}
	var out SelectivitySplit
	for _, k := range units {
		switch byKey[k] {
		case ephys.IpsiSelective:
			out.Ipsi = append(out.Ipsi, k)
		case ephys.ContraSelective:
			out.Contra = append(out.Contra, k)
		}
	}
	return out
}

package aggregate

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"ephyscore/pkg/ephys"
)

// DefaultStimDuration is used when no photostim duration was recorded (seconds).
const DefaultStimDuration = 0.5

// StimDuration reports the chosen duration and what it was chosen from.
type StimDuration struct {
	Value     float64
	Observed  []float64
	Defaulted bool
}

// Ambiguous reports whether more than one distinct duration was observed.
func (d StimDuration) Ambiguous() bool { return len(d.Observed) > 1 }

// ExtractOneStimDuration picks a single representative duration: the shortest
// distinct finite positive value, or fallback when none was observed.
func ExtractOneStimDuration(durations []float64, fallback float64) StimDuration {
	var observed []float64
	for _, d := range durations {
		if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			continue
		}
		observed = append(observed, d)
	}
	slices.Sort(observed)
	observed = slices.Compact(observed)
	if len(observed) == 0 {
		return StimDuration{Value: fallback, Defaulted: true}
	}
	return StimDuration{Value: observed[0], Observed: observed}
}

// PhotostimTiming resolves the stimulation onset and duration from trial
// events. The onset is the earliest onset among events of the chosen duration.
func PhotostimTiming(events []ephys.PhotostimEvent, fallback float64) (onset float64, dur StimDuration, err error) {
	if len(events) == 0 {
		return 0, StimDuration{}, ephys.NoData("no photostim events")
	}
	durations := make([]float64, len(events))
	for i, ev := range events {
		durations[i] = ev.Duration
	}
	dur = ExtractOneStimDuration(durations, fallback)
	found := false
	for _, ev := range events {
		if !dur.Defaulted && ev.Duration != dur.Value {
			continue
		}
		if !found || ev.Onset < onset {
			onset = ev.Onset
			found = true
		}
	}
	return onset, dur, nil
}

// FiringRateChange is |mean(stim) - mean(ctrl)| / mean(ctrl). A zero control
// mean divides by one.
func FiringRateChange(ctrl, stim []float64) (float64, error) {
	if len(ctrl) == 0 || len(stim) == 0 {
		return 0, ephys.NoData("empty photostim window (%d control bins, %d stim bins)", len(ctrl), len(stim))
	}
	base := stat.Mean(ctrl, nil)
	diff := math.Abs(stat.Mean(stim, nil) - base)
	if base == 0 {
		return diff, nil
	}
	return diff / base, nil
}

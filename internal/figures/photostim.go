package figures

import (
	"context"
	"fmt"
	"slices"

	"ephyscore/internal/aggregate"
	"ephyscore/pkg/ephys"
)

// Bilateral ALM photostim conditions.
const (
	BothALMNoStim = "all_noearlylick_both_alm_nostim"
	BothALMStim   = "all_noearlylick_both_alm_stim"
)

// DefaultStimKeywords selects bilateral ALM stimulation.
var DefaultStimKeywords = []string{"both_alm"}

// stimDurationNote describes how the stim duration was chosen, or "".
func stimDurationNote(d aggregate.StimDuration) string {
	switch {
	case d.Defaulted:
		return fmt.Sprintf("no photostim duration recorded, using %gs", d.Value)
	case d.Ambiguous():
		return fmt.Sprintf("photostim durations %v observed, using %gs", d.Observed, d.Value)
	}
	return ""
}

// BilateralPhotostimEffect places the good units of an insertion at their
// probe position, sized by the normalized firing-rate change between control
// and bilateral ALM photostim trials inside the stimulation window.
func (s *Service) BilateralPhotostimEffect(ctx context.Context, insertionID int) (Figure, error) {
	return s.run(ctx, NameBilateralPhotostimEffect, func(ctx context.Context) (Figure, error) {
		delay, err := fetch(ctx, s, func(ctx context.Context) ([]ephys.PeriodBoundary, error) {
			return s.store.Periods(ctx, ephys.PeriodDelay)
		})
		if err != nil {
			return Figure{}, err
		}
		if len(delay) == 0 {
			return Figure{}, ephys.NoData("delay period")
		}
		cue := delay[0].Start

		if err := s.requireConditions(ctx, BothALMNoStim, BothALMStim); err != nil {
			return Figure{}, err
		}
		events, err := s.photostimEvents(ctx, ephys.PhotostimQuery{InsertionIDs: []int{insertionID}, Condition: BothALMStim})
		if err != nil {
			return Figure{}, err
		}
		durations := make([]float64, len(events))
		for i, ev := range events {
			durations[i] = ev.Duration
		}
		dur := aggregate.ExtractOneStimDuration(durations, aggregate.DefaultStimDuration)

		filter := ephys.Insertion(insertionID).Good()
		units, err := s.units(ctx, filter)
		if err != nil {
			return Figure{}, err
		}
		ctrl, err := s.psth(ctx, filter, BothALMNoStim)
		if err != nil {
			return Figure{}, err
		}
		stim, err := s.psth(ctx, filter, BothALMStim)
		if err != nil {
			return Figure{}, err
		}
		ctrl, stim, err = aggregate.PairByUnit(ctrl, stim)
		if err != nil {
			return Figure{}, err
		}
		if len(ctrl) == 0 {
			return Figure{}, ephys.NoData("no good units with photostim PSTHs for insertion %d", insertionID)
		}
		byKey := make(map[ephys.UnitKey]ephys.UnitRecord, len(units))
		for _, u := range units {
			byKey[u.Key] = u
		}

		change := make([]float64, len(ctrl))
		for i := range ctrl {
			if err := ctrl[i].Validate(); err != nil {
				return Figure{}, err
			}
			if err := stim[i].Validate(); err != nil {
				return Figure{}, err
			}
			c := aggregate.Pick(ctrl[i].Rates, aggregate.ClosedWindow(ctrl[i].Edges, cue, cue+dur.Value))
			st := aggregate.Pick(stim[i].Rates, aggregate.ClosedWindow(stim[i].Edges, cue, cue+dur.Value))
			v, err := aggregate.FiringRateChange(c, st)
			if err != nil {
				return Figure{}, fmt.Errorf("unit %s: %w", ctrl[i].Key, err)
			}
			change[i] = v
		}
		weights := aggregate.MaxNormalize(change)

		series := ScatterSeries{Color: Black, Weighted: true}
		for i, p := range ctrl {
			u, ok := byKey[p.Key]
			if !ok {
				return Figure{}, fmt.Errorf("psth %s: %w: unit not found", p.Key, ephys.ErrInvalid)
			}
			series.Points = append(series.Points, Point{X: u.PosX, Y: u.PosY, Weight: weights[i], Unit: keyRef(u.Key)})
		}
		fig := Figure{
			Rows: 1, Cols: 1, Width: 4, Height: 8,
			Panels: []Panel{{Title: "% change", XLim: probeXLim, Scatter: []ScatterSeries{series}}},
		}
		if note := stimDurationNote(dur); note != "" {
			fig.Notes = append(fig.Notes, note)
		}
		return fig, nil
	})
}

// resolveCondition returns the first sorted condition name matching every keyword.
func resolveCondition(names []string, keywords ...string) (string, error) {
	matches := aggregate.ConditionNameFromKeywords(names, keywords...)
	if len(matches) == 0 {
		return "", ephys.NoData("trial condition matching %q", keywords)
	}
	return matches[0], nil
}

// PSTHPhotostimEffect compares control and photostim mean PSTHs of a unit group
// for ipsi and contra trials. keywords pick the stimulation site; none means
// bilateral ALM.
func (s *Service) PSTHPhotostimEffect(ctx context.Context, filter ephys.UnitFilter, keywords ...string) (Figure, error) {
	if len(keywords) == 0 {
		keywords = DefaultStimKeywords
	}
	return s.run(ctx, NamePSTHPhotostimEffect, func(ctx context.Context) (Figure, error) {
		units, err := s.units(ctx, filter)
		if err != nil {
			return Figure{}, err
		}
		hemi, err := aggregate.ResolveHemisphere(units)
		if err != nil {
			return Figure{}, err
		}
		starts, err := s.periodStarts(ctx)
		if err != nil {
			return Figure{}, err
		}
		names, err := s.conditionNames(ctx)
		if err != nil {
			return Figure{}, err
		}

		with := func(extra string) []string {
			return append(slices.Clone(keywords), extra)
		}
		ctrlLeft, err := resolveCondition(names, "_nostim", "_left")
		if err != nil {
			return Figure{}, err
		}
		ctrlRight, err := resolveCondition(names, "_nostim", "_right")
		if err != nil {
			return Figure{}, err
		}
		stimLeft, err := resolveCondition(names, with("_stim_left")...)
		if err != nil {
			return Figure{}, err
		}
		stimRight, err := resolveCondition(names, with("_stim_right")...)
		if err != nil {
			return Figure{}, err
		}
		stimTrials, err := resolveCondition(names, with("_stim")...)
		if err != nil {
			return Figure{}, err
		}

		ctrlSides, err := aggregate.TrialSides(hemi, ctrlLeft, ctrlRight)
		if err != nil {
			return Figure{}, err
		}
		stimSides, err := aggregate.TrialSides(hemi, stimLeft, stimRight)
		if err != nil {
			return Figure{}, err
		}

		events, err := s.photostimEvents(ctx, ephys.PhotostimQuery{InsertionIDs: insertionIDs(units), Condition: stimTrials})
		if err != nil {
			return Figure{}, err
		}
		onset, dur, err := aggregate.PhotostimTiming(events, aggregate.DefaultStimDuration)
		if err != nil {
			return Figure{}, err
		}

		var panels []Panel
		for _, side := range []struct {
			title string
			sides aggregate.Sides
		}{
			{"Control", ctrlSides},
			{"Photostim", stimSides},
		} {
			ipsi, err := s.psth(ctx, filter, side.sides.Ipsi)
			if err != nil {
				return Figure{}, err
			}
			contra, err := s.psth(ctx, filter, side.sides.Contra)
			if err != nil {
				return Figure{}, err
			}
			p, err := avgPanel(side.title, ipsi, contra, starts)
			if err != nil {
				return Figure{}, err
			}
			panels = append(panels, p)
		}
		if !panelsHaveLines(panels) {
			return Figure{}, ephys.NoData("no PSTHs for control or photostim trials")
		}
		shareYLim(panels)
		panels[1].Spans = append(panels[1].Spans, Span{Start: onset, End: onset + dur.Value, Color: RoyalBlue, Alpha: 0.3})

		fig := Figure{Rows: 1, Cols: 2, Width: 16, Height: 6, Panels: panels}
		if note := stimDurationNote(dur); note != "" {
			fig.Notes = append(fig.Notes, note)
		}
		return fig, nil
	})
}

func insertionIDs(units []ephys.UnitRecord) []int {
	var ids []int
	for _, u := range units {
		if !slices.Contains(ids, u.Key.InsertionID) {
			ids = append(ids, u.Key.InsertionID)
		}
	}
	slices.Sort(ids)
	return ids
}

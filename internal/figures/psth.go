package figures

import (
	"context"
	"fmt"
	"math"
	"slices"

	"ephyscore/internal/aggregate"
	"ephyscore/pkg/ephys"
)

const (
	timeLabel = "Time to go-cue (s)"
	unitLabel = "Unit"
)

// go-cue aligned x-range of the PSTH figures
var psthXLim = &Range{Min: -3, Max: 2}

// selectivityClim clamps stacked differences to the normalized row range.
var selectivityClim = Range{Min: -1, Max: 1}

// unitGroup is a unit selection resolved to one hemisphere.
type unitGroup struct {
	units  []ephys.UnitRecord
	keys   []ephys.UnitKey
	sides  aggregate.Sides
	starts []float64
}

func (s *Service) resolveGroup(ctx context.Context, filter ephys.UnitFilter) (unitGroup, error) {
	units, err := s.units(ctx, filter)
	if err != nil {
		return unitGroup{}, err
	}
	hemi, err := aggregate.ResolveHemisphere(units)
	if err != nil {
		return unitGroup{}, err
	}
	sides, err := aggregate.HitConditions(hemi)
	if err != nil {
		return unitGroup{}, err
	}
	if err := s.requireConditions(ctx, sides.Ipsi, sides.Contra); err != nil {
		return unitGroup{}, err
	}
	starts, err := s.periodStarts(ctx)
	if err != nil {
		return unitGroup{}, err
	}
	return unitGroup{units: units, keys: aggregate.Keys(units), sides: sides, starts: starts}, nil
}

// stacked holds one stacked, row-normalized difference matrix.
type stacked struct {
	values aggregate.Matrix
	edges  []float64
	units  []ephys.UnitKey
}

// stackedDiff returns (minuend - subtrahend) per unit, rows deepest first.
func (s *Service) stackedDiff(ctx context.Context, filter ephys.UnitFilter, keys []ephys.UnitKey, minuend, subtrahend string, flip bool) (stacked, error) {
	if len(keys) == 0 {
		return stacked{}, nil
	}
	narrowed := filter.WithUnits(keys)
	a, err := s.psth(ctx, narrowed, minuend)
	if err != nil {
		return stacked{}, err
	}
	b, err := s.psth(ctx, narrowed, subtrahend)
	if err != nil {
		return stacked{}, err
	}
	a, b, err = aggregate.PairByUnit(a, b)
	if err != nil {
		return stacked{}, err
	}
	ma, edges, err := aggregate.PSTHMatrix(a)
	if err != nil {
		return stacked{}, err
	}
	mb, edgesB, err := aggregate.PSTHMatrix(b)
	if err != nil {
		return stacked{}, err
	}
	if !slices.Equal(edges, edgesB) {
		return stacked{}, fmt.Errorf("%s vs %s: %w: bin edges differ", minuend, subtrahend, ephys.ErrShapeMismatch)
	}
	diff, err := aggregate.StackedDifference(ma, mb, aggregate.DiffOptions{Flip: flip, NormalizeRows: true, Smooth: s.opts.settings.SmoothBins})
	if err != nil {
		return stacked{}, err
	}
	out := stacked{values: diff, edges: edges}
	for _, series := range a {
		out.units = append(out.units, series.Key)
	}
	return out, nil
}

func heatmapPanel(title string, st stacked, starts []float64) Panel {
	p := Panel{
		Title:  title,
		XLabel: timeLabel,
		YLabel: unitLabel,
		XLim:   psthXLim,
		VLines: starts,
	}
	if len(st.values) > 0 {
		p.Heatmap = &Heatmap{
			Values: st.values,
			XMin:   st.edges[0],
			XMax:   st.edges[len(st.edges)-1],
			Edges:  st.edges,
			Clim:   selectivityClim,
			Units:  st.units,
		}
	}
	return p
}

// StackedContraIpsiPSTH stacks, deepest unit first, the contra − ipsi hit PSTH
// of contra-selective units (sign flipped) and the ipsi − contra PSTH of
// ipsi-selective units.
func (s *Service) StackedContraIpsiPSTH(ctx context.Context, filter ephys.UnitFilter) (Figure, error) {
	return s.run(ctx, NameStackedContraIpsiPSTH, func(ctx context.Context) (Figure, error) {
		g, err := s.resolveGroup(ctx, filter)
		if err != nil {
			return Figure{}, err
		}
		labels, err := s.unitSelectivity(ctx, filter)
		if err != nil {
			return Figure{}, err
		}
		split := aggregate.SplitBySelectivity(g.keys, labels)

		contra, err := s.stackedDiff(ctx, filter, split.Contra, g.sides.Contra, g.sides.Ipsi, true)
		if err != nil {
			return Figure{}, err
		}
		ipsi, err := s.stackedDiff(ctx, filter, split.Ipsi, g.sides.Ipsi, g.sides.Contra, false)
		if err != nil {
			return Figure{}, err
		}
		if len(contra.values)+len(ipsi.values) == 0 {
			return Figure{}, ephys.NoData("no selective units with hit PSTHs")
		}
		return Figure{
			Rows: 1, Cols: 2, Width: 20, Height: 20,
			Panels: []Panel{
				heatmapPanel("Contra-selective Units", contra, g.starts),
				heatmapPanel("Ipsi-selective Units", ipsi, g.starts),
			},
		}, nil
	})
}

// SelectivitySortedStackedPSTH is StackedContraIpsiPSTH with rows grouped by
// where in the trial each unit is selective: sample/delay only, sample/delay
// and response, response only. Units selective in no period are left out.
func (s *Service) SelectivitySortedStackedPSTH(ctx context.Context, filter ephys.UnitFilter) (Figure, error) {
	return s.run(ctx, NameSelectivitySortedPSTH, func(ctx context.Context) (Figure, error) {
		g, err := s.resolveGroup(ctx, filter)
		if err != nil {
			return Figure{}, err
		}
		records, err := s.periodSelectivity(ctx, ephys.SelectivityQuery{Units: filter, Periods: ephys.TaskPeriods})
		if err != nil {
			return Figure{}, err
		}
		labels, err := s.unitSelectivity(ctx, filter)
		if err != nil {
			return Figure{}, err
		}
		part := aggregate.PartitionBySelectivity(g.keys, records)

		var contraParts, ipsiParts []stacked
		for _, group := range part.Groups() {
			split := aggregate.SplitBySelectivity(group, labels)
			c, err := s.stackedDiff(ctx, filter, split.Contra, g.sides.Contra, g.sides.Ipsi, true)
			if err != nil {
				return Figure{}, err
			}
			i, err := s.stackedDiff(ctx, filter, split.Ipsi, g.sides.Ipsi, g.sides.Contra, false)
			if err != nil {
				return Figure{}, err
			}
			contraParts = append(contraParts, c)
			ipsiParts = append(ipsiParts, i)
		}
		contra, err := vstack(contraParts)
		if err != nil {
			return Figure{}, err
		}
		ipsi, err := vstack(ipsiParts)
		if err != nil {
			return Figure{}, err
		}
		if len(contra.values)+len(ipsi.values) == 0 {
			return Figure{}, ephys.NoData("no period-selective units with hit PSTHs")
		}
		fig := Figure{
			Rows: 1, Cols: 2, Width: 20, Height: 20,
			Panels: []Panel{
				heatmapPanel("Contra-selective Units", contra, g.starts),
				heatmapPanel("Ipsi-selective Units", ipsi, g.starts),
			},
		}
		return fig, nil
	})
}

func vstack(parts []stacked) (stacked, error) {
	var (
		out    stacked
		blocks []aggregate.Matrix
	)
	for _, p := range parts {
		if len(p.values) == 0 {
			continue
		}
		if out.edges == nil {
			out.edges = p.edges
		}
		blocks = append(blocks, p.values)
		out.units = append(out.units, p.units...)
	}
	values, err := aggregate.VStack(blocks...)
	if err != nil {
		return stacked{}, err
	}
	out.values = values
	return out, nil
}

// avgSeries computes mean ± SEM of the series; ok is false when there are none.
func avgSeries(series []ephys.PSTHSeries, label, color string) (LineSeries, bool, error) {
	m, edges, err := aggregate.PSTHMatrix(series)
	if err != nil {
		return LineSeries{}, false, err
	}
	if len(m) == 0 {
		return LineSeries{}, false, nil
	}
	mean, sem, err := aggregate.MeanSEM(m)
	if err != nil {
		return LineSeries{}, false, err
	}
	return LineSeries{Label: label, Color: color, X: binCenters(edges), Y: mean, Band: sem}, true, nil
}

// avgPanel draws ipsi (red) and contra (blue) mean PSTHs.
func avgPanel(title string, ipsi, contra []ephys.PSTHSeries, starts []float64) (Panel, error) {
	p := Panel{Title: title, XLabel: timeLabel, YLabel: "Firing rate (spike/s)", XLim: psthXLim, VLines: starts}
	for _, side := range []struct {
		series []ephys.PSTHSeries
		label  string
		color  string
	}{
		{ipsi, "ipsi", Red},
		{contra, "contra", Blue},
	} {
		line, ok, err := avgSeries(side.series, side.label, side.color)
		if err != nil {
			return Panel{}, err
		}
		if ok {
			p.Lines = append(p.Lines, line)
		}
	}
	return p, nil
}

// shareYLim applies a common [0, max(mean+sem)] y-range across panels.
func shareYLim(panels []Panel) {
	top := math.Inf(-1)
	for _, p := range panels {
		for _, l := range p.Lines {
			top = math.Max(top, aggregate.UpperBound(l.Y, l.Band))
		}
	}
	if math.IsInf(top, -1) || top <= 0 {
		top = 1
	}
	for i := range panels {
		panels[i].YLim = &Range{Min: 0, Max: top}
	}
}

func binCenters(edges []float64) []float64 {
	if len(edges) < 2 {
		return nil
	}
	out := make([]float64, len(edges)-1)
	for i := range out {
		out[i] = (edges[i] + edges[i+1]) / 2
	}
	return out
}

func panelsHaveLines(panels []Panel) bool {
	for _, p := range panels {
		if len(p.Lines) > 0 {
			return true
		}
	}
	return false
}

// AvgContraIpsiPSTH averages the ipsi and contra hit PSTHs of the good
// contra-selective and ipsi-selective units of a group.
func (s *Service) AvgContraIpsiPSTH(ctx context.Context, filter ephys.UnitFilter) (Figure, error) {
	return s.run(ctx, NameAvgContraIpsiPSTH, func(ctx context.Context) (Figure, error) {
		g, err := s.resolveGroup(ctx, filter)
		if err != nil {
			return Figure{}, err
		}
		labels, err := s.unitSelectivity(ctx, filter)
		if err != nil {
			return Figure{}, err
		}
		split := aggregate.SplitBySelectivity(g.keys, labels)
		good := filter.Good()

		var panels []Panel
		for _, grp := range []struct {
			title string
			keys  []ephys.UnitKey
		}{
			{"Contra-selective", split.Contra},
			{"Ipsi-selective", split.Ipsi},
		} {
			var ipsi, contra []ephys.PSTHSeries
			if len(grp.keys) > 0 {
				if ipsi, err = s.psth(ctx, good.WithUnits(grp.keys), g.sides.Ipsi); err != nil {
					return Figure{}, err
				}
				if contra, err = s.psth(ctx, good.WithUnits(grp.keys), g.sides.Contra); err != nil {
					return Figure{}, err
				}
			}
			p, err := avgPanel(grp.title, ipsi, contra, g.starts)
			if err != nil {
				return Figure{}, err
			}
			panels = append(panels, p)
		}
		if !panelsHaveLines(panels) {
			return Figure{}, ephys.NoData("no good selective units with hit PSTHs")
		}
		shareYLim(panels)
		return Figure{Rows: 1, Cols: 2, Width: 16, Height: 6, Panels: panels}, nil
	})
}

package figures

import (
	"context"
	"fmt"

	"ephyscore/internal/aggregate"
	"ephyscore/pkg/ephys"
)

const (
	cdLabel     = "CD projection (a.u.)"
	cdTimeLabel = "Time (s)"
)

// DefaultGroupLabels names the two groups of a paired coding-direction figure.
var DefaultGroupLabels = []string{"unit group 1", "unit group 2"}

// PairedRequest selects two projected unit groups and the endpoint window.
type PairedRequest struct {
	Groups [2]string `json:"groups"`
	// Labels has exactly two entries or none.
	Labels []string `json:"labels,omitempty"`
	// Window is the half-open [Min, Max) endpoint interval.
	Window Range `json:"window"`
}

func (s *Service) cdPanel(title string, proj ephys.Projection, starts []float64) (Panel, error) {
	if err := proj.Validate(); err != nil {
		return Panel{}, err
	}
	p := Panel{Title: title, XLabel: cdTimeLabel, YLabel: cdLabel, VLines: starts}
	for _, side := range []struct {
		trials [][]float64
		label  string
		color  string
	}{
		{proj.Contra, "contra", Blue},
		{proj.Ipsi, "ipsi", Red},
	} {
		if len(side.trials) == 0 {
			continue
		}
		mean, sem, err := aggregate.MeanSEM(aggregate.Matrix(side.trials))
		if err != nil {
			return Panel{}, err
		}
		p.Lines = append(p.Lines, LineSeries{
			Label: side.label,
			Color: side.color,
			X:     append([]float64(nil), proj.TimeStamps...),
			Y:     mean,
			Band:  sem,
		})
	}
	if len(p.Lines) == 0 {
		return Panel{}, ephys.NoData("no projected trials for unit group %q", proj.Group)
	}
	return p, nil
}

// CodingDirection plots the mean ± SEM coding-direction projection of contra
// and ipsi trials for one unit group.
func (s *Service) CodingDirection(ctx context.Context, group string) (Figure, error) {
	return s.run(ctx, NameCodingDirection, func(ctx context.Context) (Figure, error) {
		proj, err := s.projection(ctx, group)
		if err != nil {
			return Figure{}, err
		}
		starts, err := s.periodStarts(ctx)
		if err != nil {
			return Figure{}, err
		}
		p, err := s.cdPanel("", proj, starts)
		if err != nil {
			return Figure{}, err
		}
		return Figure{Rows: 1, Cols: 1, Width: 8, Height: 6, Panels: []Panel{p}}, nil
	})
}

// PairedCodingDirection plots the projections of two unit groups side by side
// and scatters their per-trial CD endpoints, the projection averaged over the
// request window, against each other.
func (s *Service) PairedCodingDirection(ctx context.Context, req PairedRequest) (Figure, error) {
	return s.run(ctx, NamePairedCodingDirection, func(ctx context.Context) (Figure, error) {
		labels := req.Labels
		switch len(labels) {
		case 0:
			labels = DefaultGroupLabels
		case 2:
		default:
			return Figure{}, fmt.Errorf("paired coding direction: %w: %d labels, want 2", ephys.ErrInvalid, len(labels))
		}
		if !(req.Window.Max > req.Window.Min) {
			return Figure{}, fmt.Errorf("paired coding direction: %w: empty window [%g, %g)", ephys.ErrInvalid, req.Window.Min, req.Window.Max)
		}
		starts, err := s.periodStarts(ctx)
		if err != nil {
			return Figure{}, err
		}

		var (
			projs  [2]ephys.Projection
			panels []Panel
		)
		for i, group := range req.Groups {
			if projs[i], err = s.projection(ctx, group); err != nil {
				return Figure{}, err
			}
			p, err := s.cdPanel(labels[i], projs[i], starts)
			if err != nil {
				return Figure{}, err
			}
			panels = append(panels, p)
		}

		table := &Table{Columns: append([]string(nil), labels...)}
		endpoints := Panel{XLabel: labels[0], YLabel: labels[1]}
		for _, side := range []struct {
			label string
			color string
			pick  func(ephys.Projection) [][]float64
		}{
			{"contra", Blue, func(p ephys.Projection) [][]float64 { return p.Contra }},
			{"ipsi", Red, func(p ephys.Projection) [][]float64 { return p.Ipsi }},
		} {
			a, b := side.pick(projs[0]), side.pick(projs[1])
			if len(a) != len(b) {
				return Figure{}, fmt.Errorf("%s trials: %w: %d in %q, %d in %q", side.label, ephys.ErrShapeMismatch, len(a), req.Groups[0], len(b), req.Groups[1])
			}
			if len(a) == 0 {
				continue
			}
			ea, err := aggregate.WindowMeans(aggregate.Matrix(a), projs[0].TimeStamps, req.Window.Min, req.Window.Max)
			if err != nil {
				return Figure{}, err
			}
			eb, err := aggregate.WindowMeans(aggregate.Matrix(b), projs[1].TimeStamps, req.Window.Min, req.Window.Max)
			if err != nil {
				return Figure{}, err
			}
			series := ScatterSeries{Label: side.label, Color: side.color}
			for i := range ea {
				series.Points = append(series.Points, Point{X: ea[i], Y: eb[i]})
				table.Rows = append(table.Rows, TableRow{Values: []float64{ea[i], eb[i]}, Label: side.label})
			}
			endpoints.Scatter = append(endpoints.Scatter, series)
		}
		panels = append(panels, endpoints)
		return Figure{Rows: 1, Cols: 3, Width: 24, Height: 6, Panels: panels, Table: table}, nil
	})
}

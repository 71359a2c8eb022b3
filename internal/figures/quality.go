package figures

import (
	"context"
	"fmt"

	"ephyscore/internal/aggregate"
	"ephyscore/pkg/ephys"
)

// probe x-range shared by the per-insertion scatter figures
var probeXLim = &Range{Min: -10, Max: 60}

type metric struct {
	label  string
	values []float64
}

// ClusteringQuality scatters every pair of unit quality metrics of one
// insertion: amplitude, SNR, ISI violation (%) and firing rate.
func (s *Service) ClusteringQuality(ctx context.Context, insertionID int) (Figure, error) {
	return s.run(ctx, NameClusteringQuality, func(ctx context.Context) (Figure, error) {
		units, err := s.units(ctx, ephys.Insertion(insertionID))
		if err != nil {
			return Figure{}, err
		}
		if len(units) == 0 {
			return Figure{}, ephys.NoData("no units for insertion %d", insertionID)
		}
		metrics := make([]metric, 4)
		metrics[0].label = "Amplitude"
		metrics[1].label = "Signal to noise ratio (SNR)"
		metrics[2].label = "ISI violation (%)"
		metrics[3].label = "Firing rate (spike/s)"
		for _, u := range units {
			metrics[0].values = append(metrics[0].values, u.Amplitude)
			metrics[1].values = append(metrics[1].values, u.SNR)
			metrics[2].values = append(metrics[2].values, u.ISIViolation*100)
			metrics[3].values = append(metrics[3].values, u.FiringRate)
		}

		fig := Figure{Rows: 2, Cols: 3, Width: 12, Height: 8}
		for i := 0; i < len(metrics); i++ {
			for j := i + 1; j < len(metrics); j++ {
				series := ScatterSeries{Color: Black}
				for k, u := range units {
					series.Points = append(series.Points, Point{X: metrics[i].values[k], Y: metrics[j].values[k], Unit: keyRef(u.Key)})
				}
				fig.Panels = append(fig.Panels, Panel{
					XLabel:  metrics[i].label,
					YLabel:  metrics[j].label,
					Scatter: []ScatterSeries{series},
				})
			}
		}
		return fig, nil
	})
}

// UnitCharacteristic places the good units of an insertion at their probe
// position, sized by normalized amplitude, SNR and firing rate.
func (s *Service) UnitCharacteristic(ctx context.Context, insertionID int) (Figure, error) {
	return s.run(ctx, NameUnitCharacteristic, func(ctx context.Context) (Figure, error) {
		units, err := s.units(ctx, ephys.Insertion(insertionID).Good())
		if err != nil {
			return Figure{}, err
		}
		if len(units) == 0 {
			return Figure{}, ephys.NoData("no good units for insertion %d", insertionID)
		}
		amp := make([]float64, len(units))
		snr := make([]float64, len(units))
		rate := make([]float64, len(units))
		for i, u := range units {
			amp[i], snr[i], rate[i] = u.Amplitude, u.SNR, u.FiringRate
		}
		depths := aggregate.CorrectedDepths(units)

		fig := Figure{Rows: 1, Cols: 3, Width: 10, Height: 8}
		for _, m := range []metric{
			{label: "Amplitude", values: aggregate.MaxNormalize(amp)},
			{label: "SNR", values: aggregate.MaxNormalize(snr)},
			{label: "Firing rate", values: aggregate.MaxNormalize(rate)},
		} {
			series := ScatterSeries{Color: Black, Weighted: true}
			for i, u := range units {
				series.Points = append(series.Points, Point{X: u.PosX, Y: depths[i], Weight: m.values[i], Unit: keyRef(u.Key)})
			}
			fig.Panels = append(fig.Panels, Panel{Title: m.label, XLim: probeXLim, Scatter: []ScatterSeries{series}})
		}
		return fig, nil
	})
}

// UnitSelectivity places the selective period records of an insertion at
// their unit position, sized by the normalized ipsi/contra rate difference,
// one panel per task period.
func (s *Service) UnitSelectivity(ctx context.Context, insertionID int) (Figure, error) {
	return s.run(ctx, NameUnitSelectivity, func(ctx context.Context) (Figure, error) {
		filter := ephys.Insertion(insertionID)
		records, err := s.periodSelectivity(ctx, ephys.SelectivityQuery{
			Units:         filter,
			ExcludeLabels: []ephys.Selectivity{ephys.NonSelective},
		})
		if err != nil {
			return Figure{}, err
		}
		if len(records) == 0 {
			return Figure{}, ephys.NoData("no selective units for insertion %d", insertionID)
		}
		units, err := s.units(ctx, filter)
		if err != nil {
			return Figure{}, err
		}
		byKey := make(map[ephys.UnitKey]ephys.UnitRecord, len(units))
		for _, u := range units {
			byKey[u.Key] = u
		}

		diff := make([]float64, len(records))
		for i, r := range records {
			d := r.IpsiFiringRate - r.ContraFiringRate
			if d < 0 {
				d = -d
			}
			diff[i] = d
		}
		weights := aggregate.MaxNormalize(diff)

		fig := Figure{Rows: 1, Cols: 3, Width: 10, Height: 8}
		for _, period := range ephys.TaskPeriods {
			contra := ScatterSeries{Label: string(ephys.ContraSelective), Color: Blue, Weighted: true}
			ipsi := ScatterSeries{Label: string(ephys.IpsiSelective), Color: Red, Weighted: true}
			for i, r := range records {
				if r.Period != period {
					continue
				}
				u, ok := byKey[r.Key]
				if !ok {
					return Figure{}, fmt.Errorf("period record %s: %w: unit not found", r.Key, ephys.ErrInvalid)
				}
				p := Point{X: u.PosX, Y: u.CorrectedY(), Weight: weights[i], Unit: keyRef(r.Key)}
				if r.Selectivity == ephys.ContraSelective {
					contra.Points = append(contra.Points, p)
				} else {
					ipsi.Points = append(ipsi.Points, p)
				}
			}
			total := len(contra.Points) + len(ipsi.Points)
			fig.Panels = append(fig.Panels, Panel{
				Title:   fmt.Sprintf("%s\n%% contra: %.2f\n%% ipsi: %.2f", period, aggregate.Percent(len(contra.Points), total), aggregate.Percent(len(ipsi.Points), total)),
				XLim:    probeXLim,
				Scatter: []ScatterSeries{contra, ipsi},
			})
		}
		return fig, nil
	})
}

func keyRef(k ephys.UnitKey) *ephys.UnitKey { return &k }

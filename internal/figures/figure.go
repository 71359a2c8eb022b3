package figures

import "ephyscore/pkg/ephys"

// Figure names, one per plotting operation.
const (
	NameClusteringQuality        = "clustering_quality"
	NameUnitCharacteristic       = "unit_characteristic"
	NameUnitSelectivity          = "unit_selectivity"
	NameBilateralPhotostimEffect = "unit_bilateral_photostim_effect"
	NameStackedContraIpsiPSTH    = "stacked_contra_ipsi_psth"
	NameSelectivitySortedPSTH    = "selectivity_sorted_stacked_contra_ipsi_psth"
	NameAvgContraIpsiPSTH        = "avg_contra_ipsi_psth"
	NamePSTHPhotostimEffect      = "psth_photostim_effect"
	NameCodingDirection          = "coding_direction"
	NamePairedCodingDirection    = "paired_coding_direction"
)

// Names lists every figure in a stable order.
var Names = []string{
	NameClusteringQuality,
	NameUnitCharacteristic,
	NameUnitSelectivity,
	NameBilateralPhotostimEffect,
	NameStackedContraIpsiPSTH,
	NameSelectivitySortedPSTH,
	NameAvgContraIpsiPSTH,
	NamePSTHPhotostimEffect,
	NameCodingDirection,
	NamePairedCodingDirection,
}

// Colour names understood by the renderer.
const (
	Black     = "k"
	Blue      = "b"
	Red       = "r"
	RoyalBlue = "royalblue"
)

// Figure is a render-ready description of one plot: a grid of panels plus the
// data that produced it.
type Figure struct {
	Name string `json:"name"`
	// Rows and Cols lay the panels out row-major.
	Rows   int     `json:"rows"`
	Cols   int     `json:"cols"`
	Width  float64 `json:"width_in"`
	Height float64 `json:"height_in"`
	// MarkerScale converts scatter weights into marker areas.
	MarkerScale float64  `json:"marker_scale"`
	Panels      []Panel  `json:"panels"`
	Table       *Table   `json:"table,omitempty"`
	Notes       []string `json:"notes,omitempty"`
}

// Range is a closed axis interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Panel is a single set of axes.
type Panel struct {
	Title   string          `json:"title"`
	XLabel  string          `json:"x_label,omitempty"`
	YLabel  string          `json:"y_label,omitempty"`
	XLim    *Range          `json:"x_lim,omitempty"`
	YLim    *Range          `json:"y_lim,omitempty"`
	Scatter []ScatterSeries `json:"scatter,omitempty"`
	Lines   []LineSeries    `json:"lines,omitempty"`
	Heatmap *Heatmap        `json:"heatmap,omitempty"`
	// VLines are dashed vertical markers, typically task period starts.
	VLines []float64 `json:"vlines,omitempty"`
	Spans  []Span    `json:"spans,omitempty"`
}

// ScatterSeries is a set of points drawn with one colour. When Weighted is set
// each point's marker area is Weight times the figure marker scale; otherwise
// points are small dots.
type ScatterSeries struct {
	Label    string  `json:"label,omitempty"`
	Color    string  `json:"color"`
	Weighted bool    `json:"weighted"`
	Points   []Point `json:"points"`
}

// Point is one scatter marker. Unit is set when the point is a recorded unit.
type Point struct {
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Weight float64        `json:"weight,omitempty"`
	Unit   *ephys.UnitKey `json:"unit,omitempty"`
}

// LineSeries is a mean trace with an optional symmetric error band.
type LineSeries struct {
	Label string    `json:"label,omitempty"`
	Color string    `json:"color"`
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`
	// Band is the half-width of the shaded band around Y (SEM); nil for none.
	Band []float64 `json:"band,omitempty"`
}

// Heatmap is a stacked matrix drawn top row first over [XMin, XMax]. Columns
// are equal-width bins unless Edges gives their boundaries.
type Heatmap struct {
	Values [][]float64 `json:"values"`
	XMin   float64     `json:"x_min"`
	XMax   float64     `json:"x_max"`
	// Edges holds one more boundary than there are columns.
	Edges []float64 `json:"edges,omitempty"`
	// Clim clamps the colour scale.
	Clim Range `json:"clim"`
	// Units labels each row when rows are units.
	Units []ephys.UnitKey `json:"units,omitempty"`
}

// Span is a shaded vertical band.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Color string  `json:"color"`
	Alpha float64 `json:"alpha"`
}

// Table is tabular figure data, e.g. per-trial coding-direction endpoints.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

// TableRow holds one numeric row plus its category label.
type TableRow struct {
	Values []float64 `json:"values"`
	Label  string    `json:"label"`
}

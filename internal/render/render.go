// Package render draws figures.Figure values with gonum/plot and encodes them
// as PNG.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"ephyscore/internal/config"
	"ephyscore/internal/figures"
)

// Config controls the output raster. A figure's own marker scale and size
// win over these when set.
type Config struct {
	MarkerScale float64
	// Width and Height are inches.
	Width  float64
	Height float64
	DPI    int
}

// DefaultDPI is the raster resolution.
const DefaultDPI = 96

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{MarkerScale: config.DefaultMarkerScale, Width: 8, Height: 6, DPI: DefaultDPI}
}

// ErrEmptyFigure is returned for a figure without panels.
var ErrEmptyFigure = errors.New("render: figure has no panels")

// heatmapColors is the palette resolution of the diverging colour map.
const heatmapColors = 255

// plain dot radius for unweighted scatter points
const dotRadius = vg.Length(1.5)

var colors = map[string]color.Color{
	figures.Black:     color.Black,
	figures.Blue:      color.RGBA{B: 255, A: 255},
	figures.Red:       color.RGBA{R: 255, A: 255},
	figures.RoyalBlue: color.RGBA{R: 65, G: 105, B: 225, A: 255},
}

// Color resolves a figure colour name; unknown names draw black.
func Color(name string) color.Color {
	if c, ok := colors[name]; ok {
		return c
	}
	return color.Black
}

func withAlpha(c color.Color, alpha float64) color.Color {
	r, g, b, _ := c.RGBA()
	a := math.Max(0, math.Min(1, alpha))
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a * 255)}
}

// MarkerRadius converts a scatter weight to a glyph radius. The marker area
// is weight*scale square points.
func MarkerRadius(weight, scale float64) vg.Length {
	area := weight * scale
	if !(area > 0) {
		return 0
	}
	return vg.Points(math.Sqrt(area / math.Pi))
}

// Renderer turns figures into PNG images.
type Renderer struct {
	cfg Config
}

// New returns a renderer; zero fields of cfg take their defaults.
func New(cfg Config) *Renderer {
	def := DefaultConfig()
	if cfg.MarkerScale <= 0 {
		cfg.MarkerScale = def.MarkerScale
	}
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	return &Renderer{cfg: cfg}
}

// Config returns the effective configuration.
func (r *Renderer) Config() Config { return r.cfg }

// PNG draws the figure's panels on a grid and encodes the canvas.
func (r *Renderer) PNG(fig figures.Figure) ([]byte, error) {
	if len(fig.Panels) == 0 {
		return nil, fmt.Errorf("%s: %w", fig.Name, ErrEmptyFigure)
	}
	rows, cols := fig.Rows, fig.Cols
	if rows <= 0 || cols <= 0 || rows*cols < len(fig.Panels) {
		rows, cols = 1, len(fig.Panels)
	}
	scale := fig.MarkerScale
	if scale <= 0 {
		scale = r.cfg.MarkerScale
	}
	width, height := fig.Width, fig.Height
	if width <= 0 {
		width = r.cfg.Width
	}
	if height <= 0 {
		height = r.cfg.Height
	}

	grid := make([][]*plot.Plot, rows)
	for i := range grid {
		grid[i] = make([]*plot.Plot, cols)
	}
	for i, panel := range fig.Panels {
		p, err := r.panel(panel, scale)
		if err != nil {
			return nil, fmt.Errorf("%s panel %d: %w", fig.Name, i, err)
		}
		grid[i/cols][i%cols] = p
	}

	img := vgimg.NewWith(
		vgimg.UseWH(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch),
		vgimg.UseDPI(r.cfg.DPI),
	)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: rows, Cols: cols,
		PadX: vg.Millimeter, PadY: vg.Millimeter,
		PadTop: vg.Points(4), PadBottom: vg.Points(4),
		PadLeft: vg.Points(4), PadRight: vg.Points(4),
	}
	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		for j, p := range grid[i] {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%s: encode png: %w", fig.Name, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) panel(panel figures.Panel, scale float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = panel.Title
	p.X.Label.Text = panel.XLabel
	p.Y.Label.Text = panel.YLabel

	if hm := panel.Heatmap; hm != nil && len(hm.Values) > 0 {
		if err := addHeatmap(p, *hm); err != nil {
			return nil, err
		}
	}
	for _, l := range panel.Lines {
		if err := addLine(p, l); err != nil {
			return nil, err
		}
	}
	for _, s := range panel.Scatter {
		if err := addScatter(p, s, scale); err != nil {
			return nil, err
		}
	}

	if panel.XLim != nil {
		p.X.Min, p.X.Max = panel.XLim.Min, panel.XLim.Max
	}
	if panel.YLim != nil {
		p.Y.Min, p.Y.Max = panel.YLim.Min, panel.YLim.Max
	}
	// markers span whatever y-range the data settled on
	for _, sp := range panel.Spans {
		if err := addSpan(p, sp); err != nil {
			return nil, err
		}
	}
	for _, x := range panel.VLines {
		if err := addVLine(p, x); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func addScatter(p *plot.Plot, s figures.ScatterSeries, scale float64) error {
	if len(s.Points) == 0 {
		return nil
	}
	xys := make(plotter.XYs, len(s.Points))
	for i, pt := range s.Points {
		xys[i].X, xys[i].Y = pt.X, pt.Y
	}
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("scatter %q: %w", s.Label, err)
	}
	c := Color(s.Color)
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		if !s.Weighted {
			return draw.GlyphStyle{Color: c, Radius: dotRadius, Shape: draw.CircleGlyph{}}
		}
		return draw.GlyphStyle{Color: c, Radius: MarkerRadius(s.Points[i].Weight, scale), Shape: draw.RingGlyph{}}
	}
	p.Add(sc)
	if s.Label != "" {
		p.Legend.Add(s.Label, sc)
	}
	return nil
}

func addLine(p *plot.Plot, l figures.LineSeries) error {
	if len(l.X) != len(l.Y) {
		return fmt.Errorf("line %q: %d x values for %d y values", l.Label, len(l.X), len(l.Y))
	}
	if len(l.X) == 0 {
		return nil
	}
	c := Color(l.Color)
	if len(l.Band) == len(l.Y) {
		band := make(plotter.XYs, 0, 2*len(l.X))
		for i := range l.X {
			band = append(band, plotter.XY{X: l.X[i], Y: l.Y[i] + l.Band[i]})
		}
		for i := len(l.X) - 1; i >= 0; i-- {
			band = append(band, plotter.XY{X: l.X[i], Y: l.Y[i] - l.Band[i]})
		}
		poly, err := plotter.NewPolygon(band)
		if err != nil {
			return fmt.Errorf("band %q: %w", l.Label, err)
		}
		poly.Color = withAlpha(c, 0.2)
		poly.LineStyle.Width = 0
		p.Add(poly)
	}
	xys := make(plotter.XYs, len(l.X))
	for i := range l.X {
		xys[i].X, xys[i].Y = l.X[i], l.Y[i]
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("line %q: %w", l.Label, err)
	}
	line.LineStyle.Color = c
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	if l.Label != "" {
		p.Legend.Add(l.Label, line)
	}
	return nil
}

func addVLine(p *plot.Plot, x float64) error {
	line, err := plotter.NewLine(plotter.XYs{{X: x, Y: p.Y.Min}, {X: x, Y: p.Y.Max}})
	if err != nil {
		return fmt.Errorf("period marker at %g: %w", x, err)
	}
	line.LineStyle.Color = color.Black
	line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(line)
	return nil
}

func addSpan(p *plot.Plot, sp figures.Span) error {
	lo, hi := p.Y.Min, p.Y.Max
	poly, err := plotter.NewPolygon(plotter.XYs{
		{X: sp.Start, Y: lo}, {X: sp.End, Y: lo}, {X: sp.End, Y: hi}, {X: sp.Start, Y: hi},
	})
	if err != nil {
		return fmt.Errorf("span [%g, %g]: %w", sp.Start, sp.End, err)
	}
	poly.Color = withAlpha(Color(sp.Color), sp.Alpha)
	poly.LineStyle.Width = 0
	p.Add(poly)
	return nil
}

// stackGrid exposes a row-major matrix to plotter.HeatMap with the first row
// at the top. Column centres come from edges when set, else from xmin and step.
type stackGrid struct {
	values     [][]float64
	edges      []float64
	xmin, step float64
	lo, hi     float64
}

func (g stackGrid) Dims() (c, r int) { return len(g.values[0]), len(g.values) }
func (g stackGrid) Z(c, r int) float64 {
	v := g.values[len(g.values)-1-r][c]
	if math.IsNaN(v) {
		return v
	}
	return math.Max(g.lo, math.Min(g.hi, v))
}
func (g stackGrid) X(c int) float64 {
	if g.edges != nil {
		return (g.edges[c] + g.edges[c+1]) / 2
	}
	return g.xmin + (float64(c)+0.5)*g.step
}
func (g stackGrid) Y(r int) float64 { return float64(r) + 0.5 }

func addHeatmap(p *plot.Plot, hm figures.Heatmap) error {
	cols := len(hm.Values[0])
	if cols == 0 {
		return fmt.Errorf("heatmap has empty rows")
	}
	for i, row := range hm.Values {
		if len(row) != cols {
			return fmt.Errorf("heatmap row %d: %d columns, want %d", i, len(row), cols)
		}
	}
	if !(hm.XMax > hm.XMin) {
		return fmt.Errorf("heatmap x-range [%g, %g] is empty", hm.XMin, hm.XMax)
	}
	if len(hm.Edges) > 0 {
		if len(hm.Edges) != cols+1 {
			return fmt.Errorf("heatmap has %d edges for %d columns", len(hm.Edges), cols)
		}
		for i := 1; i < len(hm.Edges); i++ {
			if !(hm.Edges[i] > hm.Edges[i-1]) {
				return fmt.Errorf("heatmap edges not increasing at %d", i)
			}
		}
	}
	lo, hi := hm.Clim.Min, hm.Clim.Max
	if !(hi > lo) {
		lo, hi = -1, 1
	}
	cm := moreland.SmoothBlueRed()
	cm.SetMin(lo)
	cm.SetMax(hi)
	var pal palette.Palette = cm.Palette(heatmapColors)

	grid := stackGrid{values: hm.Values, edges: hm.Edges, xmin: hm.XMin, step: (hm.XMax - hm.XMin) / float64(cols), lo: lo, hi: hi}
	h := plotter.NewHeatMap(grid, pal)
	h.Min, h.Max = lo, hi
	p.Add(h)
	p.Y.Min, p.Y.Max = 0, float64(len(hm.Values))
	return nil
}

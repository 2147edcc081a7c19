// Package render draws finished map images as PNG heatmaps for quick-look
// QA of a survey.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
)

// ErrNothingToRender is returned for nil or zero-sized images.
var ErrNothingToRender = errors.New("nothing to render")

const (
	defaultWidth  = 8 * vg.Inch
	defaultHeight = 8 * vg.Inch
	paletteSize   = 64
)

// cellGrid adapts a matrix to plotter.GridXYZ. Columns map to x, rows to y,
// and cells flagged in mask are reported as NaN so they stay transparent.
type cellGrid struct {
	z      *mat.Dense
	mask   *mat.Dense
	x0, y0 float64
	step   float64
}

func (g cellGrid) Dims() (c, r int) {
	r, c = g.z.Dims()
	return c, r
}

func (g cellGrid) Z(c, r int) float64 {
	if g.mask != nil && g.mask.At(r, c) == 0 {
		return math.NaN()
	}
	return g.z.At(r, c)
}

// X and Y return cell centres.
func (g cellGrid) X(c int) float64 { return g.x0 + (float64(c)+0.5)*g.step }

func (g cellGrid) Y(r int) float64 { return g.y0 + (float64(r)+0.5)*g.step }

func newHeatMap(g cellGrid) *plotter.HeatMap {
	hm := plotter.NewHeatMap(g, palette.Heat(paletteSize, 1))
	// All NaN, or a flat image: give the palette a non-degenerate range.
	if math.IsInf(hm.Min, 0) || math.IsInf(hm.Max, 0) {
		hm.Min, hm.Max = 0, 1
	}
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	hm.NaN = color.Transparent
	hm.Rasterized = true
	return hm
}

// IntensityPlot builds a heatmap of an image's mean intensity in map-frame
// metres. Cells without observations are left blank.
func IntensityPlot(img *grid.MapImage, title string) (*plot.Plot, error) {
	if img == nil || img.Intensity == nil || img.Intensity.IsEmpty() {
		return nil, ErrNothingToRender
	}
	g := cellGrid{
		z:    img.Intensity,
		mask: img.Counts,
		x0:   img.Bounds.MinX(),
		y0:   img.Bounds.MinY(),
		step: 1 / img.Resolution,
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(newHeatMap(g))
	return p, nil
}

// WaterfallPlot builds a ping-by-sample heatmap of the raw waterfall
// intensity rows. Short rows are padded with blanks.
func WaterfallPlot(img *grid.MapImage, title string) (*plot.Plot, error) {
	if img == nil || img.Waterfall.Len() == 0 {
		return nil, ErrNothingToRender
	}
	width := 0
	for _, row := range img.Waterfall.Intensity {
		width = max(width, len(row))
	}
	if width == 0 {
		return nil, ErrNothingToRender
	}

	n := img.Waterfall.Len()
	z := mat.NewDense(n, width, nil)
	mask := mat.NewDense(n, width, nil)
	for i, row := range img.Waterfall.Intensity {
		for j, v := range row {
			z.Set(i, j, v)
			mask.Set(i, j, 1)
		}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "ping"
	p.Add(newHeatMap(cellGrid{z: z, mask: mask, step: 1}))
	return p, nil
}

// WritePNG encodes p as a PNG to w.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(defaultWidth, defaultHeight, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// SavePNG writes p to path.
func SavePNG(p *plot.Plot, path string) error {
	if err := p.Save(defaultWidth, defaultHeight, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

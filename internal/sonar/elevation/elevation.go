// Package elevation holds the world-frame height grid produced by the
// bathymetric mapping stage, with bounds-anchored coordinate lookup.
package elevation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
)

var (
	// ErrOutOfExtent is returned when a lookup falls outside the map.
	ErrOutOfExtent = errors.New("outside elevation map extent")
	// ErrNoData is returned when an extracted window holds NODATA cells.
	ErrNoData = errors.New("elevation has no data")
)

// Map is a height grid over Bounds at Resolution cells per metre. Row 0 is
// the minimum y, matching the intensity grids.
type Map struct {
	cfg     grid.GridConfig
	heights *mat.Dense
}

// New validates that heights has the dimensions implied by bounds and
// resolution.
func New(bounds grid.Bounds, resolution float64, heights *mat.Dense) (*Map, error) {
	cfg, err := grid.NewGridConfig(bounds, resolution)
	if err != nil {
		return nil, fmt.Errorf("elevation map: %w", err)
	}
	if heights == nil || heights.IsEmpty() {
		return nil, fmt.Errorf("elevation map: no height data")
	}
	if r, c := heights.Dims(); r != cfg.Rows || c != cfg.Cols {
		return nil, fmt.Errorf("elevation map: heights are %dx%d, bounds %s at resolution %g imply %dx%d",
			r, c, bounds, resolution, cfg.Rows, cfg.Cols)
	}
	return &Map{cfg: cfg, heights: heights}, nil
}

func (m *Map) Bounds() grid.Bounds { return m.cfg.Bounds }

func (m *Map) Resolution() float64 { return m.cfg.Resolution }

// Dims returns the height grid dimensions.
func (m *Map) Dims() (rows, cols int) { return m.cfg.Rows, m.cfg.Cols }

// Index converts a world-frame point to cell indices.
func (m *Map) Index(x, y float64) (row, col int, ok bool) {
	if !m.cfg.Bounds.Contains(x, y) {
		return 0, 0, false
	}
	return m.cfg.CellIndex(x-m.cfg.Bounds.MinX(), y-m.cfg.Bounds.MinY())
}

// Height returns the height at a world-frame point.
func (m *Map) Height(x, y float64) (float64, bool) {
	row, col, ok := m.Index(x, y)
	if !ok {
		return 0, false
	}
	return m.heights.At(row, col), true
}

// Extract copies the heights covering sub, which is given in the world
// frame. The sub-grid spans at least one cell in each axis so coarse
// elevation maps still yield a value for small patches. Offsets and extents
// are converted to cells with grid.CellFloor, so a window whose corners carry
// float error still starts on, and spans, the intended cells. A window that
// reaches a NODATA cell fails with ErrNoData.
func (m *Map) Extract(sub grid.Bounds) (*mat.Dense, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	res := m.cfg.Resolution
	// Corners in cells relative to the map origin.
	y0 := (sub.MinY() - m.cfg.Bounds.MinY()) * res
	x0 := (sub.MinX() - m.cfg.Bounds.MinX()) * res
	y1 := (sub.MaxY() - m.cfg.Bounds.MinY()) * res
	x1 := (sub.MaxX() - m.cfg.Bounds.MinX()) * res
	extentY := m.cfg.Bounds.Height() * res
	extentX := m.cfg.Bounds.Width() * res
	if y0 < -grid.CellEpsilon || x0 < -grid.CellEpsilon ||
		y1 > extentY+grid.CellEpsilon || x1 > extentX+grid.CellEpsilon {
		return nil, fmt.Errorf("%w: %s not within %s", ErrOutOfExtent, sub, m.cfg.Bounds)
	}

	r0 := max(grid.CellFloor(y0), 0)
	c0 := max(grid.CellFloor(x0), 0)
	rows := max(grid.CellFloor(sub.Height()*res), 1)
	cols := max(grid.CellFloor(sub.Width()*res), 1)
	if r0+rows > m.cfg.Rows || c0+cols > m.cfg.Cols {
		return nil, fmt.Errorf("%w: %s needs cells [%d:%d, %d:%d] of %dx%d",
			ErrOutOfExtent, sub, r0, r0+rows, c0, c0+cols, m.cfg.Rows, m.cfg.Cols)
	}

	out := mat.DenseCopyOf(m.heights.Slice(r0, r0+rows, c0, c0+cols))
	for i := 0; i < rows; i++ {
		for _, v := range out.RawRowView(i) {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("%w: %s", ErrNoData, sub)
			}
		}
	}
	return out, nil
}

package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrInvalidBounds is returned when a box has max <= min in either axis.
	ErrInvalidBounds = errors.New("invalid bounds")
	// ErrInvalidResolution is returned for a non-positive or non-finite resolution.
	ErrInvalidResolution = errors.New("invalid resolution")
)

// Bounds is a 2x2 box in map-local metres. Row 0 holds the minimum (x, y),
// row 1 the maximum (x, y).
type Bounds [2][2]float64

// NewBounds builds a Bounds from its corners. It does not validate.
func NewBounds(minX, minY, maxX, maxY float64) Bounds {
	return Bounds{{minX, minY}, {maxX, maxY}}
}

func (b Bounds) MinX() float64 { return b[0][0] }
func (b Bounds) MinY() float64 { return b[0][1] }
func (b Bounds) MaxX() float64 { return b[1][0] }
func (b Bounds) MaxY() float64 { return b[1][1] }

// Width returns the x extent.
func (b Bounds) Width() float64 { return b[1][0] - b[0][0] }

// Height returns the y extent.
func (b Bounds) Height() float64 { return b[1][1] - b[0][1] }

// Validate rejects boxes that are empty or inverted in either axis. NaN
// corners are rejected too.
func (b Bounds) Validate() error {
	if !(b.MaxX() > b.MinX()) {
		return fmt.Errorf("%w: max.x %v <= min.x %v", ErrInvalidBounds, b.MaxX(), b.MinX())
	}
	if !(b.MaxY() > b.MinY()) {
		return fmt.Errorf("%w: max.y %v <= min.y %v", ErrInvalidBounds, b.MaxY(), b.MinY())
	}
	return nil
}

// Bound converts to an orb.Bound for containment tests.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinX(), b.MinY()},
		Max: orb.Point{b.MaxX(), b.MaxY()},
	}
}

// Contains reports whether the point lies inside the box, edges included.
func (b Bounds) Contains(x, y float64) bool {
	return b.Bound().Contains(orb.Point{x, y})
}

func (b Bounds) String() string {
	return fmt.Sprintf("[[%g %g] [%g %g]]", b.MinX(), b.MinY(), b.MaxX(), b.MaxY())
}

// GridConfig holds the integer grid dimensions derived from a tile's bounds
// and resolution (cells per metre).
type GridConfig struct {
	Bounds     Bounds
	Resolution float64
	Origin     r3.Vec // translation applied upstream: (min.x, min.y, 0)
	Rows       int    // y extent in cells
	Cols       int    // x extent in cells
}

// NewGridConfig derives grid dimensions. Cell counts are floored (within
// CellEpsilon), so a tile narrower than one cell yields a zero-sized grid,
// which is valid.
func NewGridConfig(bounds Bounds, resolution float64) (GridConfig, error) {
	if err := bounds.Validate(); err != nil {
		return GridConfig{}, err
	}
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return GridConfig{}, fmt.Errorf("%w: %v", ErrInvalidResolution, resolution)
	}
	return GridConfig{
		Bounds:     bounds,
		Resolution: resolution,
		Origin:     r3.Vec{X: bounds.MinX(), Y: bounds.MinY()},
		Cols:       CellFloor(resolution * bounds.Width()),
		Rows:       CellFloor(resolution * bounds.Height()),
	}, nil
}

// CellEpsilon is the slack, in cells, allowed when converting a metric
// extent to a cell count. An extent taken as the difference of two corner
// coordinates can land a hair below a whole number of cells.
const CellEpsilon = 1e-6

// CellFloor converts a position or extent already scaled to cells into a
// whole cell count, tolerating float error up to CellEpsilon.
func CellFloor(v float64) int {
	return int(math.Floor(v + CellEpsilon))
}

// Covers reports whether a tile-local point lies in the half-open cell range
// [0, Cols) x [0, Rows). Unlike CellIndex it rejects points left of or below
// the origin, so adjacent tiles never both cover a shared edge.
func (c GridConfig) Covers(x, y float64) bool {
	sx := x * c.Resolution
	sy := y * c.Resolution
	return sx >= 0 && sx < float64(c.Cols) && sy >= 0 && sy < float64(c.Rows)
}

// CellIndex converts a tile-local point to cell indices. Conversion truncates
// toward zero rather than flooring, so points in (-1/resolution, 0) land in
// the first row or column. ok is false when the point is outside the grid.
func (c GridConfig) CellIndex(x, y float64) (row, col int, ok bool) {
	sx := x * c.Resolution
	sy := y * c.Resolution
	// Range-check in float space: int() of NaN or huge values is
	// platform dependent.
	if !(sx > -1 && sx < float64(c.Cols)) || !(sy > -1 && sy < float64(c.Rows)) {
		return 0, 0, false
	}
	return int(sy), int(sx), true
}

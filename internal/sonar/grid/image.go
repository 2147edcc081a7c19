package grid

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MapImage is the finished intensity map of one tile. It is produced once by
// Builder.Finish and must be treated as read-only by every consumer.
type MapImage struct {
	Bounds     Bounds
	Resolution float64 // cells per metre

	// Intensity holds the mean intensity per cell, rows along y and columns
	// along x. Cells without hits are 0. Zero-sized tiles carry an empty
	// matrix.
	Intensity *mat.Dense
	// Counts holds the number of hits per cell, same shape as Intensity.
	Counts *mat.Dense

	Waterfall Waterfall
	Positions []r3.Vec // one per non-empty ping, in arrival order
	Sides     []Side   // parallel to Positions
}

// Dims returns the grid dimensions.
func (m *MapImage) Dims() (rows, cols int) {
	if m.Intensity == nil {
		return 0, 0
	}
	return m.Intensity.Dims()
}

// HitCount returns the total number of hits accumulated into the image.
func (m *MapImage) HitCount() float64 {
	return DenseSum(m.Counts)
}

// Empty reports whether the image received no observations.
func (m *MapImage) Empty() bool {
	return m.HitCount() == 0
}

// DenseSum totals every element of d. Nil and empty matrices sum to 0.
func DenseSum(d *mat.Dense) float64 {
	if d == nil || d.IsEmpty() {
		return 0
	}
	rows, _ := d.Dims()
	var total float64
	for i := 0; i < rows; i++ {
		total += floats.Sum(d.RawRowView(i))
	}
	return total
}

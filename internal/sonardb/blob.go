package sonardb

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
)

// imageBlob is the persisted form of a MapImage. Matrices are flattened row
// major so zero-sized grids survive the round trip.
type imageBlob struct {
	Bounds     [2][2]float64
	Resolution float64
	Rows, Cols int
	Intensity  []float64
	Counts     []float64

	WaterfallIntensity  [][]float64
	WaterfallCrossTrack [][]float64
	WaterfallDepth      [][]float64
	Positions           []r3.Vec
	Sides               []uint8
}

func flatten(d *mat.Dense) []float64 {
	if d == nil || d.IsEmpty() {
		return nil
	}
	rows, cols := d.Dims()
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		out = append(out, d.RawRowView(i)...)
	}
	return out
}

func unflatten(rows, cols int, data []float64) (*mat.Dense, error) {
	if rows == 0 || cols == 0 {
		return &mat.Dense{}, nil
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("grid blob holds %d values, want %dx%d", len(data), rows, cols)
	}
	return mat.NewDense(rows, cols, data), nil
}

// serializeImage compresses a MapImage using gob encoding and gzip compression.
func serializeImage(img *grid.MapImage) ([]byte, error) {
	rows, cols := img.Dims()
	b := imageBlob{
		Bounds:              img.Bounds,
		Resolution:          img.Resolution,
		Rows:                rows,
		Cols:                cols,
		Intensity:           flatten(img.Intensity),
		Counts:              flatten(img.Counts),
		WaterfallIntensity:  img.Waterfall.Intensity,
		WaterfallCrossTrack: img.Waterfall.CrossTrack,
		WaterfallDepth:      img.Waterfall.Depth,
		Positions:           img.Positions,
		Sides:               make([]uint8, len(img.Sides)),
	}
	for i, s := range img.Sides {
		b.Sides[i] = uint8(s)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(&b); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeImage decodes a gob+gzip blob back into a MapImage.
func deserializeImage(blob []byte) (*grid.MapImage, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty grid blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var b imageBlob
	if err := gob.NewDecoder(gz).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode map image: %w", err)
	}

	intensity, err := unflatten(b.Rows, b.Cols, b.Intensity)
	if err != nil {
		return nil, fmt.Errorf("intensity: %w", err)
	}
	counts, err := unflatten(b.Rows, b.Cols, b.Counts)
	if err != nil {
		return nil, fmt.Errorf("counts: %w", err)
	}

	img := &grid.MapImage{
		Bounds:     grid.Bounds(b.Bounds),
		Resolution: b.Resolution,
		Intensity:  intensity,
		Counts:     counts,
		Waterfall: grid.Waterfall{
			Intensity:  b.WaterfallIntensity,
			CrossTrack: b.WaterfallCrossTrack,
			Depth:      b.WaterfallDepth,
		},
		Positions: b.Positions,
	}
	if len(b.Sides) > 0 {
		img.Sides = make([]grid.Side, len(b.Sides))
		for i, s := range b.Sides {
			img.Sides[i] = grid.Side(s)
		}
	}
	return img, nil
}

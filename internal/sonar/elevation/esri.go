package elevation

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
)

// esriHeader mirrors the ESRI ASCII grid header. Either the corner or the
// centre keys locate the lower-left cell.
type esriHeader struct {
	ncols, nrows int
	xll, yll     float64
	centre       bool
	cellSize     float64
	noData       float64
	hasNoData    bool
	seenX, seenY bool
	seenSize     bool
}

// ReadESRIASCII parses an ESRI ASCII grid into a Map. Data rows in the file
// run north to south; they are flipped so row 0 is the minimum y. NODATA
// cells become NaN.
func ReadESRIASCII(r io.Reader) (*Map, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var h esriHeader
	var values []float64
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if values == nil && isHeaderKey(fields[0]) {
			if len(fields) != 2 {
				return nil, fmt.Errorf("esri grid line %d: malformed header %q", line, sc.Text())
			}
			if err := h.set(strings.ToLower(fields[0]), fields[1]); err != nil {
				return nil, fmt.Errorf("esri grid line %d: %w", line, err)
			}
			continue
		}
		if values == nil {
			if err := h.validate(); err != nil {
				return nil, err
			}
			values = make([]float64, 0, h.ncols*h.nrows)
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("esri grid line %d: %w", line, err)
			}
			if h.hasNoData && v == h.noData {
				v = math.NaN()
			}
			values = append(values, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read esri grid: %w", err)
	}
	if values == nil {
		if err := h.validate(); err != nil {
			return nil, err
		}
	}
	if len(values) != h.ncols*h.nrows {
		return nil, fmt.Errorf("esri grid: got %d values, header declares %dx%d", len(values), h.nrows, h.ncols)
	}

	heights := mat.NewDense(h.nrows, h.ncols, nil)
	for i := 0; i < h.nrows; i++ {
		heights.SetRow(h.nrows-1-i, values[i*h.ncols:(i+1)*h.ncols])
	}

	minX, minY := h.xll, h.yll
	if h.centre {
		minX -= h.cellSize / 2
		minY -= h.cellSize / 2
	}
	bounds := grid.NewBounds(minX, minY,
		minX+float64(h.ncols)*h.cellSize, minY+float64(h.nrows)*h.cellSize)
	cfg, err := grid.NewGridConfig(bounds, 1/h.cellSize)
	if err != nil {
		return nil, fmt.Errorf("esri grid: %w", err)
	}
	// Take the declared dimensions: re-deriving them from the bounds can lose
	// a cell to floating point truncation.
	cfg.Rows, cfg.Cols = h.nrows, h.ncols
	return &Map{cfg: cfg, heights: heights}, nil
}

func isHeaderKey(s string) bool {
	switch strings.ToLower(s) {
	case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

func (h *esriHeader) set(key, raw string) error {
	switch key {
	case "ncols", "nrows":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if key == "ncols" {
			h.ncols = n
		} else {
			h.nrows = n
		}
		return nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	switch key {
	case "xllcorner", "xllcenter":
		h.xll, h.seenX = v, true
		h.centre = key == "xllcenter"
	case "yllcorner", "yllcenter":
		h.yll, h.seenY = v, true
	case "cellsize":
		h.cellSize, h.seenSize = v, true
	case "nodata_value":
		h.noData, h.hasNoData = v, true
	}
	return nil
}

func (h *esriHeader) validate() error {
	switch {
	case h.ncols <= 0 || h.nrows <= 0:
		return fmt.Errorf("esri grid: invalid dimensions %dx%d", h.nrows, h.ncols)
	case !h.seenX || !h.seenY:
		return fmt.Errorf("esri grid: missing lower-left corner")
	case !h.seenSize || !(h.cellSize > 0):
		return fmt.Errorf("esri grid: invalid cellsize %v", h.cellSize)
	}
	return nil
}

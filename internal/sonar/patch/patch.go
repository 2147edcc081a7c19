// Package patch slices finished map images into fixed-size patches paired
// with the co-located elevation data.
package patch

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sidescan.report/internal/sonar/elevation"
	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
)

// ErrInvalidPatchSize is returned when the patch size is not positive or is
// smaller than one grid cell of an image.
var ErrInvalidPatchSize = errors.New("invalid patch size")

// View is one patch: an intensity sub-grid, the elevation covering the same
// ground and the world-frame bounds of that ground.
type View struct {
	Intensity *mat.Dense
	Elevation *mat.Dense
	Bounds    grid.Bounds

	// Row and Col locate the patch within its source image, in patches.
	Row, Col int
	// Hits is the number of observations inside the patch.
	Hits float64
}

// Stats summarises one extraction run.
type Stats struct {
	Images          int
	Candidates      int // full patches considered
	Emitted         int
	Empty           int // dropped, no observations
	ElevationMisses int // dropped, elevation out of extent or NODATA
}

// ConvertMapsToPatches partitions each image's intensity grid into
// contiguous, non-overlapping patches of patchSize metres. Partial patches at
// the right and top edges are not emitted. Patches without observations and
// patches whose ground is not covered by the elevation map, or holds NODATA
// heights, are dropped and counted in Stats.
//
// The result is indexed by source image, then by patch in row-major order.
// Images with zero-sized grids yield no patches. Images are processed
// concurrently; the inputs are only read.
func ConvertMapsToPatches(images []*grid.MapImage, elev *elevation.Map, patchSize float64) ([][]View, Stats, error) {
	if !(patchSize > 0) || math.IsInf(patchSize, 0) {
		return nil, Stats{}, fmt.Errorf("%w: %v", ErrInvalidPatchSize, patchSize)
	}
	if elev == nil {
		return nil, Stats{}, errors.New("patch extraction requires an elevation map")
	}

	out := make([][]View, len(images))
	perImage := make([]Stats, len(images))
	var g errgroup.Group
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			views, st, err := extractImage(img, elev, patchSize)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			out[i], perImage[i] = views, st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	total := Stats{Images: len(images)}
	for _, st := range perImage {
		total.Candidates += st.Candidates
		total.Emitted += st.Emitted
		total.Empty += st.Empty
		total.ElevationMisses += st.ElevationMisses
	}
	diagf("extracted %d patches from %d images (%d candidates, %d empty, %d elevation misses)",
		total.Emitted, total.Images, total.Candidates, total.Empty, total.ElevationMisses)
	return out, total, nil
}

func extractImage(img *grid.MapImage, elev *elevation.Map, patchSize float64) ([]View, Stats, error) {
	var st Stats
	if img == nil {
		return nil, st, nil
	}
	rows, cols := img.Dims()
	if rows == 0 || cols == 0 {
		return nil, st, nil
	}
	if img.Counts == nil {
		return nil, st, errors.New("image has no hit counts")
	}
	if cr, cc := img.Counts.Dims(); cr != rows || cc != cols {
		return nil, st, fmt.Errorf("hit counts are %dx%d, intensity is %dx%d", cr, cc, rows, cols)
	}

	cells := grid.CellFloor(img.Resolution * patchSize)
	if cells <= 0 {
		return nil, st, fmt.Errorf("%w: %v m is below one cell at resolution %v",
			ErrInvalidPatchSize, patchSize, img.Resolution)
	}

	nRows, nCols := rows/cells, cols/cells
	st.Candidates = nRows * nCols
	var views []View
	for pr := 0; pr < nRows; pr++ {
		for pc := 0; pc < nCols; pc++ {
			r0, c0 := pr*cells, pc*cells
			hits := mat.Sum(img.Counts.Slice(r0, r0+cells, c0, c0+cells))
			if hits == 0 {
				st.Empty++
				tracef("patch (%d,%d) of %s has no observations", pr, pc, img.Bounds)
				continue
			}

			sub := subBounds(img, r0, c0, cells)
			heights, err := elev.Extract(sub)
			if err != nil {
				st.ElevationMisses++
				opsf("dropping patch (%d,%d): %v", pr, pc, err)
				continue
			}

			views = append(views, View{
				Intensity: mat.DenseCopyOf(img.Intensity.Slice(r0, r0+cells, c0, c0+cells)),
				Elevation: heights,
				Bounds:    sub,
				Row:       pr,
				Col:       pc,
				Hits:      hits,
			})
		}
	}
	st.Emitted = len(views)
	return views, st, nil
}

// subBounds returns the world-frame box covered by a cells x cells block
// starting at (r0, c0).
func subBounds(img *grid.MapImage, r0, c0, cells int) grid.Bounds {
	res := img.Resolution
	minX := img.Bounds.MinX() + float64(c0)/res
	minY := img.Bounds.MinY() + float64(r0)/res
	return grid.NewBounds(minX, minY,
		img.Bounds.MinX()+float64(c0+cells)/res,
		img.Bounds.MinY()+float64(r0+cells)/res)
}

package patch

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/sidescan.report/internal/sonar/elevation"
	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
	"github.com/banshee-data/sidescan.report/internal/testutil"
)

// makeElevation builds a flat-indexed elevation map: height(r, c) = 1000*r + c.
func makeElevation(t *testing.T, bounds grid.Bounds, resolution float64) *elevation.Map {
	t.Helper()
	cfg, err := grid.NewGridConfig(bounds, resolution)
	require.NoError(t, err)
	h := mat.NewDense(cfg.Rows, cfg.Cols, nil)
	h.Apply(func(r, c int, _ float64) float64 { return float64(1000*r + c) }, h)
	m, err := elevation.New(bounds, resolution, h)
	require.NoError(t, err)
	return m
}

// makeImage fills every cell of a tile with one hit whose intensity is
// 10*row + col, skipping cells for which skip returns true.
func makeImage(t *testing.T, bounds grid.Bounds, resolution float64, skip func(r, c int) bool) *grid.MapImage {
	t.Helper()
	b, err := grid.NewBuilder(bounds, resolution)
	require.NoError(t, err)
	cfg := b.Config()
	var hits []grid.Hit
	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			if skip != nil && skip(r, c) {
				continue
			}
			hits = append(hits, grid.Hit{
				X:         (float64(c) + 0.5) / resolution,
				Y:         (float64(r) + 0.5) / resolution,
				Intensity: float64(10*r + c),
			})
		}
	}
	require.NoError(t, b.AddHits(hits, r3.Vec{}, grid.Starboard))
	img, err := b.Finish()
	require.NoError(t, err)
	return img
}

func TestConvertMapsToPatches_FullGrid(t *testing.T) {
	t.Parallel()
	img := makeImage(t, grid.NewBounds(0, 0, 4, 4), 1, nil)
	elev := makeElevation(t, grid.NewBounds(0, 0, 4, 4), 1)

	views, st, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, 2)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Len(t, views[0], 4)
	assert.Equal(t, Stats{Images: 1, Candidates: 4, Emitted: 4}, st)

	wantBounds := []grid.Bounds{
		grid.NewBounds(0, 0, 2, 2),
		grid.NewBounds(2, 0, 4, 2),
		grid.NewBounds(0, 2, 2, 4),
		grid.NewBounds(2, 2, 4, 4),
	}
	var gotBounds []grid.Bounds
	for _, v := range views[0] {
		gotBounds = append(gotBounds, v.Bounds)
		r, c := v.Intensity.Dims()
		assert.Equal(t, 2, r)
		assert.Equal(t, 2, c)
		assert.Equal(t, 4.0, v.Hits)
	}
	if diff := cmp.Diff(wantBounds, gotBounds); diff != "" {
		t.Errorf("patch bounds mismatch (-want +got):\n%s", diff)
	}

	// Patch (1,1) covers cells rows 2-3, cols 2-3.
	last := views[0][3]
	assert.Equal(t, 1, last.Row)
	assert.Equal(t, 1, last.Col)
	testutil.AssertDenseEqual(t, testutil.DenseFromRows(t, [][]float64{
		{22, 23},
		{32, 33},
	}), last.Intensity, 0)
	testutil.AssertDenseEqual(t, testutil.DenseFromRows(t, [][]float64{
		{2002, 2003},
		{3002, 3003},
	}), last.Elevation, 0)
}

func TestConvertMapsToPatches_EmptyImage(t *testing.T) {
	t.Parallel()
	b, err := grid.NewBuilder(grid.NewBounds(0, 0, 8, 8), 1)
	require.NoError(t, err)
	img, err := b.Finish()
	require.NoError(t, err)
	elev := makeElevation(t, grid.NewBounds(0, 0, 8, 8), 1)

	for _, size := range []float64{1, 2, 3, 8} {
		views, st, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, size)
		require.NoError(t, err)
		assert.Empty(t, views[0], "patch size %v", size)
		assert.Zero(t, st.Emitted)
		assert.Equal(t, st.Candidates, st.Empty)
	}
}

func TestConvertMapsToPatches_DropsUnobservedPatches(t *testing.T) {
	t.Parallel()
	// Leave the lower-left 2x2 block without hits.
	img := makeImage(t, grid.NewBounds(0, 0, 4, 4), 1, func(r, c int) bool { return r < 2 && c < 2 })
	elev := makeElevation(t, grid.NewBounds(0, 0, 4, 4), 1)

	views, st, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, 2)
	require.NoError(t, err)
	require.Len(t, views[0], 3)
	assert.Equal(t, 1, st.Empty)
	assert.Equal(t, 0, views[0][0].Row)
	assert.Equal(t, 1, views[0][0].Col)
}

func TestConvertMapsToPatches_PartiallyObservedPatchKept(t *testing.T) {
	t.Parallel()
	img := makeImage(t, grid.NewBounds(0, 0, 2, 2), 1, func(r, c int) bool { return r != 0 || c != 0 })
	elev := makeElevation(t, grid.NewBounds(0, 0, 2, 2), 1)

	views, _, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, 2)
	require.NoError(t, err)
	require.Len(t, views[0], 1)
	assert.Equal(t, 1.0, views[0][0].Hits)
}

func TestConvertMapsToPatches_ZeroSizedImage(t *testing.T) {
	t.Parallel()
	b, err := grid.NewBuilder(grid.NewBounds(0, 0, 0.5, 0.5), 1)
	require.NoError(t, err)
	img, err := b.Finish()
	require.NoError(t, err)
	elev := makeElevation(t, grid.NewBounds(0, 0, 4, 4), 1)

	views, st, err := ConvertMapsToPatches([]*grid.MapImage{img, nil}, elev, 1)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Empty(t, views[0])
	assert.Empty(t, views[1])
	assert.Zero(t, st.Candidates)
}

func TestConvertMapsToPatches_WorldFrameElevation(t *testing.T) {
	t.Parallel()
	// Two neighbouring tiles share one elevation map that starts further
	// west and south than either tile.
	left := makeImage(t, grid.NewBounds(10, 20, 14, 24), 1, nil)
	right := makeImage(t, grid.NewBounds(14, 20, 18, 24), 1, nil)
	elev := makeElevation(t, grid.NewBounds(8, 16, 20, 28), 1)

	views, st, err := ConvertMapsToPatches([]*grid.MapImage{left, right}, elev, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Emitted)
	require.Len(t, views[0], 1)
	require.Len(t, views[1], 1)

	// left tile min corner (10, 20) is elevation cell (row 4, col 2).
	assert.Equal(t, 4002.0, views[0][0].Elevation.At(0, 0))
	// right tile min corner (14, 20) is elevation cell (row 4, col 6).
	assert.Equal(t, 4006.0, views[1][0].Elevation.At(0, 0))
	assert.Equal(t, grid.NewBounds(14, 20, 18, 24), views[1][0].Bounds)
}

func TestConvertMapsToPatches_ElevationMiss(t *testing.T) {
	t.Parallel()
	img := makeImage(t, grid.NewBounds(0, 0, 4, 4), 1, nil)
	// Elevation only covers the lower half.
	elev := makeElevation(t, grid.NewBounds(0, 0, 4, 2), 1)

	views, st, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, 2)
	require.NoError(t, err)
	assert.Len(t, views[0], 2)
	assert.Equal(t, 2, st.ElevationMisses)
	for _, v := range views[0] {
		assert.Equal(t, 0, v.Row)
	}
}

func TestConvertMapsToPatches_FractionalResolutionAligned(t *testing.T) {
	t.Parallel()
	// 0.4 m patches at 10 cells/m are 4x4 cells. Elevation shares the grid,
	// so each patch's heights must start on the patch's own cell.
	for _, origin := range [][2]float64{{100, 200}, {669600, 6383400}} {
		bounds := grid.NewBounds(origin[0], origin[1], origin[0]+2, origin[1]+2)
		img := makeImage(t, bounds, 10, nil)
		elev := makeElevation(t, bounds, 10)

		views, st, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, 0.4)
		require.NoError(t, err)
		assert.Equal(t, Stats{Images: 1, Candidates: 25, Emitted: 25}, st, "origin %v", origin)
		require.Len(t, views[0], 25)

		for _, v := range views[0] {
			r0, c0 := 4*v.Row, 4*v.Col
			ir, ic := v.Intensity.Dims()
			er, ec := v.Elevation.Dims()
			assert.Equal(t, [2]int{4, 4}, [2]int{ir, ic}, "origin %v patch (%d,%d)", origin, v.Row, v.Col)
			require.Equal(t, [2]int{4, 4}, [2]int{er, ec}, "origin %v patch (%d,%d)", origin, v.Row, v.Col)
			assert.Equal(t, float64(1000*r0+c0), v.Elevation.At(0, 0), "origin %v patch (%d,%d)", origin, v.Row, v.Col)
			assert.Equal(t, float64(1000*(r0+3)+c0+3), v.Elevation.At(3, 3), "origin %v patch (%d,%d)", origin, v.Row, v.Col)
			assert.Equal(t, float64(10*r0+c0), v.Intensity.At(0, 0), "origin %v patch (%d,%d)", origin, v.Row, v.Col)
		}
	}
}

// noDataESRI is a 4x4 grid whose north-west 2x2 block is NODATA.
const noDataESRI = `ncols 4
nrows 4
xllcorner 0
yllcorner 0
cellsize 1
NODATA_value -9999
-9999 -9999 3 4
-9999 -9999 7 8
9 10 11 12
13 14 15 16
`

func TestConvertMapsToPatches_NoDataIsElevationMiss(t *testing.T) {
	t.Parallel()
	img := makeImage(t, grid.NewBounds(0, 0, 4, 4), 1, nil)
	elev, err := elevation.ReadESRIASCII(strings.NewReader(noDataESRI))
	require.NoError(t, err)

	views, st, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, 2)
	require.NoError(t, err)
	assert.Equal(t, Stats{Images: 1, Candidates: 4, Emitted: 3, ElevationMisses: 1}, st)
	require.Len(t, views[0], 3)
	for _, v := range views[0] {
		assert.False(t, v.Row == 1 && v.Col == 0, "patch over NODATA emitted")
		for i := 0; i < 2; i++ {
			for _, h := range v.Elevation.RawRowView(i) {
				assert.False(t, math.IsNaN(h))
			}
		}
	}
}

func TestConvertMapsToPatches_PartialEdgePatchesSkipped(t *testing.T) {
	t.Parallel()
	img := makeImage(t, grid.NewBounds(0, 0, 5, 3), 1, nil)
	elev := makeElevation(t, grid.NewBounds(0, 0, 5, 3), 1)

	views, st, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Candidates)
	assert.Len(t, views[0], 2)
}

func TestConvertMapsToPatches_ResolutionScalesPatch(t *testing.T) {
	t.Parallel()
	img := makeImage(t, grid.NewBounds(0, 0, 4, 4), 2, nil) // 8x8 cells
	elev := makeElevation(t, grid.NewBounds(0, 0, 4, 4), 1)

	views, _, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, 2)
	require.NoError(t, err)
	require.Len(t, views[0], 4)
	r, c := views[0][0].Intensity.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 4, c)
	r, c = views[0][0].Elevation.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
}

func TestConvertMapsToPatches_InvalidPatchSize(t *testing.T) {
	t.Parallel()
	img := makeImage(t, grid.NewBounds(0, 0, 4, 4), 1, nil)
	elev := makeElevation(t, grid.NewBounds(0, 0, 4, 4), 1)

	for _, size := range []float64{0, -1, 0.5} {
		_, _, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, size)
		assert.ErrorIs(t, err, ErrInvalidPatchSize, "size %v", size)
	}

	_, _, err := ConvertMapsToPatches([]*grid.MapImage{img}, nil, 2)
	assert.Error(t, err)
}

func TestConvertMapsToPatches_PatchesDoNotAliasImage(t *testing.T) {
	t.Parallel()
	img := makeImage(t, grid.NewBounds(0, 0, 2, 2), 1, nil)
	elev := makeElevation(t, grid.NewBounds(0, 0, 2, 2), 1)

	views, _, err := ConvertMapsToPatches([]*grid.MapImage{img}, elev, 2)
	require.NoError(t, err)
	views[0][0].Intensity.Set(0, 0, -5)
	assert.Equal(t, 0.0, img.Intensity.At(0, 0))
}

package survey

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
)

func twoTiles() []Tile {
	return []Tile{
		{ID: "west", Bounds: grid.NewBounds(0, 0, 10, 10)},
		{ID: "east", Bounds: grid.NewBounds(10, 0, 20, 10)},
	}
}

func TestNew_SkipsInvalidTiles(t *testing.T) {
	t.Parallel()
	tiles := append(twoTiles(), Tile{ID: "bad", Bounds: grid.NewBounds(5, 5, 5, 9)})

	s, err := New(tiles, 1)
	require.NoError(t, err)
	assert.Len(t, s.Tiles(), 2)

	_, st, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Tiles)
	assert.Equal(t, 1, st.SkippedTiles)
}

func TestNew_InvalidResolution(t *testing.T) {
	t.Parallel()
	_, err := New(twoTiles(), 0)
	assert.ErrorIs(t, err, grid.ErrInvalidResolution)
}

func TestSurvey_RoutesHitsToTiles(t *testing.T) {
	t.Parallel()
	s, err := New(twoTiles(), 1)
	require.NoError(t, err)

	require.NoError(t, s.Add(grid.Ping{
		Pose: r3.Vec{X: 10, Y: 5},
		Side: grid.Starboard,
		Hits: []grid.Hit{
			{X: 3.4, Y: 7.8, Intensity: 5},
			{X: 12.5, Y: 1.5, Intensity: 8},
			{X: 50, Y: 50, Intensity: 1},
		},
	}))

	results, st, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, st.Pings)
	assert.Equal(t, 3, st.Hits)
	assert.Equal(t, 1, st.Unrouted)

	west, east := results[0], results[1]
	assert.Equal(t, "west", west.Tile.ID)
	assert.Equal(t, 5.0, west.Image.Intensity.At(7, 3))
	assert.Equal(t, 1.0, west.Image.HitCount())

	assert.Equal(t, "east", east.Tile.ID)
	assert.Equal(t, 8.0, east.Image.Intensity.At(1, 2))
	assert.Equal(t, grid.NewBounds(10, 0, 20, 10), east.Image.Bounds)

	// Both tiles log the same map-frame pose and the full derived rows.
	for _, r := range results {
		require.Len(t, r.Image.Positions, 1)
		assert.Equal(t, r3.Vec{X: 10, Y: 5}, r.Image.Positions[0])
		require.Equal(t, 1, r.Image.Waterfall.Len())
		assert.Equal(t, []float64{5, 8, 1}, r.Image.Waterfall.Intensity[0])
	}
}

func TestSurvey_SkipsEmptyTiles(t *testing.T) {
	t.Parallel()
	s, err := New(twoTiles(), 1)
	require.NoError(t, err)

	require.NoError(t, s.Add(grid.Ping{Hits: []grid.Hit{{X: 1, Y: 1, Intensity: 2}}}))
	require.NoError(t, s.Add(grid.Ping{}))

	results, st, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "west", results[0].Tile.ID)
	assert.Equal(t, 1, st.EmptyTiles)
	assert.Equal(t, 1, st.Pings)
}

func TestSurvey_SharedEdgeCountsOnce(t *testing.T) {
	t.Parallel()
	s, err := New(twoTiles(), 1)
	require.NoError(t, err)

	// x = 10 is inside both boxes but only a cell of the east tile.
	require.NoError(t, s.Add(grid.Ping{Hits: []grid.Hit{{X: 10, Y: 4, Intensity: 6}}}))

	results, _, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "east", results[0].Tile.ID)
	assert.Equal(t, 6.0, results[0].Image.Intensity.At(4, 0))
}

func TestSurvey_OuterMaxEdgeIsUnrouted(t *testing.T) {
	t.Parallel()
	s, err := New(twoTiles(), 1)
	require.NoError(t, err)

	require.NoError(t, s.Add(grid.Ping{Hits: []grid.Hit{
		{X: 20, Y: 4, Intensity: 1},
		{X: 5, Y: 10, Intensity: 1},
		{X: 5, Y: 5, Intensity: 3},
	}}))

	results, st, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Unrouted)
	require.Len(t, results, 1)
	assert.Equal(t, "west", results[0].Tile.ID)
	assert.Equal(t, 1.0, results[0].Image.HitCount())
}

func TestSurvey_PartialCellEdgeIsUnrouted(t *testing.T) {
	t.Parallel()
	// 10.5 m wide at 1 cell/m: the last half metre has no cell.
	s, err := New([]Tile{{ID: "a", Bounds: grid.NewBounds(0, 0, 10.5, 10)}}, 1)
	require.NoError(t, err)

	require.NoError(t, s.Add(grid.Ping{Hits: []grid.Hit{{X: 10.2, Y: 1}, {X: 1, Y: 1, Intensity: 2}}}))
	_, st, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Unrouted)
}

func TestSurvey_KeepsRawRows(t *testing.T) {
	t.Parallel()
	s, err := New(twoTiles(), 1)
	require.NoError(t, err)

	raw := grid.WaterfallRows{Intensity: []float64{1, 2, 3, 4}}
	require.NoError(t, s.Add(grid.Ping{
		Hits: []grid.Hit{{X: 1, Y: 1, Intensity: 2}},
		Raw:  raw,
	}))
	results, _, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []float64{1, 2, 3, 4}, results[0].Image.Waterfall.Intensity[0])
}

func TestSurvey_FinishOnce(t *testing.T) {
	t.Parallel()
	s, err := New(twoTiles(), 1)
	require.NoError(t, err)
	_, _, err = s.Finish()
	require.NoError(t, err)

	_, _, err = s.Finish()
	assert.ErrorIs(t, err, grid.ErrBuilderFinished)
	assert.ErrorIs(t, s.Add(grid.Ping{Hits: []grid.Hit{{X: 1, Y: 1}}}), grid.ErrBuilderFinished)
}

func TestSurvey_LogsSkippedTiles(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	_, err := New([]Tile{{ID: "flat", Bounds: grid.NewBounds(0, 0, 1, 0)}}, 1)
	require.NoError(t, err)
	assert.Contains(t, ops.String(), `skipping tile "flat"`)
}

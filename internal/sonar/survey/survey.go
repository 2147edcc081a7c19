// Package survey runs one map image builder per caller supplied tile and
// routes map-frame pings to the tiles they land in.
package survey

import (
	"fmt"

	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
)

// Tile is one caller-chosen region of the survey, in map-frame metres.
type Tile struct {
	ID     string      `json:"id"`
	Bounds grid.Bounds `json:"bounds"`
}

// Result is one finished, non-empty tile.
type Result struct {
	Tile  Tile
	Image *grid.MapImage
}

// Stats summarises a survey run.
type Stats struct {
	Tiles        int // tiles accepted at construction
	SkippedTiles int // rejected for invalid bounds
	EmptyTiles   int // finished without observations
	Pings        int
	Hits         int
	Unrouted     int // hits that landed in no tile
}

type tileBuilder struct {
	tile    Tile
	builder *grid.Builder
}

// Survey fans pings out to per-tile builders. Ingestion is serialised by the
// caller; a Survey is not safe for concurrent use.
type Survey struct {
	resolution float64
	tiles      []tileBuilder
	stats      Stats
	finished   bool
}

// New creates a builder for every tile. Tiles with invalid bounds are logged
// and skipped. An invalid resolution fails the whole survey.
func New(tiles []Tile, resolution float64) (*Survey, error) {
	s := &Survey{resolution: resolution}
	for _, t := range tiles {
		b, err := grid.NewBuilder(t.Bounds, resolution)
		if err != nil {
			if t.Bounds.Validate() == nil {
				return nil, fmt.Errorf("survey: %w", err)
			}
			s.stats.SkippedTiles++
			opsf("skipping tile %q: %v", t.ID, err)
			continue
		}
		s.tiles = append(s.tiles, tileBuilder{tile: t, builder: b})
	}
	s.stats.Tiles = len(s.tiles)
	diagf("survey created: %d tiles at %g cells/m (%d skipped)", len(s.tiles), resolution, s.stats.SkippedTiles)
	return s, nil
}

// Tiles returns the accepted tiles in construction order.
func (s *Survey) Tiles() []Tile {
	out := make([]Tile, len(s.tiles))
	for i, tb := range s.tiles {
		out[i] = tb.tile
	}
	return out
}

// Add routes one map-frame ping. Each tile receives only the hits inside its
// half-open cell range, translated to the tile origin, so a hit on a shared
// edge goes to exactly one tile and a hit on an outer max edge is unrouted. When the ping carries no raw rows
// they are derived once in the map frame, so every tile records the same
// rows and pose for the ping.
func (s *Survey) Add(p grid.Ping) error {
	if s.finished {
		return grid.ErrBuilderFinished
	}
	if len(p.Hits) == 0 {
		return nil
	}
	s.stats.Pings++
	s.stats.Hits += len(p.Hits)

	if p.Raw.Empty() {
		p.Raw = grid.DeriveWaterfall(p.Hits, p.Pose, p.Side)
	}

	routed := make([]bool, len(p.Hits))
	for _, tb := range s.tiles {
		cfg := tb.builder.Config()
		var local []grid.Hit
		for i, h := range p.Hits {
			if !cfg.Covers(h.X-cfg.Origin.X, h.Y-cfg.Origin.Y) {
				continue
			}
			routed[i] = true
			local = append(local, grid.Hit{
				X:         h.X - cfg.Origin.X,
				Y:         h.Y - cfg.Origin.Y,
				Z:         h.Z,
				Intensity: h.Intensity,
			})
		}
		if len(local) == 0 {
			continue
		}
		if err := tb.builder.AddPing(grid.Ping{Hits: local, Pose: p.Pose, Side: p.Side, Raw: p.Raw}); err != nil {
			return fmt.Errorf("tile %q: %w", tb.tile.ID, err)
		}
	}

	for _, ok := range routed {
		if !ok {
			s.stats.Unrouted++
		}
	}
	return nil
}

// Finish finalises every tile and returns the non-empty ones in tile order.
// Tiles that received no observations are skipped.
func (s *Survey) Finish() ([]Result, Stats, error) {
	if s.finished {
		return nil, s.stats, grid.ErrBuilderFinished
	}
	s.finished = true

	var out []Result
	for _, tb := range s.tiles {
		if tb.builder.Empty() {
			s.stats.EmptyTiles++
			diagf("tile %q has no observations, skipping", tb.tile.ID)
			continue
		}
		img, err := tb.builder.Finish()
		if err != nil {
			return nil, s.stats, fmt.Errorf("tile %q: %w", tb.tile.ID, err)
		}
		if d := tb.builder.Dropped(); d > 0 {
			diagf("tile %q dropped %d edge hits", tb.tile.ID, d)
		}
		out = append(out, Result{Tile: tb.tile, Image: img})
	}
	opsf("survey finished: %d images, %d empty tiles, %d pings, %d hits (%d outside every tile)",
		len(out), s.stats.EmptyTiles, s.stats.Pings, s.stats.Hits, s.stats.Unrouted)
	return out, s.stats, nil
}

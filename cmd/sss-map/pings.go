package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
	"github.com/banshee-data/sidescan.report/internal/sonar/survey"
)

// pingRecord is one line of the ping stream. Hits are [x, y, z, intensity]
// in map-frame metres; pose is [x, y, z].
type pingRecord struct {
	Pose [3]float64    `json:"pose"`
	Side grid.Side     `json:"side"`
	Hits [][4]float64  `json:"hits"`
	Raw  *rawRowRecord `json:"raw,omitempty"`
}

type rawRowRecord struct {
	Intensity  []float64 `json:"intensity"`
	CrossTrack []float64 `json:"cross_track"`
	Depth      []float64 `json:"depth"`
}

func (r pingRecord) ping() grid.Ping {
	p := grid.Ping{
		Pose: r3.Vec{X: r.Pose[0], Y: r.Pose[1], Z: r.Pose[2]},
		Side: r.Side,
		Hits: make([]grid.Hit, len(r.Hits)),
	}
	for i, h := range r.Hits {
		p.Hits[i] = grid.Hit{X: h[0], Y: h[1], Z: h[2], Intensity: h[3]}
	}
	if r.Raw != nil {
		p.Raw = grid.WaterfallRows{
			Intensity:  r.Raw.Intensity,
			CrossTrack: r.Raw.CrossTrack,
			Depth:      r.Raw.Depth,
		}
	}
	return p
}

// readPings decodes a JSON-lines ping stream and hands each ping to fn in
// file order. Blank and whitespace-only lines are skipped.
func readPings(r io.Reader, fn func(grid.Ping) error) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	n, line := 0, 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec pingRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return n, fmt.Errorf("ping line %d: %w", line, err)
		}
		if err := fn(rec.ping()); err != nil {
			return n, fmt.Errorf("ping line %d: %w", line, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read pings: %w", err)
	}
	return n, nil
}

// readTiles decodes a JSON array of tiles.
func readTiles(r io.Reader) ([]survey.Tile, error) {
	var tiles []survey.Tile
	if err := json.NewDecoder(r).Decode(&tiles); err != nil {
		return nil, fmt.Errorf("read tiles: %w", err)
	}
	return tiles, nil
}

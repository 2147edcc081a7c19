package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Hit is one sonar return in tile-local metres, not yet scaled to cells.
type Hit struct {
	X, Y, Z   float64
	Intensity float64
}

// Side identifies the transducer that produced a ping.
type Side uint8

const (
	Starboard Side = iota
	Port
)

func (s Side) String() string {
	switch s {
	case Starboard:
		return "starboard"
	case Port:
		return "port"
	}
	return fmt.Sprintf("side(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts "port"/"left" and "starboard"/"right".
func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "starboard", "right":
		*s = Starboard
	case "port", "left":
		*s = Port
	default:
		return fmt.Errorf("unknown sonar side %q", string(b))
	}
	return nil
}

// WaterfallRows holds one ping's raw cross-track rows.
type WaterfallRows struct {
	Intensity  []float64
	CrossTrack []float64
	Depth      []float64
}

// Empty reports whether no raw rows were supplied.
func (w WaterfallRows) Empty() bool {
	return w.Intensity == nil && w.CrossTrack == nil && w.Depth == nil
}

// Ping is one transmit/receive cycle: a hit batch, the vehicle pose at the
// time of the ping and the side it was recorded on. Raw waterfall rows are
// optional; when absent they are derived from the hits.
type Ping struct {
	Hits []Hit
	Pose r3.Vec
	Side Side
	Raw  WaterfallRows
}

// DeriveWaterfall builds waterfall rows from a hit batch. Hits and pose must
// share a frame. Cross-track distance is the horizontal range from the pose,
// signed negative on the port side. Depth is the hit z.
func DeriveWaterfall(hits []Hit, pose r3.Vec, side Side) WaterfallRows {
	w := WaterfallRows{
		Intensity:  make([]float64, len(hits)),
		CrossTrack: make([]float64, len(hits)),
		Depth:      make([]float64, len(hits)),
	}
	sign := 1.0
	if side == Port {
		sign = -1
	}
	for i, h := range hits {
		w.Intensity[i] = h.Intensity
		w.CrossTrack[i] = sign * math.Hypot(h.X-pose.X, h.Y-pose.Y)
		w.Depth[i] = h.Z
	}
	return w
}

// Waterfall is the time-ordered log of per-ping raw rows. Rows may differ in
// length between pings.
type Waterfall struct {
	Intensity  [][]float64
	CrossTrack [][]float64
	Depth      [][]float64
}

// Len returns the number of pings recorded.
func (w *Waterfall) Len() int {
	return len(w.Intensity)
}

func (w *Waterfall) append(rows WaterfallRows) {
	w.Intensity = append(w.Intensity, rows.Intensity)
	w.CrossTrack = append(w.CrossTrack, rows.CrossTrack)
	w.Depth = append(w.Depth, rows.Depth)
}

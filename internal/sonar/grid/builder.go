package grid

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrBuilderFinished is returned when a Builder is used after Finish.
var ErrBuilderFinished = errors.New("map image builder already finished")

type builderState uint8

const (
	stateAccumulating builderState = iota
	stateFinished
)

// Builder accumulates intensity for one tile. It owns two equally shaped
// grids, running sums and running counts, plus the per-ping waterfall and
// position logs.
//
// A Builder is not safe for concurrent use. Callers feeding one tile from
// several goroutines must serialise AddHits themselves.
type Builder struct {
	cfg GridConfig

	sums   *mat.Dense
	counts *mat.Dense
	total  float64 // running sum of counts

	waterfall Waterfall
	positions []r3.Vec
	sides     []Side

	dropped int
	state   builderState
}

// NewBuilder validates the bounds and allocates zeroed grids.
func NewBuilder(bounds Bounds, resolution float64) (*Builder, error) {
	cfg, err := NewGridConfig(bounds, resolution)
	if err != nil {
		return nil, err
	}
	return NewBuilderFromConfig(cfg), nil
}

// NewBuilderFromConfig allocates a Builder for an already validated config.
func NewBuilderFromConfig(cfg GridConfig) *Builder {
	return &Builder{
		cfg:    cfg,
		sums:   newDense(cfg.Rows, cfg.Cols),
		counts: newDense(cfg.Rows, cfg.Cols),
	}
}

// newDense returns a zeroed rows x cols matrix, or an empty matrix when either
// dimension is zero (mat.NewDense panics on zero lengths).
func newDense(rows, cols int) *mat.Dense {
	if rows == 0 || cols == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(rows, cols, nil)
}

// Config returns the grid configuration.
func (b *Builder) Config() GridConfig { return b.cfg }

// AddHits ingests one batch of tile-local hits recorded at pose on side.
// Waterfall rows are derived from the hits.
func (b *Builder) AddHits(hits []Hit, pose r3.Vec, side Side) error {
	return b.AddPing(Ping{Hits: hits, Pose: pose, Side: side})
}

// AddPing ingests one ping. An empty hit batch is a no-op: sums, counts,
// the waterfall and the position log are left untouched.
//
// Hit x,y are scaled by the resolution and truncated toward zero to cell
// indices. Hits outside the grid are dropped silently and counted in
// Dropped. The pose and raw rows are appended in call order.
func (b *Builder) AddPing(p Ping) error {
	if b.state == stateFinished {
		return ErrBuilderFinished
	}
	if len(p.Hits) == 0 {
		return nil
	}

	inside := 0
	for _, h := range p.Hits {
		row, col, ok := b.cfg.CellIndex(h.X, h.Y)
		if !ok {
			continue
		}
		b.sums.Set(row, col, b.sums.At(row, col)+h.Intensity)
		b.counts.Set(row, col, b.counts.At(row, col)+1)
		inside++
	}
	b.total += float64(inside)
	b.dropped += len(p.Hits) - inside

	rows := p.Raw
	if rows.Empty() {
		// Hits are tile-local, so move the pose into the same frame.
		rows = DeriveWaterfall(p.Hits, r3.Sub(p.Pose, b.cfg.Origin), p.Side)
	} else {
		rows = WaterfallRows{
			Intensity:  cloneRow(rows.Intensity),
			CrossTrack: cloneRow(rows.CrossTrack),
			Depth:      cloneRow(rows.Depth),
		}
	}
	b.waterfall.append(rows)
	b.positions = append(b.positions, p.Pose)
	b.sides = append(b.sides, p.Side)

	tracef("ping %d side=%s hits=%d inside=%d pose=(%.2f, %.2f, %.2f)",
		len(b.positions), p.Side, len(p.Hits), inside, p.Pose.X, p.Pose.Y, p.Pose.Z)
	return nil
}

func cloneRow(r []float64) []float64 {
	if r == nil {
		return nil
	}
	return append(make([]float64, 0, len(r)), r...)
}

// Empty reports whether no hit has landed inside the grid.
func (b *Builder) Empty() bool {
	return b.total == 0
}

// Dropped returns the number of hits that fell outside the grid.
func (b *Builder) Dropped() int { return b.dropped }

// Pings returns the number of non-empty batches ingested so far.
func (b *Builder) Pings() int { return len(b.positions) }

// Sum returns the accumulated intensity of a cell.
func (b *Builder) Sum(row, col int) float64 { return b.sums.At(row, col) }

// Count returns the number of hits accumulated in a cell.
func (b *Builder) Count(row, col int) float64 { return b.counts.At(row, col) }

// Finish converts the accumulated sums and counts into a MapImage. A cell
// with no hits has mean intensity exactly 0. The Builder is consumed: later
// calls to AddHits, AddPing or Finish return ErrBuilderFinished.
func (b *Builder) Finish() (*MapImage, error) {
	if b.state == stateFinished {
		return nil, ErrBuilderFinished
	}
	b.state = stateFinished

	mean := newDense(b.cfg.Rows, b.cfg.Cols)
	if !mean.IsEmpty() {
		mean.Apply(func(i, j int, sum float64) float64 {
			n := b.counts.At(i, j)
			if n == 0 {
				return 0
			}
			return sum / n
		}, b.sums)
	}

	img := &MapImage{
		Bounds:     b.cfg.Bounds,
		Resolution: b.cfg.Resolution,
		Intensity:  mean,
		// The builder can no longer mutate, so the image takes ownership.
		Counts:    b.counts,
		Waterfall: b.waterfall,
		Positions: b.positions,
		Sides:     b.sides,
	}
	if b.dropped > 0 {
		opsf("tile %s: dropped %d of %d hits outside the grid",
			b.cfg.Bounds, b.dropped, b.dropped+int(b.total))
	}
	diagf("finished tile %s: %dx%d cells, pings=%d hits=%.0f dropped=%d",
		b.cfg.Bounds, b.cfg.Rows, b.cfg.Cols, len(b.positions), b.total, b.dropped)
	return img, nil
}

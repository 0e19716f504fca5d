package area

import (
	"context"
	"errors"
	"time"

	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mesh"
)

var (
	ErrFetch  = errors.New("block fetch failed")
	ErrDecode = errors.New("block decode failed")
)

// BlockSource produces resident tiles. A nil tile with a nil error means
// the cell has nothing to load.
type BlockSource interface {
	FetchBlock(ctx context.Context, id layout.TileID) (*mesh.Tile, error)
}

type BlockSourceFunc func(ctx context.Context, id layout.TileID) (*mesh.Tile, error)

func (f BlockSourceFunc) FetchBlock(ctx context.Context, id layout.TileID) (*mesh.Tile, error) {
	return f(ctx, id)
}

// Failure stages reported in LoadEvent.Stage.
const (
	StageOK     = "ok"
	StageEmpty  = "empty"
	StageFetch  = "fetch"
	StageDecode = "decode"
	StageLoad   = "load"
)

// Stage classifies a load error.
func Stage(err error) string {
	switch {
	case err == nil:
		return StageOK
	case errors.Is(err, ErrFetch):
		return StageFetch
	case errors.Is(err, ErrDecode):
		return StageDecode
	default:
		return StageLoad
	}
}

// LoadEvent describes one finished tile load, successful or not.
type LoadEvent struct {
	Scope    string
	Col      int
	Row      int
	Tile     layout.TileID
	Stage    string
	Err      error
	Duration time.Duration
	At       time.Time
}

type Recorder interface {
	RecordLoad(ev LoadEvent)
}

type RecorderFunc func(ev LoadEvent)

func (f RecorderFunc) RecordLoad(ev LoadEvent) { f(ev) }

// Recorders fans an event out to every non-nil recorder.
type Recorders []Recorder

func (rs Recorders) RecordLoad(ev LoadEvent) {
	for _, r := range rs {
		if r != nil {
			r.RecordLoad(ev)
		}
	}
}

package log

import (
	stdlog "log"
	"path/filepath"
	"sync/atomic"

	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/stream"
)

// LoadRecord is one line of the tile load log.
type LoadRecord struct {
	TS         string `json:"ts"`
	Scope      string `json:"scope"`
	Col        int    `json:"col"`
	Row        int    `json:"row"`
	Tile       string `json:"tile"`
	Stage      string `json:"stage"`
	Err        string `json:"err,omitempty"`
	DurationUS int64  `json:"dur_us"`
}

// AreaRecord is one line of the area lifecycle log.
type AreaRecord struct {
	TS         string `json:"ts"`
	Kind       string `json:"kind"`
	Key        string `json:"key"`
	Tiles      int    `json:"tiles,omitempty"`
	Resident   int    `json:"resident"`
	Err        string `json:"err,omitempty"`
	DurationUS int64  `json:"dur_us,omitempty"`
}

// LoadLogger persists tile and area load events. Write failures are
// counted and reported through logger; they never reach the loader.
type LoadLogger struct {
	tiles  *JSONLZstdWriter
	areas  *JSONLZstdWriter
	logger *stdlog.Logger

	writeErrors atomic.Uint64
}

func NewLoadLogger(dataDir string, logger *stdlog.Logger) *LoadLogger {
	return &LoadLogger{
		tiles:  NewJSONLZstdWriter(filepath.Join(dataDir, "loads"), "tiles"),
		areas:  NewJSONLZstdWriter(filepath.Join(dataDir, "loads"), "areas"),
		logger: logger,
	}
}

func (l *LoadLogger) RecordLoad(ev area.LoadEvent) {
	rec := LoadRecord{
		TS:         ev.At.UTC().Format("2006-01-02T15:04:05.000000Z"),
		Scope:      ev.Scope,
		Col:        ev.Col,
		Row:        ev.Row,
		Tile:       ev.Tile.String(),
		Stage:      ev.Stage,
		DurationUS: ev.Duration.Microseconds(),
	}
	if ev.Err != nil {
		rec.Err = ev.Err.Error()
	}
	l.write(l.tiles, rec)
}

func (l *LoadLogger) RecordArea(ev stream.Event) {
	rec := AreaRecord{
		TS:         l.areas.now().UTC().Format("2006-01-02T15:04:05.000000Z"),
		Kind:       ev.Kind,
		Key:        ev.Key.String(),
		Tiles:      ev.Tiles,
		Resident:   ev.Resident,
		DurationUS: ev.Duration.Microseconds(),
	}
	if ev.Err != nil {
		rec.Err = ev.Err.Error()
	}
	l.write(l.areas, rec)
}

func (l *LoadLogger) write(w *JSONLZstdWriter, v any) {
	if err := w.Write(v); err != nil {
		n := l.writeErrors.Add(1)
		if l.logger != nil {
			l.logger.Printf("load log write failed dir=%s err=%v errors_total=%d", w.Dir(), err, n)
		}
	}
}

// OnClosed forwards finished log files, e.g. to an object-store mirror.
func (l *LoadLogger) OnClosed(fn func(path string)) {
	l.tiles.OnClosed(fn)
	l.areas.OnClosed(fn)
}

func (l *LoadLogger) WriteErrors() uint64 { return l.writeErrors.Load() }

func (l *LoadLogger) Close() error {
	err := l.tiles.Close()
	if aerr := l.areas.Close(); err == nil {
		err = aerr
	}
	return err
}

package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/stream"
	"tilestream.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of load outcomes. Writes go
// through a buffered channel to a single writer goroutine and are dropped
// when the queue is full; the JSONL load log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTileTotal atomic.Uint64
	dropAreaTotal atomic.Uint64
}

type reqKind int

const (
	reqTile reqKind = iota + 1
	reqArea
	reqFlush
)

type req struct {
	kind reqKind

	tile tileRow
	area areaRow
	done chan struct{}
}

type tileRow struct {
	TS         string
	Scope      string
	Col, Row   int
	Tile       string
	Stage      string
	Err        string
	DurationUS int64
}

type areaRow struct {
	TS         string
	Kind       string
	Key        string
	Tiles      int
	Resident   int
	Err        string
	DurationUS int64
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTileTotal uint64
	DropAreaTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// A full world reload emits one event per cell; keep room for a few.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tile_loads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			scope TEXT NOT NULL,
			col INTEGER NOT NULL,
			row INTEGER NOT NULL,
			tile TEXT NOT NULL,
			stage TEXT NOT NULL,
			err TEXT,
			dur_us INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tile_loads_stage ON tile_loads(stage, tile);`,
		`CREATE INDEX IF NOT EXISTS idx_tile_loads_scope ON tile_loads(scope, col, row);`,
		`CREATE TABLE IF NOT EXISTS area_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			kind TEXT NOT NULL,
			area_key TEXT NOT NULL,
			tiles INTEGER NOT NULL,
			resident INTEGER NOT NULL,
			err TEXT,
			dur_us INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_area_events_key ON area_events(area_key, id);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTileTotal: s.dropTileTotal.Load(),
		DropAreaTotal: s.dropAreaTotal.Load(),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// RecordLoad queues one tile load outcome.
func (s *SQLiteIndex) RecordLoad(ev area.LoadEvent) {
	if s == nil || s.closed.Load() {
		return
	}
	r := tileRow{
		TS:         ev.At.UTC().Format(time.RFC3339Nano),
		Scope:      ev.Scope,
		Col:        ev.Col,
		Row:        ev.Row,
		Tile:       ev.Tile.String(),
		Stage:      ev.Stage,
		Err:        errString(ev.Err),
		DurationUS: ev.Duration.Microseconds(),
	}
	select {
	case s.ch <- req{kind: reqTile, tile: r}:
	default:
		s.dropTileTotal.Add(1)
	}
}

// RecordArea queues one area lifecycle event.
func (s *SQLiteIndex) RecordArea(ev stream.Event) {
	if s == nil || s.closed.Load() {
		return
	}
	r := areaRow{
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
		Kind:       ev.Kind,
		Key:        ev.Key.String(),
		Tiles:      ev.Tiles,
		Resident:   ev.Resident,
		Err:        errString(ev.Err),
		DurationUS: ev.Duration.Microseconds(),
	}
	select {
	case s.ch <- req{kind: reqArea, area: r}:
	default:
		s.dropAreaTotal.Add(1)
	}
}

// Flush waits until every queued write is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertTuning stores the applied tuning as canonical JSON with its digest.
func (s *SQLiteIndex) UpsertTuning(ctx context.Context, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	insertTile, _ := s.db.Prepare(`INSERT INTO tile_loads(ts,scope,col,row,tile,stage,err,dur_us) VALUES(?,?,?,?,?,?,?,?)`)
	insertArea, _ := s.db.Prepare(`INSERT INTO area_events(ts,kind,area_key,tiles,resident,err,dur_us) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertTile != nil {
			_ = insertTile.Close()
		}
		if insertArea != nil {
			_ = insertArea.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTile:
			if insertTile != nil {
				t := r.tile
				if _, err := tx.Stmt(insertTile).Exec(t.TS, t.Scope, t.Col, t.Row, t.Tile, t.Stage, t.Err, t.DurationUS); err == nil {
					opCount++
				}
			}
		case reqArea:
			if insertArea != nil {
				a := r.area
				if _, err := tx.Stmt(insertArea).Exec(a.TS, a.Kind, a.Key, a.Tiles, a.Resident, a.Err, a.DurationUS); err == nil {
					opCount++
				}
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

package indexdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/stream"
	"tilestream.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTile}

	s.RecordLoad(area.LoadEvent{Stage: area.StageOK})
	s.RecordArea(stream.Event{Kind: stream.EventLoaded})

	st := s.Stats()
	if st.DropTileTotal != 1 || st.DropAreaTotal != 1 {
		t.Fatalf("drops tile=%d area=%d", st.DropTileTotal, st.DropAreaTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_RecordsAndQueries(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "loads.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	now := time.Now()
	bad := layout.TileID{Major: 9, Minor: 1}
	for i := 0; i < 3; i++ {
		s.RecordLoad(area.LoadEvent{Scope: "a", Col: i, Tile: bad, Stage: area.StageDecode, Err: fmt.Errorf("attempt %d: %w", i, area.ErrDecode), At: now})
	}
	s.RecordLoad(area.LoadEvent{Scope: "a", Col: 5, Tile: layout.TileID{Major: 2, Minor: 2}, Stage: area.StageFetch, Err: errors.New("timeout"), At: now})
	s.RecordLoad(area.LoadEvent{Scope: "a", Col: 6, Tile: layout.TileID{Major: 1, Minor: 0}, Stage: area.StageOK, At: now})
	key := layout.PlacementKey{TileIndex: 3, GX: 4, GZ: 5}
	s.RecordArea(stream.Event{Kind: stream.EventLoaded, Key: key, Tiles: 4, Resident: 1})
	s.RecordArea(stream.Event{Kind: stream.EventUnloaded, Key: key})

	ctx := context.Background()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	fails, err := s.FailedTiles(ctx, 10)
	if err != nil {
		t.Fatalf("FailedTiles: %v", err)
	}
	if len(fails) != 2 || fails[0].Tile != "9.1" || fails[0].Count != 3 || fails[0].Stage != "decode" {
		t.Fatalf("failures=%+v", fails)
	}
	if fails[0].LastError == "" || fails[1].LastError != "timeout" {
		t.Fatalf("last errors=%q %q", fails[0].LastError, fails[1].LastError)
	}

	counts, err := s.StageCounts(ctx)
	if err != nil {
		t.Fatalf("StageCounts: %v", err)
	}
	if counts["ok"] != 1 || counts["decode"] != 3 || counts["fetch"] != 1 {
		t.Fatalf("counts=%v", counts)
	}

	hist, err := s.AreaHistory(ctx, key.String())
	if err != nil {
		t.Fatalf("AreaHistory: %v", err)
	}
	if len(hist) != 2 || hist[0].Kind != "loaded" || hist[0].Tiles != 4 || hist[1].Kind != "unloaded" {
		t.Fatalf("history=%+v", hist)
	}
}

func TestSQLiteIndex_UpsertTuning(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "loads.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if _, ok, err := s.TuningDigest(ctx); err != nil || ok {
		t.Fatalf("empty index digest ok=%v err=%v", ok, err)
	}
	tu := tuning.Defaults()
	if err := s.UpsertTuning(ctx, tu); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	d1, ok, err := s.TuningDigest(ctx)
	if err != nil || !ok || len(d1) != 64 {
		t.Fatalf("digest=%q ok=%v err=%v", d1, ok, err)
	}
	tu.LOD.FarStride = 8
	if err := s.UpsertTuning(ctx, tu); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	if d2, _, _ := s.TuningDigest(ctx); d2 == d1 {
		t.Fatalf("digest should change with tuning")
	}
}

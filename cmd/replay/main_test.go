package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	persistlog "tilestream.ai/internal/persistence/log"
	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mesh"
)

func TestSummarizeAndRefetch(t *testing.T) {
	dir := t.TempDir()
	ll := persistlog.NewLoadLogger(dir, nil)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []area.LoadEvent{
		{Scope: "m", Tile: layout.TileID{Major: 1, Minor: 1}, Stage: area.StageOK, At: at},
		{Scope: "m", Tile: layout.TileID{Major: 1, Minor: 2}, Stage: area.StageFetch, Err: area.ErrFetch, At: at},
		{Scope: "m", Tile: layout.TileID{Major: 1, Minor: 2}, Stage: area.StageFetch, Err: area.ErrFetch, At: at},
		{Scope: "m", Tile: layout.TileID{Major: 3, Minor: 0}, Stage: area.StageDecode, Err: area.ErrDecode, At: at},
	}
	for _, ev := range events {
		ll.RecordLoad(ev)
	}
	if err := ll.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sum, err := summarize(filepath.Join(dir, "loads"))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.records != 4 || sum.stages[area.StageFetch] != 2 || sum.stages[area.StageDecode] != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	if len(sum.failed) != 2 || sum.failed[0] != "1.2" || sum.failed[1] != "3.0" {
		t.Fatalf("failed=%v", sum.failed)
	}

	src := area.BlockSourceFunc(func(ctx context.Context, id layout.TileID) (*mesh.Tile, error) {
		if id.Major == 3 {
			return nil, fmt.Errorf("%w: still broken", area.ErrDecode)
		}
		return mesh.NewTile(id, nil), nil
	})
	fixed, still := refetch(context.Background(), src, sum.failed)
	if fixed != 1 || len(still) != 1 {
		t.Fatalf("fixed=%d still=%v", fixed, still)
	}
}

package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tilestream.ai/internal/sim/layout"
)

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := New("dp_full_world", time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
	snap.TileSize = 640
	snap.Step = 640
	snap.Observer = [2]int{3, -1}
	keys := []layout.PlacementKey{{TileIndex: 2, GX: 0, GZ: 0}, {TileIndex: 7, GX: 3, GZ: 1}}
	snap.AddResident(keys)

	path := Path(dir, snap.Header.SceneID)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.Header != snap.Header || got.Observer != snap.Observer || got.TileSize != 640 {
		t.Fatalf("got %+v", got)
	}
	gk := got.Keys()
	if len(gk) != 2 || gk[0] != keys[0] || gk[1] != keys[1] {
		t.Fatalf("keys=%v", gk)
	}
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	path := Path(t.TempDir(), "x")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("garbage should not decode")
	}
	if _, err := ReadSnapshot(path + ".missing"); !os.IsNotExist(err) {
		t.Fatalf("missing file err=%v", err)
	}
}

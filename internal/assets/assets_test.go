package assets

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mesh"
)

func tmshBlock(t *testing.T, id layout.TileID) []byte {
	t.Helper()
	s := &mesh.Shape{
		Positions: mesh.PackPositions([][3]int16{{0, 0, 0}, {0, 20, 50}, {10, 10, 25}}),
		Indices:   []uint16{0, 1, 2},
	}
	raw, err := mesh.EncodeTMSH(mesh.NewTile(id, [][]*mesh.Shape{{s}}))
	if err != nil {
		t.Fatalf("EncodeTMSH: %v", err)
	}
	return raw
}

func deflate(t *testing.T, b []byte) []byte {
	t.Helper()
	out, err := Deflate(b)
	if err != nil {
		t.Fatalf("Deflate: %v", err)
	}
	return out
}

func TestBlockArchiveInflate(t *testing.T) {
	a0 := []byte("first block body")
	a2 := []byte("third block, after a gap")
	tab, bin := BuildBlockArchive([][]byte{deflate(t, a0), nil, deflate(t, a2)})
	ar, err := OpenBlockArchive(tab, bin)
	if err != nil {
		t.Fatalf("OpenBlockArchive: %v", err)
	}
	if ar.Len() != 3 || !ar.Has(0) || ar.Has(1) || !ar.Has(2) || ar.Has(3) {
		t.Fatalf("presence wrong: len=%d", ar.Len())
	}
	got, err := ar.Inflate(0)
	if err != nil || string(got) != string(a0) {
		t.Fatalf("Inflate(0)=%q err=%v", got, err)
	}
	got, err = ar.Inflate(2)
	if err != nil || string(got) != string(a2) {
		t.Fatalf("Inflate(2)=%q err=%v", got, err)
	}
	if _, err := ar.Inflate(1); !errors.Is(err, ErrNoBlock) {
		t.Fatalf("Inflate(1) err=%v, want ErrNoBlock", err)
	}
	if p := ar.Present(); len(p) != 2 || p[0] != 0 || p[1] != 2 {
		t.Fatalf("Present=%v", p)
	}
}

func TestOpenBlockArchiveRejectsBadTab(t *testing.T) {
	if _, err := OpenBlockArchive([]byte{0, 0, 0}, nil); err == nil {
		t.Fatalf("expected error for truncated tab")
	}
}

func TestBlockFetcherFromArchive(t *testing.T) {
	// Major 0 starts at block 0, major 1 at block 2.
	track := make([]byte, 4)
	binary.BigEndian.PutUint16(track[0:], 0)
	binary.BigEndian.PutUint16(track[2:], 2)
	tab, bin := BuildBlockArchive([][]byte{
		deflate(t, tmshBlock(t, layout.TileID{Major: 0, Minor: 0})),
		nil,
		deflate(t, []byte("not a mesh")),
		deflate(t, tmshBlock(t, layout.TileID{Major: 1, Minor: 1})),
	})
	dir := t.TempDir()
	for name, b := range map[string][]byte{KeyTrackBlocks: track, KeyBlocksTab: tab, KeyBlocksBin: bin} {
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	bf, err := LoadArchiveBlockFetcher(context.Background(), DirFetcher{Root: dir}, mesh.TMSHDecoder{})
	if err != nil {
		t.Fatalf("LoadArchiveBlockFetcher: %v", err)
	}
	ctx := context.Background()

	tile, err := bf.FetchBlock(ctx, layout.TileID{Major: 1, Minor: 1})
	if err != nil || tile == nil || tile.NumTriangles() != 1 {
		t.Fatalf("FetchBlock(1.1)=%v err=%v", tile, err)
	}
	if tile, err := bf.FetchBlock(ctx, layout.TileID{Major: 0, Minor: 1}); err != nil || tile != nil {
		t.Fatalf("absent block should be empty, got %v err=%v", tile, err)
	}
	if _, err := bf.FetchBlock(ctx, layout.TileID{Major: 1, Minor: 0}); !errors.Is(err, area.ErrDecode) {
		t.Fatalf("bad mesh err=%v, want ErrDecode", err)
	}
	if _, err := bf.FetchBlock(ctx, layout.TileID{Major: 9, Minor: 0}); !errors.Is(err, area.ErrFetch) {
		t.Fatalf("unknown major err=%v, want ErrFetch", err)
	}
}

func TestUnpackedBlockFetcher(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "blocks"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "blocks", "5.bin"), tmshBlock(t, layout.TileID{Major: 0, Minor: 5}), 0o644); err != nil {
		t.Fatal(err)
	}
	bf := NewUnpackedBlockFetcher(TrackBlocks{0}, DirFetcher{Root: dir}, "blocks/%d.bin", mesh.TMSHDecoder{})
	if tile, err := bf.FetchBlock(context.Background(), layout.TileID{Major: 0, Minor: 5}); err != nil || tile == nil {
		t.Fatalf("FetchBlock=%v err=%v", tile, err)
	}
	if tile, err := bf.FetchBlock(context.Background(), layout.TileID{Major: 0, Minor: 6}); err != nil || tile != nil {
		t.Fatalf("missing file should read as empty, got %v err=%v", tile, err)
	}

	if err := os.WriteFile(filepath.Join(dir, KeyTrackBlocks), []byte{0, 2}, 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadUnpackedBlockFetcher(context.Background(), DirFetcher{Root: dir}, UnpackedKeyFormat, mesh.TMSHDecoder{})
	if err != nil {
		t.Fatalf("LoadUnpackedBlockFetcher: %v", err)
	}
	// base 2 + minor 3 = block 5
	if tile, err := loaded.FetchBlock(context.Background(), layout.TileID{Major: 0, Minor: 3}); err != nil || tile == nil {
		t.Fatalf("FetchBlock via TRKBLK=%v err=%v", tile, err)
	}
}

func TestDirFetcherRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := DirFetcher{Root: filepath.Join(dir, "sub")}
	if _, err := f.FetchRaw(context.Background(), "../a.bin"); !IsNotFound(err) {
		t.Fatalf("escaping key should resolve inside root, err=%v", err)
	}
	if _, err := f.FetchRaw(context.Background(), ""); err == nil {
		t.Fatalf("empty key should fail")
	}
}

func TestCachedFetcherHits(t *testing.T) {
	var calls atomic.Int32
	next := FetcherFunc(func(ctx context.Context, key string) ([]byte, error) {
		calls.Add(1)
		return []byte("payload:" + key), nil
	})
	cf, err := NewCachedFetcher(next, 1<<20, time.Minute)
	if err != nil {
		t.Fatalf("NewCachedFetcher: %v", err)
	}
	defer cf.Close()

	ctx := context.Background()
	if _, err := cf.FetchRaw(ctx, "MAPS.bin"); err != nil {
		t.Fatal(err)
	}
	cf.Wait()
	b, err := cf.FetchRaw(ctx, "MAPS.bin")
	if err != nil || string(b) != "payload:MAPS.bin" {
		t.Fatalf("cached read=%q err=%v", b, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("next called %d times, want 1", calls.Load())
	}
	if st := cf.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestLayoutSources(t *testing.T) {
	// One 2x1 map at index 1 with origin (3,-2).
	const rec = 0x1c
	tab := make([]byte, 2*rec)
	binary.BigEndian.PutUint32(tab[rec:], 0x10)
	binary.BigEndian.PutUint32(tab[rec+4:], 0x18)
	bin := make([]byte, 0x18+8)
	binary.BigEndian.PutUint16(bin[0x10:], 2)
	binary.BigEndian.PutUint16(bin[0x12:], 1)
	binary.BigEndian.PutUint16(bin[0x14:], 3)
	neg := int16(-2)
	binary.BigEndian.PutUint16(bin[0x16:], uint16(neg))
	binary.BigEndian.PutUint32(bin[0x18:], layout.EncodeBlockWord(layout.TileID{Major: 4, Minor: 2}))
	binary.BigEndian.PutUint32(bin[0x1c:], uint32(layout.EmptyMajor)<<23)

	g, err := NewMapTables(tab, bin).Layout(context.Background(), 1)
	if err != nil {
		t.Fatalf("dense Layout: %v", err)
	}
	if ox, oz := g.Origin(); ox != 3 || oz != -2 || layout.Count(g) != 1 {
		t.Fatalf("origin=%d,%d count=%d", ox, oz, layout.Count(g))
	}

	text := NewTextLayouts([]byte(`{"7": {"blocks": [["1.2", null], ["3.4"]]}}`))
	g, err = text.Layout(context.Background(), 7)
	if err != nil || layout.Count(g) != 2 || g.NumCols() != 2 {
		t.Fatalf("text Layout count=%d err=%v", layout.Count(g), err)
	}
	if _, err := text.Layout(context.Background(), 8); err == nil {
		t.Fatalf("missing text map should fail")
	}
}

func TestLoadPlacements(t *testing.T) {
	f := FetcherFunc(func(ctx context.Context, key string) ([]byte, error) {
		return []byte(`[{"CoordX": -3, "CoordZ": 2, "Unk0": 0, "MapIndex": 5, "Unk1": 0, "Unk2": 0},
			{"CoordX": -1, "CoordZ": 4, "Unk0": 0, "MapIndex": -1, "Unk1": 0, "Unk2": 0},
			{"CoordX": -2, "CoordZ": 3, "Unk0": 0, "MapIndex": 6, "Unk1": 0, "Unk2": 0}]`), nil
	})
	ps, err := LoadPlacements(context.Background(), f, KeyGlobalMap, 640)
	if err != nil {
		t.Fatalf("LoadPlacements: %v", err)
	}
	if len(ps) != 2 || ps[1].GX != 1 || ps[1].GZ != 1 || ps[1].WorldX != 640 {
		t.Fatalf("placements=%+v", ps)
	}
}

package mesh

import (
	"errors"
	"testing"

	"tilestream.ai/internal/sim/layout"
)

func wallShape() *Shape {
	return &Shape{
		Positions: PackPositions([][3]int16{{0, 0, 0}, {0, 20, 50}, {10, 0, 25}}),
		Indices:   []uint16{0, 1, 2},
	}
}

func TestShapeVertexAndTriangle(t *testing.T) {
	s := &Shape{
		Positions: PackPositions([][3]int16{{-5, 7, 32767}, {1, 2, 3}}),
		Indices:   []uint16{0, 1, 1, 0, 1, 9},
	}
	v, ok := s.Vertex(0)
	if !ok || v[0] != -5 || v[1] != 7 || v[2] != 32767 {
		t.Fatalf("Vertex(0)=%v ok=%v", v, ok)
	}
	if _, ok := s.Vertex(2); ok {
		t.Fatalf("Vertex(2) should be out of range")
	}
	if _, _, _, ok := s.Triangle(0); !ok {
		t.Fatalf("triangle 0 should be valid")
	}
	if _, _, _, ok := s.Triangle(1); ok {
		t.Fatalf("triangle 1 references vertex 9 and must be rejected")
	}
	if s.NumTriangles() != 2 {
		t.Fatalf("NumTriangles=%d", s.NumTriangles())
	}
}

func TestTileReleaseOnce(t *testing.T) {
	calls := 0
	tile := NewTile(layout.TileID{Major: 1}, [][]*Shape{{wallShape()}})
	tile.OnRelease(func() { calls++ })
	tile.Release()
	tile.Release()
	if calls != 1 || !tile.Released() {
		t.Fatalf("release calls=%d released=%v", calls, tile.Released())
	}
}

func TestTMSHEncodeDecode(t *testing.T) {
	s := wallShape()
	b, _ := s.ComputeBounds()
	s.Bounds = &b
	src := NewTile(layout.TileID{Major: 3, Minor: 4}, [][]*Shape{{s}, {}, {wallShape()}})
	src.Bounds = &AABB{MinX: -1, MinY: -2, MinZ: -3, MaxX: 100, MaxY: 200, MaxZ: 300}

	raw, err := EncodeTMSH(src)
	if err != nil {
		t.Fatalf("EncodeTMSH: %v", err)
	}
	got, err := TMSHDecoder{}.Decode(raw, src.ID)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Passes) != 3 || len(got.Passes[1]) != 0 || got.NumShapes() != 2 {
		t.Fatalf("unexpected pass structure: %d passes, %d shapes", len(got.Passes), got.NumShapes())
	}
	if got.Bounds == nil || *got.Bounds != *src.Bounds {
		t.Fatalf("tile bounds=%v", got.Bounds)
	}
	gs := got.Passes[0][0]
	if gs.Bounds == nil || gs.Bounds.MaxZ != 50 || gs.Bounds.MaxY != 20 {
		t.Fatalf("shape bounds=%v", gs.Bounds)
	}
	if got.Passes[2][0].Bounds != nil {
		t.Fatalf("shape without bounds decoded with bounds")
	}
	a, c, d, ok := gs.Triangle(0)
	if !ok || a[0] != 0 || c[2] != 50 || d[0] != 10 {
		t.Fatalf("triangle mismatch: %v %v %v", a, c, d)
	}
}

func TestTMSHDecodeRejectsTruncated(t *testing.T) {
	raw, err := EncodeTMSH(NewTile(layout.TileID{}, [][]*Shape{{wallShape()}}))
	if err != nil {
		t.Fatalf("EncodeTMSH: %v", err)
	}
	for _, n := range []int{0, 3, 9, len(raw) - 1} {
		if _, err := (TMSHDecoder{}).Decode(raw[:n], layout.TileID{}); !errors.Is(err, ErrMalformed) {
			t.Fatalf("len %d: expected ErrMalformed, got %v", n, err)
		}
	}
}

package collision

import (
	"context"
	"testing"

	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mesh"
)

func wallTile(id layout.TileID) *mesh.Tile {
	s := &mesh.Shape{
		Positions: mesh.PackPositions([][3]int16{{0, 0, 0}, {0, 20, 50}, {10, 10, 25}}),
		Indices:   []uint16{0, 1, 2},
	}
	return mesh.NewTile(id, [][]*mesh.Shape{{s}})
}

// wallArea is a 2x1 area whose second cell holds a wall triangle at its
// local origin edge.
func wallArea(t *testing.T, build func(id layout.TileID) *mesh.Tile) *area.Area {
	t.Helper()
	a := area.New(layout.Static([][]*layout.TileID{{nil, layout.ID(5, 1)}}), area.Options{TileSize: 640})
	a.Reload(context.Background(), area.BlockSourceFunc(func(_ context.Context, id layout.TileID) (*mesh.Tile, error) {
		return build(id), nil
	}))
	if a.Resident() != 1 {
		t.Fatalf("resident=%d", a.Resident())
	}
	return a
}

func TestWallScenario(t *testing.T) {
	e := New(wallArea(t, wallTile), Config{TileSize: 640})
	if e.IsPositionFree(639, 0, 5, 5) {
		t.Fatalf("expected hit next to the wall edge at y=0")
	}
	if !e.IsPositionFree(639, 100, 5, 5) {
		t.Fatalf("expected free at y=100")
	}
	// Inflated vertical span is [-10, 30].
	if e.IsPositionFree(639, 30, 5, 5) {
		t.Fatalf("y=30 still overlaps the inflated span")
	}
	if !e.IsPositionFree(639, 30.5, 5, 5) {
		t.Fatalf("y=30.5 should be free")
	}
}

func TestHitAtExactRadius(t *testing.T) {
	e := New(wallArea(t, wallTile), Config{TileSize: 640})
	// Distance 5 from the x=0 edge of the cell at col 1.
	if e.IsPositionFree(635, 0, 25, 5) {
		t.Fatalf("distance equal to radius counts as contact")
	}
	if !e.IsPositionFree(634.9, 0, 25, 5) {
		t.Fatalf("distance beyond radius should be free")
	}
}

func TestInteriorIsNotAHit(t *testing.T) {
	floor := func(id layout.TileID) *mesh.Tile {
		s := &mesh.Shape{
			Positions: mesh.PackPositions([][3]int16{{0, 0, 0}, {600, 0, 0}, {0, 0, 600}}),
			Indices:   []uint16{0, 1, 2},
		}
		return mesh.NewTile(id, [][]*mesh.Shape{{s}})
	}
	e := New(wallArea(t, floor), Config{TileSize: 640})
	if !e.IsPositionFree(640+100, 0, 100, 5) {
		t.Fatalf("point over the triangle interior must be free")
	}
	if e.IsPositionFree(640+100, 0, 2, 5) {
		t.Fatalf("point near an edge must hit")
	}
}

func TestBoundsRejectSkipsTriangles(t *testing.T) {
	// Bounds that exclude the geometry prove the box test runs first.
	boxed := func(id layout.TileID) *mesh.Tile {
		tile := wallTile(id)
		tile.Bounds = &mesh.AABB{MinX: 300, MinY: 0, MinZ: 300, MaxX: 400, MaxY: 20, MaxZ: 400}
		return tile
	}
	e := New(wallArea(t, boxed), Config{TileSize: 640})
	if !e.IsPositionFree(639, 0, 5, 5) {
		t.Fatalf("tile bounds should reject before the triangle walk")
	}
}

func TestMalformedIndicesDoNotPanic(t *testing.T) {
	broken := func(id layout.TileID) *mesh.Tile {
		s := &mesh.Shape{
			Positions: mesh.PackPositions([][3]int16{{0, 0, 0}, {0, 20, 50}}),
			Indices:   []uint16{0, 1, 7, 0, 1},
		}
		return mesh.NewTile(id, [][]*mesh.Shape{{s, nil}})
	}
	e := New(wallArea(t, broken), Config{TileSize: 640})
	if !e.IsPositionFree(639, 0, 5, 5) {
		t.Fatalf("malformed triangles should be skipped")
	}
}

func TestDeterministic(t *testing.T) {
	e := New(wallArea(t, wallTile), Config{TileSize: 640})
	for x := 600.0; x < 700; x += 3.5 {
		for z := -20.0; z < 80; z += 4.25 {
			first := e.IsPositionFree(x, 5, z, 4)
			for i := 0; i < 3; i++ {
				if e.IsPositionFree(x, 5, z, 4) != first {
					t.Fatalf("non-deterministic result at %v,%v", x, z)
				}
			}
		}
	}
}

func TestFirstHitReportsCell(t *testing.T) {
	e := New(wallArea(t, wallTile), Config{TileSize: 640})
	h, ok := e.FirstHit(639, 0, 5, 5)
	if !ok || h.Cell.Col != 1 || h.Cell.Row != 0 || h.Triangle != 0 || h.Tile == nil {
		t.Fatalf("hit=%+v ok=%v", h, ok)
	}
}

func TestObserveAndNilLookup(t *testing.T) {
	var frees, hits int
	e := New(wallArea(t, wallTile), Config{TileSize: 640, Observe: func(free bool) {
		if free {
			frees++
		} else {
			hits++
		}
	}})
	e.IsPositionFree(639, 0, 5, 5)
	e.IsPositionFree(639, 100, 5, 5)
	if frees != 1 || hits != 1 {
		t.Fatalf("frees=%d hits=%d", frees, hits)
	}
	if !New(nil, Config{}).IsPositionFree(0, 0, 0, 1) {
		t.Fatalf("nil lookup should be free")
	}
}

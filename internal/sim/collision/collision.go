// Package collision answers whether a vertical cylinder at a world point
// touches any resident tile geometry.
//
// Only triangle edges count as contact. A point above the interior of a
// floor triangle is free; the caller is expected to be standing on it.
package collision

import (
	"tilestream.ai/internal/sim/grid"
	"tilestream.ai/internal/sim/mathx"
	"tilestream.ai/internal/sim/mesh"
)

const DefaultHalfHeight = 10

// TileLookup resolves the resident tile owning a point. Implementations
// must not block on pending loads.
type TileLookup interface {
	TileAt(x, z float64) *mesh.Tile
}

type Config struct {
	TileSize   float64
	HalfHeight float64
	// Observe is called once per query with the result, if set.
	Observe func(free bool)
}

type Engine struct {
	lookup     TileLookup
	mapper     grid.Mapper
	halfHeight float64
	observe    func(bool)
}

// Hit identifies the triangle that blocked a query.
type Hit struct {
	Cell     grid.Cell
	Tile     *mesh.Tile
	Pass     int
	Shape    int
	Triangle int
}

func New(lookup TileLookup, cfg Config) *Engine {
	hh := cfg.HalfHeight
	if hh <= 0 {
		hh = DefaultHalfHeight
	}
	return &Engine{
		lookup:     lookup,
		mapper:     grid.NewMapper(cfg.TileSize),
		halfHeight: hh,
		observe:    cfg.Observe,
	}
}

func (e *Engine) IsPositionFree(x, y, z, radius float64) bool {
	_, hit := e.FirstHit(x, y, z, radius)
	if e.observe != nil {
		e.observe(!hit)
	}
	return !hit
}

// FirstHit walks the 3x3 neighbourhood of the point's cell in row-major
// order and returns the first blocking triangle.
func (e *Engine) FirstHit(x, y, z, radius float64) (Hit, bool) {
	if e.lookup == nil {
		return Hit{}, false
	}
	center := e.mapper.CellOf(x, z)
	for _, c := range grid.Neighborhood(center, 1) {
		ox, oz := e.mapper.CellOrigin(c)
		tile := e.lookup.TileAt(ox, oz)
		if tile == nil {
			continue
		}
		lx, lz := x-ox, z-oz
		if tile.Bounds != nil && !tile.Bounds.ContainsInflated(lx, y, lz, radius) {
			continue
		}
		if h, ok := e.hitTile(tile, lx, y, lz, radius); ok {
			h.Cell = c
			return h, true
		}
	}
	return Hit{}, false
}

func (e *Engine) hitTile(t *mesh.Tile, x, y, z, r float64) (Hit, bool) {
	for p, pass := range t.Passes {
		for s, shape := range pass {
			if shape == nil {
				continue
			}
			if shape.Bounds != nil && !shape.Bounds.ContainsInflated(x, y, z, r) {
				continue
			}
			n := shape.NumTriangles()
			for i := 0; i < n; i++ {
				a, b, c, ok := shape.Triangle(i)
				if !ok {
					continue
				}
				if e.cylinderHitsTriangle(x, y, z, r, a, b, c) {
					return Hit{Tile: t, Pass: p, Shape: s, Triangle: i}, true
				}
			}
		}
	}
	return Hit{}, false
}

func (e *Engine) cylinderHitsTriangle(x, y, z, r float64, a, b, c mathx.Vec3) bool {
	minY := min(a[1], b[1], c[1])
	maxY := max(a[1], b[1], c[1])
	if y > maxY+e.halfHeight || y < minY-e.halfHeight {
		return false
	}
	r2 := r * r
	return segmentDist2(x, z, a[0], a[2], b[0], b[2]) <= r2 ||
		segmentDist2(x, z, b[0], b[2], c[0], c[2]) <= r2 ||
		segmentDist2(x, z, c[0], c[2], a[0], a[2]) <= r2
}

// segmentDist2 is the squared distance from (px,pz) to segment a-b.
func segmentDist2(px, pz, ax, az, bx, bz float64) float64 {
	dx, dz := bx-ax, bz-az
	t := 0.0
	if l2 := dx*dx + dz*dz; l2 > 0 {
		t = mathx.Clamp(((px-ax)*dx+(pz-az)*dz)/l2, 0, 1)
	}
	ex, ez := ax+t*dx-px, az+t*dz-pz
	return ex*ex + ez*ez
}

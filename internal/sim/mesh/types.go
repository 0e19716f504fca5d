// Package mesh holds decoded tile geometry: per-pass shapes with packed
// int16 positions and uint16 triangle indices.
package mesh

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mathx"
)

// VertexStride is the byte size of one packed position (x, y, z as int16).
const VertexStride = 6

// Material passes, in draw order.
const (
	PassOpaque = iota
	PassFurs
	PassWater
	NumPasses
)

type AABB struct {
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
}

// ContainsInflated reports whether p lies inside the box grown by r on
// every axis.
func (b AABB) ContainsInflated(x, y, z, r float64) bool {
	return x >= b.MinX-r && x <= b.MaxX+r &&
		y >= b.MinY-r && y <= b.MaxY+r &&
		z >= b.MinZ-r && z <= b.MaxZ+r
}

func (b AABB) Union(o AABB) AABB {
	return AABB{
		MinX: min(b.MinX, o.MinX), MinY: min(b.MinY, o.MinY), MinZ: min(b.MinZ, o.MinZ),
		MaxX: max(b.MaxX, o.MaxX), MaxY: max(b.MaxY, o.MaxY), MaxZ: max(b.MaxZ, o.MaxZ),
	}
}

// Shape is one drawable sub-mesh. Positions are big-endian int16 triples;
// Indices are consumed three at a time.
type Shape struct {
	Positions []byte
	Indices   []uint16
	Bounds    *AABB
}

func (s *Shape) NumVertices() int { return len(s.Positions) / VertexStride }

func (s *Shape) NumTriangles() int { return len(s.Indices) / 3 }

// Vertex returns vertex i. ok is false when i is outside the buffer.
func (s *Shape) Vertex(i int) (mathx.Vec3, bool) {
	off := i * VertexStride
	if i < 0 || off+VertexStride > len(s.Positions) {
		return mathx.Vec3{}, false
	}
	p := s.Positions[off:]
	return mathx.Vec3{
		float64(int16(binary.BigEndian.Uint16(p[0:]))),
		float64(int16(binary.BigEndian.Uint16(p[2:]))),
		float64(int16(binary.BigEndian.Uint16(p[4:]))),
	}, true
}

// Triangle returns the three vertices of triangle t.
func (s *Shape) Triangle(t int) (a, b, c mathx.Vec3, ok bool) {
	i := t * 3
	if t < 0 || i+2 >= len(s.Indices) {
		return a, b, c, false
	}
	var okA, okB, okC bool
	a, okA = s.Vertex(int(s.Indices[i]))
	b, okB = s.Vertex(int(s.Indices[i+1]))
	c, okC = s.Vertex(int(s.Indices[i+2]))
	return a, b, c, okA && okB && okC
}

// ComputeBounds scans the position buffer. ok is false for an empty shape.
func (s *Shape) ComputeBounds() (AABB, bool) {
	n := s.NumVertices()
	if n == 0 {
		return AABB{}, false
	}
	v, _ := s.Vertex(0)
	b := AABB{MinX: v[0], MinY: v[1], MinZ: v[2], MaxX: v[0], MaxY: v[1], MaxZ: v[2]}
	for i := 1; i < n; i++ {
		v, _ = s.Vertex(i)
		b = b.Union(AABB{MinX: v[0], MinY: v[1], MinZ: v[2], MaxX: v[0], MaxY: v[1], MaxZ: v[2]})
	}
	return b, true
}

// PackPositions encodes vertices into the big-endian int16 layout.
func PackPositions(verts [][3]int16) []byte {
	out := make([]byte, len(verts)*VertexStride)
	for i, v := range verts {
		binary.BigEndian.PutUint16(out[i*VertexStride:], uint16(v[0]))
		binary.BigEndian.PutUint16(out[i*VertexStride+2:], uint16(v[1]))
		binary.BigEndian.PutUint16(out[i*VertexStride+4:], uint16(v[2]))
	}
	return out
}

// Tile is one resident tile: its geometry plus whatever the decoder
// attached to it. Release runs the owner's release hook exactly once.
type Tile struct {
	ID     layout.TileID
	Passes [][]*Shape
	Bounds *AABB

	releaseOnce sync.Once
	released    atomic.Bool
	onRelease   func()
}

func NewTile(id layout.TileID, passes [][]*Shape) *Tile {
	return &Tile{ID: id, Passes: passes}
}

// OnRelease installs the hook run by Release. It must be set before the
// tile is handed to a cache.
func (t *Tile) OnRelease(fn func()) { t.onRelease = fn }

func (t *Tile) Release() {
	t.releaseOnce.Do(func() {
		t.released.Store(true)
		if t.onRelease != nil {
			t.onRelease()
		}
	})
}

func (t *Tile) Released() bool { return t.released.Load() }

func (t *Tile) NumShapes() int {
	n := 0
	for _, pass := range t.Passes {
		n += len(pass)
	}
	return n
}

func (t *Tile) NumTriangles() int {
	n := 0
	for _, pass := range t.Passes {
		for _, s := range pass {
			n += s.NumTriangles()
		}
	}
	return n
}

// ComputeBounds unions the bounds of every shape.
func (t *Tile) ComputeBounds() (AABB, bool) {
	var out AABB
	found := false
	for _, pass := range t.Passes {
		for _, s := range pass {
			b, ok := s.ComputeBounds()
			if !ok {
				continue
			}
			if !found {
				out, found = b, true
				continue
			}
			out = out.Union(b)
		}
	}
	return out, found
}

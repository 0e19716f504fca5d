// Package grid maps world-space positions onto tile cells.
//
// Cells are half-open on the high edge: a point at exactly x = k*T belongs to
// cell k, never k-1, including for negative coordinates.
package grid

import (
	"math"

	"tilestream.ai/internal/sim/mathx"
)

// DefaultTileSize is the edge length of one tile in world units.
const DefaultTileSize = 640

type Cell struct {
	Col int
	Row int
}

// Mapper converts between world positions and cells for a fixed tile size.
type Mapper struct {
	TileSize float64
}

func NewMapper(tileSize float64) Mapper {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return Mapper{TileSize: tileSize}
}

func (m Mapper) size() float64 {
	if m.TileSize <= 0 {
		return DefaultTileSize
	}
	return m.TileSize
}

// CellOf returns (floor(x/T), floor(z/T)).
func (m Mapper) CellOf(x, z float64) Cell {
	t := m.size()
	return Cell{
		Col: int(math.Floor(x / t)),
		Row: int(math.Floor(z / t)),
	}
}

// InRange reports whether x and z are finite and fall in cells whose
// indices fit in 32 bits.
func (m Mapper) InRange(x, z float64) bool {
	lim := float64(math.MaxInt32) * m.size()
	for _, v := range [...]float64{x, z} {
		if math.IsNaN(v) || math.Abs(v) >= lim {
			return false
		}
	}
	return true
}

// RoundCell maps a position to the nearest cell corner, rounding halves up.
// Observer tracking uses this instead of CellOf.
func (m Mapper) RoundCell(x, z float64) Cell {
	t := m.size()
	return Cell{
		Col: int(math.Floor(x/t + 0.5)),
		Row: int(math.Floor(z/t + 0.5)),
	}
}

// CellOrigin is the world position of the low corner of c.
func (m Mapper) CellOrigin(c Cell) (x, z float64) {
	t := m.size()
	return float64(c.Col) * t, float64(c.Row) * t
}

// Local converts a world point into the local frame of cell c. Y is shared.
func (m Mapper) Local(c Cell, x, z float64) (lx, lz float64) {
	ox, oz := m.CellOrigin(c)
	return x - ox, z - oz
}

// Neighborhood returns the (2r+1)² cells around c in row-major order.
func Neighborhood(c Cell, r int) []Cell {
	out := make([]Cell, 0, (2*r+1)*(2*r+1))
	for row := c.Row - r; row <= c.Row+r; row++ {
		for col := c.Col - r; col <= c.Col+r; col++ {
			out = append(out, Cell{Col: col, Row: row})
		}
	}
	return out
}

// Chebyshev is max(|Δcol|, |Δrow|).
func Chebyshev(a, b Cell) int {
	return mathx.MaxInt(mathx.AbsInt(a.Col-b.Col), mathx.AbsInt(a.Row-b.Row))
}

package grid

import (
	"math"
	"testing"
)

func TestCellOfBoundaries(t *testing.T) {
	m := NewMapper(640)
	cases := []struct {
		x, z     float64
		col, row int
	}{
		{0, 0, 0, 0},
		{639.999, 0, 0, 0},
		{640, 0, 1, 0},
		{-0.001, 0, -1, 0},
		{-640, -640, -1, -1},
		{-640.5, 1280, -2, 2},
		{3 * 640, -3 * 640, 3, -3},
	}
	for _, c := range cases {
		got := m.CellOf(c.x, c.z)
		if got.Col != c.col || got.Row != c.row {
			t.Fatalf("CellOf(%v,%v)=%+v want (%d,%d)", c.x, c.z, got, c.col, c.row)
		}
	}
}

func TestCellOfExactMultiples(t *testing.T) {
	m := NewMapper(640)
	for k := -50; k <= 50; k++ {
		x := float64(k) * 640
		if got := m.CellOf(x, x); got.Col != k || got.Row != k {
			t.Fatalf("k=%d mapped to %+v", k, got)
		}
	}
}

func TestRoundCell(t *testing.T) {
	m := NewMapper(640)
	if got := m.RoundCell(319, 320); got.Col != 0 || got.Row != 1 {
		t.Fatalf("RoundCell=%+v", got)
	}
	if got := m.RoundCell(-321, -320); got.Col != -1 || got.Row != 0 {
		t.Fatalf("RoundCell negative=%+v", got)
	}
}

func TestNeighborhoodAndChebyshev(t *testing.T) {
	cells := Neighborhood(Cell{Col: 2, Row: -1}, 1)
	if len(cells) != 9 {
		t.Fatalf("expected 9 cells, got %d", len(cells))
	}
	if cells[0] != (Cell{Col: 1, Row: -2}) || cells[8] != (Cell{Col: 3, Row: 0}) {
		t.Fatalf("unexpected ordering: first=%+v last=%+v", cells[0], cells[8])
	}
	if d := Chebyshev(Cell{0, 0}, Cell{-3, 25}); d != 25 {
		t.Fatalf("Chebyshev=%d want 25", d)
	}
}

func TestZeroMapperUsesDefault(t *testing.T) {
	var m Mapper
	if got := m.CellOf(640, 0); got.Col != 1 {
		t.Fatalf("zero mapper should default to %d", DefaultTileSize)
	}
}

func TestInRange(t *testing.T) {
	m := NewMapper(640)
	cases := []struct {
		x, z float64
		want bool
	}{
		{0, 0, true},
		{-1e6, 1e6, true},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
		{math.Inf(-1), 0, false},
		{1e300, 0, false},
		{0, -1e300, false},
	}
	for _, tc := range cases {
		if got := m.InRange(tc.x, tc.z); got != tc.want {
			t.Fatalf("InRange(%v,%v)=%v, want %v", tc.x, tc.z, got, tc.want)
		}
	}
}

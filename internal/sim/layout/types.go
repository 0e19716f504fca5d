// Package layout describes which tile belongs in which cell of an area, and
// where areas are placed in the world.
package layout

import "fmt"

// EmptyMajor marks an empty cell in the dense block table.
const EmptyMajor = 0xFF

// TileID names one loadable tile asset.
type TileID struct {
	Major int
	Minor int
}

func (id TileID) String() string {
	return fmt.Sprintf("%d.%d", id.Major, id.Minor)
}

// ID is a convenience constructor for layout literals.
func ID(major, minor int) *TileID {
	return &TileID{Major: major, Minor: minor}
}

// Grid is one contiguous rectangular area. A nil cell means no tile.
type Grid interface {
	NumCols() int
	NumRows() int
	Origin() (x, z int)
	CellAt(col, row int) *TileID
}

// Table is an immutable Grid backed by a row-major cell table.
type Table struct {
	cols, rows int
	originX    int
	originZ    int
	cells      [][]*TileID // cells[row][col]
}

// NewTable copies rows into a rectangular table. Short rows are padded with
// empty cells.
func NewTable(rows [][]*TileID, originX, originZ int) *Table {
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	t := &Table{
		cols:    cols,
		rows:    len(rows),
		originX: originX,
		originZ: originZ,
		cells:   make([][]*TileID, len(rows)),
	}
	for z, r := range rows {
		row := make([]*TileID, cols)
		for x, id := range r {
			if id != nil {
				v := *id
				row[x] = &v
			}
		}
		t.cells[z] = row
	}
	return t
}

func (t *Table) NumCols() int       { return t.cols }
func (t *Table) NumRows() int       { return t.rows }
func (t *Table) Origin() (int, int) { return t.originX, t.originZ }

func (t *Table) CellAt(col, row int) *TileID {
	if row < 0 || row >= t.rows || col < 0 || col >= t.cols {
		return nil
	}
	return t.cells[row][col]
}

// Snapshot copies any Grid into a Table.
func Snapshot(g Grid) *Table {
	rows := make([][]*TileID, g.NumRows())
	for z := range rows {
		rows[z] = make([]*TileID, g.NumCols())
		for x := range rows[z] {
			rows[z][x] = g.CellAt(x, z)
		}
	}
	ox, oz := g.Origin()
	return NewTable(rows, ox, oz)
}

// Count returns the number of non-empty cells.
func Count(g Grid) int {
	n := 0
	for z := 0; z < g.NumRows(); z++ {
		for x := 0; x < g.NumCols(); x++ {
			if g.CellAt(x, z) != nil {
				n++
			}
		}
	}
	return n
}

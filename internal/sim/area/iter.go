package area

import "tilestream.ai/internal/sim/mesh"

// Iter walks resident cells in row-major order. Each step takes the read
// lock on its own, so tiles loaded or released mid-walk may or may not be
// observed.
type Iter struct {
	a   *Area
	pos int
}

func (a *Area) Iterate() *Iter { return &Iter{a: a} }

// Next returns the next resident cell. ok is false once the table is
// exhausted.
func (it *Iter) Next() (v Visit, ok bool) {
	cols := it.a.table.NumCols()
	it.a.mu.RLock()
	defer it.a.mu.RUnlock()
	for it.pos < len(it.a.tiles) {
		i := it.pos
		it.pos++
		if t := it.a.tiles[i]; t != nil {
			return Visit{Col: i % cols, Row: i / cols, Tile: t}, true
		}
	}
	return Visit{}, false
}

// Reset restarts the walk from the first cell.
func (it *Iter) Reset() { it.pos = 0 }

// Collect drains the iterator.
func (it *Iter) Collect() []*mesh.Tile {
	var out []*mesh.Tile
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		out = append(out, v.Tile)
	}
	return out
}

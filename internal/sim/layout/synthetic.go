package layout

// Static builds a layout from a literal table. Origin is (0,0).
func Static(rows [][]*TileID) *Table {
	return NewTable(rows, 0, 0)
}

// Remap builds a new layout by picking cells from src. pick returns nil for
// cells outside src.
func Remap(src Grid, build func(pick func(col, row int) *TileID) [][]*TileID) *Table {
	pick := func(col, row int) *TileID {
		if src == nil {
			return nil
		}
		return src.CellAt(col, row)
	}
	return NewTable(build(pick), 0, 0)
}

// Pattern fills a cols×rows area with one major index and a cyclic sequence
// of minors. A zero minor leaves the cell empty.
func Pattern(cols, rows, major int, minors []int) *Table {
	table := make([][]*TileID, rows)
	for z := 0; z < rows; z++ {
		table[z] = make([]*TileID, cols)
		if len(minors) == 0 {
			continue
		}
		for x := 0; x < cols; x++ {
			minor := minors[(z*cols+x)%len(minors)]
			if minor == 0 {
				continue
			}
			table[z][x] = ID(major, minor)
		}
	}
	return NewTable(table, 0, 0)
}

package layout

import (
	"encoding/binary"
	"fmt"
)

const mapsTabRecordSize = 0x1c

// DenseInfo is the header of one map in MAPS.bin.
type DenseInfo struct {
	MapNum           int
	InfoOffset       int
	BlockTableOffset int
	Cols             int
	Rows             int
	OriginX          int
	OriginZ          int
}

// ReadDenseInfo reads the MAPS.tab record for mapNum and the map header it
// points to. All multi-byte fields are big-endian.
func ReadDenseInfo(mapsTab, mapsBin []byte, mapNum int) (DenseInfo, error) {
	var info DenseInfo
	if mapNum < 0 {
		return info, fmt.Errorf("maps.tab: negative map number %d", mapNum)
	}
	offs := mapNum * mapsTabRecordSize
	if offs+8 > len(mapsTab) {
		return info, fmt.Errorf("maps.tab: map %d out of range (tab len %d)", mapNum, len(mapsTab))
	}
	info.MapNum = mapNum
	info.InfoOffset = int(binary.BigEndian.Uint32(mapsTab[offs:]))
	info.BlockTableOffset = int(binary.BigEndian.Uint32(mapsTab[offs+4:]))

	if info.InfoOffset+8 > len(mapsBin) {
		return info, fmt.Errorf("maps.bin: map %d header at 0x%x out of range", mapNum, info.InfoOffset)
	}
	h := mapsBin[info.InfoOffset:]
	info.Cols = int(binary.BigEndian.Uint16(h[0:]))
	info.Rows = int(binary.BigEndian.Uint16(h[2:]))
	info.OriginX = int(int16(binary.BigEndian.Uint16(h[4:])))
	info.OriginZ = int(int16(binary.BigEndian.Uint16(h[6:])))

	need := info.BlockTableOffset + 4*info.Cols*info.Rows
	if info.BlockTableOffset < 0 || need > len(mapsBin) {
		return info, fmt.Errorf("maps.bin: map %d block table %dx%d at 0x%x exceeds file", mapNum, info.Cols, info.Rows, info.BlockTableOffset)
	}
	return info, nil
}

// DecodeBlockWord unpacks one block-table entry. ok is false for empty cells.
func DecodeBlockWord(v uint32) (TileID, bool) {
	minor := int((v >> 17) & 0x3F)
	major := int(v >> 23)
	if major == EmptyMajor {
		return TileID{}, false
	}
	return TileID{Major: major, Minor: minor}, true
}

// EncodeBlockWord is the inverse of DecodeBlockWord for non-empty cells.
func EncodeBlockWord(id TileID) uint32 {
	return uint32(id.Major&0x1FF)<<23 | uint32(id.Minor&0x3F)<<17
}

// ParseDense builds the layout of mapNum from MAPS.tab/MAPS.bin.
func ParseDense(mapsTab, mapsBin []byte, mapNum int) (*Table, error) {
	info, err := ReadDenseInfo(mapsTab, mapsBin, mapNum)
	if err != nil {
		return nil, err
	}
	rows := make([][]*TileID, info.Rows)
	for z := 0; z < info.Rows; z++ {
		row := make([]*TileID, info.Cols)
		for x := 0; x < info.Cols; x++ {
			idx := z*info.Cols + x
			v := binary.BigEndian.Uint32(mapsBin[info.BlockTableOffset+4*idx:])
			if id, ok := DecodeBlockWord(v); ok {
				row[x] = &id
			}
		}
		rows[z] = row
	}
	return NewTable(rows, info.OriginX, info.OriginZ), nil
}

package assets

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Block archive entries start with a 9-byte header before the raw DEFLATE
// stream; an entry ends where the next present entry begins.
const blockHeaderSize = 9

var ErrNoBlock = errors.New("block not present")

type BlockArchive struct {
	offsets []uint32
	bin     []byte
}

func absent(off uint32) bool { return off == 0 || off == 0xFFFFFFFF }

// OpenBlockArchive indexes a BLOCKS.tab/BLOCKS.bin pair.
func OpenBlockArchive(tab, bin []byte) (*BlockArchive, error) {
	if len(tab)%4 != 0 {
		return nil, fmt.Errorf("BLOCKS.tab: size %d is not a multiple of 4", len(tab))
	}
	offs := make([]uint32, len(tab)/4)
	for i := range offs {
		offs[i] = binary.BigEndian.Uint32(tab[i*4:])
	}
	return &BlockArchive{offsets: offs, bin: bin}, nil
}

func (a *BlockArchive) Len() int { return len(a.offsets) }

func (a *BlockArchive) Has(n int) bool {
	return n >= 0 && n < len(a.offsets) && !absent(a.offsets[n])
}

// Entry returns the compressed body of block n.
func (a *BlockArchive) Entry(n int) ([]byte, error) {
	if !a.Has(n) {
		return nil, fmt.Errorf("block %d: %w", n, ErrNoBlock)
	}
	start := int64(a.offsets[n]) + blockHeaderSize
	end := int64(len(a.bin))
	for _, off := range a.offsets[n+1:] {
		if !absent(off) {
			end = int64(off)
			break
		}
	}
	if start > end || end > int64(len(a.bin)) {
		return nil, fmt.Errorf("block %d: entry [%d,%d) outside archive of %d bytes", n, start, end, len(a.bin))
	}
	return a.bin[start:end], nil
}

// Inflate returns the decompressed body of block n.
func (a *BlockArchive) Inflate(n int) ([]byte, error) {
	body, err := a.Entry(n)
	if err != nil {
		return nil, err
	}
	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("block %d: inflate: %w", n, err)
	}
	return out, nil
}

// Present lists the indices of every present block.
func (a *BlockArchive) Present() []int {
	var out []int
	for i, off := range a.offsets {
		if !absent(off) {
			out = append(out, i)
		}
	}
	return out
}

// BuildBlockArchive packs already-compressed bodies into tab/bin form. A
// nil body is written as an absent entry. Each present entry gets a zeroed
// header.
func BuildBlockArchive(bodies [][]byte) (tab, bin []byte) {
	var tb, bb bytes.Buffer
	// Offset 0 means absent, so the first entry starts after a pad byte.
	bb.WriteByte(0)
	for _, body := range bodies {
		if body == nil {
			_ = binary.Write(&tb, binary.BigEndian, uint32(0xFFFFFFFF))
			continue
		}
		_ = binary.Write(&tb, binary.BigEndian, uint32(bb.Len()))
		bb.Write(make([]byte, blockHeaderSize))
		bb.Write(body)
	}
	return tb.Bytes(), bb.Bytes()
}

// Deflate compresses b as a raw DEFLATE stream.
func Deflate(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package mesh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"tilestream.ai/internal/sim/layout"
)

// TMSH is a small big-endian container for tile geometry:
//
//	"TMSH" u8 version u8 flags u16 passCount [bounds]
//	per pass:  u16 shapeCount
//	per shape: u8 flags [bounds] u16 vertexCount u32 indexCount positions indices
//
// bounds are six int16 (min xyz, max xyz); flag bit 0 marks their presence.
const (
	tmshMagic   = "TMSH"
	tmshVersion = 1
	flagBounds  = 0x01
)

var ErrMalformed = errors.New("malformed mesh")

// Decoder turns raw tile bytes into a Tile.
type Decoder interface {
	Decode(raw []byte, id layout.TileID) (*Tile, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(raw []byte, id layout.TileID) (*Tile, error)

func (f DecoderFunc) Decode(raw []byte, id layout.TileID) (*Tile, error) { return f(raw, id) }

type TMSHDecoder struct{}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: truncated at 0x%x (need %d bytes)", ErrMalformed, r.off, n)
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[r.off:r.off+n])
	r.off += n
	return out
}

func (r *reader) bounds() *AABB {
	var v [6]float64
	for i := range v {
		v[i] = float64(int16(r.u16()))
	}
	if r.err != nil {
		return nil
	}
	return &AABB{MinX: v[0], MinY: v[1], MinZ: v[2], MaxX: v[3], MaxY: v[4], MaxZ: v[5]}
}

func (TMSHDecoder) Decode(raw []byte, id layout.TileID) (*Tile, error) {
	if len(raw) < 8 || string(raw[:4]) != tmshMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	r := &reader{data: raw, off: 4}
	if v := r.u8(); v != tmshVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, v)
	}
	flags := r.u8()
	passCount := int(r.u16())

	t := &Tile{ID: id}
	if flags&flagBounds != 0 {
		t.Bounds = r.bounds()
	}
	t.Passes = make([][]*Shape, 0, passCount)
	for p := 0; p < passCount && r.err == nil; p++ {
		shapeCount := int(r.u16())
		pass := make([]*Shape, 0, shapeCount)
		for s := 0; s < shapeCount && r.err == nil; s++ {
			sh := &Shape{}
			if r.u8()&flagBounds != 0 {
				sh.Bounds = r.bounds()
			}
			vc := int(r.u16())
			ic := int(r.u32())
			sh.Positions = r.bytes(vc * VertexStride)
			if r.need(ic * 2) {
				sh.Indices = make([]uint16, ic)
				for i := range sh.Indices {
					sh.Indices[i] = r.u16()
				}
			}
			pass = append(pass, sh)
		}
		t.Passes = append(t.Passes, pass)
	}
	if r.err != nil {
		return nil, fmt.Errorf("tile %s: %w", id, r.err)
	}
	return t, nil
}

// EncodeTMSH serialises a tile. Bounds are truncated to int16.
func EncodeTMSH(t *Tile) ([]byte, error) {
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.BigEndian, v) }
	writeBounds := func(b *AABB) {
		for _, f := range []float64{b.MinX, b.MinY, b.MinZ, b.MaxX, b.MaxY, b.MaxZ} {
			w(int16(f))
		}
	}

	buf.WriteString(tmshMagic)
	w(uint8(tmshVersion))
	var flags uint8
	if t.Bounds != nil {
		flags |= flagBounds
	}
	w(flags)
	if len(t.Passes) > 0xFFFF {
		return nil, fmt.Errorf("encode tmsh: %d passes", len(t.Passes))
	}
	w(uint16(len(t.Passes)))
	if t.Bounds != nil {
		writeBounds(t.Bounds)
	}
	for _, pass := range t.Passes {
		w(uint16(len(pass)))
		for _, s := range pass {
			if len(s.Positions)%VertexStride != 0 || s.NumVertices() > 0xFFFF {
				return nil, fmt.Errorf("encode tmsh: bad position buffer (%d bytes)", len(s.Positions))
			}
			var sf uint8
			if s.Bounds != nil {
				sf |= flagBounds
			}
			w(sf)
			if s.Bounds != nil {
				writeBounds(s.Bounds)
			}
			w(uint16(s.NumVertices()))
			w(uint32(len(s.Indices)))
			buf.Write(s.Positions)
			w(s.Indices)
		}
	}
	return buf.Bytes(), nil
}

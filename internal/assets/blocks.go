package assets

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mesh"
)

// Asset keys under the data root.
const (
	KeyTrackBlocks = "TRKBLK.bin"
	KeyBlocksTab   = "BLOCKS.tab"
	KeyBlocksBin   = "BLOCKS.bin"
	KeyMapsTab     = "MAPS.tab"
	KeyMapsBin     = "MAPS.bin"
	KeyGlobalMap   = "globalmap.json"

	// UnpackedKeyFormat names one inflated block file.
	UnpackedKeyFormat = "blocks/%d.bin"
)

// TrackBlocks maps a tile's major index to the first block number of its
// run; the block number is base + minor.
type TrackBlocks []uint16

func ParseTrackBlocks(raw []byte) (TrackBlocks, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("TRKBLK.bin: odd size %d", len(raw))
	}
	out := make(TrackBlocks, len(raw)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(raw[i*2:])
	}
	return out, nil
}

func (t TrackBlocks) BlockNumber(id layout.TileID) (int, bool) {
	if id.Major < 0 || id.Major >= len(t) || id.Minor < 0 {
		return 0, false
	}
	return int(t[id.Major]) + id.Minor, true
}

// blobFunc returns the decompressed bytes of block n. found is false for a
// block with no content.
type blobFunc func(ctx context.Context, n int) (raw []byte, found bool, err error)

// BlockFetcher resolves tile ids to decoded tiles. It satisfies
// area.BlockSource.
type BlockFetcher struct {
	track   TrackBlocks
	blob    blobFunc
	decoder mesh.Decoder
}

// NewArchiveBlockFetcher reads blocks out of a BLOCKS archive.
func NewArchiveBlockFetcher(track TrackBlocks, archive *BlockArchive, dec mesh.Decoder) *BlockFetcher {
	return &BlockFetcher{
		track:   track,
		decoder: dec,
		blob: func(_ context.Context, n int) ([]byte, bool, error) {
			raw, err := archive.Inflate(n)
			if errors.Is(err, ErrNoBlock) {
				return nil, false, nil
			}
			if err != nil {
				return nil, true, fmt.Errorf("%w: %v", area.ErrDecode, err)
			}
			return raw, true, nil
		},
	}
}

// NewUnpackedBlockFetcher reads blocks already inflated to individual
// files, as written by the unpack tool. keyFormat takes the block number,
// e.g. "blocks/%d.bin".
func NewUnpackedBlockFetcher(track TrackBlocks, f Fetcher, keyFormat string, dec mesh.Decoder) *BlockFetcher {
	return &BlockFetcher{
		track:   track,
		decoder: dec,
		blob: func(ctx context.Context, n int) ([]byte, bool, error) {
			raw, err := f.FetchRaw(ctx, fmt.Sprintf(keyFormat, n))
			if IsNotFound(err) {
				return nil, false, nil
			}
			if err != nil {
				return nil, true, fmt.Errorf("%w: %v", area.ErrFetch, err)
			}
			return raw, true, nil
		},
	}
}

// LoadUnpackedBlockFetcher fetches TRKBLK through f and reads blocks as
// individual files named by keyFormat.
func LoadUnpackedBlockFetcher(ctx context.Context, f Fetcher, keyFormat string, dec mesh.Decoder) (*BlockFetcher, error) {
	rawTrack, err := f.FetchRaw(ctx, KeyTrackBlocks)
	if err != nil {
		return nil, err
	}
	track, err := ParseTrackBlocks(rawTrack)
	if err != nil {
		return nil, err
	}
	return NewUnpackedBlockFetcher(track, f, keyFormat, dec), nil
}

// LoadArchiveBlockFetcher fetches TRKBLK and the BLOCKS pair through f.
func LoadArchiveBlockFetcher(ctx context.Context, f Fetcher, dec mesh.Decoder) (*BlockFetcher, error) {
	rawTrack, err := f.FetchRaw(ctx, KeyTrackBlocks)
	if err != nil {
		return nil, err
	}
	track, err := ParseTrackBlocks(rawTrack)
	if err != nil {
		return nil, err
	}
	tab, err := f.FetchRaw(ctx, KeyBlocksTab)
	if err != nil {
		return nil, err
	}
	bin, err := f.FetchRaw(ctx, KeyBlocksBin)
	if err != nil {
		return nil, err
	}
	archive, err := OpenBlockArchive(tab, bin)
	if err != nil {
		return nil, err
	}
	return NewArchiveBlockFetcher(track, archive, dec), nil
}

func (b *BlockFetcher) FetchBlock(ctx context.Context, id layout.TileID) (*mesh.Tile, error) {
	n, ok := b.track.BlockNumber(id)
	if !ok {
		return nil, fmt.Errorf("%w: tile %s has no track entry", area.ErrFetch, id)
	}
	raw, found, err := b.blob(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("tile %s block %d: %w", id, n, err)
	}
	if !found {
		return nil, nil
	}
	tile, err := b.decoder.Decode(raw, id)
	if err != nil {
		return nil, fmt.Errorf("tile %s block %d: %w: %v", id, n, area.ErrDecode, err)
	}
	return tile, nil
}

package assets

import (
	"context"
	"fmt"
	"strconv"

	"tilestream.ai/internal/sim/layout"
)

// MapTables serves dense layouts out of a MAPS.tab/MAPS.bin pair.
type MapTables struct {
	tab []byte
	bin []byte
}

func NewMapTables(tab, bin []byte) *MapTables {
	return &MapTables{tab: tab, bin: bin}
}

func LoadMapTables(ctx context.Context, f Fetcher) (*MapTables, error) {
	tab, err := f.FetchRaw(ctx, KeyMapsTab)
	if err != nil {
		return nil, err
	}
	bin, err := f.FetchRaw(ctx, KeyMapsBin)
	if err != nil {
		return nil, err
	}
	return NewMapTables(tab, bin), nil
}

func (m *MapTables) Layout(_ context.Context, mapNum int) (layout.Grid, error) {
	return layout.ParseDense(m.tab, m.bin, mapNum)
}

// TextLayouts serves layouts from a JSON document keyed by map number.
type TextLayouts struct {
	raw []byte
}

func NewTextLayouts(raw []byte) *TextLayouts { return &TextLayouts{raw: raw} }

func (t *TextLayouts) Layout(_ context.Context, mapNum int) (layout.Grid, error) {
	return layout.ParseText(t.raw, strconv.Itoa(mapNum))
}

// LoadPlacements fetches and places a world placement list.
func LoadPlacements(ctx context.Context, f Fetcher, key string, step float64) ([]layout.Placement, error) {
	raw, err := f.FetchRaw(ctx, key)
	if err != nil {
		return nil, err
	}
	ps, err := layout.ParsePlacements(raw, step)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return ps, nil
}

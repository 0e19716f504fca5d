package layout

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const placementSchemaText = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["CoordX", "CoordZ", "MapIndex"],
    "properties": {
      "CoordX": {"type": "integer"},
      "CoordZ": {"type": "integer"},
      "MapIndex": {"type": "integer", "minimum": -1},
      "Unk0": {"type": "integer"},
      "Unk1": {"type": "integer"},
      "Unk2": {"type": "integer"}
    }
  }
}`

var placementSchema = jsonschema.MustCompileString("placements.schema.json", placementSchemaText)

// NoMap marks a placement-list entry without content.
const NoMap = -1

// PlacementEntry is one record of a world placement list.
type PlacementEntry struct {
	CoordX   int `json:"CoordX"`
	CoordZ   int `json:"CoordZ"`
	Unk0     int `json:"Unk0"`
	MapIndex int `json:"MapIndex"`
	Unk1     int `json:"Unk1"`
	Unk2     int `json:"Unk2"`
}

// PlacementKey identifies one placement of one area in the world.
type PlacementKey struct {
	TileIndex int
	GX        int
	GZ        int
}

func (k PlacementKey) String() string {
	return fmt.Sprintf("%d@%d,%d", k.TileIndex, k.GX, k.GZ)
}

// Placement anchors one area's content in world space.
type Placement struct {
	Key       PlacementKey
	TileIndex int
	GX, GZ    int
	WorldX    float64
	WorldZ    float64
}

// DecodePlacementEntries validates and decodes a placement-list JSON document.
func DecodePlacementEntries(raw []byte) ([]PlacementEntry, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("placements: %w", err)
	}
	if err := placementSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("placements: %w", err)
	}
	var entries []PlacementEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("placements: %w", err)
	}
	return entries, nil
}

// ParsePlacements decodes a placement list and places each entry on the grid.
func ParsePlacements(raw []byte, step float64) ([]Placement, error) {
	entries, err := DecodePlacementEntries(raw)
	if err != nil {
		return nil, err
	}
	return Place(entries, step), nil
}

// Place rebases entries so the minimum coordinates land on grid (0,0) and
// scales grid coordinates by step. Entries without content are dropped, as
// are exact duplicates of an earlier placement.
func Place(entries []PlacementEntry, step float64) []Placement {
	minX, minZ := math.MaxInt, math.MaxInt
	valid := make([]PlacementEntry, 0, len(entries))
	for _, e := range entries {
		if e.MapIndex == NoMap {
			continue
		}
		valid = append(valid, e)
		if e.CoordX < minX {
			minX = e.CoordX
		}
		if e.CoordZ < minZ {
			minZ = e.CoordZ
		}
	}

	seen := make(map[PlacementKey]struct{}, len(valid))
	out := make([]Placement, 0, len(valid))
	for _, e := range valid {
		gx := e.CoordX - minX
		gz := e.CoordZ - minZ
		key := PlacementKey{TileIndex: e.MapIndex, GX: gx, GZ: gz}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Placement{
			Key:       key,
			TileIndex: e.MapIndex,
			GX:        gx,
			GZ:        gz,
			WorldX:    float64(gx) * step,
			WorldZ:    float64(gz) * step,
		})
	}
	return out
}

// Bounds reports the inclusive grid extent of placements.
func Bounds(ps []Placement) (minGX, minGZ, maxGX, maxGZ int) {
	if len(ps) == 0 {
		return 0, 0, 0, 0
	}
	minGX, minGZ = ps[0].GX, ps[0].GZ
	maxGX, maxGZ = minGX, minGZ
	for _, p := range ps[1:] {
		minGX = min(minGX, p.GX)
		minGZ = min(minGZ, p.GZ)
		maxGX = max(maxGX, p.GX)
		maxGZ = max(maxGZ, p.GZ)
	}
	return
}

// SortByDistance orders placements by Chebyshev distance from (gx, gz), nearest
// first; ties keep key order so the result is deterministic.
func SortByDistance(ps []Placement, gx, gz int) {
	dist := func(p Placement) int {
		dx, dz := p.GX-gx, p.GZ-gz
		if dx < 0 {
			dx = -dx
		}
		if dz < 0 {
			dz = -dz
		}
		return max(dx, dz)
	}
	sort.SliceStable(ps, func(i, j int) bool {
		di, dj := dist(ps[i]), dist(ps[j])
		if di != dj {
			return di < dj
		}
		a, b := ps[i].Key, ps[j].Key
		if a.TileIndex != b.TileIndex {
			return a.TileIndex < b.TileIndex
		}
		if a.GX != b.GX {
			return a.GX < b.GX
		}
		return a.GZ < b.GZ
	})
}

package layout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const textLayoutSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["blocks"],
    "properties": {
      "blocks": {
        "type": "array",
        "minItems": 1,
        "items": {
          "type": "array",
          "items": {
            "anyOf": [
              {"type": "null"},
              {"type": "string", "pattern": "^[0-9]+\\.[0-9]+$"}
            ]
          }
        }
      }
    }
  }
}`

var textSchema = jsonschema.MustCompileString("text_layout.schema.json", textLayoutSchema)

type textMap struct {
	Blocks [][]*string `json:"blocks"`
}

// ParseTileRef parses a "major.minor" tile reference.
func ParseTileRef(s string) (TileID, error) {
	majorS, minorS, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return TileID{}, fmt.Errorf("tile ref %q: want major.minor", s)
	}
	major, err := strconv.Atoi(majorS)
	if err != nil {
		return TileID{}, fmt.Errorf("tile ref %q: %w", s, err)
	}
	minor, err := strconv.Atoi(minorS)
	if err != nil {
		return TileID{}, fmt.Errorf("tile ref %q: %w", s, err)
	}
	return TileID{Major: major, Minor: minor}, nil
}

// ParseText reads the map stored under key in a JSON document of the form
// {"<key>": {"blocks": [["major.minor", null, ...], ...]}}. Origin is (0,0).
func ParseText(raw []byte, key string) (*Table, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("text layout: %w", err)
	}
	if err := textSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("text layout: %w", err)
	}

	var maps map[string]textMap
	if err := json.Unmarshal(raw, &maps); err != nil {
		return nil, fmt.Errorf("text layout: %w", err)
	}
	m, ok := maps[key]
	if !ok {
		return nil, fmt.Errorf("text layout: no map %q", key)
	}

	rows := make([][]*TileID, len(m.Blocks))
	for z, src := range m.Blocks {
		row := make([]*TileID, len(src))
		for x, ref := range src {
			if ref == nil {
				continue
			}
			id, err := ParseTileRef(*ref)
			if err != nil {
				return nil, fmt.Errorf("text layout %q (%d,%d): %w", key, x, z, err)
			}
			row[x] = &id
		}
		rows[z] = row
	}
	return NewTable(rows, 0, 0), nil
}

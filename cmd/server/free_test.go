package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tilestream.ai/internal/sim/collision"
	"tilestream.ai/internal/sim/grid"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mesh"
)

type wallLookup struct{ tile *mesh.Tile }

func (w wallLookup) TileAt(x, z float64) *mesh.Tile {
	if x >= 0 && x < 640 && z >= 0 && z < 640 {
		return w.tile
	}
	return nil
}

func TestFreeHandler(t *testing.T) {
	s := &mesh.Shape{
		Positions: mesh.PackPositions([][3]int16{{0, 0, 0}, {0, 20, 50}, {10, 10, 25}}),
		Indices:   []uint16{0, 1, 2},
	}
	lookup := wallLookup{tile: mesh.NewTile(layout.TileID{Major: 1}, [][]*mesh.Shape{{s}})}
	engine := collision.New(lookup, collision.Config{TileSize: 640})
	h := freeHandler(engine, grid.NewMapper(640), 5)

	cases := []struct {
		query  string
		status int
		free   bool
	}{
		{"x=-1&y=0&z=5", http.StatusOK, false},
		{"x=300&y=0&z=300", http.StatusOK, true},
		{"x=-1&y=0&z=5&r=Inf", http.StatusOK, false},
		{"x=1&y=0", http.StatusBadRequest, false},
		{"x=NaN&y=0&z=5", http.StatusBadRequest, false},
		{"x=-1&y=Inf&z=5", http.StatusBadRequest, false},
		{"x=-1&y=0&z=-Inf", http.StatusBadRequest, false},
		{"x=1e300&y=0&z=5", http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/v1/free?"+tc.query, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: status=%d, want %d", tc.query, rec.Code, tc.status)
		}
		if tc.status != http.StatusOK {
			continue
		}
		var body struct {
			Free bool `json:"free"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.query, err)
		}
		if body.Free != tc.free {
			t.Fatalf("%s: free=%v, want %v", tc.query, body.Free, tc.free)
		}
	}
}

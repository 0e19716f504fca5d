package main

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"tilestream.ai/internal/sim/collision"
	"tilestream.ai/internal/sim/grid"
)

// freeHandler answers GET /v1/free?x=&y=&z=[&r=]. Coordinates must be finite
// and map to representable cells.
func freeHandler(engine *collision.Engine, mapper grid.Mapper, defaultRadius float64) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		x, errX := strconv.ParseFloat(q.Get("x"), 64)
		y, errY := strconv.ParseFloat(q.Get("y"), 64)
		z, errZ := strconv.ParseFloat(q.Get("z"), 64)
		if errX != nil || errY != nil || errZ != nil {
			http.Error(rw, "x, y and z are required", http.StatusBadRequest)
			return
		}
		if !mapper.InRange(x, z) || math.IsNaN(y) || math.IsInf(y, 0) {
			http.Error(rw, "x, y and z must be finite and in range", http.StatusBadRequest)
			return
		}
		radius := defaultRadius
		if s := q.Get("r"); s != "" {
			if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 && !math.IsInf(v, 0) {
				radius = v
			}
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"free": engine.IsPositionFree(x, y, z, radius)})
	}
}

// Package metrics exports loader, streaming and collision counters to
// Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/stream"
)

const (
	stageLabel  = "stage"
	kindLabel   = "kind"
	resultLabel = "result"
)

var (
	tileLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_tile_loads_total",
		Help: "Tile loads by outcome stage (ok, empty, fetch, decode, load).",
	}, []string{
		stageLabel,
	})

	tileLoadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tilestream_tile_load_seconds",
		Help:    "Time to fetch and decode one tile.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{
		stageLabel,
	})

	areaEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_area_events_total",
		Help: "Area lifecycle events (loaded, failed, unloaded).",
	}, []string{
		kindLabel,
	})

	residentAreas = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_resident_areas",
		Help: "Areas currently resident.",
	})

	collisionQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_collision_queries_total",
		Help: "Collision queries by result (free, blocked).",
	}, []string{
		resultLabel,
	})

	observerSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_observer_sessions",
		Help: "Connected observer websocket sessions.",
	})
)

// Recorder counts tile loads. It satisfies area.Recorder.
type Recorder struct{}

func (Recorder) RecordLoad(ev area.LoadEvent) {
	tileLoads.With(prometheus.Labels{stageLabel: ev.Stage}).Inc()
	tileLoadLatency.With(prometheus.Labels{stageLabel: ev.Stage}).Observe(ev.Duration.Seconds())
}

func InstrumentAreaEvent(ev stream.Event) {
	areaEvents.With(prometheus.Labels{kindLabel: ev.Kind}).Inc()
	residentAreas.Set(float64(ev.Resident))
}

// SetResidentAreas overrides the gauge, for scenes that do not stream.
func SetResidentAreas(n int) { residentAreas.Set(float64(n)) }

func InstrumentCollision(free bool) {
	result := "blocked"
	if free {
		result = "free"
	}
	collisionQueries.With(prometheus.Labels{resultLabel: result}).Inc()
}

func ObserverConnected()    { observerSessions.Inc() }
func ObserverDisconnected() { observerSessions.Dec() }

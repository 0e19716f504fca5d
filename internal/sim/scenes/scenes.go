// Package scenes maps scene ids to constructors. The registry is built at
// startup; creating a scene never resolves code lazily.
package scenes

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/grid"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mathx"
	"tilestream.ai/internal/sim/mesh"
	"tilestream.ai/internal/sim/stream"
	"tilestream.ai/internal/sim/tuning"
)

const FullWorldID = "dp_full_world"

// DefaultMapRotation turns single-map scenes so the first view faces the
// map's interior.
const DefaultMapRotation = 3 * math.Pi / 4

type Kind int

const (
	KindMap Kind = iota
	KindWorld
)

// Env carries the collaborators a scene needs.
type Env struct {
	Tuning     tuning.Tuning
	Layouts    stream.LayoutSource
	Placements []layout.Placement
	Blocks     area.BlockSource
	Logger     *log.Logger
	Recorder   area.Recorder
	Events     func(stream.Event)
}

type Stats struct {
	Resident int
	InFlight int
	Observer grid.Cell
}

// Scene is a loaded, queryable set of resident tiles.
type Scene interface {
	ID() string
	Load(ctx context.Context) (int, error)
	Update(x, z float64)
	TileAt(x, z float64) *mesh.Tile
	ForEachVisible(fn func(world mathx.Mat4, v area.Visit))
	Stats() Stats
	Destroy()
}

type Desc struct {
	ID     string
	Name   string
	Kind   Kind
	MapNum int
	Create func(env Env) (Scene, error)
}

type Registry struct {
	byID  map[string]Desc
	order []string
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]Desc{}}
}

func (r *Registry) Register(d Desc) error {
	if d.ID == "" || d.Create == nil {
		return fmt.Errorf("scene desc needs an id and a constructor")
	}
	if _, dup := r.byID[d.ID]; dup {
		return fmt.Errorf("duplicate scene id: %s", d.ID)
	}
	r.byID[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

func (r *Registry) Lookup(id string) (Desc, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// All returns descs in registration order.
func (r *Registry) All() []Desc {
	out := make([]Desc, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Create(id string, env Env) (Scene, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown scene %q", id)
	}
	return d.Create(env)
}

// Default registers the full world followed by every single-map scene.
func Default() *Registry {
	r := NewRegistry()
	_ = r.Register(Desc{ID: FullWorldID, Name: "DP: Full World", Kind: KindWorld, Create: NewWorldScene})
	for _, m := range dpMaps {
		mapNum := m.mapNum
		id := m.id
		_ = r.Register(Desc{
			ID:     id,
			Name:   m.name,
			Kind:   KindMap,
			MapNum: mapNum,
			Create: func(env Env) (Scene, error) { return NewMapScene(id, mapNum, env) },
		})
	}
	return r
}

func logger(env Env) *log.Logger {
	if env.Logger != nil {
		return env.Logger
	}
	return log.New(io.Discard, "", 0)
}

// MapScene is one contiguous area rotated into view.
type MapScene struct {
	id     string
	mapNum int
	env    Env

	mu   sync.RWMutex
	area *area.Area
}

func NewMapScene(id string, mapNum int, env Env) (*MapScene, error) {
	if env.Layouts == nil || env.Blocks == nil {
		return nil, fmt.Errorf("scene %s: layouts and blocks are required", id)
	}
	return &MapScene{id: id, mapNum: mapNum, env: env}, nil
}

func (s *MapScene) ID() string { return s.id }

// Area is nil until Load has resolved the layout.
func (s *MapScene) Area() *area.Area {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.area
}

// Load replaces any previous area. Lookups see the new area as soon as the
// layout resolves; its cells fill in while Reload runs.
func (s *MapScene) Load(ctx context.Context) (int, error) {
	g, err := s.env.Layouts.Layout(ctx, s.mapNum)
	if err != nil {
		return 0, fmt.Errorf("scene %s: %w", s.id, err)
	}
	a := area.New(g, area.Options{
		Name:        s.id,
		TileSize:    s.env.Tuning.TileSize,
		Concurrency: s.env.Tuning.Loader.AreaConcurrency,
		Logger:      logger(s.env),
		Recorder:    s.env.Recorder,
	})
	a.SetMatrix(mathx.RotationY(DefaultMapRotation))

	s.mu.Lock()
	old := s.area
	s.area = a
	s.mu.Unlock()
	if old != nil {
		old.Destroy()
	}
	return a.Reload(ctx, s.env.Blocks), nil
}

// Update is a no-op: a single map is resident as a whole.
func (s *MapScene) Update(x, z float64) {}

func (s *MapScene) TileAt(x, z float64) *mesh.Tile {
	if a := s.Area(); a != nil {
		return a.TileAt(x, z)
	}
	return nil
}

func (s *MapScene) ForEachVisible(fn func(world mathx.Mat4, v area.Visit)) {
	if a := s.Area(); a != nil {
		a.ForEachVisible(1, fn)
	}
}

func (s *MapScene) Stats() Stats {
	if a := s.Area(); a != nil {
		return Stats{Resident: a.Resident()}
	}
	return Stats{}
}

func (s *MapScene) Destroy() {
	if a := s.Area(); a != nil {
		a.Destroy()
	}
}

// WorldScene streams every placed map around the observer.
type WorldScene struct {
	world      *stream.World
	t          tuning.Tuning
	destroyed atomic.Bool

	mu     sync.Mutex
	refill chan struct{} // closed when the current refill finishes
}

func NewWorldScene(env Env) (Scene, error) {
	if env.Layouts == nil || env.Blocks == nil {
		return nil, fmt.Errorf("scene %s: layouts and blocks are required", FullWorldID)
	}
	if len(env.Placements) == 0 {
		return nil, fmt.Errorf("scene %s: no placements", FullWorldID)
	}
	w := stream.New(env.Tuning.StreamConfig(), env.Placements, env.Layouts, env.Blocks,
		stream.WithLogger(logger(env)),
		stream.WithRecorder(env.Recorder),
		stream.WithEvents(env.Events),
	)
	return &WorldScene{world: w, t: env.Tuning}, nil
}

func (s *WorldScene) ID() string           { return FullWorldID }
func (s *WorldScene) World() *stream.World { return s.world }

// Load brings in every placement, or only those within the evict distance
// of the observer when one is configured.
func (s *WorldScene) Load(ctx context.Context) (int, error) {
	if d := s.t.Loader.EvictDistance; d > 0 {
		return s.world.LoadWithin(ctx, d, s.t.Loader.Concurrency), nil
	}
	return s.world.LoadAll(ctx, s.t.Loader.Concurrency), nil
}

// Update moves the observer. When an evict distance is configured it drops
// areas that fell out of range and starts loading the ones that came into
// range in the background; at most one refill runs at a time.
func (s *WorldScene) Update(x, z float64) {
	if s.destroyed.Load() {
		return
	}
	s.world.Update(x, z)
	d := s.t.Loader.EvictDistance
	if d <= 0 {
		return
	}
	s.world.EvictBeyond(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed.Load() {
		return
	}
	if s.refill != nil {
		select {
		case <-s.refill:
		default:
			return
		}
	}
	done := make(chan struct{})
	s.refill = done
	go func() {
		defer close(done)
		s.world.LoadWithin(context.Background(), d, s.t.Loader.Concurrency)
	}()
}

// Settle waits for a background refill started by Update.
func (s *WorldScene) Settle() {
	s.mu.Lock()
	done := s.refill
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *WorldScene) TileAt(x, z float64) *mesh.Tile { return s.world.TileAt(x, z) }

func (s *WorldScene) ForEachVisible(fn func(world mathx.Mat4, v area.Visit)) {
	s.world.ForEachVisible(func(_ layout.Placement, world mathx.Mat4, v area.Visit) { fn(world, v) })
}

func (s *WorldScene) Stats() Stats {
	return Stats{Resident: s.world.NumResident(), InFlight: s.world.InFlight(), Observer: s.world.Observer()}
}

// Destroy is final: later Updates neither evict nor refill.
func (s *WorldScene) Destroy() {
	s.mu.Lock()
	s.destroyed.Store(true)
	s.mu.Unlock()
	s.Settle()
	s.world.Destroy()
}

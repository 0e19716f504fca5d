// Package stream keeps the areas of a sparse world resident around an
// observer.
//
// Each placement loads at most once at a time: concurrent EnsureLoaded
// calls for one key share a single fetch. Lookups and Update never wait on
// a load.
package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/grid"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mathx"
	"tilestream.ai/internal/sim/mesh"
)

// LayoutSource resolves the cell layout of one area by index.
type LayoutSource interface {
	Layout(ctx context.Context, tileIndex int) (layout.Grid, error)
}

type LayoutSourceFunc func(ctx context.Context, tileIndex int) (layout.Grid, error)

func (f LayoutSourceFunc) Layout(ctx context.Context, tileIndex int) (layout.Grid, error) {
	return f(ctx, tileIndex)
}

type State int

const (
	Unloaded State = iota
	Loading
	Resident
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Resident:
		return "resident"
	default:
		return "unloaded"
	}
}

type Config struct {
	TileSize float64
	// Step is the world distance between neighbouring placement grid
	// coordinates.
	Step            float64
	LOD             LODPolicy
	AreaConcurrency int
}

// Event kinds.
const (
	EventLoaded   = "loaded"
	EventFailed   = "failed"
	EventUnloaded = "unloaded"
)

type Event struct {
	Kind     string
	Key      layout.PlacementKey
	Err      error
	Duration time.Duration
	Tiles    int
	Resident int
}

type Option func(*World)

func WithLogger(l *log.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRecorder receives per-tile load events from every area.
func WithRecorder(r area.Recorder) Option {
	return func(w *World) { w.recorder = r }
}

// WithEvents receives area lifecycle events.
func WithEvents(fn func(Event)) Option {
	return func(w *World) { w.onEvent = fn }
}

type entry struct {
	p      layout.Placement
	area   *area.Area
	ax, az float64
	cells  []grid.Cell
}

type loadCall struct {
	done chan struct{}
	err  error
}

type World struct {
	cfg        Config
	mapper     grid.Mapper
	stepMapper grid.Mapper
	placements []layout.Placement
	byKey      map[layout.PlacementKey]layout.Placement
	layouts    LayoutSource
	blocks     area.BlockSource

	logger   *log.Logger
	recorder area.Recorder
	onEvent  func(Event)

	mu       sync.RWMutex
	resident map[layout.PlacementKey]*entry
	inFlight map[layout.PlacementKey]*loadCall
	owners   map[grid.Cell][]*entry
	cam      grid.Cell
}

func New(cfg Config, placements []layout.Placement, layouts LayoutSource, blocks area.BlockSource, opts ...Option) *World {
	if cfg.TileSize <= 0 {
		cfg.TileSize = grid.DefaultTileSize
	}
	if cfg.Step <= 0 {
		cfg.Step = cfg.TileSize
	}
	if len(cfg.LOD.Bands) == 0 && cfg.LOD.FarStride == 0 {
		cfg.LOD = DefaultLOD()
	}
	w := &World{
		cfg:        cfg,
		mapper:     grid.NewMapper(cfg.TileSize),
		stepMapper: grid.NewMapper(cfg.Step),
		placements: append([]layout.Placement(nil), placements...),
		byKey:      make(map[layout.PlacementKey]layout.Placement, len(placements)),
		layouts:    layouts,
		blocks:     blocks,
		logger:     log.New(io.Discard, "", 0),
		resident:   map[layout.PlacementKey]*entry{},
		inFlight:   map[layout.PlacementKey]*loadCall{},
		owners:     map[grid.Cell][]*entry{},
	}
	for _, p := range w.placements {
		w.byKey[p.Key] = p
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *World) Placements() []layout.Placement { return w.placements }

func (w *World) Placement(key layout.PlacementKey) (layout.Placement, bool) {
	p, ok := w.byKey[key]
	return p, ok
}

// EnsureLoaded makes p resident. It returns immediately if p is already
// resident and joins the pending load if one is in flight. A failed load
// leaves p unloaded so a later call can retry.
func (w *World) EnsureLoaded(ctx context.Context, p layout.Placement) error {
	w.mu.Lock()
	if _, ok := w.resident[p.Key]; ok {
		w.mu.Unlock()
		return nil
	}
	if c, ok := w.inFlight[p.Key]; ok {
		w.mu.Unlock()
		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c := &loadCall{done: make(chan struct{})}
	w.inFlight[p.Key] = c
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.inFlight, p.Key)
		w.mu.Unlock()
		close(c.done)
	}()
	c.err = w.load(ctx, p)
	return c.err
}

func (w *World) load(ctx context.Context, p layout.Placement) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("placement %s: load panic: %v", p.Key, r)
		}
		if err != nil {
			w.logger.Printf("load failed key=%s err=%v", p.Key, err)
			w.emit(Event{Kind: EventFailed, Key: p.Key, Err: err, Duration: time.Since(start), Resident: w.NumResident()})
		}
	}()

	g, err := w.layouts.Layout(ctx, p.TileIndex)
	if err != nil {
		return fmt.Errorf("placement %s: layout: %w", p.Key, err)
	}
	a := area.New(g, area.Options{
		Name:        p.Key.String(),
		TileSize:    w.cfg.TileSize,
		Concurrency: w.cfg.AreaConcurrency,
		Logger:      w.logger,
		Recorder:    w.recorder,
	})
	ox, oz := a.Origin()
	e := &entry{
		p:    p,
		area: a,
		ax:   p.WorldX - float64(ox)*w.cfg.TileSize,
		az:   p.WorldZ - float64(oz)*w.cfg.TileSize,
	}
	a.SetMatrix(mathx.Translation(e.ax, 0, e.az))
	tiles := a.Reload(ctx, w.blocks)
	e.cells = w.footprint(e)

	w.mu.Lock()
	w.resident[p.Key] = e
	for _, c := range e.cells {
		w.owners[c] = insertSorted(w.owners[c], e)
	}
	n := len(w.resident)
	w.mu.Unlock()

	w.logger.Printf("loaded key=%s tiles=%d resident=%d dur=%s", p.Key, tiles, n, time.Since(start).Round(time.Millisecond))
	w.emit(Event{Kind: EventLoaded, Key: p.Key, Duration: time.Since(start), Tiles: tiles, Resident: n})
	return nil
}

// footprint lists the world cells covered by an area's table.
func (w *World) footprint(e *entry) []grid.Cell {
	t := w.cfg.TileSize
	out := make([]grid.Cell, 0, e.area.NumCols()*e.area.NumRows())
	for row := 0; row < e.area.NumRows(); row++ {
		for col := 0; col < e.area.NumCols(); col++ {
			out = append(out, w.mapper.CellOf(e.ax+(float64(col)+0.5)*t, e.az+(float64(row)+0.5)*t))
		}
	}
	return out
}

func lessKey(a, b layout.PlacementKey) bool {
	if a.TileIndex != b.TileIndex {
		return a.TileIndex < b.TileIndex
	}
	if a.GX != b.GX {
		return a.GX < b.GX
	}
	return a.GZ < b.GZ
}

// insertSorted returns a new slice; readers may hold the old one.
func insertSorted(es []*entry, e *entry) []*entry {
	i := sort.Search(len(es), func(i int) bool { return !lessKey(es[i].p.Key, e.p.Key) })
	out := make([]*entry, 0, len(es)+1)
	out = append(out, es[:i]...)
	out = append(out, e)
	return append(out, es[i:]...)
}

func (w *World) emit(ev Event) {
	if w.onEvent != nil {
		w.onEvent(ev)
	}
}

// LoadAll loads every placement with a fixed pool of workers pulling from a
// shared cursor. Failures are logged, never returned; the result is the
// number of resident placements afterwards.
func (w *World) LoadAll(ctx context.Context, concurrency int) int {
	if concurrency < 1 {
		concurrency = 1
	}
	var cursor atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i := int(cursor.Add(1)) - 1
				if i >= len(w.placements) {
					return
				}
				_ = w.EnsureLoaded(ctx, w.placements[i])
			}
		}()
	}
	wg.Wait()
	return w.NumResident()
}

// LoadKeys loads the listed placements; keys that are not part of this
// world are skipped.
func (w *World) LoadKeys(ctx context.Context, keys []layout.PlacementKey, concurrency int) int {
	var ps []layout.Placement
	for _, k := range keys {
		if p, ok := w.Placement(k); ok {
			ps = append(ps, p)
		}
	}
	w.loadPool(ctx, ps, concurrency)
	return w.NumResident()
}

// LoadWithin loads every placement within d cells of the observer that is
// not yet resident, nearest first.
func (w *World) LoadWithin(ctx context.Context, d, concurrency int) int {
	var near []layout.Placement
	for _, p := range w.placements {
		if w.distance(p) <= d && w.State(p.Key) == Unloaded {
			near = append(near, p)
		}
	}
	sort.SliceStable(near, func(i, j int) bool { return w.distance(near[i]) < w.distance(near[j]) })
	w.loadPool(ctx, near, concurrency)
	return w.NumResident()
}

func (w *World) loadPool(ctx context.Context, ps []layout.Placement, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	jobs := make(chan layout.Placement)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				_ = w.EnsureLoaded(ctx, p)
			}
		}()
	}
	for _, p := range ps {
		if ctx.Err() != nil {
			break
		}
		jobs <- p
	}
	close(jobs)
	wg.Wait()
}

// Update moves the observer. It never blocks on loads.
func (w *World) Update(x, z float64) {
	c := w.stepMapper.RoundCell(x, z)
	w.mu.Lock()
	w.cam = c
	w.mu.Unlock()
}

func (w *World) Observer() grid.Cell {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cam
}

func (w *World) distance(p layout.Placement) int {
	w.mu.RLock()
	cam := w.cam
	w.mu.RUnlock()
	return grid.Chebyshev(grid.Cell{Col: p.GX, Row: p.GZ}, cam)
}

func (w *World) SelectLODStride(p layout.Placement) int {
	return w.cfg.LOD.Stride(w.distance(p))
}

// Unload releases a resident placement. It reports false if key was not
// resident; in-flight loads are left alone.
func (w *World) Unload(key layout.PlacementKey) bool {
	w.mu.Lock()
	e, ok := w.resident[key]
	if ok {
		w.detach(e)
	}
	n := len(w.resident)
	w.mu.Unlock()
	if !ok {
		return false
	}
	e.area.Destroy()
	w.logger.Printf("unloaded key=%s resident=%d", key, n)
	w.emit(Event{Kind: EventUnloaded, Key: key, Resident: n})
	return true
}

// detach must be called with mu held.
func (w *World) detach(e *entry) {
	delete(w.resident, e.p.Key)
	for _, c := range e.cells {
		var es []*entry
		for _, o := range w.owners[c] {
			if o != e {
				es = append(es, o)
			}
		}
		if len(es) == 0 {
			delete(w.owners, c)
		} else {
			w.owners[c] = es
		}
	}
}

// EvictBeyond unloads resident placements farther than d cells from the
// observer and returns how many were unloaded.
func (w *World) EvictBeyond(d int) int {
	var keys []layout.PlacementKey
	for _, e := range w.entries() {
		if w.distance(e.p) > d {
			keys = append(keys, e.p.Key)
		}
	}
	n := 0
	for _, key := range keys {
		if w.Unload(key) {
			n++
		}
	}
	return n
}

// Destroy unloads every resident placement.
func (w *World) Destroy() {
	for _, key := range w.Resident() {
		w.Unload(key)
	}
}

func (w *World) State(key layout.PlacementKey) State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if _, ok := w.resident[key]; ok {
		return Resident
	}
	if _, ok := w.inFlight[key]; ok {
		return Loading
	}
	return Unloaded
}

// Resident returns resident keys in a stable order.
func (w *World) Resident() []layout.PlacementKey {
	w.mu.RLock()
	out := make([]layout.PlacementKey, 0, len(w.resident))
	for k := range w.resident {
		out = append(out, k)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i], out[j]) })
	return out
}

func (w *World) NumResident() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.resident)
}

func (w *World) InFlight() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.inFlight)
}

// Area returns the resident area for key, or nil.
func (w *World) Area(key layout.PlacementKey) *area.Area {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.resident[key]; ok {
		return e.area
	}
	return nil
}

// ForEachVisible visits every resident area with its selected stride.
func (w *World) ForEachVisible(fn func(p layout.Placement, world mathx.Mat4, v area.Visit)) {
	for _, e := range w.entries() {
		p := e.p
		e.area.ForEachVisible(w.SelectLODStride(p), func(world mathx.Mat4, v area.Visit) {
			fn(p, world, v)
		})
	}
}

// entries snapshots resident entries in key order.
func (w *World) entries() []*entry {
	w.mu.RLock()
	out := make([]*entry, 0, len(w.resident))
	for _, e := range w.resident {
		out = append(out, e)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].p.Key, out[j].p.Key) })
	return out
}

// TileAt returns the resident tile covering a world point. Where areas
// overlap, the placement with the lowest key wins.
func (w *World) TileAt(x, z float64) *mesh.Tile {
	c := w.mapper.CellOf(x, z)
	w.mu.RLock()
	es := w.owners[c]
	w.mu.RUnlock()
	for _, e := range es {
		if t := e.area.TileAt(x-e.ax, z-e.az); t != nil {
			return t
		}
	}
	return nil
}

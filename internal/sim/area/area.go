// Package area holds the resident tiles of one contiguous layout.
//
// Lookups never wait on a load: a cell whose tile is still being fetched
// reads as empty. Reload passes on the same Area are serialised.
package area

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"tilestream.ai/internal/sim/grid"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mathx"
	"tilestream.ai/internal/sim/mesh"
)

// NumDrawSteps is the number of material passes a renderer submits per frame.
const NumDrawSteps = 3

type Options struct {
	// Name tags log lines and load events.
	Name     string
	TileSize float64
	// Concurrency bounds simultaneous block fetches during Reload. Values
	// below 1 load cells one at a time.
	Concurrency int
	Logger      *log.Logger
	Recorder    Recorder
}

// Visit is one resident cell handed to a visitor.
type Visit struct {
	Col  int
	Row  int
	Tile *mesh.Tile
}

type Area struct {
	name     string
	mapper   grid.Mapper
	table    *layout.Table
	workers  int
	logger   *log.Logger
	recorder Recorder

	reloadMu sync.Mutex

	mu     sync.RWMutex
	tiles  []*mesh.Tile // row-major, len = cols*rows
	matrix mathx.Mat4
	inv    mathx.Mat4
	src    BlockSource
}

// New snapshots g into an immutable table. No tiles are loaded.
func New(g layout.Grid, opts Options) *Area {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	t := layout.Snapshot(g)
	return &Area{
		name:     opts.Name,
		mapper:   grid.NewMapper(opts.TileSize),
		table:    t,
		workers:  workers,
		logger:   logger,
		recorder: opts.Recorder,
		tiles:    make([]*mesh.Tile, t.NumCols()*t.NumRows()),
		matrix:   mathx.Identity(),
		inv:      mathx.Identity(),
	}
}

func (a *Area) Name() string        { return a.name }
func (a *Area) NumCols() int        { return a.table.NumCols() }
func (a *Area) NumRows() int        { return a.table.NumRows() }
func (a *Area) Origin() (int, int)  { return a.table.Origin() }
func (a *Area) TileSize() float64   { return a.mapper.TileSize }
func (a *Area) Layout() layout.Grid { return a.table }
func (a *Area) NumDrawSteps() int   { return NumDrawSteps }

func (a *Area) index(col, row int) (int, bool) {
	if col < 0 || row < 0 || col >= a.table.NumCols() || row >= a.table.NumRows() {
		return 0, false
	}
	return row*a.table.NumCols() + col, true
}

// SetBlockSource replaces the source used by ReloadCurrent.
func (a *Area) SetBlockSource(src BlockSource) {
	a.mu.Lock()
	a.src = src
	a.mu.Unlock()
}

// ReloadCurrent reloads with the source installed by SetBlockSource.
func (a *Area) ReloadCurrent(ctx context.Context) int {
	a.mu.RLock()
	src := a.src
	a.mu.RUnlock()
	if src == nil {
		return 0
	}
	return a.Reload(ctx, src)
}

// Reload releases every resident tile, then loads each non-empty cell from
// src. Per-cell failures are logged and leave the cell empty. It returns
// the number of resident tiles afterwards.
func (a *Area) Reload(ctx context.Context, src BlockSource) int {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	a.mu.Lock()
	a.src = src
	a.mu.Unlock()
	a.clear()

	type job struct{ col, row int }
	jobs := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				a.loadCell(ctx, src, j.col, j.row)
			}
		}()
	}
	for row := 0; row < a.table.NumRows(); row++ {
		for col := 0; col < a.table.NumCols(); col++ {
			if a.table.CellAt(col, row) == nil {
				continue
			}
			jobs <- job{col, row}
		}
	}
	close(jobs)
	wg.Wait()

	n := a.Resident()
	a.logger.Printf("reload area=%s resident=%d cells=%d", a.name, n, layout.Count(a.table))
	return n
}

func (a *Area) loadCell(ctx context.Context, src BlockSource, col, row int) {
	id := *a.table.CellAt(col, row)
	start := time.Now()
	tile, err := fetchSafe(ctx, src, id)
	ev := LoadEvent{
		Scope:    a.name,
		Col:      col,
		Row:      row,
		Tile:     id,
		Stage:    Stage(err),
		Err:      err,
		Duration: time.Since(start),
		At:       start.UTC(),
	}
	switch {
	case err != nil:
		a.logger.Printf("load failed area=%s cell=%d,%d tile=%s stage=%s err=%v", a.name, col, row, id, ev.Stage, err)
	case tile == nil:
		ev.Stage = StageEmpty
	default:
		i, _ := a.index(col, row)
		a.mu.Lock()
		old := a.tiles[i]
		a.tiles[i] = tile
		a.mu.Unlock()
		if old != nil {
			old.Release()
		}
	}
	if a.recorder != nil {
		a.recorder.RecordLoad(ev)
	}
}

// fetchSafe turns a panicking source into a load failure for that cell.
func fetchSafe(ctx context.Context, src BlockSource, id layout.TileID) (tile *mesh.Tile, err error) {
	defer func() {
		if r := recover(); r != nil {
			tile = nil
			err = fmt.Errorf("block source panic: %v", r)
		}
	}()
	return src.FetchBlock(ctx, id)
}

func (a *Area) clear() {
	a.mu.Lock()
	old := a.tiles
	a.tiles = make([]*mesh.Tile, len(old))
	a.mu.Unlock()
	for _, t := range old {
		if t != nil {
			t.Release()
		}
	}
}

// Destroy releases every resident tile. The area can be reloaded later.
func (a *Area) Destroy() {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	a.clear()
}

// TileAt maps an area-local point to its cell. Points outside the table
// return nil.
func (a *Area) TileAt(x, z float64) *mesh.Tile {
	c := a.mapper.CellOf(x, z)
	return a.TileAtCell(c.Col, c.Row)
}

func (a *Area) TileAtCell(col, row int) *mesh.Tile {
	i, ok := a.index(col, row)
	if !ok {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tiles[i]
}

func (a *Area) Resident() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, t := range a.tiles {
		if t != nil {
			n++
		}
	}
	return n
}

// SetMatrix sets the area-to-world transform. A singular matrix keeps the
// previous inverse.
func (a *Area) SetMatrix(m mathx.Mat4) {
	inv, ok := m.Invert()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.matrix = m
	if ok {
		a.inv = inv
	} else {
		a.logger.Printf("area=%s singular placement matrix, inverse unchanged", a.name)
	}
}

func (a *Area) Matrix() mathx.Mat4 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.matrix
}

func (a *Area) InvMatrix() mathx.Mat4 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.inv
}

// ForEachVisible calls fn for every resident tile with its world
// transform. With stride > 1 only cells where col%stride == 0 and
// row%stride == 0 are visited.
func (a *Area) ForEachVisible(stride int, fn func(world mathx.Mat4, v Visit)) {
	if stride < 1 {
		stride = 1
	}
	a.mu.RLock()
	m := a.matrix
	tiles := make([]Visit, 0, len(a.tiles))
	cols := a.table.NumCols()
	for i, t := range a.tiles {
		if t == nil {
			continue
		}
		col, row := i%cols, i/cols
		if stride > 1 && (col%stride != 0 || row%stride != 0) {
			continue
		}
		tiles = append(tiles, Visit{Col: col, Row: row, Tile: t})
	}
	a.mu.RUnlock()

	size := a.mapper.TileSize
	for _, v := range tiles {
		fn(mathx.Mul(m, mathx.Translation(size*float64(v.Col), 0, size*float64(v.Row))), v)
	}
}

package tuning

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tilestream.ai/internal/sim/stream"
)

type Tuning struct {
	TileSize float64 `yaml:"tile_size"`

	LOD       LOD       `yaml:"lod"`
	Collision Collision `yaml:"collision"`
	Loader    Loader    `yaml:"loader"`
	Cache     Cache     `yaml:"cache"`
	World     World     `yaml:"world"`
}

type LODBand struct {
	MaxDistance int `yaml:"max_distance"`
	Stride      int `yaml:"stride"`
}

type LOD struct {
	Bands     []LODBand `yaml:"bands"`
	FarStride int       `yaml:"far_stride"`
}

type Collision struct {
	HalfHeight    float64 `yaml:"half_height"`
	DefaultRadius float64 `yaml:"default_radius"`
}

type Loader struct {
	Concurrency     int `yaml:"concurrency"`
	AreaConcurrency int `yaml:"area_concurrency"`
	// EvictDistance of 0 disables eviction.
	EvictDistance int `yaml:"evict_distance"`
}

type Cache struct {
	MaxCostBytes int64 `yaml:"max_cost_bytes"`
	TTLSeconds   int   `yaml:"ttl_seconds"`
}

type World struct {
	Step float64 `yaml:"step"`
}

func Defaults() Tuning {
	return Tuning{
		TileSize: 640,
		LOD: LOD{
			Bands:     []LODBand{{MaxDistance: 2, Stride: 1}, {MaxDistance: 8, Stride: 1}, {MaxDistance: 20, Stride: 1}},
			FarStride: 6,
		},
		Collision: Collision{HalfHeight: 10, DefaultRadius: 5},
		Loader:    Loader{Concurrency: 4, AreaConcurrency: 1},
		Cache:     Cache{MaxCostBytes: 256 << 20, TTLSeconds: 600},
		World:     World{Step: 640},
	}
}

// Load reads a tuning file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	if t.World.Step <= 0 {
		t.World.Step = t.TileSize
	}
	if t.Loader.AreaConcurrency <= 0 {
		t.Loader.AreaConcurrency = 1
	}
	if t.LOD.FarStride <= 0 {
		t.LOD.FarStride = 1
	}
}

func (t Tuning) Validate() error {
	if t.TileSize <= 0 {
		return fmt.Errorf("tile_size must be > 0")
	}
	// Collision reads tiles in the frame of their world cell, so anchors
	// must land on cell boundaries.
	if t.World.Step <= 0 || math.Mod(t.World.Step, t.TileSize) != 0 {
		return fmt.Errorf("world.step must be a positive multiple of tile_size (got %v, tile_size %v)", t.World.Step, t.TileSize)
	}
	prev := -1
	for i, b := range t.LOD.Bands {
		if b.MaxDistance <= prev {
			return fmt.Errorf("lod.bands[%d] max_distance must increase (got %d after %d)", i, b.MaxDistance, prev)
		}
		if b.Stride < 1 {
			return fmt.Errorf("lod.bands[%d] stride must be >= 1", i)
		}
		prev = b.MaxDistance
	}
	if t.LOD.FarStride < 1 {
		return fmt.Errorf("lod.far_stride must be >= 1")
	}
	if t.Collision.HalfHeight <= 0 {
		return fmt.Errorf("collision.half_height must be > 0")
	}
	if t.Collision.DefaultRadius < 0 {
		return fmt.Errorf("collision.default_radius must be >= 0")
	}
	if t.Loader.Concurrency < 1 {
		return fmt.Errorf("loader.concurrency must be >= 1")
	}
	if t.Loader.EvictDistance < 0 {
		return fmt.Errorf("loader.evict_distance must be >= 0")
	}
	if t.Cache.MaxCostBytes < 0 || t.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache limits must be >= 0")
	}
	return nil
}

func (t Tuning) LODPolicy() stream.LODPolicy {
	p := stream.LODPolicy{FarStride: t.LOD.FarStride}
	for _, b := range t.LOD.Bands {
		p.Bands = append(p.Bands, stream.Band{MaxDistance: b.MaxDistance, Stride: b.Stride})
	}
	return p
}

func (t Tuning) StreamConfig() stream.Config {
	return stream.Config{
		TileSize:        t.TileSize,
		Step:            t.World.Step,
		LOD:             t.LODPolicy(),
		AreaConcurrency: t.Loader.AreaConcurrency,
	}
}

func (t Tuning) CacheTTL() time.Duration {
	return time.Duration(t.Cache.TTLSeconds) * time.Second
}

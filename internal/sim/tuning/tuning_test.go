package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRepoTuning(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if tu.TileSize != 640 || tu.World.Step != 640 {
		t.Fatalf("tile_size=%v step=%v", tu.TileSize, tu.World.Step)
	}
	p := tu.LODPolicy()
	if p.Stride(20) != 1 || p.Stride(21) != 6 {
		t.Fatalf("lod policy stride(20)=%d stride(21)=%d", p.Stride(20), p.Stride(21))
	}
	if tu.Loader.AreaConcurrency != 2 {
		t.Fatalf("area_concurrency=%d", tu.Loader.AreaConcurrency)
	}
}

func TestLoadEmptyPathIsDefaults(t *testing.T) {
	tu, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := tu.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if tu.Collision.HalfHeight != 10 || tu.LOD.FarStride != 6 {
		t.Fatalf("defaults=%+v", tu)
	}
}

func TestLoadPartialOverridesAndNormalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tile_size: 320\nworld:\n  step: 0\nloader:\n  concurrency: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TileSize != 320 || tu.World.Step != 320 || tu.Loader.Concurrency != 8 {
		t.Fatalf("tuning=%+v", tu)
	}
	sc := tu.StreamConfig()
	if sc.TileSize != 320 || sc.Step != 320 || len(sc.LOD.Bands) != 3 {
		t.Fatalf("stream config=%+v", sc)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Tuning){
		"tile_size":      func(t *Tuning) { t.TileSize = 0 },
		"max_distance":   func(t *Tuning) { t.LOD.Bands[1].MaxDistance = 1 },
		"stride":         func(t *Tuning) { t.LOD.Bands[0].Stride = 0 },
		"half_height":    func(t *Tuning) { t.Collision.HalfHeight = -1 },
		"concurrency":    func(t *Tuning) { t.Loader.Concurrency = 0 },
		"evict_distance": func(t *Tuning) { t.Loader.EvictDistance = -2 },
		"world.step":     func(t *Tuning) { t.World.Step = 1000 },
	}
	for want, mutate := range cases {
		tu := Defaults()
		mutate(&tu)
		err := tu.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: err=%v", want, err)
		}
	}
}

func TestValidateAcceptsAlignedStep(t *testing.T) {
	tu := Defaults()
	tu.World.Step = 3 * tu.TileSize
	if err := tu.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

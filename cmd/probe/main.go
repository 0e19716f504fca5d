// Command probe loads one scene from local assets and answers collision
// queries read from stdin, one "x y z [radius]" per line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"tilestream.ai/internal/assets"
	"tilestream.ai/internal/sim/collision"
	"tilestream.ai/internal/sim/mesh"
	"tilestream.ai/internal/sim/scenes"
	"tilestream.ai/internal/sim/tuning"
)

func main() {
	var (
		sceneID    = flag.String("scene", "dp02_dragrock_top", "scene id")
		assetsDir  = flag.String("assets", "./assets", "asset root")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (optional)")
		verbose    = flag.Bool("v", false, "log per-tile load failures")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	ctx := context.Background()
	f := assets.DirFetcher{Root: *assetsDir}

	reg := scenes.Default()
	desc, ok := reg.Lookup(*sceneID)
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown scene:", *sceneID)
		os.Exit(2)
	}
	layouts, err := assets.LoadMapTables(ctx, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "layouts:", err)
		os.Exit(1)
	}
	blocks, err := assets.LoadArchiveBlockFetcher(ctx, f, mesh.TMSHDecoder{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "blocks:", err)
		os.Exit(1)
	}
	env := scenes.Env{Tuning: tune, Layouts: layouts, Blocks: blocks}
	if *verbose {
		env.Logger = log.New(os.Stderr, "[probe] ", log.LstdFlags)
	}
	if desc.Kind == scenes.KindWorld {
		env.Placements, err = assets.LoadPlacements(ctx, f, assets.KeyGlobalMap, tune.World.Step)
		if err != nil {
			fmt.Fprintln(os.Stderr, "placements:", err)
			os.Exit(1)
		}
	}
	scene, err := reg.Create(desc.ID, env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scene:", err)
		os.Exit(1)
	}
	defer scene.Destroy()
	n, err := scene.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "scene=%s resident=%d\n", desc.ID, n)

	engine := collision.New(scene, collision.Config{TileSize: tune.TileSize, HalfHeight: tune.Collision.HalfHeight})
	if err := run(os.Stdin, os.Stdout, engine, tune.Collision.DefaultRadius); err != nil {
		fmt.Fprintln(os.Stderr, "probe:", err)
		os.Exit(1)
	}
}

type query struct {
	x, y, z, r float64
}

func parseQuery(line string, defaultRadius float64) (query, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 && len(fields) != 4 {
		return query{}, fmt.Errorf("want \"x y z [radius]\", got %q", line)
	}
	vals := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return query{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	q := query{x: vals[0], y: vals[1], z: vals[2], r: defaultRadius}
	if len(vals) == 4 {
		q.r = vals[3]
	}
	return q, nil
}

// run answers one query per non-empty, non-comment input line.
func run(in io.Reader, out io.Writer, engine *collision.Engine, defaultRadius float64) error {
	sc := bufio.NewScanner(in)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		q, err := parseQuery(line, defaultRadius)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		hit, blocked := engine.FirstHit(q.x, q.y, q.z, q.r)
		if !blocked {
			fmt.Fprintf(out, "%g %g %g r=%g free\n", q.x, q.y, q.z, q.r)
			continue
		}
		fmt.Fprintf(out, "%g %g %g r=%g blocked cell=%d,%d tile=%s pass=%d shape=%d tri=%d\n",
			q.x, q.y, q.z, q.r, hit.Cell.Col, hit.Cell.Row, hit.Tile.ID, hit.Pass, hit.Shape, hit.Triangle)
	}
	return sc.Err()
}

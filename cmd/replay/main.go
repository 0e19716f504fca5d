// Command replay reads the tile load log and, optionally, retries every
// failed tile against the current assets.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"tilestream.ai/internal/assets"
	persistlog "tilestream.ai/internal/persistence/log"
	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mesh"
)

func main() {
	var (
		loadsDir  = flag.String("loads", "./data/loads", "directory holding tiles-*.jsonl.zst")
		assetsDir = flag.String("assets", "", "asset root; when set, failed tiles are fetched again")
		unpacked  = flag.Bool("unpacked", false, "read blocks from "+assets.UnpackedKeyFormat+" files")
	)
	flag.Parse()

	sum, err := summarize(*loadsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read loads:", err)
		os.Exit(1)
	}
	stages := make([]string, 0, len(sum.stages))
	for s := range sum.stages {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	fmt.Printf("records=%d failed_tiles=%d\n", sum.records, len(sum.failed))
	for _, s := range stages {
		fmt.Printf("  stage=%s count=%d\n", s, sum.stages[s])
	}

	if *assetsDir == "" || len(sum.failed) == 0 {
		return
	}

	ctx := context.Background()
	f := assets.DirFetcher{Root: *assetsDir}
	var src *assets.BlockFetcher
	if *unpacked {
		src, err = assets.LoadUnpackedBlockFetcher(ctx, f, assets.UnpackedKeyFormat, mesh.TMSHDecoder{})
	} else {
		src, err = assets.LoadArchiveBlockFetcher(ctx, f, mesh.TMSHDecoder{})
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "open blocks:", err)
		os.Exit(1)
	}
	fixed, still := refetch(ctx, src, sum.failed)
	fmt.Printf("refetch ok=%d still_failing=%d\n", fixed, len(still))
	for _, line := range still {
		fmt.Println("  " + line)
	}
	if len(still) > 0 {
		os.Exit(1)
	}
}

type summary struct {
	records int
	stages  map[string]int
	// failed holds distinct failing tile refs in first-seen order.
	failed []string
}

func summarize(dir string) (summary, error) {
	sum := summary{stages: map[string]int{}}
	seen := map[string]bool{}
	err := persistlog.ReadJSONL(dir, "tiles", func(line json.RawMessage) error {
		var rec persistlog.LoadRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		sum.records++
		sum.stages[rec.Stage]++
		switch rec.Stage {
		case area.StageOK, area.StageEmpty:
			return nil
		}
		if !seen[rec.Tile] {
			seen[rec.Tile] = true
			sum.failed = append(sum.failed, rec.Tile)
		}
		return nil
	})
	return sum, err
}

// refetch returns how many tiles now load and a description of the rest.
func refetch(ctx context.Context, src area.BlockSource, tiles []string) (int, []string) {
	fixed := 0
	var still []string
	for _, ref := range tiles {
		id, err := layout.ParseTileRef(ref)
		if err != nil {
			still = append(still, fmt.Sprintf("tile=%s err=%v", ref, err))
			continue
		}
		tile, err := src.FetchBlock(ctx, id)
		if err != nil {
			still = append(still, fmt.Sprintf("tile=%s stage=%s err=%v", ref, area.Stage(err), err))
			continue
		}
		if tile != nil {
			tile.Release()
		}
		fixed++
	}
	return fixed, still
}

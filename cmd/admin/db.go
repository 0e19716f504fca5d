package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tilestream.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/loads.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	key := fs.String("key", "", "area key for the history query, e.g. 12@3,4")
	_ = fs.Parse(args)

	q := "stages"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "loads.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx := context.Background()

	switch q {
	case "stages":
		counts, err := idx.StageCounts(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		printJSON(counts)

	case "failed":
		if *limit <= 0 {
			*limit = 20
		}
		rows, err := idx.FailedTiles(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "history":
		if strings.TrimSpace(*key) == "" {
			fmt.Fprintln(os.Stderr, "missing -key")
			os.Exit(2)
		}
		rows, err := idx.AreaHistory(ctx, *key)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "tuning":
		d, ok, err := idx.TuningDigest(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "no tuning recorded")
			os.Exit(2)
		}
		fmt.Println(d)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(stages|failed|history|tuning)")
		os.Exit(2)
	}
}

// Command unpack inflates every block of a BLOCKS archive into its own file
// so the server can read blocks individually (-unpacked).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"tilestream.ai/internal/assets"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mesh"
)

func main() {
	var (
		assetsDir = flag.String("assets", "./assets", "directory holding BLOCKS.tab and BLOCKS.bin")
		outDir    = flag.String("out", "", "output root (default: -assets); files go to "+assets.UnpackedKeyFormat)
		workers   = flag.Int("workers", 4, "parallel inflate workers")
		verify    = flag.Bool("verify", false, "decode each block as TMSH and report failures")
	)
	flag.Parse()

	root := *outDir
	if root == "" {
		root = *assetsDir
	}

	tab, err := os.ReadFile(filepath.Join(*assetsDir, assets.KeyBlocksTab))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read tab:", err)
		os.Exit(1)
	}
	bin, err := os.ReadFile(filepath.Join(*assetsDir, assets.KeyBlocksBin))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read bin:", err)
		os.Exit(1)
	}
	archive, err := assets.OpenBlockArchive(tab, bin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open archive:", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Join(root, fmt.Sprintf(assets.UnpackedKeyFormat, 0))), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "mkdir:", err)
		os.Exit(1)
	}

	st := unpack(archive, root, *workers, *verify)
	fmt.Printf("blocks=%d present=%d written=%d failed=%d undecodable=%d bytes=%d\n",
		archive.Len(), st.present, st.written.Load(), st.failed.Load(), st.undecodable.Load(), st.bytes.Load())
	if st.failed.Load() > 0 {
		os.Exit(1)
	}
}

type unpackStats struct {
	present     int
	written     atomic.Int64
	failed      atomic.Int64
	undecodable atomic.Int64
	bytes       atomic.Int64
}

func unpack(archive *assets.BlockArchive, root string, workers int, verify bool) *unpackStats {
	if workers < 1 {
		workers = 1
	}
	present := archive.Present()
	st := &unpackStats{present: len(present)}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				raw, err := archive.Inflate(n)
				if err != nil {
					fmt.Fprintln(os.Stderr, "inflate:", err)
					st.failed.Add(1)
					continue
				}
				if verify {
					if _, err := (mesh.TMSHDecoder{}).Decode(raw, layout.TileID{}); err != nil {
						fmt.Fprintf(os.Stderr, "block %d: decode: %v\n", n, err)
						st.undecodable.Add(1)
					}
				}
				path := filepath.Join(root, filepath.FromSlash(fmt.Sprintf(assets.UnpackedKeyFormat, n)))
				if err := os.WriteFile(path, raw, 0o644); err != nil {
					fmt.Fprintln(os.Stderr, "write:", err)
					st.failed.Add(1)
					continue
				}
				st.written.Add(1)
				st.bytes.Add(int64(len(raw)))
			}
		}()
	}
	for _, n := range present {
		jobs <- n
	}
	close(jobs)
	wg.Wait()
	return st
}

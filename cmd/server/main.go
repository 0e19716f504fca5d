package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tilestream.ai/internal/assets"
	"tilestream.ai/internal/metrics"
	"tilestream.ai/internal/persistence/indexdb"
	persistlog "tilestream.ai/internal/persistence/log"
	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/collision"
	"tilestream.ai/internal/sim/grid"
	"tilestream.ai/internal/sim/mesh"
	"tilestream.ai/internal/sim/scenes"
	"tilestream.ai/internal/sim/stream"
	"tilestream.ai/internal/sim/tuning"
	"tilestream.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		sceneID    = flag.String("scene", scenes.FullWorldID, "scene id (see -list_scenes)")
		listScenes = flag.Bool("list_scenes", false, "print registered scenes and exit")
		assetsDir  = flag.String("assets", "./assets", "asset root (TRKBLK.bin, BLOCKS.*, MAPS.*, globalmap.json)")
		remote     = flag.Bool("remote_assets", false, "fetch assets from the TS_R2_* bucket instead of -assets")
		layoutsKey = flag.String("layouts", "", "JSON layout document key (default: dense MAPS.tab/MAPS.bin)")
		unpacked   = flag.Bool("unpacked", false, "read blocks from "+assets.UnpackedKeyFormat+" files written by cmd/unpack")
		placeKey   = flag.String("placements", assets.KeyGlobalMap, "placement list key for the full world scene")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		stateDir   = flag.String("data", "./data", "runtime data directory (load logs, index)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite load index")
		resume     = flag.Bool("resume", true, "warm the placements resident at the last shutdown (full world scene)")
		obsRemote  = flag.Bool("observer_remote", false, "accept observer connections from non-loopback addresses")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	reg := scenes.Default()
	if *listScenes {
		for _, d := range reg.All() {
			fmt.Printf("%s\t%s\n", d.ID, d.Name)
		}
		return
	}
	desc, ok := reg.Lookup(*sceneID)
	if !ok {
		logger.Fatalf("unknown scene %q", *sceneID)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	ctx, cancel := signalContext()
	defer cancel()

	var origin assets.Fetcher = assets.DirFetcher{Root: *assetsDir}
	if *remote {
		client, err := newR2Client()
		if err != nil {
			logger.Fatalf("remote assets: %v", err)
		}
		e, _ := readR2Env()
		origin = client.WithPrefix(e.prefix)
	}
	fetcher, err := assets.NewCachedFetcher(origin, tune.Cache.MaxCostBytes, tune.CacheTTL())
	if err != nil {
		logger.Fatalf("asset cache: %v", err)
	}
	defer fetcher.Close()

	layouts, err := openLayouts(ctx, fetcher, *layoutsKey)
	if err != nil {
		logger.Fatalf("layouts: %v", err)
	}
	var blocks *assets.BlockFetcher
	if *unpacked {
		blocks, err = assets.LoadUnpackedBlockFetcher(ctx, fetcher, assets.UnpackedKeyFormat, mesh.TMSHDecoder{})
	} else {
		blocks, err = assets.LoadArchiveBlockFetcher(ctx, fetcher, mesh.TMSHDecoder{})
	}
	if err != nil {
		logger.Fatalf("blocks: %v", err)
	}

	idx, err := openLoadIndex(*stateDir, *disableDB)
	if err != nil {
		logger.Fatalf("open load index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(ctx, tune); err != nil {
			logger.Printf("load index: upsert tuning: %v", err)
		}
	}

	r2Mirror, err := buildR2MirrorRuntime(*stateDir, logger)
	if err != nil {
		logger.Fatalf("init r2 mirror: %v", err)
	}
	defer r2Mirror.Close()

	loadLog := persistlog.NewLoadLogger(*stateDir, log.New(os.Stdout, "[loadlog] ", log.LstdFlags|log.Lmicroseconds))
	if r2Mirror.enabled {
		loadLog.OnClosed(r2Mirror.Enqueue)
	}
	defer loadLog.Close()

	env := scenes.Env{
		Tuning:   tune,
		Layouts:  layouts,
		Blocks:   blocks,
		Logger:   log.New(os.Stdout, "[scene] ", log.LstdFlags|log.Lmicroseconds),
		Recorder: recorders(loadLog, idx),
		Events: func(ev stream.Event) {
			loadLog.RecordArea(ev)
			if idx != nil {
				idx.RecordArea(ev)
			}
			metrics.InstrumentAreaEvent(ev)
		},
	}
	if desc.Kind == scenes.KindWorld {
		env.Placements, err = assets.LoadPlacements(ctx, fetcher, *placeKey, tune.World.Step)
		if err != nil {
			logger.Fatalf("placements: %v", err)
		}
	}
	scene, err := reg.Create(desc.ID, env)
	if err != nil {
		logger.Fatalf("scene: %v", err)
	}
	defer scene.Destroy()

	ws, isWorld := scene.(*scenes.WorldScene)
	if isWorld {
		defer saveWorld(ws, *stateDir, tune, logger)
	}

	go func() {
		if isWorld && *resume {
			resumeWorld(ctx, ws, *stateDir, tune, logger)
		}
		start := time.Now()
		n, err := scene.Load(ctx)
		if err != nil {
			logger.Printf("scene load scene=%s err=%v", desc.ID, err)
			return
		}
		if desc.Kind == scenes.KindMap {
			metrics.SetResidentAreas(1)
		}
		cs := fetcher.Stats()
		logger.Printf("scene loaded scene=%s resident=%d took=%s cache_hits=%d cache_misses=%d",
			desc.ID, n, time.Since(start).Round(time.Millisecond), cs.Hits, cs.Misses)
	}()

	engine := collision.New(scene, collision.Config{
		TileSize:   tune.TileSize,
		HalfHeight: tune.Collision.HalfHeight,
		Observe:    metrics.InstrumentCollision,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	obsSrv := observer.NewServer(scene, engine, observer.Config{
		TileSize:      tune.TileSize,
		DefaultRadius: tune.Collision.DefaultRadius,
		AllowRemote:   *obsRemote,
	}, log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))
	mux.HandleFunc("/v1/observer/state", obsSrv.StateHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())

	mux.HandleFunc("/v1/free", freeHandler(engine, grid.NewMapper(tune.TileSize), tune.Collision.DefaultRadius))

	if envBool("TS_ENABLE_ADMIN_HTTP", true) {
		mux.HandleFunc("/admin/v1/loads/failed", adminFailedTiles(idx))
		mux.HandleFunc("/admin/v1/reload", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ms, ok := scene.(*scenes.MapScene)
			if !ok {
				http.Error(rw, "reload is only supported for map scenes", http.StatusConflict)
				return
			}
			a := ms.Area()
			if a == nil {
				http.Error(rw, "scene not loaded yet", http.StatusServiceUnavailable)
				return
			}
			n := a.ReloadCurrent(r.Context())
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "resident": n})
		})
	} else {
		logger.Printf("admin endpoints disabled (TS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("TS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s scene=%s", *addr, desc.ID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func openLayouts(ctx context.Context, f assets.Fetcher, key string) (stream.LayoutSource, error) {
	if strings.TrimSpace(key) == "" {
		return assets.LoadMapTables(ctx, f)
	}
	raw, err := f.FetchRaw(ctx, key)
	if err != nil {
		return nil, err
	}
	return assets.NewTextLayouts(raw), nil
}

func recorders(loadLog *persistlog.LoadLogger, idx *indexdb.SQLiteIndex) area.Recorder {
	rs := area.Recorders{loadLog, metrics.Recorder{}}
	if idx != nil {
		rs = append(rs, idx)
	}
	return rs
}

func adminFailedTiles(idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if idx == nil {
			http.Error(rw, "load index disabled", http.StatusServiceUnavailable)
			return
		}
		limit := 50
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		if err := idx.Flush(r.Context()); err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		failed, err := idx.FailedTiles(r.Context(), limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		stages, err := idx.StageCounts(r.Context())
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"failed": failed, "stages": stages, "queue": idx.Stats()})
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

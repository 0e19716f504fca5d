package main

import (
	"context"
	"log"
	"os"
	"time"

	"tilestream.ai/internal/persistence/snapshot"
	"tilestream.ai/internal/sim/scenes"
	"tilestream.ai/internal/sim/tuning"
)

// resumeWorld moves the observer to where the last run left it and loads
// the placements that were resident, before the regular scene load.
func resumeWorld(ctx context.Context, ws *scenes.WorldScene, stateDir string, tune tuning.Tuning, logger *log.Logger) {
	path := snapshot.Path(stateDir, ws.ID())
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Printf("resume: read snapshot path=%s err=%v", path, err)
		}
		return
	}
	if snap.Step != tune.World.Step || snap.TileSize != tune.TileSize {
		logger.Printf("resume: snapshot geometry differs (tile=%g step=%g), ignoring", snap.TileSize, snap.Step)
		return
	}
	ws.World().Update(float64(snap.Observer[0])*snap.Step, float64(snap.Observer[1])*snap.Step)
	start := time.Now()
	n := ws.World().LoadKeys(ctx, snap.Keys(), tune.Loader.Concurrency)
	logger.Printf("resume: warmed resident=%d of %d took=%s", n, len(snap.Resident), time.Since(start).Round(time.Millisecond))
}

func saveWorld(ws *scenes.WorldScene, stateDir string, tune tuning.Tuning, logger *log.Logger) {
	snap := snapshot.New(ws.ID(), time.Now())
	snap.TileSize = tune.TileSize
	snap.Step = tune.World.Step
	obs := ws.World().Observer()
	snap.Observer = [2]int{obs.Col, obs.Row}
	snap.AddResident(ws.World().Resident())
	path := snapshot.Path(stateDir, ws.ID())
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	logger.Printf("snapshot saved path=%s resident=%d", path, len(snap.Resident))
}

// Package snapshot persists which placements a streaming scene had resident
// so a restarted server can warm the same set first.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"tilestream.ai/internal/sim/layout"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	SceneID string `json:"scene_id"`
	TakenAt string `json:"taken_at"`
}

type PlacementV1 struct {
	TileIndex int `json:"tile_index"`
	GX        int `json:"gx"`
	GZ        int `json:"gz"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TileSize float64 `json:"tile_size"`
	Step     float64 `json:"step"`
	// Observer is the grid cell the camera was in.
	Observer [2]int        `json:"observer"`
	Resident []PlacementV1 `json:"resident"`
}

func New(sceneID string, now time.Time) SnapshotV1 {
	return SnapshotV1{Header: Header{
		Version: Version,
		SceneID: sceneID,
		TakenAt: now.UTC().Format(time.RFC3339),
	}}
}

func (s *SnapshotV1) AddResident(keys []layout.PlacementKey) {
	for _, k := range keys {
		s.Resident = append(s.Resident, PlacementV1{TileIndex: k.TileIndex, GX: k.GX, GZ: k.GZ})
	}
}

func (s SnapshotV1) Keys() []layout.PlacementKey {
	out := make([]layout.PlacementKey, 0, len(s.Resident))
	for _, p := range s.Resident {
		out = append(out, layout.PlacementKey{TileIndex: p.TileIndex, GX: p.GX, GZ: p.GZ})
	}
	return out
}

// Path is where the snapshot of sceneID lives under dataDir.
func Path(dataDir, sceneID string) string {
	return filepath.Join(dataDir, "snapshots", sceneID+".snap.zst")
}

// WriteSnapshot writes a JSON header line followed by the gob body, all
// zstd-compressed. The file is replaced atomically.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("%s: header: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("%s: header: %w", filepath.Base(path), err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("%s: unsupported version %d", filepath.Base(path), h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

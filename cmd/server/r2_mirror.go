package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"tilestream.ai/internal/persistence/r2s3"
)

type r2Env struct {
	endpoint, bucket, accessKeyID, secretAccessKey, prefix string
}

func readR2Env() (r2Env, bool) {
	e := r2Env{
		endpoint:        strings.TrimSpace(os.Getenv("TS_R2_ENDPOINT")),
		bucket:          strings.TrimSpace(os.Getenv("TS_R2_BUCKET")),
		accessKeyID:     strings.TrimSpace(os.Getenv("TS_R2_ACCESS_KEY_ID")),
		secretAccessKey: strings.TrimSpace(os.Getenv("TS_R2_SECRET_ACCESS_KEY")),
		prefix:          strings.TrimSpace(os.Getenv("TS_R2_PREFIX")),
	}
	ok := e.endpoint != "" && e.bucket != "" && e.accessKeyID != "" && e.secretAccessKey != ""
	return e, ok
}

func newR2Client() (*r2s3.Client, error) {
	e, ok := readR2Env()
	if !ok {
		return nil, fmt.Errorf("TS_R2_ENDPOINT/TS_R2_BUCKET/TS_R2_ACCESS_KEY_ID/TS_R2_SECRET_ACCESS_KEY are not fully set")
	}
	return r2s3.New(e.endpoint, e.bucket, e.accessKeyID, e.secretAccessKey)
}

type r2MirrorRuntime struct {
	enabled bool
	mirror  *r2s3.Mirror
}

// buildR2MirrorRuntime uploads rotated load logs when TS_R2_MIRROR is set.
func buildR2MirrorRuntime(stateDir string, logger *log.Logger) (*r2MirrorRuntime, error) {
	if !envBool("TS_R2_MIRROR", false) {
		return &r2MirrorRuntime{enabled: false}, nil
	}
	client, err := newR2Client()
	if err != nil {
		return nil, fmt.Errorf("TS_R2_MIRROR=true but %w", err)
	}
	e, _ := readR2Env()
	workers := envInt("TS_R2_UPLOAD_WORKERS", 2)
	mirror := r2s3.NewMirror(client, stateDir, e.prefix, workers, 256, logger)
	return &r2MirrorRuntime{enabled: true, mirror: mirror}, nil
}

func (r *r2MirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *r2MirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

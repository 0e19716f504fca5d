package r2s3

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tilestream.ai/internal/sim/layout"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	auth    []string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	switch r.Method {
	case http.MethodGet:
		body, ok := b.objects[r.URL.Path]
		if !ok {
			http.Error(w, "NoSuchKey", http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.objects[r.URL.Path] = body
	default:
		http.Error(w, "method", http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "assets", "AKID", "SECRET")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return c, bucket
}

func TestClientGetPut(t *testing.T) {
	c, bucket := newTestClient(t)
	ctx := context.Background()

	if err := c.PutObject(ctx, "dp/MAPS.bin", []byte("maps")); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	got, err := c.WithPrefix("dp").FetchRaw(ctx, "MAPS.bin")
	if err != nil || string(got) != "maps" {
		t.Fatalf("FetchRaw=%q err=%v", got, err)
	}
	_, err = c.FetchRaw(ctx, "missing.bin")
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing object err=%v", err)
	}
	for _, a := range bucket.auth {
		if !strings.HasPrefix(a, "AWS4-HMAC-SHA256 Credential=AKID/20260501/auto/s3/aws4_request") {
			t.Fatalf("auth header=%q", a)
		}
	}
	if _, err := c.GetObject(ctx, "../"); err == nil {
		t.Fatalf("escaping key should be rejected")
	}
}

func TestClientFetchesPlacementList(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	doc := `[{"CoordX": 0, "CoordZ": 0, "MapIndex": 2}, {"CoordX": 1, "CoordZ": 0, "MapIndex": 3}]`
	if err := c.PutObject(ctx, "globalmap.json", []byte(doc)); err != nil {
		t.Fatal(err)
	}
	raw, err := c.FetchRaw(ctx, "globalmap.json")
	if err != nil {
		t.Fatalf("FetchRaw: %v", err)
	}
	ps, err := layout.ParsePlacements(raw, 640)
	if err != nil || len(ps) != 2 {
		t.Fatalf("placements=%v err=%v", ps, err)
	}
}

func TestMirrorUploadsRelativeKeys(t *testing.T) {
	c, bucket := newTestClient(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "loads", "tiles-2026-05-01-11.jsonl.zst")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("zst"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewMirror(c, dir, "logs", 2, 8, nil)
	m.Enqueue(p)
	m.Enqueue(filepath.Join(t.TempDir(), "outside.zst"))
	m.Close()

	st := m.Stats()
	if st.Uploaded != 1 || st.Failed != 1 {
		t.Fatalf("stats=%+v", st)
	}
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	if string(bucket.objects["/assets/logs/loads/tiles-2026-05-01-11.jsonl.zst"]) != "zst" {
		t.Fatalf("objects=%v", bucket.objects)
	}
}

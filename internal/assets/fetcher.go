// Package assets loads raw game data (layout tables, block archives,
// placement lists) and turns block references into resident tiles.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Fetcher returns the bytes stored under key. Missing keys wrap
// fs.ErrNotExist.
type Fetcher interface {
	FetchRaw(ctx context.Context, key string) ([]byte, error)
}

type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

func (f FetcherFunc) FetchRaw(ctx context.Context, key string) ([]byte, error) { return f(ctx, key) }

func IsNotFound(err error) bool { return errors.Is(err, fs.ErrNotExist) }

// CleanKey normalises a slash-separated key and rejects keys that escape
// the root.
func CleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("empty asset key %q", key)
	}
	return k, nil
}

// DirFetcher reads keys as paths below Root.
type DirFetcher struct {
	Root string
}

func (d DirFetcher) FetchRaw(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(k)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", k, err)
	}
	return b, nil
}

type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// CachedFetcher keeps recently fetched blobs in memory. Cost is the blob
// size in bytes.
type CachedFetcher struct {
	next  Fetcher
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewCachedFetcher(next Fetcher, maxCostBytes int64, ttl time.Duration) (*CachedFetcher, error) {
	if maxCostBytes <= 0 {
		maxCostBytes = 64 << 20
	}
	cache, err := ristretto.NewCache[string, []byte](&ristretto.Config[string, []byte]{
		NumCounters: 10000,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("asset cache: %w", err)
	}
	return &CachedFetcher{next: next, cache: cache, ttl: ttl}, nil
}

func (c *CachedFetcher) FetchRaw(ctx context.Context, key string) ([]byte, error) {
	if b, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return b, nil
	}
	c.misses.Add(1)
	b, err := c.next.FetchRaw(ctx, key)
	if err != nil {
		return nil, err
	}
	cost := int64(len(b))
	if cost == 0 {
		cost = 1
	}
	if c.ttl > 0 {
		c.cache.SetWithTTL(key, b, cost, c.ttl)
	} else {
		c.cache.Set(key, b, cost)
	}
	return b, nil
}

// Wait blocks until pending cache writes are applied.
func (c *CachedFetcher) Wait() { c.cache.Wait() }

func (c *CachedFetcher) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *CachedFetcher) Close() { c.cache.Close() }

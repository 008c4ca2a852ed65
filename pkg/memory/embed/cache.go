package embed

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Protocol-Lattice/recall/pkg/cache"
	"github.com/Protocol-Lattice/recall/pkg/concurrent"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Failures int64 `json:"failures"`
	Size     int   `json:"size"`
}

// DefaultComputeTimeout bounds a provider call made on behalf of the cache.
const DefaultComputeTimeout = 30 * time.Second

// Cache memoises embeddings by text. Failed lookups are cached as nil so a
// broken provider is not retried for the same text until Clear.
type Cache struct {
	embedder   Embedder
	entries    *cache.LRUCache[[]float32]
	group      singleflight.Group
	batchWidth int
	timeout    time.Duration
	logger     zerolog.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	failures atomic.Int64
}

// NewCache wraps embedder with an LRU of the given capacity. A nil embedder
// is allowed; every lookup then yields nil.
func NewCache(embedder Embedder, capacity int) *Cache {
	return &Cache{
		embedder:   embedder,
		entries:    cache.NewLRUCache[[]float32](capacity),
		batchWidth: concurrent.DefaultWidth,
		timeout:    DefaultComputeTimeout,
		logger:     log.With().Str("component", "embed_cache").Logger(),
	}
}

func (c *Cache) WithLogger(l zerolog.Logger) *Cache {
	c.logger = l
	return c
}

// WithTimeout bounds a single provider call.
func (c *Cache) WithTimeout(d time.Duration) *Cache {
	if d > 0 {
		c.timeout = d
	}
	return c
}

func (c *Cache) WithBatchWidth(n int) *Cache {
	if n > 0 {
		c.batchWidth = n
	}
	return c
}

// Get returns a cached vector without calling the provider. The second
// result reports whether the text was cached at all, including as a failure.
func (c *Cache) Get(text string) ([]float32, bool) {
	return c.entries.Get(cache.HashKey(text))
}

// GetOrCompute returns the embedding for text, calling the provider at most
// once per distinct text even under concurrent callers. It never fails;
// provider errors and empty vectors become nil.
func (c *Cache) GetOrCompute(ctx context.Context, text string) []float32 {
	return c.lookup(ctx, text, false)
}

// GetOrComputeQuery is GetOrCompute for search queries. Providers that
// implement QueryEmbedder get a separate cache entry per query text.
func (c *Cache) GetOrComputeQuery(ctx context.Context, text string) []float32 {
	return c.lookup(ctx, text, true)
}

func (c *Cache) key(text string, query bool) string {
	if query {
		if _, ok := c.embedder.(QueryEmbedder); ok {
			return cache.HashKey("query\x00" + text)
		}
	}
	return cache.HashKey(text)
}

func (c *Cache) lookup(ctx context.Context, text string, query bool) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	key := c.key(text, query)
	if vec, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return vec
	}
	if ctx.Err() != nil {
		return nil
	}
	c.misses.Add(1)

	// The provider call is shared by every caller waiting on key. It ignores
	// any single caller's cancellation and is bounded by c.timeout.
	ch := c.group.DoChan(key, func() (any, error) {
		if vec, ok := c.entries.Peek(key); ok {
			return vec, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		vec, err := c.compute(callCtx, text, query)
		if err != nil {
			c.failures.Add(1)
			c.logger.Debug().Err(err).Bool("query", query).Msg("embedding failed")
			if callCtx.Err() != nil {
				// Timed out; a later call may still succeed.
				return nil, nil
			}
		}
		c.entries.Set(key, vec)
		return vec, nil
	})
	select {
	case res := <-ch:
		vec, _ := res.Val.([]float32)
		return vec
	case <-ctx.Done():
		return nil
	}
}

func (c *Cache) compute(ctx context.Context, text string, query bool) (vec []float32, err error) {
	if c.embedder == nil {
		return nil, ErrNotSupported
	}
	defer func() {
		if r := recover(); r != nil {
			vec, err = nil, fmt.Errorf("embedder panic: %v", r)
		}
	}()
	if qe, ok := c.embedder.(QueryEmbedder); ok && query {
		vec, err = qe.EmbedQuery(ctx, text)
	} else {
		vec, err = c.embedder.Embed(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrNotSupported
	}
	return vec, nil
}

// EmbedAll embeds texts with bounded concurrency. The result is aligned with
// texts; entries that could not be embedded are nil.
func (c *Cache) EmbedAll(ctx context.Context, texts []string) [][]float32 {
	out, _ := concurrent.ParallelMap(ctx, texts, c.batchWidth, func(ctx context.Context, text string) ([]float32, error) {
		return c.GetOrCompute(ctx, text), nil
	})
	if out == nil && len(texts) > 0 {
		out = make([][]float32, len(texts))
	}
	return out
}

func (c *Cache) Clear() {
	c.entries.Clear()
}

func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Failures: c.failures.Load(),
		Size:     c.entries.Len(),
	}
}

package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/timmy/stylematch/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Computes int64 `json:"computes"`
}

// EmbeddingCache memoizes embeddings by product id and image URL, so a
// product whose image changes in the catalog is embedded again. Entries are
// write-once and failures are never stored, so a failed key is recomputed on
// the next lookup. Concurrent lookups of the same missing key share a single
// computation.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string]domain.Vector
	group   singleflight.Group
	metrics *Metrics

	hits     atomic.Int64
	misses   atomic.Int64
	computes atomic.Int64
}

// NewEmbeddingCache creates an empty cache. metrics may be nil.
func NewEmbeddingCache(metrics *Metrics) *EmbeddingCache {
	return &EmbeddingCache{
		entries: make(map[string]domain.Vector),
		metrics: metrics,
	}
}

func cacheKey(productID, imageURL string) string {
	return productID + "\x00" + imageURL
}

// Get returns the stored vector for productID at imageURL, if any.
func (c *EmbeddingCache) Get(productID, imageURL string) (domain.Vector, bool) {
	return c.lookup(cacheKey(productID, imageURL))
}

func (c *EmbeddingCache) lookup(key string) (domain.Vector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Len returns the number of stored vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *EmbeddingCache) Stats() CacheStats {
	return CacheStats{
		Entries:  c.Len(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Computes: c.computes.Load(),
	}
}

// Reset drops every stored vector. Counters are kept.
func (c *EmbeddingCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]domain.Vector)
	c.mu.Unlock()
}

// GetOrCompute returns the cached vector for productID at imageURL, or
// extracts it and stores it. hit is true when this caller did not run the
// extraction itself, including when a concurrent caller computed it.
//
// The extraction is detached from ctx cancellation and bounded by the
// extractor's own timeouts, so a caller that gives up does not fail the
// others waiting on the same key. Each caller still returns as soon as its
// own ctx is done.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, productID, imageURL string, extractor Extractor) (vec domain.Vector, hit bool, err error) {
	key := cacheKey(productID, imageURL)
	if v, ok := c.lookup(key); ok {
		c.recordLookup(ctx, true)
		return v, true, nil
	}

	computed := false
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// A caller may have stored the key between our lookup and DoChan.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		computed = true
		c.computes.Add(1)
		v, err := extractor.Extract(context.WithoutCancel(ctx), imageURL)
		if err != nil {
			return nil, err
		}
		return c.store(key, v), nil
	})

	select {
	case <-ctx.Done():
		c.recordLookup(ctx, false)
		return nil, false, ctx.Err()
	case res := <-ch:
		// computed is only written by this caller's own function, which has
		// returned before its result is delivered.
		hit = res.Err == nil && !computed
		c.recordLookup(ctx, hit)
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(domain.Vector), hit, nil
	}
}

func (c *EmbeddingCache) recordLookup(ctx context.Context, hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.metrics.RecordCacheLookup(ctx, hit)
}

// store keeps the first vector written for a key and returns the stored one.
func (c *EmbeddingCache) store(key string, v domain.Vector) domain.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = v
	return v
}

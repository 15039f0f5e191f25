package search

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

const maxCacheEntries = 100

// Cached wraps a Backend with a small TTL cache keyed by query and count.
// Errors and empty result sets are not cached.
type Cached struct {
	inner Backend
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	results   []Result
	expiresAt time.Time
}

var _ Backend = (*Cached)(nil)

// NewCached wraps inner. A non-positive ttl disables caching.
func NewCached(inner Backend, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

// Name implements Backend.
func (c *Cached) Name() string { return c.inner.Name() }

// Search implements Backend.
func (c *Cached) Search(ctx context.Context, query string, count int) ([]Result, error) {
	if c.ttl <= 0 {
		return c.inner.Search(ctx, query, count)
	}

	key := fmt.Sprintf("%s|%d", query, count)
	if results, ok := c.get(key); ok {
		return results, nil
	}

	results, err := c.inner.Search(ctx, query, count)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		c.put(key, results)
	}
	return results, nil
}

func (c *Cached) get(key string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.cache, key)
		return nil, false
	}
	return slices.Clone(entry.results), true
}

func (c *Cached) put(key string, results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.cache[key] = cacheEntry{results: slices.Clone(results), expiresAt: now.Add(c.ttl)}

	// Lazy eviction once the cache grows.
	if len(c.cache) > maxCacheEntries {
		for k, v := range c.cache {
			if now.After(v.expiresAt) {
				delete(c.cache, k)
			}
		}
	}
}

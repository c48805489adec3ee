// Package cache holds registry answers for the lifetime of one pipeline run.
// Nothing is persisted, so every run queries the registry afresh.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
)

// DefaultTTL bounds how long an answer is reused within one run
const DefaultTTL = time.Hour

// MemoryCache is a thread-safe in-memory lookup cache with TTL support
type MemoryCache struct {
	store *gocache.Cache
}

// NewMemoryCache creates a cache whose entries always expire.
// A non-positive defaultTTL falls back to DefaultTTL.
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = defaultTTL * 2
	}
	return &MemoryCache{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a copy of a cached result
func (c *MemoryCache) Get(ctx context.Context, key string) (*domain.LookupResult, error) {
	value, ok := c.store.Get(key)
	if !ok {
		return nil, domain.ErrCacheMiss
	}

	result, ok := value.(domain.LookupResult)
	if !ok {
		return nil, domain.ErrCacheMiss
	}

	return &result, nil
}

// Set stores a copy of result. A non-positive ttl uses the default TTL, never "no expiration".
func (c *MemoryCache) Set(ctx context.Context, key string, result *domain.LookupResult, ttl time.Duration) error {
	if result == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, *result, ttl)
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

// Size returns the current number of items in the cache
func (c *MemoryCache) Size() int {
	return c.store.ItemCount()
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.store.Flush()
}

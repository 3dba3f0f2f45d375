// Package cache provides the in-process result cache used when no Redis
// instance is configured.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/medreport-analyzer/internal/domain"
)

// MemoryCache is a size-bounded LRU with a single TTL for every entry.
type MemoryCache struct {
	lru      *expirable.LRU[string, *domain.AnalysisResult]
	capacity int
	ttl      time.Duration
}

// Stats reports cache occupancy.
type Stats struct {
	Items    int           `json:"items"`
	Capacity int           `json:"capacity"`
	TTL      time.Duration `json:"ttl"`
}

// NewMemoryCache creates a cache holding at most maxItems results for ttl.
func NewMemoryCache(maxItems int, ttl time.Duration) (*MemoryCache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxItems)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive, got %s", ttl)
	}
	return &MemoryCache{
		lru:      expirable.NewLRU[string, *domain.AnalysisResult](maxItems, nil, ttl),
		capacity: maxItems,
		ttl:      ttl,
	}, nil
}

// Get returns a copy of the cached result for key.
func (c *MemoryCache) Get(_ context.Context, key string) (*domain.AnalysisResult, bool, error) {
	result, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return result.Clone(), true, nil
}

// Set stores a copy of result. Per-entry TTLs are not supported; the cache
// TTL always applies.
func (c *MemoryCache) Set(_ context.Context, key string, result *domain.AnalysisResult, _ time.Duration) error {
	if result == nil {
		return fmt.Errorf("cannot cache nil result")
	}
	c.lru.Add(key, result.Clone())
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) {
	c.lru.Remove(key)
}

// Purge empties the cache.
func (c *MemoryCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Stats returns occupancy information.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Items:    c.lru.Len(),
		Capacity: c.capacity,
		TTL:      c.ttl,
	}
}

// Package cache holds aggregate caches used by the ledger.
package cache

import (
	"context"
	"sync"
	"time"

	"example.com/gamification/internal/domain"
)

type memoryEntry struct {
	agg     domain.Aggregate
	expires time.Time
}

// MemoryAggregateCache keeps aggregates in process. A zero TTL never expires.
type MemoryAggregateCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryAggregateCache constructs an in-process cache.
func NewMemoryAggregateCache(ttl time.Duration) *MemoryAggregateCache {
	return &MemoryAggregateCache{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get implements domain.AggregateCache.
func (c *MemoryAggregateCache) Get(ctx context.Context, userID string) (domain.Aggregate, bool, error) {
	c.mu.RLock()
	entry, ok := c.items[userID]
	c.mu.RUnlock()
	if !ok {
		return domain.Aggregate{}, false, nil
	}
	if !entry.expires.IsZero() && c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.items, userID)
		c.mu.Unlock()
		return domain.Aggregate{}, false, nil
	}
	return entry.agg, true, nil
}

// Set implements domain.AggregateCache.
func (c *MemoryAggregateCache) Set(ctx context.Context, agg domain.Aggregate) error {
	entry := memoryEntry{agg: agg}
	if c.ttl > 0 {
		entry.expires = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.items[agg.UserID] = entry
	c.mu.Unlock()
	return nil
}

// Invalidate implements domain.AggregateCache.
func (c *MemoryAggregateCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	delete(c.items, userID)
	c.mu.Unlock()
	return nil
}

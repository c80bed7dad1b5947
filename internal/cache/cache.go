// Package cache provides an in-memory TTL cache for normalized market data.
//
// The cache is instance-scoped and intentionally minimal: entries expire after
// their TTL and are evicted lazily on the next access, so no background
// goroutine is required. Entry count is bounded by the small cardinality of
// (operation, exchange, symbol, params) combinations actually queried, so
// there is no LRU or size limit. An optional janitor can be started to sweep
// expired entries proactively and bound memory between accesses.
//
// All operations are safe for concurrent use.
package cache

import (
	"context"
	"sync"
	"time"
)

// entry is a stored value together with its expiry instant. Entries are owned
// exclusively by the cache and never escape it.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a key-value store with per-entry time-to-live.
type Cache[V any] struct {
	mu         sync.RWMutex
	store      map[string]entry[V]
	defaultTTL time.Duration
	now        func() time.Time // injectable for expiry tests
}

// New creates a cache whose Set method applies defaultTTL to every entry.
// Callers needing a different lifetime for a specific entry use SetTTL.
func New[V any](defaultTTL time.Duration) *Cache[V] {
	return &Cache[V]{
		store:      make(map[string]entry[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the value stored under key and whether it was present and fresh.
// An entry whose expiry instant has passed behaves as a miss and is removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !e.expiresAt.After(c.now()) {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have
		// replaced the entry with a fresh one since the read.
		if cur, still := c.store[key]; still && !cur.expiresAt.After(c.now()) {
			delete(c.store, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's default TTL, replacing any
// previous entry.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL. A non-positive ttl
// stores an already-expired entry, which the next Get treats as a miss.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.store[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Invalidate removes the entry stored under key, if any.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, including any not yet lazily
// evicted.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// StartJanitor launches a goroutine that removes expired entries every
// interval until ctx is cancelled. It is optional: correctness never depends
// on it, only memory usage between accesses.
func (c *Cache[V]) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.removeExpired()
			}
		}
	}()
}

func (c *Cache[V]) removeExpired() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.store {
		if !e.expiresAt.After(now) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}

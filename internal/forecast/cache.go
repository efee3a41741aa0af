package forecast

import (
	"sync"
	"time"
)

type cacheEntry struct {
	payload    Result
	insertedAt time.Time
	ttl        time.Duration
}

// Cache is an in-process key→payload store with per-entry TTL. At most one
// live entry exists per key; stale entries are replaced, never merged.
//
// There is no request coalescing: concurrent misses for the same key may
// each call the upstream redundantly. Acceptable at current traffic.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	clock   func() time.Time
}

// NewCache builds an empty forecast cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		clock:   time.Now,
	}
}

// Get returns the live payload for key, if any. Stale entries are evicted.
func (c *Cache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if !c.clock().Before(entry.insertedAt.Add(entry.ttl)) {
		delete(c.entries, key)
		return Result{}, false
	}
	return entry.payload, true
}

// Set stores payload under key, replacing any previous entry.
func (c *Cache) Set(key string, payload Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: payload, insertedAt: c.clock(), ttl: ttl}
}

// InvalidateAll drops every entry. Called when new ground-truth price data
// lands, since every existing key is bound to a price date that has moved.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the number of stored entries, stale or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

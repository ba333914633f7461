// Package cache provides a small TTL cache for redundant expensive
// operations.
//
// Responsibilities:
//   - Cache LLM completions (exact prompt match, avoid redundant calls)
//   - Cache tool results where a tool opts in
//   - Expire entries after their TTL; evict lazily on access
//
// The cache is process-local and bounded only by TTL. Callers hash
// their own keys; the cache stores whatever string key it is given.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// TTLCache is a concurrency-safe map with per-entry expiry.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration

	hits   uint64
	misses uint64
}

// NewTTLCache creates a cache whose entries live for ttl.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Get returns the cached value if present and unexpired. Expired
// entries are evicted on access. The lookup, the expiry check and the
// eviction happen under one lock; a concurrent Set cannot be evicted
// by a reader that saw the key's previous, expired entry.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key for the cache's TTL.
func (c *TTLCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *TTLCache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Purge removes expired entries.
func (c *TTLCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

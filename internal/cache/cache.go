// Package cache provides TTL caching for rendered API payloads, with
// in-memory and Redis backends.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache stores rendered response bodies keyed by endpoint. Callers
// must not modify a slice returned by Get.
type Cache interface {
	// Get retrieves a payload. The second return is false when the key
	// is absent or expired.
	Get(key string) ([]byte, bool)
	// Set stores a payload with the given TTL.
	Set(key string, value []byte, ttl time.Duration)
	// Delete removes a single key.
	Delete(key string)
	// Clear removes all keys.
	Clear()
	// Stats returns usage counters.
	Stats() Stats
	// Close releases background resources. Safe to call twice.
	Close() error
}

// Stats holds cache usage counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry struct {
	value      []byte
	expiration time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiration)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64

	janitorStop chan struct{}
	closeOnce   sync.Once
}

// NewMemory creates an in-memory cache. When cleanupInterval is
// positive a janitor goroutine removes expired entries periodically;
// expired entries are invisible to Get either way.
func NewMemory(cleanupInterval time.Duration) Cache {
	c := &memoryCache{entries: make(map[string]*entry)}
	if cleanupInterval > 0 {
		c.janitorStop = make(chan struct{})
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *memoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found || e.expired() {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

func (c *memoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = &entry{value: value, expiration: time.Now().Add(ttl)}
	c.mu.Unlock()
	c.sets.Add(1)
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

func (c *memoryCache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int64
	for key, e := range c.entries {
		if e.expired() {
			delete(c.entries, key)
			count++
		}
	}
	c.evictions.Add(count)
}

func (c *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.janitorStop:
			return
		}
	}
}

func (c *memoryCache) Close() error {
	c.closeOnce.Do(func() {
		if c.janitorStop != nil {
			close(c.janitorStop)
		}
	})
	return nil
}

type noopCache struct{}

// NewNoop creates a cache that stores nothing, for disabling caching.
func NewNoop() Cache {
	return noopCache{}
}

func (noopCache) Get(string) ([]byte, bool)         { return nil, false }
func (noopCache) Set(string, []byte, time.Duration) {}
func (noopCache) Delete(string)                     {}
func (noopCache) Clear()                            {}
func (noopCache) Stats() Stats                      { return Stats{} }
func (noopCache) Close() error                      { return nil }

package core

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// CacheEntry represents a cached item with TTL
type CacheEntry[T any] struct {
	Value     T
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry[T]) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// MemoryCache is a TTL cache safe for concurrent use. It is shared by all
// in-flight requests.
type MemoryCache[K comparable, V any] struct {
	data       map[K]*CacheEntry[V]
	mutex      sync.RWMutex
	defaultTTL time.Duration
	maxSize    int
	hits       atomic.Uint64
	misses     atomic.Uint64
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache creates a cache and starts its janitor. Call Close to stop
// the janitor.
func NewMemoryCache[K comparable, V any](defaultTTL time.Duration, maxSize int) *MemoryCache[K, V] {
	if maxSize <= 0 {
		maxSize = 1000
	}

	cache := &MemoryCache[K, V]{
		data:       make(map[K]*CacheEntry[V]),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		stop:       make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

// Get retrieves a value from cache
func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	c.mutex.RLock()
	entry, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists || entry.IsExpired() {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	return entry.Value, true
}

// GetOrSet returns the cached value for key, computing and storing it under
// the write lock when missing so concurrent callers agree on one value.
func (c *MemoryCache[K, V]) GetOrSet(key K, compute func() V) (V, bool) {
	if v, ok := c.Get(key); ok {
		return v, true
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if entry, ok := c.data[key]; ok && !entry.IsExpired() {
		return entry.Value, true
	}
	v := compute()
	c.setLocked(key, v, c.defaultTTL)
	return v, false
}

// Set stores a value in cache with default TTL
func (c *MemoryCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with custom TTL
func (c *MemoryCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.setLocked(key, value, ttl)
}

func (c *MemoryCache[K, V]) setLocked(key K, value V, ttl time.Duration) {
	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictOldest()
	}
	c.data[key] = &CacheEntry[V]{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// Delete removes a key from cache
func (c *MemoryCache[K, V]) Delete(key K) {
	c.mutex.Lock()
	delete(c.data, key)
	c.mutex.Unlock()
}

// Stats returns cache statistics
func (c *MemoryCache[K, V]) Stats() (hits, misses uint64, size int) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.hits.Load(), c.misses.Load(), len(c.data)
}

// Close stops the janitor goroutine.
func (c *MemoryCache[K, V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evictOldest removes the entry closest to expiry
func (c *MemoryCache[K, V]) evictOldest() {
	var oldestKey K
	var oldestTime time.Time
	first := true

	for key, entry := range c.data {
		if first || entry.ExpiresAt.Before(oldestTime) {
			oldestTime = entry.ExpiresAt
			oldestKey = key
			first = false
		}
	}

	delete(c.data, oldestKey)
}

func (c *MemoryCache[K, V]) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache[K, V]) cleanup() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, entry := range c.data {
		if entry.IsExpired() {
			delete(c.data, key)
		}
	}
}

// ResearchCache caches research output per topic and language.
type ResearchCache struct {
	cache *MemoryCache[string, ResearchOutput]
}

func NewResearchCache(ttl time.Duration, maxEntries int) *ResearchCache {
	return &ResearchCache{cache: NewMemoryCache[string, ResearchOutput](ttl, maxEntries)}
}

func (r *ResearchCache) Get(req ContentRequest) (ResearchOutput, bool) {
	return r.cache.Get(researchKey(req))
}

func (r *ResearchCache) Set(req ContentRequest, out ResearchOutput) {
	r.cache.Set(researchKey(req), out)
}

func (r *ResearchCache) Stats() (hits, misses uint64, size int) {
	return r.cache.Stats()
}

func (r *ResearchCache) Close() { r.cache.Close() }

func researchKey(req ContentRequest) string {
	return strings.ToLower(strings.TrimSpace(req.Topic)) + "|" + strings.ToLower(req.TargetLanguage)
}

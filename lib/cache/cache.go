package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	gometrics "github.com/rcrowley/go-metrics"
)

// LRU is a bounded cache with strict least-recently-used eviction.
// Reads take the read lock for the membership check and the write lock only to
// promote a hit, writes always take the write lock.
type LRU struct {
	mu       sync.RWMutex
	lru      *simplelru.LRU
	capacity int

	registry  gometrics.Registry
	hits      gometrics.Counter
	misses    gometrics.Counter
	evictions gometrics.Counter
}

// Stats is a snapshot of the cache counters
type Stats struct {
	Capacity  int
	Len       int
	Hits      int64
	Misses    int64
	Evictions int64
}

// New creates a cache holding at most capacity entries. The counters are
// registered in registry, a fresh registry is used when it is nil.
func New(capacity int, registry gometrics.Registry) (*LRU, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d", capacity)
	}
	if registry == nil {
		registry = gometrics.NewRegistry()
	}

	c := &LRU{
		capacity:  capacity,
		registry:  registry,
		hits:      gometrics.GetOrRegisterCounter("cache.hits", registry),
		misses:    gometrics.GetOrRegisterCounter("cache.misses", registry),
		evictions: gometrics.GetOrRegisterCounter("cache.evictions", registry),
	}

	lru, err := simplelru.NewLRU(capacity, nil)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// Get returns the value for key and marks it most recently used.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	_, ok := c.lru.Peek(key)
	c.mu.RUnlock()

	if !ok {
		c.misses.Inc(1)
		return nil, false
	}

	// the entry may have been evicted between the two locks
	c.mu.Lock()
	value, ok := c.lru.Get(key)
	c.mu.Unlock()

	if !ok {
		c.misses.Inc(1)
		return nil, false
	}
	c.hits.Inc(1)
	return cloneBytes(value.([]byte)), true
}

// Put inserts or replaces the value for key. wasPresent reports whether the key
// was cached before. Inserting beyond capacity evicts the least recently used entry.
func (c *LRU) Put(key string, value []byte) (wasPresent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasPresent = c.lru.Contains(key)
	if evicted := c.lru.Add(key, cloneBytes(value)); evicted {
		c.evictions.Inc(1)
	}
	return wasPresent
}

// Delete removes key from the cache. Missing keys are ignored.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Keys returns the cached keys from least to most recently used.
func (c *LRU) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := c.lru.Keys()
	result := make([]string, len(keys))
	for i, k := range keys {
		result[i] = k.(string)
	}
	return result
}

// Stats returns the current counters.
func (c *LRU) Stats() Stats {
	return Stats{
		Capacity:  c.capacity,
		Len:       c.Len(),
		Hits:      c.hits.Count(),
		Misses:    c.misses.Count(),
		Evictions: c.evictions.Count(),
	}
}

// LogStats periodically writes the counters of the cache's registry to l.
// It blocks, so callers run it in its own goroutine.
func (c *LRU) LogStats(interval time.Duration, l Printer) {
	gometrics.Log(c.registry, interval, l)
}

// Printer is the logger interface LogStats writes to.
type Printer interface {
	Printf(format string, v ...interface{})
}

func cloneBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

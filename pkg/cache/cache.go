package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xhad/grag/internal/models"
)

type CacheConfig struct {
	Capacity int
}

// Key identifies one search request. Two requests that differ only in
// question whitespace or letter case produce the same Key.
type Key [32]byte

// NewKey folds a request into its normalized cache key. Alpha and threshold
// are rounded to three decimals so float noise doesn't split entries.
func NewKey(question string, k int, mode string, alpha, threshold float64) Key {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	raw := fmt.Sprintf("%s|%d|%s|%.3f|%.3f", normalized, k, mode, alpha, threshold)
	return sha256.Sum256([]byte(raw))
}

type entry struct {
	key      Key
	results  []models.ScoredChunk
	storedAt time.Time
}

// QueryCache is a bounded FIFO cache of ranked search results. Eviction is
// strictly insertion order, independent of reads: repeated identical
// questions cluster in time, so recency tracking isn't worth its complexity.
// The tradeoff is that a hot key can be evicted on schedule like any other.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]*entry
	order    []Key // insertion order, oldest first
}

func NewWithConfig(config CacheConfig) *QueryCache {
	if config.Capacity <= 0 {
		config.Capacity = 100
	}

	return &QueryCache{
		capacity: config.Capacity,
		entries:  make(map[Key]*entry, config.Capacity),
	}
}

// Get returns the cached ranked list for key, if present.
func (c *QueryCache) Get(key Key) ([]models.ScoredChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	results := make([]models.ScoredChunk, len(e.results))
	copy(results, e.results)
	return results, true
}

// Put inserts a ranked list, evicting the oldest inserted entry when the
// cache is at capacity. Re-inserting an existing key refreshes its value
// without changing its position in the eviction order.
func (c *QueryCache) Put(key Key, results []models.ScoredChunk) {
	stored := make([]models.ScoredChunk, len(results))
	copy(stored, results)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.results = stored
		e.storedAt = time.Now()
		return
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &entry{key: key, results: stored, storedAt: time.Now()}
	c.order = append(c.order, key)
}

// Len returns the current number of entries.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops all entries.
func (c *QueryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*entry, c.capacity)
	c.order = nil
}

package memorycache

import (
	"container/list"
	"sync"

	"github.com/asakaida/relata/pkg/cache"
)

// entry represents a cache entry with its key for reverse lookup on eviction
type entry struct {
	key   string
	value interface{}
}

// Cache implements an LRU cache without expiry.
// Entries leave the cache only when deleted by their owner or evicted by the size bound.
type Cache struct {
	mu sync.Mutex

	// LRU tracking
	items     map[string]*list.Element // key -> list element
	evictList *list.List               // LRU list (front = most recent, back = least recent)

	// Configuration
	maxEntries int // 0 means unbounded

	// Metrics
	metrics *cacheMetrics
}

type cacheMetrics struct {
	hits            uint64
	misses          uint64
	keysAdded       uint64
	keysEvicted     uint64
	keysInvalidated uint64
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxEntries is the maximum number of cached results.
	// When this limit is exceeded, least recently used entries are evicted.
	// Zero disables the bound.
	MaxEntries int

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
// A nil config yields an unbounded cache without metrics.
func New(config *Config) *Cache {
	if config == nil {
		config = &Config{}
	}

	c := &Cache{
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		maxEntries: config.MaxEntries,
	}

	if config.EnableMetrics {
		c.metrics = &cacheMetrics{}
	}

	return c
}

var _ cache.Cache = (*Cache)(nil)

// Get retrieves a value from cache and marks it as recently used.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		if c.metrics != nil {
			c.metrics.misses++
		}
		return nil, false
	}

	c.evictList.MoveToFront(elem)
	if c.metrics != nil {
		c.metrics.hits++
	}

	return elem.Value.(*entry).value, true
}

// Set stores a value in cache.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if key already exists
	if elem, exists := c.items[key]; exists {
		elem.Value.(*entry).value = value
		c.evictList.MoveToFront(elem)
		return
	}

	elem := c.evictList.PushFront(&entry{key: key, value: value})
	c.items[key] = elem

	if c.metrics != nil {
		c.metrics.keysAdded++
	}

	// Evict LRU items if over capacity
	for c.maxEntries > 0 && c.evictList.Len() > c.maxEntries {
		oldest := c.evictList.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		if c.metrics != nil {
			c.metrics.keysEvicted++
		}
	}
}

// Delete removes a value from cache.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return false
	}

	c.removeElement(elem)
	if c.metrics != nil {
		c.metrics.keysInvalidated++
	}
	return true
}

// Clear removes all entries from cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
}

// Metrics returns cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	if c.metrics == nil {
		return &cache.Metrics{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return &cache.Metrics{
		Hits:            c.metrics.hits,
		Misses:          c.metrics.misses,
		KeysAdded:       c.metrics.keysAdded,
		KeysEvicted:     c.metrics.keysEvicted,
		KeysInvalidated: c.metrics.keysInvalidated,
	}
}

// ResetMetrics resets cache statistics.
func (c *Cache) ResetMetrics() {
	if c.metrics == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	*c.metrics = cacheMetrics{}
}

// removeElement removes an element from cache (must be called with lock held).
func (c *Cache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}

// Len returns the current number of items in cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

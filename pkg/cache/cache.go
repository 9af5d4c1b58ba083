package cache

// Cache is the interface for memoized relation results.
// Keys are built by the owner (see Key); values are opaque to the cache.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns the value and true if found, or nil and false if not found.
	Get(key string) (interface{}, bool)

	// Set stores a value in cache.
	Set(key string, value interface{})

	// Delete removes a value from cache and reports whether it was present.
	Delete(key string) bool

	// Clear removes all entries from cache.
	Clear()

	// Len returns the number of entries currently held.
	Len() int

	// Metrics returns cache statistics.
	Metrics() *Metrics
}

// Key joins a subject identity and a relation key into a cache key.
// The separator cannot appear in either part for identities produced by
// the rel package.
func Key(identity, relation string) string {
	return identity + "\x00" + relation
}

// Metrics holds cache performance statistics.
type Metrics struct {
	// Hits is the number of cache hits
	Hits uint64

	// Misses is the number of cache misses
	Misses uint64

	// KeysAdded is the number of keys added to cache
	KeysAdded uint64

	// KeysEvicted is the number of keys evicted because of the size bound
	KeysEvicted uint64

	// KeysInvalidated is the number of keys removed through Delete
	KeysInvalidated uint64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}

package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/relata/pkg/cache"
	"github.com/asakaida/relata/pkg/rel"
)

// Collector collects and aggregates metrics for the application.
// It implements rel.Observer so a Registry can report cache events to it.
type Collector struct {
	// API metrics
	apiRequests sync.Map // map[string]*uint64 - method -> count
	apiErrors   sync.Map // map[string]*uint64 - method -> error count
	apiDuration sync.Map // map[string]*durationValue - method -> total duration in seconds

	// Relation cache events
	relationHits          sync.Map // map[string]*uint64 - relation -> hits
	relationMisses        sync.Map // map[string]*uint64 - relation -> misses
	relationInvalidations sync.Map // map[string]*uint64 - relation -> invalidations

	// Cache reference (optional, for querying cache-wide metrics)
	cache cache.Cache

	exporter *PrometheusExporter
}

var _ rel.Observer = (*Collector)(nil)

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits          uint64
	Misses        uint64
	HitRate       float64
	KeysCurrent   int64
	Evictions     uint64
	Invalidations uint64
}

// APIMetrics holds API request metrics.
type APIMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// RelationMetrics holds per-relation cache event counts.
type RelationMetrics struct {
	Hits          map[string]uint64
	Misses        map[string]uint64
	Invalidations map[string]uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// SetExporter forwards relation cache events to a Prometheus exporter.
func (c *Collector) SetExporter(e *PrometheusExporter) {
	c.exporter = e
}

// RecordRequest records an API request.
func (c *Collector) RecordRequest(method string) {
	counter := c.getOrCreateCounter(&c.apiRequests, method)
	atomic.AddUint64(counter, 1)
}

// RecordError records an API error.
func (c *Collector) RecordError(method string) {
	counter := c.getOrCreateCounter(&c.apiErrors, method)
	atomic.AddUint64(counter, 1)
}

// RecordDuration records the duration of an API call in seconds.
func (c *Collector) RecordDuration(method string, durationSeconds float64) {
	val, _ := c.apiDuration.LoadOrStore(method, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RelationCacheHit implements rel.Observer.
func (c *Collector) RelationCacheHit(relation string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.relationHits, relation), 1)
	if c.exporter != nil {
		c.exporter.RecordCacheHit(relation)
	}
}

// RelationCacheMiss implements rel.Observer.
func (c *Collector) RelationCacheMiss(relation string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.relationMisses, relation), 1)
	if c.exporter != nil {
		c.exporter.RecordCacheMiss(relation)
	}
}

// RelationInvalidated implements rel.Observer.
func (c *Collector) RelationInvalidated(relation string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.relationInvalidations, relation), 1)
	if c.exporter != nil {
		c.exporter.RecordInvalidation(relation)
	}
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	return &CacheMetrics{
		Hits:          metrics.Hits,
		Misses:        metrics.Misses,
		HitRate:       metrics.HitRate(),
		KeysCurrent:   int64(c.cache.Len()),
		Evictions:     metrics.KeysEvicted,
		Invalidations: metrics.KeysInvalidated,
	}
}

// GetAPIMetrics returns current API metrics.
func (c *Collector) GetAPIMetrics() *APIMetrics {
	result := &APIMetrics{
		RequestCounts:        loadCounters(&c.apiRequests),
		ErrorCounts:          loadCounters(&c.apiErrors),
		TotalDurationSeconds: make(map[string]float64),
	}

	// Collect duration totals
	c.apiDuration.Range(func(key, value interface{}) bool {
		method := key.(string)
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[method] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// GetRelationMetrics returns per-relation cache event counts.
func (c *Collector) GetRelationMetrics() *RelationMetrics {
	return &RelationMetrics{
		Hits:          loadCounters(&c.relationHits),
		Misses:        loadCounters(&c.relationMisses),
		Invalidations: loadCounters(&c.relationInvalidations),
	}
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}

func loadCounters(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return out
}

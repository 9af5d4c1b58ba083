package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	// Prometheus metrics
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheHitRate       prometheus.Gauge
	cacheKeys          prometheus.Gauge
	cacheEvictions     prometheus.Gauge
	grpcRequests       *prometheus.CounterVec
	grpcDuration       *prometheus.HistogramVec
	grpcErrors         *prometheus.CounterVec
}

// NewPrometheusExporter creates a new Prometheus exporter registered with reg.
// Pass prometheus.DefaultRegisterer to expose the metrics on the default handler.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)
	return &PrometheusExporter{
		collector: collector,
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relata_relation_cache_hits_total",
				Help: "Total number of relation cache hits",
			},
			[]string{"relation"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relata_relation_cache_misses_total",
				Help: "Total number of relation cache misses",
			},
			[]string{"relation"},
		),
		cacheInvalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relata_relation_cache_invalidations_total",
				Help: "Total number of relation cache entries dropped by an observable mutation",
			},
			[]string{"relation"},
		),
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relata_relation_cache_hit_rate",
			Help: "Current cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relata_relation_cache_keys_current",
			Help: "Current number of memoized relation results",
		}),
		cacheEvictions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relata_relation_cache_evictions",
			Help: "Number of relation results evicted by the cache size bound",
		}),
		grpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relata_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method"},
		),
		grpcDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relata_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"method"},
		),
		grpcErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relata_grpc_errors_total",
				Help: "Total number of gRPC errors",
			},
			[]string{"method"},
		),
	}
}

// Update updates Gauge metrics from the collector.
// Counters are updated as events happen, so only gauges are refreshed here.
// This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
	e.cacheEvictions.Set(float64(cacheMetrics.Evictions))
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(method string) {
	e.grpcRequests.WithLabelValues(method).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(method string, durationSeconds float64) {
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordError records an error in Prometheus.
func (e *PrometheusExporter) RecordError(method string) {
	e.grpcErrors.WithLabelValues(method).Inc()
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit(relation string) {
	e.cacheHits.WithLabelValues(relation).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(relation string) {
	e.cacheMisses.WithLabelValues(relation).Inc()
}

// RecordInvalidation records an invalidated relation result.
func (e *PrometheusExporter) RecordInvalidation(relation string) {
	e.cacheInvalidations.WithLabelValues(relation).Inc()
}

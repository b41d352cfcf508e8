// Package prometheus provides the Prometheus implementations of the
// metrics interfaces declared by the cache, transport and device packages.
//
// Importing this package registers the constructors with pkg/metrics.
// Each constructor registers its collectors on the process registry, so it
// must be called at most once per registry.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoraid/pkg/cache"
	"github.com/marmos91/dittoraid/pkg/metrics"
)

func init() {
	metrics.RegisterCacheMetricsConstructor(NewCacheMetrics)
	metrics.RegisterTransportMetricsConstructor(NewTransportMetrics)
	metrics.RegisterServerMetricsConstructor(NewServerMetrics)
	metrics.RegisterStoreMetricsConstructor(NewStoreMetrics)
}

// cacheMetrics is the Prometheus implementation of cache.CacheMetrics.
type cacheMetrics struct {
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	inserts        prometheus.Counter
	evictions      prometheus.Counter
	entries        prometheus.Gauge
	capacity       prometheus.Gauge
}

// NewCacheMetrics creates a new Prometheus-backed CacheMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() cache.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoraid_cache_lookups_total",
				Help: "Total number of block cache lookups by result",
			},
			[]string{"result"}, // "hit", "miss"
		),
		lookupDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittoraid_cache_lookup_duration_microseconds",
				Help: "Duration of block cache lookups in microseconds",
				Buckets: []float64{
					0.1, // tiny tables
					0.5,
					1,
					5,
					10,
					50, // full scan of a 4096-entry table
					100,
				},
			},
		),
		inserts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoraid_cache_inserts_total",
				Help: "Total number of blocks inserted into the cache",
			},
		),
		evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoraid_cache_evictions_total",
				Help: "Total number of valid entries replaced by an insert",
			},
		),
		entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoraid_cache_entries",
				Help: "Current number of valid cache entries",
			},
		),
		capacity: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoraid_cache_capacity_entries",
				Help: "Cache table size in entries, 0 when no cache exists",
			},
		),
	}
}

func (m *cacheMetrics) ObserveLookup(hit bool, duration time.Duration) {
	if m == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(result).Inc()
	m.lookupDuration.Observe(float64(duration.Nanoseconds()) / 1000)
}

func (m *cacheMetrics) RecordInsert(evicted bool) {
	if m == nil {
		return
	}

	m.inserts.Inc()
	if evicted {
		m.evictions.Inc()
	}
}

func (m *cacheMetrics) RecordOccupancy(entries int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(entries))
}

func (m *cacheMetrics) RecordCapacity(entries int) {
	if m == nil {
		return
	}
	m.capacity.Set(float64(entries))
}

package metrics

import "github.com/marmos91/dittoraid/pkg/cache"

// NewCacheMetrics creates a Prometheus-backed cache.CacheMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or the
// prometheus package was not linked in. Pass the result straight to
// cache.New; a nil value disables instrumentation.
func NewCacheMetrics() cache.CacheMetrics {
	if !IsEnabled() || newPrometheusCacheMetrics == nil {
		return nil
	}
	return newPrometheusCacheMetrics()
}

// newPrometheusCacheMetrics is set by pkg/metrics/prometheus.
// The indirection avoids an import cycle.
var newPrometheusCacheMetrics func() cache.CacheMetrics

// RegisterCacheMetricsConstructor registers the Prometheus cache metrics constructor.
func RegisterCacheMetricsConstructor(constructor func() cache.CacheMetrics) {
	newPrometheusCacheMetrics = constructor
}

package metrics

import (
	"github.com/marmos91/dittoraid/pkg/device/server"
	"github.com/marmos91/dittoraid/pkg/device/store"
)

// NewServerMetrics creates a Prometheus-backed server.Metrics, or nil when
// metrics are disabled.
func NewServerMetrics() server.Metrics {
	if !IsEnabled() || newPrometheusServerMetrics == nil {
		return nil
	}
	return newPrometheusServerMetrics()
}

// NewStoreMetrics creates a Prometheus-backed store.Metrics, or nil when
// metrics are disabled.
func NewStoreMetrics() store.Metrics {
	if !IsEnabled() || newPrometheusStoreMetrics == nil {
		return nil
	}
	return newPrometheusStoreMetrics()
}

var (
	newPrometheusServerMetrics func() server.Metrics
	newPrometheusStoreMetrics  func() store.Metrics
)

// RegisterServerMetricsConstructor registers the Prometheus device server metrics constructor.
func RegisterServerMetricsConstructor(constructor func() server.Metrics) {
	newPrometheusServerMetrics = constructor
}

// RegisterStoreMetricsConstructor registers the Prometheus block store metrics constructor.
func RegisterStoreMetricsConstructor(constructor func() store.Metrics) {
	newPrometheusStoreMetrics = constructor
}

package metrics

import "github.com/marmos91/dittoraid/pkg/transport"

// NewTransportMetrics creates a Prometheus-backed transport.Metrics, or nil
// when metrics are disabled.
func NewTransportMetrics() transport.Metrics {
	if !IsEnabled() || newPrometheusTransportMetrics == nil {
		return nil
	}
	return newPrometheusTransportMetrics()
}

var newPrometheusTransportMetrics func() transport.Metrics

// RegisterTransportMetricsConstructor registers the Prometheus transport metrics constructor.
func RegisterTransportMetricsConstructor(constructor func() transport.Metrics) {
	newPrometheusTransportMetrics = constructor
}

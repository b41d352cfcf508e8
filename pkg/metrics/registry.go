// Package metrics wires optional Prometheus instrumentation into the cache,
// transport and device packages.
//
// Metrics are disabled until InitRegistry is called. While disabled every
// constructor returns nil, and the instrumented packages treat a nil
// metrics value as "do nothing", so there is zero overhead.
//
// The Prometheus implementations live in pkg/metrics/prometheus and register
// themselves here during package initialization. Import that package for
// side effects from the binary that enables metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process registry with Go runtime and process
// collectors. Calling it again returns the existing registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Reset drops the registry and disables metrics. Tests use it to get a
// clean registry per case.
func Reset() {
	mu.Lock()
	registry = nil
	mu.Unlock()
}

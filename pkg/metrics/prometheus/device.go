package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoraid/pkg/device/server"
	"github.com/marmos91/dittoraid/pkg/device/store"
	"github.com/marmos91/dittoraid/pkg/jbod"
	"github.com/marmos91/dittoraid/pkg/metrics"
)

// serverMetrics is the Prometheus implementation of server.Metrics.
type serverMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	connections     prometheus.Gauge
}

// NewServerMetrics creates a new Prometheus-backed server.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewServerMetrics() server.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &serverMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoraid_device_requests_total",
				Help: "Total number of opcodes executed by the device by command and status",
			},
			[]string{"command", "status"}, // status: "success", "failed"
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittoraid_device_request_duration_milliseconds",
				Help:    "Duration of opcode execution including the response write",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500},
			},
			[]string{"command"},
		),
		connections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoraid_device_active_connections",
				Help: "Current number of open device sessions",
			},
		),
	}
}

func (m *serverMetrics) ObserveRequest(cmd jbod.Command, failed bool, duration time.Duration) {
	if m == nil {
		return
	}

	status := "success"
	if failed {
		status = "failed"
	}
	m.requests.WithLabelValues(cmd.String(), status).Inc()
	m.requestDuration.WithLabelValues(cmd.String()).Observe(duration.Seconds() * 1000)
}

func (m *serverMetrics) RecordConnections(active int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(active))
}

// storeMetrics is the Prometheus implementation of store.Metrics.
type storeMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewStoreMetrics creates a new Prometheus-backed store.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics() store.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &storeMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoraid_store_operations_total",
				Help: "Total number of block store operations by backend, operation and status",
			},
			[]string{"store_type", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoraid_store_operation_duration_milliseconds",
				Help: "Duration of block store operations in milliseconds",
				Buckets: []float64{
					0.01, // memory
					0.1,
					1, // badger
					5,
					10,
					50, // s3
					100,
					500,
					1000,
				},
			},
			[]string{"store_type", "operation"},
		),
	}
}

func (m *storeMetrics) ObserveOperation(storeType, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(storeType, operation, status).Inc()
	m.operationDuration.WithLabelValues(storeType, operation).Observe(duration.Seconds() * 1000)
}

package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoraid/pkg/jbod"
	"github.com/marmos91/dittoraid/pkg/metrics"
	"github.com/marmos91/dittoraid/pkg/transport"
)

// transportMetrics is the Prometheus implementation of transport.Metrics.
type transportMetrics struct {
	roundTrips        *prometheus.CounterVec
	roundTripDuration *prometheus.HistogramVec
	bytes             *prometheus.CounterVec
}

// NewTransportMetrics creates a new Prometheus-backed transport.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewTransportMetrics() transport.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &transportMetrics{
		roundTrips: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoraid_transport_round_trips_total",
				Help: "Total number of device round trips by command and status",
			},
			[]string{"command", "status"},
		),
		roundTripDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoraid_transport_round_trip_duration_milliseconds",
				Help: "Duration of device round trips in milliseconds",
				Buckets: []float64{
					0.05, // loopback
					0.1,
					0.5,
					1,
					5, // LAN
					10,
					50,
					100,
					500, // slow remote store behind the device
				},
			},
			[]string{"command"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoraid_transport_bytes_total",
				Help: "Total bytes exchanged with the device by direction",
			},
			[]string{"direction"}, // "sent", "received"
		),
	}
}

func (m *transportMetrics) ObserveRoundTrip(cmd jbod.Command, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
		if code := jbod.CodeOf(err); code != 0 {
			status = code.String()
		}
	}
	m.roundTrips.WithLabelValues(cmd.String(), status).Inc()
	m.roundTripDuration.WithLabelValues(cmd.String()).Observe(duration.Seconds() * 1000)
}

func (m *transportMetrics) RecordBytes(sent, received int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues("sent").Add(float64(sent))
	m.bytes.WithLabelValues("received").Add(float64(received))
}

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core client-level metrics shared across components.
// Component-specific metrics live with their component and register through
// MetricsRegistry.Register.
type Metrics struct {
	// Connection metrics
	ConnectionState prometheus.Gauge
	ConnectsTotal   prometheus.Counter
	HandshakeFailed *prometheus.CounterVec

	// Frame metrics
	FramesReceived *prometheus.CounterVec
	FramesSent     prometheus.Counter

	// RPC metrics
	RequestsInFlight prometheus.Gauge
	RequestDuration  *prometheus.HistogramVec
	RequestErrors    *prometheus.CounterVec

	// Event metrics
	EventsDispatched *prometheus.CounterVec

	// Streaming metrics
	TurnsFinalized     *prometheus.CounterVec
	HeartbeatsFiltered prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pocketclaw",
			Subsystem: "connection",
			Name:      "state",
			Help:      "Connection state (0=disconnected, 1=connecting, 2=connected, 3=error)",
		}),

		ConnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocketclaw",
			Subsystem: "connection",
			Name:      "connects_total",
			Help:      "Total connection attempts",
		}),

		HandshakeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pocketclaw",
			Subsystem: "connection",
			Name:      "handshake_failures_total",
			Help:      "Handshake failures by reason",
		}, []string{"reason"}),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pocketclaw",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Total frames received by kind",
		}, []string{"kind"}),

		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocketclaw",
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "Total request frames sent",
		}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pocketclaw",
			Subsystem: "rpc",
			Name:      "requests_in_flight",
			Help:      "Requests currently awaiting a response",
		}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pocketclaw",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Round-trip duration of resolved requests",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),

		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pocketclaw",
			Subsystem: "rpc",
			Name:      "request_errors_total",
			Help:      "Request failures by reason",
		}, []string{"reason"}),

		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pocketclaw",
			Subsystem: "events",
			Name:      "dispatched_total",
			Help:      "Events fanned out to listeners, by event name",
		}, []string{"event"}),

		TurnsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pocketclaw",
			Subsystem: "streaming",
			Name:      "turns_finalized_total",
			Help:      "Streaming turns finalized, by winning source",
		}, []string{"source"}),

		HeartbeatsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocketclaw",
			Subsystem: "streaming",
			Name:      "heartbeats_filtered_total",
			Help:      "Synthetic heartbeat chunks discarded",
		}),
	}
}

// register registers all core metrics with the given registry
func (m *Metrics) register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.ConnectionState,
		m.ConnectsTotal,
		m.HandshakeFailed,
		m.FramesReceived,
		m.FramesSent,
		m.RequestsInFlight,
		m.RequestDuration,
		m.RequestErrors,
		m.EventsDispatched,
		m.TurnsFinalized,
		m.HeartbeatsFiltered,
	)
}

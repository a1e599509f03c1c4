package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the collaboration gateway.
//
// Naming convention: namespace_subsystem_name
// - namespace: collab_gateway (application-level grouping)
// - subsystem: socket, room, ordering, throttling (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms)
// - Counter: Cumulative events (ops forwarded, nacks, throttle hits)
// - Histogram: Latency distributions (connect pipeline, op round-trip)

var (
	// ActiveSocketConnections tracks the current number of live websocket connections.
	ActiveSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "collab_gateway",
		Subsystem: "socket",
		Name:      "connections_active",
		Help:      "Current number of active websocket connections",
	})

	// ActiveRooms tracks the current number of rooms with at least one member.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "collab_gateway",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active document rooms",
	})

	// ConnectAttempts counts connect_document outcomes by status.
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab_gateway",
		Subsystem: "socket",
		Name:      "connect_attempts_total",
		Help:      "Total connect_document attempts",
	}, []string{"status"})

	// OpsForwarded counts operation batches handed to an orderer connection.
	OpsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab_gateway",
		Subsystem: "ordering",
		Name:      "ops_forwarded_total",
		Help:      "Total operations forwarded to the orderer",
	}, []string{"tenant_id"})

	// SignalsBroadcast counts transient signals fanned out to rooms.
	SignalsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collab_gateway",
		Subsystem: "room",
		Name:      "signals_total",
		Help:      "Total signals broadcast to rooms",
	})

	// Nacks counts negative acknowledgments by nack type.
	Nacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab_gateway",
		Subsystem: "socket",
		Name:      "nacks_total",
		Help:      "Total nacks sent to submitting sockets",
	}, []string{"type"})

	// ThrottleExceeded counts throttle rejections by throttle group.
	ThrottleExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab_gateway",
		Subsystem: "throttling",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by a throttler",
	}, []string{"group"})

	// ConnectDuration tracks the end-to-end connect pipeline duration.
	ConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "collab_gateway",
		Subsystem: "socket",
		Name:      "connect_duration_seconds",
		Help:      "Time spent in the connect_document pipeline",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// OpRoundTripLatency records client-reported round-trip latency samples
	// extracted from RoundTrip trace arrays.
	OpRoundTripLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "collab_gateway",
		Subsystem: "ordering",
		Name:      "op_roundtrip_seconds",
		Help:      "Round-trip latency of operations as reported by clients",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// CircuitBreakerState reports the state of named circuit breakers (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collab_gateway",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// CircuitBreakerFailures counts calls rejected by an open circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab_gateway",
		Subsystem: "breaker",
		Name:      "failures_total",
		Help:      "Calls rejected while a circuit breaker was open",
	}, []string{"name"})
)

func IncConnection() {
	ActiveSocketConnections.Inc()
}

func DecConnection() {
	ActiveSocketConnections.Dec()
}

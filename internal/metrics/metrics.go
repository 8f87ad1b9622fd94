package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vitalpulse"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Metrics holds every collector the engine reports to.
type Metrics struct {
	// Sessions
	SessionsCurrent     prometheus.Gauge
	ConnectionsTotal    *prometheus.CounterVec // result: accepted/rejected/upgrade_failed
	SessionDuration     prometheus.Histogram
	InboundFramesTotal  *prometheus.CounterVec // type: text/binary/ping/pong/close
	ControlCommands     *prometheus.CounterVec // command: start/stop/unrecognized/malformed
	SendQueueRejections *prometheus.CounterVec // reason: queue_full/unknown
	WriteErrorsTotal    prometheus.Counter
	WriteDuration       prometheus.Histogram

	// Liveness
	LivenessTicksTotal    prometheus.Counter
	ProbesTotal           *prometheus.CounterVec // result: queued/failed
	EvictionsTotal        prometheus.Counter
	EvictionFailuresTotal prometheus.Counter

	// Broadcast
	BroadcastEnabled       prometheus.Gauge
	BroadcastTicksTotal    *prometheus.CounterVec // outcome: sent/disabled/empty/source_error
	BroadcastDeliveries    *prometheus.CounterVec // result: queued/failed
	BroadcastDuration      prometheus.Histogram
	BroadcastPayloadBytes  prometheus.Histogram
	TelemetrySourceLatency prometheus.Histogram

	// Telemetry source circuit breaker (0=closed, 1=half-open, 2=open)
	CircuitBreakerState prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "current",
			Help:      "Number of registered sessions in any state.",
		}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "connections_total",
			Help:      "WebSocket connection attempts by result.",
		}, []string{"result"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "duration_seconds",
			Help:      "Lifetime of sessions from registration to removal.",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		}),
		InboundFramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "inbound_frames_total",
			Help:      "Inbound WebSocket frames by type.",
		}, []string{"type"}),
		ControlCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "commands_total",
			Help:      "Control messages by interpreted command.",
		}, []string{"command"}),
		SendQueueRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "send_rejections_total",
			Help:      "Sends that could not be queued, by reason.",
		}, []string{"reason"}),
		WriteErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "write_errors_total",
			Help:      "Socket writes that failed on the per-connection send path.",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "write_duration_seconds",
			Help:      "Duration of individual socket writes.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		}),
		LivenessTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "ticks_total",
			Help:      "Liveness scheduler ticks.",
		}),
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "probes_total",
			Help:      "Liveness probes by enqueue result.",
		}, []string{"result"}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "evictions_total",
			Help:      "Sessions evicted as unresponsive.",
		}),
		EvictionFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "eviction_failures_total",
			Help:      "Eviction requests the transport could not carry out.",
		}),
		BroadcastEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "enabled",
			Help:      "1 while broadcasting is enabled, 0 otherwise.",
		}),
		BroadcastTicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "ticks_total",
			Help:      "Broadcast ticks by outcome.",
		}, []string{"outcome"}),
		BroadcastDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Per-session payload sends by result.",
		}, []string{"result"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "tick_duration_seconds",
			Help:      "Time spent generating and fanning out one payload.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		}),
		BroadcastPayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "payload_bytes",
			Help:      "Size of serialized broadcast payloads.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
		}),
		TelemetrySourceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "generate_duration_seconds",
			Help:      "Latency of telemetry source calls.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "circuit_breaker_state",
			Help:      "Telemetry source circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(
		m.SessionsCurrent,
		m.ConnectionsTotal,
		m.SessionDuration,
		m.InboundFramesTotal,
		m.ControlCommands,
		m.SendQueueRejections,
		m.WriteErrorsTotal,
		m.WriteDuration,
		m.LivenessTicksTotal,
		m.ProbesTotal,
		m.EvictionsTotal,
		m.EvictionFailuresTotal,
		m.BroadcastEnabled,
		m.BroadcastTicksTotal,
		m.BroadcastDeliveries,
		m.BroadcastDuration,
		m.BroadcastPayloadBytes,
		m.TelemetrySourceLatency,
		m.CircuitBreakerState,
	)
	return m
}

// NewForTest returns metrics registered on a throwaway registry.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}

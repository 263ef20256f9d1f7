package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

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

// RelayMetrics holds the counters and gauges maintained by relay sessions.
type RelayMetrics struct {
	ActiveSessions        prometheus.Gauge
	MessagesPublished     prometheus.Counter
	MessagesSkipped       prometheus.Counter
	CalculationsStarted   prometheus.Counter
	CalculationsAborted   prometheus.Counter
	CalculationsCompleted prometheus.Counter
	ResultsDropped        prometheus.Counter
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live relay sessions.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total number of messages published to the hub.",
		}),
		MessagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Messages lost by sessions that lagged behind the hub backlog.",
		}),
		CalculationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_started_total",
			Help:      "Background calculations started by trigger messages.",
		}),
		CalculationsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_aborted_total",
			Help:      "Background calculations cancelled before delivering a result.",
		}),
		CalculationsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_completed_total",
			Help:      "Background calculations whose result reached the session.",
		}),
		ResultsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_dropped_total",
			Help:      "Calculation results abandoned because the session channel stayed full.",
		}),
	}

	reg.MustRegister(
		m.ActiveSessions,
		m.MessagesPublished,
		m.MessagesSkipped,
		m.CalculationsStarted,
		m.CalculationsAborted,
		m.CalculationsCompleted,
		m.ResultsDropped,
	)
	return m
}

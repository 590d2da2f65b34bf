package runtime

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports round counters in Prometheus format.
type Metrics struct {
	registry *prometheus.Registry

	rounds             *prometheus.CounterVec
	roundLatency       *prometheus.HistogramVec
	recalled           *prometheus.HistogramVec
	generationFailures *prometheus.CounterVec
	active             prometheus.Gauge
}

// NewMetrics registers the round metrics on registry, or on a fresh one
// when registry is nil.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recall",
				Subsystem: "memory",
				Name:      "rounds_total",
				Help:      "Total number of chat rounds",
			},
			[]string{"engine", "status"},
		),
		roundLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "recall",
				Subsystem: "memory",
				Name:      "round_latency_seconds",
				Help:      "Chat round latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"engine"},
		),
		recalled: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "recall",
				Subsystem: "memory",
				Name:      "recalled_conversations",
				Help:      "Conversations injected as context per round",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
			},
			[]string{"engine"},
		),
		generationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recall",
				Subsystem: "memory",
				Name:      "generation_failures_total",
				Help:      "Rounds that fell back to the empty reply",
			},
			[]string{"engine"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "recall",
				Subsystem: "memory",
				Name:      "rounds_active",
				Help:      "Rounds currently in flight",
			},
		),
	}

	registry.MustRegister(m.rounds, m.roundLatency, m.recalled, m.generationFailures, m.active)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) roundStarted() {
	m.active.Inc()
}

func (m *Metrics) roundFinished(engine string, d time.Duration, recalled int, generationFailed bool, err error) {
	m.active.Dec()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.rounds.WithLabelValues(engine, status).Inc()
	m.roundLatency.WithLabelValues(engine).Observe(d.Seconds())
	if err != nil {
		return
	}
	m.recalled.WithLabelValues(engine).Observe(float64(recalled))
	if generationFailed {
		m.generationFailures.WithLabelValues(engine).Inc()
	}
}

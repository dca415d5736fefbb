package websocket

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NOAA-OWP/DMOD-sub000/metric"
)

// Metrics holds Prometheus metrics for the websocket server.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	messages          *prometheus.CounterVec
	responseLatency   prometheus.Histogram
	errors            *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry, name string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Open websocket connections",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Websocket connections accepted",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Request frames by outcome",
		}, []string{"outcome"}),
		responseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "response_latency_seconds",
			Help:      "Time from frame receipt to response write",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "errors_total",
			Help:      "Errors by type",
		}, []string{"type"}),
	}

	_ = registry.RegisterGauge(name, "connections_active", m.connectionsActive)
	_ = registry.RegisterCounter(name, "connections_total", m.connectionsTotal)
	_ = registry.RegisterCounterVec(name, "messages", m.messages)
	_ = registry.RegisterHistogram(name, "response_latency", m.responseLatency)
	_ = registry.RegisterCounterVec(name, "errors", m.errors)
	return m
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) messageReceived() {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("received").Inc()
}

func (m *Metrics) messageRejected() {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("rejected").Inc()
}

func (m *Metrics) responseSent(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("answered").Inc()
	m.responseLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) error(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

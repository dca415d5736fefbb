package natsclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NOAA-OWP/DMOD-sub000/metric"
)

type clientMetrics struct {
	operations *prometheus.CounterVec
	status     *prometheus.GaugeVec
	rtt        *prometheus.HistogramVec
}

func newClientMetrics(registry *metric.MetricsRegistry) *clientMetrics {
	if registry == nil {
		return nil
	}

	m := &clientMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "operations_total",
			Help:      "NATS operations by outcome",
		}, []string{"operation", "outcome"}),

		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "connection_status",
			Help:      "1 for the client's current connection status, 0 otherwise",
		}, []string{"status"}),

		rtt: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "rtt_seconds",
			Help:      "Round trip time to the server",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{}),
	}

	registry.RegisterCounterVec("natsclient", "operations", m.operations)
	registry.RegisterGaugeVec("natsclient", "connection_status", m.status)
	registry.RegisterHistogramVec("natsclient", "rtt", m.rtt)
	return m
}

func (m *clientMetrics) recordOperation(operation string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *clientMetrics) setStatus(s ConnectionStatus) {
	if m == nil {
		return
	}
	for _, candidate := range []ConnectionStatus{
		StatusDisconnected, StatusConnecting, StatusConnected, StatusReconnecting, StatusCircuitOpen,
	} {
		v := 0.0
		if candidate == s {
			v = 1
		}
		m.status.WithLabelValues(candidate.String()).Set(v)
	}
}

func (m *clientMetrics) observeRTT(d time.Duration) {
	if m == nil {
		return
	}
	m.rtt.WithLabelValues().Observe(d.Seconds())
}

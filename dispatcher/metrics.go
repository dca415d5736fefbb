package dispatcher

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NOAA-OWP/DMOD-sub000/message"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
	"github.com/NOAA-OWP/DMOD-sub000/resolver"
)

// statusAmbiguous labels bound requirements that had several candidates.
const statusAmbiguous = "AMBIGUOUS"

// Metrics holds Prometheus metrics for the dispatcher
type Metrics struct {
	requests         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	panics           prometheus.Counter
	resolverOutcomes *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry, name string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dispatcher",
			Name:      "requests_total",
			Help:      "Requests handled by event type, action and outcome",
		}, []string{"event_type", "action", "success"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "dispatcher",
			Name:      "request_duration_seconds",
			Help:      "Time to produce a response",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"event_type"}),

		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dispatcher",
			Name:      "panics_total",
			Help:      "Handler panics recovered",
		}),

		resolverOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "resolver",
			Name:      "outcomes_total",
			Help:      "Requirement resolutions by status",
		}, []string{"status"}),
	}

	registry.RegisterCounterVec(name, "requests", m.requests)
	registry.RegisterHistogramVec(name, "request_duration", m.duration)
	registry.RegisterCounter(name, "panics", m.panics)
	registry.RegisterCounterVec(name, "resolver_outcomes", m.resolverOutcomes)

	return m
}

func (m *Metrics) recordRequest(h message.Header, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	eventType := h.EventType.String()
	m.requests.WithLabelValues(eventType, string(h.Action), strconv.FormatBool(success)).Inc()
	m.duration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}

func (m *Metrics) recordPanic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}

func (m *Metrics) recordResolution(result *resolver.Result) {
	if m == nil {
		return
	}
	for _, b := range result.Bindings {
		status := string(b.Status)
		if b.Ambiguous && b.Status == resolver.StatusBound {
			status = statusAmbiguous
		}
		m.resolverOutcomes.WithLabelValues(status).Inc()
	}
}

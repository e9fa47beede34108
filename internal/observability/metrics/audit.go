package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuditMetrics covers the audit consumer: events handled per subject and
// the delay between event creation and handling.
type AuditMetrics struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	handleDuration *prometheus.HistogramVec
	eventLag       *prometheus.HistogramVec
}

func NewAuditMetrics(service string) *AuditMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "customs",
			Subsystem:   "audit",
			Name:        "events_total",
			Help:        "Total handled audit events by subject and status.",
			ConstLabels: serviceLabel,
		},
		[]string{"subject", "status"},
	)
	handleDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "customs",
			Subsystem:   "audit",
			Name:        "handle_duration_seconds",
			Help:        "Audit event handling duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: serviceLabel,
		},
		[]string{"subject"},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "customs",
			Subsystem:   "audit",
			Name:        "event_lag_seconds",
			Help:        "Delay between event creation and handling.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			ConstLabels: serviceLabel,
		},
		[]string{"subject"},
	)

	registry.MustRegister(eventsTotal, handleDuration, eventLag)

	return &AuditMetrics{
		registry:       registry,
		eventsTotal:    eventsTotal,
		handleDuration: handleDuration,
		eventLag:       eventLag,
	}
}

func (m *AuditMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *AuditMetrics) ObserveEvent(subject string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.eventsTotal.WithLabelValues(subject, status).Inc()
	m.handleDuration.WithLabelValues(subject).Observe(duration.Seconds())
}

func (m *AuditMetrics) ObserveEventLag(subject string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(subject).Observe(lag.Seconds())
}

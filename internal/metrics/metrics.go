// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exechistory"

// Metrics is the set of collectors shared by the history, the ledger, the
// notifier and the HTTP layer. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MessagesAppended    *prometheus.CounterVec
	MalformedReports    *prometheus.CounterVec
	LedgerSaves         *prometheus.CounterVec
	OpenOrders          prometheus.Gauge
	NotifyDropped       *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages appended to the live history, by direction.",
		}, []string{"direction"}),
		MalformedReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_reports_total",
			Help:      "Reports skipped by a derived view, by reason.",
		}, []string{"reason"}),
		LedgerSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_saves_total",
			Help:      "Persistent ledger save attempts, by result.",
		}, []string{"result"}),
		OpenOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_orders",
			Help:      "Orders whose resolved status is not terminal.",
		}),
		NotifyDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_dropped_total",
			Help:      "Change notifications dropped because a sink queue was full.",
		}, []string{"sink"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.MessagesAppended,
		m.MalformedReports,
		m.LedgerSaves,
		m.OpenOrders,
		m.NotifyDropped,
		m.HTTPRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Appended counts one appended message.
func (m *Metrics) Appended(direction string) {
	if m == nil {
		return
	}
	m.MessagesAppended.WithLabelValues(direction).Inc()
}

// Malformed counts one report skipped by a derived view.
func (m *Metrics) Malformed(reason string) {
	if m == nil {
		return
	}
	m.MalformedReports.WithLabelValues(reason).Inc()
}

// LedgerSave counts one ledger save with its result.
func (m *Metrics) LedgerSave(result string) {
	if m == nil {
		return
	}
	m.LedgerSaves.WithLabelValues(result).Inc()
}

// SetOpenOrders records the size of the open orders view.
func (m *Metrics) SetOpenOrders(n int) {
	if m == nil {
		return
	}
	m.OpenOrders.Set(float64(n))
}

// Dropped counts one notification dropped by sink.
func (m *Metrics) Dropped(sink string) {
	if m == nil {
		return
	}
	m.NotifyDropped.WithLabelValues(sink).Inc()
}

// ObserveRequest records the duration of one HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

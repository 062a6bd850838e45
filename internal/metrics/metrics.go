// Package metrics exposes Prometheus instrumentation for the ledger service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors, registered on a private registry
// so tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	eventsOut    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"op", "status"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "splitledger",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		eventsOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "events_published_total",
			Help:      "Ledger events handed to the event sink.",
		}),
	}
}

// OperationOK records a successful ledger operation.
func (m *Metrics) OperationOK(op string) {
	m.operations.WithLabelValues(op, "ok").Inc()
}

// OperationFailed records a rejected or failed ledger operation.
func (m *Metrics) OperationFailed(op string) {
	m.operations.WithLabelValues(op, "error").Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route, status string, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(seconds)
}

// EventPublished records one event emission.
func (m *Metrics) EventPublished() {
	m.eventsOut.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

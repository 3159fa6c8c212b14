// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the service records into.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	itemsReported prometheus.Counter
	emailsSent    *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	sectionLookup *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicmap_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civicmap_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "civicmap_http_in_flight_requests",
			Help: "Requests currently being served.",
		}),
		itemsReported: factory.NewCounter(prometheus.CounterOpts{
			Name: "civicmap_inventory_items_reported_total",
			Help: "Issue reports accepted.",
		}),
		emailsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicmap_emails_total",
			Help: "Emails by dispatch path and outcome.",
		}, []string{"path", "outcome"}),
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicmap_webhook_events_total",
			Help: "Payment webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		sectionLookup: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicmap_section_lookups_total",
			Help: "Section lookups by method.",
		}, []string{"method"}),
	}
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncrementInFlight marks a request entering the server.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request leaving the server.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordItemReported counts an accepted issue report.
func (m *Metrics) RecordItemReported() { m.itemsReported.Inc() }

// RecordEmail counts one email by dispatch path ("queue" or "sync") and
// outcome ("ok" or "error").
func (m *Metrics) RecordEmail(path, outcome string) {
	m.emailsSent.WithLabelValues(path, outcome).Inc()
}

// RecordWebhookEvent counts one webhook event.
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordSectionLookup counts a section match by method.
func (m *Metrics) RecordSectionLookup(method string) {
	m.sectionLookup.WithLabelValues(method).Inc()
}

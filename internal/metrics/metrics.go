// Package metrics holds the prometheus collectors shared by the client,
// the period resolver and the GPS engine. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "immich_gps"

type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	authFailures prometheus.Counter
	pages        *prometheus.CounterVec
	resolved     prometheus.Counter
	analyzed     *prometheus.CounterVec
	pastes       prometheus.Counter
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "immich_requests_total",
			Help:      "Requests sent to Immich by endpoint and status code (0 = network failure).",
		}, []string{"endpoint", "status"}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Responses that invalidated the held credential.",
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_pages_total",
			Help:      "Search pages requested during period scans by outcome.",
		}, []string{"outcome"}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_resolved_total",
			Help:      "Photos returned by period resolutions.",
		}),
		analyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_analyzed_total",
			Help:      "Photos processed by the GPS engine by result.",
		}, []string{"result"}),
		pastes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gps_pastes_total",
			Help:      "Coordinates pasted onto photos.",
		}),
	}
	m.registry.MustRegister(m.requests, m.authFailures, m.pages, m.resolved, m.analyzed, m.pastes)
	return m
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (m *Metrics) AuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

// Page outcomes: "ok", "empty", "error"
func (m *Metrics) Page(outcome string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Resolved(n int) {
	if m == nil {
		return
	}
	m.resolved.Add(float64(n))
}

// Analyzed results: "gps", "no_gps", "error"
func (m *Metrics) Analyzed(result string) {
	if m == nil {
		return
	}
	m.analyzed.WithLabelValues(result).Inc()
}

func (m *Metrics) Pasted() {
	if m == nil {
		return
	}
	m.pastes.Inc()
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the spectator API's Prometheus collectors. Each instance
// has its own registry so tests do not collide on the global one.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	streams         prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	return &Metrics{
		registry: registry,
		requests: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mission_api_requests_total",
				Help: "Total number of HTTP requests, partitioned by route and status.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mission_api_request_duration_seconds",
				Help:    "Duration of non-streaming HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		streams: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "mission_api_event_streams",
				Help: "Number of open run event streams.",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(method, path string, status int, seconds float64) {
	route := routeLabel(path)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	// Event streams stay open for minutes; their duration would swamp the histogram.
	if route != "/v1/runs/{id}/events" {
		m.requestDuration.WithLabelValues(route).Observe(seconds)
	}
}

func (m *Metrics) streamOpened() {
	if m != nil {
		m.streams.Inc()
	}
}

func (m *Metrics) streamClosed() {
	if m != nil {
		m.streams.Dec()
	}
}

// routeLabel collapses ids and file names so label cardinality stays fixed.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/health" || path == "/metrics":
		return path
	case len(parts) >= 2 && parts[0] == "v1" && parts[1] == "runs":
		switch {
		case len(parts) == 2:
			return "/v1/runs"
		case len(parts) == 3:
			return "/v1/runs/{id}"
		case len(parts) == 4 && parts[3] == "events":
			return "/v1/runs/{id}/events"
		}
	case len(parts) >= 2 && parts[0] == "v1" && parts[1] == "missions":
		if len(parts) == 2 {
			return "/v1/missions"
		}
		return "/v1/missions/{file}"
	}
	return "other"
}

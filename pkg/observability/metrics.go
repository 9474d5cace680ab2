// Package observability exposes the engine's Prometheus metrics. All
// collectors live on one registry so the /metrics endpoint and tests can be
// given isolated instances.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the engine records
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Command/query buses
	CommandTotal    *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	QueryTotal      *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec

	// Domain
	GraphConcepts      prometheus.Gauge
	GraphVersion       prometheus.Gauge
	AttemptsRecorded   prometheus.Counter
	PlansInstalled     prometheus.Counter
	WeightVersion      prometheus.Gauge
	TrajectoriesClosed prometheus.Counter
}

// NewMetrics creates a metrics bundle on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curricula_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curricula_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		CommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curricula_commands_total",
			Help: "Commands dispatched by type and outcome",
		}, []string{"type", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curricula_command_duration_seconds",
			Help:    "Command handler latency by type",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		QueryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curricula_queries_total",
			Help: "Queries dispatched by type and outcome",
		}, []string{"type", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curricula_query_duration_seconds",
			Help:    "Query handler latency by type",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		GraphConcepts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "curricula_graph_concepts",
			Help: "Concepts currently in the graph",
		}),
		GraphVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "curricula_graph_version",
			Help: "Graph commit version",
		}),
		AttemptsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curricula_attempts_recorded_total",
			Help: "Accepted assessment attempts",
		}),
		PlansInstalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curricula_plans_installed_total",
			Help: "Curriculum plans installed across all learners",
		}),
		WeightVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "curricula_weight_version",
			Help: "Currently published energy weight version",
		}),
		TrajectoriesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curricula_trajectories_closed_total",
			Help: "Learning trajectories closed, completed or abandoned",
		}),
	}

	registry.MustRegister(
		m.HTTPRequests, m.HTTPDuration,
		m.CommandTotal, m.CommandDuration,
		m.QueryTotal, m.QueryDuration,
		m.GraphConcepts, m.GraphVersion,
		m.AttemptsRecorded, m.PlansInstalled,
		m.WeightVersion, m.TrajectoriesClosed,
	)
	return m
}

// Handler returns the HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Package metrics implements the Metrics port with Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.Metrics = (*Prom)(nil)
	_ driven.Metrics = Noop{}
)

// Noop implements driven.Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveLookup(string, string)                   {}
func (Noop) ObserveSave(string)                             {}
func (Noop) ObserveMergeCheck(string)                       {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements driven.Metrics backed by Prometheus collectors registered
// on its own registry.
type Prom struct {
	registry    *prometheus.Registry
	lookups     *prometheus.CounterVec
	saves       *prometheus.CounterVec
	mergeChecks *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewProm creates collectors under namespace and registers them, together
// with the Go runtime and process collectors, on a fresh registry.
func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Multi-select lookups by entity kind and outcome",
		}, []string{"kind", "outcome"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_saves_total",
			Help:      "Editor policy saves by outcome",
		}, []string{"outcome"}),
		mergeChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_checks_total",
			Help:      "Merge eligibility recomputations by outcome",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	p.registry.MustRegister(
		p.lookups, p.saves, p.mergeChecks, p.requests, p.latency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return p
}

func (p *Prom) ObserveLookup(kind, outcome string) {
	p.lookups.WithLabelValues(kind, outcome).Inc()
}

func (p *Prom) ObserveSave(outcome string) {
	p.saves.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveMergeCheck(outcome string) {
	p.mergeChecks.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler returns an HTTP handler exposing this registry for /metrics.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Package metrics holds the Prometheus instruments for query traffic.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/zquery/internal/filter"
	"github.com/tinytelemetry/zquery/internal/model"
)

// Query outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeInvalidFilter = "invalid_filter"
	OutcomeInvalidMode   = "invalid_mode"
	OutcomeError         = "error"
)

// Metrics is a set of collectors registered on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	queries       *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	resolvedItems prometheus.Histogram
	filterCache   *prometheus.CounterVec
}

// New creates and registers the query collectors plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zquery_queries_total",
			Help: "Queries served, by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zquery_query_duration_seconds",
			Help:    "End-to-end query latency including inventory load and sample fetch.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		resolvedItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zquery_resolved_items",
			Help:    "Items selected per resolved filter.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		filterCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zquery_filter_cache_total",
			Help: "Compiled filter cache lookups, by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		m.queries,
		m.latency,
		m.resolvedItems,
		m.filterCache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveQuery records one finished query of op that started at start.
func (m *Metrics) ObserveQuery(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, filter.ErrInvalidFilterSyntax):
		outcome = OutcomeInvalidFilter
	case errors.Is(err, model.ErrInvalidMode):
		outcome = OutcomeInvalidMode
	default:
		outcome = OutcomeError
	}
	m.queries.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveResolved records the size of one resolution result.
func (m *Metrics) ObserveResolved(n int) {
	if m == nil {
		return
	}
	m.resolvedItems.Observe(float64(n))
}

// FilterCache records a compiled filter cache lookup.
func (m *Metrics) FilterCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.filterCache.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

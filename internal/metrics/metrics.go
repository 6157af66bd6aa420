// Package metrics exposes engine counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claude/freeflow/internal/models"
)

// Metrics owns a private registry so tests and multiple engines in one
// process do not collide on the global one. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	generations       *prometheus.CounterVec
	generationSeconds prometheus.Histogram
	balanceScore      prometheus.Histogram
	validations       *prometheus.CounterVec
	catalogMovements  prometheus.Gauge
	catalogReloads    *prometheus.CounterVec
}

// New registers the freeflow collectors plus Go runtime and process metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freeflow",
			Name:      "generations_total",
			Help:      "Sequence generation attempts by outcome and failing rule.",
		}, []string{"outcome", "rule"}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "freeflow",
			Name:      "generation_duration_seconds",
			Help:      "Wall time spent generating one sequence.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		balanceScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "freeflow",
			Name:      "balance_score",
			Help:      "Balance score of accepted sequences.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freeflow",
			Name:      "validations_total",
			Help:      "Validator verdicts by rule; valid sequences use rule=\"\".",
		}, []string{"valid", "rule"}),
		catalogMovements: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freeflow",
			Name:      "catalog_movements",
			Help:      "Movements in the current catalog snapshot.",
		}),
		catalogReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freeflow",
			Name:      "catalog_reloads_total",
			Help:      "Catalog reload attempts by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.generations,
		m.generationSeconds,
		m.balanceScore,
		m.validations,
		m.catalogMovements,
		m.catalogReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGeneration records one generation attempt. rule is empty on success.
func (m *Metrics) ObserveGeneration(rule string, elapsed time.Duration, score float64, ok bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !ok {
		outcome = "failed"
	}
	m.generations.WithLabelValues(outcome, rule).Inc()
	m.generationSeconds.Observe(elapsed.Seconds())
	if ok {
		m.balanceScore.Observe(score)
	}
}

// ObserveVerdict records a validator verdict.
func (m *Metrics) ObserveVerdict(v models.Verdict) {
	if m == nil {
		return
	}
	valid := "false"
	if v.Valid {
		valid = "true"
	}
	m.validations.WithLabelValues(valid, v.Rule).Inc()
}

// CatalogLoaded records a reload attempt and, on success, the catalog size.
func (m *Metrics) CatalogLoaded(movements int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.catalogReloads.WithLabelValues("error").Inc()
		return
	}
	m.catalogReloads.WithLabelValues("ok").Inc()
	m.catalogMovements.Set(float64(movements))
}

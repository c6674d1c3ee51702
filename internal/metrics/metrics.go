// Package metrics provides Prometheus metrics for the resource resolution engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one resolution service. Each instance owns
// its registry so independent services (and tests) never share counters.
type Metrics struct {
	registry *prometheus.Registry

	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheEvictions  *prometheus.CounterVec
	CacheEntries    prometheus.Gauge
	Batches         prometheus.Counter
	BatchRetries    prometheus.Counter
	BatchFailures   prometheus.Counter
	PatternFailures prometheus.Counter
	FilesResolved   prometheus.Counter
	Invalidations   prometheus.Counter
	ActiveWatches   prometheus.Gauge
	ResolveDuration *prometheus.HistogramVec
}

// New creates a metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "agentctx_cache_hits_total",
			Help: "Resolutions served from the result cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "agentctx_cache_misses_total",
			Help: "Resolutions that required filesystem work",
		}),
		CacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentctx_cache_evictions_total",
			Help: "Cache entries removed, by reason",
		}, []string{"reason"}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentctx_cache_entries",
			Help: "Entries currently held in the result cache",
		}),
		Batches: f.NewCounter(prometheus.CounterOpts{
			Name: "agentctx_batches_total",
			Help: "Pattern batches resolved successfully",
		}),
		BatchRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "agentctx_batch_retries_total",
			Help: "Batch attempts retried after a systemic failure",
		}),
		BatchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "agentctx_batch_failures_total",
			Help: "Batches that exhausted their retry budget",
		}),
		PatternFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "agentctx_pattern_failures_total",
			Help: "Patterns that contributed zero records because of an error",
		}),
		FilesResolved: f.NewCounter(prometheus.CounterOpts{
			Name: "agentctx_files_resolved_total",
			Help: "File records produced by resolution",
		}),
		Invalidations: f.NewCounter(prometheus.CounterOpts{
			Name: "agentctx_invalidations_total",
			Help: "Cache invalidations triggered by filesystem changes",
		}),
		ActiveWatches: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentctx_active_watch_sets",
			Help: "Agents with a live watch set",
		}),
		ResolveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentctx_resolve_duration_seconds",
			Help:    "Time to resolve an agent's resources",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes prometheus instrumentation for the cache, the
// upstream transport and the search orchestrator.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/colthorp/prospect/internal/cache"
)

// Prometheus implements cache.Metrics, api.Observer and search.Metrics.
type Prometheus struct {
	CacheHits          *prometheus.CounterVec
	CacheMisses        prometheus.Counter
	CacheEvictions     *prometheus.CounterVec
	CacheExpirations   *prometheus.CounterVec
	CacheWriteErrors   prometheus.Counter
	CacheDroppedWrites prometheus.Counter

	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	SearchSplits         prometheus.Counter
	SearchFailedBranches prometheus.Counter
	SearchDuration       *prometheus.HistogramVec
}

// New registers every collector with reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		// Cache metrics
		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospect_cache_hits_total",
				Help: "Cache reads served, by tier",
			},
			[]string{"tier"},
		),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "prospect_cache_misses_total",
			Help: "Cache reads that found no live entry in either tier",
		}),
		CacheEvictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospect_cache_evictions_total",
				Help: "Entries evicted to make room, by tier",
			},
			[]string{"tier"},
		),
		CacheExpirations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospect_cache_expirations_total",
				Help: "Expired entries removed, by tier",
			},
			[]string{"tier"},
		),
		CacheWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "prospect_cache_durable_write_errors_total",
			Help: "Background durable writes that failed",
		}),
		CacheDroppedWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "prospect_cache_dropped_writes_total",
			Help: "Durable writes dropped because the queue was full",
		}),

		// Upstream metrics
		UpstreamRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospect_upstream_requests_total",
				Help: "Upstream API requests, by endpoint and HTTP status (0 for transport errors)",
			},
			[]string{"endpoint", "status"},
		),
		UpstreamDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prospect_upstream_request_duration_seconds",
				Help:    "Upstream API request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"endpoint"},
		),

		// Search metrics
		SearchSplits: f.NewCounter(prometheus.CounterOpts{
			Name: "prospect_search_range_splits_total",
			Help: "Rating ranges bisected after a capacity-exceeded response",
		}),
		SearchFailedBranches: f.NewCounter(prometheus.CounterOpts{
			Name: "prospect_search_failed_branches_total",
			Help: "Range partitions replaced by an empty partial result",
		}),
		SearchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prospect_search_duration_seconds",
				Help:    "End-to-end search duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
			},
			[]string{"shape"},
		),
	}
}

func (p *Prometheus) Hit(tier cache.Tier)      { p.CacheHits.WithLabelValues(string(tier)).Inc() }
func (p *Prometheus) Miss()                    { p.CacheMisses.Inc() }
func (p *Prometheus) Eviction(tier cache.Tier) { p.CacheEvictions.WithLabelValues(string(tier)).Inc() }
func (p *Prometheus) Expire(tier cache.Tier)   { p.CacheExpirations.WithLabelValues(string(tier)).Inc() }
func (p *Prometheus) WriteError()              { p.CacheWriteErrors.Inc() }
func (p *Prometheus) DroppedWrite()            { p.CacheDroppedWrites.Inc() }

// ObserveRequest records one upstream call.
func (p *Prometheus) ObserveRequest(endpoint string, status int, d time.Duration) {
	p.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	p.UpstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RangeSplit records a bisection.
func (p *Prometheus) RangeSplit() { p.SearchSplits.Inc() }

// BranchFailed records a degraded partition.
func (p *Prometheus) BranchFailed() { p.SearchFailedBranches.Inc() }

// SearchCompleted records a finished search.
func (p *Prometheus) SearchCompleted(shape string, d time.Duration) {
	p.SearchDuration.WithLabelValues(shape).Observe(d.Seconds())
}

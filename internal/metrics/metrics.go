// Package metrics declares the Prometheus instruments exported by the
// proxy: cache hit/miss counters and cache size/item gauges, both labeled
// by chain, plus dispatcher-level upstream instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpccache_cache_hits_total",
		Help: "The total number of cache hits, by chain and method.",
	}, []string{"chain", "method"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpccache_cache_misses_total",
		Help: "The total number of cache misses, by chain and method.",
	}, []string{"chain", "method"})

	CacheSizeBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpccache_cache_size_bytes",
		Help: "The current size of the cache in bytes, by chain.",
	}, []string{"chain"})

	CacheItemsCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpccache_cache_items_count",
		Help: "The current number of cached items, by chain.",
	}, []string{"chain"})

	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpccache_upstream_request_duration_seconds",
		Help:    "Latency of upstream JSON-RPC batch round-trips, by chain.",
		Buckets: prometheus.DefBuckets,
	}, []string{"chain"})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpccache_upstream_errors_total",
		Help: "The total number of failed upstream round-trips, by chain.",
	}, []string{"chain"})
)

// Observer adapts the package-level counters to the dispatcher's small
// Observer interface, so the dispatcher itself never imports Prometheus.
type Observer struct{}

func (Observer) ObserveHit(chain, method string) {
	CacheHits.WithLabelValues(chain, method).Inc()
}

func (Observer) ObserveMiss(chain, method string) {
	CacheMisses.WithLabelValues(chain, method).Inc()
}

func (Observer) ObserveUpstream(chain string, duration time.Duration, err error) {
	UpstreamRequestDuration.WithLabelValues(chain).Observe(duration.Seconds())
	if err != nil {
		UpstreamErrors.WithLabelValues(chain).Inc()
	}
}

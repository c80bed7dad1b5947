// Package metrics exposes Prometheus instrumentation for the market data layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MarketMetrics holds the counters the data client records on every request.
type MarketMetrics struct {
	// Cache effectiveness per operation
	CacheHitsTotal   prometheus.CounterVec
	CacheMissesTotal prometheus.CounterVec

	// Upstream traffic per exchange and operation
	UpstreamCallsTotal     prometheus.CounterVec
	UpstreamErrorsTotal    prometheus.CounterVec
	UpstreamThrottledTotal prometheus.CounterVec
}

// NewMarketMetrics creates and registers the metric set on the default registry.
func NewMarketMetrics() *MarketMetrics {
	return &MarketMetrics{
		CacheHitsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_cache_hits_total",
				Help: "Number of data client requests answered from the TTL cache",
			},
			[]string{"operation"},
		),

		CacheMissesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_cache_misses_total",
				Help: "Number of data client requests that required an upstream call",
			},
			[]string{"operation"},
		),

		UpstreamCallsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_upstream_calls_total",
				Help: "Number of calls issued to exchange APIs",
			},
			[]string{"exchange", "operation"},
		),

		UpstreamErrorsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_upstream_errors_total",
				Help: "Number of failed exchange API calls, excluding throttling",
			},
			[]string{"exchange", "operation"},
		),

		UpstreamThrottledTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_upstream_throttled_total",
				Help: "Number of exchange API calls rejected by upstream rate limits",
			},
			[]string{"exchange", "operation"},
		),
	}
}

// RecordCacheHit records a cache hit for an operation.
func (m *MarketMetrics) RecordCacheHit(operation string) {
	m.CacheHitsTotal.WithLabelValues(operation).Inc()
}

// RecordCacheMiss records a cache miss for an operation.
func (m *MarketMetrics) RecordCacheMiss(operation string) {
	m.CacheMissesTotal.WithLabelValues(operation).Inc()
}

// RecordUpstreamCall records one issued exchange API call.
func (m *MarketMetrics) RecordUpstreamCall(exchange, operation string) {
	m.UpstreamCallsTotal.WithLabelValues(exchange, operation).Inc()
}

// RecordUpstreamError records a failed exchange API call.
func (m *MarketMetrics) RecordUpstreamError(exchange, operation string) {
	m.UpstreamErrorsTotal.WithLabelValues(exchange, operation).Inc()
}

// RecordUpstreamThrottled records an exchange API call rejected by rate limits.
func (m *MarketMetrics) RecordUpstreamThrottled(exchange, operation string) {
	m.UpstreamThrottledTotal.WithLabelValues(exchange, operation).Inc()
}

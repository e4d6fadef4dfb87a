// Package metrics holds Prometheus instruments used across the service.
// All collectors are registered with the global registry, so importing
// this package anywhere is enough for them to show up on /metrics once
// internal/api mounts promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Ingestion / decode.
	DecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darwin_decoded_total",
			Help: "Cumulative push-port messages decoded, by classification.",
		}, []string{"kind"})

	CancellationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "darwin_cancellations_total",
			Help: "Cumulative cancellation events decoded from the push-port.",
		})

	// Enrichment.
	EnrichedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrichment_enriched_total",
			Help: "Cumulative cancellations successfully enriched from the Schedule Store.",
		})

	EnrichmentFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_failures_total",
			Help: "Cumulative enrichment misses, by reason.",
		}, []string{"reason"})

	// Cancellation Cache.
	CacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_size",
			Help: "Current number of cancellations held in the cache.",
		})

	CacheEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evicted_total",
			Help: "Cumulative cancellations evicted from the cache, by reason.",
		}, []string{"reason"})

	// STOMP client.
	StompState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stomp_state",
			Help: "Current STOMP client state, as a small integer (see stomp.State).",
		})

	StompReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stomp_reconnects_total",
			Help: "Cumulative STOMP reconnect attempts.",
		})

	// Query API.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Cumulative HTTP requests, by route and status class.",
		}, []string{"route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"})

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Cumulative requests rejected by the rate limiter, by bucket.",
		}, []string{"bucket"})
)

func init() {
	prometheus.MustRegister(
		DecodedTotal,
		CancellationsTotal,
		EnrichedTotal,
		EnrichmentFailuresTotal,
		CacheSize,
		CacheEvictedTotal,
		StompState,
		StompReconnectsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RateLimitedTotal,
	)
}

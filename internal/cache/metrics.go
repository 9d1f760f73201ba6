package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedmix_cache_requests_total",
			Help: "Cache lookups by result and miss reason",
		},
		[]string{"result", "reason"},
	)

	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedmix_cache_evictions_total",
			Help: "Cache entries removed, by reason",
		},
		[]string{"reason"},
	)

	cacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedmix_cache_size_bytes",
			Help: "Total size of cached payloads",
		},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedmix_cache_entries",
			Help: "Number of entries in the cache index",
		},
	)
)

// miss reasons
const (
	reasonNoSource    = "no_source"
	reasonNotFound    = "not_found"
	reasonExpired     = "expired"
	reasonStale       = "stale"
	reasonPayloadGone = "payload_missing"
	reasonCorrupt     = "corrupt_payload"
	reasonInvalidDate = "invalid_date"
)

// eviction reasons
const (
	evictInvalidated = "invalidated"
	evictExpired     = "expired"
	evictAged        = "aged"
	evictSizeLimit   = "size_limit"
)

func recordHit() {
	cacheRequests.WithLabelValues("hit", "").Inc()
}

func recordMiss(reason string) {
	cacheRequests.WithLabelValues("miss", reason).Inc()
}

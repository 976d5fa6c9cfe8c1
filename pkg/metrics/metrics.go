package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheAdmissions records cache() outcomes (stored|rejected|failed).
	CacheAdmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_cache_admissions_total",
			Help: "Total number of cache admission attempts",
		},
		[]string{"result"},
	)

	// CacheLookups counts get() outcomes (hit|miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"result"},
	)

	// CacheEvictions counts removed entries by trigger (capacity|expired|access|explicit).
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_cache_evictions_total",
			Help: "Total number of evicted cache entries",
		},
		[]string{"reason"},
	)

	// CacheBytes tracks the aggregate size of live cache entries.
	CacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attachvault_cache_bytes",
			Help: "Aggregate byte size of live cache entries",
		},
	)

	// SignedURLValidations counts signed URL checks by outcome
	// (ok|expired|forged|exhausted|missing).
	SignedURLValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_signed_url_validations_total",
			Help: "Total number of signed URL validations",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attachvault_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

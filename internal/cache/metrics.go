package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	tierMemory     = "memory"
	tierPersistent = "persistent"
)

var (
	hitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convertviral_cache_hits_total",
		Help: "Cache hits by serving tier",
	}, []string{"tier"})

	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convertviral_cache_misses_total",
		Help: "Lookups that missed both tiers",
	})

	storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convertviral_cache_store_errors_total",
		Help: "Persistent tier failures by operation",
	}, []string{"op"})

	decodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convertviral_cache_decode_errors_total",
		Help: "Cached payloads that could not be decoded and were treated as misses",
	})

	sweepEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convertviral_cache_sweep_evictions_total",
		Help: "Memory tier entries evicted by the background sweep",
	})

	breakerOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "convertviral_cache_breaker_open",
		Help: "1 while the persistent tier circuit is open",
	})
)

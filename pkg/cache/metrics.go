package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	HitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_cache_hits_total",
		Help: "Total number of cache hits",
	}, []string{"cache"})

	MissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_cache_misses_total",
		Help: "Total number of cache misses",
	}, []string{"cache"})

	SetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_cache_sets_total",
		Help: "Total number of accepted cache sets",
	}, []string{"cache"})

	// RejectedSetsTotal counts sets dropped by admission or contention.
	RejectedSetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_cache_rejected_sets_total",
		Help: "Total number of cache sets that were not admitted",
	}, []string{"cache"})

	DeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_cache_deletes_total",
		Help: "Total number of cache deletes",
	}, []string{"cache"})
)

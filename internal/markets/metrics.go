package markets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MetadataFetchDuration tracks metadata API fetch latency.
	MetadataFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_markets_metadata_fetch_duration_seconds",
		Help:    "Duration of metadata fetch from CLOB API",
		Buckets: prometheus.DefBuckets,
	})

	// MetadataFetchErrorsTotal tracks metadata fetch failures.
	MetadataFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_markets_metadata_fetch_errors_total",
		Help: "Total number of metadata fetch errors",
	})

	// MetadataCacheHitsTotal tracks cache hits for metadata.
	MetadataCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_markets_metadata_cache_hits_total",
		Help: "Total number of metadata cache hits",
	})

	// MetadataCacheMissesTotal tracks cache misses for metadata.
	MetadataCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_markets_metadata_cache_misses_total",
		Help: "Total number of metadata cache misses",
	})

	// GammaRequestsTotal tracks Gamma API requests by result.
	GammaRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_markets_gamma_requests_total",
			Help: "Total number of Gamma API requests",
		},
		[]string{"result"},
	)

	// MarketsRegistered tracks market registrations by status.
	MarketsRegistered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_markets_registered_total",
			Help: "Total number of market registrations",
		},
		[]string{"status"},
	)

	// TransitionsTotal tracks market status transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_markets_transitions_total",
			Help: "Total number of market status transitions",
		},
		[]string{"to"},
	)

	// WatcherPollErrorsTotal tracks failed resolution polls.
	WatcherPollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_markets_watcher_poll_errors_total",
		Help: "Total number of failed market status polls",
	})

	// HandlerRetriesTotal tracks failed resolution handler runs that were scheduled for retry.
	HandlerRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_markets_resolution_handler_failures_total",
		Help: "Total number of failed market resolution handler runs",
	})
)

package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks orderbook updates by event type.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_orderbook_updates_total",
			Help: "Total number of orderbook updates",
		},
		[]string{"event_type"},
	)

	// UpdatesIgnoredTotal tracks updates that could not be applied.
	UpdatesIgnoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_orderbook_updates_ignored_total",
			Help: "Total number of orderbook updates ignored",
		},
		[]string{"reason"},
	)

	// UpdatesDroppedTotal tracks market notifications dropped on a full channel.
	UpdatesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_orderbook_updates_dropped_total",
			Help: "Total number of market update notifications dropped",
		},
		[]string{"reason"},
	)

	// UpdateProcessingDuration tracks time spent applying one event.
	UpdateProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_orderbook_update_processing_seconds",
		Help:    "Time spent applying one orderbook event",
		Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
	})

	// SnapshotsTracked tracks the number of token books in memory.
	SnapshotsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_orderbook_snapshots_tracked",
		Help: "Number of token books tracked in memory",
	})

	// MarketsTracked tracks the number of paired markets.
	MarketsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_orderbook_markets_tracked",
		Help: "Number of markets tracked by the orderbook manager",
	})
)

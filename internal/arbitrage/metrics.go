package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsEmittedTotal tracks trading signals emitted.
	SignalsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_signals_emitted_total",
			Help: "Total number of trading signals emitted",
		},
		[]string{"strategy"},
	)

	// SignalsRejectedTotal tracks evaluations that produced no signal, by reason.
	SignalsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_signals_rejected_total",
			Help: "Total number of market evaluations rejected",
		},
		[]string{"reason"},
	)

	// SignalSpread tracks the spread of emitted signals.
	SignalSpread = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_signal_spread",
		Help:    "Spread (1 - combined ask) of emitted signals",
		Buckets: []float64{0.005, 0.01, 0.02, 0.03, 0.05, 0.08, 0.13, 0.2},
	})

	// SignalSizeShares tracks proposed signal sizes.
	SignalSizeShares = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_signal_size_shares",
		Help:    "Proposed shares per leg of emitted signals",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10),
	})

	// DetectionDurationSeconds tracks evaluation latency.
	DetectionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_detection_duration_seconds",
		Help:    "Duration of one market evaluation",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	// BookAgeSeconds tracks the age of evaluated books.
	BookAgeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_book_age_seconds",
		Help:    "Age of the older book at evaluation time",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

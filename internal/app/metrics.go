package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsDroppedTotal counts signals discarded because the executor was saturated.
	SignalsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_pipeline_signals_dropped_total",
		Help: "Total signals dropped because the signal channel was full",
	})

	// MarketsLoaded is the number of markets resolved at startup.
	MarketsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_app_markets_loaded",
		Help: "Markets loaded from configured slugs",
	})

	// MarketsRetiredTotal counts markets unsubscribed after closing.
	MarketsRetiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_app_markets_retired_total",
		Help: "Total markets whose books were dropped after they closed",
	})
)

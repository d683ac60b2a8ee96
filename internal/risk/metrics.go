package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerLevel is the current circuit-breaker level (0=normal .. 3=halt).
	BreakerLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_risk_breaker_level",
		Help: "Current circuit breaker level (0=normal, 1=warning, 2=caution, 3=halt)",
	})

	// LevelChangesTotal counts breaker transitions by target level.
	LevelChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_risk_level_changes_total",
		Help: "Total number of circuit breaker level changes",
	}, []string{"to"})

	// DecisionsTotal counts pre-trade decisions.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_risk_decisions_total",
		Help: "Pre-trade risk decisions by outcome",
	}, []string{"outcome"}) // approved, resized, rejected

	// RejectionsTotal counts rejections by reason.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_risk_rejections_total",
		Help: "Pre-trade rejections by reason",
	}, []string{"reason"})

	// DailyPnL is the ledger-derived realized P&L for the current UTC day.
	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_risk_daily_pnl_usd",
		Help: "Realized P&L for the current UTC day, summed from the ledger",
	})

	// DailyExposure is the capital committed today.
	DailyExposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_risk_daily_exposure_usd",
		Help: "Capital committed to positions during the current UTC day",
	})

	// Balance tracks the last fetched USDC balance.
	Balance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_risk_balance_usd",
		Help: "Last fetched collateral balance",
	})

	// BalanceCheckDuration tracks the time taken to fetch the balance.
	BalanceCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_risk_balance_check_duration_seconds",
		Help:    "Time taken to fetch the collateral balance",
		Buckets: prometheus.DefBuckets,
	})
)

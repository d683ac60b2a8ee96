package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks execution attempts by terminal state.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_execution_attempts_total",
			Help: "Total number of execution attempts by terminal state",
		},
		[]string{"mode", "state"},
	)

	// InFlightRejectionsTotal tracks signals dropped because their market was busy.
	InFlightRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_in_flight_rejections_total",
		Help: "Total number of signals dropped because an attempt was already running for the market",
	})

	// IntegrityViolationsTotal tracks signals whose price or size did not match their book.
	IntegrityViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_execution_integrity_violations_total",
			Help: "Total number of signals rejected for data-integrity violations",
		},
		[]string{"reason"},
	)

	// LegOrdersTotal tracks leg orders by purpose and result status.
	LegOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_execution_leg_orders_total",
			Help: "Total number of leg orders by purpose and status",
		},
		[]string{"purpose", "status"},
	)

	// LegRetriesTotal tracks resubmissions after transient failures.
	LegRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_leg_retries_total",
		Help: "Total number of leg resubmissions after transient failures",
	})

	// LegUnknownTotal tracks legs whose outcome was unknown when the timeout elapsed.
	LegUnknownTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_leg_unknown_total",
		Help: "Total number of legs treated as unfilled after a timeout or transport failure",
	})

	// LegLatencySeconds tracks exchange round-trip latency.
	LegLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_execution_leg_latency_seconds",
		Help:    "Latency of leg order submission",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// ExecutionDurationSeconds tracks the time from signal to terminal state.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_execution_duration_seconds",
		Help:    "Duration of an execution attempt",
		Buckets: prometheus.DefBuckets,
	})

	// HedgeRatio tracks the hedge ratio of positions after the entry legs.
	HedgeRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_execution_hedge_ratio",
		Help:    "Hedge ratio after the entry legs",
		Buckets: []float64{0.1, 0.25, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
	})

	// RebalanceAttemptsTotal tracks rebalance orders by action and result.
	RebalanceAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_execution_rebalance_attempts_total",
			Help: "Total number of rebalance orders by action and result",
		},
		[]string{"action", "result"},
	)

	// ExpectedProfitUSD tracks cumulative expected profit of hedged positions.
	ExpectedProfitUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_execution_expected_profit_usd",
			Help: "Cumulative expected profit of hedged positions",
		},
		[]string{"mode"},
	)

	// ReconcileActionsTotal tracks startup reconciliation actions.
	ReconcileActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_execution_reconcile_actions_total",
			Help: "Total number of reconciliation actions",
		},
		[]string{"action"},
	)
)

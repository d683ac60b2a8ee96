package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnqueuedTotal counts positions moved into the settlement queue.
	EnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_settlement_enqueued_total",
		Help: "Total positions queued for settlement",
	})

	// ClaimsTotal counts claim attempts by result.
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_settlement_claims_total",
		Help: "Total settlement claim attempts by result",
	}, []string{"result"}) // claimed, failed, gave_up, duplicate

	// ClaimDurationSeconds tracks claimer latency.
	ClaimDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_settlement_claim_duration_seconds",
		Help:    "Time spent claiming settlement proceeds",
		Buckets: []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120},
	})

	// DueEntries is the number of entries found due by the last sweep.
	DueEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_settlement_due_entries",
		Help: "Settlement entries due at the last sweep",
	})

	// ResolvedTotal counts positions closed without a claim, by kind.
	ResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_settlement_resolved_total",
		Help: "Total positions resolved without a claim",
	}, []string{"kind"}) // empty, written_off

	// ClaimProfitUSD is the distribution of realized claim profit.
	ClaimProfitUSD = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_settlement_claim_profit_usd",
		Help:    "Realized profit per claimed position in USD",
		Buckets: []float64{-50, -10, -1, 0, 0.1, 0.5, 1, 2, 5, 10, 50},
	})
)

package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// GasBalance tracks the MATIC balance available for gas.
	GasBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_wallet_gas_balance",
		Help: "Current MATIC balance in wallet (native units)",
	})

	// CollateralBalance tracks the USDC balance available for trading.
	CollateralBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_wallet_collateral_balance",
		Help: "Current USDC balance in wallet (USD)",
	})

	// CollateralAllowance tracks the USDC allowance approved to the exchange.
	CollateralAllowance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_wallet_collateral_allowance",
		Help: "USDC allowance approved to the exchange (USD)",
	})

	UpdateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_wallet_update_errors_total",
		Help: "Total number of failed wallet update attempts",
	})

	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_wallet_update_duration_seconds",
		Help:    "Time taken to fetch wallet data (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// LastUpdateTimestamp is the Unix time of the last successful update.
	LastUpdateTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_wallet_last_update_timestamp",
		Help: "Unix timestamp of last successful wallet update",
	})
)

package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BalanceSource fetches on-chain balances. *Client satisfies it.
type BalanceSource interface {
	GetBalances(ctx context.Context, owner common.Address) (*Balances, error)
}

// Tracker periodically fetches wallet balances and updates Prometheus metrics.
type Tracker struct {
	source       BalanceSource
	address      common.Address
	pollInterval time.Duration
	minGas       decimal.Decimal
	logger       *zap.Logger

	mu     sync.RWMutex
	latest *Balances
}

// Config holds tracker configuration.
type Config struct {
	Source       BalanceSource
	Address      common.Address
	PollInterval time.Duration
	// MinGas is the MATIC balance below which a warning is logged.
	MinGas decimal.Decimal
	Logger *zap.Logger
}

// New creates a new wallet tracker.
func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Source == nil {
		return nil, errors.New("balance source cannot be nil")
	}

	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	return &Tracker{
		source:       cfg.Source,
		address:      cfg.Address,
		pollInterval: cfg.PollInterval,
		minGas:       cfg.MinGas,
		logger:       cfg.Logger,
	}, nil
}

// Run starts the tracker polling loop (blocking).
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.String("address", t.address.Hex()))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	if err := t.poll(ctx); err != nil {
		t.logger.Error("initial-poll-failed", zap.Error(err))
		UpdateErrorsTotal.Inc()
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := t.poll(ctx); err != nil {
				t.logger.Error("poll-failed", zap.Error(err))
				UpdateErrorsTotal.Inc()
			}
		}
	}
}

// Latest returns the balances from the last successful poll, or nil.
func (t *Tracker) Latest() *Balances {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.latest == nil {
		return nil
	}
	b := *t.latest
	return &b
}

func (t *Tracker) poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	pollCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	balances, err := t.source.GetBalances(pollCtx, t.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	t.mu.Lock()
	t.latest = balances
	t.mu.Unlock()

	updateMetrics(balances)
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	if t.minGas.IsPositive() && balances.Gas.LessThan(t.minGas) {
		t.logger.Warn("low-gas-balance",
			zap.Stringer("gas", balances.Gas),
			zap.Stringer("min-gas", t.minGas))
	}

	t.logger.Debug("poll-complete",
		zap.Stringer("collateral", balances.Collateral),
		zap.Duration("duration", time.Since(start)))

	return nil
}

func updateMetrics(b *Balances) {
	GasBalance.Set(b.Gas.InexactFloat64())
	CollateralBalance.Set(b.Collateral.InexactFloat64())
	CollateralAllowance.Set(b.Allowance.InexactFloat64())
}

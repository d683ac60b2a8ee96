package websocket

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig holds the configuration for exponential backoff reconnection.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = up to 20% added
}

// ReconnectManager retries a connect function with capped exponential
// backoff and jitter.
type ReconnectManager struct {
	config ReconnectConfig
	logger *zap.Logger
	jitter func() float64
}

// NewReconnectManager creates a new reconnection manager with the specified config.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}

	return &ReconnectManager{
		config: cfg,
		logger: logger,
		jitter: rand.Float64,
	}
}

// Delay returns the wait before the given zero-based attempt.
func (rm *ReconnectManager) Delay(attempt int) time.Duration {
	base := float64(rm.config.InitialDelay) * math.Pow(rm.config.BackoffMultiplier, float64(attempt))
	if base > float64(rm.config.MaxDelay) {
		base = float64(rm.config.MaxDelay)
	}

	return time.Duration(base * (1 + rm.jitter()*rm.config.JitterPercent))
}

// Reconnect calls connect until it succeeds or ctx is done.
func (rm *ReconnectManager) Reconnect(ctx context.Context, connect func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		delay := rm.Delay(attempt)
		rm.logger.Info("attempting-reconnection",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		ReconnectAttemptsTotal.Inc()
		err := connect(ctx)
		if err == nil {
			rm.logger.Info("reconnection-successful", zap.Int("attempts", attempt+1))
			return nil
		}

		rm.logger.Warn("reconnection-failed", zap.Error(err))
		ReconnectFailuresTotal.Inc()
	}
}

// Package arbitrage detects dual-leg arbitrage in binary markets.
package arbitrage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/internal/pricing"
	"github.com/mselser95/dualleg-arb/internal/risk"
	"github.com/mselser95/dualleg-arb/internal/sizing"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

// StrategyName identifies the dual-leg detector.
const StrategyName = "dual-leg"

var (
	one = decimal.NewFromInt(1)

	// DefaultMinOrderSize is used when a market has none configured.
	DefaultMinOrderSize = decimal.NewFromInt(5)
)

// MarketSource looks up registered markets.
type MarketSource interface {
	Get(marketID string) (*types.Market, bool)
	ActiveIDs() []string
}

// CapitalSource provides the capital view used for sizing.
type CapitalSource interface {
	Capital(marketID string) risk.Capital
}

// Config holds detector configuration.
type Config struct {
	Enabled          bool
	MinSpread        decimal.Decimal
	MinTimeRemaining time.Duration
	MaxBookAge       time.Duration
	SlippageBuffer   decimal.Decimal
	Sizer            *sizing.Sizer
	Markets          MarketSource
	Capital          CapitalSource
	Logger           *zap.Logger
	Now              func() time.Time
}

// Detector emits a signal when YES and NO can be bought together for less
// than the guaranteed payout by at least the minimum spread.
type Detector struct {
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new dual-leg detector.
func New(cfg Config) (*Detector, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Sizer == nil {
		return nil, errors.New("sizer cannot be nil")
	}
	if cfg.Markets == nil {
		return nil, errors.New("market source cannot be nil")
	}
	if cfg.Capital == nil {
		return nil, errors.New("capital source cannot be nil")
	}
	if !cfg.MinSpread.IsPositive() {
		return nil, errors.New("min spread must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Detector{config: cfg, logger: cfg.Logger, now: now}, nil
}

// Name implements Strategy.
func (d *Detector) Name() string {
	return StrategyName
}

// Enabled implements Strategy.
func (d *Detector) Enabled() bool {
	return d.config.Enabled
}

// SubscribedMarkets implements Strategy. The detector watches every active market.
func (d *Detector) SubscribedMarkets() []string {
	return d.config.Markets.ActiveIDs()
}

// OnMarketData implements Strategy.
func (d *Detector) OnMarketData(book *types.MarketBook) []types.TradingSignal {
	start := time.Now()
	defer func() {
		DetectionDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	signal, reason := d.evaluate(book)
	if signal == nil {
		SignalsRejectedTotal.WithLabelValues(reason).Inc()
		return nil
	}

	SignalsEmittedTotal.WithLabelValues(StrategyName).Inc()
	SignalSpread.Observe(signal.Spread.InexactFloat64())
	SignalSizeShares.Observe(signal.Size().InexactFloat64())

	d.logger.Info("arbitrage-signal-detected",
		zap.String("signal-id", signal.ID),
		zap.String("market-id", signal.MarketID),
		zap.String("yes-ask", signal.Yes.BestAsk.String()),
		zap.String("no-ask", signal.No.BestAsk.String()),
		zap.String("spread", signal.Spread.String()),
		zap.String("shares", signal.Size().String()),
		zap.Int("tranches", signal.Tranches))

	return []types.TradingSignal{*signal}
}

// evaluate returns a signal or the reason there is none.
func (d *Detector) evaluate(book *types.MarketBook) (*types.TradingSignal, string) {
	if book == nil || book.Yes == nil || book.No == nil {
		return nil, "missing-book"
	}

	market, ok := d.config.Markets.Get(book.MarketID)
	if !ok {
		return nil, "unknown-market"
	}
	if market.Status != types.MarketActive {
		return nil, "market-not-active"
	}

	now := d.now()
	age := book.Age(now)
	BookAgeSeconds.Observe(age.Seconds())
	if d.config.MaxBookAge > 0 && age > d.config.MaxBookAge {
		d.logger.Debug("book-too-stale",
			zap.String("market-id", market.ID),
			zap.Duration("age", age),
			zap.Duration("max-age", d.config.MaxBookAge))
		return nil, "stale-book"
	}

	combined, ok := book.CombinedAsk()
	if !ok {
		return nil, "no-liquidity"
	}

	spread := one.Sub(combined)
	if spread.LessThan(d.config.MinSpread) {
		return nil, "spread-below-threshold"
	}

	if !market.EndTime.IsZero() && market.TimeToClose(now) < d.config.MinTimeRemaining {
		d.logger.Debug("market-too-close-to-end",
			zap.String("market-id", market.ID),
			zap.Duration("remaining", market.TimeToClose(now)))
		return nil, "too-close-to-end"
	}

	tick := market.TickSize
	if !tick.IsPositive() {
		tick = pricing.DefaultTickSize
	}
	minSize := market.MinOrderSize
	if !minSize.IsPositive() {
		minSize = DefaultMinOrderSize
	}

	yesLimit, err := pricing.LimitPrice(book.Yes, d.config.SlippageBuffer, tick)
	if err != nil {
		return nil, "no-liquidity"
	}
	noLimit, err := pricing.LimitPrice(book.No, d.config.SlippageBuffer, tick)
	if err != nil {
		return nil, "no-liquidity"
	}

	depth := pricing.PairDepth(book.Yes, book.No, yesLimit, noLimit, one.Sub(d.config.MinSpread))

	capital := d.config.Capital.Capital(market.ID)
	plan := d.config.Sizer.Size(sizing.Input{
		Balance:         capital.Balance,
		WindowExposure:  capital.MarketExposure,
		AvailableShares: depth.Shares,
		PerShareCost:    yesLimit.Add(noLimit),
		Spread:          spread,
		MinOrderSize:    minSize,
	})
	if plan.Skip() {
		d.logger.Debug("signal-below-min-size",
			zap.String("market-id", market.ID),
			zap.String("binding-limit", plan.Limit),
			zap.String("depth", depth.Shares.String()))
		return nil, "below-min-size"
	}

	yesAsk, _ := book.Yes.BestAsk()
	noAsk, _ := book.No.BestAsk()

	signal := &types.TradingSignal{
		ID:       uuid.New().String(),
		Strategy: StrategyName,
		MarketID: market.ID,
		Yes: types.SignalLeg{
			Outcome:    types.OutcomeYes,
			TokenID:    market.YesTokenID,
			LimitPrice: yesLimit,
			BestAsk:    yesAsk.Price,
			Size:       plan.Shares,
		},
		No: types.SignalLeg{
			Outcome:    types.OutcomeNo,
			TokenID:    market.NoTokenID,
			LimitPrice: noLimit,
			BestAsk:    noAsk.Price,
			Size:       plan.Shares,
		},
		Spread:      spread,
		CombinedAsk: combined,
		Tranches:    len(plan.Tranches),
		DetectedAt:  now,
		Book:        book,
	}

	return signal, ""
}

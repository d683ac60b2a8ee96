package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/internal/pricing"
	"github.com/mselser95/dualleg-arb/internal/risk"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Execution modes.
const (
	ModePaper  = "paper"
	ModeLive   = "live"
	ModeDryRun = "dry-run"
)

var one = decimal.NewFromInt(1)

// RiskGate approves trade sizes and records trade outcomes.
type RiskGate interface {
	Check(signal *types.TradingSignal, minShares decimal.Decimal) risk.Decision
	RecordTrade(ctx context.Context, marketID string, committed decimal.Decimal, failed bool) error
}

// MarketSource looks up market metadata.
type MarketSource interface {
	Get(id string) (*types.Market, bool)
}

// Store is the persistence the executor needs.
type Store interface {
	SavePosition(ctx context.Context, p *types.Position) error
	ResolvePosition(ctx context.Context, p *types.Position, entry *types.LedgerEntry) error
	GetPosition(ctx context.Context, id string) (*types.Position, error)
	SaveOrder(ctx context.Context, rec *types.OrderRecord) error
	ListPendingOrders(ctx context.Context) ([]*types.OrderRecord, error)
}

// Config holds executor configuration.
type Config struct {
	Mode                 string
	Exchange             Exchange
	Books                BookSource
	Markets              MarketSource
	Risk                 RiskGate
	Store                Store
	Logger               *zap.Logger
	SignalChannel        <-chan *types.TradingSignal
	SlippageBuffer       decimal.Decimal
	MinSpread            decimal.Decimal
	MinHedgeRatio        decimal.Decimal
	CriticalHedgeRatio   decimal.Decimal
	MaxBookAge           time.Duration
	LegTimeout           time.Duration
	SubmitRetries        int
	RetryBackoff         time.Duration
	TimeInForce          types.TimeInForce
	MaxRebalanceAttempts int
	MaxRebalanceCost     decimal.Decimal
	ShutdownGrace        time.Duration
	ActivitySize         int
	Now                  func() time.Time
}

// Outcome is the result of one execution attempt.
type Outcome struct {
	SignalID string
	MarketID string
	State    AttemptState
	Fills    AttemptState
	Action   HedgeAction
	Position *types.Position
	Legs     []LegOutcome
	Reason   string
	Duration time.Duration
}

// Snapshot is a read-only view of the executor for dashboards.
type Snapshot struct {
	Mode           string               `json:"mode"`
	InFlight       []string             `json:"in_flight"`
	Attempts       map[AttemptState]int `json:"attempts"`
	ExpectedProfit decimal.Decimal      `json:"expected_profit"`
}

// Executor turns signals into positions. At most one attempt runs per
// market; attempts on different markets run concurrently.
type Executor struct {
	mode              string
	exchange          Exchange
	books             BookSource
	markets           MarketSource
	risk              RiskGate
	store             Store
	logger            *zap.Logger
	signalChan        <-chan *types.TradingSignal
	slippage          decimal.Decimal
	minSpread         decimal.Decimal
	minHedge          decimal.Decimal
	criticalHedge     decimal.Decimal
	maxBookAge        time.Duration
	legTimeout        time.Duration
	submitRetries     int
	retryBackoff      time.Duration
	tif               types.TimeInForce
	rebalanceAttempts int
	rebalanceCost     decimal.Decimal
	shutdownGrace     time.Duration
	now               func() time.Time
	activity          *activityLog

	mu             sync.Mutex
	inFlight       map[string]struct{}
	attempts       map[AttemptState]int
	expectedProfit decimal.Decimal

	wg             sync.WaitGroup
	attemptCtx     context.Context
	cancelAttempts context.CancelFunc
}

// New creates a new executor.
func New(cfg *Config) (*Executor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	switch cfg.Mode {
	case ModePaper, ModeLive, ModeDryRun:
	default:
		return nil, fmt.Errorf("unknown execution mode: %s", cfg.Mode)
	}
	if cfg.Exchange == nil && cfg.Mode != ModeDryRun {
		return nil, fmt.Errorf("exchange cannot be nil")
	}
	if cfg.Books == nil {
		return nil, fmt.Errorf("book source cannot be nil")
	}
	if cfg.Markets == nil {
		return nil, fmt.Errorf("market source cannot be nil")
	}
	if cfg.Risk == nil {
		return nil, fmt.Errorf("risk gate cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.CriticalHedgeRatio.GreaterThan(cfg.MinHedgeRatio) {
		return nil, fmt.Errorf("critical hedge ratio must not exceed min hedge ratio")
	}
	if cfg.MaxBookAge <= 0 {
		return nil, fmt.Errorf("max book age must be positive")
	}

	legTimeout := cfg.LegTimeout
	if legTimeout <= 0 {
		legTimeout = 5 * time.Second
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	tif := cfg.TimeInForce
	if tif == "" {
		tif = types.ImmediateOrCancel
	}
	grace := cfg.ShutdownGrace
	if grace <= 0 {
		grace = 15 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Executor{
		mode:              cfg.Mode,
		exchange:          cfg.Exchange,
		books:             cfg.Books,
		markets:           cfg.Markets,
		risk:              cfg.Risk,
		store:             cfg.Store,
		logger:            cfg.Logger,
		signalChan:        cfg.SignalChannel,
		slippage:          cfg.SlippageBuffer,
		minSpread:         cfg.MinSpread,
		minHedge:          cfg.MinHedgeRatio,
		criticalHedge:     cfg.CriticalHedgeRatio,
		maxBookAge:        cfg.MaxBookAge,
		legTimeout:        legTimeout,
		submitRetries:     max(cfg.SubmitRetries, 0),
		retryBackoff:      backoff,
		tif:               tif,
		rebalanceAttempts: max(cfg.MaxRebalanceAttempts, 0),
		rebalanceCost:     cfg.MaxRebalanceCost,
		shutdownGrace:     grace,
		now:               now,
		activity:          newActivityLog(cfg.ActivitySize),
		inFlight:          make(map[string]struct{}),
		attempts:          make(map[AttemptState]int),
	}, nil
}

// Start consumes the signal channel until ctx is canceled. Attempts already
// running when ctx is canceled keep going until Close.
func (e *Executor) Start(ctx context.Context) error {
	if e.signalChan == nil {
		return fmt.Errorf("signal channel cannot be nil")
	}

	e.attemptCtx, e.cancelAttempts = context.WithCancel(context.WithoutCancel(ctx))
	e.logger.Info("executor-starting", zap.String("mode", e.mode))

	e.wg.Add(1)
	go e.executionLoop(ctx)

	return nil
}

func (e *Executor) executionLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("executor-stopping")
			return
		case signal, ok := <-e.signalChan:
			if !ok {
				e.logger.Info("signal-channel-closed")
				return
			}

			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.handle(signal)
			}()
		}
	}
}

func (e *Executor) handle(signal *types.TradingSignal) {
	_, err := e.Execute(e.attemptCtx, signal)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrExecutionInFlight):
		e.logger.Debug("signal-dropped-in-flight", zap.String("market-id", signal.MarketID))
	default:
		e.logger.Error("execution-failed",
			zap.String("signal-id", signal.ID),
			zap.String("market-id", signal.MarketID),
			zap.Error(err))
	}
}

// Execute runs one attempt from Proposed to a terminal state. Risk
// rejections are returned as an Outcome; errors are reserved for a busy
// market, integrity violations and persistence failures.
func (e *Executor) Execute(ctx context.Context, signal *types.TradingSignal) (*Outcome, error) {
	if signal == nil {
		return nil, fmt.Errorf("signal cannot be nil")
	}
	if !e.acquire(signal.MarketID) {
		InFlightRejectionsTotal.Inc()
		return nil, fmt.Errorf("market %s: %w", signal.MarketID, types.ErrExecutionInFlight)
	}
	defer e.release(signal.MarketID)

	start := time.Now()
	out, err := e.execute(ctx, signal)
	if out != nil {
		out.Duration = time.Since(start)
		ExecutionDurationSeconds.Observe(out.Duration.Seconds())
		e.record(out)
	}

	return out, err
}

func (e *Executor) execute(ctx context.Context, signal *types.TradingSignal) (*Outcome, error) {
	out := &Outcome{SignalID: signal.ID, MarketID: signal.MarketID, State: StateProposed}

	market, ok := e.markets.Get(signal.MarketID)
	if !ok {
		return nil, fmt.Errorf("market %s: %w", signal.MarketID, types.ErrNotFound)
	}

	if err := e.validate(signal, market); err != nil {
		reason := integrityReason(err)
		IntegrityViolationsTotal.WithLabelValues(reason).Inc()
		logFn := e.logger.Error
		if reason == "stale_book" {
			logFn = e.logger.Warn
		}
		logFn("signal-rejected",
			zap.String("signal-id", signal.ID),
			zap.String("market-id", signal.MarketID),
			zap.String("reason", reason),
			zap.Error(err))
		return nil, err
	}

	e.activity.add(Activity{
		Kind:     ActivitySignal,
		MarketID: signal.MarketID,
		ID:       signal.ID,
		Detail:   "spread " + signal.Spread.String(),
		Shares:   signal.Size(),
		Price:    signal.CombinedAsk,
		At:       e.now(),
	})

	decision := e.risk.Check(signal, market.MinOrderSize)
	if !decision.Approved {
		out.State = StateRejected
		out.Reason = decision.Reason
		return out, nil
	}

	sized := signal.WithSize(decision.Size)
	tranches := splitTranches(decision.Size, sized.Tranches, market.MinOrderSize)

	if e.mode == ModeDryRun {
		e.logger.Info("dry-run-signal",
			zap.String("signal-id", signal.ID),
			zap.String("market-id", signal.MarketID),
			zap.Stringer("yes-limit", sized.Yes.LimitPrice),
			zap.Stringer("no-limit", sized.No.LimitPrice),
			zap.Stringer("size", decision.Size),
			zap.Int("tranches", len(tranches)))
		out.State = StateDryRun
		return out, nil
	}

	now := e.now()
	pos := &types.Position{
		ID:        uuid.NewString(),
		MarketID:  market.ID,
		Status:    types.PositionOpen,
		OpenedAt:  now,
		UpdatedAt: now,
	}
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}
	out.Position = pos
	out.State = StateLegsSubmitted

	unknown, rejected := e.enter(ctx, out, market, &sized, tranches)

	pos.UpdatedAt = e.now()
	if pos.YesShares.IsZero() && pos.NoShares.IsZero() {
		if unknown {
			e.flag(out, "entry leg outcome unknown")
		} else {
			pos.Status = types.PositionResolvedStale
			pos.Reason = "both legs unfilled"
			out.State = StateBothUnfilled
			e.logger.Info("missed-opportunity",
				zap.String("signal-id", signal.ID),
				zap.String("market-id", market.ID),
				zap.Stringer("spread", signal.Spread))
		}
	} else {
		HedgeRatio.Observe(pos.HedgeRatio().InexactFloat64())
		out.Action = EvaluateHedge(pos.YesShares, pos.NoShares, e.minHedge, e.criticalHedge)

		if out.Action != Hedged {
			out.State = StateRebalancing
			logFn := e.logger.Warn
			if out.Action == RebalanceCritical {
				logFn = e.logger.Error
			}
			logFn("position-unhedged",
				zap.String("position-id", pos.ID),
				zap.String("market-id", market.ID),
				zap.Stringer("yes-shares", pos.YesShares),
				zap.Stringer("no-shares", pos.NoShares),
				zap.Stringer("hedge-ratio", pos.HedgeRatio()),
				zap.Stringer("action", out.Action))

			if hedged, reason := e.rebalance(ctx, out, market); !hedged {
				e.flag(out, reason)
			}
		}

		if pos.Status == types.PositionOpen {
			switch {
			case unknown:
				e.flag(out, "entry leg outcome unknown")
			case pos.YesShares.IsZero() && pos.NoShares.IsZero():
				e.flatten(out)
			default:
				out.State = StateResolved
			}
		}
	}

	var err error
	if out.State == StateFlattened {
		err = e.store.ResolvePosition(ctx, pos, flattenLoss(pos))
	} else {
		err = e.store.SavePosition(ctx, pos)
	}
	if err != nil {
		return out, fmt.Errorf("save position %s: %w", pos.ID, err)
	}

	committed := decimal.Max(pos.EntryCost(), decimal.Zero)
	failed := pos.Status == types.PositionNeedsReview || rejected
	if err := e.risk.RecordTrade(ctx, market.ID, committed, failed); err != nil {
		e.logger.Error("risk-record-trade-failed",
			zap.String("position-id", pos.ID),
			zap.Error(err))
	}

	e.logger.Info("execution-completed",
		zap.String("signal-id", signal.ID),
		zap.String("position-id", pos.ID),
		zap.String("market-id", market.ID),
		zap.String("state", string(out.State)),
		zap.String("fills", string(out.Fills)),
		zap.Stringer("yes-shares", pos.YesShares),
		zap.Stringer("no-shares", pos.NoShares),
		zap.Stringer("entry-cost", pos.EntryCost()),
		zap.Stringer("expected-profit", pos.ExpectedProfit()),
		zap.String("reason", out.Reason))

	return out, nil
}

// enter submits the entry tranches. Tranches after the first are repriced
// from a fresh book and only sent while every previous tranche filled fully.
func (e *Executor) enter(
	ctx context.Context,
	out *Outcome,
	market *types.Market,
	signal *types.TradingSignal,
	tranches []decimal.Decimal,
) (unknown, rejected bool) {
	pos := out.Position
	var yesLegs, noLegs []LegOutcome

	for i, shares := range tranches {
		yesLimit, noLimit := signal.Yes.LimitPrice, signal.No.LimitPrice
		if i > 0 {
			var ok bool
			shares, yesLimit, noLimit, ok = e.repriceTranche(market, shares)
			if !ok {
				break
			}
		}

		yesOut, noOut := e.submitPair(ctx, pos.ID,
			newOrder(market, types.OutcomeYes, types.Buy, shares, yesLimit, e.tif),
			newOrder(market, types.OutcomeNo, types.Buy, shares, noLimit, e.tif))

		for _, leg := range []LegOutcome{yesOut, noOut} {
			unknown = unknown || leg.Unknown
			rejected = rejected || leg.Result.Status == types.OrderRejected
			applyFill(pos, leg)
		}
		out.Legs = append(out.Legs, yesOut, noOut)
		yesLegs = append(yesLegs, yesOut)
		noLegs = append(noLegs, noOut)

		if yesOut.Result.Status != types.OrderFilled || noOut.Result.Status != types.OrderFilled {
			break
		}
	}

	yes, no := aggregate(yesLegs), aggregate(noLegs)
	out.Fills = ClassifyFills(&yes, &no)

	return unknown, rejected
}

// repriceTranche recomputes limits and size for a later tranche. It returns
// false when the spread has closed or liquidity is gone.
func (e *Executor) repriceTranche(market *types.Market, shares decimal.Decimal) (decimal.Decimal, decimal.Decimal, decimal.Decimal, bool) {
	book, ok := e.books.MarketBook(market.ID)
	if !ok || book.Age(e.now()) > e.maxBookAge {
		e.logger.Info("tranche-skipped", zap.String("market-id", market.ID), zap.String("reason", "stale book"))
		return decimal.Zero, decimal.Zero, decimal.Zero, false
	}

	combined, ok := book.CombinedAsk()
	if !ok || one.Sub(combined).LessThan(e.minSpread) {
		e.logger.Info("tranche-skipped", zap.String("market-id", market.ID), zap.String("reason", "spread closed"))
		return decimal.Zero, decimal.Zero, decimal.Zero, false
	}

	yesLimit, err := pricing.LimitPrice(book.Yes, e.slippage, market.TickSize)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, false
	}
	noLimit, err := pricing.LimitPrice(book.No, e.slippage, market.TickSize)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, false
	}

	quote := pricing.PairDepth(book.Yes, book.No, yesLimit, noLimit, one.Sub(e.minSpread))
	shares = decimal.Min(shares, quote.Shares).Truncate(2)
	if !shares.IsPositive() || shares.LessThan(market.MinOrderSize) {
		e.logger.Info("tranche-skipped", zap.String("market-id", market.ID), zap.String("reason", "no liquidity"))
		return decimal.Zero, decimal.Zero, decimal.Zero, false
	}

	return shares, yesLimit, noLimit, true
}

// validate rejects signals whose prices or sizes were not derived from the
// book they carry.
func (e *Executor) validate(signal *types.TradingSignal, market *types.Market) error {
	if signal.Book == nil || signal.Book.Yes == nil || signal.Book.No == nil {
		return fmt.Errorf("signal %s carries no book: %w", signal.ID, types.ErrPriceSourceMismatch)
	}

	if age := signal.Book.Age(e.now()); age > e.maxBookAge {
		return fmt.Errorf("signal %s book age %s exceeds %s: %w", signal.ID, age, e.maxBookAge, types.ErrStaleBook)
	}

	for _, outcome := range []types.Outcome{types.OutcomeYes, types.OutcomeNo} {
		leg := signal.Leg(outcome)
		book := signal.Book.Book(outcome)

		if leg.TokenID != market.TokenID(outcome) || book.TokenID != leg.TokenID {
			return fmt.Errorf("%s leg token %s does not match market token %s: %w",
				outcome, leg.TokenID, market.TokenID(outcome), types.ErrPriceSourceMismatch)
		}

		ask, ok := book.BestAsk()
		if !ok {
			return fmt.Errorf("%s leg: %w", outcome, types.ErrNoLiquidity)
		}
		if !leg.BestAsk.Equal(ask.Price) {
			return fmt.Errorf("%s leg best ask %s differs from book %s: %w",
				outcome, leg.BestAsk, ask.Price, types.ErrPriceSourceMismatch)
		}

		limit, err := pricing.LimitPrice(book, e.slippage, market.TickSize)
		if err != nil {
			return fmt.Errorf("%s leg limit: %w", outcome, err)
		}
		if !leg.LimitPrice.Equal(limit) {
			return fmt.Errorf("%s leg limit %s differs from book-derived %s: %w",
				outcome, leg.LimitPrice, limit, types.ErrPriceSourceMismatch)
		}

		if depth := pricing.DepthAtOrBelow(book, leg.LimitPrice); leg.Size.GreaterThan(depth) {
			return fmt.Errorf("%s leg size %s exceeds depth %s: %w",
				outcome, leg.Size, depth, types.ErrSizeSourceMismatch)
		}
	}

	return nil
}

func (e *Executor) flag(out *Outcome, reason string) {
	out.Position.Status = types.PositionNeedsReview
	out.Position.Reason = reason
	out.State = StateNeedsReview
	out.Reason = reason

	e.logger.Error("position-needs-review",
		zap.String("position-id", out.Position.ID),
		zap.String("market-id", out.MarketID),
		zap.Stringer("yes-shares", out.Position.YesShares),
		zap.Stringer("no-shares", out.Position.NoShares),
		zap.String("reason", reason))
}

// flatten closes a position a rebalance sold down to no shares. What the
// sells did not recover is realized at once.
func (e *Executor) flatten(out *Outcome) {
	const reason = "flattened by rebalance"
	out.Position.Status = types.PositionResolvedStale
	out.Position.Reason = reason
	out.State = StateFlattened
	out.Reason = reason

	e.logger.Warn("position-flattened",
		zap.String("position-id", out.Position.ID),
		zap.String("market-id", out.MarketID),
		zap.Stringer("realized-loss", out.Position.EntryCost()))
}

func flattenLoss(pos *types.Position) *types.LedgerEntry {
	cost := pos.EntryCost()
	if cost.IsZero() {
		return nil
	}

	return &types.LedgerEntry{
		ID:         uuid.NewString(),
		PositionID: pos.ID,
		Amount:     cost.Neg(),
		Type:       types.PnLTradeResolution,
		Reason:     pos.Reason,
		CreatedAt:  pos.UpdatedAt,
	}
}

func (e *Executor) acquire(marketID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inFlight[marketID]; busy {
		return false
	}
	e.inFlight[marketID] = struct{}{}

	return true
}

func (e *Executor) release(marketID string) {
	e.mu.Lock()
	delete(e.inFlight, marketID)
	e.mu.Unlock()
}

func (e *Executor) record(out *Outcome) {
	AttemptsTotal.WithLabelValues(e.mode, string(out.State)).Inc()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.attempts[out.State]++
	if out.State == StateResolved && out.Position != nil {
		profit := out.Position.ExpectedProfit()
		e.expectedProfit = e.expectedProfit.Add(profit)
		if profit.IsPositive() {
			ExpectedProfitUSD.WithLabelValues(e.mode).Add(profit.InexactFloat64())
		}
	}
}

// Snapshot returns the executor state.
func (e *Executor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	inFlight := make([]string, 0, len(e.inFlight))
	for id := range e.inFlight {
		inFlight = append(inFlight, id)
	}
	sort.Strings(inFlight)

	attempts := make(map[AttemptState]int, len(e.attempts))
	for k, v := range e.attempts {
		attempts[k] = v
	}

	return Snapshot{
		Mode:           e.mode,
		InFlight:       inFlight,
		Attempts:       attempts,
		ExpectedProfit: e.expectedProfit,
	}
}

// RecentActivity returns up to limit recent signals and orders, newest first.
func (e *Executor) RecentActivity(limit int) []Activity {
	return e.activity.recent(limit)
}

// Close waits for in-flight attempts up to the shutdown grace, then cancels
// them and any order still resting on the exchange.
func (e *Executor) Close() error {
	e.logger.Info("closing-executor")

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(e.shutdownGrace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		e.logger.Warn("executor-shutdown-grace-exceeded", zap.Duration("grace", e.shutdownGrace))
		if e.cancelAttempts != nil {
			e.cancelAttempts()
		}
		<-done
	}
	if e.cancelAttempts != nil {
		e.cancelAttempts()
	}

	if e.mode != ModeDryRun {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := e.CancelOutstanding(ctx); err != nil {
			e.logger.Error("cancel-outstanding-failed", zap.Error(err))
		}
	}

	snap := e.Snapshot()
	e.logger.Info("executor-closed",
		zap.String("mode", e.mode),
		zap.Stringer("expected-profit", snap.ExpectedProfit),
		zap.Int("resolved", snap.Attempts[StateResolved]),
		zap.Int("needs-review", snap.Attempts[StateNeedsReview]))

	return nil
}

// splitTranches divides total into n equal parts, reducing n until each
// part meets minSize. The last part absorbs the truncation remainder.
func splitTranches(total decimal.Decimal, n int, minSize decimal.Decimal) []decimal.Decimal {
	if n < 1 {
		n = 1
	}

	var per decimal.Decimal
	for ; n > 1; n-- {
		per = total.Div(decimal.NewFromInt(int64(n))).Truncate(2)
		if per.GreaterThanOrEqual(minSize) {
			break
		}
	}
	if n == 1 {
		return []decimal.Decimal{total}
	}

	parts := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		parts[i] = per
	}
	parts[n-1] = total.Sub(per.Mul(decimal.NewFromInt(int64(n - 1))))

	return parts
}

// applyFill adds a leg's fill to the position. A sell removes shares and
// reduces the cost basis by the proceeds.
func applyFill(pos *types.Position, leg LegOutcome) {
	filledShares := leg.Result.FilledSize
	if !filledShares.IsPositive() {
		return
	}
	amount := leg.Result.Cost()
	if leg.Request.Side == types.Sell {
		filledShares = filledShares.Neg()
		amount = amount.Neg()
	}

	if leg.Request.Outcome == types.OutcomeNo {
		pos.NoShares = pos.NoShares.Add(filledShares)
		pos.NoCost = pos.NoCost.Add(amount)
		return
	}
	pos.YesShares = pos.YesShares.Add(filledShares)
	pos.YesCost = pos.YesCost.Add(amount)
}

// aggregate folds a leg's tranche results into one result. The leg counts
// as filled only when every tranche filled.
func aggregate(legs []LegOutcome) types.OrderResult {
	var agg types.OrderResult
	if len(legs) == 0 {
		agg.Status = types.OrderUnfilled
		return agg
	}

	agg.Status = types.OrderFilled
	for _, leg := range legs {
		agg.FilledSize = agg.FilledSize.Add(leg.Result.FilledSize)
		if leg.Result.Status != types.OrderFilled {
			agg.Status = types.OrderPartiallyFilled
		}
	}

	return agg
}

func integrityReason(err error) string {
	switch {
	case errors.Is(err, types.ErrStaleBook):
		return "stale_book"
	case errors.Is(err, types.ErrPriceSourceMismatch):
		return "price_source"
	case errors.Is(err, types.ErrSizeSourceMismatch):
		return "size_source"
	case errors.Is(err, types.ErrNoLiquidity):
		return "no_liquidity"
	default:
		return "other"
	}
}

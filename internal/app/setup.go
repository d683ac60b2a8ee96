package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/internal/arbitrage"
	"github.com/mselser95/dualleg-arb/internal/execution"
	"github.com/mselser95/dualleg-arb/internal/markets"
	"github.com/mselser95/dualleg-arb/internal/orderbook"
	"github.com/mselser95/dualleg-arb/internal/risk"
	"github.com/mselser95/dualleg-arb/internal/settlement"
	"github.com/mselser95/dualleg-arb/internal/sizing"
	"github.com/mselser95/dualleg-arb/internal/storage"
	"github.com/mselser95/dualleg-arb/pkg/cache"
	"github.com/mselser95/dualleg-arb/pkg/config"
	"github.com/mselser95/dualleg-arb/pkg/healthprobe"
	"github.com/mselser95/dualleg-arb/pkg/httpserver"
	"github.com/mselser95/dualleg-arb/pkg/types"
	"github.com/mselser95/dualleg-arb/pkg/wallet"
	"github.com/mselser95/dualleg-arb/pkg/websocket"
)

const (
	signalBufferSize = 64
	activitySize     = 200
	gammaTimeout     = 10 * time.Second
)

var minGasBalance = decimal.RequireFromString("0.1")

// New creates a new application instance. Markets are resolved and storage
// is opened here; nothing is streamed until Run.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (_ *App, err error) {
	if opts == nil {
		opts = &Options{}
	}
	slugs := cfg.MarketSlugs
	if len(opts.MarketSlugs) > 0 {
		slugs = opts.MarketSlugs
	}
	if len(slugs) == 0 {
		return nil, errors.New("no markets configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{cfg: cfg, logger: logger, ctx: ctx, cancel: cancel}
	defer func() {
		if err != nil {
			a.closeResources()
			cancel()
		}
	}()

	a.healthChecker = setupHealthChecker()

	a.storage, err = setupStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	a.metadataCache, err = setupCache(logger)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	gamma := markets.NewGammaClient(markets.GammaConfig{
		BaseURL: cfg.PolymarketGammaURL,
		Timeout: gammaTimeout,
		Logger:  logger,
	})
	a.registry = markets.NewRegistry()
	a.loaded, err = setupMarkets(ctx, cfg, logger, gamma, a.registry, a.metadataCache, slugs)
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	MarketsLoaded.Set(float64(len(a.loaded)))

	a.wsManager = setupWebSocketManager(cfg, logger)
	a.obManager = setupOrderbookManager(cfg, logger, a.wsManager)

	exchange, paper, walletClient, err := a.setupExchange(ctx)
	if err != nil {
		return nil, fmt.Errorf("setup exchange: %w", err)
	}

	a.riskManager, err = setupRiskManager(cfg, logger, a.storage, exchange)
	if err != nil {
		return nil, fmt.Errorf("setup risk manager: %w", err)
	}

	a.strategies, err = setupStrategies(cfg, logger, a.registry, a.riskManager)
	if err != nil {
		return nil, fmt.Errorf("setup strategies: %w", err)
	}

	signals := make(chan *types.TradingSignal, signalBufferSize)
	a.pipeline = NewPipeline(a.obManager.UpdateChan(), a.obManager, a.strategies, signals, logger)

	a.executor, err = setupExecutor(cfg, logger, exchange, a.obManager, a.registry, a.riskManager, a.storage, signals)
	if err != nil {
		return nil, fmt.Errorf("setup executor: %w", err)
	}

	claimer, err := a.setupClaimer(paper)
	if err != nil {
		return nil, fmt.Errorf("setup claimer: %w", err)
	}
	a.settlement, err = setupSettlement(cfg, logger, a.storage, claimer, a.registry)
	if err != nil {
		return nil, fmt.Errorf("setup settlement: %w", err)
	}

	a.feed = newMarketFeed(a.wsManager, a.obManager, a.settlement, logger)
	a.watcher, err = markets.NewWatcher(markets.WatcherConfig{
		Registry: a.registry,
		Fetcher:  gamma,
		Handler:  a.feed,
		Interval: cfg.MarketPollInterval,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup market watcher: %w", err)
	}

	if walletClient != nil {
		a.walletTracker, err = wallet.New(&wallet.Config{
			Source:       walletClient,
			Address:      FundingAddress(cfg),
			PollInterval: cfg.BalanceRefreshInterval,
			MinGas:       minGasBalance,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("setup wallet tracker: %w", err)
		}
	}

	a.registerHealthChecks()
	a.httpServer = setupHTTPServer(cfg, logger, a.healthChecker, a.riskManager, a.executor, a.storage)

	return a, nil
}

// closeResources releases what New opened when construction fails.
func (a *App) closeResources() {
	if a.chain != nil {
		a.chain.Close()
	}
	if a.metadataCache != nil {
		a.metadataCache.Close()
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Error("storage-close-error", zap.Error(err))
		}
	}
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func (a *App) registerHealthChecks() {
	a.healthChecker.Register("websocket", func() error {
		if !a.wsManager.Connected() {
			return errors.New("market feed disconnected")
		}
		return nil
	})
	a.healthChecker.Register("circuit-breaker", func() error {
		state := a.riskManager.Snapshot()
		if state.Level == types.LevelHalt {
			return fmt.Errorf("trading halted: %s", state.Reason)
		}
		return nil
	})
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	riskManager *risk.Manager,
	executor *execution.Executor,
	store storage.Storage,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Risk:          riskManager,
		Execution:     executor,
		Positions:     store,
		Orders:        store,
		Ledger:        store,
	})
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "metadata",
		NumCounters: 10000, // 10x expected max items
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(ctx, PostgresConfig(cfg, logger))
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	logger.Warn("using-memory-storage", zap.String("note", "positions and ledger are lost on exit"))
	return storage.NewMemoryStorage(logger), nil
}

// PostgresConfig maps configuration onto storage settings.
func PostgresConfig(cfg *config.Config, logger *zap.Logger) *storage.PostgresConfig {
	return &storage.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		Database: cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
		Logger:   logger,
	}
}

func setupMarkets(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	gamma *markets.GammaClient,
	registry *markets.Registry,
	metadataCache cache.Cache,
	slugs []string,
) ([]*types.Market, error) {
	metadata := markets.NewMetadataClient(cfg.PolymarketCLOBURL, logger)
	loader := &markets.Loader{
		Fetcher:  gamma,
		Metadata: markets.NewCachedMetadataClient(metadata, metadataCache),
		Registry: registry,
		Logger:   logger,
	}

	return loader.Load(ctx, slugs)
}

func setupWebSocketManager(cfg *config.Config, logger *zap.Logger) *websocket.Manager {
	return websocket.New(websocket.Config{
		URL:                   cfg.PolymarketWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
}

func setupOrderbookManager(cfg *config.Config, logger *zap.Logger, wsManager *websocket.Manager) *orderbook.Manager {
	return orderbook.New(&orderbook.Config{
		Logger:           logger,
		EventChannel:     wsManager.MessageChan(),
		UpdateBufferSize: cfg.WSMessageBufferSize,
	})
}

// setupExchange picks the order venue for the execution mode. Paper and
// dry-run fill against the live books; live mode signs orders for the CLOB
// and reads collateral from chain.
func (a *App) setupExchange(ctx context.Context) (execution.Exchange, *execution.PaperExchange, *wallet.Client, error) {
	cfg := a.cfg

	if cfg.ExecutionMode != execution.ModeLive {
		paper := execution.NewPaperExchange(a.obManager, cfg.PaperBalanceUSD, a.logger)
		return paper, paper, nil, nil
	}

	if cfg.PolymarketPrivateKey == "" {
		return nil, nil, nil, errors.New("POLYMARKET_PRIVATE_KEY is required in live mode")
	}

	chain, err := ethclient.DialContext(ctx, cfg.PolygonRPCURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial polygon RPC: %w", err)
	}
	a.chain = chain

	walletClient, err := wallet.NewClient(chain, a.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create wallet client: %w", err)
	}

	clob, err := execution.NewCLOBExchange(&execution.CLOBConfig{
		BaseURL:           cfg.PolymarketCLOBURL,
		APIKey:            cfg.PolymarketAPIKey,
		Secret:            cfg.PolymarketSecret,
		Passphrase:        cfg.PolymarketPassphrase,
		PrivateKey:        cfg.PolymarketPrivateKey,
		ProxyAddress:      cfg.PolymarketAddress,
		SignatureType:     cfg.SignatureType,
		RequestsPerSecond: cfg.CLOBRequestsPerSec,
		Wallet:            walletClient,
		Logger:            a.logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create CLOB exchange: %w", err)
	}

	return clob, nil, walletClient, nil
}

// FundingAddress is the address holding collateral: the proxy wallet when
// one is configured, otherwise the signing EOA.
func FundingAddress(cfg *config.Config) common.Address {
	if cfg.PolymarketAddress != "" {
		return common.HexToAddress(cfg.PolymarketAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PolymarketPrivateKey, "0x"))
	if err != nil {
		return common.Address{}
	}

	return crypto.PubkeyToAddress(key.PublicKey)
}

func riskLimits(cfg *config.Config) types.RiskLimits {
	return types.RiskLimits{
		MaxDailyLoss:           cfg.MaxDailyLossUSD,
		MaxDailyExposure:       cfg.MaxDailyExposureUSD,
		MaxPositionSize:        cfg.MaxPositionSizeUSD,
		MaxConcurrentPositions: cfg.MaxConcurrentPositions,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		WarningThreshold:       cfg.WarningThreshold,
		CriticalThreshold:      cfg.CriticalThreshold,
		CautionSizeFactor:      cfg.CautionSizeFactor,
		CautionReject:          cfg.CautionReject,
		Cooldown:               cfg.CircuitBreakerCooldown,
	}
}

func setupRiskManager(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.Storage,
	balance risk.BalanceSource,
) (*risk.Manager, error) {
	return risk.New(&risk.Config{
		Limits:                 riskLimits(cfg),
		Store:                  store,
		Balance:                balance,
		Logger:                 logger,
		TickInterval:           cfg.RiskTickInterval,
		BalanceRefreshInterval: cfg.BalanceRefreshInterval,
	})
}

func setupStrategies(
	cfg *config.Config,
	logger *zap.Logger,
	registry *markets.Registry,
	capital arbitrage.CapitalSource,
) (*arbitrage.Registry, error) {
	sizer, err := sizing.New(sizing.Config{
		MaxTradeSizeUSD:       cfg.MaxTradeSizeUSD,
		MaxPerWindowUSD:       cfg.MaxPerWindowUSD,
		BalanceSizingPct:      cfg.BalanceSizingPct,
		GradualEntryEnabled:   cfg.GradualEntryEnabled,
		GradualEntryTranches:  cfg.GradualEntryTranches,
		GradualEntryMinSpread: cfg.GradualEntryMinSpread,
	})
	if err != nil {
		return nil, fmt.Errorf("create sizer: %w", err)
	}

	detector, err := arbitrage.New(arbitrage.Config{
		Enabled:          true,
		MinSpread:        cfg.MinSpread,
		MinTimeRemaining: cfg.MinTimeRemaining,
		MaxBookAge:       cfg.MaxBookAge,
		SlippageBuffer:   cfg.SlippageBuffer,
		Sizer:            sizer,
		Markets:          registry,
		Capital:          capital,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}

	strategies := arbitrage.NewRegistry()
	if err := strategies.Register(detector); err != nil {
		return nil, err
	}

	return strategies, nil
}

func setupExecutor(
	cfg *config.Config,
	logger *zap.Logger,
	exchange execution.Exchange,
	books execution.BookSource,
	registry *markets.Registry,
	riskManager *risk.Manager,
	store storage.Storage,
	signals <-chan *types.TradingSignal,
) (*execution.Executor, error) {
	return execution.New(&execution.Config{
		Mode:                 cfg.ExecutionMode,
		Exchange:             exchange,
		Books:                books,
		Markets:              registry,
		Risk:                 riskManager,
		Store:                store,
		Logger:               logger,
		SignalChannel:        signals,
		SlippageBuffer:       cfg.SlippageBuffer,
		MinSpread:            cfg.MinSpread,
		MinHedgeRatio:        cfg.MinHedgeRatio,
		CriticalHedgeRatio:   cfg.CriticalHedgeRatio,
		MaxBookAge:           cfg.MaxBookAge,
		LegTimeout:           cfg.LegTimeout,
		SubmitRetries:        cfg.SubmitRetries,
		RetryBackoff:         cfg.RetryBackoff,
		TimeInForce:          types.TimeInForce(cfg.TimeInForce),
		MaxRebalanceAttempts: cfg.MaxRebalanceAttempts,
		MaxRebalanceCost:     cfg.MaxRebalanceCostUSD,
		ShutdownGrace:        cfg.ShutdownGrace,
		ActivitySize:         activitySize,
	})
}

// setupClaimer credits the simulated balance outside live mode and redeems
// on chain in live mode.
func (a *App) setupClaimer(paper *execution.PaperExchange) (settlement.Claimer, error) {
	if paper != nil {
		return settlement.NewPaperClaimer(paper, a.logger), nil
	}

	if a.cfg.PolymarketAddress != "" {
		a.logger.Warn("redeem-from-signer-only",
			zap.String("proxy-address", a.cfg.PolymarketAddress),
			zap.String("note", "tokens held by the proxy wallet must be redeemed through it"))
	}

	return settlement.NewRedeemClaimer(&settlement.RedeemConfig{
		Client:     a.chain,
		PrivateKey: a.cfg.PolymarketPrivateKey,
		Markets:    a.registry,
		Logger:     a.logger,
	})
}

func setupSettlement(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.Storage,
	claimer settlement.Claimer,
	registry *markets.Registry,
) (*settlement.Manager, error) {
	return settlement.New(&settlement.Config{
		Store:          store,
		Claimer:        claimer,
		Markets:        registry,
		Logger:         logger,
		SweepInterval:  cfg.SettlementSweepInterval,
		MaxAttempts:    cfg.SettlementMaxAttempts,
		InitialBackoff: cfg.SettlementInitialBackoff,
		MaxBackoff:     cfg.SettlementMaxBackoff,
		Concurrency:    cfg.SettlementConcurrency,
		StaleAfter:     cfg.SettlementStaleAfter,
	})
}

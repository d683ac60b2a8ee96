package app

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/internal/arbitrage"
	"github.com/mselser95/dualleg-arb/internal/execution"
	"github.com/mselser95/dualleg-arb/internal/markets"
	"github.com/mselser95/dualleg-arb/internal/orderbook"
	"github.com/mselser95/dualleg-arb/internal/risk"
	"github.com/mselser95/dualleg-arb/internal/settlement"
	"github.com/mselser95/dualleg-arb/internal/storage"
	"github.com/mselser95/dualleg-arb/pkg/cache"
	"github.com/mselser95/dualleg-arb/pkg/config"
	"github.com/mselser95/dualleg-arb/pkg/healthprobe"
	"github.com/mselser95/dualleg-arb/pkg/httpserver"
	"github.com/mselser95/dualleg-arb/pkg/types"
	"github.com/mselser95/dualleg-arb/pkg/wallet"
	"github.com/mselser95/dualleg-arb/pkg/websocket"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	metadataCache cache.Cache
	registry      *markets.Registry
	loaded        []*types.Market
	watcher       *markets.Watcher
	feed          *marketFeed
	wsManager     *websocket.Manager
	obManager     *orderbook.Manager
	strategies    *arbitrage.Registry
	pipeline      *Pipeline
	riskManager   *risk.Manager
	executor      *execution.Executor
	settlement    *settlement.Manager
	walletTracker *wallet.Tracker
	chain         *ethclient.Client
	storage       storage.Storage
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// MarketSlugs overrides the configured market list.
	MarketSlugs []string
}

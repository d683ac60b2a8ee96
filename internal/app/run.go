package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.Stringer("min-spread", a.cfg.MinSpread),
		zap.Int("markets", len(a.loaded)),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		_ = a.Shutdown()
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("ws-url", a.cfg.PolymarketWSURL))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	// Orders left by a previous run are settled before new signals flow.
	err := a.reconcile()
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	err = a.riskManager.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start risk manager: %w", err)
	}

	err = a.obManager.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start orderbook manager: %w", err)
	}

	err = a.wsManager.Start()
	if err != nil {
		return fmt.Errorf("start websocket manager: %w", err)
	}

	err = a.subscribeMarkets()
	if err != nil {
		return fmt.Errorf("subscribe markets: %w", err)
	}

	err = a.executor.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start executor: %w", err)
	}

	a.pipeline.Start(a.ctx)
	a.settlement.Start(a.ctx)
	a.watcher.Start(a.ctx)

	if a.walletTracker != nil {
		a.wg.Add(1)
		go a.runWalletTracker()
	}

	return nil
}

func (a *App) reconcile() error {
	report, err := a.executor.Reconcile(a.ctx)
	if err != nil {
		return err
	}
	a.logger.Info("startup-reconcile-complete",
		zap.Int("canceled", report.Canceled),
		zap.Int("fill-unknown", report.FillUnknown),
		zap.Int("flagged", report.Flagged))

	a.settleResolved()

	_, err = a.settlement.ResolvePending(a.ctx, a.cfg.SettlementStaleAfter)
	if err != nil {
		return fmt.Errorf("resolve pending positions: %w", err)
	}

	return nil
}

// settleResolved queues settlement for markets that were already resolved
// when loaded; the watcher only reports transitions it observes. Failed
// markets are handed to the watcher for retry.
func (a *App) settleResolved() int {
	settled := 0
	for _, market := range a.registry.All() {
		if market.Status != types.MarketResolved {
			continue
		}

		err := a.settlement.OnMarketResolved(a.ctx, market)
		if err != nil {
			a.logger.Warn("startup-settlement-failed", zap.String("market-id", market.ID), zap.Error(err))
			a.watcher.Retry(market)
			continue
		}
		settled++
	}

	if settled > 0 {
		a.logger.Info("resolved-markets-settled", zap.Int("markets", settled))
	}

	return settled
}

func (a *App) subscribeMarkets() error {
	subscribed := 0
	for _, market := range a.loaded {
		if market.Status != types.MarketActive {
			a.logger.Info("market-not-tradable",
				zap.String("slug", market.Slug),
				zap.String("status", market.Status.String()))
			continue
		}

		err := a.feed.subscribe(a.ctx, market)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", market.Slug, err)
		}
		subscribed++
	}

	if subscribed == 0 {
		a.logger.Warn("no-tradable-markets")
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runWalletTracker() {
	defer a.wg.Done()
	err := a.walletTracker.Run(a.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("wallet-tracker-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}

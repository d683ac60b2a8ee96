package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops intake first, lets in-flight attempts finish within the
// executor grace period, then closes the data feed and storage.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Cancel context to stop signal intake and background loops
	a.cancel()

	err = a.executor.Close()
	if err != nil {
		a.logger.Error("executor-close-error", zap.Error(err))
	}

	a.pipeline.Wait()
	a.watcher.Close()
	a.settlement.Close()

	err = a.riskManager.Close()
	if err != nil {
		a.logger.Error("risk-manager-close-error", zap.Error(err))
	}

	err = a.wsManager.Close()
	if err != nil {
		a.logger.Error("websocket-manager-close-error", zap.Error(err))
	}

	err = a.obManager.Close()
	if err != nil {
		a.logger.Error("orderbook-manager-close-error", zap.Error(err))
	}

	// Wait for goroutines owned by the app
	a.wg.Wait()

	a.closeResources()

	a.logger.Info("application-shutdown-complete")

	return nil
}

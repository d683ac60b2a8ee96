package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// BookSource returns the paired book of a market.
type BookSource interface {
	MarketBook(marketID string) (*types.MarketBook, bool)
}

// Evaluator runs strategies against a market book.
type Evaluator interface {
	Evaluate(book *types.MarketBook) []types.TradingSignal
}

// Pipeline turns book updates into trading signals. Each update names a
// market; the current paired book is evaluated and the resulting signals
// are handed to the executor.
type Pipeline struct {
	updates   <-chan string
	books     BookSource
	evaluator Evaluator
	signals   chan<- *types.TradingSignal
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewPipeline creates a pipeline.
func NewPipeline(
	updates <-chan string,
	books BookSource,
	evaluator Evaluator,
	signals chan<- *types.TradingSignal,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		updates:   updates,
		books:     books,
		evaluator: evaluator,
		signals:   signals,
		logger:    logger,
	}
}

// Start consumes updates until ctx is canceled or the update channel closes.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case marketID, ok := <-p.updates:
				if !ok {
					p.logger.Info("book-update-channel-closed")
					return
				}
				p.Process(marketID)
			}
		}
	}()
}

// Process evaluates one market and forwards its signals. A full signal
// channel drops the signal; the next book update produces a fresh one.
func (p *Pipeline) Process(marketID string) int {
	book, ok := p.books.MarketBook(marketID)
	if !ok {
		return 0
	}

	sent := 0
	for _, signal := range p.evaluator.Evaluate(book) {
		select {
		case p.signals <- &signal:
			sent++
		default:
			SignalsDroppedTotal.Inc()
			p.logger.Warn("signal-channel-full",
				zap.String("market-id", signal.MarketID),
				zap.String("signal-id", signal.ID))
		}
	}

	return sent
}

// Wait blocks until the consume loop has exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

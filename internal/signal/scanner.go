package signal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kleberhub/binance-futures-bot/config"
	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	"github.com/kleberhub/binance-futures-bot/internal/model"
	"github.com/kleberhub/binance-futures-bot/logger"
)

// Scanner fans the Evaluator out over the symbol universe. The worker pool
// size is fixed by configuration, independent of the universe size, so the
// number of simultaneous outbound candle fetches stays bounded.
type Scanner struct {
	market    exchange.MarketData
	evaluator *Evaluator
	timeframe string
	history   int
	workers   int
	log       *logger.Log
}

// NewScanner wires a Scanner over the given market-data gateway.
func NewScanner(cfg *config.Config, market exchange.MarketData, evaluator *Evaluator) *Scanner {
	history := cfg.Strategy.HistoryCandle
	if history < evaluator.HistoryNeeded()+1 {
		history = evaluator.HistoryNeeded() + 1
	}
	return &Scanner{
		market:    market,
		evaluator: evaluator,
		timeframe: cfg.Trading.Timeframe,
		history:   history,
		workers:   cfg.Scanner.MaxWorkers,
		log:       logger.GetLogger(),
	}
}

// Scan evaluates every symbol not already in position and returns the matched
// signals sorted by symbol. One symbol's fetch or evaluation failure never
// aborts the others; symbols still pending at the tick deadline are dropped
// for this tick.
func (s *Scanner) Scan(ctx context.Context, tick *model.TickContext, symbols []string) []model.Signal {
	log := s.log.WithComponent("scanner")

	candidates := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if tick.HasPosition(sym) {
			continue
		}
		candidates = append(candidates, sym)
	}
	if len(candidates) == 0 {
		return nil
	}

	scanCtx := ctx
	if !tick.Deadline.IsZero() {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithDeadline(ctx, tick.Deadline)
		defer cancel()
	}

	workers := s.workers
	if workers > len(candidates) {
		workers = len(candidates)
	}

	jobs := make(chan string)
	results := make(chan model.Signal, len(candidates))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for sym := range jobs {
				if sig := s.scanSymbol(scanCtx, sym, tick.ScheduledAt); sig != nil {
					results <- *sig
				}
			}
		}(i)
	}

	start := time.Now()
	for _, sym := range candidates {
		select {
		case jobs <- sym:
		case <-scanCtx.Done():
			// Deadline hit: remaining symbols are dropped for this tick.
		}
		if scanCtx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	matches := make([]model.Signal, 0, len(results))
	for sig := range results {
		matches = append(matches, sig)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Symbol < matches[j].Symbol })

	log.WithFields(logger.Fields{
		"candidates": len(candidates),
		"matches":    len(matches),
		"workers":    workers,
		"duration":   time.Since(start).Milliseconds(),
	}).Info("scan completed")

	return matches
}

func (s *Scanner) scanSymbol(ctx context.Context, symbol string, now time.Time) *model.Signal {
	log := s.log.WithComponent("scanner").WithSymbol(symbol)

	series, err := s.market.FetchCandles(ctx, symbol, s.timeframe, s.history)
	if err != nil {
		log.WithError(err).Warn("candle fetch failed, treating as no signal")
		return nil
	}

	sig := s.evaluator.Evaluate(series, now)
	if sig != nil {
		log.WithFields(logger.Fields{
			"detected_at": sig.DetectedAt,
		}).Info("short signal detected")
	}
	return sig
}

// Package scheduler drives the trading loop on a timeframe-aligned cadence.
// Every tick runs health check, reconciliation, signal scan and order
// dispatch; any failure inside a tick ends that tick and never the process.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kleberhub/binance-futures-bot/config"
	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	"github.com/kleberhub/binance-futures-bot/internal/model"
	"github.com/kleberhub/binance-futures-bot/internal/notify"
	"github.com/kleberhub/binance-futures-bot/internal/order"
	"github.com/kleberhub/binance-futures-bot/internal/reconcile"
	"github.com/kleberhub/binance-futures-bot/internal/signal"
	"github.com/kleberhub/binance-futures-bot/logger"
)

// State is the scheduler's current mode.
type State string

const (
	// StateIdle means the scheduler is waiting for the next aligned tick.
	StateIdle State = "idle"
	// StateTicking means a tick is in progress.
	StateTicking State = "ticking"
	// StateDegraded means the health check failed this tick and trading
	// actions were suppressed. The loop keeps running.
	StateDegraded State = "degraded"
)

// Scheduler owns the control loop. Ticks never overlap: the next tick is not
// scheduled until the current one has completed.
type Scheduler struct {
	cfg          *config.Config
	account      exchange.Account
	scanner      *signal.Scanner
	orchestrator *order.Orchestrator
	reconciler   *reconcile.Reconciler
	notifier     notify.Notifier
	log          *logger.Log

	mu    sync.RWMutex
	state State

	// now is stubbed in tests.
	now func() time.Time
}

// New wires a Scheduler over the engine components.
func New(cfg *config.Config, account exchange.Account, scanner *signal.Scanner, orchestrator *order.Orchestrator, reconciler *reconcile.Reconciler, notifier notify.Notifier) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		account:      account,
		scanner:      scanner,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		notifier:     notifier,
		log:          logger.GetLogger(),
		state:        StateIdle,
		now:          time.Now,
	}
}

// State returns the scheduler's current mode.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run executes aligned ticks until ctx is cancelled. Context cancellation is
// the only way out; internal failures end the current tick, not the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	log := s.log.WithComponent("scheduler")
	timeframe := s.cfg.TimeframeDuration()

	log.WithFields(logger.Fields{
		"timeframe":     s.cfg.Trading.Timeframe,
		"symbols":       len(s.cfg.Trading.Symbols),
		"max_positions": s.cfg.Trading.MaxPositions,
		"trading":       s.cfg.Trading.Enabled,
	}).Warn("scheduler starting")

	for {
		scheduled := s.now().Truncate(timeframe).Add(timeframe)
		s.setState(StateIdle)

		timer := time.NewTimer(scheduled.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		start := s.now()
		degraded := s.runTick(ctx, scheduled)
		s.logTickDone(scheduled, s.now().Sub(start), degraded)
	}
}

// runTick executes one tick and reports whether it was degraded. A panic
// anywhere inside the tick is contained here: logged, then treated as
// end-of-tick.
func (s *Scheduler) runTick(ctx context.Context, scheduled time.Time) (degraded bool) {
	log := s.log.WithComponent("scheduler")
	s.setState(StateTicking)

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{"panic": fmt.Sprint(r)}).Error("tick aborted by panic")
		}
	}()

	tick := &model.TickContext{
		TickID:      uuid.NewString(),
		ScheduledAt: scheduled,
		Deadline:    scheduled.Add(s.cfg.TimeframeDuration() - s.cfg.Scanner.SafetyMargin),
	}

	if !s.healthCheck(ctx, tick) {
		s.setState(StateDegraded)
		return true
	}

	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		log.WithError(err).Error("reconciliation failed, ending tick")
		return false
	}
	tick.InPosition = report.InPosition
	tick.OpenCount = report.OpenCount

	if report.Capacity == 0 {
		log.Info("position cap reached, skipping scan")
		return false
	}

	matches := s.scanner.Scan(ctx, tick, s.cfg.Trading.Symbols)
	s.dispatch(ctx, tick, matches, report.Capacity)
	return false
}

// healthCheck verifies connectivity and the balance floor. Returning false
// degrades the tick: no trading actions, loop continues.
func (s *Scheduler) healthCheck(ctx context.Context, tick *model.TickContext) bool {
	log := s.log.WithComponent("scheduler")

	balance, err := s.account.Balance(ctx)
	if err != nil {
		log.WithError(err).Error("cannot reach the exchange, degraded tick")
		s.notifier.Notify(notify.Message{
			Severity: notify.SeverityError,
			Text:     "cannot connect to the exchange API; check IP, permissions or wait",
		})
		return false
	}
	tick.Balance = balance

	if balance < s.cfg.Trading.CriticalBalance {
		log.WithFields(logger.Fields{"balance": balance}).Error("critical balance, degraded tick")
		s.notifier.Notify(notify.Message{
			Severity: notify.SeverityError,
			Text:     fmt.Sprintf("CRITICAL BALANCE: %.2f USDT", balance),
		})
		return false
	}

	pnl, err := s.account.UnrealizedPnL(ctx)
	if err != nil {
		log.WithError(err).Warn("unrealized pnl unavailable")
	} else {
		tick.UnrealizedPnL = pnl
	}

	log.WithFields(logger.Fields{
		"balance":    balance,
		"unrealized": tick.UnrealizedPnL,
	}).Info("health check passed")
	return true
}

// dispatch places brackets for matched signals sequentially until capacity is
// exhausted. Skipped signals cost no exchange calls.
func (s *Scheduler) dispatch(ctx context.Context, tick *model.TickContext, matches []model.Signal, capacity int) {
	log := s.log.WithComponent("scheduler")

	for _, sig := range matches {
		if capacity <= 0 {
			log.WithSymbol(sig.Symbol).Info("position cap reached, skipping signal")
			continue
		}

		if !s.cfg.Trading.Enabled {
			log.WithSymbol(sig.Symbol).Warn("trading disabled, signal not executed")
			s.notifier.Notify(notify.Message{
				Severity: notify.SeverityWarn,
				Symbol:   sig.Symbol,
				Text:     fmt.Sprintf("signal (%s) for %s", sig.Side, sig.Symbol),
			})
			capacity--
			continue
		}

		_, err := s.orchestrator.PlaceBracket(ctx, sig.Symbol, sig.Side,
			s.cfg.Trading.Volume, s.cfg.Trading.StopLossPct, s.cfg.Trading.TakeProfitPct)
		if err != nil {
			// Already notified by the orchestrator; the symbol is done for
			// this tick either way.
			log.WithSymbol(sig.Symbol).WithError(err).Error("bracket placement failed")
			continue
		}
		capacity--
	}
}

func (s *Scheduler) logTickDone(scheduled time.Time, took time.Duration, degraded bool) {
	logger.IncrementTick(degraded)
	s.log.WithComponent("scheduler").WithFields(logger.Fields{
		"scheduled": scheduled,
		"took_ms":   took.Milliseconds(),
		"degraded":  degraded,
	}).Info("tick completed")
}

// Package reconcile brings the engine's view in line with the exchange at
// the start of every tick: orphaned protective orders are cancelled and the
// remaining position capacity is computed.
package reconcile

import (
	"context"
	"fmt"

	"github.com/kleberhub/binance-futures-bot/config"
	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	"github.com/kleberhub/binance-futures-bot/internal/model"
	"github.com/kleberhub/binance-futures-bot/internal/notify"
	"github.com/kleberhub/binance-futures-bot/logger"
)

// Report summarizes one reconciliation pass.
type Report struct {
	Positions       []model.Position
	InPosition      map[string]struct{}
	OpenOrders      []model.Order
	CancelledOrders []string
	OpenCount       int
	Capacity        int
}

// Reconciler cancels orders left behind by closed positions and reports how
// many new positions this tick may open.
type Reconciler struct {
	account      exchange.Account
	orders       exchange.Orders
	notifier     notify.Notifier
	maxPositions int
	log          *logger.Log
}

// NewReconciler wires a Reconciler over the account and order gateways.
func NewReconciler(cfg *config.Config, account exchange.Account, orders exchange.Orders, notifier notify.Notifier) *Reconciler {
	return &Reconciler{
		account:      account,
		orders:       orders,
		notifier:     notifier,
		maxPositions: cfg.Trading.MaxPositions,
		log:          logger.GetLogger(),
	}
}

// Reconcile fetches live positions and orders, cancels every order whose
// symbol has no open position (a protective sibling left resting after its
// counterpart filled), then re-fetches the order list so the report never
// carries stale entries.
func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	log := r.log.WithComponent("reconciler")

	positions, err := r.account.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	inPosition := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		inPosition[p.Symbol] = struct{}{}
	}

	orders, err := r.account.OpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}

	// Cancel once per orphaned symbol, not once per order.
	orphaned := make(map[string]struct{})
	for _, o := range orders {
		if _, ok := inPosition[o.Symbol]; !ok {
			orphaned[o.Symbol] = struct{}{}
		}
	}

	cancelled := make([]string, 0, len(orphaned))
	for sym := range orphaned {
		if err := r.orders.CancelAllOrders(ctx, sym); err != nil {
			log.WithSymbol(sym).WithError(err).Error("failed to cancel orphaned orders")
			continue
		}
		cancelled = append(cancelled, sym)
		log.WithSymbol(sym).Info("cancelled orphaned orders")
		r.notifier.Notify(notify.Message{
			Severity: notify.SeverityWarn,
			Symbol:   sym,
			Text:     "cancelled protective orders left by a closed position",
		})
	}

	if len(cancelled) > 0 {
		orders, err = r.account.OpenOrders(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh open orders: %w", err)
		}
	}

	capacity := r.maxPositions - len(positions)
	if capacity < 0 {
		capacity = 0
	}

	log.WithFields(logger.Fields{
		"open_positions": len(positions),
		"open_orders":    len(orders),
		"cancelled":      len(cancelled),
		"capacity":       capacity,
	}).Info("reconciliation completed")

	return &Report{
		Positions:       positions,
		InPosition:      inPosition,
		OpenOrders:      orders,
		CancelledOrders: cancelled,
		OpenCount:       len(positions),
		Capacity:        capacity,
	}, nil
}

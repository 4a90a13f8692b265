// Package order places bracket orders: one entry plus its protective
// stop-loss and take-profit, treated as a single intent. The exchange offers
// no atomic commit for the three legs, so placement runs as a saga with a
// compensating market close on partial failure.
package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kleberhub/binance-futures-bot/config"
	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	"github.com/kleberhub/binance-futures-bot/internal/model"
	"github.com/kleberhub/binance-futures-bot/internal/notify"
	"github.com/kleberhub/binance-futures-bot/logger"
)

// Orchestrator validates candle freshness, prices the bracket and submits its
// three legs in order.
type Orchestrator struct {
	market   exchange.MarketData
	orders   exchange.Orders
	meta     exchange.SymbolMeta
	notifier notify.Notifier
	log      *logger.Log

	timeframe         string
	entryType         model.OrderType
	timeOffset        time.Duration
	freshnessAttempts int
	freshnessDelay    time.Duration
	submitPause       time.Duration

	// now is stubbed in tests.
	now func() time.Time
}

// NewOrchestrator wires an Orchestrator over the gateway contracts.
func NewOrchestrator(cfg *config.Config, market exchange.MarketData, orders exchange.Orders, meta exchange.SymbolMeta, notifier notify.Notifier) *Orchestrator {
	return &Orchestrator{
		market:            market,
		orders:            orders,
		meta:              meta,
		notifier:          notifier,
		log:               logger.GetLogger(),
		timeframe:         cfg.Trading.Timeframe,
		entryType:         model.OrderType(cfg.Orders.EntryType),
		timeOffset:        cfg.Exchange.TimeOffset,
		freshnessAttempts: cfg.Orders.FreshnessAttempts,
		freshnessDelay:    cfg.Orders.FreshnessDelay,
		submitPause:       cfg.Orders.SubmitPause,
		now:               time.Now,
	}
}

// PlaceBracket opens a position on symbol with protective stop-loss and
// take-profit orders. volume is the position size in quote currency; slPct
// and tpPct are fractional offsets from the reference price.
//
// Failure semantics: an entry that was never accepted leaves nothing on the
// exchange; a protective leg that fails after an accepted entry triggers
// exactly one compensating market close before the error is surfaced.
func (o *Orchestrator) PlaceBracket(ctx context.Context, symbol string, side model.Side, volume, slPct, tpPct float64) (*model.Bracket, error) {
	log := o.log.WithComponent("orchestrator").WithSymbol(symbol)

	candle, err := o.freshCandle(ctx, symbol)
	if err != nil {
		return nil, err
	}

	prec, err := o.meta.Precision(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("precision %s: %w", symbol, err)
	}

	price := candle.Open
	if price <= 0 {
		return nil, fmt.Errorf("%s: reference price %v is not positive", symbol, price)
	}
	qty := roundTo(volume/price, prec.Quantity)
	if qty <= 0 {
		return nil, fmt.Errorf("%s: volume %v rounds to zero quantity at price %v", symbol, volume, price)
	}

	var stopPrice, targetPrice float64
	if side == model.SideSell {
		stopPrice = roundTo(price*(1+slPct), prec.Price)
		targetPrice = roundTo(price*(1-tpPct), prec.Price)
	} else {
		stopPrice = roundTo(price*(1-slPct), prec.Price)
		targetPrice = roundTo(price*(1+tpPct), prec.Price)
	}

	bracket := &model.Bracket{
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
		EntryPrice:  roundTo(price, prec.Price),
		StopPrice:   stopPrice,
		TargetPrice: targetPrice,
	}

	entrySpec := model.OrderSpec{
		Symbol:   symbol,
		Side:     side,
		Type:     o.entryType,
		Quantity: qty,
		ClientID: clientID(model.RoleEntry),
	}
	if o.entryType == model.OrderTypeLimit {
		entrySpec.Price = bracket.EntryPrice
	}

	entryID, err := o.orders.SubmitOrder(ctx, entrySpec)
	if err != nil {
		// Nothing was entered, so nothing needs compensation.
		o.notifier.Notify(notify.Message{
			Severity: notify.SeverityError,
			Symbol:   symbol,
			Text:     fmt.Sprintf("entry rejected: %v", err),
		})
		return nil, fmt.Errorf("entry %s: %w", symbol, err)
	}
	bracket.EntryID = entryID

	closeSide := side.Opposite()

	o.pause(ctx)
	stopID, err := o.orders.SubmitOrder(ctx, model.OrderSpec{
		Symbol:        symbol,
		Side:          closeSide,
		Type:          model.OrderTypeStopMarket,
		StopPrice:     stopPrice,
		ClosePosition: true,
		ClientID:      clientID(model.RoleStopLoss),
	})
	if err != nil {
		return nil, o.compensate(ctx, symbol, model.RoleStopLoss, err)
	}
	bracket.StopLossID = stopID

	o.pause(ctx)
	targetID, err := o.orders.SubmitOrder(ctx, model.OrderSpec{
		Symbol:        symbol,
		Side:          closeSide,
		Type:          model.OrderTypeTakeProfitMarket,
		StopPrice:     targetPrice,
		ClosePosition: true,
		ClientID:      clientID(model.RoleTakeProfit),
	})
	if err != nil {
		return nil, o.compensate(ctx, symbol, model.RoleTakeProfit, err)
	}
	bracket.TakeProfitID = targetID

	log.WithFields(logger.Fields{
		"side":   string(side),
		"qty":    qty,
		"price":  bracket.EntryPrice,
		"sl":     stopPrice,
		"tp":     targetPrice,
		"entry":  entryID,
		"stop":   stopID,
		"target": targetID,
	}).Info("bracket placed")

	o.notifier.Notify(notify.Message{
		Severity: notify.SeverityWarn,
		Symbol:   symbol,
		Text: fmt.Sprintf("%s %v %s: price %v | sl %v - tp %v",
			side, qty, symbol, bracket.EntryPrice, stopPrice, targetPrice),
	})

	return bracket, nil
}

// freshCandle fetches the latest candle until its open time matches the
// current or previous aligned minute. Open times are absolute instants, so
// timeOffset is only a correction for a skewed host clock, normally zero.
// Exhausting the attempts is a hard failure for this symbol this tick.
func (o *Orchestrator) freshCandle(ctx context.Context, symbol string) (model.Candle, error) {
	log := o.log.WithComponent("orchestrator").WithSymbol(symbol)

	var lastOpen time.Time
	for attempt := 0; attempt < o.freshnessAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(o.freshnessDelay):
			case <-ctx.Done():
				return model.Candle{}, ctx.Err()
			}
		}

		candle, err := o.market.FetchLatestCandle(ctx, symbol, o.timeframe)
		if err != nil {
			log.WithError(err).Warn("latest candle fetch failed")
			continue
		}
		lastOpen = candle.OpenTime

		alignedNow := o.now().Add(o.timeOffset).Truncate(time.Minute).UTC()
		alignedPrev := alignedNow.Add(-time.Minute)
		open := candle.OpenTime.UTC()
		if open.Equal(alignedNow) || open.Equal(alignedPrev) {
			return candle, nil
		}

		log.WithFields(logger.Fields{
			"attempt":     attempt + 1,
			"candle_open": open,
			"aligned_now": alignedNow,
		}).Debug("candle not fresh yet")
	}

	err := &StaleDataError{Symbol: symbol, LastOpen: lastOpen, Attempts: o.freshnessAttempts}
	log.WithError(err).Error("freshness gate exhausted")
	o.notifier.Notify(notify.Message{
		Severity: notify.SeverityError,
		Symbol:   symbol,
		Text:     err.Error(),
	})
	return model.Candle{}, err
}

// compensate pulls any resting legs and flattens whatever position the entry
// produced. An entry without at least one working protective order must never
// be left open.
func (o *Orchestrator) compensate(ctx context.Context, symbol string, leg model.OrderRole, cause error) error {
	log := o.log.WithComponent("orchestrator").WithSymbol(symbol)
	log.WithError(cause).Error("protective order failed, compensating")

	if err := o.orders.CancelAllOrders(ctx, symbol); err != nil {
		log.WithError(err).Warn("failed to cancel resting orders during compensation")
	}

	compensated := true
	if err := o.orders.ClosePosition(ctx, symbol); err != nil {
		compensated = false
		log.WithError(err).Error("compensating close failed, position may be unprotected")
	}

	perr := &PartialBracketError{Symbol: symbol, Leg: leg, Err: cause, Compensated: compensated}
	o.notifier.Notify(notify.Message{
		Severity: notify.SeverityError,
		Symbol:   symbol,
		Text:     perr.Error(),
	})
	return perr
}

func (o *Orchestrator) pause(ctx context.Context) {
	if o.submitPause <= 0 {
		return
	}
	select {
	case <-time.After(o.submitPause):
	case <-ctx.Done():
	}
}

func clientID(role model.OrderRole) string {
	return fmt.Sprintf("bot-%s-%s", role, uuid.NewString()[:8])
}

func roundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

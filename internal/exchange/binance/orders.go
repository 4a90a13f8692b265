package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	futures "github.com/adshao/go-binance/v2/futures"

	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	"github.com/kleberhub/binance-futures-bot/internal/model"
	"github.com/kleberhub/binance-futures-bot/logger"
)

// marginTypeNoChange is returned when the margin type is already set as
// requested. Treated as success during startup setup.
const marginTypeNoChange = -4046

// SubmitOrder places spec and returns the exchange client order id.
func (g *Gateway) SubmitOrder(ctx context.Context, spec model.OrderSpec) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	prec, err := g.Precision(ctx, spec.Symbol)
	if err != nil {
		return "", err
	}

	svc := g.client.NewCreateOrderService().
		Symbol(spec.Symbol).
		Side(futures.SideType(spec.Side)).
		Type(futures.OrderType(spec.Type))

	switch spec.Type {
	case model.OrderTypeLimit:
		svc = svc.
			Quantity(formatValue(spec.Quantity, prec.Quantity)).
			Price(formatValue(spec.Price, prec.Price)).
			TimeInForce(futures.TimeInForceTypeGTC)
	case model.OrderTypeMarket:
		svc = svc.Quantity(formatValue(spec.Quantity, prec.Quantity))
		if spec.ReduceOnly {
			svc = svc.ReduceOnly(true)
		}
	case model.OrderTypeStopMarket, model.OrderTypeTakeProfitMarket:
		svc = svc.
			StopPrice(formatValue(spec.StopPrice, prec.Price)).
			TimeInForce(futures.TimeInForceTypeGTC)
		if spec.ClosePosition {
			svc = svc.ClosePosition(true)
		} else {
			svc = svc.Quantity(formatValue(spec.Quantity, prec.Quantity))
		}
	default:
		return "", fmt.Errorf("unsupported order type %q", spec.Type)
	}

	if spec.ClientID != "" {
		svc = svc.NewClientOrderID(spec.ClientID)
	}

	start := time.Now()
	resp, err := svc.Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow))
	if err != nil {
		return "", fmt.Errorf("submit %s %s %s: %w", spec.Type, spec.Side, spec.Symbol, err)
	}
	logger.LogPerformanceEntry(g.log.WithComponent("binance_gateway").WithSymbol(spec.Symbol), "binance_gateway", "submit_order", time.Since(start), logger.Fields{
		"type": string(spec.Type),
		"side": string(spec.Side),
	})
	logger.IncrementOrdersSubmitted()

	return resp.ClientOrderID, nil
}

// CancelOrder cancels one resting order by client order id.
func (g *Gateway) CancelOrder(ctx context.Context, symbol, clientID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := g.client.NewCancelOrderService().
		Symbol(symbol).
		OrigClientOrderID(clientID).
		Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow))
	if err != nil {
		return fmt.Errorf("cancel order %s on %s: %w", clientID, symbol, err)
	}
	logger.IncrementOrdersCancelled()
	return nil
}

// CancelAllOrders cancels every resting order on symbol.
func (g *Gateway) CancelAllOrders(ctx context.Context, symbol string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := g.client.NewCancelAllOpenOrdersService().
		Symbol(symbol).
		Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow)); err != nil {
		return fmt.Errorf("cancel all orders on %s: %w", symbol, err)
	}
	logger.IncrementOrdersCancelled()
	return nil
}

// ClosePosition flattens the net position on symbol with a reduce-only market
// order. A flat symbol is a no-op.
func (g *Gateway) ClosePosition(ctx context.Context, symbol string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	risks, err := g.client.NewGetPositionRiskService().
		Symbol(symbol).
		Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow))
	if err != nil {
		return fmt.Errorf("%w: position risk %s: %v", exchange.ErrUnavailable, symbol, err)
	}
	if len(risks) == 0 {
		return nil
	}
	size, err := strconv.ParseFloat(risks[0].PositionAmt, 64)
	if err != nil {
		return fmt.Errorf("parse position amount %q: %w", risks[0].PositionAmt, err)
	}
	if size == 0 {
		return nil
	}

	side := model.SideSell
	if size < 0 {
		side = model.SideBuy
	}

	_, err = g.SubmitOrder(ctx, model.OrderSpec{
		Symbol:     symbol,
		Side:       side,
		Type:       model.OrderTypeMarket,
		Quantity:   math.Abs(size),
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("close position %s: %w", symbol, err)
	}

	g.log.WithComponent("binance_gateway").WithSymbol(symbol).WithFields(logger.Fields{
		"size": size,
	}).Warn("closed open position at market")
	return nil
}

// SetupSymbol applies the configured margin type and leverage to symbol
// before trading starts. A margin type already in the requested mode is not
// an error.
func (g *Gateway) SetupSymbol(ctx context.Context, symbol string, marginType string, leverage int) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	err := g.client.NewChangeMarginTypeService().
		Symbol(symbol).
		MarginType(marginTypeFor(marginType)).
		Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow))
	if err != nil {
		var apiErr *common.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != marginTypeNoChange {
			return fmt.Errorf("change margin type %s: %w", symbol, err)
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := g.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow)); err != nil {
		return fmt.Errorf("change leverage %s: %w", symbol, err)
	}

	g.log.WithComponent("binance_gateway").WithSymbol(symbol).WithFields(logger.Fields{
		"margin_type": marginType,
		"leverage":    leverage,
	}).Info("symbol trade setup applied")
	return nil
}

// formatValue renders v with exactly the symbol's decimal precision, matching
// what the order endpoints accept.
func formatValue(v float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

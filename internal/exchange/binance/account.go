package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	"github.com/kleberhub/binance-futures-bot/internal/model"
	"github.com/kleberhub/binance-futures-bot/logger"
)

// balanceAsset is the settlement asset the account is denominated in.
const balanceAsset = "USDT"

// Balance returns the free USDT futures balance.
func (g *Gateway) Balance(ctx context.Context) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	balances, err := g.client.NewGetBalanceService().Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow))
	if err != nil {
		return 0, fmt.Errorf("%w: balance: %v", exchange.ErrUnavailable, err)
	}
	for _, b := range balances {
		if b.Asset != balanceAsset {
			continue
		}
		v, err := strconv.ParseFloat(b.Balance, 64)
		if err != nil {
			return 0, fmt.Errorf("parse balance %q: %w", b.Balance, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: no %s balance entry", exchange.ErrUnavailable, balanceAsset)
}

// UnrealizedPnL returns the account-wide unrealized profit.
func (g *Gateway) UnrealizedPnL(ctx context.Context) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	account, err := g.client.NewGetAccountService().Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow))
	if err != nil {
		return 0, fmt.Errorf("%w: account: %v", exchange.ErrUnavailable, err)
	}
	v, err := strconv.ParseFloat(account.TotalUnrealizedProfit, 64)
	if err != nil {
		return 0, fmt.Errorf("parse unrealized profit %q: %w", account.TotalUnrealizedProfit, err)
	}
	return v, nil
}

// Positions returns every non-flat position as a signed size snapshot.
func (g *Gateway) Positions(ctx context.Context) ([]model.Position, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	risks, err := g.client.NewGetPositionRiskService().Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow))
	if err != nil {
		return nil, fmt.Errorf("%w: position risk: %v", exchange.ErrUnavailable, err)
	}
	logger.LogPerformanceEntry(g.log.WithComponent("binance_gateway"), "binance_gateway", "fetch_positions", time.Since(start), nil)

	positions := make([]model.Position, 0, len(risks))
	for _, r := range risks {
		size, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil {
			g.log.WithComponent("binance_gateway").WithSymbol(r.Symbol).WithError(err).Warn("skipping unparsable position amount")
			continue
		}
		if size == 0 {
			continue
		}
		positions = append(positions, model.Position{Symbol: r.Symbol, Size: size})
	}
	return positions, nil
}

// OpenOrders returns all resting orders across every symbol.
func (g *Gateway) OpenOrders(ctx context.Context) ([]model.Order, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := g.client.NewListOpenOrdersService().Do(ctx, futures.WithRecvWindow(g.cfg.Exchange.RecvWindow))
	if err != nil {
		return nil, fmt.Errorf("%w: open orders: %v", exchange.ErrUnavailable, err)
	}

	orders := make([]model.Order, 0, len(raw))
	for _, o := range raw {
		price, _ := strconv.ParseFloat(o.Price, 64)
		stopPrice, _ := strconv.ParseFloat(o.StopPrice, 64)
		qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		orders = append(orders, model.Order{
			Symbol:     o.Symbol,
			Role:       roleForOrderType(model.OrderType(o.Type)),
			Side:       model.Side(o.Side),
			Type:       model.OrderType(o.Type),
			Price:      price,
			StopPrice:  stopPrice,
			Quantity:   qty,
			ExternalID: o.ClientOrderID,
		})
	}
	return orders, nil
}

func roleForOrderType(t model.OrderType) model.OrderRole {
	switch t {
	case model.OrderTypeStopMarket:
		return model.RoleStopLoss
	case model.OrderTypeTakeProfitMarket:
		return model.RoleTakeProfit
	default:
		return model.RoleEntry
	}
}

// marginTypeFor maps the configured margin mode onto the client constant.
func marginTypeFor(mode string) futures.MarginType {
	if strings.EqualFold(mode, "CROSSED") {
		return futures.MarginTypeCrossed
	}
	return futures.MarginTypeIsolated
}

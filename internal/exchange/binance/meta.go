package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	"github.com/kleberhub/binance-futures-bot/internal/model"
)

// precisionCache holds per-symbol precision metadata for the process
// lifetime. Values are idempotent per symbol, so concurrent misses may fetch
// redundantly; the first write wins and later writes store the same value.
type precisionCache struct {
	entries sync.Map // map[string]model.Precision
}

func (c *precisionCache) get(symbol string) (model.Precision, bool) {
	v, ok := c.entries.Load(symbol)
	if !ok {
		return model.Precision{}, false
	}
	return v.(model.Precision), true
}

func (c *precisionCache) put(symbol string, p model.Precision) {
	c.entries.LoadOrStore(symbol, p)
}

// Precision returns the price and quantity precision for symbol, fetching the
// exchange info table on the first miss and caching every listed symbol.
func (g *Gateway) Precision(ctx context.Context, symbol string) (model.Precision, error) {
	if p, ok := g.precisions.get(symbol); ok {
		return p, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return model.Precision{}, err
	}
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return model.Precision{}, fmt.Errorf("%w: exchange info: %v", exchange.ErrUnavailable, err)
	}

	for _, s := range info.Symbols {
		g.precisions.put(s.Symbol, model.Precision{
			Price:    s.PricePrecision,
			Quantity: s.QuantityPrecision,
		})
	}

	p, ok := g.precisions.get(symbol)
	if !ok {
		return model.Precision{}, fmt.Errorf("symbol %s not listed on exchange", symbol)
	}
	return p, nil
}

// USDTSymbols lists every symbol quoted in USDT, for operators trading the
// whole universe instead of a fixed list.
func (g *Gateway) USDTSymbols(ctx context.Context) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	prices, err := g.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: ticker prices: %v", exchange.ErrUnavailable, err)
	}

	symbols := make([]string, 0, len(prices))
	for _, p := range prices {
		if strings.HasSuffix(p.Symbol, "USDT") {
			symbols = append(symbols, p.Symbol)
		}
	}
	return symbols, nil
}

// RequestWeightLimit queries the REQUEST_WEIGHT per-minute budget from
// exchange info. Returns 0 when the limit cannot be determined.
func (g *Gateway) RequestWeightLimit(ctx context.Context) (int64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, rl := range info.RateLimits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			return rl.Limit, nil
		}
	}
	return 0, nil
}

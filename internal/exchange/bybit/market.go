// Package bybit implements the market-data contract against Bybit linear
// perpetuals. It exists so candle traffic can be moved off the Binance
// trading key when its request weight is tight; execution always stays on
// the trading venue.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"

	"github.com/kleberhub/binance-futures-bot/config"
	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	"github.com/kleberhub/binance-futures-bot/internal/model"
	"github.com/kleberhub/binance-futures-bot/logger"
)

// maxKlineLimit is the largest window the kline endpoint returns per call.
const maxKlineLimit = 1000

// intervals maps common timeframe identifiers onto Bybit interval codes.
var intervals = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
}

// MarketGateway fetches candles from the Bybit UTA market endpoints.
type MarketGateway struct {
	client  *bybit.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewMarketGateway creates a public (unsigned) Bybit client.
func NewMarketGateway(cfg *config.Config) *MarketGateway {
	log := logger.GetLogger()

	var client *bybit.Client
	if cfg.MarketData.BybitBaseURL != "" {
		client = bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(cfg.MarketData.BybitBaseURL))
	} else {
		client = bybit.NewBybitHttpClient("", "")
	}

	rps := cfg.Exchange.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Exchange.RateLimit.BurstSize
	if burst <= 0 {
		burst = rps
	}

	log.WithComponent("bybit_gateway").Info("bybit market gateway initialized")

	return &MarketGateway{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

type klineResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// FetchCandles returns up to limit most recent candles in ascending order.
func (g *MarketGateway) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (*model.CandleSeries, error) {
	window, err := g.fetchWindow(ctx, symbol, timeframe, limit, 0, 0)
	if err != nil {
		return nil, err
	}
	series := &model.CandleSeries{Symbol: symbol, Timeframe: timeframe}
	series.Merge(window)
	return series, nil
}

// FetchLatestCandle returns the single most recent candle, which may still be
// in progress.
func (g *MarketGateway) FetchLatestCandle(ctx context.Context, symbol, timeframe string) (model.Candle, error) {
	window, err := g.fetchWindow(ctx, symbol, timeframe, 1, 0, 0)
	if err != nil {
		return model.Candle{}, err
	}
	if len(window) == 0 {
		return model.Candle{}, fmt.Errorf("%w: empty kline response for %s", exchange.ErrUnavailable, symbol)
	}
	return window[len(window)-1], nil
}

// FetchCandleRange pages through [start, end) and merges the deduplicated
// union, ascending by open time.
func (g *MarketGateway) FetchCandleRange(ctx context.Context, symbol, timeframe string, start, end time.Time) (*model.CandleSeries, error) {
	bucket, ok := model.TimeframeDurations[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}

	series := &model.CandleSeries{Symbol: symbol, Timeframe: timeframe}
	step := bucket * maxKlineLimit
	for cursor := start; cursor.Before(end); cursor = cursor.Add(step) {
		windowEnd := cursor.Add(step)
		if windowEnd.After(end) {
			windowEnd = end
		}
		window, err := g.fetchWindow(ctx, symbol, timeframe, maxKlineLimit, cursor.UnixMilli(), windowEnd.UnixMilli())
		if err != nil {
			return nil, err
		}
		series.Merge(window)
	}
	return series, nil
}

func (g *MarketGateway) fetchWindow(ctx context.Context, symbol, timeframe string, limit int, startMs, endMs int64) ([]model.Candle, error) {
	interval, ok := intervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": "linear",
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}
	if startMs > 0 {
		params["start"] = startMs
	}
	if endMs > 0 {
		params["end"] = endMs
	}

	start := time.Now()
	resp, err := g.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: bybit kline %s: %v", exchange.ErrUnavailable, symbol, err)
	}
	log := g.log.WithComponent("bybit_gateway").WithSymbol(symbol)
	logger.LogPerformanceEntry(log, "bybit_gateway", "fetch_klines", time.Since(start), logger.Fields{
		"timeframe": timeframe,
	})
	logger.IncrementKlinesFetched()

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal kline result: %w", err)
	}
	var result klineResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal kline result: %w", err)
	}

	candles := make([]model.Candle, 0, len(result.List))
	for _, row := range result.List {
		c, err := parseRow(row)
		if err != nil {
			log.WithError(err).Warn("skipping malformed kline row")
			continue
		}
		candles = append(candles, c)
	}
	// Bybit returns newest first.
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})
	return candles, nil
}

func parseRow(row []string) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse start time %q: %w", row[0], err)
	}
	values := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("parse kline field %q: %w", row[i+1], err)
		}
		values[i] = v
	}
	return model.Candle{
		OpenTime: time.UnixMilli(ms).UTC(),
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}, nil
}

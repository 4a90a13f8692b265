package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	"github.com/kleberhub/binance-futures-bot/internal/model"
	"github.com/kleberhub/binance-futures-bot/logger"
)

// maxKlineLimit is the largest window the klines endpoint returns per call.
const maxKlineLimit = 1500

// FetchCandles returns up to limit most recent candles in ascending order.
func (g *Gateway) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (*model.CandleSeries, error) {
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
func (g *Gateway) FetchLatestCandle(ctx context.Context, symbol, timeframe string) (model.Candle, error) {
	window, err := g.fetchWindow(ctx, symbol, timeframe, 1, 0, 0)
	if err != nil {
		return model.Candle{}, err
	}
	if len(window) == 0 {
		return model.Candle{}, fmt.Errorf("%w: empty kline response for %s", exchange.ErrUnavailable, symbol)
	}
	return window[len(window)-1], nil
}

// FetchCandleRange pages through [start, end) in exchange-sized windows and
// merges the result. Overlapping pages are deduplicated by open time.
func (g *Gateway) FetchCandleRange(ctx context.Context, symbol, timeframe string, start, end time.Time) (*model.CandleSeries, error) {
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

func (g *Gateway) fetchWindow(ctx context.Context, symbol, timeframe string, limit int, startMs, endMs int64) ([]model.Candle, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	log := g.log.WithComponent("binance_gateway").WithSymbol(symbol)

	svc := g.client.NewKlinesService().Symbol(symbol).Interval(timeframe).Limit(limit)
	if startMs > 0 {
		svc = svc.StartTime(startMs)
	}
	if endMs > 0 {
		svc = svc.EndTime(endMs)
	}

	start := time.Now()
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s: %v", exchange.ErrUnavailable, symbol, err)
	}
	logger.LogPerformanceEntry(log, "binance_gateway", "fetch_klines", time.Since(start), logger.Fields{
		"timeframe": timeframe,
		"count":     len(klines),
	})
	logger.IncrementKlinesFetched()

	candles := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := parseKline(k)
		if err != nil {
			log.WithError(err).Warn("skipping malformed kline")
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseKline(k *futures.Kline) (model.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse low %q: %w", k.Low, err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse close %q: %w", k.Close, err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse volume %q: %w", k.Volume, err)
	}
	return model.Candle{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}, nil
}

package model

import (
	"sort"
	"time"
)

// Candle is one OHLCV record for a fixed time bucket of a symbol. Immutable
// once fetched.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// CandleSeries is an ordered sequence of candles for one (symbol, timeframe).
// Invariant: strictly increasing OpenTime, no duplicates.
type CandleSeries struct {
	Symbol    string
	Timeframe string
	Candles   []Candle
}

// Len returns the number of candles in the series.
func (s *CandleSeries) Len() int { return len(s.Candles) }

// Last returns the most recent candle. The second return is false when the
// series is empty.
func (s *CandleSeries) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Closed returns the series with the final candle dropped when its open time
// equals now truncated to the timeframe bucket, i.e. the bucket is still in
// progress. Momentum and volume math must only ever see closed candles.
func (s *CandleSeries) Closed(now time.Time, timeframe time.Duration) []Candle {
	if len(s.Candles) == 0 {
		return nil
	}
	last := s.Candles[len(s.Candles)-1]
	if last.OpenTime.Equal(now.Truncate(timeframe)) {
		return s.Candles[:len(s.Candles)-1]
	}
	return s.Candles
}

// Merge combines another window into the series, dropping duplicate open
// times (first occurrence wins) and keeping ascending order. Paginated
// fetches produce overlapping windows, so assembly always goes through here.
func (s *CandleSeries) Merge(window []Candle) {
	if len(window) == 0 {
		return
	}
	seen := make(map[int64]struct{}, len(s.Candles)+len(window))
	merged := make([]Candle, 0, len(s.Candles)+len(window))
	for _, c := range s.Candles {
		key := c.OpenTime.UnixMilli()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, c)
	}
	for _, c := range window {
		key := c.OpenTime.UnixMilli()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].OpenTime.Before(merged[j].OpenTime)
	})
	s.Candles = merged
}

// TimeframeDurations maps the supported timeframe identifiers to their bucket
// length. Matches the interval table of the exchange.
var TimeframeDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// Package signal decides which symbols to short: a momentum rule over closed
// candles, fanned out across the symbol universe by a bounded worker pool.
package signal

import (
	"time"

	"github.com/kleberhub/binance-futures-bot/config"
	"github.com/kleberhub/binance-futures-bot/internal/model"
)

// Evaluator applies the short-bias momentum/volume rule to one symbol's
// candle window. A signal fires when the rate of change of the close price
// over the lookback window is below the negative threshold and the test
// candle's volume exceeds the trailing mean volume scaled by the configured
// factor.
type Evaluator struct {
	rocPeriod    int
	rocThreshold float64
	volPeriod    int
	volFactor    float64
	timeframe    time.Duration
}

// NewEvaluator builds an Evaluator from the strategy configuration.
func NewEvaluator(cfg *config.Config) *Evaluator {
	return &Evaluator{
		rocPeriod:    cfg.Strategy.ROCPeriod,
		rocThreshold: cfg.Strategy.ROCThreshold,
		volPeriod:    cfg.Strategy.VolumePeriod,
		volFactor:    cfg.Strategy.VolumeFactor,
		timeframe:    cfg.TimeframeDuration(),
	}
}

// Evaluate returns a short signal for the series' last closed candle, or nil.
// Missing or insufficient history is "no signal", never an error. The
// in-progress candle is excluded before any math runs.
func (e *Evaluator) Evaluate(series *model.CandleSeries, now time.Time) *model.Signal {
	if series == nil {
		return nil
	}
	candles := series.Closed(now, e.timeframe)
	if len(candles) < e.rocPeriod+e.volPeriod+1 {
		return nil
	}

	test := candles[len(candles)-1]
	ref := candles[len(candles)-1-e.rocPeriod]
	if ref.Close == 0 {
		return nil
	}
	roc := (test.Close - ref.Close) / ref.Close * 100

	var volSum float64
	for _, c := range candles[len(candles)-1-e.volPeriod : len(candles)-1] {
		volSum += c.Volume
	}
	volThreshold := volSum / float64(e.volPeriod) * e.volFactor

	if roc < -e.rocThreshold && test.Volume > volThreshold {
		return &model.Signal{
			Symbol:     series.Symbol,
			Side:       model.SideSell,
			DetectedAt: test.OpenTime,
		}
	}
	return nil
}

// HistoryNeeded is the minimum number of closed candles Evaluate requires.
func (e *Evaluator) HistoryNeeded() int {
	return e.rocPeriod + e.volPeriod + 1
}

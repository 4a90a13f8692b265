package signal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kleberhub/binance-futures-bot/internal/model"
)

// fakeMarket serves canned candle series per symbol and counts fetches.
type fakeMarket struct {
	mu      sync.Mutex
	series  map[string]*model.CandleSeries
	errs    map[string]error
	fetches map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		series:  make(map[string]*model.CandleSeries),
		errs:    make(map[string]error),
		fetches: make(map[string]int),
	}
}

func (f *fakeMarket) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (*model.CandleSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[symbol]++
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.series[symbol], nil
}

func (f *fakeMarket) FetchCandleRange(ctx context.Context, symbol, timeframe string, start, end time.Time) (*model.CandleSeries, error) {
	return f.FetchCandles(ctx, symbol, timeframe, 0)
}

func (f *fakeMarket) FetchLatestCandle(ctx context.Context, symbol, timeframe string) (model.Candle, error) {
	s, err := f.FetchCandles(ctx, symbol, timeframe, 1)
	if err != nil {
		return model.Candle{}, err
	}
	if s == nil {
		return model.Candle{}, fmt.Errorf("%s: no candles", symbol)
	}
	last, ok := s.Last()
	if !ok {
		return model.Candle{}, fmt.Errorf("%s: no candles", symbol)
	}
	return last, nil
}

func (f *fakeMarket) fetchCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[symbol]
}

var (
	signalCloses  = []float64{100, 100, 100, 100, 100, 100, 100, 90}
	signalVolumes = []float64{10, 10, 10, 10, 10, 10, 10, 50}
	flatCloses    = []float64{100, 100, 100, 100, 100, 100, 100, 100}
	flatVolumes   = []float64{10, 10, 10, 10, 10, 10, 10, 10}
)

func newTick(now time.Time, inPosition ...string) *model.TickContext {
	tick := &model.TickContext{
		TickID:      "test-tick",
		ScheduledAt: now,
		Deadline:    now.Add(time.Minute),
		InPosition:  make(map[string]struct{}),
	}
	for _, sym := range inPosition {
		tick.InPosition[sym] = struct{}{}
	}
	return tick
}

func TestScanSkipsSymbolsInPosition(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	market := newFakeMarket()
	market.series["AAAUSDT"] = buildSeries("AAAUSDT", now, signalCloses, signalVolumes)
	market.series["BBBUSDT"] = buildSeries("BBBUSDT", now, signalCloses, signalVolumes)
	market.series["CCCUSDT"] = buildSeries("CCCUSDT", now, flatCloses, flatVolumes)

	cfg := testConfig()
	scanner := NewScanner(cfg, market, NewEvaluator(cfg))

	matches := scanner.Scan(context.Background(), newTick(now, "AAAUSDT"),
		[]string{"AAAUSDT", "BBBUSDT", "CCCUSDT"})

	if len(matches) != 1 || matches[0].Symbol != "BBBUSDT" {
		t.Fatalf("expected a single match for BBBUSDT, got %+v", matches)
	}
	if market.fetchCount("AAAUSDT") != 0 {
		t.Fatal("expected no candle fetch for the symbol already in position")
	}
}

func TestScanSortsMatchesBySymbol(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	market := newFakeMarket()
	for _, sym := range []string{"ZZZUSDT", "AAAUSDT", "MMMUSDT"} {
		market.series[sym] = buildSeries(sym, now, signalCloses, signalVolumes)
	}

	cfg := testConfig()
	scanner := NewScanner(cfg, market, NewEvaluator(cfg))

	matches := scanner.Scan(context.Background(), newTick(now),
		[]string{"ZZZUSDT", "AAAUSDT", "MMMUSDT"})

	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	for i, want := range []string{"AAAUSDT", "MMMUSDT", "ZZZUSDT"} {
		if matches[i].Symbol != want {
			t.Fatalf("match %d: expected %s, got %s", i, want, matches[i].Symbol)
		}
	}
}

func TestScanSurvivesPerSymbolFailure(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	market := newFakeMarket()
	market.errs["AAAUSDT"] = fmt.Errorf("timeout")
	market.series["BBBUSDT"] = buildSeries("BBBUSDT", now, signalCloses, signalVolumes)

	cfg := testConfig()
	scanner := NewScanner(cfg, market, NewEvaluator(cfg))

	matches := scanner.Scan(context.Background(), newTick(now),
		[]string{"AAAUSDT", "BBBUSDT"})

	if len(matches) != 1 || matches[0].Symbol != "BBBUSDT" {
		t.Fatalf("expected the healthy symbol to still match, got %+v", matches)
	}
}

func TestScanEmptyUniverse(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	cfg := testConfig()
	scanner := NewScanner(cfg, newFakeMarket(), NewEvaluator(cfg))

	if matches := scanner.Scan(context.Background(), newTick(now, "AAAUSDT"), []string{"AAAUSDT"}); matches != nil {
		t.Fatalf("expected nil matches, got %+v", matches)
	}
}

func TestScanStopsAtDeadline(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	market := newFakeMarket()
	for _, sym := range []string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT"} {
		market.series[sym] = buildSeries(sym, now, signalCloses, signalVolumes)
	}

	cfg := testConfig()
	scanner := NewScanner(cfg, market, NewEvaluator(cfg))

	tick := newTick(now)
	tick.Deadline = time.Now().Add(-time.Second)

	matches := scanner.Scan(context.Background(), tick,
		[]string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT"})

	// At most one job can slip through before the expired deadline is seen.
	if len(matches) > 1 {
		t.Fatalf("expected the expired deadline to drop symbols, got %+v", matches)
	}
}

package model

import (
	"testing"
	"time"
)

func mkCandle(t time.Time, close, volume float64) Candle {
	return Candle{OpenTime: t, Open: close, High: close, Low: close, Close: close, Volume: volume}
}

func TestMergeDeduplicatesAndSorts(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	full := make([]Candle, 0, 10)
	for i := 0; i < 10; i++ {
		full = append(full, mkCandle(base.Add(time.Duration(i)*time.Minute), float64(100+i), 1))
	}

	// Overlapping pages, second page out of order relative to the first.
	single := &CandleSeries{Symbol: "BTCUSDT", Timeframe: "1m"}
	single.Merge(full)

	paged := &CandleSeries{Symbol: "BTCUSDT", Timeframe: "1m"}
	paged.Merge(full[4:])
	paged.Merge(full[:6])
	paged.Merge(full[3:8])

	if paged.Len() != single.Len() {
		t.Fatalf("expected %d candles, got %d", single.Len(), paged.Len())
	}
	for i := range single.Candles {
		if !paged.Candles[i].OpenTime.Equal(single.Candles[i].OpenTime) {
			t.Fatalf("candle %d: expected open time %v, got %v", i, single.Candles[i].OpenTime, paged.Candles[i].OpenTime)
		}
		if paged.Candles[i].Close != single.Candles[i].Close {
			t.Fatalf("candle %d: expected close %v, got %v", i, single.Candles[i].Close, paged.Candles[i].Close)
		}
	}
}

func TestMergeKeepsFirstOccurrence(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	s := &CandleSeries{Symbol: "ETHUSDT", Timeframe: "1m"}
	s.Merge([]Candle{mkCandle(base, 100, 1)})
	s.Merge([]Candle{mkCandle(base, 999, 9)})

	if s.Len() != 1 {
		t.Fatalf("expected 1 candle, got %d", s.Len())
	}
	if s.Candles[0].Close != 100 {
		t.Fatalf("expected first occurrence to win, got close %v", s.Candles[0].Close)
	}
}

func TestClosedExcludesInProgressCandle(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	s := &CandleSeries{Symbol: "BTCUSDT", Timeframe: "5m"}
	s.Merge([]Candle{
		mkCandle(base, 100, 1),
		mkCandle(base.Add(5*time.Minute), 101, 1),
		mkCandle(base.Add(10*time.Minute), 102, 1),
	})

	// Now is inside the last candle's bucket: it must be dropped.
	now := base.Add(10*time.Minute + 30*time.Second)
	closed := s.Closed(now, 5*time.Minute)
	if len(closed) != 2 {
		t.Fatalf("expected 2 closed candles, got %d", len(closed))
	}
	if !closed[len(closed)-1].OpenTime.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("unexpected last closed candle %v", closed[len(closed)-1].OpenTime)
	}

	// Now is past the last bucket: all candles are closed.
	now = base.Add(15*time.Minute + time.Second)
	closed = s.Closed(now, 5*time.Minute)
	if len(closed) != 3 {
		t.Fatalf("expected 3 closed candles, got %d", len(closed))
	}
}

func TestSideOpposite(t *testing.T) {
	if SideSell.Opposite() != SideBuy {
		t.Fatalf("expected sell to close with buy")
	}
	if SideBuy.Opposite() != SideSell {
		t.Fatalf("expected buy to close with sell")
	}
}

package bybit

import (
	"testing"
	"time"
)

func TestParseRow(t *testing.T) {
	row := []string{"1767348000000", "100.5", "101.2", "99.8", "100.1", "1234.56", "123987.4"}

	c, err := parseRow(row)
	if err != nil {
		t.Fatalf("parse row: %v", err)
	}
	if !c.OpenTime.Equal(time.UnixMilli(1767348000000).UTC()) {
		t.Fatalf("unexpected open time %v", c.OpenTime)
	}
	if c.Open != 100.5 || c.High != 101.2 || c.Low != 99.8 || c.Close != 100.1 || c.Volume != 1234.56 {
		t.Fatalf("unexpected candle %+v", c)
	}
}

func TestParseRowTooShort(t *testing.T) {
	if _, err := parseRow([]string{"1767348000000", "100.5"}); err == nil {
		t.Fatal("expected an error on a short row")
	}
}

func TestIntervalMapping(t *testing.T) {
	for tf, want := range map[string]string{"1m": "1", "1h": "60", "1d": "D"} {
		if got := intervals[tf]; got != want {
			t.Fatalf("%s: expected %s, got %s", tf, want, got)
		}
	}
	if _, ok := intervals["7m"]; ok {
		t.Fatal("unexpected mapping for unsupported timeframe")
	}
}

// Package exchange defines the collaborator contracts the execution engine
// depends on. Concrete venues live in subpackages; the engine only ever sees
// these interfaces.
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/kleberhub/binance-futures-bot/internal/model"
)

// ErrUnavailable is returned when a gateway cannot reach the venue or the
// venue refuses the request transiently. Callers skip the unit of work for
// this tick rather than abort siblings.
var ErrUnavailable = errors.New("exchange unavailable")

// MarketData returns time-ordered OHLCV windows for a symbol and timeframe.
type MarketData interface {
	// FetchCandles returns up to limit most recent candles, ascending by
	// open time.
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (*model.CandleSeries, error)

	// FetchCandleRange pages through [start, end) in exchange-sized windows
	// and returns the deduplicated, ascending union.
	FetchCandleRange(ctx context.Context, symbol, timeframe string, start, end time.Time) (*model.CandleSeries, error)

	// FetchLatestCandle returns the single most recent candle, which may
	// still be in progress.
	FetchLatestCandle(ctx context.Context, symbol, timeframe string) (model.Candle, error)
}

// Account exposes read-only snapshots of the trading account.
type Account interface {
	Balance(ctx context.Context) (float64, error)
	UnrealizedPnL(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]model.Position, error)
	OpenOrders(ctx context.Context) ([]model.Order, error)
}

// Orders submits and cancels exchange orders.
type Orders interface {
	// SubmitOrder places spec and returns the exchange order id.
	SubmitOrder(ctx context.Context, spec model.OrderSpec) (string, error)

	// CancelOrder cancels a single resting order by client id.
	CancelOrder(ctx context.Context, symbol, clientID string) error

	// CancelAllOrders cancels every resting order on symbol.
	CancelAllOrders(ctx context.Context, symbol string) error

	// ClosePosition flattens the current net position on symbol with a
	// reduce-only market order. A flat symbol is a no-op.
	ClosePosition(ctx context.Context, symbol string) error
}

// SymbolMeta resolves per-symbol precision metadata. Implementations cache
// lazily for the process lifetime; values are idempotent per symbol so a
// redundant racing fetch is harmless.
type SymbolMeta interface {
	Precision(ctx context.Context, symbol string) (model.Precision, error)
}

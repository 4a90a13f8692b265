package model

import (
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderRole identifies which leg of a bracket an order belongs to.
type OrderRole string

const (
	RoleEntry      OrderRole = "entry"
	RoleStopLoss   OrderRole = "stop_loss"
	RoleTakeProfit OrderRole = "take_profit"
)

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// Signal is a single trade intent produced by the evaluator. Consumed once,
// never persisted.
type Signal struct {
	Symbol     string
	Side       Side
	DetectedAt time.Time
}

// Position is a snapshot of a live exchange position. Negative size is short,
// positive is long, zero is flat. The exchange owns the authoritative state;
// the engine only observes one snapshot per tick.
type Position struct {
	Symbol string
	Size   float64
}

// Flat reports whether the position carries no exposure.
func (p Position) Flat() bool { return p.Size == 0 }

// Order is a normalized view of a resting exchange order.
type Order struct {
	Symbol     string
	Role       OrderRole
	Side       Side
	Type       OrderType
	Price      float64
	StopPrice  float64
	Quantity   float64
	ExternalID string
}

// OrderSpec describes an order to submit. Price/StopPrice/Quantity are
// pre-rounded to the symbol's precision before submission.
type OrderSpec struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      float64
	Price         float64
	StopPrice     float64
	ClosePosition bool
	ReduceOnly    bool
	ClientID      string
}

// Bracket groups one entry with its protective stop-loss and take-profit as a
// single intended unit. The exchange offers no atomic commit for the three
// orders, so placement is a saga with a compensating close.
type Bracket struct {
	Symbol       string
	Side         Side
	Quantity     float64
	EntryPrice   float64
	StopPrice    float64
	TargetPrice  float64
	EntryID      string
	StopLossID   string
	TakeProfitID string
}

// Precision carries the decimal precision metadata for one symbol, fetched
// lazily from exchange info and cached for the process lifetime.
type Precision struct {
	Price    int
	Quantity int
}

// TickContext is the per-tick working set. Created fresh each tick and
// discarded at tick end.
type TickContext struct {
	TickID        string
	ScheduledAt   time.Time
	Deadline      time.Time
	Balance       float64
	UnrealizedPnL float64
	InPosition    map[string]struct{}
	OpenCount     int
}

// HasPosition reports whether symbol already carries an open position this
// tick.
func (tc *TickContext) HasPosition(symbol string) bool {
	_, ok := tc.InPosition[symbol]
	return ok
}

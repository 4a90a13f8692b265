package order

import (
	"fmt"
	"time"

	"github.com/kleberhub/binance-futures-bot/internal/model"
)

// StaleDataError reports that the candle-freshness gate exhausted its
// attempts without seeing a candle for the current or previous aligned
// minute. The symbol is abandoned for this tick and never retried later in
// the same tick.
type StaleDataError struct {
	Symbol   string
	LastOpen time.Time
	Attempts int
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("%s: number of attempts exceeded (%d): wrong candle %s",
		e.Symbol, e.Attempts, e.LastOpen.Format(time.RFC3339))
}

// PartialBracketError reports that the entry was accepted but a protective
// leg failed. A compensating market close has already been attempted by the
// time this error is returned; Compensated records whether it succeeded.
type PartialBracketError struct {
	Symbol      string
	Leg         model.OrderRole
	Err         error
	Compensated bool
}

func (e *PartialBracketError) Error() string {
	return fmt.Sprintf("%s: %s submission failed after entry (compensated=%t): %v",
		e.Symbol, e.Leg, e.Compensated, e.Err)
}

func (e *PartialBracketError) Unwrap() error { return e.Err }

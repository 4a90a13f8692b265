package notify

import (
	"testing"

	"github.com/kleberhub/binance-futures-bot/logger"
)

func TestNotifyNeverBlocks(t *testing.T) {
	n := NewLogNotifier(logger.GetLogger(), 2)
	defer n.Close()

	// Far beyond the buffer; excess messages are dropped, not queued.
	for i := 0; i < 100; i++ {
		n.Notify(Message{Severity: SeverityInfo, Text: "tick"})
	}
}

func TestCloseDrainsAndReturns(t *testing.T) {
	n := NewLogNotifier(logger.GetLogger(), 8)
	n.Notify(Message{Severity: SeverityWarn, Symbol: "BTCUSDT", Text: "signal"})
	n.Notify(Message{Severity: SeverityError, Text: "balance"})
	n.Close()
}

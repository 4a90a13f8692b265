// Package notify delivers severity-leveled, human-readable event messages.
// Delivery is fire-and-forget: a slow or failing sink never blocks the trading
// loop and never raises back into it.
package notify

import (
	"context"

	"github.com/kleberhub/binance-futures-bot/logger"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Message is one notification event.
type Message struct {
	Severity Severity
	Symbol   string
	Text     string
}

// Notifier accepts notifications without blocking.
type Notifier interface {
	Notify(msg Message)
}

// LogNotifier forwards notifications to the structured log through a buffered
// channel. When the buffer is full the message is dropped rather than
// blocking the caller.
type LogNotifier struct {
	log    *logger.Log
	ch     chan Message
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLogNotifier starts the delivery goroutine with the given buffer size.
func NewLogNotifier(log *logger.Log, buffer int) *LogNotifier {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &LogNotifier{
		log:    log,
		ch:     make(chan Message, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go n.run(ctx)
	return n
}

// Notify enqueues msg. Never blocks.
func (n *LogNotifier) Notify(msg Message) {
	select {
	case n.ch <- msg:
	default:
		// Buffer full. The log already carries the underlying event, so a
		// dropped notification loses nothing critical.
	}
}

// Close stops the delivery goroutine after draining buffered messages.
func (n *LogNotifier) Close() {
	n.cancel()
	<-n.done
}

func (n *LogNotifier) run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case msg := <-n.ch:
			n.deliver(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-n.ch:
					n.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (n *LogNotifier) deliver(msg Message) {
	entry := n.log.WithComponent("notify")
	if msg.Symbol != "" {
		entry = entry.WithSymbol(msg.Symbol)
	}
	switch msg.Severity {
	case SeverityError:
		entry.Error(msg.Text)
	case SeverityWarn:
		entry.Warn(msg.Text)
	default:
		entry.Info(msg.Text)
	}
}

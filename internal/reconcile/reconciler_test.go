package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kleberhub/binance-futures-bot/config"
	"github.com/kleberhub/binance-futures-bot/internal/model"
	"github.com/kleberhub/binance-futures-bot/internal/notify"
)

// fakeGateway backs both the account and order contracts. Open orders are
// served from a mutable map so cancellations are visible to the re-fetch.
type fakeGateway struct {
	mu          sync.Mutex
	positions   []model.Position
	orders      map[string][]model.Order
	orderCalls  int
	cancelCalls []string
	cancelErr   map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{orders: make(map[string][]model.Order), cancelErr: make(map[string]error)}
}

func (f *fakeGateway) Balance(ctx context.Context) (float64, error)       { return 1000, nil }
func (f *fakeGateway) UnrealizedPnL(ctx context.Context) (float64, error) { return 0, nil }

func (f *fakeGateway) Positions(ctx context.Context) ([]model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, nil
}

func (f *fakeGateway) OpenOrders(ctx context.Context) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	var out []model.Order
	for _, orders := range f.orders {
		out = append(out, orders...)
	}
	return out, nil
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, spec model.OrderSpec) (string, error) {
	return "", fmt.Errorf("not used")
}

func (f *fakeGateway) CancelOrder(ctx context.Context, symbol, clientID string) error { return nil }

func (f *fakeGateway) CancelAllOrders(ctx context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, symbol)
	if err := f.cancelErr[symbol]; err != nil {
		return err
	}
	delete(f.orders, symbol)
	return nil
}

func (f *fakeGateway) ClosePosition(ctx context.Context, symbol string) error { return nil }

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (f *fakeNotifier) Notify(msg notify.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func protective(symbol string) []model.Order {
	return []model.Order{
		{Symbol: symbol, Role: model.RoleStopLoss, Type: model.OrderTypeStopMarket},
		{Symbol: symbol, Role: model.RoleTakeProfit, Type: model.OrderTypeTakeProfitMarket},
	}
}

func testConfig(maxPositions int) *config.Config {
	return &config.Config{Trading: config.TradingConfig{MaxPositions: maxPositions}}
}

func TestReconcileCancelsOrphanedOrders(t *testing.T) {
	gw := newFakeGateway()
	gw.positions = []model.Position{{Symbol: "AAAUSDT", Size: -0.5}}
	gw.orders["AAAUSDT"] = protective("AAAUSDT")
	gw.orders["BBBUSDT"] = protective("BBBUSDT")
	notifier := &fakeNotifier{}

	r := NewReconciler(testConfig(3), gw, gw, notifier)
	report, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// BBBUSDT has two orphaned orders but exactly one cancel call.
	if len(gw.cancelCalls) != 1 || gw.cancelCalls[0] != "BBBUSDT" {
		t.Fatalf("expected a single cancel for BBBUSDT, got %v", gw.cancelCalls)
	}
	if len(report.CancelledOrders) != 1 || report.CancelledOrders[0] != "BBBUSDT" {
		t.Fatalf("unexpected cancelled list %v", report.CancelledOrders)
	}

	// The report reflects the post-cancellation order book.
	if len(report.OpenOrders) != 2 {
		t.Fatalf("expected 2 surviving orders, got %d", len(report.OpenOrders))
	}
	for _, o := range report.OpenOrders {
		if o.Symbol != "AAAUSDT" {
			t.Fatalf("expected only AAAUSDT orders to survive, got %s", o.Symbol)
		}
	}
	if gw.orderCalls != 2 {
		t.Fatalf("expected the order list to be re-fetched, got %d calls", gw.orderCalls)
	}

	if _, ok := report.InPosition["AAAUSDT"]; !ok {
		t.Fatalf("expected AAAUSDT in position, got %v", report.InPosition)
	}
	if _, ok := report.InPosition["BBBUSDT"]; ok {
		t.Fatalf("did not expect BBBUSDT in position, got %v", report.InPosition)
	}
	if report.Capacity != 2 {
		t.Fatalf("expected capacity 2, got %d", report.Capacity)
	}
	if len(notifier.msgs) != 1 || notifier.msgs[0].Symbol != "BBBUSDT" {
		t.Fatalf("expected one notification for BBBUSDT, got %+v", notifier.msgs)
	}
}

func TestReconcileNoOrphans(t *testing.T) {
	gw := newFakeGateway()
	gw.positions = []model.Position{{Symbol: "AAAUSDT", Size: -0.5}}
	gw.orders["AAAUSDT"] = protective("AAAUSDT")

	r := NewReconciler(testConfig(3), gw, gw, &fakeNotifier{})
	report, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(gw.cancelCalls) != 0 {
		t.Fatalf("expected no cancels, got %v", gw.cancelCalls)
	}
	if gw.orderCalls != 1 {
		t.Fatalf("expected no re-fetch without cancellations, got %d calls", gw.orderCalls)
	}
	if len(report.OpenOrders) != 2 {
		t.Fatalf("expected 2 open orders, got %d", len(report.OpenOrders))
	}
}

func TestReconcileCancelFailureKeepsGoing(t *testing.T) {
	gw := newFakeGateway()
	gw.orders["BBBUSDT"] = protective("BBBUSDT")
	gw.orders["CCCUSDT"] = protective("CCCUSDT")
	gw.cancelErr["BBBUSDT"] = fmt.Errorf("rate limited")

	r := NewReconciler(testConfig(3), gw, gw, &fakeNotifier{})
	report, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(gw.cancelCalls) != 2 {
		t.Fatalf("expected both symbols attempted, got %v", gw.cancelCalls)
	}
	if len(report.CancelledOrders) != 1 || report.CancelledOrders[0] != "CCCUSDT" {
		t.Fatalf("expected only CCCUSDT recorded as cancelled, got %v", report.CancelledOrders)
	}
}

func TestReconcileCapacityClamp(t *testing.T) {
	gw := newFakeGateway()
	gw.positions = []model.Position{
		{Symbol: "AAAUSDT", Size: -0.5},
		{Symbol: "BBBUSDT", Size: -0.3},
		{Symbol: "CCCUSDT", Size: -0.1},
	}

	r := NewReconciler(testConfig(2), gw, gw, &fakeNotifier{})
	report, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if report.Capacity != 0 {
		t.Fatalf("expected capacity clamped to 0, got %d", report.Capacity)
	}
	if report.OpenCount != 3 {
		t.Fatalf("expected open count 3, got %d", report.OpenCount)
	}
}

package paper

import (
	"context"
	"math"
	"testing"
	"time"

	"optionscore/internal/broker"
	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error"})
}

func fastSim() *Simulator {
	cfg := DefaultConfig()
	cfg.LatencyMin = time.Millisecond
	cfg.LatencyMax = 5 * time.Millisecond
	return New(cfg, nil, testLogger())
}

func awaitTerminal(t *testing.T, s *Simulator, id string) broker.OrderStatus {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		status, err := s.OrderStatus(context.Background(), id)
		if err == nil && status.State.IsTerminal() {
			return status
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("order never reached a terminal state")
	return broker.OrderStatus{}
}

func TestLimitFillWithSlippage(t *testing.T) {
	s := fastSim()
	s.PushTick(models.Tick{Symbol: "SYM", LTP: 150, TsLocal: time.Now()})

	id, err := s.PlaceOrder(context.Background(), broker.OrderRequest{
		BrokerSymbol: "SYM", Side: models.SideBuy, Qty: 50,
		OrderType: "LIMIT", Price: 150, ClientOrderID: "c1",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	status := awaitTerminal(t, s, id)
	if status.State != models.OrderFilled || status.FilledQty != 50 {
		t.Fatalf("status = %+v", status)
	}
	// Fill is limit ± slippage (0.05% additive).
	maxSlip := 150 * DefaultConfig().SlippagePct
	if math.Abs(status.AvgPrice-150) > maxSlip+1e-9 {
		t.Errorf("fill %v outside slippage band ±%v of 150", status.AvgPrice, maxSlip)
	}
}

func TestDuplicateClientOrderIDReturnsSameOrder(t *testing.T) {
	s := fastSim()
	s.PushTick(models.Tick{Symbol: "SYM", LTP: 150, TsLocal: time.Now()})

	req := broker.OrderRequest{
		BrokerSymbol: "SYM", Side: models.SideBuy, Qty: 50,
		OrderType: "LIMIT", Price: 150, ClientOrderID: "dup-key",
	}
	id1, _ := s.PlaceOrder(context.Background(), req)
	id2, _ := s.PlaceOrder(context.Background(), req)
	if id1 != id2 {
		t.Errorf("duplicate client order id created a second order: %s vs %s", id1, id2)
	}

	status, found, err := s.FindOrderByClientID(context.Background(), "dup-key")
	if err != nil || !found {
		t.Fatalf("find: %v found=%v", err, found)
	}
	if status.BrokerOrderID != id1 {
		t.Errorf("find resolved %s, want %s", status.BrokerOrderID, id1)
	}
}

func TestCancelBeforeFill(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LatencyMin = 200 * time.Millisecond // slow enough to cancel first
	cfg.LatencyMax = 300 * time.Millisecond
	s := New(cfg, nil, testLogger())
	s.PushTick(models.Tick{Symbol: "SYM", LTP: 150, TsLocal: time.Now()})

	id, _ := s.PlaceOrder(context.Background(), broker.OrderRequest{
		BrokerSymbol: "SYM", Side: models.SideBuy, Qty: 50,
		OrderType: "LIMIT", Price: 150, ClientOrderID: "c1",
	})
	if err := s.CancelOrder(context.Background(), id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	status, _ := s.OrderStatus(context.Background(), id)
	if status.State != models.OrderCancelled {
		t.Errorf("state = %v, want cancelled", status.State)
	}
	// The scheduled fill must not resurrect a cancelled order.
	time.Sleep(400 * time.Millisecond)
	status, _ = s.OrderStatus(context.Background(), id)
	if status.State != models.OrderCancelled {
		t.Errorf("cancelled order filled later: %v", status.State)
	}
}

func TestMarketOrderFillsAtBookPrice(t *testing.T) {
	s := fastSim()
	s.PushTick(models.Tick{Symbol: "SYM", LTP: 142, TsLocal: time.Now()})

	id, _ := s.PlaceOrder(context.Background(), broker.OrderRequest{
		BrokerSymbol: "SYM", Side: models.SideSell, Qty: 50,
		OrderType: "MARKET", ClientOrderID: "m1",
	})
	status := awaitTerminal(t, s, id)
	maxSlip := 142 * DefaultConfig().SlippagePct
	if math.Abs(status.AvgPrice-142) > maxSlip+1e-9 {
		t.Errorf("market fill %v not at book price 142 ± slippage", status.AvgPrice)
	}
}

func TestNoPriceRejects(t *testing.T) {
	s := fastSim()
	id, _ := s.PlaceOrder(context.Background(), broker.OrderRequest{
		BrokerSymbol: "UNSEEN", Side: models.SideBuy, Qty: 50,
		OrderType: "MARKET", ClientOrderID: "x1",
	})
	status := awaitTerminal(t, s, id)
	if status.State != models.OrderRejected {
		t.Errorf("state = %v, want rejected without a market price", status.State)
	}
}

func TestTicksForwardedToSubscribers(t *testing.T) {
	s := fastSim()
	tk := models.Tick{Symbol: "SYM", LTP: 150, TsLocal: time.Now()}
	s.PushTick(tk)

	select {
	case got := <-s.Ticks():
		if got.Symbol != "SYM" || got.LTP != 150 {
			t.Errorf("tick = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("tick not forwarded")
	}
}

func TestOrderUpdatePushed(t *testing.T) {
	s := fastSim()
	s.PushTick(models.Tick{Symbol: "SYM", LTP: 150, TsLocal: time.Now()})
	s.PlaceOrder(context.Background(), broker.OrderRequest{
		BrokerSymbol: "SYM", Side: models.SideBuy, Qty: 50,
		OrderType: "LIMIT", Price: 150, ClientOrderID: "u1",
	})

	select {
	case u := <-s.OrderUpdates():
		if u.ClientOrderID != "u1" || u.Status.State != models.OrderFilled {
			t.Errorf("update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no order update pushed")
	}
}

package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"optionscore/internal/bus"
	"optionscore/internal/coreerr"
	"optionscore/internal/instrument"
	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error"})
}

const optSymbol = "NIFTY06AUG23450CE"

func testCache() *instrument.Cache {
	c := instrument.NewCache()
	c.Reload([]models.Instrument{{
		Token:         "t1",
		TradingSymbol: optSymbol,
		Underlying:    "NIFTY",
		Expiry:        time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC),
		Strike:        23450,
		OptionType:    models.OptionCE,
		LotSize:       50,
		TickSize:      0.05,
	}})
	return c
}

type capturePub struct {
	mu     sync.Mutex
	events []bus.Event
}

func (p *capturePub) Publish(ev bus.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *capturePub) byType(et bus.EventType) []bus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []bus.Event
	for _, e := range p.events {
		if e.Type() == et {
			out = append(out, e)
		}
	}
	return out
}

// fakeExecutor fills exits at the current limit price; block makes calls
// wait until release, to test merging while Closing.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []models.OrderIntent
	fillPx  float64
	block   chan struct{}
	failErr error
}

func (f *fakeExecutor) ExecuteExit(_ context.Context, intent models.OrderIntent, _ models.Instrument, _ string, _ bus.ExitPriority) (models.Order, error) {
	f.mu.Lock()
	f.calls = append(f.calls, intent)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.failErr != nil {
		return models.Order{}, f.failErr
	}
	return models.Order{
		IntentID:     intent.ID,
		State:        models.OrderFilled,
		FilledQty:    intent.Qty,
		AvgFillPrice: f.fillPx,
	}, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestManager(t *testing.T, exec Executor) (*Manager, *capturePub) {
	t.Helper()
	pub := &capturePub{}
	m := NewManager(context.Background(), DefaultConfig(), exec, testCache(), nil, nil, pub, testLogger())
	return m, pub
}

func openPosition(t *testing.T, m *Manager, entryPrice float64) models.Position {
	t.Helper()
	sig := models.Signal{ID: "sig-1", Kind: models.SignalEntryLongCE, Symbol: optSymbol, Strike: 23450}
	intent := models.OrderIntent{ID: "int-1", BrokerSymbol: optSymbol, Side: models.SideBuy, Qty: 50}
	order := models.Order{State: models.OrderFilled, FilledQty: 50, AvgFillPrice: entryPrice}
	pos, err := m.OpenFromFill(sig, intent, order, 23456)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return pos
}

func tickAt(px float64, at time.Time) models.Tick {
	return models.Tick{Symbol: optSymbol, LTP: px, TsExchange: at, TsLocal: at}
}

var t0 = time.Date(2026, 8, 3, 10, 30, 0, 0, time.UTC)

func TestOpenFromFill(t *testing.T) {
	m, pub := newTestManager(t, &fakeExecutor{})
	pos := openPosition(t, m, 150.50)

	if pos.StopLoss != 150.50*0.80 {
		t.Errorf("stop loss = %v, want 20%% under entry", pos.StopLoss)
	}
	if pos.TrailingActive {
		t.Error("trailing must start inactive")
	}
	if pos.Status != models.PositionOpen {
		t.Errorf("status = %v", pos.Status)
	}
	if m.OpenCount() != 1 {
		t.Errorf("open count = %d", m.OpenCount())
	}
	if len(pub.byType(bus.EventPositionOpened)) != 1 {
		t.Error("PositionOpened must publish")
	}
}

func TestSecondPositionSameExposureIsInvariantViolation(t *testing.T) {
	m, _ := newTestManager(t, &fakeExecutor{})
	openPosition(t, m, 150)

	sig := models.Signal{ID: "sig-2", Symbol: optSymbol}
	intent := models.OrderIntent{ID: "int-2", BrokerSymbol: optSymbol, Side: models.SideBuy, Qty: 50}
	order := models.Order{State: models.OrderFilled, FilledQty: 50, AvgFillPrice: 151}
	_, err := m.OpenFromFill(sig, intent, order, 23456)
	if !errors.Is(err, coreerr.ErrInvariantViolation) {
		t.Errorf("err = %v, want invariant violation", err)
	}
}

// Scenario: entry 150.50; 152 leaves trailing inactive, 154 activates it at
// 151.69, 158 -> 155.63, 160 -> 157.60, and 157 crosses under the stop.
func TestTrailingStopLifecycle(t *testing.T) {
	m, pub := newTestManager(t, &fakeExecutor{})
	openPosition(t, m, 150.50)

	steps := []struct {
		px           float64
		active       bool
		trailingStop float64
	}{
		{152, false, 0},
		{154, true, 154 * 0.985},
		{158, true, 158 * 0.985},
		{160, true, 160 * 0.985},
	}
	var prevStop float64
	for i, step := range steps {
		m.OnTick(tickAt(step.px, t0.Add(time.Duration(i)*time.Second)))
		snap, _ := m.OpenPositionFor("NIFTY")
		if snap.TrailingActive != step.active {
			t.Fatalf("px %v: active = %v, want %v", step.px, snap.TrailingActive, step.active)
		}
		if step.active {
			if diff := snap.TrailingStop - step.trailingStop; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("px %v: trailing stop = %v, want %v", step.px, snap.TrailingStop, step.trailingStop)
			}
			if snap.TrailingStop < prevStop {
				t.Errorf("trailing stop moved down: %v -> %v", prevStop, snap.TrailingStop)
			}
			prevStop = snap.TrailingStop
		}
		if len(pub.byType(bus.EventExitSignal)) != 0 {
			t.Fatalf("px %v: no exit expected yet", step.px)
		}
	}

	// 157 < 157.60: trailing stop hit.
	m.OnTick(tickAt(157, t0.Add(10*time.Second)))
	exits := pub.byType(bus.EventExitSignal)
	if len(exits) != 1 {
		t.Fatalf("exits = %d, want 1", len(exits))
	}
	es := exits[0].(bus.ExitSignalEvent)
	if es.Reason != "TrailingStop" || es.Priority != bus.PriorityProfit {
		t.Errorf("exit = %+v", es)
	}
}

// A pullback must never lower the trailing stop (monotonic invariant).
func TestTrailingStopMonotonicOnPullback(t *testing.T) {
	m, _ := newTestManager(t, &fakeExecutor{})
	openPosition(t, m, 150.50)

	m.OnTick(tickAt(160, t0)) // activates, stop 157.60
	snap, _ := m.OpenPositionFor("NIFTY")
	stop := snap.TrailingStop

	m.OnTick(tickAt(158, t0.Add(time.Second))) // pullback above the stop
	snap, _ = m.OpenPositionFor("NIFTY")
	if snap.TrailingStop != stop {
		t.Errorf("pullback moved the stop: %v -> %v", stop, snap.TrailingStop)
	}
}

func TestStopLossExit(t *testing.T) {
	m, pub := newTestManager(t, &fakeExecutor{})
	openPosition(t, m, 150)

	m.OnTick(tickAt(119, t0)) // under 150*0.80 = 120
	exits := pub.byType(bus.EventExitSignal)
	if len(exits) != 1 {
		t.Fatalf("exits = %d, want 1", len(exits))
	}
	es := exits[0].(bus.ExitSignalEvent)
	if es.Reason != "StopLoss" || es.Priority != bus.PriorityRisk {
		t.Errorf("exit = %+v", es)
	}
}

// When risk and profit tiers hit on the same tick, risk wins and the other
// reasons land in secondary.
func TestExitPriorityFirstHitWins(t *testing.T) {
	m, pub := newTestManager(t, &fakeExecutor{})
	openPosition(t, m, 150)

	m.OnTick(tickAt(190, t0)) // trailing activates at 187.15
	// Collapse straight through both the premium stop (120) and the
	// trailing stop in one tick.
	m.OnTick(tickAt(100, t0.Add(time.Second)))

	exits := pub.byType(bus.EventExitSignal)
	if len(exits) != 1 {
		t.Fatalf("exits = %d, want 1", len(exits))
	}
	es := exits[0].(bus.ExitSignalEvent)
	if es.Reason != "StopLoss" {
		t.Errorf("primary = %s, want StopLoss (risk tier)", es.Reason)
	}
	found := false
	for _, s := range es.Secondary {
		if s == "TrailingStop" {
			found = true
		}
	}
	if !found {
		t.Errorf("secondary = %v, want TrailingStop recorded", es.Secondary)
	}
}

func TestExitSignalsMergeWhileClosing(t *testing.T) {
	exec := &fakeExecutor{fillPx: 140, block: make(chan struct{})}
	m, pub := newTestManager(t, exec)
	pos := openPosition(t, m, 150)

	first := bus.ExitSignalEvent{Base: bus.Base{Ts: t0}, PositionID: pos.ID, Reason: "StopLoss", Priority: bus.PriorityRisk}
	m.HandleExitSignal(first)

	// Wait for the exit worker to claim the executor.
	deadline := time.Now().Add(time.Second)
	for exec.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	second := bus.ExitSignalEvent{Base: bus.Base{Ts: t0}, PositionID: pos.ID, Reason: "EodMandatoryExit", Priority: bus.PriorityMandatory}
	m.HandleExitSignal(second)

	close(exec.block)
	// Wait for completion.
	deadline = time.Now().Add(time.Second)
	for m.OpenCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if exec.callCount() != 1 {
		t.Errorf("executor called %d times, duplicates must merge", exec.callCount())
	}
	closed := pub.byType(bus.EventPositionClosed)
	if len(closed) != 1 {
		t.Fatalf("PositionClosed = %d, want 1", len(closed))
	}
	pc := closed[0].(bus.PositionClosedEvent)
	if pc.Position.PendingExitReason != "StopLoss" {
		t.Errorf("primary reason = %s, want the first signal", pc.Position.PendingExitReason)
	}
	merged := false
	for _, s := range pc.Position.PendingExitSecondary {
		if s == "EodMandatoryExit" {
			merged = true
		}
	}
	if !merged {
		t.Errorf("secondary = %v, want the merged signal", pc.Position.PendingExitSecondary)
	}
}

func TestCompleteExitRealizesPnlAndStreak(t *testing.T) {
	exec := &fakeExecutor{fillPx: 140}
	m, pub := newTestManager(t, exec)
	pos := openPosition(t, m, 150)

	m.HandleExitSignal(bus.ExitSignalEvent{Base: bus.Base{Ts: t0}, PositionID: pos.ID, Reason: "StopLoss", Priority: bus.PriorityRisk})

	deadline := time.Now().Add(time.Second)
	for m.OpenCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	realized, streak := m.RealizedToday()
	if realized != (140-150)*50 {
		t.Errorf("realized = %v, want -500", realized)
	}
	if streak != 1 {
		t.Errorf("loss streak = %d, want 1", streak)
	}
	if len(pub.byType(bus.EventPositionClosed)) != 1 {
		t.Error("PositionClosed must publish")
	}
	if m.OpenCount() != 0 {
		t.Error("position must leave the book")
	}
}

func TestExitAllRaisesMandatoryExits(t *testing.T) {
	m, pub := newTestManager(t, &fakeExecutor{})
	openPosition(t, m, 150)

	m.ExitAll("EodMandatoryExit", bus.PriorityMandatory, t0)
	exits := pub.byType(bus.EventExitSignal)
	if len(exits) != 1 {
		t.Fatalf("exits = %d, want one per open position", len(exits))
	}
	es := exits[0].(bus.ExitSignalEvent)
	if es.Reason != "EodMandatoryExit" || es.Priority != bus.PriorityMandatory {
		t.Errorf("exit = %+v", es)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	m, _ := newTestManager(t, &fakeExecutor{})
	openPosition(t, m, 150)

	snaps := m.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d", len(snaps))
	}
	snaps[0].CurrentPrice = 9999
	again, _ := m.OpenPositionFor("NIFTY")
	if again.CurrentPrice == 9999 {
		t.Error("snapshot mutation must not touch the manager's state")
	}
}

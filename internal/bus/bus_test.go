package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"optionscore/internal/ledger"
	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error"})
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(t.TempDir(), time.Now(), testLogger())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// runBus starts the bus and returns a stop function that drains it.
func runBus(t *testing.T, b *Bus) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	return func() {
		time.Sleep(50 * time.Millisecond) // let queued events dispatch
		cancel()
		<-done
	}
}

func TestPublishDispatchesToSubscribers(t *testing.T) {
	b := New(nil, testLogger())

	var mu sync.Mutex
	var got []EventType
	b.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type())
		mu.Unlock()
	}, EventMarketOpen, EventMarketClose)

	stop := runBus(t, b)
	b.Publish(NewClockEvent(EventMarketOpen, time.Now()))
	b.Publish(NewClockEvent(EventMarketClose, time.Now()))
	b.Publish(NewClockEvent(EventEntryWindowOpen, time.Now())) // not subscribed
	stop()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != EventMarketOpen || got[1] != EventMarketClose {
		t.Errorf("dispatched = %v", got)
	}
}

func TestCriticalEventDeduplicated(t *testing.T) {
	b := New(testLedger(t), testLogger())

	var mu sync.Mutex
	count := 0
	b.Subscribe(func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, EventSignal)

	sig := models.Signal{ID: "s1", Kind: models.SignalEntryLongCE, IdempotencyKey: "same-key"}
	stop := runBus(t, b)
	b.Publish(SignalEvent{Base: Base{Ts: time.Now()}, Signal: sig})
	b.Publish(SignalEvent{Base: Base{Ts: time.Now()}, Signal: sig}) // duplicate
	stop()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("signal dispatched %d times, want exactly once", count)
	}
}

func TestDistinctKeysBothDispatch(t *testing.T) {
	b := New(testLedger(t), testLogger())

	var mu sync.Mutex
	count := 0
	b.Subscribe(func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, EventSignal)

	stop := runBus(t, b)
	b.Publish(SignalEvent{Base: Base{Ts: time.Now()}, Signal: models.Signal{IdempotencyKey: "k1"}})
	b.Publish(SignalEvent{Base: Base{Ts: time.Now()}, Signal: models.Signal{IdempotencyKey: "k2"}})
	stop()

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("dispatched %d, want 2", count)
	}
}

type countingConsumer struct {
	mu    sync.Mutex
	ticks []models.Tick
}

func (c *countingConsumer) Name() string { return "counting" }
func (c *countingConsumer) OnTick(t models.Tick) {
	c.mu.Lock()
	c.ticks = append(c.ticks, t)
	c.mu.Unlock()
}

func TestTickFanOutPreservesOrder(t *testing.T) {
	b := New(nil, testLogger())
	c := &countingConsumer{}
	b.SubscribeTicks(c)

	stop := runBus(t, b)
	base := time.Now()
	for i := 0; i < 100; i++ {
		b.PublishTick(models.Tick{Symbol: "NIFTY", LTP: float64(i), TsLocal: base.Add(time.Duration(i) * time.Millisecond)})
	}
	stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ticks) != 100 {
		t.Fatalf("received %d ticks, want 100", len(c.ticks))
	}
	for i, tk := range c.ticks {
		if tk.LTP != float64(i) {
			t.Fatalf("tick %d out of order: ltp %v", i, tk.LTP)
		}
	}
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	b := New(nil, testLogger())

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe(func(Event) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, EventMarketOpen)
	}

	stop := runBus(t, b)
	b.Publish(NewClockEvent(EventMarketOpen, time.Now()))
	stop()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("handler order = %v", order)
	}
}

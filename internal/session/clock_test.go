package session

import (
	"sync"
	"testing"
	"time"

	"optionscore/internal/bus"
	"optionscore/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error"})
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

func (p *capturePub) types() []bus.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bus.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type()
	}
	return out
}

func testConfig() Config {
	return Config{
		MarketOpen:       utils.NewClockTime(9, 15),
		EntryWindowStart: utils.NewClockTime(10, 0),
		EntryWindowEnd:   utils.NewClockTime(14, 30),
		EodExitTime:      utils.NewClockTime(15, 20),
		MarketClose:      utils.NewClockTime(15, 30),
	}
}

// monday is a regular trading day.
var monday = time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

func newTestClock(pub *capturePub, now *time.Time) *Clock {
	cal := NewCalendar(time.UTC, []string{"2026-08-15"})
	return NewClock(testConfig(), cal, pub, testLogger(), func() time.Time { return *now })
}

func TestCalendar(t *testing.T) {
	cal := NewCalendar(time.UTC, []string{"2026-08-15", "2026-10-02"})

	if !cal.IsTradingDay(monday) {
		t.Error("Monday should be a trading day")
	}
	saturday := time.Date(2026, 8, 8, 12, 0, 0, 0, time.UTC)
	if cal.IsTradingDay(saturday) {
		t.Error("Saturday must not be a trading day")
	}
	holiday := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	if cal.IsTradingDay(holiday) {
		t.Error("listed holiday must not be a trading day")
	}

	// Friday 2026-08-14 -> Saturday holiday on the 15th is skipped anyway,
	// next trading day is Monday the 17th.
	friday := time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)
	next := cal.NextTradingDay(friday)
	if next.Day() != 17 {
		t.Errorf("next trading day = %v, want the 17th", next)
	}
}

func TestPhaseTransitions(t *testing.T) {
	now := monday
	clock := newTestClock(&capturePub{}, &now)

	tests := []struct {
		at    string
		phase Phase
	}{
		{"08:00", PhasePreOpen},
		{"09:15", PhaseOpen},
		{"09:59", PhaseOpen},
		{"10:00", PhaseEntryWindow},
		{"14:29", PhaseEntryWindow},
		{"14:30", PhaseLateSession},
		{"15:19", PhaseLateSession},
		{"15:20", PhasePostEod},
		{"15:30", PhaseClosed},
		{"18:00", PhaseClosed},
	}
	for _, tt := range tests {
		ct, _ := utils.ParseClockTime(tt.at)
		at := ct.On(monday)
		if got := clock.Phase(at); got != tt.phase {
			t.Errorf("Phase(%s) = %v, want %v", tt.at, got, tt.phase)
		}
	}

	saturday := time.Date(2026, 8, 8, 11, 0, 0, 0, time.UTC)
	if clock.Phase(saturday) != PhaseClosed {
		t.Error("weekend must be closed")
	}
}

func TestInEntryWindow(t *testing.T) {
	now := monday
	clock := newTestClock(&capturePub{}, &now)

	inWindow := time.Date(2026, 8, 3, 11, 0, 0, 0, time.UTC)
	if !clock.InEntryWindow(inWindow) {
		t.Error("11:00 should be inside the entry window")
	}
	outside := time.Date(2026, 8, 3, 15, 0, 0, 0, time.UTC)
	if clock.InEntryWindow(outside) {
		t.Error("15:00 must be outside the entry window")
	}
}

func TestClockEmitsSessionEventsOnce(t *testing.T) {
	pub := &capturePub{}
	now := time.Date(2026, 8, 3, 9, 14, 59, 0, time.UTC)
	clock := newTestClock(pub, &now)

	clock.tick() // schedules the day, nothing due yet
	if len(pub.types()) != 0 {
		t.Fatalf("no events due before open, got %v", pub.types())
	}

	now = time.Date(2026, 8, 3, 9, 15, 0, 500, time.UTC)
	clock.tick()
	clock.tick() // same second again: no re-fire

	types := pub.types()
	if len(types) != 1 || types[0] != bus.EventMarketOpen {
		t.Fatalf("events = %v, want exactly one MarketOpen", types)
	}

	// Jump past EOD: every pending firing lands exactly once, in order.
	now = time.Date(2026, 8, 3, 15, 25, 0, 0, time.UTC)
	clock.tick()

	types = pub.types()
	want := []bus.EventType{
		bus.EventMarketOpen,
		bus.EventEntryWindowOpen,
		bus.EventEntryWindowClose,
		bus.EventEodMandatoryExit,
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, types[i], want[i])
		}
	}
}

func TestClockSkipsNonTradingDays(t *testing.T) {
	pub := &capturePub{}
	now := time.Date(2026, 8, 8, 9, 20, 0, 0, time.UTC) // Saturday
	clock := newTestClock(pub, &now)

	clock.tick()
	clock.tick()
	if len(pub.types()) != 0 {
		t.Errorf("weekend must emit nothing, got %v", pub.types())
	}
}

func TestPeriodicCallbacksRun(t *testing.T) {
	pub := &capturePub{}
	now := monday.Add(11 * time.Hour)
	clock := newTestClock(pub, &now)

	var calls int
	clock.OnTick(func(time.Time) { calls++ })
	clock.tick()
	clock.tick()
	if calls != 2 {
		t.Errorf("periodic callback ran %d times, want 2", calls)
	}
}

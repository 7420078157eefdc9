package session

import (
	"context"
	"sync"
	"time"

	"optionscore/internal/bus"
	"optionscore/pkg/utils"
)

// Phase is the market-session state the clock is authoritative for.
type Phase string

const (
	PhaseClosed      Phase = "CLOSED"
	PhasePreOpen     Phase = "PRE_OPEN"      // trading day, before 09:15
	PhaseOpen        Phase = "OPEN"          // 09:15 up to entry window
	PhaseEntryWindow Phase = "ENTRY_WINDOW"  // entries allowed
	PhaseLateSession Phase = "LATE_SESSION"  // entry window closed, before EOD exit
	PhasePostEod     Phase = "POST_EOD_EXIT" // mandatory exit fired, before close
)

// Config holds the session windows (defaults: open 09:15,
// entry 10:00-14:30, EOD exit 15:20, close 15:30 IST).
type Config struct {
	MarketOpen       utils.ClockTime
	EntryWindowStart utils.ClockTime
	EntryWindowEnd   utils.ClockTime
	EodExitTime      utils.ClockTime
	MarketClose      utils.ClockTime
}

// Publisher is the slice of the bus the clock needs.
type Publisher interface {
	Publish(bus.Event)
}

// firing is one scheduled event emission for the current trading day.
type firing struct {
	at   time.Time
	kind bus.EventType
	done bool
}

// Clock owns the trading-day calendar and emits the session events
// (MarketOpen, EntryWindowOpen/Close, EodMandatoryExit, MarketClose).
// It also drives the periodic wall-clock checks other components register.
type Clock struct {
	mu  sync.Mutex
	cfg Config
	cal *Calendar
	pub Publisher
	log *utils.Logger

	day     time.Time // midnight of the scheduled day, exchange-local
	firings []firing

	// periodic callbacks (bar grace checks, circuit evaluation) run each tick.
	periodic []func(time.Time)

	now func() time.Time // injectable for tests
}

// NewClock builds a Clock over the calendar. now may be nil for wall clock.
func NewClock(cfg Config, cal *Calendar, pub Publisher, log *utils.Logger, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{
		cfg: cfg,
		cal: cal,
		pub: pub,
		log: log.WithComponent("session"),
		now: now,
	}
}

// OnTick registers a callback invoked on every clock tick (about 1 s apart)
// with the current time. Must be called before Run.
func (c *Clock) OnTick(f func(time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.periodic = append(c.periodic, f)
}

// Run drives the clock until ctx is done.
func (c *Clock) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick schedules the day's firings on first sight of a new day and emits
// any that have come due, in order.
func (c *Clock) tick() {
	now := c.now().In(c.cal.Location())

	c.mu.Lock()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.cal.Location())
	if !midnight.Equal(c.day) {
		c.day = midnight
		c.firings = nil
		if c.cal.IsTradingDay(now) {
			c.firings = []firing{
				{at: c.cfg.MarketOpen.On(now), kind: bus.EventMarketOpen},
				{at: c.cfg.EntryWindowStart.On(now), kind: bus.EventEntryWindowOpen},
				{at: c.cfg.EntryWindowEnd.On(now), kind: bus.EventEntryWindowClose},
				{at: c.cfg.EodExitTime.On(now), kind: bus.EventEodMandatoryExit},
				{at: c.cfg.MarketClose.On(now), kind: bus.EventMarketClose},
			}
		}
	}
	var due []bus.EventType
	for i := range c.firings {
		f := &c.firings[i]
		if !f.done && !now.Before(f.at) {
			f.done = true
			due = append(due, f.kind)
		}
	}
	callbacks := c.periodic
	c.mu.Unlock()

	for _, kind := range due {
		c.log.Sugar().Infof("session event %s", kind)
		c.pub.Publish(bus.NewClockEvent(kind, now))
	}
	for _, f := range callbacks {
		f(now)
	}
}

// Phase returns the session phase at t. Entry submissions are validated
// against this: outside ENTRY_WINDOW the pre-trade check rejects entries.
func (c *Clock) Phase(t time.Time) Phase {
	local := t.In(c.cal.Location())
	if !c.cal.IsTradingDay(local) {
		return PhaseClosed
	}
	switch {
	case local.Before(c.cfg.MarketOpen.On(local)):
		return PhasePreOpen
	case local.Before(c.cfg.EntryWindowStart.On(local)):
		return PhaseOpen
	case local.Before(c.cfg.EntryWindowEnd.On(local)):
		return PhaseEntryWindow
	case local.Before(c.cfg.EodExitTime.On(local)):
		return PhaseLateSession
	case local.Before(c.cfg.MarketClose.On(local)):
		return PhasePostEod
	default:
		return PhaseClosed
	}
}

// InEntryWindow reports whether entries are allowed at t.
func (c *Clock) InEntryWindow(t time.Time) bool {
	return c.Phase(t) == PhaseEntryWindow
}

// MarketIsOpen reports whether the session is live at t.
func (c *Clock) MarketIsOpen(t time.Time) bool {
	p := c.Phase(t)
	return p != PhaseClosed && p != PhasePreOpen
}

// SessionRevalidationRequired publishes the reconnect revalidation event;
// the transport calls this after a WebSocket reconnect.
func (c *Clock) SessionRevalidationRequired() {
	c.pub.Publish(bus.NewClockEvent(bus.EventSessionRevalidation, c.now()))
}

// Calendar exposes the underlying calendar.
func (c *Clock) Calendar() *Calendar { return c.cal }

// Now returns the clock's current time (injected in tests).
func (c *Clock) Now() time.Time { return c.now() }

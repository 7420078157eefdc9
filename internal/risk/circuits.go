package risk

import (
	"sync"
	"time"

	"optionscore/internal/bus"
	"optionscore/internal/metrics"
	"optionscore/pkg/utils"
)

// CircuitConfig holds the breaker thresholds.
type CircuitConfig struct {
	VixThreshold         float64       // block new entries at/above this, default 25 (entry gate)
	VixAbsoluteLimit     float64       // circuit trips at/above this, default 30
	VixSpikeDelta        float64       // rise that forces exits, default 5 points
	VixSpikeWindow       time.Duration // over this window, default 10 min
	FlashSpikePct        float64       // underlying move that pauses entries, default 2%
	FlashSpikeWindow     time.Duration // default 5 min
	FlashPauseDuration   time.Duration // default 5 min
	DailyLossLimitPct    float64       // fraction of balance, default 0.03
	ConsecutiveLossLimit int           // default 3
	MarginUtilLimit      float64       // force-exit weakest above this, default 0.80
}

// DefaultCircuitConfig returns the standard production thresholds.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		VixThreshold:         25,
		VixAbsoluteLimit:     30,
		VixSpikeDelta:        5,
		VixSpikeWindow:       10 * time.Minute,
		FlashSpikePct:        2.0,
		FlashSpikeWindow:     5 * time.Minute,
		FlashPauseDuration:   5 * time.Minute,
		DailyLossLimitPct:    0.03,
		ConsecutiveLossLimit: 3,
		MarginUtilLimit:      0.80,
	}
}

// sample is one timestamped observation in a sliding window.
type sample struct {
	at time.Time
	v  float64
}

// Publisher is the slice of the bus the circuit manager needs.
type Publisher interface {
	Publish(bus.Event)
}

// Circuits continuously evaluates the layered circuit breakers. Any trip
// publishes a global event that short-circuits future entries and may force
// exits. State is guarded by one mutex; evaluation runs from
// tick handlers and the clock.
type Circuits struct {
	mu  sync.Mutex
	cfg CircuitConfig
	pub Publisher
	log *utils.Logger

	vix        float64
	vixWindow  []sample
	underlying map[string][]sample

	vixTripped      bool
	vixForceExitAt  time.Time
	flashPauseUntil time.Time
	dayHalted       bool
	haltReason      string
}

// NewCircuits builds the breaker set.
func NewCircuits(cfg CircuitConfig, pub Publisher, log *utils.Logger) *Circuits {
	return &Circuits{
		cfg:        cfg,
		pub:        pub,
		log:        log.WithComponent("risk"),
		underlying: make(map[string][]sample),
	}
}

// OnVix records a VIX observation and evaluates the VIX breakers.
func (c *Circuits) OnVix(v float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vix = v
	c.vixWindow = trimWindow(append(c.vixWindow, sample{at: at, v: v}), at, c.cfg.VixSpikeWindow)

	if v < c.cfg.VixAbsoluteLimit {
		if c.vixTripped {
			c.vixTripped = false
			metrics.SetCircuit("vix", false)
			c.log.Sugar().Infof("vix circuit reset at %.2f", v)
		}
		return
	}

	// At/above the absolute limit: entries blocked. Rising fast as well
	// forces an exit of everything.
	forceExit := false
	if low, ok := windowMin(c.vixWindow); ok && v-low >= c.cfg.VixSpikeDelta {
		forceExit = true
	}

	if !c.vixTripped || (forceExit && c.vixForceExitAt.IsZero()) {
		c.vixTripped = true
		metrics.SetCircuit("vix", true)
		if forceExit {
			c.vixForceExitAt = at
		}
		c.log.Sugar().Warnf("vix circuit tripped at %.2f (force exit: %v)", v, forceExit)
		c.pub.Publish(bus.VixCircuitEvent{Base: bus.Base{Ts: at}, Vix: v, ForceExit: forceExit})
	}
}

// OnUnderlyingTick records an underlying price and evaluates the flash-spike
// breaker: a move > FlashSpikePct within the window pauses new entries.
func (c *Circuits) OnUnderlyingTick(symbol string, ltp float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := trimWindow(append(c.underlying[symbol], sample{at: at, v: ltp}), at, c.cfg.FlashSpikeWindow)
	c.underlying[symbol] = w

	if at.Before(c.flashPauseUntil) {
		return // already pausing
	}
	low, okL := windowMin(w)
	high, okH := windowMax(w)
	if !okL || !okH || low <= 0 {
		return
	}
	movePct := (high - low) / low * 100
	if movePct > c.cfg.FlashSpikePct {
		c.flashPauseUntil = at.Add(c.cfg.FlashPauseDuration)
		metrics.SetCircuit("flash_spike", true)
		c.log.Sugar().Warnf("flash spike on %s: %.2f%% in window, pausing entries until %s",
			symbol, movePct, c.flashPauseUntil.Format("15:04:05"))
		c.pub.Publish(bus.FlashSpikeEvent{Base: bus.Base{Ts: at}, Underlying: symbol, MovePct: movePct, PauseUntil: c.flashPauseUntil})
	}
}

// EvaluateDailyLoss checks realized+unrealized P&L against the daily limit.
// A trip halts trading for the day and publishes TradingHalted; the engine's
// handler for that event issues the force exits.
func (c *Circuits) EvaluateDailyLoss(totalPnl, accountBalance float64, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dayHalted || accountBalance <= 0 {
		return c.dayHalted
	}
	if totalPnl/accountBalance <= -c.cfg.DailyLossLimitPct {
		c.haltLocked("daily loss limit", at)
	}
	return c.dayHalted
}

// RecordConsecutiveLosses halts the day once the streak reaches the limit.
func (c *Circuits) RecordConsecutiveLosses(streak int, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dayHalted && c.cfg.ConsecutiveLossLimit > 0 && streak >= c.cfg.ConsecutiveLossLimit {
		c.haltLocked("consecutive losses", at)
	}
	return c.dayHalted
}

func (c *Circuits) haltLocked(reason string, at time.Time) {
	c.dayHalted = true
	c.haltReason = reason
	metrics.SetCircuit("daily_loss", true)
	c.log.Sugar().Warnf("trading halted for the day: %s", reason)
	c.pub.Publish(bus.TradingHaltedEvent{Base: bus.Base{Ts: at}, Reason: reason})
}

// MarginBreached reports whether utilization crossed the force-exit limit.
func (c *Circuits) MarginBreached(utilization float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	breached := utilization > c.cfg.MarginUtilLimit
	metrics.SetCircuit("margin", breached)
	return breached
}

// EntriesBlocked reports whether any breaker currently blocks new entries,
// with the blocking reason.
func (c *Circuits) EntriesBlocked(now time.Time) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.dayHalted:
		return true, c.haltReason
	case c.vixTripped:
		return true, "vix circuit"
	case now.Before(c.flashPauseUntil):
		return true, "flash spike pause"
	case c.vix >= c.cfg.VixThreshold && c.vix > 0:
		return true, "vix above entry threshold"
	}
	return false, ""
}

// Vix returns the latest VIX observation.
func (c *Circuits) Vix() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vix
}

// DayHalted reports the daily halt flag and its reason.
func (c *Circuits) DayHalted() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dayHalted, c.haltReason
}

// ResetDay clears per-day state at the first tick of a new session.
func (c *Circuits) ResetDay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dayHalted = false
	c.haltReason = ""
	c.vixTripped = false
	c.vixForceExitAt = time.Time{}
	c.flashPauseUntil = time.Time{}
	c.vixWindow = nil
	c.underlying = make(map[string][]sample)
	metrics.SetCircuit("vix", false)
	metrics.SetCircuit("flash_spike", false)
	metrics.SetCircuit("daily_loss", false)
}

// ClockTick lets the flash-spike gauge relax once the pause elapses.
func (c *Circuits) ClockTick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.flashPauseUntil.IsZero() && !now.Before(c.flashPauseUntil) {
		metrics.SetCircuit("flash_spike", false)
	}
}

func trimWindow(w []sample, now time.Time, span time.Duration) []sample {
	cut := now.Add(-span)
	i := 0
	for i < len(w) && w[i].at.Before(cut) {
		i++
	}
	if i > 0 {
		w = append(w[:0], w[i:]...)
	}
	return w
}

func windowMin(w []sample) (float64, bool) {
	if len(w) == 0 {
		return 0, false
	}
	m := w[0].v
	for _, s := range w[1:] {
		if s.v < m {
			m = s.v
		}
	}
	return m, true
}

func windowMax(w []sample) (float64, bool) {
	if len(w) == 0 {
		return 0, false
	}
	m := w[0].v
	for _, s := range w[1:] {
		if s.v > m {
			m = s.v
		}
	}
	return m, true
}

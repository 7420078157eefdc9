package strategy

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"optionscore/internal/bus"
	"optionscore/internal/coreerr"
	"optionscore/internal/indicator"
	"optionscore/internal/instrument"
	"optionscore/internal/models"
	"optionscore/internal/risk"
	"optionscore/pkg/crypto"
	"optionscore/pkg/utils"
)

// Config holds the strategy tunables.
type Config struct {
	Underlying         string
	DailyADXThreshold  float64 // default 25
	HourlyADXThreshold float64 // default 20
	ADXPeriod          int     // default 14
	RSIPeriod          int     // default 14
	RSIOversold        float64 // RSI bounce band low, default 45
	RSIOverbought      float64 // RSI bounce band high, default 65
	VolumeConfirmMult  float64 // default 1.2
	VolumeSMABars      int     // default 20
	SwingLookback      int     // hourly bars scanned for the prior swing, default 10
	MaxPositions       int
	VixThreshold       float64 // entry gate 3, default 25

	// InvalidateOnRecompute: whether a post-backfill alignment flip forces
	// an exit (strategy_invalidate_on_recompute).
	InvalidateOnRecompute bool
}

// DefaultConfig returns the standard NIFTY tunables.
func DefaultConfig() Config {
	return Config{
		Underlying:         "NIFTY",
		DailyADXThreshold:  25,
		HourlyADXThreshold: 20,
		ADXPeriod:          14,
		RSIPeriod:          14,
		RSIOversold:        45,
		RSIOverbought:      65,
		VolumeConfirmMult:  1.2,
		VolumeSMABars:      20,
		SwingLookback:      10,
		MaxPositions:       1,
		VixThreshold:       25,
	}
}

// BarReader is the slice of the Bar Store the strategy snapshots from.
type BarReader interface {
	Tail(symbol string, tf models.Timeframe, n int) []models.Bar
	Last(symbol string, tf models.Timeframe) (models.Bar, bool)
}

// PositionView is what the strategy may know about open positions:
// read-only snapshots owned by the Position Manager.
type PositionView interface {
	OpenCount() int
	OpenPositionFor(underlying string) (models.Position, bool)
}

// SessionView answers whether entries are currently permitted by the clock.
type SessionView interface {
	InEntryWindow(t time.Time) bool
}

// Publisher is the slice of the bus the strategy publishes to.
type Publisher interface {
	Publish(bus.Event)
}

// Core implements the bar-completion-gated strategy pipeline:
// the daily direction decision, hourly alignment, and the six entry gates.
// It runs only inside BarReady handlers on the bus's single dispatch
// goroutine; the mutex covers reads from the HTTP status surface.
type Core struct {
	mu  sync.Mutex
	cfg Config

	bars      BarReader
	cache     *instrument.Cache
	pool      *instrument.Pool
	circuits  *risk.Circuits
	sessions  SessionView
	positions PositionView
	pub       Publisher
	log       *utils.Logger

	sessionUUID string
	daily       models.DailyState
	decided     bool // direction decided for daily.Date
	signalSeq   int
}

// New wires the strategy core.
func New(cfg Config, bars BarReader, cache *instrument.Cache, pool *instrument.Pool,
	circuits *risk.Circuits, sessions SessionView, positions PositionView,
	pub Publisher, sessionUUID string, log *utils.Logger) *Core {
	return &Core{
		cfg:         cfg,
		bars:        bars,
		cache:       cache,
		pool:        pool,
		circuits:    circuits,
		sessions:    sessions,
		positions:   positions,
		pub:         pub,
		sessionUUID: sessionUUID,
		log:         log.WithComponent("strategy"),
	}
}

// ResetDay reinitializes DailyState at the first tick after market open and
// attempts the direction decision from stored history. The previous session's
// daily bar usually completed at its close, so the history is already in the
// store; when it instead completes on today's first tick, the BarReady
// handler makes the decision moments later.
func (c *Core) ResetDay(date time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.daily.Reset(date)
	c.decided = false
	c.signalSeq = 0
	c.log.Sugar().Infof("daily state reset for %s", date.Format("2006-01-02"))
	c.decideDailyDirectionLocked(date)
}

// DailySnapshot returns a copy of today's state for the status surface.
func (c *Core) DailySnapshot() models.DailyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.daily
}

// HandleBarReady is the strategy's only driver: the daily decision runs on
// the first completed daily bar, alignment and entries strictly on
// BarReady(1h). A wall-clock tick of the same hour never re-triggers it.
func (c *Core) HandleBarReady(ev bus.Event) {
	bre, ok := ev.(bus.BarReadyEvent)
	if !ok {
		return
	}
	bar := bre.Bar
	if bar.Symbol != c.cfg.Underlying {
		return
	}
	switch bar.Timeframe {
	case models.TimeframeDaily:
		c.mu.Lock()
		c.decideDailyDirectionLocked(c.daily.Date)
		c.mu.Unlock()
	case models.Timeframe1h:
		c.onHourlyBar(bar)
	}
}

// decideDailyDirectionLocked runs at most once per trading day, once the
// previous daily bar is in the store: NO_TRADE below the ADX threshold,
// CE/PE by DI dominance, and a +DI == -DI tie breaks to NO_TRADE.
func (c *Core) decideDailyDirectionLocked(day time.Time) {
	if c.decided || day.IsZero() {
		return
	}

	dailyBars := c.bars.Tail(c.cfg.Underlying, models.TimeframeDaily, 3*c.cfg.ADXPeriod)
	if len(dailyBars) < 30 {
		c.log.Sugar().Infof("daily direction: only %d daily bars, need 30", len(dailyBars))
		return
	}

	res, err := indicator.ADX(dailyBars, c.cfg.ADXPeriod)
	if err != nil {
		c.log.Sugar().Warnf("daily ADX: %v", err)
		return
	}

	c.decided = true
	c.daily.ADX = res.ADX
	c.daily.PlusDI = res.PlusDI
	c.daily.MinusDI = res.MinusDI
	c.daily.Direction = directionFor(res, c.cfg.DailyADXThreshold)

	c.log.Sugar().Infof("daily direction %s (adx=%.2f +di=%.2f -di=%.2f)",
		c.daily.Direction, res.ADX, res.PlusDI, res.MinusDI)

	// Keyed by date, not session, so a restart cannot re-announce it.
	c.pub.Publish(bus.DailyDirectionEvent{
		Base:  bus.Base{Ts: time.Now()},
		State: c.daily,
		Key:   "daily-direction:" + day.Format("2006-01-02"),
	})
}

// onHourlyBar recomputes alignment, raises AlignmentLost when a held
// position's hourly trend flips, then walks the entry gates.
func (c *Core) onHourlyBar(bar models.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.daily.Direction == models.DirectionNoTrade {
		c.daily.HourlyAligned = false
		return
	}

	aligned, res := c.hourlyAlignment()
	wasAligned := c.daily.HourlyAligned
	c.daily.HourlyAligned = aligned

	if wasAligned && !aligned {
		if pos, open := c.positions.OpenPositionFor(c.cfg.Underlying); open {
			c.log.Sugar().Infof("hourly alignment lost (adx=%.2f +di=%.2f -di=%.2f), exiting position %s",
				res.ADX, res.PlusDI, res.MinusDI, pos.ID)
			c.pub.Publish(bus.ExitSignalEvent{
				Base:       bus.Base{Ts: bar.BarEnd},
				PositionID: pos.ID,
				Reason:     "AlignmentLost",
				Priority:   bus.PriorityTechnical,
			})
		}
		return
	}
	if !aligned {
		return
	}

	if _, open := c.positions.OpenPositionFor(c.cfg.Underlying); open {
		return // one position per underlying; nothing to enter
	}
	c.evaluateEntry(bar)
}

// hourlyAlignment checks the hourly trend against the daily direction.
func (c *Core) hourlyAlignment() (bool, indicator.ADXResult) {
	hourly := c.bars.Tail(c.cfg.Underlying, models.Timeframe1h, 3*c.cfg.ADXPeriod)
	res, err := indicator.ADX(hourly, c.cfg.ADXPeriod)
	if err != nil {
		return false, res
	}
	return alignedWith(c.daily.Direction, res, c.cfg.HourlyADXThreshold), res
}

// directionFor maps an ADX reading onto the daily decision: NO_TRADE below
// the threshold, direction by DI dominance, and a +DI == -DI tie breaks to
// NO_TRADE.
func directionFor(res indicator.ADXResult, threshold float64) models.Direction {
	switch {
	case res.ADX < threshold:
		return models.DirectionNoTrade
	case res.PlusDI > res.MinusDI:
		return models.DirectionCE
	case res.MinusDI > res.PlusDI:
		return models.DirectionPE
	default:
		return models.DirectionNoTrade
	}
}

// alignedWith reports whether an hourly reading supports the daily direction.
func alignedWith(direction models.Direction, res indicator.ADXResult, threshold float64) bool {
	if res.ADX < threshold {
		return false
	}
	switch direction {
	case models.DirectionCE:
		return res.PlusDI > res.MinusDI
	case models.DirectionPE:
		return res.MinusDI > res.PlusDI
	default:
		return false
	}
}

// trigger identifies which gate-5 condition fired; breakout outranks the
// RSI bounce when both fire on the same bar.
type trigger string

const (
	triggerBreakout  trigger = "breakout"
	triggerRSIBounce trigger = "rsi_bounce"
)

// evaluateEntry walks gates 1-6 in order and emits at most one entry signal
// per qualifying hourly bar.
func (c *Core) evaluateEntry(bar models.Bar) {
	now := bar.BarEnd

	// Gate 1: session entry window.
	if !c.sessions.InEntryWindow(now) {
		return
	}

	// Gate 2: position count.
	if c.positions.OpenCount() >= c.cfg.MaxPositions {
		return
	}

	// Gate 3: VIX below threshold, no circuit active, no gap-day widening.
	if blocked, reason := c.circuits.EntriesBlocked(now); blocked {
		c.log.Sugar().Debugf("entry blocked: %s", reason)
		return
	}
	if vix := c.circuits.Vix(); vix >= c.cfg.VixThreshold && vix > 0 {
		return
	}
	if c.pool != nil && c.pool.Widened() {
		return // gap-day pool still stabilizing
	}

	// Gate 4: hourly volume confirmation against the 20-bar SMA.
	if !c.volumeConfirmed(bar) {
		return
	}

	// Gate 5: RSI bounce or swing breakout in the daily direction.
	trig, ok := c.contextTrigger(bar)
	if !ok {
		return
	}

	// Gate 6: most recent closed 1-minute bar confirms without an opposing
	// wick over half the range.
	if !c.minuteConfirms() {
		return
	}

	c.emitEntry(bar, trig)
}

// volumeConfirmed requires the completed hourly bar's volume to reach
// VolumeConfirmMult × SMA of the preceding VolumeSMABars hourly volumes.
func (c *Core) volumeConfirmed(bar models.Bar) bool {
	n := c.cfg.VolumeSMABars
	hist := c.bars.Tail(c.cfg.Underlying, models.Timeframe1h, n+1)
	if len(hist) < n+1 {
		return false
	}
	var s float64
	for _, b := range hist[:n] {
		s += float64(b.Volume)
	}
	sma := s / float64(n)
	if sma <= 0 {
		// Index feeds publish no per-bar volume; the gate cannot
		// discriminate and passes.
		return true
	}
	return float64(bar.Volume) >= c.cfg.VolumeConfirmMult*sma
}

// contextTrigger implements gate 5. For CE: 5-minute RSI rising from a prior
// reading inside the [oversold, overbought] band, or close above the prior
// hourly swing high.
// PE mirrors both.
func (c *Core) contextTrigger(bar models.Bar) (trigger, bool) {
	// Breakout first: it outranks the RSI bounce on ties.
	if c.swingBreak(bar) {
		return triggerBreakout, true
	}

	fives := c.bars.Tail(c.cfg.Underlying, models.Timeframe5m, 3*c.cfg.RSIPeriod)
	if len(fives) < c.cfg.RSIPeriod+2 {
		return "", false
	}
	closes := make([]float64, len(fives))
	for i, b := range fives {
		closes[i] = b.Close
	}
	rsiNow, err1 := indicator.RSI(closes, c.cfg.RSIPeriod)
	rsiPrev, err2 := indicator.RSI(closes[:len(closes)-1], c.cfg.RSIPeriod)
	if err1 != nil || err2 != nil {
		return "", false
	}

	inBand := rsiPrev >= c.cfg.RSIOversold && rsiPrev <= c.cfg.RSIOverbought
	switch c.daily.Direction {
	case models.DirectionCE:
		if inBand && rsiNow > rsiPrev {
			return triggerRSIBounce, true
		}
	case models.DirectionPE:
		if inBand && rsiNow < rsiPrev {
			return triggerRSIBounce, true
		}
	}
	return "", false
}

// swingBreak reports whether the hourly close broke the prior swing extreme
// in the daily direction.
func (c *Core) swingBreak(bar models.Bar) bool {
	look := c.bars.Tail(c.cfg.Underlying, models.Timeframe1h, c.cfg.SwingLookback+1)
	if len(look) < 3 {
		return false
	}
	prior := look[:len(look)-1] // exclude the bar being evaluated
	switch c.daily.Direction {
	case models.DirectionCE:
		high := prior[0].High
		for _, b := range prior[1:] {
			if b.High > high {
				high = b.High
			}
		}
		return bar.Close > high
	case models.DirectionPE:
		low := prior[0].Low
		for _, b := range prior[1:] {
			if b.Low < low {
				low = b.Low
			}
		}
		return bar.Close < low
	default:
		return false
	}
}

// minuteConfirms implements gate 6 on the most recent closed 1-minute bar:
// it must close on the trigger side with the opposing wick no more than half
// the bar's range.
func (c *Core) minuteConfirms() bool {
	m, ok := c.bars.Last(c.cfg.Underlying, models.Timeframe1m)
	if !ok {
		return false
	}
	rng := m.High - m.Low
	if rng <= 0 {
		return false
	}
	switch c.daily.Direction {
	case models.DirectionCE:
		if m.Close <= m.Open {
			return false
		}
		upperWick := m.High - m.Close
		return upperWick/rng <= 0.5
	case models.DirectionPE:
		if m.Close >= m.Open {
			return false
		}
		lowerWick := m.Close - m.Low
		return lowerWick/rng <= 0.5
	default:
		return false
	}
}

// emitEntry computes the ATM strike, resolves the broker symbol, and
// publishes the entry signal with its deterministic idempotency key.
func (c *Core) emitEntry(bar models.Bar, trig trigger) {
	inc := instrument.StrikeIncrement(c.cfg.Underlying)
	strike := instrument.ATM(bar.Close, inc)

	expiry, ok := c.cache.NearestExpiry(c.cfg.Underlying, bar.BarEnd)
	if !ok {
		c.log.Sugar().Warnf("no expiry found for %s", c.cfg.Underlying)
		return
	}

	var kind models.SignalKind
	var ot models.OptionType
	var side string
	switch c.daily.Direction {
	case models.DirectionCE:
		kind, ot, side = models.SignalEntryLongCE, models.OptionCE, "CE"
	case models.DirectionPE:
		kind, ot, side = models.SignalEntryLongPE, models.OptionPE, "PE"
	default:
		return
	}

	ins, ok := c.cache.Lookup(c.cfg.Underlying, expiry, strike, ot)
	if !ok {
		c.log.Sugar().Warnf("%v", instrument.ErrNotFound(c.cfg.Underlying, strike, ot))
		return
	}

	c.signalSeq++
	key := crypto.IdempotencyKey(
		c.sessionUUID,
		bar.BarStart.Format(time.RFC3339),
		c.cfg.Underlying,
		strconv.FormatFloat(strike, 'f', -1, 64),
		side,
		strconv.Itoa(c.signalSeq),
	)

	sig := models.Signal{
		ID:             fmt.Sprintf("sig-%s-%d", bar.BarStart.Format("150405"), c.signalSeq),
		Kind:           kind,
		Symbol:         ins.TradingSymbol,
		Strike:         strike,
		Reason:         string(trig),
		Ts:             bar.BarEnd,
		IdempotencyKey: key,
	}
	c.daily.EntriesToday++
	c.log.Sugar().Infof("entry signal %s %s strike %g (%s)", sig.ID, kind, strike, trig)
	c.pub.Publish(bus.SignalEvent{Base: bus.Base{Ts: bar.BarEnd}, Signal: sig})
}

// RecomputeAfterBackfill re-runs hourly alignment after a gap recovery.
// When InvalidateOnRecompute is set and the recomputed alignment no longer
// supports an open position, it emits a StrategyInvalidated exit.
func (c *Core) RecomputeAfterBackfill(at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.daily.Direction == models.DirectionNoTrade {
		return nil
	}
	aligned, _ := c.hourlyAlignment()
	wasAligned := c.daily.HourlyAligned
	c.daily.HourlyAligned = aligned

	if !c.cfg.InvalidateOnRecompute || !wasAligned || aligned {
		return nil
	}
	pos, open := c.positions.OpenPositionFor(c.cfg.Underlying)
	if !open {
		return nil
	}
	c.log.Sugar().Warnf("alignment flipped after backfill, invalidating position %s", pos.ID)
	c.pub.Publish(bus.ExitSignalEvent{
		Base:       bus.Base{Ts: at},
		PositionID: pos.ID,
		Reason:     "StrategyInvalidated",
		Priority:   bus.PriorityTechnical,
	})
	return coreerr.ErrDataGapDetected
}

package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"optionscore/internal/bars"
	"optionscore/internal/barstore"
	"optionscore/internal/broker"
	"optionscore/internal/bus"
	"optionscore/internal/coreerr"
	"optionscore/internal/instrument"
	"optionscore/internal/ledger"
	"optionscore/internal/metrics"
	"optionscore/internal/models"
	"optionscore/internal/orders"
	"optionscore/internal/position"
	"optionscore/internal/risk"
	"optionscore/internal/session"
	"optionscore/internal/strategy"
	"optionscore/pkg/utils"
)

// Config aggregates the per-component configs plus engine-level wiring.
type Config struct {
	Underlying string
	VixSymbol  string

	Session  session.Config
	Holidays []string

	Bars     bars.Config
	Strategy strategy.Config
	Circuit  risk.CircuitConfig
	Sizing   risk.SizingConfig
	Orders   orders.Config
	Position position.Config
	Pool     instrument.PoolConfig

	TokenGraceToFlatten time.Duration // default 180 s
	DrainDeadline       time.Duration // default 60 s
}

// Engine is the composition root of the trading core: it owns the bus, the
// single-writer components, and the broker-facing workers, and it tracks
// the user-visible engine state (Healthy, Degraded, Halted, ShuttingDown).
type Engine struct {
	cfg Config
	log *utils.Logger

	brk      broker.Broker
	led      *ledger.Ledger
	store    *barstore.Store
	agg      *bars.Aggregator
	bus      *bus.Bus
	clock    *session.Clock
	cache    *instrument.Cache
	pool     *instrument.Pool
	circuits *risk.Circuits
	strat    *strategy.Core
	pipeline *orders.Pipeline
	posMgr   *position.Manager

	sessionUUID string

	mu          sync.Mutex
	state       bus.EngineState
	stateReason string
	dayStarted  time.Time // trading day whose first tick was seen
	prevClose   float64   // previous session close of the underlying
	balance     float64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the engine over an already-authenticated broker adapter.
func New(cfg Config, brk broker.Broker, led *ledger.Ledger, store *barstore.Store,
	cache *instrument.Cache, log *utils.Logger) *Engine {

	e := &Engine{
		cfg:         cfg,
		log:         log.WithComponent("engine"),
		brk:         brk,
		led:         led,
		store:       store,
		cache:       cache,
		sessionUUID: uuid.NewString(),
		state:       bus.StateHealthy,
		balance:     cfg.Position.AccountBalance,
	}

	e.bus = bus.New(led, log)
	cal := session.NewCalendar(cfg.Bars.Location, cfg.Holidays)
	e.clock = session.NewClock(cfg.Session, cal, e.bus, log, nil)
	e.circuits = risk.NewCircuits(cfg.Circuit, e.bus, log)
	e.pool = instrument.NewPool(cfg.Underlying, cfg.Pool)
	e.agg = bars.New(cfg.Bars, store, e, log)
	e.pipeline = orders.New(cfg.Orders, brk, led, e.bus, e.sessionUUID, log)
	return e
}

// Bus exposes the event bus for the status surfaces.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Positions exposes the position manager's read-only view.
func (e *Engine) Positions() *position.Manager { return e.posMgr }

// Strategy exposes the daily-state snapshot for the status surface.
func (e *Engine) Strategy() *strategy.Core { return e.strat }

// State returns the engine state and the reason for any non-healthy state.
func (e *Engine) State() (bus.EngineState, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.stateReason
}

func (e *Engine) setState(s bus.EngineState, reason string) {
	e.mu.Lock()
	if e.state == s {
		e.mu.Unlock()
		return
	}
	e.state = s
	e.stateReason = reason
	e.mu.Unlock()

	switch s {
	case bus.StateHealthy:
		metrics.SetEngineState("healthy")
	case bus.StateDegraded:
		metrics.SetEngineState("degraded")
	case bus.StateHalted:
		metrics.SetEngineState("halted")
	case bus.StateShuttingDown:
		metrics.SetEngineState("shutting_down")
	}
	e.log.Sugar().Warnf("engine state -> %s (%s)", s, reason)
	e.bus.Publish(bus.EngineStateEvent{Base: bus.Base{Ts: time.Now()}, State: s, Reason: reason})
}

// Run starts every component and blocks until ctx is cancelled and the
// drain completes.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.posMgr = position.NewManager(runCtx, e.cfg.Position, e.pipeline, e.cache,
		e.circuits, e.store, e.bus, e.log)
	e.strat = strategy.New(e.cfg.Strategy, e.store, e.cache, e.pool, e.circuits,
		e.clock, e.posMgr, e.bus, e.sessionUUID, e.log)

	e.subscribe()

	// Replay contract: reconcile any interrupted broker submissions before
	// accepting new work.
	if bound, err := e.pipeline.Reconcile(runCtx); err != nil {
		e.log.Sugar().Errorf("reconciliation failed: %v", err)
		e.setState(bus.StateDegraded, "reconciliation failed")
	} else if len(bound) > 0 {
		e.log.Sugar().Infof("reconciled %d in-flight orders from previous run", len(bound))
	}

	e.agg.Watch(e.cfg.Underlying, false)

	e.clock.OnTick(e.agg.CheckClock)
	e.clock.OnTick(e.circuits.ClockTick)
	e.clock.OnTick(e.marginCheckTick())

	e.wg.Add(3)
	go func() { defer e.wg.Done(); e.bus.Run(runCtx) }()
	go func() { defer e.wg.Done(); e.clock.Run(runCtx) }()
	go func() { defer e.wg.Done(); e.readFeed(runCtx) }()

	<-runCtx.Done()
	e.wg.Wait()
	return nil
}

// Shutdown flattens positions and drains under the hard deadline.
func (e *Engine) Shutdown() {
	e.setState(bus.StateShuttingDown, "operator shutdown")
	e.bus.BeginDrain()
	if e.posMgr != nil {
		e.posMgr.ExitAll("Shutdown", bus.PriorityMandatory, time.Now())
	}
	// Give exits a moment to reach the pipeline before cancelling workers.
	time.Sleep(2 * time.Second)
	if e.cancel != nil {
		e.cancel()
	}
}

// subscribe registers every event handler. State-mutating handlers run on
// the bus's single dispatch goroutine.
func (e *Engine) subscribe() {
	e.bus.SubscribeTicks(e.agg)
	e.bus.SubscribeTicks(e.posMgr)

	e.bus.Subscribe(e.strat.HandleBarReady, bus.EventBarReady)
	e.bus.Subscribe(e.posMgr.HandleExitSignal, bus.EventExitSignal)
	e.bus.Subscribe(e.handleSignal, bus.EventSignal)

	e.bus.Subscribe(func(ev bus.Event) {
		ve, ok := ev.(bus.VixCircuitEvent)
		if !ok {
			return
		}
		if ve.ForceExit {
			e.posMgr.ExitAll("VixSpike", bus.PriorityMandatory, ev.At())
		}
	}, bus.EventVixCircuitTripped)

	e.bus.Subscribe(func(ev bus.Event) {
		he, ok := ev.(bus.TradingHaltedEvent)
		if !ok {
			return
		}
		e.setState(bus.StateHalted, he.Reason)
		if he.Reason == "daily loss limit" {
			e.posMgr.ExitAll("DailyLossLimit", bus.PriorityRisk, ev.At())
		}
	}, bus.EventTradingHalted)

	e.bus.Subscribe(func(ev bus.Event) {
		e.posMgr.ExitAll("EodMandatoryExit", bus.PriorityMandatory, ev.At())
	}, bus.EventEodMandatoryExit)

	e.bus.Subscribe(func(ev bus.Event) {
		e.agg.FlushDaily()
	}, bus.EventMarketClose)

	e.bus.Subscribe(func(ev bus.Event) {
		e.setState(bus.StateDegraded, "token invalid, flattening")
		e.posMgr.ExitAll("TokenInvalid", bus.PriorityMandatory, ev.At())
	}, bus.EventTokenInvalid)

	e.bus.Subscribe(func(ev bus.Event) {
		e.setState(bus.StateDegraded, "ledger unavailable")
	}, bus.EventLedgerUnavailable)

	e.bus.Subscribe(func(ev bus.Event) {
		e.handleDataGap(ev)
	}, bus.EventDataGapDetected)
}

// readFeed pumps broker push channels into the bus.
func (e *Engine) readFeed(ctx context.Context) {
	ticks := e.brk.Ticks()
	updates := e.brk.OrderUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			e.onTick(t)
		case u, ok := <-updates:
			if !ok {
				return
			}
			// Fill waits poll the order status; the push update only logs.
			e.log.Sugar().Debugf("order update %s -> %s", u.BrokerOrderID, u.Status.State)
		}
	}
}

// onTick is the transport-side tick hook: day rollover, VIX and underlying
// routing, strike-pool upkeep, then the bus fan-out.
func (e *Engine) onTick(t models.Tick) {
	now := t.TsLocal
	if now.IsZero() {
		now = time.Now()
		t.TsLocal = now
	}

	e.maybeStartDay(t, now)

	if t.Symbol == e.cfg.VixSymbol {
		e.circuits.OnVix(t.LTP, now)
		return // the VIX series feeds risk only, not bars
	}

	if t.Symbol == e.cfg.Underlying {
		e.circuits.OnUnderlyingTick(t.Symbol, t.LTP, now)
		e.posMgr.ObserveUnderlying(t.Symbol, t.LTP, now)
		if strikes, changed := e.pool.Update(t.LTP, now); changed {
			e.resubscribePool(strikes, now)
		}
	}

	e.bus.PublishTick(t)
}

// maybeStartDay resets per-day state on the first tick after market open.
func (e *Engine) maybeStartDay(t models.Tick, now time.Time) {
	local := now.In(e.cfg.Bars.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.cfg.Bars.Location)

	e.mu.Lock()
	if e.dayStarted.Equal(day) || !e.clock.MarketIsOpen(now) {
		e.mu.Unlock()
		return
	}
	e.dayStarted = day
	prevClose := e.prevClose
	e.mu.Unlock()

	e.log.Sugar().Infof("trading day %s started", day.Format("2006-01-02"))
	if last, ok := e.store.Last(e.cfg.Underlying, models.TimeframeDaily); ok {
		prevClose = last.Close
		e.mu.Lock()
		e.prevClose = prevClose
		e.mu.Unlock()
	}

	e.circuits.ResetDay()
	e.posMgr.ResetDay()
	e.strat.ResetDay(day)
	e.setState(bus.StateHealthy, "")

	if t.Symbol == e.cfg.Underlying && t.LTP > 0 {
		strikes, gapDay := e.pool.OpenDay(t.LTP, prevClose, now)
		if gapDay {
			e.log.Sugar().Warnf("gap day: pool widened, entries paused until stabilization")
		}
		e.resubscribePool(strikes, now)
	}
}

// resubscribePool re-subscribes the option symbols for the current strike
// pool and registers them with the aggregator.
func (e *Engine) resubscribePool(strikes []float64, at time.Time) {
	if len(strikes) == 0 {
		return
	}
	instruments := e.pool.Symbols(e.cache, at)
	tokens := make([]string, 0, len(instruments))
	for _, ins := range instruments {
		tokens = append(tokens, ins.Token)
		e.agg.Watch(ins.TradingSymbol, true)
	}
	if err := e.brk.SubscribeWS(tokens, broker.ModeQuote); err != nil {
		e.log.Sugar().Warnf("strike pool subscription failed: %v", err)
	}
	e.log.Sugar().Infof("strike pool: %d strikes, %d symbols", len(strikes), len(instruments))
}

// handleSignal sizes an entry signal, validates it, and drives the entry
// through the pipeline on a worker goroutine.
func (e *Engine) handleSignal(ev bus.Event) {
	se, ok := ev.(bus.SignalEvent)
	if !ok || se.Signal.Kind == models.SignalExit {
		return
	}
	sig := se.Signal

	ins, ok := e.cache.BySymbol(sig.Symbol)
	if !ok {
		e.log.Sugar().Errorf("signal %s: unknown symbol %s", sig.ID, sig.Symbol)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.executeEntry(sig, ins)
	}()
}

func (e *Engine) executeEntry(sig models.Signal, ins models.Instrument) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Orders.TotalRetryCap+e.cfg.Orders.PerAttemptFillTimeout)
	defer cancel()

	ltp, err := e.brk.LTP(ctx, sig.Symbol)
	if err != nil {
		e.log.Sugar().Errorf("signal %s: ltp failed: %v", sig.ID, err)
		e.surfaceBrokerError(err)
		return
	}
	underlyingLTP := 0.0
	if last, ok := e.store.Last(e.cfg.Underlying, models.Timeframe1m); ok {
		underlyingLTP = last.Close
	}

	sizing := e.cfg.Sizing
	if sizing.FreezeQty == 0 {
		sizing.FreezeQty = freezeQtyFor(ins.Underlying, ins.LotSize)
	}
	qty, err := risk.PositionSize(sizing, e.balance, ltp, ins.LotSize,
		ins.DTE(time.Now()), e.circuits.Vix())
	if err != nil {
		e.log.Sugar().Infof("signal %s rejected: %v", sig.ID, err)
		return
	}

	intent := models.OrderIntent{
		ID:             "int-" + sig.ID,
		BrokerSymbol:   sig.Symbol,
		Side:           models.SideBuy,
		Qty:            qty,
		LimitPrice:     orders.RoundToTick(ltp, ins.TickSize),
		IdempotencyKey: sig.IdempotencyKey + ":intent",
		ParentSignalID: sig.ID,
	}

	available, _, merr := e.brk.Margin(ctx)
	dailyTripped, _ := e.circuits.DayHalted()
	_, vixBlockReason := e.circuits.EntriesBlocked(time.Now())
	validation := orders.ValidationInput{
		Intent:           intent,
		Instrument:       ins,
		IsExit:           false,
		OpenPositions:    e.posMgr.OpenCount(),
		MaxPositions:     e.cfg.Strategy.MaxPositions,
		FreezeQty:        sizing.FreezeQty,
		LTP:              ltp,
		PriceBandPct:     priceBand(ins),
		MarginAvailable:  available,
		MarginRequired:   float64(qty) * ltp,
		DailyLossTripped: dailyTripped,
		VixTripped:       vixBlockReason == "vix circuit",
		InEntryWindow:    e.clock.InEntryWindow(time.Now()),
		Now:              time.Now(),
	}
	if merr != nil {
		validation.MarginRequired = 0 // no snapshot; check 6 passes open
	}
	if err := orders.Validate(validation); err != nil {
		e.log.Sugar().Infof("signal %s rejected pre-trade: %v", sig.ID, err)
		return
	}

	order, err := e.pipeline.ExecuteEntry(ctx, intent, ins, "entry-"+sig.ID)
	if err != nil {
		e.log.Sugar().Errorf("entry failed for signal %s: %v", sig.ID, err)
		e.surfaceBrokerError(err)
		return
	}
	e.bus.Publish(bus.OrderFilledEvent{Base: bus.Base{Ts: time.Now()}, Intent: intent, Order: order})
	if _, err := e.posMgr.OpenFromFill(sig, intent, order, underlyingLTP); err != nil {
		e.log.Sugar().Errorf("open position from fill: %v", err)
		if errors.Is(err, coreerr.ErrInvariantViolation) {
			e.setState(bus.StateShuttingDown, "invariant violation on open")
			e.Shutdown()
			return
		}
		e.setState(bus.StateDegraded, "position open failed")
	}
}

// handleDataGap attempts a historical backfill of the 1m, 5m and 1h bars;
// if the recomputed alignment flips, the strategy invalidates the position.
// Entries are not paused while the backfill runs.
func (e *Engine) handleDataGap(ev bus.Event) {
	ge, ok := ev.(bus.DataGapEvent)
	if !ok {
		return
	}
	e.log.Sugar().Warnf("data gap on %s (%.0fs), backfilling", ge.Symbol, ge.GapSecs)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		to := time.Now()
		from := to.Add(-2 * time.Hour)
		for _, tf := range []models.Timeframe{models.Timeframe1m, models.Timeframe5m, models.Timeframe1h} {
			hist, err := e.brk.Historical(ctx, ge.Symbol, tf, from, to)
			if err != nil {
				e.log.Sugar().Warnf("backfill %s %s: %v", ge.Symbol, tf, err)
				continue
			}
			for _, b := range hist {
				if err := e.store.Put(b); err != nil {
					continue // overlap with existing bars is expected
				}
			}
		}
		_ = e.strat.RecomputeAfterBackfill(time.Now())
	}()
}

// surfaceBrokerError promotes authentication failures to the global
// TokenInvalid event; the graceful-flatten path hangs off its handler.
func (e *Engine) surfaceBrokerError(err error) {
	if errors.Is(err, coreerr.ErrTokenInvalid) {
		e.bus.Publish(bus.TokenInvalidEvent{Base: bus.Base{Ts: time.Now()}, Err: err.Error()})
	}
}

// marginCheckTick checks margin utilization once a minute.
func (e *Engine) marginCheckTick() func(time.Time) {
	var last time.Time
	return func(now time.Time) {
		if now.Sub(last) < time.Minute {
			return
		}
		last = now
		if !e.clock.MarketIsOpen(now) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.posMgr.CheckMargin(ctx, e.brk, now)
	}
}

// EmitBarReady implements bars.Emitter.
func (e *Engine) EmitBarReady(b models.Bar, at time.Time) {
	e.bus.Publish(bus.NewBarReadyEvent(b, at))
}

// EmitBarDelayed implements bars.Emitter.
func (e *Engine) EmitBarDelayed(symbol string, tf models.Timeframe, boundary, at time.Time) {
	e.bus.Publish(bus.BarDelayedEvent{Base: bus.Base{Ts: at}, Symbol: symbol, Timeframe: tf, Boundary: boundary})
}

// EmitDataGap implements bars.Emitter.
func (e *Engine) EmitDataGap(symbol string, gap time.Duration, at time.Time) {
	e.bus.Publish(bus.DataGapEvent{Base: bus.Base{Ts: at}, Symbol: symbol, GapSecs: gap.Seconds()})
}

// freezeQtyFor supplies the freeze quantity whenever Sizing.FreezeQty is
// unset: a fixed lot count per contract times the lot size. The instrument
// cache carries no freeze quantity and is not consulted.
func freezeQtyFor(underlying string, lotSize int) int {
	if lotSize <= 0 {
		return 0
	}
	lots := 36 // NSE index option freeze is a fixed lot count per contract
	if underlying == "BANKNIFTY" {
		lots = 60
	}
	return lots * lotSize
}

func priceBand(ins models.Instrument) float64 {
	if ins.PriceBandPct > 0 {
		return ins.PriceBandPct
	}
	return 0.20
}

// SessionUUID exposes the session id for diagnostics.
func (e *Engine) SessionUUID() string { return e.sessionUUID }

// VixSnapshot returns the latest VIX for the status surface.
func (e *Engine) VixSnapshot() float64 { return e.circuits.Vix() }

// DroppedTicks surfaces the bus's saturation counter.
func (e *Engine) DroppedTicks() int64 { return e.bus.DroppedTicks() }


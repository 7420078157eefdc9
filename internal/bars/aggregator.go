package bars

import (
	"sync"
	"time"

	"optionscore/internal/metrics"
	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

// Sink receives completed bars. The Bar Store satisfies this.
type Sink interface {
	Put(models.Bar) error
}

// Emitter publishes aggregator events (BarReady, BarDelayed, DataGap)
// without the aggregator knowing the bus's types.
type Emitter interface {
	EmitBarReady(models.Bar, time.Time)
	EmitBarDelayed(symbol string, tf models.Timeframe, boundary, at time.Time)
	EmitDataGap(symbol string, gap time.Duration, at time.Time)
}

// Config holds the session geometry and tolerances.
type Config struct {
	Location     *time.Location // exchange-local zone; boundaries computed here
	SessionOpen  utils.ClockTime
	SessionClose utils.ClockTime
	BarGrace     time.Duration // G_BAR_READY_GRACE
	DataGap      time.Duration // DATA_GAP_THRESHOLD
}

// watch is one (symbol, timeframe) aggregation slot.
type watch struct {
	symbol   string
	tf       models.Timeframe
	isOption bool

	partial    *models.Bar
	volAtStart int64 // cumulative volume when the partial opened
	lastTickTs time.Time
	lastVolCum int64
}

// Aggregator consumes ticks and emits BarReady on exact time boundaries
// of 1m/5m/15m/1h/daily. One goroutine (the bus tick lane) calls OnTick;
// CheckClock
// runs from the clock ticker, hence the mutex.
type Aggregator struct {
	mu      sync.Mutex
	cfg     Config
	sink    Sink
	emitter Emitter
	log     *utils.Logger

	watches      map[string]map[models.Timeframe]*watch // symbol -> tf -> slot
	lastBySymbol map[string]time.Time
	lastGapEmit  map[string]time.Time

	outOfOrderDropped int64
}

// intraday timeframes a watched symbol aggregates, beyond daily.
var intradayTimeframes = []models.Timeframe{
	models.Timeframe1m, models.Timeframe5m, models.Timeframe15m, models.Timeframe1h,
}

// New builds an Aggregator. Watch symbols are added with Watch().
func New(cfg Config, sink Sink, emitter Emitter, log *utils.Logger) *Aggregator {
	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		emitter:      emitter,
		log:          log.WithComponent("bars"),
		watches:      make(map[string]map[models.Timeframe]*watch),
		lastBySymbol: make(map[string]time.Time),
		lastGapEmit:  make(map[string]time.Time),
	}
}

// Name implements bus.TickConsumer.
func (a *Aggregator) Name() string { return "bar-aggregator" }

// Watch registers a symbol for aggregation across all intraday timeframes
// plus daily. isOption controls the synthetic-bar policy: option bars never
// carry synthetic data.
func (a *Aggregator) Watch(symbol string, isOption bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.watches[symbol]; ok {
		return
	}
	slots := make(map[models.Timeframe]*watch, len(intradayTimeframes)+1)
	for _, tf := range intradayTimeframes {
		slots[tf] = &watch{symbol: symbol, tf: tf, isOption: isOption}
	}
	slots[models.TimeframeDaily] = &watch{symbol: symbol, tf: models.TimeframeDaily, isOption: isOption}
	a.watches[symbol] = slots
}

// Unwatch drops a symbol without finalizing its partials; used when the
// strike pool narrows.
func (a *Aggregator) Unwatch(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.watches, symbol)
	delete(a.lastBySymbol, symbol)
}

// OnTick implements bus.TickConsumer. Ticks for a symbol arrive in receipt
// order; an out-of-order tick is dropped and counted.
func (a *Aggregator) OnTick(t models.Tick) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slots, ok := a.watches[t.Symbol]
	if !ok {
		return
	}

	if last, seen := a.lastBySymbol[t.Symbol]; seen && t.TsExchange.Before(last) {
		a.outOfOrderDropped++
		metrics.RecordBufferOverflow("out_of_order_tick")
		return
	}
	a.lastBySymbol[t.Symbol] = t.TsExchange

	for _, w := range slots {
		a.applyTick(w, t)
	}
}

// applyTick advances one (symbol, timeframe) slot with the tick.
func (a *Aggregator) applyTick(w *watch, t models.Tick) {
	ts := t.TsExchange.In(a.cfg.Location)
	start, end := a.boundaries(w.tf, ts)

	if w.partial == nil {
		a.openPartial(w, t, start, end)
		return
	}

	// Boundary crossed: a tick at exactly ts == end closes the old bar and
	// opens the new one.
	if !ts.Before(w.partial.BarEnd) {
		oldEnd := w.partial.BarEnd
		oldClose := w.partial.Close
		a.finalize(w)

		// For the underlying, bridge short empty gaps with synthetic bars;
		// option bars with no ticks are simply not emitted.
		if !w.isOption && w.tf != models.TimeframeDaily {
			a.bridgeGap(w, oldEnd, oldClose, start, t)
		}
		a.openPartial(w, t, start, end)
		return
	}

	p := w.partial
	if t.LTP > p.High {
		p.High = t.LTP
	}
	if t.LTP < p.Low {
		p.Low = t.LTP
	}
	p.Close = t.LTP
	if t.VolumeCum > 0 {
		p.Volume = t.VolumeCum - w.volAtStart
	}
	w.lastTickTs = ts
	w.lastVolCum = t.VolumeCum
}

func (a *Aggregator) openPartial(w *watch, t models.Tick, start, end time.Time) {
	w.partial = &models.Bar{
		Symbol:    w.symbol,
		Timeframe: w.tf,
		BarStart:  start,
		BarEnd:    end,
		Open:      t.LTP,
		High:      t.LTP,
		Low:       t.LTP,
		Close:     t.LTP,
	}
	w.volAtStart = t.VolumeCum
	w.lastTickTs = t.TsExchange.In(a.cfg.Location)
	w.lastVolCum = t.VolumeCum
}

// finalize completes the current partial, stores it, and emits BarReady.
func (a *Aggregator) finalize(w *watch) {
	p := w.partial
	w.partial = nil
	if p == nil {
		return
	}
	p.Complete = true
	if err := a.sink.Put(*p); err != nil {
		a.log.Sugar().Errorf("bar store put failed for %s %s: %v", p.Symbol, p.Timeframe, err)
	}
	metrics.BarsCompleted.WithLabelValues(string(p.Timeframe)).Inc()
	a.emitter.EmitBarReady(*p, w.lastTickTs)
}

// bridgeGap fabricates synthetic underlying bars for boundaries skipped
// between the finalized bar's end and the next tick's boundary, but only
// when the whole gap is under five minutes. The skipped span had no ticks,
// so each synthetic bar interpolates linearly between the last close and
// the next tick's price.
func (a *Aggregator) bridgeGap(w *watch, oldEnd time.Time, oldClose float64, nextStart time.Time, t models.Tick) {
	d := w.tf.Duration()
	if d <= 0 || !nextStart.After(oldEnd) {
		return
	}
	gap := nextStart.Sub(oldEnd)
	if gap >= 5*time.Minute {
		return
	}
	steps := int(gap / d)
	for i := 0; i < steps; i++ {
		s := oldEnd.Add(time.Duration(i) * d)
		frac := float64(i+1) / float64(steps+1)
		px := oldClose + (t.LTP-oldClose)*frac
		bar := models.Bar{
			Symbol:    w.symbol,
			Timeframe: w.tf,
			BarStart:  s,
			BarEnd:    s.Add(d),
			Open:      px, High: px, Low: px, Close: px,
			Complete:  true,
			Synthetic: true,
		}
		if err := a.sink.Put(bar); err != nil {
			a.log.Sugar().Errorf("synthetic bar put failed: %v", err)
			return
		}
		a.emitter.EmitBarReady(bar, w.lastTickTs)
	}
}

// boundaries computes [start, end) for the timeframe containing ts.
// Intraday: floor((t - session_open) / tf) * tf + session_open.
// Daily: the session span of ts's trading day.
func (a *Aggregator) boundaries(tf models.Timeframe, ts time.Time) (time.Time, time.Time) {
	open := a.cfg.SessionOpen.On(ts)
	if tf == models.TimeframeDaily {
		return open, a.cfg.SessionClose.On(ts)
	}
	d := tf.Duration()
	offset := ts.Sub(open)
	if offset < 0 {
		offset = 0
	}
	start := open.Add((offset / d) * d)
	return start, start.Add(d)
}

// CheckClock runs from the clock ticker. It emits BarDelayed for partials
// whose boundary passed by wall clock with no closing tick (no bar is
// fabricated), and DataGapDetected for symbols silent past the threshold.
func (a *Aggregator) CheckClock(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	local := now.In(a.cfg.Location)
	for symbol, slots := range a.watches {
		if last, ok := a.lastBySymbol[symbol]; ok && a.cfg.DataGap > 0 {
			gap := local.Sub(last)
			// Re-emit at most once per threshold interval while the gap holds.
			if gap > a.cfg.DataGap && local.Sub(a.lastGapEmit[symbol]) > a.cfg.DataGap {
				a.lastGapEmit[symbol] = local
				a.emitter.EmitDataGap(symbol, gap, now)
			}
		}
		for _, w := range slots {
			if w.partial == nil {
				continue
			}
			if local.After(w.partial.BarEnd.Add(a.cfg.BarGrace)) {
				a.emitter.EmitBarDelayed(symbol, w.tf, w.partial.BarEnd, now)
			}
		}
	}
}

// FlushDaily finalizes every open daily partial at session close.
func (a *Aggregator) FlushDaily() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, slots := range a.watches {
		if w, ok := slots[models.TimeframeDaily]; ok && w.partial != nil {
			a.finalize(w)
		}
	}
}

// OutOfOrderDropped returns the dropped-tick count for diagnostics.
func (a *Aggregator) OutOfOrderDropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outOfOrderDropped
}

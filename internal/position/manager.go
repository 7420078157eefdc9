package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"optionscore/internal/broker"
	"optionscore/internal/bus"
	"optionscore/internal/coreerr"
	"optionscore/internal/instrument"
	"optionscore/internal/metrics"
	"optionscore/internal/models"
	"optionscore/internal/risk"
	"optionscore/pkg/utils"
)

// Config holds the position-lifecycle tunables.
type Config struct {
	OptionStopLossPct   float64  // initial premium stop, default 0.20
	TrailActivatePnlPct float64  // default 0.02
	TrailGapPct         float64  // default 0.015
	TargetPct           *float64 // optional profit target as fraction of entry

	UnderlyingSoftStopPct float64 // logged as context only, default 0.01

	LowVolumeFrac    float64       // default 0.5 of the 20-bar average
	LowVolumeAvgBars int           // default 20
	LowVolumeWindow  time.Duration // default 15 minutes

	AccountBalance float64
}

// DefaultConfig returns the standard production values.
func DefaultConfig() Config {
	return Config{
		OptionStopLossPct:     0.20,
		TrailActivatePnlPct:   0.02,
		TrailGapPct:           0.015,
		UnderlyingSoftStopPct: 0.01,
		LowVolumeFrac:         0.5,
		LowVolumeAvgBars:      20,
		LowVolumeWindow:       15 * time.Minute,
		AccountBalance:        500_000,
	}
}

// Executor is the slice of the Order Pipeline the manager drives exits
// through.
type Executor interface {
	ExecuteExit(ctx context.Context, intent models.OrderIntent, ins models.Instrument, positionID string, priority bus.ExitPriority) (models.Order, error)
}

// Publisher is the slice of the bus the manager publishes to.
type Publisher interface {
	Publish(bus.Event)
}

// BarReader supplies recent bars for the low-volume technical exit.
type BarReader interface {
	Tail(symbol string, tf models.Timeframe, n int) []models.Bar
}

// tracked wraps a position with its per-lifecycle bookkeeping.
type tracked struct {
	pos models.Position

	lowVolumeSince time.Time
	softStopLogged bool
}

// Manager is the exclusive owner of the position set. All
// mutation happens under one mutex: ticks arrive on the bus tick lane,
// events on the dispatch goroutine, and exits complete on worker goroutines.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	exec     Executor
	cache    *instrument.Cache
	circuits *risk.Circuits
	bars     BarReader
	pub      Publisher
	log      *utils.Logger

	open map[string]*tracked // position id -> state
	// one open position per (underlying, option_type)
	byExposure map[string]string // underlying|option_type -> position id

	realizedToday     float64
	consecutiveLosses int

	ctx context.Context
}

// NewManager wires the manager. ctx bounds exit workers at shutdown.
func NewManager(ctx context.Context, cfg Config, exec Executor, cache *instrument.Cache,
	circuits *risk.Circuits, bars BarReader, pub Publisher, log *utils.Logger) *Manager {
	return &Manager{
		cfg:        cfg,
		exec:       exec,
		cache:      cache,
		circuits:   circuits,
		bars:       bars,
		pub:        pub,
		log:        log.WithComponent("position"),
		open:       make(map[string]*tracked),
		byExposure: make(map[string]string),
		ctx:        ctx,
	}
}

func exposureKey(underlying string, ot models.OptionType) string {
	return underlying + "|" + string(ot)
}

// Name implements bus.TickConsumer.
func (m *Manager) Name() string { return "position-manager" }

// OpenCount implements the strategy's PositionView.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// OpenPositionFor returns the open position snapshot for an underlying.
func (m *Manager) OpenPositionFor(underlying string) (models.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.open {
		if t.pos.Underlying == underlying {
			return t.pos.Snapshot(), true
		}
	}
	return models.Position{}, false
}

// Snapshots returns copies of every live position for the status surface.
func (m *Manager) Snapshots() []models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Position, 0, len(m.open))
	for _, t := range m.open {
		out = append(out, t.pos.Snapshot())
	}
	return out
}

// RealizedToday returns the day's realized P&L and loss streak.
func (m *Manager) RealizedToday() (float64, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realizedToday, m.consecutiveLosses
}

// ResetDay clears per-day accumulators.
func (m *Manager) ResetDay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realizedToday = 0
	m.consecutiveLosses = 0
}

// OpenFromFill opens a Position from an entry fill: the initial stop sits
// OptionStopLossPct under the entry and trailing starts inactive. The invariant of
// one open position per (underlying, option_type) is fatal if violated.
func (m *Manager) OpenFromFill(sig models.Signal, intent models.OrderIntent, order models.Order, underlyingLTP float64) (models.Position, error) {
	ins, ok := m.cache.BySymbol(intent.BrokerSymbol)
	if !ok {
		return models.Position{}, instrument.ErrNotFound(intent.BrokerSymbol, sig.Strike, "")
	}

	m.mu.Lock()
	key := exposureKey(ins.Underlying, ins.OptionType)
	if existing, ok := m.byExposure[key]; ok {
		m.mu.Unlock()
		return models.Position{}, coreerr.Invariant(
			"second position on %s while %s is open", key, existing)
	}

	pos := models.Position{
		ID:                 uuid.NewString(),
		Symbol:             intent.BrokerSymbol,
		Underlying:         ins.Underlying,
		Strike:             ins.Strike,
		OptionType:         ins.OptionType,
		Side:               intent.Side,
		Qty:                order.FilledQty,
		EntryPrice:         order.AvgFillPrice,
		EntryTime:          time.Now(),
		EntryUnderlyingLTP: underlyingLTP,
		StopLoss:           order.AvgFillPrice * (1 - m.cfg.OptionStopLossPct),
		CurrentPrice:       order.AvgFillPrice,
		Status:             models.PositionOpen,
		EntrySignalID:      sig.ID,
	}
	if m.cfg.TargetPct != nil {
		t := pos.EntryPrice * (1 + *m.cfg.TargetPct)
		pos.Target = &t
	}
	m.open[pos.ID] = &tracked{pos: pos}
	m.byExposure[key] = pos.ID
	metrics.OpenPositions.Set(float64(len(m.open)))
	snap := pos.Snapshot()
	m.mu.Unlock()

	m.log.Sugar().Infof("position %s opened: %s x%d @ %.2f sl %.2f",
		pos.ID, pos.Symbol, pos.Qty, pos.EntryPrice, pos.StopLoss)
	m.pub.Publish(bus.PositionOpenedEvent{Base: bus.Base{Ts: snap.EntryTime}, Position: snap})
	return snap, nil
}

// OnTick implements bus.TickConsumer: update P&L, advance the trailing stop
// monotonically, then evaluate the exit tiers.
func (m *Manager) OnTick(t models.Tick) {
	m.mu.Lock()

	var fire []bus.ExitSignalEvent
	for _, tr := range m.open {
		if tr.pos.Symbol != t.Symbol || tr.pos.Status != models.PositionOpen {
			continue
		}
		p := &tr.pos
		p.CurrentPrice = t.LTP
		p.UnrealizedPnl = (t.LTP - p.EntryPrice) * float64(p.Qty) * p.PnlMultiplier()

		m.updateTrailing(p)

		if ev, ok := m.evaluateExits(tr, t); ok {
			fire = append(fire, ev)
		}
	}

	// Daily-loss circuit sees realized + unrealized.
	total := m.realizedToday
	for _, tr := range m.open {
		total += tr.pos.UnrealizedPnl
	}
	m.mu.Unlock()

	if m.circuits != nil {
		m.circuits.EvaluateDailyLoss(total, m.cfg.AccountBalance, t.TsLocal)
	}
	for _, ev := range fire {
		m.pub.Publish(ev)
	}
}

// updateTrailing activates and ratchets the trailing stop; it never moves
// down once active.
func (m *Manager) updateTrailing(p *models.Position) {
	if !p.TrailingActive {
		if p.EntryPrice > 0 && (p.CurrentPrice-p.EntryPrice)/p.EntryPrice >= m.cfg.TrailActivatePnlPct {
			p.TrailingActive = true
			p.TrailingStop = p.CurrentPrice * (1 - m.cfg.TrailGapPct)
			m.log.Sugar().Infof("trailing activated for %s at %.2f (stop %.2f)",
				p.ID, p.CurrentPrice, p.TrailingStop)
		}
		return
	}
	if candidate := p.CurrentPrice * (1 - m.cfg.TrailGapPct); candidate > p.TrailingStop {
		p.TrailingStop = candidate
	}
}

// evaluateExits walks the tiers in priority order; the first
// hit wins and further hits on the same tick land in secondary.
func (m *Manager) evaluateExits(tr *tracked, t models.Tick) (bus.ExitSignalEvent, bool) {
	p := &tr.pos
	type hit struct {
		reason   string
		priority bus.ExitPriority
	}
	var hits []hit

	// Tier 2 — risk: option-premium stop.
	if p.CurrentPrice <= p.StopLoss {
		hits = append(hits, hit{"StopLoss", bus.PriorityRisk})
	}

	// Tier 3 — profit: target, then trailing.
	if p.Target != nil && p.CurrentPrice >= *p.Target {
		hits = append(hits, hit{"TargetReached", bus.PriorityProfit})
	}
	if p.TrailingActive && p.CurrentPrice < p.TrailingStop {
		hits = append(hits, hit{"TrailingStop", bus.PriorityProfit})
	}

	// Tier 4 — technical: sustained low volume.
	if m.lowVolumeSustained(tr, t.TsLocal) {
		hits = append(hits, hit{"SustainedLowVolume", bus.PriorityTechnical})
	}

	if len(hits) == 0 {
		return bus.ExitSignalEvent{}, false
	}
	best := 0
	for i, h := range hits {
		if h.priority < hits[best].priority {
			best = i
		}
	}
	var secondary []string
	for i, h := range hits {
		if i != best {
			secondary = append(secondary, h.reason)
		}
	}
	return bus.ExitSignalEvent{
		Base:       bus.Base{Ts: t.TsLocal},
		PositionID: p.ID,
		Reason:     hits[best].reason,
		Priority:   hits[best].priority,
		Secondary:  secondary,
	}, true
}

// lowVolumeSustained reports option volume below LowVolumeFrac of the
// 20-bar average for the whole low-volume window.
func (m *Manager) lowVolumeSustained(tr *tracked, now time.Time) bool {
	if m.bars == nil {
		return false
	}
	hist := m.bars.Tail(tr.pos.Symbol, models.Timeframe1m, m.cfg.LowVolumeAvgBars+1)
	if len(hist) < m.cfg.LowVolumeAvgBars+1 {
		return false
	}
	var s float64
	for _, b := range hist[:m.cfg.LowVolumeAvgBars] {
		s += float64(b.Volume)
	}
	avg := s / float64(m.cfg.LowVolumeAvgBars)
	if avg <= 0 {
		return false
	}
	latest := hist[len(hist)-1]
	if float64(latest.Volume) < m.cfg.LowVolumeFrac*avg {
		if tr.lowVolumeSince.IsZero() {
			tr.lowVolumeSince = now
		}
		return now.Sub(tr.lowVolumeSince) >= m.cfg.LowVolumeWindow
	}
	tr.lowVolumeSince = time.Time{}
	return false
}

// ObserveUnderlying logs the soft-stop context when the underlying moves
// adversely past the threshold; it never triggers an exit on its own.
func (m *Manager) ObserveUnderlying(underlying string, ltp float64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tr := range m.open {
		p := &tr.pos
		if p.Underlying != underlying || tr.softStopLogged || p.EntryUnderlyingLTP <= 0 {
			continue
		}
		move := (ltp - p.EntryUnderlyingLTP) / p.EntryUnderlyingLTP
		adverse := (p.OptionType == models.OptionCE && move <= -m.cfg.UnderlyingSoftStopPct) ||
			(p.OptionType == models.OptionPE && move >= m.cfg.UnderlyingSoftStopPct)
		if adverse {
			tr.softStopLogged = true
			m.log.Sugar().Warnf("underlying soft stop context on %s: moved %.2f%% against position %s",
				underlying, move*100, p.ID)
		}
	}
}

// HandleExitSignal transitions Open → Closing and drives the exit through
// the pipeline. Exits are idempotent: while Closing, additional signals are
// merged (reason = first, secondary = others) and no second order is placed.
func (m *Manager) HandleExitSignal(ev bus.Event) {
	es, ok := ev.(bus.ExitSignalEvent)
	if !ok {
		return
	}

	m.mu.Lock()
	tr, ok := m.open[es.PositionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if tr.pos.Status == models.PositionClosing {
		tr.pos.PendingExitSecondary = append(tr.pos.PendingExitSecondary, es.Reason)
		m.mu.Unlock()
		m.log.Sugar().Infof("merged exit %s into closing position %s", es.Reason, es.PositionID)
		return
	}
	tr.pos.Status = models.PositionClosing
	tr.pos.PendingExitReason = es.Reason
	tr.pos.PendingExitSecondary = append([]string{}, es.Secondary...)
	snap := tr.pos.Snapshot()
	m.mu.Unlock()

	go m.executeExit(snap, es.Priority)
}

// executeExit runs on a worker goroutine; the pipeline serializes per
// position and cancels lower-priority retries when preempted.
func (m *Manager) executeExit(snap models.Position, priority bus.ExitPriority) {
	ins, ok := m.cache.BySymbol(snap.Symbol)
	if !ok {
		m.log.Sugar().Errorf("exit: instrument missing for %s", snap.Symbol)
		return
	}

	intent := models.OrderIntent{
		ID:             "exit-" + snap.ID,
		BrokerSymbol:   snap.Symbol,
		Side:           models.SideSell,
		Qty:            snap.Qty,
		LimitPrice:     snap.CurrentPrice,
		IdempotencyKey: "exit:" + snap.ID,
		ParentSignalID: snap.EntrySignalID,
	}

	order, err := m.exec.ExecuteExit(m.ctx, intent, ins, snap.ID, priority)
	if err != nil {
		m.log.Sugar().Errorf("exit failed for %s: %v", snap.ID, err)
		// The position stays Closing; a mandatory retry path (EOD, shutdown)
		// will preempt with higher priority.
		return
	}
	m.pub.Publish(bus.OrderFilledEvent{
		Base:          bus.Base{Ts: time.Now()},
		Intent:        intent,
		Order:         order,
		IsExit:        true,
		PositionID:    snap.ID,
		ExitReason:    snap.PendingExitReason,
		ExitSecondary: snap.PendingExitSecondary,
	})
	m.CompleteExit(snap.ID, order)
}

// CompleteExit finalizes Closing → Closed from a terminal exit fill.
func (m *Manager) CompleteExit(positionID string, order models.Order) {
	m.mu.Lock()
	tr, ok := m.open[positionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	p := &tr.pos
	exitPx := order.AvgFillPrice
	p.RealizedPnl = (exitPx - p.EntryPrice) * float64(p.Qty) * p.PnlMultiplier()
	p.CurrentPrice = exitPx
	p.UnrealizedPnl = 0
	p.Status = models.PositionClosed

	m.realizedToday += p.RealizedPnl
	if p.RealizedPnl < 0 {
		m.consecutiveLosses++
	} else if p.RealizedPnl > 0 {
		m.consecutiveLosses = 0
	}
	streak := m.consecutiveLosses

	delete(m.open, positionID)
	delete(m.byExposure, exposureKey(p.Underlying, p.OptionType))
	metrics.OpenPositions.Set(float64(len(m.open)))
	metrics.ExitsByReason.WithLabelValues(p.PendingExitReason).Inc()
	metrics.RecordTrade(p.Underlying, p.RealizedPnl)
	snap := p.Snapshot()
	m.mu.Unlock()

	m.log.Sugar().Infof("position %s closed (%s): pnl %.2f", positionID, snap.PendingExitReason, snap.RealizedPnl)
	m.pub.Publish(bus.PositionClosedEvent{Base: bus.Base{Ts: time.Now()}, Position: snap, Reason: snap.PendingExitReason})

	if m.circuits != nil {
		m.circuits.RecordConsecutiveLosses(streak, time.Now())
	}
}

// ExitAll raises an exit for every open position at the given priority, one
// signal after another. Each exit then runs on its own goroutine; the
// pipeline's locks serialize orders per position only, so exits of different
// positions can be in flight at the same time.
func (m *Manager) ExitAll(reason string, priority bus.ExitPriority, at time.Time) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.open))
	for id, tr := range m.open {
		if tr.pos.Status == models.PositionOpen {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.pub.Publish(bus.ExitSignalEvent{
			Base:       bus.Base{Ts: at},
			PositionID: id,
			Reason:     reason,
			Priority:   priority,
		})
	}
}

// ExitWeakest force-exits the position with the worst unrealized P&L (the
// margin breaker's response).
func (m *Manager) ExitWeakest(reason string, at time.Time) {
	m.mu.Lock()
	var worstID string
	worst := 0.0
	for id, tr := range m.open {
		if tr.pos.Status != models.PositionOpen {
			continue
		}
		if worstID == "" || tr.pos.UnrealizedPnl < worst {
			worstID = id
			worst = tr.pos.UnrealizedPnl
		}
	}
	m.mu.Unlock()
	if worstID == "" {
		return
	}
	m.pub.Publish(bus.ExitSignalEvent{
		Base:       bus.Base{Ts: at},
		PositionID: worstID,
		Reason:     reason,
		Priority:   bus.PriorityRisk,
	})
}

// CheckMargin consults the broker snapshot and force-exits the weakest
// position above the utilization limit.
func (m *Manager) CheckMargin(ctx context.Context, b broker.Broker, at time.Time) {
	if m.circuits == nil {
		return
	}
	_, util, err := b.Margin(ctx)
	if err != nil {
		return
	}
	if m.circuits.MarginBreached(util) {
		m.log.Sugar().Warnf("margin utilization %.0f%% breached limit, exiting weakest", util*100)
		m.ExitWeakest("MarginBreach", at)
	}
}

// String renders a compact book summary for logs.
func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("positions{open: %d, realized: %.2f}", len(m.open), m.realizedToday)
}

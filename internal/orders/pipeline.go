package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"optionscore/internal/broker"
	"optionscore/internal/bus"
	"optionscore/internal/coreerr"
	"optionscore/internal/ledger"
	"optionscore/internal/metrics"
	"optionscore/internal/models"
	"optionscore/pkg/crypto"
	"optionscore/pkg/utils"
)

// Config holds the retry ladder and timeouts.
type Config struct {
	LadderStepsPct        []float64       // limit-price steps per attempt
	RetryBackoffs         []time.Duration // waits before each attempt
	MaxRetries            int             // attempt cap
	TotalRetryCap         time.Duration   // T_RETRY_CAP
	PerAttemptFillTimeout time.Duration
	ExitAggressionPct     float64       // initial exit limit offset
	ExitFillTimeout       time.Duration // convert to market after this
	ExitTotalBudget       time.Duration // token-expiry flush budget
	StatusPollInterval    time.Duration
	GlobalRatePerSec      float64 // throttle across all broker calls
	Product               string  // broker product code for intraday options
}

// DefaultConfig returns the standard production values.
func DefaultConfig() Config {
	return Config{
		LadderStepsPct:        []float64{0, 0.0025, 0.0050, 0.0075, 0.0100},
		RetryBackoffs:         []time.Duration{0, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
		MaxRetries:            5,
		TotalRetryCap:         30 * time.Second,
		PerAttemptFillTimeout: 60 * time.Second,
		ExitAggressionPct:     0.005,
		ExitFillTimeout:       60 * time.Second,
		ExitTotalBudget:       180 * time.Second,
		StatusPollInterval:    500 * time.Millisecond,
		GlobalRatePerSec:      8,
		Product:               "INTRADAY",
	}
}

// ledger event types recorded per submission attempt, replayed for
// reconciliation after a crash.
const (
	ledgerTypeAttempt = "ORDER_ATTEMPT"
)

// Publisher is the slice of the bus the pipeline publishes to.
type Publisher interface {
	Publish(bus.Event)
}

// exitClaim tracks the in-flight exit for a position so a higher-priority
// exit can cancel a lower-priority retry loop.
type exitClaim struct {
	priority bus.ExitPriority
	cancel   context.CancelFunc
}

// Pipeline owns order execution: pre-trade validation, the
// limit-price ladder with bounded retries, idempotent submission, and fill
// waits. Submissions are serialized per position; a global token bucket
// throttles all broker calls.
type Pipeline struct {
	cfg Config
	brk broker.Broker
	led *ledger.Ledger
	pub Publisher
	log *utils.Logger

	global *rate.Limiter

	sessionUUID string

	mu       sync.Mutex
	posLocks map[string]*sync.Mutex
	exits    map[string]*exitClaim
}

// New wires the pipeline. led may be nil in tests (no attempt journaling).
func New(cfg Config, brk broker.Broker, led *ledger.Ledger, pub Publisher, sessionUUID string, log *utils.Logger) *Pipeline {
	if cfg.GlobalRatePerSec <= 0 {
		cfg.GlobalRatePerSec = 8
	}
	return &Pipeline{
		cfg:         cfg,
		brk:         brk,
		led:         led,
		pub:         pub,
		log:         log.WithComponent("orders"),
		global:      rate.NewLimiter(rate.Limit(cfg.GlobalRatePerSec), int(cfg.GlobalRatePerSec)),
		sessionUUID: sessionUUID,
		posLocks:    make(map[string]*sync.Mutex),
		exits:       make(map[string]*exitClaim),
	}
}

// positionLock serializes submissions per position. Concurrent submissions
// against the same position are forbidden.
func (p *Pipeline) positionLock(positionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.posLocks[positionID]
	if !ok {
		l = &sync.Mutex{}
		p.posLocks[positionID] = l
	}
	return l
}

// clientOrderID derives the deterministic per-attempt idempotency handle:
// H(session_uuid | intent.id | attempt_index).
func (p *Pipeline) clientOrderID(intentID string, attempt int) string {
	return crypto.IdempotencyKey(p.sessionUUID, intentID, strconv.Itoa(attempt))[:32]
}

// journalAttempt reserves the attempt's client order id in the ledger before
// the broker call; a ledger failure fails closed.
func (p *Pipeline) journalAttempt(clientOrderID string, at time.Time) error {
	if p.led == nil {
		return nil
	}
	_, err := p.led.Reserve(clientOrderID, ledgerTypeAttempt, "", at, true)
	return err
}

func (p *Pipeline) journalOutcome(clientOrderID string, outcome models.LedgerOutcome, d time.Duration) {
	if p.led == nil {
		return
	}
	_ = p.led.MarkProcessed(clientOrderID, outcome, d)
}

// ExecuteEntry walks the limit-price ladder for an entry intent until a
// terminal fill, the attempt cap, or the total retry budget. It returns the
// filled order or an OrderFailedError after emitting OrderFailedPermanent.
func (p *Pipeline) ExecuteEntry(ctx context.Context, intent models.OrderIntent, ins models.Instrument, positionID string) (models.Order, error) {
	lock := p.positionLock(positionID)
	lock.Lock()
	defer lock.Unlock()

	budget, cancel := context.WithTimeout(ctx, p.cfg.TotalRetryCap)
	defer cancel()

	order := models.Order{IntentID: intent.ID, State: models.OrderCreated}
	var lastQuote float64

	steps := p.cfg.LadderStepsPct
	for attempt := 0; attempt < p.cfg.MaxRetries && attempt < len(steps); attempt++ {
		if err := p.backoff(budget, attempt); err != nil {
			break
		}

		ltp, err := p.quoteLTP(budget, intent.BrokerSymbol)
		if err != nil {
			order.LastError = err.Error()
			continue
		}
		lastQuote = ltp

		price := ladderPrice(ltp, steps[attempt], intent.Side)
		price = RoundToTick(price, ins.TickSize)

		filled, err := p.attempt(budget, &order, intent, ins, price, attempt, p.cfg.PerAttemptFillTimeout)
		if err != nil {
			var rej *coreerr.RejectionError
			if errors.As(err, &rej) || errors.Is(err, coreerr.ErrLedgerUnavailable) {
				// Non-retriable at any price, or ledger fail-closed.
				order.LastError = err.Error()
				return order, err
			}
			order.LastError = err.Error()
			continue
		}
		if filled {
			return order, nil
		}
	}

	order.State = models.OrderTimedOut
	metrics.OrderFailuresPermanent.Inc()
	p.pub.Publish(bus.OrderFailedEvent{
		Base:      bus.Base{Ts: time.Now()},
		Intent:    intent,
		Attempts:  order.Attempts,
		LastQuote: lastQuote,
		Reason:    order.LastError,
	})
	return order, &coreerr.OrderFailedError{
		IntentID:  intent.ID,
		Attempts:  order.Attempts,
		LastQuote: lastQuote,
		Cause:     errors.New(nonEmpty(order.LastError, "retry budget exhausted")),
	}
}

// ExecuteExit places a single aggressive limit; unfilled within the exit
// fill timeout it converts to market, all under the overall exit budget.
// priority lets a mandatory exit cancel a lower-priority one in flight.
func (p *Pipeline) ExecuteExit(ctx context.Context, intent models.OrderIntent, ins models.Instrument, positionID string, priority bus.ExitPriority) (models.Order, error) {
	ctx, release := p.claimExit(ctx, positionID, priority)
	if ctx == nil {
		return models.Order{}, fmt.Errorf("exit already in flight for %s at higher priority", positionID)
	}
	defer release()

	lock := p.positionLock(positionID)
	lock.Lock()
	defer lock.Unlock()

	budget, cancel := context.WithTimeout(ctx, p.cfg.ExitTotalBudget)
	defer cancel()

	order := models.Order{IntentID: intent.ID, State: models.OrderCreated}

	ltp, err := p.quoteLTP(budget, intent.BrokerSymbol)
	if err != nil {
		ltp = intent.LimitPrice
	}
	price := RoundToTick(ladderPrice(ltp, p.cfg.ExitAggressionPct, intent.Side), ins.TickSize)

	filled, err := p.attempt(budget, &order, intent, ins, price, 0, p.cfg.ExitFillTimeout)
	if err == nil && filled {
		return order, nil
	}
	if budget.Err() != nil {
		return order, budget.Err()
	}

	// Limit did not fill: convert to market for the remainder of the budget.
	p.log.Sugar().Warnf("exit limit unfilled for %s, converting to market", intent.BrokerSymbol)
	filled, err = p.attemptMarket(budget, &order, intent, 1)
	if err != nil {
		return order, err
	}
	if !filled {
		return order, fmt.Errorf("exit for %s unfilled within budget", intent.BrokerSymbol)
	}
	return order, nil
}

// claimExit registers an exit attempt; a higher-priority claim cancels the
// lower one, a lower/equal-priority claim while one is in flight is refused.
func (p *Pipeline) claimExit(parent context.Context, positionID string, priority bus.ExitPriority) (context.Context, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.exits[positionID]; ok {
		if priority >= cur.priority {
			return nil, nil
		}
		cur.cancel() // preempt the lower-priority retry loop
	}
	ctx, cancel := context.WithCancel(parent)
	claim := &exitClaim{priority: priority, cancel: cancel}
	p.exits[positionID] = claim
	return ctx, func() {
		p.mu.Lock()
		if p.exits[positionID] == claim {
			delete(p.exits, positionID)
		}
		p.mu.Unlock()
		cancel()
	}
}

// attempt submits one limit order and waits for a terminal state. Returns
// filled=false on timeout after cancelling the order.
func (p *Pipeline) attempt(ctx context.Context, order *models.Order, intent models.OrderIntent, ins models.Instrument, price float64, attempt int, fillTimeout time.Duration) (bool, error) {
	clientID := p.clientOrderID(intent.ID, attempt)
	if err := p.journalAttempt(clientID, time.Now()); err != nil {
		return false, err
	}

	if err := p.global.Wait(ctx); err != nil {
		return false, err
	}

	start := time.Now()
	brokerID, err := p.brk.PlaceOrder(ctx, broker.OrderRequest{
		BrokerSymbol:  intent.BrokerSymbol,
		Side:          intent.Side,
		Qty:           intent.Qty,
		OrderType:     "LIMIT",
		Product:       p.cfg.Product,
		Price:         price,
		Validity:      "DAY",
		ClientOrderID: clientID,
	})
	metrics.OrderAttemptLatency.WithLabelValues(string(intent.Side)).
		Observe(float64(time.Since(start).Milliseconds()))

	order.Attempts++
	order.LastPrice = price
	order.ClientOrderID = clientID
	if err != nil {
		p.journalOutcome(clientID, models.OutcomeFailed, time.Since(start))
		order.State = models.OrderRejected
		return false, err
	}
	order.BrokerOrderID = brokerID
	order.State = models.OrderSubmitted

	status, err := p.waitTerminal(ctx, brokerID, fillTimeout)
	if err != nil || !status.State.IsTerminal() {
		// Timeout or interrupted: cancel and let the ladder advance.
		cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = p.brk.CancelOrder(cancelCtx, brokerID)
		cancel()
		p.journalOutcome(clientID, models.OutcomeFailed, time.Since(start))
		order.State = models.OrderTimedOut
		if err != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}

	order.State = status.State
	order.FilledQty = status.FilledQty
	order.AvgFillPrice = status.AvgPrice
	order.LastError = status.Reason

	switch status.State {
	case models.OrderFilled:
		p.journalOutcome(clientID, models.OutcomeSuccess, time.Since(start))
		return true, nil
	case models.OrderRejected:
		p.journalOutcome(clientID, models.OutcomeFailed, time.Since(start))
		// Validation rejections are non-retriable at the same price; the
		// ladder advances to the next step.
		return false, nil
	default: // cancelled
		p.journalOutcome(clientID, models.OutcomeFailed, time.Since(start))
		return false, nil
	}
}

// attemptMarket submits a market order and waits for the terminal state.
func (p *Pipeline) attemptMarket(ctx context.Context, order *models.Order, intent models.OrderIntent, attempt int) (bool, error) {
	clientID := p.clientOrderID(intent.ID, 100+attempt)
	if err := p.journalAttempt(clientID, time.Now()); err != nil {
		return false, err
	}
	if err := p.global.Wait(ctx); err != nil {
		return false, err
	}

	start := time.Now()
	brokerID, err := p.brk.PlaceOrder(ctx, broker.OrderRequest{
		BrokerSymbol:  intent.BrokerSymbol,
		Side:          intent.Side,
		Qty:           intent.Qty,
		OrderType:     "MARKET",
		Product:       p.cfg.Product,
		Validity:      "DAY",
		ClientOrderID: clientID,
	})
	order.Attempts++
	order.ClientOrderID = clientID
	if err != nil {
		p.journalOutcome(clientID, models.OutcomeFailed, time.Since(start))
		return false, err
	}
	order.BrokerOrderID = brokerID

	status, err := p.waitTerminal(ctx, brokerID, p.cfg.ExitFillTimeout)
	if err != nil || status.State != models.OrderFilled {
		p.journalOutcome(clientID, models.OutcomeFailed, time.Since(start))
		return false, err
	}
	order.State = models.OrderFilled
	order.FilledQty = status.FilledQty
	order.AvgFillPrice = status.AvgPrice
	p.journalOutcome(clientID, models.OutcomeSuccess, time.Since(start))
	return true, nil
}

// waitTerminal polls order status until a terminal state, the fill timeout,
// or cancellation.
func (p *Pipeline) waitTerminal(ctx context.Context, brokerOrderID string, timeout time.Duration) (broker.OrderStatus, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.cfg.StatusPollInterval)
	defer ticker.Stop()

	var last broker.OrderStatus
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			return last, nil
		case <-ticker.C:
			if err := p.global.Wait(ctx); err != nil {
				return last, err
			}
			status, err := p.brk.OrderStatus(ctx, brokerOrderID)
			if err != nil {
				continue // transient; keep polling until the deadline
			}
			last = status
			if status.State.IsTerminal() {
				return status, nil
			}
		}
	}
}

// backoff waits the scheduled delay before the attempt, honoring the budget.
func (p *Pipeline) backoff(ctx context.Context, attempt int) error {
	if attempt >= len(p.cfg.RetryBackoffs) {
		return nil
	}
	d := p.cfg.RetryBackoffs[attempt]
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (p *Pipeline) quoteLTP(ctx context.Context, symbol string) (float64, error) {
	if err := p.global.Wait(ctx); err != nil {
		return 0, err
	}
	return p.brk.LTP(ctx, symbol)
}

// ladderPrice applies step i: buys chase up, sells concede down.
func ladderPrice(ltp, step float64, side models.OrderSide) float64 {
	if side == models.SideBuy {
		return ltp * (1 + step)
	}
	return ltp * (1 - step)
}

// Reconcile runs the ledger replay contract on restart: for every
// in-progress order attempt from a previous run, query the broker by client
// order id and bind the existing order instead of re-placing it. Returns
// the statuses of orders found live at the broker.
func (p *Pipeline) Reconcile(ctx context.Context) ([]broker.OrderStatus, error) {
	if p.led == nil {
		return nil, nil
	}
	var bound []broker.OrderStatus
	for _, e := range p.led.InProgressEntries(ledgerTypeAttempt) {
		status, found, err := p.brk.FindOrderByClientID(ctx, e.IdempotencyKey)
		if err != nil {
			return bound, fmt.Errorf("reconcile %s: %w", e.IdempotencyKey, err)
		}
		if !found {
			// Crash happened before the broker accepted it; release the key.
			_ = p.led.MarkProcessed(e.IdempotencyKey, models.OutcomeFailed, 0)
			continue
		}
		p.log.Sugar().Infof("reconciled in-progress order %s -> broker %s (%s)",
			e.IdempotencyKey, status.BrokerOrderID, status.State)
		outcome := models.OutcomeSuccess
		if status.State != models.OrderFilled {
			outcome = models.OutcomeFailed
		}
		_ = p.led.MarkProcessed(e.IdempotencyKey, outcome, 0)
		bound = append(bound, status)
	}
	return bound, nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

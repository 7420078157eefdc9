package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"optionscore/internal/broker"
	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

// Config tunes the simulator's fill behavior.
type Config struct {
	SlippagePct float64       // additive ± slippage on the limit price, default 0.0005
	LatencyMin  time.Duration // fill latency distribution bounds
	LatencyMax  time.Duration
	Balance     float64 // simulated account balance
	Utilization float64 // simulated margin utilization
}

// DefaultConfig uses the standard slippage with a snappy latency band.
func DefaultConfig() Config {
	return Config{
		SlippagePct: 0.0005,
		LatencyMin:  20 * time.Millisecond,
		LatencyMax:  120 * time.Millisecond,
		Balance:     500_000,
		Utilization: 0.10,
	}
}

type simOrder struct {
	id     string
	req    broker.OrderRequest
	status broker.OrderStatus
}

// Simulator is the drop-in paper executor: same Broker port as the live
// adapter, fills at limit ± slippage after a sampled latency. Used for
// staged rollout; never on the live path.
type Simulator struct {
	mu  sync.Mutex
	cfg Config
	log *utils.Logger
	rng *rand.Rand

	session     broker.Session
	instruments []models.Instrument
	prices      map[string]float64

	seq      int
	orders   map[string]*simOrder // broker order id -> order
	byClient map[string]string    // client order id -> broker order id

	ticks   chan models.Tick
	updates chan broker.OrderUpdate
	closed  bool
}

// New builds a Simulator seeded from cfg.
func New(cfg Config, instruments []models.Instrument, log *utils.Logger) *Simulator {
	return &Simulator{
		cfg:         cfg,
		log:         log.WithComponent("paper"),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		instruments: instruments,
		prices:      make(map[string]float64),
		orders:      make(map[string]*simOrder),
		byClient:    make(map[string]string),
		ticks:       make(chan models.Tick, 4096),
		updates:     make(chan broker.OrderUpdate, 256),
	}
}

// PushTick feeds a market tick into the simulator: it updates the fill
// price book and forwards to subscribers. Feed replayers and tests drive
// the simulator through this.
func (s *Simulator) PushTick(t models.Tick) {
	s.mu.Lock()
	s.prices[t.Symbol] = t.LTP
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.ticks <- t:
	default:
	}
}

// Login returns a synthetic session valid for the day.
func (s *Simulator) Login(_ context.Context, _ broker.Credentials) (broker.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = broker.Session{
		JWT:       "paper-jwt",
		FeedToken: "paper-feed",
		Expiry:    time.Now().Add(12 * time.Hour),
	}
	return s.session, nil
}

// FetchInstruments returns the instrument master the simulator was built with.
func (s *Simulator) FetchInstruments(_ context.Context) ([]models.Instrument, error) {
	out := make([]models.Instrument, len(s.instruments))
	copy(out, s.instruments)
	return out, nil
}

// LTP returns the last pushed price for the symbol.
func (s *Simulator) LTP(_ context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	px, ok := s.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return px, nil
}

// GetQuote synthesizes a quote 0.05% of the price either side of the last price.
func (s *Simulator) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	px, err := s.LTP(ctx, symbol)
	if err != nil {
		return broker.Quote{}, err
	}
	spread := px * 0.0005
	return broker.Quote{
		Symbol: symbol,
		LTP:    px,
		Bid:    px - spread,
		Ask:    px + spread,
		BidQty: 500,
		AskQty: 500,
	}, nil
}

// Historical returns nothing: the paper run aggregates its own bars from
// the replayed feed.
func (s *Simulator) Historical(_ context.Context, _ string, _ models.Timeframe, _, _ time.Time) ([]models.Bar, error) {
	return nil, nil
}

// PlaceOrder accepts the order and schedules its fill after a sampled
// latency. Duplicate client order ids return the original broker order id.
func (s *Simulator) PlaceOrder(_ context.Context, req broker.OrderRequest) (string, error) {
	s.mu.Lock()
	if existing, ok := s.byClient[req.ClientOrderID]; ok && req.ClientOrderID != "" {
		s.mu.Unlock()
		return existing, nil
	}
	s.seq++
	id := fmt.Sprintf("paper-%06d", s.seq)
	o := &simOrder{
		id:  id,
		req: req,
		status: broker.OrderStatus{
			BrokerOrderID: id,
			State:         models.OrderSubmitted,
		},
	}
	s.orders[id] = o
	if req.ClientOrderID != "" {
		s.byClient[req.ClientOrderID] = id
	}
	latency := s.sampleLatency()
	s.mu.Unlock()

	time.AfterFunc(latency, func() { s.fill(id) })
	return id, nil
}

func (s *Simulator) sampleLatency() time.Duration {
	span := s.cfg.LatencyMax - s.cfg.LatencyMin
	if span <= 0 {
		return s.cfg.LatencyMin
	}
	return s.cfg.LatencyMin + time.Duration(s.rng.Int63n(int64(span)))
}

// fill completes an order at its limit price plus additive slippage; market
// orders fill at the book price.
func (s *Simulator) fill(id string) {
	s.mu.Lock()
	o, ok := s.orders[id]
	if !ok || o.status.State.IsTerminal() || s.closed {
		s.mu.Unlock()
		return
	}

	px := o.req.Price
	if o.req.OrderType == "MARKET" || px <= 0 {
		px = s.prices[o.req.BrokerSymbol]
	}
	if px <= 0 {
		o.status.State = models.OrderRejected
		o.status.Reason = "no market price"
		update := broker.OrderUpdate{BrokerOrderID: id, ClientOrderID: o.req.ClientOrderID, Status: o.status, At: time.Now()}
		s.mu.Unlock()
		s.pushUpdate(update)
		return
	}

	slip := px * s.cfg.SlippagePct
	if s.rng.Intn(2) == 0 {
		slip = -slip
	}
	fillPx := px + slip

	o.status.State = models.OrderFilled
	o.status.FilledQty = o.req.Qty
	o.status.AvgPrice = fillPx
	update := broker.OrderUpdate{BrokerOrderID: id, ClientOrderID: o.req.ClientOrderID, Status: o.status, At: time.Now()}
	s.mu.Unlock()

	s.log.Sugar().Debugf("paper fill %s %s %d @ %.2f", o.req.BrokerSymbol, o.req.Side, o.req.Qty, fillPx)
	s.pushUpdate(update)
}

func (s *Simulator) pushUpdate(u broker.OrderUpdate) {
	select {
	case s.updates <- u:
	default:
	}
}

// CancelOrder cancels a pending order; filled orders return an error.
func (s *Simulator) CancelOrder(_ context.Context, brokerOrderID string) error {
	s.mu.Lock()
	o, ok := s.orders[brokerOrderID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("paper: unknown order %s", brokerOrderID)
	}
	if o.status.State.IsTerminal() {
		s.mu.Unlock()
		return fmt.Errorf("paper: order %s already %s", brokerOrderID, o.status.State)
	}
	o.status.State = models.OrderCancelled
	update := broker.OrderUpdate{BrokerOrderID: brokerOrderID, ClientOrderID: o.req.ClientOrderID, Status: o.status, At: time.Now()}
	s.mu.Unlock()
	s.pushUpdate(update)
	return nil
}

// ModifyOrder amends a pending order's price and qty.
func (s *Simulator) ModifyOrder(_ context.Context, brokerOrderID string, price float64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("paper: unknown order %s", brokerOrderID)
	}
	if o.status.State.IsTerminal() {
		return fmt.Errorf("paper: order %s already %s", brokerOrderID, o.status.State)
	}
	o.req.Price = price
	if qty > 0 {
		o.req.Qty = qty
	}
	return nil
}

// OrderStatus returns the current state of an order.
func (s *Simulator) OrderStatus(_ context.Context, brokerOrderID string) (broker.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[brokerOrderID]
	if !ok {
		return broker.OrderStatus{}, fmt.Errorf("paper: unknown order %s", brokerOrderID)
	}
	return o.status, nil
}

// FindOrderByClientID resolves an order by its idempotency handle.
func (s *Simulator) FindOrderByClientID(_ context.Context, clientOrderID string) (broker.OrderStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byClient[clientOrderID]
	if !ok {
		return broker.OrderStatus{}, false, nil
	}
	return s.orders[id].status, true, nil
}

// Margin returns the configured simulated margin state.
func (s *Simulator) Margin(_ context.Context) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Balance, s.cfg.Utilization, nil
}

// SubscribeWS is a no-op: PushTick is the feed.
func (s *Simulator) SubscribeWS(_ []string, _ broker.SubscriptionMode) error { return nil }

// UnsubscribeWS is a no-op.
func (s *Simulator) UnsubscribeWS(_ []string) error { return nil }

// Ticks returns the push channel fed by PushTick.
func (s *Simulator) Ticks() <-chan models.Tick { return s.ticks }

// OrderUpdates returns the order event channel.
func (s *Simulator) OrderUpdates() <-chan broker.OrderUpdate { return s.updates }

// Close stops accepting ticks and fills.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ broker.Broker = (*Simulator)(nil)

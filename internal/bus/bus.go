package bus

import (
	"context"
	"strings"
	"sync"
	"time"

	"optionscore/internal/ledger"
	"optionscore/internal/metrics"
	"optionscore/internal/models"
	"optionscore/pkg/crypto"
	"optionscore/pkg/utils"
)

// Handler processes one event. Handlers registered for non-tick events run
// on the bus's single dispatch goroutine, so they may mutate their own state
// without locking: a single goroutine runs them all.
type Handler func(Event)

// TickConsumer receives the tick fan-out on its own goroutine. Each consumer
// owns its state; the bus guarantees per-consumer receipt order.
type TickConsumer interface {
	Name() string
	OnTick(models.Tick)
}

const (
	defaultEventBuffer = 1024
	defaultTickBuffer  = 4096

	// sustained drops past this count escalate to DataGapDetected
	dropEscalationThreshold = 1000
)

// Bus is the in-process pub/sub fanout. Critical events (those
// with a non-empty IdempotencyKey) are reserved in the ledger before
// dispatch; duplicates are suppressed.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	events chan Event
	led    *ledger.Ledger
	log    *utils.Logger

	tickConsumers []*tickLane
	dropped       int64
	draining      bool

	wg sync.WaitGroup
}

// tickLane is one consumer's buffered tick queue with its pump goroutine.
type tickLane struct {
	name     string
	consumer TickConsumer
	ch       chan models.Tick
}

// New builds a Bus over the given ledger. led may be nil in tests; critical
// events are then dispatched without reservation.
func New(led *ledger.Ledger, log *utils.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		events:   make(chan Event, defaultEventBuffer),
		led:      led,
		log:      log.WithComponent("bus"),
	}
}

// Subscribe registers h for the given event types. Must be called before Run.
func (b *Bus) Subscribe(h Handler, types ...EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], h)
	}
}

// SubscribeTicks registers a tick consumer with its own buffered lane.
// Must be called before Run.
func (b *Bus) SubscribeTicks(c TickConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickConsumers = append(b.tickConsumers, &tickLane{
		name:     c.Name(),
		consumer: c,
		ch:       make(chan models.Tick, defaultTickBuffer),
	})
}

// Run starts the dispatch loop and tick pumps, blocking until ctx is done
// and the queues drain.
func (b *Bus) Run(ctx context.Context) {
	for _, lane := range b.tickConsumers {
		b.wg.Add(1)
		go b.tickPump(ctx, lane)
	}

	b.wg.Add(1)
	go b.dispatchLoop(ctx)

	b.wg.Wait()
}

func (b *Bus) tickPump(ctx context.Context, lane *tickLane) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued so late bars still complete.
			for {
				select {
				case t := <-lane.ch:
					lane.consumer.OnTick(t)
				default:
					return
				}
			}
		case t := <-lane.ch:
			start := time.Now()
			lane.consumer.OnTick(t)
			metrics.TickProcessingLatency.WithLabelValues(t.Symbol).
				Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-b.events:
					b.dispatch(ev)
				default:
					return
				}
			}
		case ev := <-b.events:
			b.dispatch(ev)
		}
	}
}

// PublishTick fans a tick to every tick consumer. Saturated lanes drop the
// tick; drops are counted and sustained drops escalate to DataGapDetected.
func (b *Bus) PublishTick(t models.Tick) {
	for _, lane := range b.tickConsumers {
		select {
		case lane.ch <- t:
		default:
			metrics.RecordBufferOverflow("tick:" + lane.name)
			metrics.TicksDropped.WithLabelValues(t.Symbol).Inc()
			b.mu.Lock()
			b.dropped++
			escalate := b.dropped%dropEscalationThreshold == 0
			b.mu.Unlock()
			if escalate {
				b.Publish(DataGapEvent{Base: Base{Ts: t.TsLocal}, Symbol: t.Symbol})
			}
		}
	}
}

// Publish enqueues an event for serialized dispatch. Blocks when the queue
// is full (backpressure), except during drain where late events are dropped.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	draining := b.draining
	b.mu.RUnlock()
	if draining {
		select {
		case b.events <- ev:
		default:
			metrics.RecordBufferOverflow("event")
		}
		return
	}
	b.events <- ev
}

// dispatch reserves critical events in the ledger, runs handlers in
// registration order, and marks the outcome.
func (b *Bus) dispatch(ev Event) {
	key := ev.IdempotencyKey()
	gating := isGating(ev.Type())

	if key != "" && b.led != nil {
		status, err := b.led.Reserve(key, string(ev.Type()), payloadHash(ev), ev.At(), gating)
		if err != nil {
			b.log.Sugar().Errorf("ledger reserve failed for %s: %v", ev.Type(), err)
			b.fanout(LedgerUnavailableEvent{Base: Base{Ts: ev.At()}, Err: err.Error()})
			return
		}
		if status != ledger.Fresh {
			metrics.EventsSuppressed.WithLabelValues(string(ev.Type())).Inc()
			b.log.Sugar().Infow("duplicate event suppressed",
				"type", ev.Type(), "key", key, "status", status.String())
			return
		}
	}

	start := time.Now()
	b.fanout(ev)
	metrics.EventsProcessed.WithLabelValues(string(ev.Type())).Inc()

	if key != "" && b.led != nil {
		_ = b.led.MarkProcessed(key, models.OutcomeSuccess, time.Since(start))
	}
}

func (b *Bus) fanout(ev Event) {
	b.mu.RLock()
	hs := b.handlers[ev.Type()]
	b.mu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
}

// BeginDrain switches Publish to best-effort so shutdown cannot deadlock on
// a full queue.
func (b *Bus) BeginDrain() {
	b.mu.Lock()
	b.draining = true
	b.mu.Unlock()
}

// DroppedTicks returns the cumulative dropped-tick count.
func (b *Bus) DroppedTicks() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// isGating: events whose ledger write must hit disk before dispatch. These
// gate order submission; everything else tolerates a buffered write.
func isGating(t EventType) bool {
	switch t {
	case EventSignal, EventOrderIntent, EventOrderFilled:
		return true
	default:
		return false
	}
}

// payloadHash derives a stable digest of the event identity for the ledger
// record. The idempotency key already pins the payload; the type prefix
// makes collisions across event kinds visible during audits.
func payloadHash(ev Event) string {
	var sb strings.Builder
	sb.WriteString(string(ev.Type()))
	sb.WriteByte('|')
	sb.WriteString(ev.IdempotencyKey())
	return crypto.HashKey(sb.String())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus metrics for the trading core
// ============================================================
//
// Exposed on /metrics by the internal/api router (cmd/engine, cmd/paper). Dashboards care about three things:
// tick-to-order latency, event throughput, and dropped-event counters.

// ============ Latency ============

// TickToOrderLatency measures time from tick receipt to order submission.
var TickToOrderLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "optionscore",
		Subsystem: "trading",
		Name:      "tick_to_order_latency_ms",
		Help:      "Latency from price tick to order submission in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	},
	[]string{"symbol", "stage"},
)

// TickProcessingLatency measures per-tick handling in the hot path.
var TickProcessingLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "optionscore",
		Subsystem: "trading",
		Name:      "tick_processing_latency_ms",
		Help:      "Time to process a tick in milliseconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
	[]string{"symbol"},
)

// OrderAttemptLatency measures each broker submission round trip.
var OrderAttemptLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "optionscore",
		Subsystem: "orders",
		Name:      "attempt_latency_ms",
		Help:      "Time for one broker order attempt in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"side"},
)

// LedgerFlushLatency measures gate-critical ledger fsync time.
var LedgerFlushLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "optionscore",
		Subsystem: "ledger",
		Name:      "flush_latency_ms",
		Help:      "Time to flush a gate-critical ledger entry in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100},
	},
)

// ============ Event counters ============

// EventsProcessed counts dispatched bus events by type.
var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "optionscore",
		Subsystem: "bus",
		Name:      "events_processed_total",
		Help:      "Total number of processed bus events",
	},
	[]string{"type"},
)

// EventsSuppressed counts events deduplicated by the ledger.
var EventsSuppressed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "optionscore",
		Subsystem: "bus",
		Name:      "events_suppressed_total",
		Help:      "Bus events suppressed as idempotency-key duplicates",
	},
	[]string{"type"},
)

// BarsCompleted counts BarReady emissions per timeframe.
var BarsCompleted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "optionscore",
		Subsystem: "bars",
		Name:      "completed_total",
		Help:      "Completed bars by timeframe",
	},
	[]string{"timeframe"},
)

// TradesTotal counts closed trades by underlying and result.
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "optionscore",
		Subsystem: "trading",
		Name:      "trades_total",
		Help:      "Total number of closed trades",
	},
	[]string{"underlying", "result"}, // result: win, loss, flat
)

// PnlTotal accumulates realized P&L in rupees.
var PnlTotal = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "optionscore",
		Subsystem: "trading",
		Name:      "pnl_total_inr",
		Help:      "Total realized PnL in INR",
	},
)

// OrderFailuresPermanent counts intents that exhausted the retry ladder.
var OrderFailuresPermanent = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "optionscore",
		Subsystem: "orders",
		Name:      "failed_permanent_total",
		Help:      "Order intents that failed after the full retry ladder",
	},
)

// ExitsByReason counts position exits by primary reason.
var ExitsByReason = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "optionscore",
		Subsystem: "positions",
		Name:      "exits_total",
		Help:      "Position exits by primary reason",
	},
	[]string{"reason"},
)

// ============ State gauges ============

// OpenPositions tracks the current open position count.
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "optionscore",
		Subsystem: "positions",
		Name:      "open",
		Help:      "Current number of open positions",
	},
)

// EngineHealth publishes the engine state (1=healthy, 0=not).
var EngineHealth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "optionscore",
		Subsystem: "engine",
		Name:      "state",
		Help:      "Engine state flags (exactly one label is 1)",
	},
	[]string{"state"}, // healthy, degraded, halted, shutting_down
)

// BrokerConnected publishes feed/session connectivity.
var BrokerConnected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "optionscore",
		Subsystem: "broker",
		Name:      "connected",
		Help:      "Broker connection status (1=connected, 0=disconnected)",
	},
)

// CircuitState publishes each circuit breaker (1=tripped).
var CircuitState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "optionscore",
		Subsystem: "risk",
		Name:      "circuit_tripped",
		Help:      "Circuit breaker state (1=tripped)",
	},
	[]string{"circuit"}, // vix, flash_spike, daily_loss (set by either day halt: loss limit or loss streak), margin
)

// ============ Backpressure ============

// BufferOverflows counts channel saturation drops by buffer name.
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "optionscore",
		Subsystem: "bus",
		Name:      "buffer_overflows_total",
		Help:      "Number of channel buffer overflows (events dropped)",
	},
	[]string{"buffer"}, // tick, event, notification
)

// TicksDropped counts ticks dropped under saturation, by symbol.
var TicksDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "optionscore",
		Subsystem: "bus",
		Name:      "ticks_dropped_total",
		Help:      "Ticks dropped because a consumer queue was full",
	},
	[]string{"symbol"},
)

// ============ Helpers ============

// RecordTrade records one closed trade.
func RecordTrade(underlying string, pnl float64) {
	result := "flat"
	switch {
	case pnl > 0:
		result = "win"
	case pnl < 0:
		result = "loss"
	}
	TradesTotal.WithLabelValues(underlying, result).Inc()
	PnlTotal.Add(pnl)
}

// RecordBufferOverflow records one dropped event for the named buffer.
func RecordBufferOverflow(buffer string) {
	BufferOverflows.WithLabelValues(buffer).Inc()
}

// SetEngineState flips the state gauge so exactly one label reads 1.
func SetEngineState(state string) {
	for _, s := range []string{"healthy", "degraded", "halted", "shutting_down"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		EngineHealth.WithLabelValues(s).Set(v)
	}
}

// SetCircuit publishes one circuit breaker's state.
func SetCircuit(circuit string, tripped bool) {
	v := 0.0
	if tripped {
		v = 1.0
	}
	CircuitState.WithLabelValues(circuit).Set(v)
}

package utils

import (
	"go.uber.org/zap"
)

// fields.go - typed zap field constructors shared across components so log
// keys stay consistent and greppable.

// Component tags the subsystem emitting the entry.
func Component(name string) zap.Field { return zap.String("component", name) }

// Exchange tags the venue (kept for transport-level logs).
func Exchange(name string) zap.Field { return zap.String("exchange", name) }

// Symbol tags a trading symbol.
func Symbol(symbol string) zap.Field { return zap.String("symbol", symbol) }

// Underlying tags the index an option belongs to.
func Underlying(u string) zap.Field { return zap.String("underlying", u) }

// Strike tags an option strike.
func Strike(strike float64) zap.Field { return zap.Float64("strike", strike) }

// BarTimeframe tags the bar timeframe an entry refers to.
func BarTimeframe(tf string) zap.Field { return zap.String("timeframe", tf) }

// PairID is retained for dashboards that key on a numeric row id.
func PairID(id int) zap.Field { return zap.Int("pair_id", id) }

// PositionID tags a numeric position row.
func PositionID(id int) zap.Field { return zap.Int("position_id", id) }

// OrderID tags a broker order id.
func OrderID(id string) zap.Field { return zap.String("order_id", id) }

// IdempotencyKey tags the dedup key of a critical operation.
func IdempotencyKey(key string) zap.Field { return zap.String("idempotency_key", key) }

// Price tags a price level.
func Price(p float64) zap.Field { return zap.Float64("price", p) }

// Volume tags a traded volume.
func Volume(v float64) zap.Field { return zap.Float64("volume", v) }

// Spread tags a bid/ask or percentage spread.
func Spread(s float64) zap.Field { return zap.Float64("spread", s) }

// PNL tags a profit-and-loss amount.
func PNL(v float64) zap.Field { return zap.Float64("pnl", v) }

// Side tags BUY/SELL.
func Side(s string) zap.Field { return zap.String("side", s) }

// State tags a lifecycle state.
func State(s string) zap.Field { return zap.String("state", s) }

// Latency tags an operation duration in milliseconds.
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID tags an HTTP request for tracing.
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// UserID tags the operator account on the control surface.
func UserID(id int) zap.Field { return zap.Int("user_id", id) }

// Re-exported zap constructors so callers rarely import zap directly.
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
)

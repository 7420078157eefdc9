package models

import "time"

// OrderSide is BUY or SELL at the broker.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderIntent is what the Strategy/Risk layer asks the Order Pipeline to place.
// It is immutable; the pipeline may submit several Orders (retries) against it.
type OrderIntent struct {
	ID                string
	BrokerSymbol      string
	Side              OrderSide
	Qty               int
	LimitPrice        float64
	TimeframeDeadline time.Time
	IdempotencyKey    string
	ParentSignalID    string
}

// OrderState is the closed set of terminal/non-terminal broker order states.
type OrderState string

const (
	OrderCreated         OrderState = "CREATED"
	OrderSubmitted       OrderState = "SUBMITTED"
	OrderPartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderFilled          OrderState = "FILLED"
	OrderCancelled       OrderState = "CANCELLED"
	OrderRejected        OrderState = "REJECTED"
	OrderTimedOut        OrderState = "TIMED_OUT"
)

// IsTerminal reports whether the order will not change state again.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	default:
		return false
	}
}

// Order is one submission attempt against an OrderIntent.
type Order struct {
	IntentID      string
	BrokerOrderID string
	ClientOrderID string
	State         OrderState
	Attempts      int
	LastPrice     float64
	FilledQty     int
	AvgFillPrice  float64
	LastError     string
}

// OrderRecord is the persisted row for one submitted order attempt, written to
// the per-day trades record.
type OrderRecord struct {
	ID             int        `json:"id" db:"id"`
	PositionID     string     `json:"position_id" db:"position_id"`
	IntentID       string     `json:"intent_id" db:"intent_id"`
	BrokerSymbol   string     `json:"broker_symbol" db:"broker_symbol"`
	Side           string     `json:"side" db:"side"`
	AttemptIndex   int        `json:"attempt_index" db:"attempt_index"`
	ClientOrderID  string     `json:"client_order_id" db:"client_order_id"`
	BrokerOrderID  string     `json:"broker_order_id" db:"broker_order_id"`
	Quantity       int        `json:"quantity" db:"quantity"`
	LimitPrice     float64    `json:"limit_price" db:"limit_price"`
	FilledQty      int        `json:"filled_qty" db:"filled_qty"`
	AvgFillPrice   float64    `json:"avg_fill_price" db:"avg_fill_price"`
	Status         string     `json:"status" db:"status"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	FilledAt       *time.Time `json:"filled_at,omitempty" db:"filled_at"`
}

// Order statuses as persisted.
const (
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
	OrderStatusTimedOut  = "timed_out"
)

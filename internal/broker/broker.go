package broker

import (
	"context"
	"time"

	"optionscore/internal/models"
)

// Session is the authenticated broker session.
type Session struct {
	JWT       string
	FeedToken string
	Expiry    time.Time
}

// Credentials identifies the trading account. TOTP is accepted either as a
// manual 6-digit code or derived from the shared secret.
type Credentials struct {
	ClientID   string
	APIKey     string
	APISecret  string
	TOTPCode   string // manual 6-digit code, if supplied
	TOTPSecret string // base32 shared secret, if automated
}

// Quote is a full market snapshot for a symbol.
type Quote struct {
	Symbol string
	LTP    float64
	Bid    float64
	Ask    float64
	BidQty int64
	AskQty int64
	Volume int64
	OI     *int64
}

// OrderRequest is one order submission. ClientOrderID is the deterministic
// idempotency handle: the adapter must treat duplicates as the same order.
type OrderRequest struct {
	BrokerSymbol  string
	Side          models.OrderSide
	Qty           int
	OrderType     string // LIMIT, MARKET
	Product       string // intraday product code
	Price         float64
	Validity      string
	ClientOrderID string
}

// OrderStatus is the broker's view of a submitted order.
type OrderStatus struct {
	BrokerOrderID string
	State         models.OrderState
	FilledQty     int
	AvgPrice      float64
	Reason        string
}

// SubscriptionMode selects tick depth on the feed.
type SubscriptionMode string

const (
	ModeLTP   SubscriptionMode = "ltp"
	ModeQuote SubscriptionMode = "quote"
	ModeFull  SubscriptionMode = "full"
)

// OrderUpdate is an asynchronous order event from the push channel.
type OrderUpdate struct {
	BrokerOrderID string
	ClientOrderID string
	Status        OrderStatus
	At            time.Time
}

// Broker is the broker transport port. Implementations are internally
// synchronized; callers treat them as concurrent-safe. Rate limits the
// adapter must honor: orders ≤ 10 req/s, market data ≤ 3 req/s, historical
// ≤ 3 req/s, ≤ 100 WS symbol subscriptions, ≤ 10 reconnects/minute.
type Broker interface {
	// Login acquires a session; TOTP handling is per Credentials.
	Login(ctx context.Context, creds Credentials) (Session, error)

	// FetchInstruments downloads the daily instrument master.
	FetchInstruments(ctx context.Context) ([]models.Instrument, error)

	// LTP returns the last traded price for a symbol.
	LTP(ctx context.Context, symbol string) (float64, error)

	// GetQuote returns the full quote for a symbol.
	GetQuote(ctx context.Context, symbol string) (Quote, error)

	// Historical returns completed bars for the range.
	Historical(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.Bar, error)

	// PlaceOrder submits an order and returns the broker order id.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// CancelOrder cancels a pending order.
	CancelOrder(ctx context.Context, brokerOrderID string) error

	// ModifyOrder amends price/qty on a pending order.
	ModifyOrder(ctx context.Context, brokerOrderID string, price float64, qty int) error

	// OrderStatus fetches the current state of an order.
	OrderStatus(ctx context.Context, brokerOrderID string) (OrderStatus, error)

	// FindOrderByClientID resolves an order by its idempotency handle, used
	// by ledger replay reconciliation after a crash.
	FindOrderByClientID(ctx context.Context, clientOrderID string) (OrderStatus, bool, error)

	// Margin returns available margin and current utilization fraction.
	Margin(ctx context.Context) (available float64, utilization float64, err error)

	// SubscribeWS subscribes feed tokens; ticks and order updates arrive on
	// the channels returned by Ticks and OrderUpdates.
	SubscribeWS(tokens []string, mode SubscriptionMode) error
	UnsubscribeWS(tokens []string) error

	// Ticks is the push channel for market ticks.
	Ticks() <-chan models.Tick

	// OrderUpdates is the push channel for order events.
	OrderUpdates() <-chan OrderUpdate

	// Close tears down connections cleanly.
	Close() error
}

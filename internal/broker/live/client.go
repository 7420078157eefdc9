package live

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pquerna/otp/totp"

	"optionscore/internal/broker"
	"optionscore/internal/coreerr"
	"optionscore/internal/models"
	"optionscore/pkg/ratelimit"
	"optionscore/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Rate-limit categories, matching the ceilings the broker enforces
// (orders ≤ 10/s, market data ≤ 3/s, historical ≤ 3/s).
const (
	limitOrders     = "orders"
	limitMarketData = "market_data"
	limitHistorical = "historical"
)

// Config points the adapter at the broker's endpoints.
type Config struct {
	BaseURL        string
	FeedURL        string
	RequestTimeout time.Duration
	Feed           FeedConfig
}

// DefaultConfig fills the timeouts; endpoints come from deployment config.
func DefaultConfig(baseURL, feedURL string) Config {
	return Config{
		BaseURL:        baseURL,
		FeedURL:        feedURL,
		RequestTimeout: 10 * time.Second,
		Feed:           DefaultFeedConfig(),
	}
}

// Client implements the Broker port against a REST + WebSocket broker API.
// It is internally synchronized; callers treat it as
// concurrent-safe. All REST calls pass through per-category token buckets.
type Client struct {
	cfg    Config
	http   *http.Client
	limits *ratelimit.MultiLimiter
	log    *utils.Logger

	mu      sync.RWMutex
	session broker.Session
	creds   broker.Credentials

	feed    *Feed
	ticks   chan models.Tick
	updates chan broker.OrderUpdate
}

// New builds the live adapter.
func New(cfg Config, log *utils.Logger) *Client {
	limits := ratelimit.NewMultiLimiter()
	limits.Add(limitOrders, 10, 10)
	limits.Add(limitMarketData, 3, 3)
	limits.Add(limitHistorical, 3, 3)

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limits:  limits,
		log:     log.WithComponent("broker"),
		ticks:   make(chan models.Tick, 4096),
		updates: make(chan broker.OrderUpdate, 256),
	}
	c.feed = NewFeed(cfg.FeedURL, cfg.Feed, log)
	c.feed.SetOnMessage(c.handleFrame)
	return c
}

// SetOnReconnect exposes the feed's reconnect hook so the session layer can
// emit SessionRevalidationRequired.
func (c *Client) SetOnReconnect(h func()) { c.feed.SetOnReconnect(h) }

// apiEnvelope is the broker's standard response wrapper.
type apiEnvelope struct {
	Status  bool                `json:"status"`
	Message string              `json:"message"`
	Code    string              `json:"errorcode"`
	Data    jsoniter.RawMessage `json:"data"`
}

// call performs one authenticated REST round trip under the category limiter.
func (c *Client) call(ctx context.Context, category, method, path string, body interface{}, out interface{}) error {
	if err := c.limits.Wait(ctx, category); err != nil {
		return err
	}

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.RLock()
	if c.session.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.JWT)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("broker %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return coreerr.ErrTokenInvalid
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("broker %s %s: server error %d", method, path, resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("broker %s %s: bad envelope: %w", method, path, err)
	}
	if !env.Status {
		return fmt.Errorf("broker %s %s: %s (%s)", method, path, env.Message, env.Code)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// Login acquires a session. A manual 6-digit TOTP code wins over the shared
// secret; with only a secret the code is derived locally (RFC 6238).
func (c *Client) Login(ctx context.Context, creds broker.Credentials) (broker.Session, error) {
	code := creds.TOTPCode
	if code == "" && creds.TOTPSecret != "" {
		generated, err := totp.GenerateCode(creds.TOTPSecret, time.Now())
		if err != nil {
			return broker.Session{}, fmt.Errorf("totp derive: %w", err)
		}
		code = generated
	}

	var data struct {
		JWT       string `json:"jwtToken"`
		FeedToken string `json:"feedToken"`
		ExpiryEpoch int64 `json:"expiry"`
	}
	payload := map[string]string{
		"clientcode": creds.ClientID,
		"password":   creds.APISecret,
		"totp":       code,
	}
	if err := c.call(ctx, limitMarketData, http.MethodPost, "/auth/login", payload, &data); err != nil {
		return broker.Session{}, err
	}

	sess := broker.Session{
		JWT:       data.JWT,
		FeedToken: data.FeedToken,
		Expiry:    time.Unix(data.ExpiryEpoch, 0),
	}
	if data.ExpiryEpoch == 0 {
		sess.Expiry = time.Now().Add(12 * time.Hour)
	}

	c.mu.Lock()
	c.session = sess
	c.creds = creds
	c.mu.Unlock()
	c.log.Info("broker session acquired")
	return sess, nil
}

// FetchInstruments downloads the instrument master.
func (c *Client) FetchInstruments(ctx context.Context) ([]models.Instrument, error) {
	var rows []struct {
		Token         string  `json:"token"`
		Symbol        string  `json:"symbol"`
		Name          string  `json:"name"`
		Expiry        string  `json:"expiry"`
		Strike        float64 `json:"strike"`
		InstrumentTyp string  `json:"instrumenttype"`
		LotSize       int     `json:"lotsize"`
		TickSize      float64 `json:"ticksize"`
		ExchSeg       string  `json:"exch_seg"`
	}
	if err := c.call(ctx, limitHistorical, http.MethodGet, "/instruments", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]models.Instrument, 0, len(rows))
	for _, r := range rows {
		ot := models.OptionType(r.InstrumentTyp)
		switch ot {
		case models.OptionCE, models.OptionPE, models.OptionFuture:
		default:
			ot = models.OptionIndex
		}
		expiry, _ := time.Parse("02Jan2006", r.Expiry)
		out = append(out, models.Instrument{
			Token:           r.Token,
			TradingSymbol:   r.Symbol,
			Underlying:      r.Name,
			Expiry:          expiry,
			Strike:          r.Strike,
			OptionType:      ot,
			LotSize:         r.LotSize,
			TickSize:        r.TickSize,
			ExchangeSegment: r.ExchSeg,
		})
	}
	return out, nil
}

// LTP returns the last traded price.
func (c *Client) LTP(ctx context.Context, symbol string) (float64, error) {
	var data struct {
		LTP float64 `json:"ltp"`
	}
	err := c.call(ctx, limitMarketData, http.MethodGet, "/quote/ltp?symbol="+symbol, nil, &data)
	return data.LTP, err
}

// GetQuote returns the full quote.
func (c *Client) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	var data struct {
		LTP    float64 `json:"ltp"`
		Bid    float64 `json:"bid"`
		Ask    float64 `json:"ask"`
		BidQty int64   `json:"bid_qty"`
		AskQty int64   `json:"ask_qty"`
		Volume int64   `json:"volume"`
		OI     *int64  `json:"oi"`
	}
	if err := c.call(ctx, limitMarketData, http.MethodGet, "/quote/full?symbol="+symbol, nil, &data); err != nil {
		return broker.Quote{}, err
	}
	return broker.Quote{
		Symbol: symbol, LTP: data.LTP, Bid: data.Bid, Ask: data.Ask,
		BidQty: data.BidQty, AskQty: data.AskQty, Volume: data.Volume, OI: data.OI,
	}, nil
}

// Historical fetches completed candles for the range.
func (c *Client) Historical(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.Bar, error) {
	var rows [][]interface{} // [ts, o, h, l, c, v]
	path := fmt.Sprintf("/historical?symbol=%s&interval=%s&from=%d&to=%d",
		symbol, tf, from.Unix(), to.Unix())
	if err := c.call(ctx, limitHistorical, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		ts := int64(asFloat(r[0]))
		start := time.Unix(ts, 0)
		b := models.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			BarStart:  start,
			BarEnd:    start.Add(tf.Duration()),
			Open:      asFloat(r[1]),
			High:      asFloat(r[2]),
			Low:       asFloat(r[3]),
			Close:     asFloat(r[4]),
			Volume:    int64(asFloat(r[5])),
			Complete:  true,
		}
		out = append(out, b)
	}
	return out, nil
}

func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}

// PlaceOrder submits an order. The broker treats duplicate client order ids
// as the same order, which is what makes the retry ladder idempotent.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	var data struct {
		OrderID string `json:"orderid"`
	}
	payload := map[string]interface{}{
		"tradingsymbol":   req.BrokerSymbol,
		"transactiontype": string(req.Side),
		"quantity":        req.Qty,
		"ordertype":       req.OrderType,
		"producttype":     req.Product,
		"price":           req.Price,
		"duration":        req.Validity,
		"ordertag":        req.ClientOrderID,
	}
	if err := c.call(ctx, limitOrders, http.MethodPost, "/orders", payload, &data); err != nil {
		return "", err
	}
	return data.OrderID, nil
}

// CancelOrder cancels a pending order.
func (c *Client) CancelOrder(ctx context.Context, brokerOrderID string) error {
	return c.call(ctx, limitOrders, http.MethodPost, "/orders/"+brokerOrderID+"/cancel", nil, nil)
}

// ModifyOrder amends a pending order.
func (c *Client) ModifyOrder(ctx context.Context, brokerOrderID string, price float64, qty int) error {
	payload := map[string]interface{}{"price": price, "quantity": qty}
	return c.call(ctx, limitOrders, http.MethodPost, "/orders/"+brokerOrderID+"/modify", payload, nil)
}

// orderRow is the broker's order book row.
type orderRow struct {
	OrderID   string  `json:"orderid"`
	OrderTag  string  `json:"ordertag"`
	Status    string  `json:"status"`
	FilledQty int     `json:"filledshares"`
	AvgPrice  float64 `json:"averageprice"`
	Text      string  `json:"text"`
}

func (r orderRow) toStatus() broker.OrderStatus {
	state := models.OrderSubmitted
	switch r.Status {
	case "complete":
		state = models.OrderFilled
	case "cancelled":
		state = models.OrderCancelled
	case "rejected":
		state = models.OrderRejected
	case "partially_filled":
		state = models.OrderPartiallyFilled
	}
	return broker.OrderStatus{
		BrokerOrderID: r.OrderID,
		State:         state,
		FilledQty:     r.FilledQty,
		AvgPrice:      r.AvgPrice,
		Reason:        r.Text,
	}
}

// OrderStatus fetches the current state of an order.
func (c *Client) OrderStatus(ctx context.Context, brokerOrderID string) (broker.OrderStatus, error) {
	var row orderRow
	if err := c.call(ctx, limitOrders, http.MethodGet, "/orders/"+brokerOrderID, nil, &row); err != nil {
		return broker.OrderStatus{}, err
	}
	return row.toStatus(), nil
}

// FindOrderByClientID scans the day's order book for the idempotency tag,
// the reconciliation path for ledger replay.
func (c *Client) FindOrderByClientID(ctx context.Context, clientOrderID string) (broker.OrderStatus, bool, error) {
	var rows []orderRow
	if err := c.call(ctx, limitOrders, http.MethodGet, "/orders", nil, &rows); err != nil {
		return broker.OrderStatus{}, false, err
	}
	for _, r := range rows {
		if r.OrderTag == clientOrderID {
			return r.toStatus(), true, nil
		}
	}
	return broker.OrderStatus{}, false, nil
}

// Margin returns available margin and utilization.
func (c *Client) Margin(ctx context.Context) (float64, float64, error) {
	var data struct {
		Available   float64 `json:"availablecash"`
		Utilization float64 `json:"utilization"`
	}
	err := c.call(ctx, limitMarketData, http.MethodGet, "/margin", nil, &data)
	return data.Available, data.Utilization, err
}

// SubscribeWS subscribes feed tokens; the broker caps subscriptions at 100
// symbols, which the strike pool respects upstream.
func (c *Client) SubscribeWS(tokens []string, mode broker.SubscriptionMode) error {
	sub := map[string]interface{}{
		"action": "subscribe",
		"mode":   string(mode),
		"tokens": tokens,
	}
	c.feed.AddSubscription(sub)
	if !c.feed.IsConnected() {
		c.mu.RLock()
		feedToken := c.session.FeedToken
		c.mu.RUnlock()
		c.feed.SetAuthFunc(func(conn *websocket.Conn) error {
			return conn.WriteJSON(map[string]string{"action": "auth", "token": feedToken})
		})
		return c.feed.Connect()
	}
	return c.feed.Send(sub)
}

// UnsubscribeWS removes feed tokens.
func (c *Client) UnsubscribeWS(tokens []string) error {
	return c.feed.Send(map[string]interface{}{
		"action": "unsubscribe",
		"tokens": tokens,
	})
}

// feedFrame is one push message: either a tick or an order update.
type feedFrame struct {
	Type   string  `json:"type"`
	Token  string  `json:"token"`
	Symbol string  `json:"symbol"`
	LTP    float64 `json:"ltp"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume int64   `json:"volume"`
	OI     *int64  `json:"oi"`
	TsMs   int64   `json:"ts"`

	Order *orderRow `json:"order,omitempty"`
}

func (c *Client) handleFrame(raw []byte) {
	var fr feedFrame
	if err := json.Unmarshal(raw, &fr); err != nil {
		return
	}
	switch fr.Type {
	case "tick":
		t := models.Tick{
			Symbol:     fr.Symbol,
			Token:      fr.Token,
			TsExchange: utils.FromUnixMillis(fr.TsMs),
			TsLocal:    time.Now(),
			LTP:        fr.LTP,
			Bid:        fr.Bid,
			Ask:        fr.Ask,
			VolumeCum:  fr.Volume,
			OI:         fr.OI,
		}
		select {
		case c.ticks <- t:
		default:
		}
	case "order":
		if fr.Order == nil {
			return
		}
		u := broker.OrderUpdate{
			BrokerOrderID: fr.Order.OrderID,
			ClientOrderID: fr.Order.OrderTag,
			Status:        fr.Order.toStatus(),
			At:            time.Now(),
		}
		select {
		case c.updates <- u:
		default:
		}
	}
}

// Ticks returns the push channel of market ticks.
func (c *Client) Ticks() <-chan models.Tick { return c.ticks }

// OrderUpdates returns the push channel of order events.
func (c *Client) OrderUpdates() <-chan broker.OrderUpdate { return c.updates }

// Close tears down the feed; the HTTP client is left as is.
func (c *Client) Close() error {
	return c.feed.Close()
}

var _ broker.Broker = (*Client)(nil)

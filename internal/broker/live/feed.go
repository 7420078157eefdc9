package live

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"optionscore/pkg/utils"
)

// FeedConfig tunes the market-data WebSocket reconnect behavior:
// pong timeout 5 s, reconnect backoffs [1,2,4,8,16] s capped at 30 s and at
// a per-minute reconnect budget.
type FeedConfig struct {
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	ConnectTimeout      time.Duration
	PingInterval        time.Duration
	PongTimeout         time.Duration
	MaxReconnectsPerMin int
}

// DefaultFeedConfig returns the standard reconnect settings.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		InitialDelay:        1 * time.Second,
		MaxDelay:            30 * time.Second,
		ConnectTimeout:      10 * time.Second,
		PingInterval:        15 * time.Second,
		PongTimeout:         5 * time.Second,
		MaxReconnectsPerMin: 10,
	}
}

// feedState is the connection lifecycle.
type feedState int32

const (
	feedDisconnected feedState = iota
	feedConnecting
	feedConnected
	feedReconnecting
	feedClosed
)

func (s feedState) String() string {
	switch s {
	case feedDisconnected:
		return "disconnected"
	case feedConnecting:
		return "connecting"
	case feedConnected:
		return "connected"
	case feedReconnecting:
		return "reconnecting"
	case feedClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Feed owns the broker's market-data WebSocket: it dials, authenticates,
// replays subscriptions after a reconnect, and enforces the reconnect
// budget. Binary frames go to the message callback; a successful reconnect
// fires the revalidation callback so the session layer can re-check tokens.
type Feed struct {
	url string
	cfg FeedConfig
	log *utils.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic feedState
	retryCount int32

	closeChan chan struct{}
	closeOnce sync.Once

	onMessage    func([]byte)
	onReconnect  func()
	authFunc     func(*websocket.Conn) error
	callbackMu   sync.RWMutex

	subsMu sync.RWMutex
	subs   []interface{}

	// reconnect budget window
	budgetMu    sync.Mutex
	reconnectAt []time.Time
}

// NewFeed builds a Feed for the given WS endpoint.
func NewFeed(url string, cfg FeedConfig, log *utils.Logger) *Feed {
	return &Feed{
		url:       url,
		cfg:       cfg,
		log:       log.WithComponent("feed"),
		closeChan: make(chan struct{}),
	}
}

// SetOnMessage installs the raw-frame handler.
func (f *Feed) SetOnMessage(h func([]byte)) {
	f.callbackMu.Lock()
	f.onMessage = h
	f.callbackMu.Unlock()
}

// SetOnReconnect installs the post-reconnect hook (session revalidation).
func (f *Feed) SetOnReconnect(h func()) {
	f.callbackMu.Lock()
	f.onReconnect = h
	f.callbackMu.Unlock()
}

// SetAuthFunc installs the per-connection authentication handshake.
func (f *Feed) SetAuthFunc(auth func(*websocket.Conn) error) {
	f.callbackMu.Lock()
	f.authFunc = auth
	f.callbackMu.Unlock()
}

// AddSubscription records a subscription message to replay on reconnect.
func (f *Feed) AddSubscription(sub interface{}) {
	f.subsMu.Lock()
	f.subs = append(f.subs, sub)
	f.subsMu.Unlock()
}

// State returns the connection state.
func (f *Feed) State() feedState {
	return feedState(atomic.LoadInt32(&f.state))
}

// IsConnected reports whether the feed is live.
func (f *Feed) IsConnected() bool { return f.State() == feedConnected }

// Connect dials and starts the pumps.
func (f *Feed) Connect() error {
	select {
	case <-f.closeChan:
		return fmt.Errorf("feed is closed")
	default:
	}

	atomic.StoreInt32(&f.state, int32(feedConnecting))
	if err := f.dial(); err != nil {
		atomic.StoreInt32(&f.state, int32(feedDisconnected))
		return err
	}
	atomic.StoreInt32(&f.state, int32(feedConnected))
	atomic.StoreInt32(&f.retryCount, 0)

	go f.readPump()
	go f.pingPump()
	f.log.Sugar().Infof("feed connected to %s", f.url)
	return nil
}

func (f *Feed) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: f.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("feed dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.PingInterval + f.cfg.PongTimeout))
	})

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	f.callbackMu.RLock()
	auth := f.authFunc
	f.callbackMu.RUnlock()
	if auth != nil {
		if err := auth(conn); err != nil {
			conn.Close()
			f.connMu.Lock()
			f.conn = nil
			f.connMu.Unlock()
			return fmt.Errorf("feed auth: %w", err)
		}
	}

	if err := f.resubscribe(); err != nil {
		f.log.Sugar().Warnf("resubscribe: %v", err)
	}
	return nil
}

func (f *Feed) resubscribe() error {
	f.subsMu.RLock()
	subs := make([]interface{}, len(f.subs))
	copy(subs, f.subs)
	f.subsMu.RUnlock()

	f.connMu.RLock()
	conn := f.conn
	f.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}
	if len(subs) > 0 {
		f.log.Sugar().Infof("resubscribed %d channels", len(subs))
	}
	return nil
}

func (f *Feed) readPump() {
	for {
		select {
		case <-f.closeChan:
			return
		default:
		}

		f.connMu.RLock()
		conn := f.conn
		f.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			f.handleDisconnect(err)
			return
		}

		f.callbackMu.RLock()
		onMessage := f.onMessage
		f.callbackMu.RUnlock()
		if onMessage != nil {
			onMessage(message)
		}
	}
}

func (f *Feed) pingPump() {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.closeChan:
			return
		case <-ticker.C:
			f.connMu.RLock()
			conn := f.conn
			f.connMu.RUnlock()
			if conn == nil || f.State() != feedConnected {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(f.cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.handleDisconnect(err)
				return
			}
		}
	}
}

func (f *Feed) handleDisconnect(err error) {
	select {
	case <-f.closeChan:
		return
	default:
	}
	state := f.State()
	if state == feedReconnecting || state == feedClosed {
		return
	}
	atomic.StoreInt32(&f.state, int32(feedReconnecting))

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	if err != nil {
		f.log.Sugar().Warnf("feed disconnected: %v", err)
	}
	go f.reconnectLoop()
}

// allowReconnect enforces the per-minute reconnect budget.
func (f *Feed) allowReconnect(now time.Time) bool {
	f.budgetMu.Lock()
	defer f.budgetMu.Unlock()
	cut := now.Add(-time.Minute)
	kept := f.reconnectAt[:0]
	for _, t := range f.reconnectAt {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	f.reconnectAt = kept
	if f.cfg.MaxReconnectsPerMin > 0 && len(f.reconnectAt) >= f.cfg.MaxReconnectsPerMin {
		return false
	}
	f.reconnectAt = append(f.reconnectAt, now)
	return true
}

func (f *Feed) reconnectLoop() {
	delay := f.cfg.InitialDelay
	for {
		select {
		case <-f.closeChan:
			return
		default:
		}

		if !f.allowReconnect(time.Now()) {
			f.log.Sugar().Warnf("reconnect budget exhausted, waiting a minute")
			select {
			case <-f.closeChan:
				return
			case <-time.After(time.Minute):
			}
			continue
		}

		attempt := atomic.AddInt32(&f.retryCount, 1)
		f.log.Sugar().Infof("reconnecting in %v (attempt %d)", delay, attempt)
		select {
		case <-f.closeChan:
			return
		case <-time.After(delay):
		}

		if err := f.dial(); err != nil {
			f.log.Sugar().Warnf("reconnect failed: %v", err)
			delay *= 2
			if delay > f.cfg.MaxDelay {
				delay = f.cfg.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&f.state, int32(feedConnected))
		atomic.StoreInt32(&f.retryCount, 0)
		go f.readPump()
		go f.pingPump()

		f.callbackMu.RLock()
		onReconnect := f.onReconnect
		f.callbackMu.RUnlock()
		if onReconnect != nil {
			onReconnect()
		}
		f.log.Sugar().Infof("feed reconnected")
		return
	}
}

// Send writes a JSON message when connected.
func (f *Feed) Send(msg interface{}) error {
	if f.State() != feedConnected {
		return fmt.Errorf("feed not connected (state: %s)", f.State())
	}
	f.connMu.RLock()
	conn := f.conn
	f.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	return conn.WriteJSON(msg)
}

// Close tears the feed down and stops reconnecting.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.closeChan)
		atomic.StoreInt32(&f.state, int32(feedClosed))
		f.connMu.Lock()
		if f.conn != nil {
			err = f.conn.Close()
			f.conn = nil
		}
		f.connMu.Unlock()
	})
	return err
}

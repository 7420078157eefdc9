package websocket

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"optionscore/pkg/utils"
)

const (
	// writeWait bounds one message write.
	writeWait = 10 * time.Second

	// pongWait is how long a silent client stays considered alive.
	pongWait = 60 * time.Second

	// pingPeriod must be under pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize (64KB) covers a full position snapshot comfortably.
	maxMessageSize = 65536

	// clientSendBufferSize absorbs tick-rate bursts per client.
	clientSendBufferSize = 512
)

// OriginChecker validates the Origin header with an O(1) map lookup.
// Read-only after initialization.
type OriginChecker struct {
	allowedOrigins map[string]struct{}
	allowAll       bool
}

var originChecker = initOriginChecker()

func initOriginChecker() *OriginChecker {
	checker := &OriginChecker{
		allowedOrigins: make(map[string]struct{}),
	}

	// ALLOWED_ORIGINS is comma-separated; empty or "*" allows everything
	// (development mode).
	envOrigins := os.Getenv("ALLOWED_ORIGINS")
	if envOrigins == "" || envOrigins == "*" {
		checker.allowAll = true
		for _, origin := range []string{
			"http://localhost:3000",
			"http://localhost:8080",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:8080",
		} {
			checker.allowedOrigins[origin] = struct{}{}
		}
	} else {
		for _, origin := range strings.Split(envOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				checker.allowedOrigins[origin] = struct{}{}
			}
		}
	}
	return checker
}

// Check validates one origin.
func (oc *OriginChecker) Check(origin string) bool {
	if origin == "" {
		return true // non-browser clients (curl, API tools)
	}
	if oc.allowAll {
		return true
	}
	_, ok := oc.allowedOrigins[origin]
	return ok
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return originChecker.Check(r.Header.Get("Origin"))
	},
	EnableCompression: true,
}

// clientPool reuses Client structs across connections.
var clientPool = sync.Pool{
	New: func() interface{} {
		return &Client{}
	},
}

// Client is one dashboard WebSocket connection: a readPump that mostly
// watches for close, and a writePump draining the send buffer.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.returnToPool()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// The stream is server-to-client; reads only detect disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.L().Sugar().Warnf("websocket read: %v", err)
			}
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce whatever else is already queued into this frame.
		drainLoop:
			for {
				select {
				case msg, ok := <-c.send:
					if !ok {
						break drainLoop
					}
					w.Write([]byte{'\n'})
					w.Write(msg)
				default:
					break drainLoop
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the HTTP request and starts the client's pumps.
//
// Usage: router.HandleFunc("/ws/stream", hub.ServeWS)
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.L().Sugar().Warnf("websocket upgrade: %v", err)
		return
	}

	client := clientPool.Get().(*Client)
	client.conn = conn
	client.hub = hub
	// The hub closes send on unregister, so each connection gets a fresh
	// channel rather than inheriting a closed one from the pool.
	client.send = make(chan []byte, clientSendBufferSize)

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) returnToPool() {
	c.conn = nil
	c.hub = nil
	c.send = nil
	clientPool.Put(c)
}

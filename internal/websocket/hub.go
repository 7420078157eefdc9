package websocket

import (
	"bytes"
	"net/http"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonBufferPool removes per-broadcast allocations.
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub fans engine updates out to every connected dashboard client, so the
// frontend gets real-time state without polling.
//
// Message types:
// - positionUpdate: an open position snapshot (price, P&L, trailing stop)
// - engineState: engine health transitions
// - notification: a new journal entry
// - statsUpdate: aggregate refresh
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *utils.Logger
}

// NewHub creates a Hub; start it with go hub.Run().
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        utils.L().WithComponent("ws-hub"),
	}
}

// Run is the hub's main loop: registration, unregistration, broadcast.
// Slow clients are dropped rather than allowed to stall the fan-out.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Sugar().Infof("client connected, total %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Sugar().Infof("client disconnected, total %d", count)

		case message := <-h.broadcast:
			// Copy the client list under a short RLock, send without it.
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				count := len(h.clients)
				h.mu.Unlock()
				h.log.Sugar().Warnf("removed %d slow clients, total %d", len(toRemove), count)
			}
		}
	}
}

// Broadcast serializes and queues a message for every client.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Sugar().Errorf("marshal broadcast: %v", err)
		jsonBufferPool.Put(buf)
		return
	}
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- msgCopy:
	default:
		h.log.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastPositionUpdate pushes an open-position snapshot.
func (h *Hub) BroadcastPositionUpdate(p models.Position) {
	h.Broadcast(NewPositionUpdateMessage(p))
}

// BroadcastEngineState pushes an engine health transition.
func (h *Hub) BroadcastEngineState(state, reason string) {
	h.Broadcast(NewEngineStateMessage(state, reason))
}

// BroadcastNotification pushes a new journal entry; satisfies
// service.Broadcaster.
func (h *Hub) BroadcastNotification(n *models.Notification) {
	h.Broadcast(NewNotificationMessage(n))
}

// BroadcastStatsUpdate pushes an aggregate refresh.
func (h *Hub) BroadcastStatsUpdate(stats *models.Stats) {
	h.Broadcast(NewStatsUpdateMessage(stats))
}

// ServeWS upgrades an HTTP request into a hub client connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ServeWS(h, w, r)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Package ws bridges the Redis signal bus to WebSocket clients. Clients
// subscribe to the channels they render (a listing, its ledgers, their own
// transactions and notifications) and receive the post-commit change events
// the engine publishes. Events are hints to re-read, not state: a client that
// misses one still converges by re-fetching the records.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jwkoh/campustrade/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps incoming subscription messages.
	maxMessageSize = 4096

	// sendBufferSize is the per-client outgoing message buffer.
	sendBufferSize = 256
)

// busPatterns are the bus subscriptions the hub maintains. Every engine
// event lands on one of these.
var busPatterns = []string{
	"listing:*",
	"bids:*",
	"offers:*",
	"txn:*",
	"notify:*",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	subs   map[string]bool
	mu     sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to manage its channels.
type subscribeMsg struct {
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

// Hub manages the connected WebSocket clients and routes bus events to the
// clients subscribed to each channel.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan domain.Signal
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a Hub bridging the given bus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan domain.Signal, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws")),
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's event loop and the bus subscriptions. It blocks until
// the context is cancelled. After it returns, pump and connection goroutines
// unblock via the done channel instead of the no-longer-drained hub channels.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for _, pattern := range busPatterns {
		go h.pump(ctx, pattern)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case sig := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.mayReceive(sig.Channel) || !c.isSubscribed(sig.Channel) {
					continue
				}
				select {
				case c.send <- envelope(sig):
				default:
					// Send buffer full; the client re-reads on reconnect.
					h.logger.Warn("dropping event for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pump forwards every event from one bus subscription into the hub.
func (h *Hub) pump(ctx context.Context, pattern string) {
	msgCh, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		h.logger.Error("subscribe failed",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("subscribed", slog.String("pattern", pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-msgCh:
			if !ok {
				h.logger.Warn("subscription closed",
					slog.String("pattern", pattern),
				)
				return
			}
			select {
			case h.broadcast <- sig:
			case <-ctx.Done():
				return
			}
		}
	}
}

// envelope wraps an event with its channel so clients can route it.
func envelope(sig domain.Signal) []byte {
	out, err := json.Marshal(map[string]any{
		"channel": sig.Channel,
		"payload": json.RawMessage(sig.Payload),
	})
	if err != nil {
		return sig.Payload
	}
	return out
}

// HandleWS upgrades the request to a WebSocket connection. The caller's
// identity governs which notify channel the connection may watch.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: userID,
		subs:   make(map[string]bool),
	}
	if userID != "" {
		c.subs["notify:"+userID] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// drop hands a departing client back to the event loop, or returns
// immediately when the hub has already shut down.
func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readPump consumes subscription management frames until the connection
// drops.
func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Subscribe {
		if c.allowed(ch) {
			c.subs[ch] = true
		}
	}
	for _, ch := range msg.Unsubscribe {
		delete(c.subs, ch)
	}
}

// allowed rejects subscriptions to other users' notification channels.
// Listing, ledger and transaction channels are open: their events carry IDs,
// not content, and reads are authorized at the HTTP layer.
func (c *client) allowed(channel string) bool {
	if !strings.HasPrefix(channel, "notify:") {
		return true
	}
	return c.userID != "" && channel == "notify:"+c.userID
}

// mayReceive re-applies the notify restriction at delivery time.
func (c *client) mayReceive(channel string) bool {
	return c.allowed(channel)
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if strings.HasSuffix(sub, "*") && strings.HasPrefix(channel, sub[:len(sub)-1]) {
			return true
		}
	}
	return false
}

// sendHello pushes a small envelope so clients can mark the connection
// healthy before any engine events flow.
func (c *client) sendHello() {
	msg, err := json.Marshal(map[string]any{
		"channel": "system",
		"payload": map[string]any{
			"event":          "connected",
			"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump writes queued events and keepalive pings to the connection.
func (c *client) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"stock_sim/internal/depth"
	"stock_sim/internal/domain"
	"stock_sim/pkg/id"

	"github.com/gorilla/websocket"
)

const (
	// ChannelFills carries every committed fill.
	ChannelFills = "fills"
	// DepthChannelPrefix + instrument carries depth updates of one instrument.
	DepthChannelPrefix = "depth:"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SubscribeRequest is a client control message.
type SubscribeRequest struct {
	Op       string   `json:"op"` // subscribe | unsubscribe
	Channels []string `json:"channels"`
}

// Message is the envelope of every pushed update.
type Message struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// ConnectionCounter tracks open websocket clients.
type ConnectionCounter interface {
	IncrementConnections()
	DecrementConnections()
}

// Hub keeps websocket clients and their channel subscriptions.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	counter ConnectionCounter
	logger  *slog.Logger
}

// NewHub creates a hub. counter may be nil.
func NewHub(counter ConnectionCounter, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		counter:    counter,
		logger:     logger,
	}
}

// Run serves register and unregister requests until ctx is cancelled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			if h.counter != nil {
				h.counter.IncrementConnections()
			}
			h.logger.Debug("WebSocket client connected", slog.String("client", c.id), slog.Int("total", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				h.drop(c)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("WebSocket client disconnected", slog.String("client", c.id), slog.Int("total", total))
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	if h.counter != nil {
		h.counter.DecrementConnections()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToChannel sends data to every client subscribed to channel. Clients whose
// buffer is full miss the message.
func (h *Hub) BroadcastToChannel(channel string, data any) {
	payload, err := json.Marshal(Message{Channel: channel, Data: data})
	if err != nil {
		h.logger.Warn("WebSocket marshal failed", slog.String("channel", channel), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.IsSubscribed(channel) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.logger.Debug("WebSocket buffer full, message dropped", slog.String("client", c.id))
		}
	}
}

// PublishDepth pushes a depth record to depth:<instrument>. It matches depth.Notifier.
func (h *Hub) PublishDepth(r *depth.Record, _ bool) {
	h.BroadcastToChannel(DepthChannelPrefix+r.Instrument, r)
}

// PublishFill pushes a fill to the fills channel. It lets the hub sit in a publisher fanout.
func (h *Hub) PublishFill(_ context.Context, f domain.Fill) error {
	h.BroadcastToChannel(ChannelFills, f)
	return nil
}

// Close is a no-op; clients are dropped when Run's context ends.
func (h *Hub) Close() error { return nil }

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

// IsSubscribed reports whether the client listens on channel.
func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

func (c *Client) subscribe(channel string) {
	c.subsMu.Lock()
	c.subscriptions[channel] = true
	c.subsMu.Unlock()
}

func (c *Client) unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subscriptions, channel)
	c.subsMu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error", slog.String("client", c.id), slog.Any("error", err))
			}
			return
		}

		var req SubscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			c.hub.logger.Debug("WebSocket invalid message", slog.String("client", c.id), slog.Any("error", err))
			continue
		}
		switch req.Op {
		case "subscribe":
			for _, ch := range req.Channels {
				c.subscribe(normalizeChannel(ch))
			}
		case "unsubscribe":
			for _, ch := range req.Channels {
				c.unsubscribe(normalizeChannel(ch))
			}
		default:
			c.hub.logger.Debug("WebSocket unknown op", slog.String("client", c.id), slog.String("op", req.Op))
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// normalizeChannel upper-cases the instrument part of depth channels.
func normalizeChannel(ch string) string {
	if code, ok := strings.CutPrefix(ch, DepthChannelPrefix); ok {
		return DepthChannelPrefix + domain.NormalizeInstrument(code)
	}
	return ch
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            id.New(),
		subscriptions: make(map[string]bool),
	}
	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Package ws streams engine events from the event bus to WebSocket clients.
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

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	// maxReplay bounds how many stream entries a reconnecting client gets.
	maxReplay = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Config names the bus channel and stream the hub reads.
type Config struct {
	Channel   string
	Stream    string
	Mode      string
	StartedAt time.Time
}

// Hub fans events out to connected clients. Each client receives every
// event unless it narrows its subscription to specific event names.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.EventBus
	channel    string
	stream     string
	mode       string
	startedAt  time.Time
	mu         sync.RWMutex
	logger     *slog.Logger
}

type broadcastMsg struct {
	event string
	data  []byte
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.EventBus, logger *slog.Logger, cfg Config) *Hub {
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "server"
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		channel:    cfg.Channel,
		stream:     cfg.Stream,
		mode:       mode,
		startedAt:  startedAt,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run subscribes to the live channel and serves the hub loop until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	msgCh, err := h.bus.Subscribe(ctx, h.channel)
	if err != nil {
		return err
	}
	go h.forward(ctx, msgCh)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			close(h.done)
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg.event) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// forward moves bus payloads into the broadcast loop, tagging each with its
// event name.
func (h *Hub) forward(ctx context.Context, msgCh <-chan []byte) {
	h.logger.Info("ws: subscribed", slog.String("channel", h.channel))
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", h.channel))
				return
			}
			select {
			case h.broadcast <- broadcastMsg{event: eventName(data), data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client. A since query
// parameter replays stream entries after that id before live delivery.
// GET /ws[?since=<stream id>]
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	c.sendStatus()
	if since != "" && h.stream != "" {
		h.replay(r.Context(), c, since)
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// replay queues up to maxReplay stream entries after since.
func (h *Hub) replay(ctx context.Context, c *client, since string) {
	msgs, err := h.bus.StreamRead(ctx, h.stream, since, maxReplay)
	if err != nil {
		h.logger.Warn("ws: replay failed",
			slog.String("since", since),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, m := range msgs {
		select {
		case c.send <- m.Data:
		default:
			return
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// eventName pulls the "event" field out of an encoded domain.Event.
func eventName(data []byte) string {
	var head struct {
		Name string `json:"event"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	return head.Name
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // empty means every event
	mu   sync.RWMutex
}

// subscribeMsg changes which event names a client receives.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Events []string `json:"events"`
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, e := range msg.Events {
			c.subs[e] = true
		}
	case "unsubscribe":
		for _, e := range msg.Events {
			delete(c.subs, e)
		}
	}
}

func (c *client) wants(event string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs) == 0 || c.subs[event]
}

// sendStatus greets the client so it can mark the connection healthy before
// any event flows.
func (c *client) sendStatus() {
	msg, err := json.Marshal(map[string]any{
		"event": "hello",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"uptime_seconds": max(0, int64(time.Since(c.hub.startedAt).Seconds())),
			"events": []string{
				domain.EventPositionUpdated,
				domain.EventProtocolDataFetched,
				domain.EventConfigChanged,
			},
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

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
)

// Message types pushed to websocket clients.
const (
	MessageRunStarted  = "run_started"
	MessageProgress    = "progress"
	MessageRunFinished = "run_finished"
	MessageRunFailed   = "run_failed"
)

// Message is the envelope broadcast to websocket clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub fans experiment progress out to websocket clients.
type Hub struct {
	clients        map[hubClient]bool
	broadcast      chan Message
	register       chan hubClient
	unregister     chan hubClient
	allowedOrigins map[string]bool
	logger         *slog.Logger
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
}

// hubClient allows for both real connections and test clients.
type hubClient interface {
	sendChannel() chan []byte
	close()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

func (c *wsClient) sendChannel() chan []byte { return c.send }

func (c *wsClient) close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
}

// NewHub creates a hub accepting browser connections from allowedOrigins
// (host:port). Requests without an Origin header are always accepted.
func NewHub(logger *slog.Logger, allowedOrigins ...string) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Hub{
		clients:        make(map[hubClient]bool),
		broadcast:      make(chan Message, 256),
		register:       make(chan hubClient),
		unregister:     make(chan hubClient),
		allowedOrigins: origins,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.ctx.Err() != nil {
				close(client.sendChannel())
				h.mu.Unlock()
				continue
			}
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.sendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "clients", count)

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("failed to marshal websocket message", "type", message.Type, "error", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.sendChannel() <- data:
				default:
					// Slow client; drop it.
					close(client.sendChannel())
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.sendChannel())
		client.close()
	}
	h.clients = make(map[hubClient]bool)
	h.mu.Unlock()
}

// Broadcast queues a message for all clients. Messages are dropped when the
// queue is full.
func (h *Hub) Broadcast(msgType string, data any) {
	select {
	case h.broadcast <- Message{Type: msgType, Data: data}:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message", "type", msgType)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client hubClient) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.close()
	}
}

func (h *Hub) remove(client hubClient) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ServeHTTP handles websocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	patterns := make([]string, 0, len(h.allowedOrigins))
	if origin := r.Header.Get("Origin"); origin != "" {
		u, err := url.Parse(origin)
		if err != nil || !h.allowedOrigins[u.Host] {
			http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
			return
		}
		patterns = append(patterns, u.Host)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: patterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.add(client)

	go client.writePump()
	go client.readPump()
}

// writePump sends queued messages until the hub closes the send channel.
func (c *wsClient) writePump() {
	defer c.close()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(c.hub.ctx, 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()
		if err != nil {
			c.hub.logger.Debug("websocket write failed", "error", err)
			c.hub.remove(c)
			return
		}
	}
}

// readPump drains client messages to detect disconnects.
func (c *wsClient) readPump() {
	defer c.hub.remove(c)

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

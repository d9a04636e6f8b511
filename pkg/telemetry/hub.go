package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
)

const hubWriteTimeout = 5 * time.Second

// Envelope is the frame sent to WebSocket subscribers.
type Envelope struct {
	Channel string          `json:"channel"`
	SentAt  time.Time       `json:"sentAt"`
	Payload json.RawMessage `json:"payload"`
}

// subscribeMessage is sent by clients to narrow what they receive.
type subscribeMessage struct {
	Type     string   `json:"type"`
	Prefixes []string `json:"prefixes"`
}

type hubClient struct {
	id   string
	conn *websocket.Conn

	// Mutex to prevent concurrent writes
	mu       sync.Mutex
	prefixes []string
}

func (c *hubClient) wants(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prefixes) == 0 {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(channel, p) {
			return true
		}
	}
	return false
}

func (c *hubClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans publications out to connected WebSocket clients. Clients receive
// every channel until they send {"type":"subscribe","prefixes":[...]}.
type Hub struct {
	upgrader websocket.Upgrader
	log      logger.Logger

	mu      sync.RWMutex
	clients map[string]*hubClient
}

// NewHub creates an empty hub.
func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log.WithPrefix("ws"),
		clients: make(map[string]*hubClient),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	client := &hubClient{id: uuid.NewString(), conn: conn}
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.log.WithField("client", client.id).Debug("WebSocket client connected")

	defer func() {
		h.remove(client.id)
		h.log.WithField("client", client.id).Debug("WebSocket client disconnected")
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var msg subscribeMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "subscribe" {
			continue
		}
		client.mu.Lock()
		client.prefixes = msg.Prefixes
		client.mu.Unlock()
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends payload to every client subscribed to channel. Clients that
// cannot be written to are disconnected.
func (h *Hub) Publish(_ context.Context, channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", channel, err)
	}
	frame, err := json.Marshal(Envelope{Channel: channel, SentAt: time.Now().UTC(), Payload: raw})
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		if c.wants(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(frame); err != nil {
			h.log.WithField("client", c.id).Debugf("Dropping client after write error: %v", err)
			h.remove(c.id)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*hubClient)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

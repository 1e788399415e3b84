// Package ws is the websocket transport: one goroutine pair per connection,
// JSON envelopes in both directions.
package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Arena/internal/room"
)

const sendBuffer = 64

type client struct {
	id     room.ConnID
	out    chan room.Event
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	identity string
}

func (c *client) setIdentity(id string) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

func (c *client) queuedAs() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Hub routes room events to live connections. Send never blocks: a client
// whose buffer is full is cut off.
type Hub struct {
	mu      sync.RWMutex
	clients map[room.ConnID]*client
	logger  *zap.Logger
}

var _ room.Broadcaster = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[room.ConnID]*client), logger: logger}
}

func (h *Hub) Send(conn room.ConnID, ev room.Event) {
	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.out <- ev:
	case <-c.ctx.Done():
	default:
		h.logger.Warn("ws_slow_consumer", zap.String("conn", string(conn)), zap.String("event", ev.Type))
		c.cancel()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(id room.ConnID) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Len reports the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll cuts every live connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.cancel()
	}
}

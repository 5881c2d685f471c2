package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub tracks subscriber connections and fans out broadcasts.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*Client
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub builds connection hub.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*Client),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

func newClientID() string {
	return uuid.NewString()
}

// Add registers client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

// Remove drops client.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Len returns number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg on every connected client.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Send(msg)
	}
}

// Start pings clients until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			for _, c := range h.clients {
				if err := c.Ping(); err != nil {
					h.logger.Debug("ping failed", zap.String("client_id", c.ID()), zap.Error(err))
				}
			}
			h.mu.RUnlock()
		}
	}
}

package wsbus

import (
	"context"
	"sync"
)

// Hub tracks connected WebSocket clients for graceful shutdown and
// observability. Unlike the teacher's websocket.Hub, message delivery to a
// client does not fan out through an in-process topic map: every Client
// subscribes directly to the Event Service's bus for its own subject
// filter (see client.go) since the bus already does the fan-out. Hub's only
// remaining job is bookkeeping the live connection set.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
}

// NewHub creates an idle Hub. Call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
	}
}

// Run starts the hub's event loop. It must be called exactly once, in its
// own goroutine, and exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*Client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

// Subscribe registers client with the hub. Called once the client's
// WebSocket upgrade has completed.
func (h *Hub) Subscribe(c *Client) {
	h.register <- c
}

// Unsubscribe removes client from the hub. Called by the client's readPump
// when the connection closes.
func (h *Hub) Unsubscribe(c *Client) {
	h.unregister <- c
}

// ConnectedCount returns the current number of connected WebSocket clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

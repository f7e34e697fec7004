package web

import (
	"context"
	"log/slog"
	"sync"
)

// Hub is the process-scoped registry of live sessions and the broadcast
// fan-out target. It is created at process start, injected where needed,
// and torn down with the process.
type Hub struct {
	log        *slog.Logger
	clients    map[*Client]bool
	broadcast  chan *WireMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub(log *slog.Logger, bufferSize int) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *WireMessage, bufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run owns the client set. It is supervised like any other worker.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info("Session hub started")
	defer h.log.Info("Session hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("Session registered", "email", client.Email)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.shutdown()
			}
			h.mu.Unlock()
			h.log.Debug("Session unregistered", "email", client.Email)

		case message := <-h.broadcast:
			h.fanout(message)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fanout delivers to every live session. Delivery is best-effort: a session
// whose buffer is full is dropped rather than allowed to stall the others.
func (h *Hub) fanout(message *WireMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.enqueue(message) {
			h.log.Warn("Dropping stalled session", "email", client.Email)
			delete(h.clients, client)
			client.shutdown()
		}
	}
}

// Register adds a new authenticated session.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister discards a session; all its state goes with it.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues a message for delivery to all live sessions.
func (h *Hub) Broadcast(message *WireMessage) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn("Broadcast buffer full, dropping event", "event", message.Event)
	}
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

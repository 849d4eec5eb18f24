package feed

import (
	"log/slog"
	"sync"
)

// Hub is the set of connected clients. Publish fans out without blocking.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	// onCount, when set, is told the client count after every join and leave.
	onCount func(n int)
}

var _ Publisher = (*Hub)(nil)

// NewHub constructs an empty Hub. onCount may be nil.
func NewHub(log *slog.Logger, onCount func(n int)) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: make(map[string]*Client), onCount: onCount}
}

// Join registers c.
func (h *Hub) Join(c *Client) {
	if c == nil || c.ID == "" {
		return
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("feed.client.join", "client_id", c.ID, "user_id", c.UserID, "clients", n)
	h.report(n)
}

// Leave removes the client and signals its shutdown. Removal happens first so
// no publisher sends to a client that is being torn down.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	c := h.clients[id]
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()

	if c == nil {
		return
	}
	c.Close()
	h.log.Info("feed.client.leave", "client_id", id, "dropped", c.Dropped(), "clients", n)
	h.report(n)
}

// Publish delivers ev to every client whose queue has room.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case <-c.Done():
			continue
		default:
		}

		select {
		case c.Send <- ev:
		default:
			c.dropped.Add(1)
		}
	}
}

// CloseAll signals every client to shut down. Gateways then close their
// sockets with StatusGoingAway and leave.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Close()
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) report(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

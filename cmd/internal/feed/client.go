package feed

import (
	"sync"
	"sync/atomic"
)

// Client is one connected websocket.
//
// Send is never closed by the server so concurrent publishers cannot panic;
// done signals shutdown instead.
type Client struct {
	ID     string
	UserID string
	Send   chan Event

	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(id, userID string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Send:   make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close signals shutdown. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Dropped is the number of events discarded because the queue was full.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

package stream

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/duelboard/duelboard/internal/obslog"
)

// Client is one connected observer. The transport owns the socket and
// drains Send; the hub only pushes frames.
type Client struct {
	ID string

	mu     sync.RWMutex
	closed bool
	send   chan []byte
}

func NewClient() *Client {
	return &Client{ID: uuid.NewString(), send: make(chan []byte, 64)}
}

// Send is the frame stream for the transport writer.
func (c *Client) Send() <-chan []byte { return c.send }

// Push queues a frame, dropping it if the client is closed or its
// buffer is full. Slow observers lose frames rather than stall the
// fan-out; the next commit carries the full current value anyway.
func (c *Client) Push(msg []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Close terminates the frame stream.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// Hub fans event frames out to every registered client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
}

// Broadcast pushes one frame to every registered client.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.Push(msg)
	}
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Listen subscribes to the event channel and forwards every payload to
// the registered clients until ctx is done.
func (h *Hub) Listen(ctx context.Context, rdb *redis.Client) error {
	sub := rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	obslog.L().Info("stream_listen")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.Broadcast([]byte(msg.Payload))
		}
	}
}

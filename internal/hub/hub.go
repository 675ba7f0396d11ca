// Package hub tracks connected clients and broadcasts outbound messages.
package hub

import (
	"sync"

	"go.uber.org/zap"
)

const sendBufferSize = 256

// Conn is the transport-specific half of a client. TCP conns write one
// newline-terminated line per message; WebSocket conns write one text frame.
type Conn interface {
	// WriteMessage writes one complete outbound message.
	WriteMessage(data []byte) error
	Close() error
	RemoteAddr() string
}

// Client is one connected socket client with a buffered outbound queue.
// A client whose queue fills is closed rather than allowed to stall the
// broadcast path; its connection's own close handling cleans it up.
type Client struct {
	conn Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a transport connection.
func NewClient(conn Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send queues one message for delivery. Never blocks.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow consumer: drop the client, not the broadcast.
		c.closeLocked()
	}
}

// Close stops deliveries to this client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// RemoteAddr identifies the client for logging.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr()
}

// writePump delivers queued messages until the queue closes or a write
// fails. A write failure is isolated to this client.
func (c *Client) writePump(logger *zap.Logger) {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(message); err != nil {
			logger.Warn("client write failed",
				zap.String("remote", c.RemoteAddr()),
				zap.Error(err))
			c.Close()
			// Drain so senders observing the closed flag cannot race a
			// blocked channel.
			for range c.send {
			}
			return
		}
	}
}

// Hub is the set of currently-connected clients.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// New creates an empty hub.
func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// Register adds the client and starts its delivery pump.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go client.writePump(h.logger)
}

// Unregister removes the client and stops deliveries to it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	client.Close()
}

// Broadcast queues the message to every connected client. Each client sees
// all broadcast messages in the order they were broadcast; delivery across
// clients is unordered.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.Send(message)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

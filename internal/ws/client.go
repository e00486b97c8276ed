package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"realtime-chat/internal/auth"
)

const sendQueueSize = 256

// ConnInfo describes a listener connection for events and logs.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one listener connection. Frames are queued and written by a
// single writer goroutine.
type Client struct {
	Identity auth.Identity
	Info     ConnInfo

	send   chan []byte
	topics map[string]bool // guarded by Hub.mu

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// NewClient allocates a client with a bounded send queue.
func NewClient(id auth.Identity, info ConnInfo) *Client {
	if info.ConnID == "" {
		info.ConnID = uuid.NewString()
	}
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now()
	}
	info.UserID = id.UID
	return &Client{
		Identity: id,
		Info:     info,
		send:     make(chan []byte, sendQueueSize),
		topics:   make(map[string]bool),
	}
}

// Send exposes the outbound queue to the writer.
func (c *Client) Send() <-chan []byte { return c.send }

// enqueue never blocks. It reports false when the queue is full or closed.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the writer. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

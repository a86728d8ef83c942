package chat

import (
	"sync"

	"github.com/coder/websocket"
)

// Conn represents one registered websocket connection.
//
// Design notes:
// - Send is intentionally NOT closed by the server to keep broadcast panic-safe
//   under concurrency.
// - done signals the connection's goroutines to stop.
// - Close is idempotent.
type Conn struct {
	ClientID string
	Username string
	Send     chan []byte

	done      chan struct{}
	closeOnce sync.Once

	closeCode   websocket.StatusCode
	closeReason string
}

// NewConn constructs a Conn with a bounded send queue.
func NewConn(clientID, username string, sendQueueSize int) *Conn {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Conn{
		ClientID:    clientID,
		Username:    username,
		Send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
		closeCode:   websocket.StatusNormalClosure,
		closeReason: "superseded",
	}
}

// Done returns a channel that is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the connection goroutines to stop (idempotent).
// It does NOT close Send to keep broadcast safe under concurrency.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// CloseWithStatus is Close with an explicit websocket status for the writer
// to use when it closes the socket. The first close wins; a later
// CloseWithStatus does not change an already recorded status.
func (c *Conn) CloseWithStatus(code websocket.StatusCode, reason string) {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// CloseStatus reports the status recorded by the close that won. Only valid
// after Done is closed; the channel close orders the write before the read.
func (c *Conn) CloseStatus() (websocket.StatusCode, string) {
	return c.closeCode, c.closeReason
}

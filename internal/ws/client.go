package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"messenger-service/internal/observability"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameSize  = 4096
	sendQueueSize = 256
)

// Client is one live connection owned by one user. All writes to the socket
// go through the send queue and the write pump; other goroutines only ever
// enqueue.
type Client struct {
	userID string
	connID string
	conn   *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		userID: userID,
		connID: uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// UserID returns the identity bound at handshake time.
func (c *Client) UserID() string {
	return c.userID
}

// enqueue hands a frame to the write pump without blocking. Frames for a
// stalled connection are dropped; durable state already holds the truth.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		observability.IncWSDropped()
		return false
	}
}

// close releases the write pump. Safe to call more than once and before the
// pump ever started.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

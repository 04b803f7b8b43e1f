package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"velvetcode/internal/metrics"
	"velvetcode/internal/models"
	"velvetcode/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	DefaultSendQueue = 256
)

// Client is one connection. Rooms enqueue frames without blocking; a single
// write pump drains the queue to the socket.
type Client struct {
	ID   string
	Conn *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	hook func(models.WSFrame)
}

func NewClient(conn *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultSendQueue
	}
	return &Client{
		ID:   utils.NewID(),
		Conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// SetSendHook replaces the socket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send queues a single frame for this client.
func (c *Client) Send(frame models.WSFrame) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	return c.deliver(frame, payload)
}

// deliver queues an already encoded frame. A full queue means the peer cannot
// keep up; the client is closed rather than stalling its room.
func (c *Client) deliver(frame models.WSFrame, payload []byte) bool {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(frame)
		return true
	}

	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		metrics.RecordFrameDropped()
		c.Close()
		return false
	}
}

// WritePump writes queued frames and keepalive pings until the client closes.
func (c *Client) WritePump() {
	if c.Conn == nil {
		return
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.Conn.Close()
			return
		case payload := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// PrepareRead installs the read deadline and pong handler for keepalives.
func (c *Client) PrepareRead(maxMessage int64) {
	if c.Conn == nil {
		return
	}
	if maxMessage > 0 {
		c.Conn.SetReadLimit(maxMessage)
	}
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Close stops the write pump, which then closes the socket so the read loop
// unblocks.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) Done() <-chan struct{} { return c.done }

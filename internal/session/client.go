package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"codeshare/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	DefaultSendBuffer = 64
)

// Client is one open real-time connection. Frames are queued by Send and
// written by WritePump so a slow socket never stalls the hub.
type Client struct {
	ID   string
	Conn *websocket.Conn

	mu     sync.Mutex
	hook   func(models.WSFrame)
	send   chan models.WSFrame
	closed bool
	onDrop func()
}

func NewClient(conn *websocket.Conn) *Client {
	return NewClientWithBuffer(conn, DefaultSendBuffer)
}

func NewClientWithBuffer(conn *websocket.Conn, size int) *Client {
	if size <= 0 {
		size = DefaultSendBuffer
	}
	return &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		send: make(chan models.WSFrame, size),
	}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// OnDrop registers a callback invoked when a frame overflows the outbound
// queue. The client is already closed by then.
func (c *Client) OnDrop(fn func()) {
	c.mu.Lock()
	c.onDrop = fn
	c.mu.Unlock()
}

// Send queues frame for the writer without blocking.
func (c *Client) Send(frame models.WSFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(frame)
		return
	}
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		// An overflowing client has missed a frame and is cut off.
		c.closeLocked()
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
		if c.onDrop != nil {
			c.onDrop()
		}
	}
}

// Close stops the writer. Safe to call more than once.
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

// WritePump drains the outbound queue onto the socket and keeps the connection
// alive with pings. It returns once Close has been called or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-c.send:
			if c.Conn == nil {
				if !ok {
					return
				}
				continue
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			if c.Conn == nil {
				continue
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// PrepareRead installs the read deadline and pong handler used by the reader.
func (c *Client) PrepareRead(maxMessageSize int64) {
	if c.Conn == nil {
		return
	}
	if maxMessageSize > 0 {
		c.Conn.SetReadLimit(maxMessageSize)
	}
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

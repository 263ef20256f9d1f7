package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-spreading-fire/internal/application/relay"
	"go-spreading-fire/internal/infrastructure/logger"
)

var _ relay.Conn = (*Connection)(nil)

// ErrConnectionClosed is returned by WriteText after Close.
var ErrConnectionClosed = errors.New("websocket connection is closed")

// Timeouts controls keep-alive and write deadlines for a Connection.
type Timeouts struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
}

// Connection adapts a gorilla websocket to relay.Conn. Only text frames are
// surfaced; binary frames are ignored.
type Connection struct {
	conn     *websocket.Conn
	timeouts Timeouts

	closed   bool
	closedMu sync.Mutex
	done     chan struct{}

	logger logger.Logger
}

// NewConnection wraps conn and starts its keep-alive pinger.
func NewConnection(conn *websocket.Conn, timeouts Timeouts, logger logger.Logger) *Connection {
	c := &Connection{
		conn:     conn,
		timeouts: timeouts,
		done:     make(chan struct{}),
		logger:   logger.WithField("remote_addr", conn.RemoteAddr().String()),
	}

	c.setupWebSocket()
	go c.keepAlive()

	return c
}

// RemoteAddr identifies the peer for the lifetime of the connection.
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// ReadText returns the next text frame.
func (c *Connection) ReadText() (string, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
			) {
				c.logger.Warnf("WebSocket read error: %v", err)
			}
			return "", err
		}

		switch messageType {
		case websocket.TextMessage:
			return string(data), nil
		case websocket.BinaryMessage:
			c.logger.Debugf("Ignoring binary message of length: %d", len(data))
		}
	}
}

// WriteText sends text as a single text frame.
func (c *Connection) WriteText(text string) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a close frame and closes the socket. It is safe to call
// concurrently with ReadText and WriteText, and more than once.
func (c *Connection) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.closedMu.Unlock()

	// WriteControl may run concurrently with WriteMessage.
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.timeouts.WriteTimeout),
	)
	err := c.conn.Close()

	c.logger.Debug("WebSocket connection closed")
	return err
}

// IsClosed returns true once Close has been called.
func (c *Connection) IsClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	return c.closed
}

// setupWebSocket configures read deadlines refreshed by pongs.
func (c *Connection) setupWebSocket() {
	c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongTimeout))
		return nil
	})
}

// keepAlive pings the peer until the connection closes.
func (c *Connection) keepAlive() {
	ticker := time.NewTicker(c.timeouts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.timeouts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debugf("Failed to send ping: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

package socket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("connection closed")

// Conn is one authenticated websocket connection. All writes go through
// the send channel and a single writer goroutine.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan ServerFrame
	closed chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newConn(id, userID string, ws *websocket.Conn, buffer int, logger *slog.Logger) *Conn {
	return &Conn{
		id:     id,
		userID: userID,
		ws:     ws,
		send:   make(chan ServerFrame, buffer),
		closed: make(chan struct{}),
		logger: logger,
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated user.
func (c *Conn) UserID() string { return c.userID }

// enqueue queues frame for the writer. It blocks while the buffer is full
// and fails once the connection is closed or ctx ends.
func (c *Conn) enqueue(ctx context.Context, frame ServerFrame) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case <-c.closed:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- frame:
		return nil
	}
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// writeLoop is the only goroutine writing to ws.
func (c *Conn) writeLoop(cfg HubConfig, onWrite func(ServerFrame)) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteJSON(frame); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.close()
				return
			}
			if onWrite != nil {
				onWrite(frame)
			}
		case <-ticker.C:
			deadline := time.Now().Add(cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("websocket ping failed", "error", err)
				c.close()
				return
			}
		}
	}
}

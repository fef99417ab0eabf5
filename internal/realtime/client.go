package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrConnClosed is returned by Send after the connection has shut down
	ErrConnClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a slow consumer's outbound
	// buffer is exhausted. The event is dropped for that connection
	// only; the write pump keeps draining whatever is already queued.
	ErrSendBufferFull = errors.New("send buffer full")
)

// wsConn adapts a gorilla websocket to the Conn interface. All writes go
// through a buffered channel drained by a single write pump goroutine,
// so a broadcast never blocks on one connection's socket.
type wsConn struct {
	id        string
	userID    string
	ws        *websocket.Conn
	send      chan Event
	done      chan struct{}
	closeOnce sync.Once

	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
}

func newWSConn(ws *websocket.Conn, userID string, bufferSize int, writeTimeout, pingInterval time.Duration, logger *slog.Logger) *wsConn {
	return &wsConn{
		id:           uuid.New().String(),
		userID:       userID,
		ws:           ws,
		send:         make(chan Event, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }

// Send queues an event for delivery. It never blocks: a full buffer
// means the consumer is too slow and the event is dropped for this
// connection.
func (c *wsConn) Send(event Event) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- event:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the connection down exactly once
func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with periodic pings. It owns all writes; gorilla
// websockets permit only one concurrent writer.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteJSON(event); err != nil {
				c.logger.Debug("websocket write failed",
					slog.String("connection_id", c.id),
					slog.Any("error", err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

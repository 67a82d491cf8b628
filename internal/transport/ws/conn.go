package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quizroom/internal/protocol"
	"quizroom/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendQueueSize  = 32
)

// conn adapts a websocket to transport.Channel. One goroutine reads, one writes;
// Close lets the writer flush what is already queued before the close frame.
type conn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger

	in      chan protocol.Envelope
	out     chan protocol.Envelope
	closing chan struct{}
	once    sync.Once
}

func newConn(id string, ws *websocket.Conn, logger *slog.Logger) *conn {
	return &conn{
		id:      id,
		ws:      ws,
		logger:  logger,
		in:      make(chan protocol.Envelope, sendQueueSize),
		out:     make(chan protocol.Envelope, sendQueueSize),
		closing: make(chan struct{}),
	}
}

func (c *conn) start() {
	go c.writePump()
	go c.readPump()
}

func (c *conn) ID() string { return c.id }
func (c *conn) Inbound() <-chan protocol.Envelope { return c.in }

func (c *conn) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closing:
		return transport.ErrClosed
	default:
	}
	select {
	case c.out <- env:
		return nil
	case <-c.closing:
		return transport.ErrClosed
	default:
		return transport.ErrBackpressure
	}
}

func (c *conn) Close() error {
	c.once.Do(func() { close(c.closing) })
	return nil
}

func (c *conn) readPump() {
	defer func() {
		close(c.in)
		c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("ws read failed", "conn", c.id, "error", err)
			}
			return
		}
		if env.Type == "" {
			continue
		}
		select {
		case c.in <- env:
		case <-c.closing:
			return
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case env := <-c.out:
			if err := c.write(env); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closing:
			c.flush()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before Close.
func (c *conn) flush() {
	for {
		select {
		case env := <-c.out:
			if c.write(env) != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(env protocol.Envelope) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(env); err != nil {
		c.logger.Debug("ws write failed", "conn", c.id, "type", env.Type, "error", err)
		return err
	}
	return nil
}

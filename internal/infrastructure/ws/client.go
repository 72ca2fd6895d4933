package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 32 * 1024
)

// Client is one participant socket. Only the Core sends to it; the channel
// is never closed, the pumps stop on closed instead.
type Client struct {
	conn      *connWrapper
	send      chan *WSMessage
	ID        string
	SourceKey string
	logger    logging.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(conn *websocket.Conn, id, sourceKey string, buffer int, logger logging.Logger) *Client {
	if buffer < 1 {
		buffer = 64
	}
	return &Client{
		conn:      newConnWrapper(conn),
		send:      make(chan *WSMessage, buffer),
		ID:        id,
		SourceKey: sourceKey,
		logger:    logger,
		closed:    make(chan struct{}),
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *Client) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// trySend queues msg without blocking. It reports false when the buffer is
// full or the client is gone.
func (c *Client) trySend(msg *WSMessage) bool {
	if c.IsClosed() {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) ReadMessage(core *Core) {
	defer func() {
		core.unregisterClient(c)
		c.Close()
	}()

	c.conn.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.conn.SetPongHandler(func(string) error {
		_ = c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn(logging.Relay, logging.Connection, "ws read error", map[logging.ExtraKey]any{
					logging.ConnID:       c.ID,
					logging.ErrorMessage: err.Error(),
				})
			}
			return
		}

		if len(raw) == 0 {
			continue
		}

		_ = c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
			c.logger.Warn(logging.Relay, logging.Forward, "dropping malformed frame", map[logging.ExtraKey]any{
				logging.ConnID:   c.ID,
				logging.BodySize: len(raw),
			})
			continue
		}

		if !core.deliver(inbound{client: c, frame: frame}) {
			return
		}
	}
}

func (c *Client) WriteMessage() {
	defer c.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg, writeWait); err != nil {
				c.logger.Warn(logging.Relay, logging.Connection, "ws write error", map[logging.ExtraKey]any{
					logging.ConnID:       c.ID,
					logging.ErrorMessage: err.Error(),
				})
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, writeWait); err != nil {
				return
			}

		case <-c.closed:
			return
		}
	}
}

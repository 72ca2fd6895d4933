// Package wsclient is the participant side of the relay socket: it dials the
// relay, correlates requests with acks and surfaces everything else as frames.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
)

const (
	writeWait   = 10 * time.Second
	pingEvery   = 25 * time.Second
	pongWait    = 60 * time.Second
	eventBuffer = 256
)

var ErrClosed = errors.New("relay connection closed")

// AckError is a negative ack from the relay. It unwraps to the matching
// domain error so callers can use errors.Is.
type AckError struct {
	Code    string
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *AckError) Unwrap() error {
	return ws.CodeError(e.Code)
}

type Conn struct {
	conn   *websocket.Conn
	logger logging.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan ws.AckPayload
	err     error

	events    chan ws.Frame
	done      chan struct{}
	closeOnce sync.Once
}

// URL turns a relay base URL (http, https, ws or wss) into its socket URL.
func URL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url %q has no host", serverURL)
	}

	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	}
	return u.String(), nil
}

func Dial(ctx context.Context, serverURL string, logger logging.Logger) (*Conn, error) {
	wsURL, err := URL(serverURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		NetDialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		Proxy: websocket.DefaultDialer.Proxy,
	}

	conn, _, err := d.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Conn{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan ws.AckPayload),
		events:  make(chan ws.Frame, eventBuffer),
		done:    make(chan struct{}),
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Request sends a frame with a fresh id and waits for its ack. A negative
// ack comes back as *AckError.
func (c *Conn) Request(ctx context.Context, frameType string, data any) (ws.AckPayload, error) {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	ackC := make(chan ws.AckPayload, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return ws.AckPayload{}, err
	}
	c.pending[id] = ackC
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(frameType, id, data); err != nil {
		return ws.AckPayload{}, err
	}

	select {
	case ack := <-ackC:
		if !ack.Success {
			return ack, &AckError{Code: ack.Code, Message: ack.Error}
		}
		return ack, nil
	case <-ctx.Done():
		return ws.AckPayload{}, ctx.Err()
	case <-c.done:
		return ws.AckPayload{}, c.Err()
	}
}

// Send is fire-and-forget.
func (c *Conn) Send(frameType string, data any) error {
	return c.write(frameType, "", data)
}

// Events yields every frame that is not an ack, in arrival order.
func (c *Conn) Events() <-chan ws.Frame {
	return c.events
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err is why the connection ended, ErrClosed after a local Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return ErrClosed
	}
	return c.err
}

func (c *Conn) Close() error {
	c.finish(ErrClosed)

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *Conn) finish(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) write(frameType, id string, data any) error {
	frame := ws.Frame{Type: frameType, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", frameType, err)
		}
		frame.Data = raw
	}

	select {
	case <-c.done:
		return c.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write %s: %w", frameType, err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.conn.Close()

	for {
		var frame ws.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if !isExpectedDisconnect(err) {
				c.logger.Warn(logging.Relay, logging.Connection, "relay read loop exit", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
			c.finish(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}

		if frame.Type == ws.Ack {
			c.resolve(frame)
			continue
		}

		select {
		case c.events <- frame:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) resolve(frame ws.Frame) {
	var ack ws.AckPayload
	if err := json.Unmarshal(frame.Data, &ack); err != nil {
		c.logger.Warn(logging.Relay, logging.Connection, "malformed ack", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	c.mu.Lock()
	ackC, ok := c.pending[frame.ID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ackC <- ack:
	default:
	}
}

func (c *Conn) pingLoop() {
	t := time.NewTicker(pingEvery)
	defer t.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.finish(fmt.Errorf("%w: ping: %v", ErrClosed, err))
				_ = c.conn.Close()
				return
			}
		}
	}
}

func isExpectedDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/notify"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
	"github.com/hilthontt/remotepad/internal/infrastructure/wsclient"
)

const (
	DefaultConnectTimeout = 10 * time.Second

	requestTimeout = 10 * time.Second
)

type ClientConfig struct {
	DefaultServerURL string
	ConnectTimeout   time.Duration
}

// Client is the phone side of a session.
type Client struct {
	cfg    ClientConfig
	logger logging.Logger
	events *notify.Hub[Event]

	mu      sync.Mutex
	state   State
	code    string
	conn    *wsclient.Conn
	watcher sync.WaitGroup
}

func NewClient(cfg ClientConfig, logger logging.Logger) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{cfg: cfg, logger: logger, events: notify.NewHub[Event]()}
}

// Connect joins code on serverURL, or on the default server when empty. It
// replaces any current session, so calling it again is the retry path.
// Join refusals unwrap to domain.ErrRoomNotFound and friends.
func (c *Client) Connect(ctx context.Context, code, serverURL string) error {
	c.Disconnect()

	if serverURL == "" {
		serverURL = c.cfg.DefaultServerURL
	}
	code = domain.NormalizeCode(code)
	c.setState(Connecting, nil)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := wsclient.Dial(ctx, serverURL, c.logger)
	if err != nil {
		return c.fail(ctx, fmt.Errorf("%w: %v", ErrTransportUnavailable, err))
	}

	ack, err := conn.Request(ctx, ws.JoinRoom, ws.JoinRoomPayload{RoomCode: code})
	if err != nil {
		_ = conn.Close()
		return c.fail(ctx, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.code = ack.RoomCode
	c.mu.Unlock()

	c.logger.Info(logging.Pairing, logging.Session, "joined room", map[logging.ExtraKey]any{
		logging.RoomCode: ack.RoomCode,
		logging.URL:      serverURL,
	})
	c.setState(Connected, nil)

	c.watcher.Add(1)
	go c.watch(conn)
	return nil
}

// ConnectURL joins using a scanned pairing URL.
func (c *Client) ConnectURL(ctx context.Context, pairingURL string) error {
	server, code, err := ParsePairingURL(pairingURL)
	if err != nil {
		return err
	}
	return c.Connect(ctx, code, server)
}

func (c *Client) Send(msg domain.RelayMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := domain.EncodeRelayMessage(msg)
	if err != nil {
		return err
	}
	return conn.Send(ws.RemoteMessage, json.RawMessage(raw))
}

// Ping asks the host for a pong; the round trip arrives as EventLatency.
func (c *Client) Ping() error {
	return c.Send(domain.Ping{Timestamp: nowMillis()})
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.Close()
	c.watcher.Wait()
	c.setState(Disconnected, nil)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func (c *Client) Subscribe() (<-chan Event, func()) {
	return c.events.Subscribe()
}

func (c *Client) fail(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrConnectTimeout, err)
	}
	c.logger.Warn(logging.Pairing, logging.Session, "connect failed", map[logging.ExtraKey]any{
		logging.ErrorMessage: err.Error(),
	})
	c.setState(Error, err)
	return err
}

func (c *Client) watch(conn *wsclient.Conn) {
	defer c.watcher.Done()

	for {
		select {
		case <-conn.Done():
			c.mu.Lock()
			current := c.conn == conn
			if current {
				c.conn = nil
			}
			c.mu.Unlock()
			if current {
				c.setState(Disconnected, conn.Err())
			}
			return

		case f := <-conn.Events():
			switch f.Type {
			case ws.RemoteStatus:
				c.status(f.Data)
			case ws.PeerDisconnected:
				c.events.Publish(Event{Kind: EventPeerDisconnected, Code: f.RoomID})
			case ws.RoomClosed:
				c.events.Publish(Event{Kind: EventRoomClosed, Code: f.RoomID})
				_ = conn.Close()
			}
		}
	}
}

// status handles host-to-phone messages; only pong carries meaning today.
func (c *Client) status(raw []byte) {
	msg, err := domain.DecodeRelayMessage(raw)
	if err != nil {
		c.logger.Debug(logging.Pairing, logging.Session, "bad status message", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return
	}
	if pong, ok := msg.(domain.Pong); ok {
		c.events.Publish(Event{Kind: EventLatency, LatencyMs: nowMillis() - pong.Timestamp})
	}
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	if c.state == s && err == nil {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.events.Publish(Event{Kind: EventStateChanged, State: s, Err: err})
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

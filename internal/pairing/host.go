package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/notify"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
	"github.com/hilthontt/remotepad/internal/infrastructure/wsclient"
)

type HostConfig struct {
	// RelayURL is the relay the host itself connects to.
	RelayURL string
	// PublicURL is what phones are told to connect to. Defaults to RelayURL.
	PublicURL        string
	ClientBaseURL    string
	DefaultServerURL string
}

// Host is the desktop side of a session: it owns a room on the relay and
// feeds the phone's messages to the dispatcher.
type Host struct {
	cfg        HostConfig
	dispatcher *Dispatcher
	logger     logging.Logger
	events     *notify.Hub[Event]

	mu        sync.Mutex
	state     State
	code      string
	publicURL string
	peerID    string
	conn      *wsclient.Conn

	wg sync.WaitGroup
}

func NewHost(cfg HostConfig, dispatcher *Dispatcher, logger logging.Logger) *Host {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = cfg.RelayURL
	}
	h := &Host{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		events:     notify.NewHub[Event](),
		publicURL:  cfg.PublicURL,
	}
	dispatcher.reply = h.reply
	return h
}

// Start connects to the relay and creates a room. Calling it again after the
// relay connection was lost starts a fresh session.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	stale := h.conn
	h.conn = nil
	h.mu.Unlock()
	if stale != nil {
		_ = stale.Close()
	}
	h.wg.Wait()

	h.setState(Connecting, nil)

	conn, err := wsclient.Dial(ctx, h.cfg.RelayURL, h.logger)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		h.setState(Error, err)
		return err
	}

	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()

	if err := h.createRoom(ctx, ws.CreateRoom); err != nil {
		h.mu.Lock()
		h.conn = nil
		h.mu.Unlock()
		_ = conn.Close()
		h.setState(Error, err)
		return err
	}
	h.setState(Connected, nil)

	h.wg.Add(1)
	go h.loop(conn)
	return nil
}

// Regenerate swaps the code for a fresh one. A phone holding the old code
// is dropped. Without a live relay connection it reconnects instead.
func (h *Host) Regenerate(ctx context.Context) error {
	h.mu.Lock()
	connected := h.conn != nil
	h.mu.Unlock()
	if !connected {
		return h.Start(ctx)
	}
	return h.createRoom(ctx, ws.RegenerateRoom)
}

// SetPublicURL re-derives the pairing URL after the transport URL changed.
func (h *Host) SetPublicURL(u string) {
	h.mu.Lock()
	if h.publicURL == u {
		h.mu.Unlock()
		return
	}
	h.publicURL = u
	code := h.code
	h.mu.Unlock()

	if code != "" {
		h.events.Publish(Event{Kind: EventCodeIssued, Code: code, URL: h.PairingURL()})
	}
}

func (h *Host) PairingURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.code == "" {
		return ""
	}
	return BuildURL(h.cfg.ClientBaseURL, h.publicURL, h.cfg.DefaultServerURL, h.code)
}

func (h *Host) Code() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code
}

func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PeerID is the bound phone's connection id, empty when none.
func (h *Host) PeerID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peerID
}

func (h *Host) Events() (<-chan Event, func()) {
	return h.events.Subscribe()
}

func (h *Host) Close() error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	h.wg.Wait()
	h.setState(Disconnected, nil)
	h.events.Close()
	return err
}

func (h *Host) createRoom(ctx context.Context, frameType string) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ack, err := conn.Request(ctx, frameType, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", frameType, err)
	}

	h.mu.Lock()
	h.code = ack.RoomCode
	h.peerID = ""
	h.mu.Unlock()

	pairingURL := h.PairingURL()
	h.logger.Info(logging.Pairing, logging.Room, "room code issued", map[logging.ExtraKey]any{
		logging.RoomCode: ack.RoomCode,
		logging.URL:      pairingURL,
	})
	h.events.Publish(Event{Kind: EventCodeIssued, Code: ack.RoomCode, URL: pairingURL})
	return nil
}

func (h *Host) loop(conn *wsclient.Conn) {
	defer h.wg.Done()

	for {
		select {
		case <-conn.Done():
			h.mu.Lock()
			if h.conn == conn {
				h.conn = nil
				h.code = ""
				h.peerID = ""
			}
			h.mu.Unlock()
			h.setState(Disconnected, conn.Err())
			return
		case f := <-conn.Events():
			h.handle(f)
		}
	}
}

func (h *Host) handle(f ws.Frame) {
	switch f.Type {
	case ws.RemoteMessage:
		// errors are logged by the dispatcher
		_ = h.dispatcher.Dispatch(f.Data)

	case ws.ClientJoined:
		var p ws.ClientJoinedPayload
		_ = json.Unmarshal(f.Data, &p)
		h.mu.Lock()
		h.peerID = p.ClientID
		h.mu.Unlock()
		h.events.Publish(Event{Kind: EventClientJoined, Code: f.RoomID, PeerID: p.ClientID})

	case ws.PeerDisconnected:
		var p ws.PeerDisconnectedPayload
		_ = json.Unmarshal(f.Data, &p)
		h.mu.Lock()
		h.peerID = ""
		h.mu.Unlock()
		h.events.Publish(Event{Kind: EventPeerDisconnected, Code: f.RoomID, PeerID: p.PeerID})

	case ws.RoomExpired:
		h.events.Publish(Event{Kind: EventRoomExpired, Code: f.RoomID})
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := h.createRoom(ctx, ws.CreateRoom); err != nil {
			h.logger.Error(logging.Pairing, logging.Room, "could not replace expired room", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}

	case ws.Offer, ws.Answer, ws.ICECandidate:
		// input always rides the relay; a direct peer channel is not negotiated
		h.logger.Debug(logging.Pairing, logging.Session, "ignoring signaling", map[logging.ExtraKey]any{
			logging.MessageType: f.Type,
		})

	default:
		h.logger.Debug(logging.Pairing, logging.Session, "unhandled frame", map[logging.ExtraKey]any{
			logging.MessageType: f.Type,
		})
	}
}

func (h *Host) reply(msg domain.RelayMessage) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := domain.EncodeRelayMessage(msg)
	if err != nil {
		return err
	}
	return conn.Send(ws.RemoteStatus, json.RawMessage(raw))
}

func (h *Host) setState(s State, err error) {
	h.mu.Lock()
	if h.state == s && err == nil {
		h.mu.Unlock()
		return
	}
	h.state = s
	h.mu.Unlock()

	h.events.Publish(Event{Kind: EventStateChanged, State: s, Err: err})
}

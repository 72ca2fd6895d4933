package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/events"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/metrics"
	"github.com/hilthontt/remotepad/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/remotepad/internal/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSweepInterval = 60 * time.Second
	publishTimeout       = 5 * time.Second
)

type inbound struct {
	client *Client
	frame  Frame
}

type participant struct {
	client *Client
	role   domain.Role
	code   string
}

type Options struct {
	Registry domain.RoomRegistry
	// Limiter throttles join-room per source. Nil disables throttling.
	Limiter       ratelimiter.Limiter
	Events        events.RoomEvents
	Metrics       *metrics.Metrics
	Logger        logging.Logger
	SweepInterval time.Duration
	SendBuffer    int
}

// Core is the relay's event loop. It alone owns the participant table and is
// the only caller of the room registry, so every registry mutation and every
// forward happens in one goroutine, in arrival order.
type Core struct {
	registry      domain.RoomRegistry
	limiter       ratelimiter.Limiter
	events        events.RoomEvents
	metrics       *metrics.Metrics
	logger        logging.Logger
	tracer        trace.Tracer
	sweepInterval time.Duration
	sendBuffer    int

	register     chan *Client
	unregister   chan *Client
	inbound      chan inbound
	participants map[string]*participant
	done         chan struct{}
}

func NewCore(opts Options) *Core {
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}

	return &Core{
		registry:      opts.Registry,
		limiter:       opts.Limiter,
		events:        opts.Events,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		tracer:        tracing.GetTracer("relay"),
		sweepInterval: opts.SweepInterval,
		sendBuffer:    opts.SendBuffer,
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		inbound:       make(chan inbound),
		participants:  make(map[string]*participant),
		done:          make(chan struct{}),
	}
}

func (c *Core) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case cl := <-c.register:
			c.participants[cl.ID] = &participant{client: cl}
			c.metrics.ConnOpened()
			c.logger.Debug(logging.Relay, logging.Connection, "participant connected", map[logging.ExtraKey]any{
				logging.ConnID:   cl.ID,
				logging.ClientIp: cl.SourceKey,
			})

		case cl := <-c.unregister:
			c.handleUnregister(cl)

		case in := <-c.inbound:
			c.handleFrame(in)

		case <-ticker.C:
			c.sweep()
		}
	}
}

// Done is closed once Run has returned and every participant is closed.
func (c *Core) Done() <-chan struct{} {
	return c.done
}

// Accept takes ownership of an upgraded socket. It returns nil when the core
// has already stopped.
func (c *Core) Accept(conn *websocket.Conn, sourceKey string) *Client {
	cl := NewClient(conn, uuid.NewString(), sourceKey, c.sendBuffer, c.logger)

	select {
	case c.register <- cl:
	case <-c.done:
		cl.Close()
		return nil
	}

	go cl.WriteMessage()
	go cl.ReadMessage(c)

	return cl
}

func (c *Core) shutdown() {
	close(c.done)
	for id, p := range c.participants {
		p.client.Close()
		delete(c.participants, id)
	}
}

func (c *Core) deliver(in inbound) bool {
	select {
	case c.inbound <- in:
		return true
	case <-c.done:
		return false
	case <-in.client.closed:
		return false
	}
}

func (c *Core) unregisterClient(cl *Client) {
	select {
	case c.unregister <- cl:
	case <-c.done:
	}
}

func (c *Core) handleFrame(in inbound) {
	p, ok := c.participants[in.client.ID]
	if !ok {
		return
	}

	switch in.frame.Type {
	case CreateRoom:
		c.createRoom(p, in.frame)
	case RegenerateRoom:
		// a host whose room was just swept has no code left; regenerating is
		// then the same as creating
		c.createRoom(p, in.frame)
	case JoinRoom:
		c.joinRoom(p, in.frame)
	case Offer, Answer, ICECandidate:
		c.forward(p, in.frame)
	case RemoteMessage:
		if p.role != domain.RoleClient {
			c.metrics.FrameDropped("wrong_direction")
			return
		}
		if c.forward(p, in.frame) {
			_ = c.registry.Touch(p.code)
		}
	case RemoteStatus:
		if p.role != domain.RoleHost {
			c.metrics.FrameDropped("wrong_direction")
			return
		}
		c.forward(p, in.frame)
	default:
		c.metrics.FrameDropped("unknown_type")
		c.logger.Warn(logging.Relay, logging.Forward, "ignoring unknown frame type", map[logging.ExtraKey]any{
			logging.ConnID:      p.client.ID,
			logging.MessageType: in.frame.Type,
		})
		if in.frame.ID != "" {
			c.send(p, NewAckError(in.frame.ID, CodeInvalidRequest, "unknown frame type"))
		}
	}
}

// createRoom serves both create-room and regenerate-room. A host owns one
// room, so a second create replaces the first and orphans its client.
func (c *Core) createRoom(p *participant, frame Frame) {
	_, span := c.tracer.Start(context.Background(), "relay.create-room")
	defer span.End()

	if p.role == domain.RoleClient {
		c.send(p, NewAckError(frame.ID, CodeInvalidRequest, "already joined a room"))
		return
	}

	var previous domain.Room
	hadRoom := false
	if p.code != "" {
		if room, err := c.registry.Lookup(p.code); err == nil {
			previous, hadRoom = room, true
		}
	}

	room, err := c.registry.CreateRoom(p.client.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error(logging.Relay, logging.Room, "create room failed", map[logging.ExtraKey]any{
			logging.ConnID:       p.client.ID,
			logging.ErrorMessage: err.Error(),
		})
		c.send(p, NewAckError(frame.ID, CodeInternal, "Could not create a room. Try again."))
		return
	}

	if hadRoom {
		if orphan, ok := c.participants[previous.ClientID]; ok {
			c.send(orphan, NewRoomClosed(previous.Code))
			orphan.role, orphan.code = domain.RoleNone, ""
		}
		c.publish(func(ctx context.Context) error { return c.events.RoomClosed(ctx, previous) })
	}

	p.role, p.code = domain.RoleHost, room.Code
	span.SetAttributes(attribute.String("room.code", room.Code), attribute.Bool("room.regenerated", hadRoom))

	c.metrics.RoomCreated()
	c.metrics.SetRoomsActive(c.registry.Len())
	c.logger.Info(logging.Relay, logging.Room, "room created", map[logging.ExtraKey]any{
		logging.ConnID:   p.client.ID,
		logging.RoomCode: room.Code,
	})

	c.send(p, NewAckOK(frame.ID, room.Code))
	c.publish(func(ctx context.Context) error { return c.events.RoomCreated(ctx, room) })
}

func (c *Core) joinRoom(p *participant, frame Frame) {
	_, span := c.tracer.Start(context.Background(), "relay.join-room")
	defer span.End()

	if p.role != domain.RoleNone {
		c.send(p, NewAckError(frame.ID, CodeInvalidRequest, "already in a room"))
		return
	}

	if c.limiter != nil && !c.limiter.Allow(p.client.SourceKey) {
		c.metrics.RoomJoin(CodeRateLimited)
		c.logger.Warn(logging.Relay, logging.RateLimiting, "join attempts rate limited", map[logging.ExtraKey]any{
			logging.ConnID:   p.client.ID,
			logging.ClientIp: p.client.SourceKey,
		})
		c.send(p, NewAckError(frame.ID, CodeRateLimited, "Too many attempts. Wait a moment and try again."))
		return
	}

	var req JoinRoomPayload
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			c.send(p, NewJoinFailed(frame.ID, domain.ErrInvalidInput))
			return
		}
	}
	if req.RoomCode == "" {
		req.RoomCode = frame.RoomID
	}

	room, err := c.registry.JoinRoom(req.RoomCode, p.client.ID)
	if err != nil {
		span.RecordError(err)
		c.metrics.RoomJoin(ErrorCode(err))
		if errors.Is(err, domain.ErrRoomExpired) {
			c.expireRoom(domain.NormalizeCode(req.RoomCode))
		}
		c.logger.Info(logging.Relay, logging.Room, "join rejected", map[logging.ExtraKey]any{
			logging.ConnID:       p.client.ID,
			logging.RoomCode:     domain.NormalizeCode(req.RoomCode),
			logging.ErrorMessage: err.Error(),
		})
		c.send(p, NewJoinFailed(frame.ID, err))
		return
	}

	p.role, p.code = domain.RoleClient, room.Code
	span.SetAttributes(attribute.String("room.code", room.Code))

	c.metrics.RoomJoin("ok")
	c.logger.Info(logging.Relay, logging.Room, "client joined", map[logging.ExtraKey]any{
		logging.ConnID:   p.client.ID,
		logging.RoomCode: room.Code,
	})

	c.send(p, NewAckOK(frame.ID, room.Code))
	if host, ok := c.participants[room.HostID]; ok {
		c.send(host, NewClientJoined(room.Code, p.client.ID))
	}
	c.publish(func(ctx context.Context) error { return c.events.RoomJoined(ctx, room) })
}

// forward relays frame to the sender's peer, stamped with the sender id. A
// missing peer is a transient gap, not an error: the frame is dropped.
func (c *Core) forward(p *participant, frame Frame) bool {
	peer := c.peerOf(p)
	if peer == nil {
		c.metrics.FrameDropped("no_peer")
		return false
	}

	c.send(peer, NewRelayed(frame.Type, p.code, p.client.ID, frame.Data))
	c.metrics.FrameRelayed(frame.Type)
	return true
}

func (c *Core) peerOf(p *participant) *participant {
	if p.code == "" {
		return nil
	}
	room, err := c.registry.Lookup(p.code)
	if err != nil {
		return nil
	}
	peer, ok := c.participants[room.PeerOf(p.client.ID)]
	if !ok {
		return nil
	}
	return peer
}

func (c *Core) handleUnregister(cl *Client) {
	p, ok := c.participants[cl.ID]
	if !ok {
		return
	}
	delete(c.participants, cl.ID)
	c.metrics.ConnClosed()

	room, role, ok := c.registry.RemoveConnection(cl.ID)
	if !ok {
		return
	}

	c.logger.Info(logging.Relay, logging.Connection, "participant left", map[logging.ExtraKey]any{
		logging.ConnID:   cl.ID,
		logging.RoomCode: p.code,
	})

	switch role {
	case domain.RoleHost:
		c.metrics.SetRoomsActive(c.registry.Len())
		if peer, ok := c.participants[room.ClientID]; ok {
			c.send(peer, NewPeerDisconnected(room.Code, cl.ID, role))
			c.send(peer, NewRoomClosed(room.Code))
			peer.role, peer.code = domain.RoleNone, ""
		}
		c.publish(func(ctx context.Context) error { return c.events.RoomClosed(ctx, room) })

	case domain.RoleClient:
		if host, ok := c.participants[room.HostID]; ok {
			c.send(host, NewPeerDisconnected(room.Code, cl.ID, role))
		}
		c.publish(func(ctx context.Context) error { return c.events.ClientLeft(ctx, room) })
	}
}

func (c *Core) sweep() {
	expired := c.registry.Sweep()
	if len(expired) == 0 {
		return
	}

	for _, room := range expired {
		if host, ok := c.participants[room.HostID]; ok {
			c.send(host, NewRoomExpired(room.Code))
			host.role, host.code = domain.RoleNone, ""
		}
		if client, ok := c.participants[room.ClientID]; ok {
			c.send(client, NewRoomClosed(room.Code))
			client.role, client.code = domain.RoleNone, ""
		}

		c.publish(func(ctx context.Context) error { return c.events.RoomExpired(ctx, room) })
	}

	c.metrics.SetRoomsActive(c.registry.Len())
	c.logger.Info(logging.Relay, logging.Sweep, "expired rooms swept", map[logging.ExtraKey]any{
		"count": len(expired),
	})
}

// expireRoom resets both participants of a room the registry deleted during
// a join, the same way a sweep would.
func (c *Core) expireRoom(code string) {
	room := domain.Room{Code: code}
	for _, p := range c.participants {
		if p.code != code {
			continue
		}
		switch p.role {
		case domain.RoleHost:
			room.HostID = p.client.ID
			c.send(p, NewRoomExpired(code))
		case domain.RoleClient:
			room.ClientID = p.client.ID
			c.send(p, NewRoomClosed(code))
		}
		p.role, p.code = domain.RoleNone, ""
	}

	c.metrics.SetRoomsActive(c.registry.Len())
	c.publish(func(ctx context.Context) error { return c.events.RoomExpired(ctx, room) })
}

// send never blocks the loop. A participant whose buffer is full is too slow
// to keep up with input traffic and gets disconnected.
func (c *Core) send(p *participant, msg *WSMessage) {
	if p.client.trySend(msg) {
		return
	}
	if p.client.IsClosed() {
		return
	}

	c.metrics.FrameDropped("slow_consumer")
	c.logger.Warn(logging.Relay, logging.Connection, "send buffer full, disconnecting participant", map[logging.ExtraKey]any{
		logging.ConnID:      p.client.ID,
		logging.MessageType: msg.Type,
	})
	p.client.Close()
}

func (c *Core) publish(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			c.logger.Warn(logging.RabbitMQ, logging.ExternalService, "room event publish failed", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
	}()
}

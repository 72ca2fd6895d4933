package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/contracts"
	"github.com/hilthontt/remotepad/internal/infrastructure/messaging"
)

// RoomEvents receives room lifecycle notifications from the relay.
type RoomEvents interface {
	RoomCreated(ctx context.Context, room domain.Room) error
	RoomJoined(ctx context.Context, room domain.Room) error
	ClientLeft(ctx context.Context, room domain.Room) error
	RoomClosed(ctx context.Context, room domain.Room) error
	RoomExpired(ctx context.Context, room domain.Room) error
}

type Publisher interface {
	PublishMessage(ctx context.Context, routingKey string, message contracts.AmqpMessage) error
}

type RoomPublisher struct {
	publisher Publisher
	now       func() time.Time
}

func NewRoomPublisher(publisher Publisher) *RoomPublisher {
	return &RoomPublisher{
		publisher: publisher,
		now:       time.Now,
	}
}

func (p *RoomPublisher) RoomCreated(ctx context.Context, room domain.Room) error {
	return p.publish(ctx, contracts.EventRoomCreated, room)
}

func (p *RoomPublisher) RoomJoined(ctx context.Context, room domain.Room) error {
	return p.publish(ctx, contracts.EventRoomJoined, room)
}

func (p *RoomPublisher) ClientLeft(ctx context.Context, room domain.Room) error {
	return p.publish(ctx, contracts.EventClientLeft, room)
}

func (p *RoomPublisher) RoomClosed(ctx context.Context, room domain.Room) error {
	return p.publish(ctx, contracts.EventRoomClosed, room)
}

func (p *RoomPublisher) RoomExpired(ctx context.Context, room domain.Room) error {
	return p.publish(ctx, contracts.EventRoomExpired, room)
}

func (p *RoomPublisher) publish(ctx context.Context, routingKey string, room domain.Room) error {
	payload := messaging.RoomEventData{
		Code:      room.Code,
		HostID:    room.HostID,
		ClientID:  room.ClientID,
		ExpiresAt: room.ExpiresAt,
		At:        p.now(),
	}

	roomEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.publisher.PublishMessage(ctx, routingKey, contracts.AmqpMessage{
		HostID: room.HostID,
		Data:   roomEventJSON,
	})
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) RoomCreated(context.Context, domain.Room) error { return nil }
func (Nop) RoomJoined(context.Context, domain.Room) error  { return nil }
func (Nop) ClientLeft(context.Context, domain.Room) error  { return nil }
func (Nop) RoomClosed(context.Context, domain.Room) error  { return nil }
func (Nop) RoomExpired(context.Context, domain.Room) error { return nil }

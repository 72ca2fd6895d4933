package contracts

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	HostID string `json:"hostId"`
	Data   []byte `json:"data"`
}

// Routing keys - using consistent event/command patterns
const (
	EventRoomCreated = "room.created"
	EventRoomJoined  = "room.joined"
	EventClientLeft  = "room.client_left"
	EventRoomClosed  = "room.closed"
	EventRoomExpired = "room.expired"
)

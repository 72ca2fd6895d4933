package messaging

import "time"

const (
	RoomsQueue      = "rooms"
	DeadLetterQueue = "dead_letter_queue"
)

// RoomEventData is the body of every room lifecycle event. Connection ids
// are included so operators can correlate with relay logs.
type RoomEventData struct {
	Code      string    `json:"code"`
	HostID    string    `json:"hostId"`
	ClientID  string    `json:"clientId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	At        time.Time `json:"at"`
}

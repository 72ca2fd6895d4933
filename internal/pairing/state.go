// Package pairing runs both ends of a phone-desktop session on top of the
// relay socket.
package pairing

import "errors"

var (
	ErrConnectTimeout       = errors.New("connect timed out")
	ErrTransportUnavailable = errors.New("relay unreachable")
	ErrNotConnected         = errors.New("not connected")
	ErrInvalidPairingURL    = errors.New("invalid pairing url")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventStateChanged EventKind = iota + 1
	EventCodeIssued
	EventClientJoined
	EventPeerDisconnected
	EventRoomExpired
	EventRoomClosed
	EventLatency
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventCodeIssued:
		return "code_issued"
	case EventClientJoined:
		return "client_joined"
	case EventPeerDisconnected:
		return "peer_disconnected"
	case EventRoomExpired:
		return "room_expired"
	case EventRoomClosed:
		return "room_closed"
	case EventLatency:
		return "latency"
	default:
		return "unknown"
	}
}

// Event is what either side of a session publishes. Only the fields that
// matter for Kind are set.
type Event struct {
	Kind      EventKind
	State     State
	Code      string
	URL       string
	PeerID    string
	LatencyMs int64
	Err       error
}

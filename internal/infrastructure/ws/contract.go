package ws

import (
	"encoding/json"
	"errors"

	"github.com/hilthontt/remotepad/internal/domain"
)

// Frame is what participants send to the relay. Data stays raw so the relay
// can forward payloads it does not understand.
type Frame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	RoomID string          `json:"roomId,omitempty"`
	From   string          `json:"from,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// WSMessage is what the relay sends to participants.
type WSMessage struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	RoomID string `json:"roomId,omitempty"`
	From   string `json:"from,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Payload structs
type JoinRoomPayload struct {
	RoomCode string `json:"roomCode"`
}

type AckPayload struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

type ClientJoinedPayload struct {
	ClientID string `json:"clientId"`
}

type PeerDisconnectedPayload struct {
	PeerID string `json:"peerId"`
	Role   string `json:"role"`
}

type RoomPayload struct {
	RoomCode string `json:"roomCode"`
}

func NewAckOK(id, roomCode string) *WSMessage {
	return &WSMessage{
		Type:   Ack,
		ID:     id,
		RoomID: roomCode,
		Data: AckPayload{
			Success:  true,
			RoomCode: roomCode,
		},
	}
}

func NewAckError(id, code, message string) *WSMessage {
	return &WSMessage{
		Type: Ack,
		ID:   id,
		Data: AckPayload{
			Error: message,
			Code:  code,
		},
	}
}

// NewJoinFailed keeps the user-facing text generic; the code tells a client
// whether retrying the same code can help.
func NewJoinFailed(id string, err error) *WSMessage {
	return NewAckError(id, ErrorCode(err), JoinFailedText)
}

func NewClientJoined(roomCode, clientID string) *WSMessage {
	return &WSMessage{
		Type:   ClientJoined,
		RoomID: roomCode,
		Data:   ClientJoinedPayload{ClientID: clientID},
	}
}

func NewPeerDisconnected(roomCode, peerID string, role domain.Role) *WSMessage {
	return &WSMessage{
		Type:   PeerDisconnected,
		RoomID: roomCode,
		Data: PeerDisconnectedPayload{
			PeerID: peerID,
			Role:   role.String(),
		},
	}
}

func NewRoomClosed(roomCode string) *WSMessage {
	return &WSMessage{
		Type:   RoomClosed,
		RoomID: roomCode,
		Data:   RoomPayload{RoomCode: roomCode},
	}
}

func NewRoomExpired(roomCode string) *WSMessage {
	return &WSMessage{
		Type:   RoomExpired,
		RoomID: roomCode,
		Data:   RoomPayload{RoomCode: roomCode},
	}
}

// NewRelayed forwards a frame's payload verbatim, stamped with the sender.
func NewRelayed(frameType, roomCode, from string, data json.RawMessage) *WSMessage {
	msg := &WSMessage{
		Type:   frameType,
		RoomID: roomCode,
		From:   from,
	}
	if len(data) > 0 {
		msg.Data = data
	}
	return msg
}

func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, domain.ErrRoomExpired):
		return CodeRoomExpired
	case errors.Is(err, domain.ErrRoomAlreadyBound):
		return CodeRoomAlreadyBound
	case errors.Is(err, domain.ErrInvalidInput):
		return CodeInvalidRequest
	}
	return CodeInternal
}

// CodeError is the inverse of ErrorCode, for participants reading acks.
func CodeError(code string) error {
	switch code {
	case CodeRoomNotFound:
		return domain.ErrRoomNotFound
	case CodeRoomExpired:
		return domain.ErrRoomExpired
	case CodeRoomAlreadyBound:
		return domain.ErrRoomAlreadyBound
	case CodeInvalidRequest:
		return domain.ErrInvalidInput
	case CodeRateLimited:
		return ErrRateLimited
	}
	return ErrRelayFailure
}

var (
	ErrRateLimited  = errors.New("too many join attempts")
	ErrRelayFailure = errors.New("relay failure")
)

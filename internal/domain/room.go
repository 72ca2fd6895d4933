package domain

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"
)

const (
	RoomCodeLength = 6

	// Visually ambiguous characters (0/O, 1/I) are left out.
	roomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	UnjoinedRoomTTL = 5 * time.Minute
	JoinedRoomTTL   = 10 * time.Minute
)

var (
	charsetLen = big.NewInt(int64(len(roomCodeChars)))

	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomExpired        = errors.New("room expired")
	ErrRoomAlreadyBound   = errors.New("room already has a client")
	ErrInvalidInput       = errors.New("invalid input")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")
)

// Role is the part a connection plays in a room.
type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return "none"
	}
}

// Room binds one host connection and at most one client connection under a
// short code.
type Room struct {
	Code      string    `json:"code"`
	HostID    string    `json:"hostId"`
	ClientID  string    `json:"clientId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewRoom(code, hostID string, now time.Time) Room {
	return Room{
		Code:      code,
		HostID:    hostID,
		CreatedAt: now,
		ExpiresAt: now.Add(UnjoinedRoomTTL),
	}
}

func (r Room) HasClient() bool {
	return r.ClientID != ""
}

func (r Room) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// PeerOf returns the other bound participant of connID, or "" if there is none.
func (r Room) PeerOf(connID string) string {
	switch connID {
	case r.HostID:
		return r.ClientID
	case r.ClientID:
		return r.HostID
	default:
		return ""
	}
}

func (r Room) RoleOf(connID string) Role {
	switch {
	case connID == "":
		return RoleNone
	case connID == r.HostID:
		return RoleHost
	case connID == r.ClientID:
		return RoleClient
	default:
		return RoleNone
	}
}

// RoomRegistry creates, looks up and expires pairing codes. Implementations
// must serialize all operations.
type RoomRegistry interface {
	CreateRoom(hostID string) (Room, error)
	JoinRoom(code, clientID string) (Room, error)
	RemoveConnection(connID string) (Room, Role, bool)
	Lookup(code string) (Room, error)
	Touch(code string) error
	Sweep() []Room
	Len() int
}

// NormalizeCode upper-cases and trims a user-typed code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is made only of allowed characters and has
// the right length. Input is expected to be normalized.
func ValidCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(roomCodeChars, code[i]) < 0 {
			return false
		}
	}
	return true
}

func GenerateCode() (string, error) {
	var sb strings.Builder
	sb.Grow(RoomCodeLength)

	for i := 0; i < RoomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		sb.WriteByte(roomCodeChars[n.Int64()])
	}

	return sb.String(), nil
}

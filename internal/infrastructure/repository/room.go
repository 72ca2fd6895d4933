package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/hilthontt/remotepad/internal/domain"
)

const maxCodeAttempts = 32

type roomRegistry struct {
	rooms       map[string]*domain.Room // code -> room
	hostIndex   map[string]string       // host conn id -> code
	clientIndex map[string]string       // client conn id -> code
	now         func() time.Time
	generate    func() (string, error)
	mu          sync.Mutex
}

type Option func(*roomRegistry)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *roomRegistry) { r.now = now }
}

// WithCodeGenerator overrides the random code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(r *roomRegistry) { r.generate = gen }
}

func NewRoomRegistry(opts ...Option) domain.RoomRegistry {
	r := &roomRegistry{
		rooms:       make(map[string]*domain.Room),
		hostIndex:   make(map[string]string),
		clientIndex: make(map[string]string),
		now:         time.Now,
		generate:    domain.GenerateCode,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRoom issues a fresh code for hostID. A host owns at most one room, so
// any room it already hosts is destroyed first.
func (r *roomRegistry) CreateRoom(hostID string) (domain.Room, error) {
	if hostID == "" {
		return domain.Room{}, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.hostIndex[hostID]; ok {
		r.deleteLocked(code)
	}

	var code string
	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return domain.Room{}, domain.ErrCodeSpaceExhausted
		}

		c, err := r.generate()
		if err != nil {
			return domain.Room{}, fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := r.rooms[c]; !taken {
			code = c
			break
		}
	}

	room := domain.NewRoom(code, hostID, r.now())
	r.rooms[code] = &room
	r.hostIndex[hostID] = code

	return room, nil
}

func (r *roomRegistry) JoinRoom(code, clientID string) (domain.Room, error) {
	code = domain.NormalizeCode(code)
	if code == "" || clientID == "" {
		return domain.Room{}, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}

	now := r.now()
	if room.IsExpired(now) {
		r.deleteLocked(code)
		return domain.Room{}, domain.ErrRoomExpired
	}

	if room.HasClient() {
		return domain.Room{}, domain.ErrRoomAlreadyBound
	}

	room.ClientID = clientID
	room.ExpiresAt = now.Add(domain.JoinedRoomTTL)
	r.clientIndex[clientID] = code

	return *room, nil
}

// RemoveConnection drops connID from whatever room it belongs to. A host
// takes its room down with it; a client only frees the slot.
func (r *roomRegistry) RemoveConnection(connID string) (domain.Room, domain.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.hostIndex[connID]; ok {
		room := *r.rooms[code]
		r.deleteLocked(code)
		return room, domain.RoleHost, true
	}

	if code, ok := r.clientIndex[connID]; ok {
		delete(r.clientIndex, connID)
		room := r.rooms[code]
		room.ClientID = ""
		return *room, domain.RoleClient, true
	}

	return domain.Room{}, domain.RoleNone, false
}

func (r *roomRegistry) Lookup(code string) (domain.Room, error) {
	code = domain.NormalizeCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return *room, nil
}

// Touch pushes the expiry of a bound room forward. Unbound rooms keep their
// short TTL.
func (r *roomRegistry) Touch(code string) error {
	code = domain.NormalizeCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if room.HasClient() {
		room.ExpiresAt = r.now().Add(domain.JoinedRoomTTL)
	}
	return nil
}

// Sweep deletes every room past its expiry and returns what it removed.
func (r *roomRegistry) Sweep() []domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var expired []domain.Room
	for code, room := range r.rooms {
		if room.IsExpired(now) {
			expired = append(expired, *room)
			r.deleteLocked(code)
		}
	}
	return expired
}

func (r *roomRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *roomRegistry) deleteLocked(code string) {
	room, ok := r.rooms[code]
	if !ok {
		return
	}
	delete(r.hostIndex, room.HostID)
	if room.ClientID != "" {
		delete(r.clientIndex, room.ClientID)
	}
	delete(r.rooms, code)
}

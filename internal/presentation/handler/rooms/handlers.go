package rooms

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/json"
)

type Handler struct {
	registry domain.RoomRegistry
	now      func() time.Time
}

func NewHandler(registry domain.RoomRegistry) *Handler {
	return &Handler{registry: registry, now: time.Now}
}

// GetRoomHandler lets the phone UI check a typed code before opening a
// socket. It never reveals connection ids.
func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	code := domain.NormalizeCode(chi.URLParam(r, "code"))
	if !domain.ValidCode(code) {
		json.WriteBadRequestError(w, "room code must be 6 characters")
		return
	}

	room, err := h.registry.Lookup(code)
	if err == nil && room.IsExpired(h.now()) {
		err = domain.ErrRoomExpired
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrRoomExpired):
			json.WriteError(w, http.StatusNotFound, "Room not found")
		default:
			json.WriteInternalError(w)
		}
		return
	}

	_ = json.Write(w, http.StatusOK, roomResponse{
		Code:      room.Code,
		Joined:    room.HasClient(),
		CreatedAt: room.CreatedAt,
		ExpiresAt: room.ExpiresAt,
	})
}

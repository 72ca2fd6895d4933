package settings

import (
	"net/http"

	"github.com/hilthontt/remotepad/internal/infrastructure/json"
)

// TargetStore is the OSC destination the desktop forwards triggers to.
type TargetStore interface {
	Target() (string, int)
	SetTarget(host string, port int) error
}

type Handler struct {
	osc TargetStore
}

func NewHandler(osc TargetStore) *Handler {
	return &Handler{osc: osc}
}

func (h *Handler) GetOSCHandler(w http.ResponseWriter, r *http.Request) {
	host, port := h.osc.Target()
	_ = json.Write(w, http.StatusOK, oscSettings{Host: host, Port: port})
}

// UpdateOSCHandler retargets trigger output; the next trigger goes to the
// new address.
func (h *Handler) UpdateOSCHandler(w http.ResponseWriter, r *http.Request) {
	var req oscSettings
	if err := json.Read(r, &req); err != nil {
		if json.IsBodyTooLarge(err) {
			json.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		json.WriteValidationError(w, err)
		return
	}

	if err := h.osc.SetTarget(req.Host, req.Port); err != nil {
		json.WriteValidationError(w, err)
		return
	}
	_ = json.Write(w, http.StatusOK, req)
}

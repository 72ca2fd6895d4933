package health

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hilthontt/remotepad/internal/infrastructure/json"
)

var startTime = time.Now()

type Handler struct {
	draining atomic.Bool
}

func NewHandler() *Handler {
	return &Handler{}
}

// GetHealth answers the health check the desktop app runs against a hosted relay
// before choosing it. A relay that is draining reports unhealthy.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.draining.Load() {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	_ = json.Write(w, code, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	})
}

// SetDraining flips the health check to unhealthy while the server shuts down.
func (h *Handler) SetDraining() {
	h.draining.Store(true)
}

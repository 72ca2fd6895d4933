package relay

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
)

// Acceptor takes ownership of an upgraded socket.
type Acceptor interface {
	Accept(conn *websocket.Conn, sourceKey string) *ws.Client
}

type Handler struct {
	core     Acceptor
	limiter  ratelimiter.Limiter
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewHandler accepts any origin when allowedOrigins is empty or holds "*".
func NewHandler(core Acceptor, limiter ratelimiter.Limiter, allowedOrigins []string, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		core:    core,
		limiter: limiter,
		logger:  logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			CheckOrigin:      originChecker(allowedOrigins),
		},
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.logger.Warn(logging.Relay, logging.Connection, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.ClientIp:     r.RemoteAddr,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	source := ratelimiter.RemoteIP(r.RemoteAddr)
	if h.limiter != nil {
		source = h.limiter.GetSourceKey(r)
	}
	h.core.Accept(conn, source)
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// native clients send no Origin
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

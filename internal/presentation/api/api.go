package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/remotepad/internal/infrastructure/configs"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/metrics"
	"github.com/hilthontt/remotepad/internal/infrastructure/ratelimiter"
	healthHandler "github.com/hilthontt/remotepad/internal/presentation/handler/health"
	relayHandler "github.com/hilthontt/remotepad/internal/presentation/handler/relay"
	roomHandler "github.com/hilthontt/remotepad/internal/presentation/handler/rooms"
	settingsHandler "github.com/hilthontt/remotepad/internal/presentation/handler/settings"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 5 * time.Second

type Application struct {
	config          configs.HTTPConfig
	healthHandler   *healthHandler.Handler
	relayHandler    *relayHandler.Handler
	roomHandler     *roomHandler.Handler
	settingsHandler *settingsHandler.Handler
	metrics         *metrics.Metrics
	logger          logging.Logger
	ratelimiter     ratelimiter.Limiter
}

type Option func(*Application)

// WithRooms exposes the read-only room lookup.
func WithRooms(h *roomHandler.Handler) Option {
	return func(app *Application) { app.roomHandler = h }
}

// WithSettings exposes the desktop's OSC settings. The standalone relay has
// none.
func WithSettings(h *settingsHandler.Handler) Option {
	return func(app *Application) { app.settingsHandler = h }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(app *Application) { app.metrics = m }
}

func WithRateLimiter(l ratelimiter.Limiter) Option {
	return func(app *Application) { app.ratelimiter = l }
}

func NewApplication(
	config configs.HTTPConfig,
	healthHandler *healthHandler.Handler,
	relayHandler *relayHandler.Handler,
	logger logging.Logger,
	opts ...Option,
) *Application {
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &Application{
		config:        config,
		healthHandler: healthHandler,
		relayHandler:  relayHandler,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(app.enableCors)

	r.Get("/ws", app.relayHandler.ServeWS)
	if app.metrics != nil {
		r.Handle("/metrics", app.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/health", app.healthHandler.GetHealth)
		r.Get("/healthz", app.healthHandler.GetHealth)
		r.Get("/ready", app.healthHandler.GetHealth)
		r.Get("/live", app.healthHandler.GetHealth)

		if app.roomHandler != nil {
			r.With(app.rateLimiterMiddleware).Get("/rooms/{code}", app.roomHandler.GetRoomHandler)
		}

		if app.settingsHandler != nil {
			r.Route("/settings/osc", func(r chi.Router) {
				r.Get("/", app.settingsHandler.GetOSCHandler)
				r.Put("/", app.settingsHandler.UpdateOSCHandler)
			})
		}
	})

	// a socket would hold its span open for the whole session
	return otelhttp.NewHandler(r, "remotepad.http",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/ws" && r.URL.Path != "/metrics"
		}),
	)
}

// Server wires the mounted routes to a listener. Health reports unhealthy
// from the moment shutdown begins.
func (app *Application) Server() *Server {
	srv := NewServer(app.config, app.Mount(), app.logger)
	srv.srv.RegisterOnShutdown(app.healthHandler.SetDraining)
	return srv
}

// Run serves until ctx is cancelled, then drains for a few seconds.
func (app *Application) Run(ctx context.Context) error {
	srv := app.Server()
	if err := srv.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-srv.Err():
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Server owns the listener. Start returns once the port is bound, so a
// caller can advertise it straight away.
type Server struct {
	srv    *http.Server
	logger logging.Logger

	mu   sync.Mutex
	addr string
	errC chan error
}

func NewServer(config configs.HTTPConfig, handler http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:         config.Addr(),
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  time.Minute,
		},
		logger: logger,
		errC:   make(chan error, 1),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
		logging.HostIp: s.Addr(),
	})

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errC <- err
		}
	}()
	return nil
}

// Addr is the bound address, useful when the configured port is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Err delivers a serve failure after Start.
func (s *Server) Err() <-chan error {
	return s.errC
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		logging.HostIp: s.Addr(),
	})
	return nil
}

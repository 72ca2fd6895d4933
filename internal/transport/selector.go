// Package transport decides how phones reach this desktop: a hosted relay, a
// public tunnel to the embedded relay, or the embedded relay on the local
// network.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/metrics"
	"github.com/hilthontt/remotepad/internal/infrastructure/notify"
	"github.com/hilthontt/remotepad/internal/infrastructure/tunnel"
)

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 5 * time.Second

	healthTimeout = 3 * time.Second
	stopTimeout   = 5 * time.Second
)

var ErrTransportUnavailable = errors.New("transport unavailable")

// LocalServer is the embedded relay. Start returns once the listener is
// bound.
type LocalServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// HealthCheck reports whether a hosted relay is usable.
type HealthCheck func(ctx context.Context, baseURL string) error

type Config struct {
	Port           int
	HostedRelayURL string
	TunnelEnabled  bool
	MaxAttempts    int
	RetryDelay     time.Duration
}

type Selector struct {
	cfg      Config
	server   LocalServer
	provider tunnel.Provider
	health   HealthCheck
	metrics  *metrics.Metrics
	logger   logging.Logger

	state   atomic.Int32
	binding atomic.Pointer[Binding]
	changes *notify.Hub[URLChange]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	first     chan struct{}
	firstOnce sync.Once

	stopOnce sync.Once
	stopErr  error
}

type Option func(*Selector)

func WithHealthCheck(h HealthCheck) Option {
	return func(s *Selector) { s.health = h }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Selector) { s.metrics = m }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

func New(cfg Config, server LocalServer, provider tunnel.Provider, opts ...Option) *Selector {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Selector{
		cfg:      cfg,
		server:   server,
		provider: provider,
		health:   CheckHealth,
		changes:  notify.NewHub[URLChange](),
		ctx:      ctx,
		cancel:   cancel,
		first:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	return s
}

// Start brings up the local relay and returns once a first URL is
// advertised. Tunnel retries continue in the background.
func (s *Selector) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Idle), int32(StartingLocalServer)) {
		return fmt.Errorf("transport already started (%s)", s.State())
	}
	s.recordState(StartingLocalServer)

	if err := s.server.Start(); err != nil {
		s.setState(Stopped)
		return fmt.Errorf("start local relay: %w", err)
	}

	if s.cfg.HostedRelayURL != "" {
		hctx, cancel := context.WithTimeout(ctx, healthTimeout)
		err := s.health(hctx, s.cfg.HostedRelayURL)
		cancel()
		if err == nil {
			s.setState(HostedRelay)
			s.advertise(&Binding{
				LocalPort: s.cfg.Port,
				PublicURL: strings.TrimSuffix(s.cfg.HostedRelayURL, "/"),
				Hosted:    true,
			})
			s.setState(Ready)
			return nil
		}
		s.logger.Warn(logging.Tunnel, logging.ExternalService, "hosted relay unavailable", map[logging.ExtraKey]any{
			logging.URL:          s.cfg.HostedRelayURL,
			logging.ErrorMessage: err.Error(),
		})
	}

	if !s.cfg.TunnelEnabled || s.provider == nil {
		s.advertiseLocal(0)
		s.setState(Ready)
		return nil
	}

	s.setState(AwaitingTunnel)
	s.wg.Add(1)
	go s.tunnelLoop()

	select {
	case <-s.first:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Selector) State() State {
	return State(s.state.Load())
}

// CurrentURL is the advertised relay base URL, empty before Start.
func (s *Selector) CurrentURL() string {
	if b := s.binding.Load(); b != nil {
		return b.PublicURL
	}
	return ""
}

func (s *Selector) Binding() (Binding, bool) {
	b := s.binding.Load()
	if b == nil {
		return Binding{}, false
	}
	return *b, true
}

// Subscribe delivers every later URL change. Call cancel when done.
func (s *Selector) Subscribe() (<-chan URLChange, func()) {
	return s.changes.Subscribe()
}

// Disconnect tears down the tunnel and the local relay. Safe to call more
// than once.
func (s *Selector) Disconnect() error {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if s.State() != Idle {
			s.stopErr = s.server.Shutdown(ctx)
		}

		s.setState(Stopped)
		s.changes.Close()
	})
	return s.stopErr
}

func (s *Selector) tunnelLoop() {
	defer s.wg.Done()

	for {
		tun, attempts, err := s.establish()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn(logging.Tunnel, logging.Reconnect, "tunnel attempts exhausted, staying local", map[logging.ExtraKey]any{
				logging.Attempt:      attempts,
				logging.ErrorMessage: err.Error(),
			})
			s.advertiseLocal(attempts)
			s.setState(Ready)
			return
		}

		s.advertise(&Binding{LocalPort: s.cfg.Port, PublicURL: strings.TrimSuffix(tun.URL(), "/"), AttemptCount: attempts})
		s.setState(Ready)

		select {
		case <-s.ctx.Done():
			_ = tun.Close()
			return
		case <-tun.Done():
		}

		s.logger.Warn(logging.Tunnel, logging.Reconnect, "tunnel closed", map[logging.ExtraKey]any{
			logging.ErrorMessage: fmt.Sprint(tun.Err()),
		})
		s.setState(Reconnecting)
		s.advertiseLocal(0)
	}
}

// establish runs one round of up to MaxAttempts tries, RetryDelay apart. The
// first failure of a round advertises the local URL right away.
func (s *Selector) establish() (tunnel.Tunnel, int, error) {
	attempts := 0
	op := func() (tunnel.Tunnel, error) {
		attempts++
		tun, err := s.provider.Open(s.ctx, s.cfg.Port)
		s.metrics.TunnelAttempt(err == nil)
		if err != nil {
			s.logger.Warn(logging.Tunnel, logging.Reconnect, "tunnel attempt failed", map[logging.ExtraKey]any{
				logging.Attempt:      attempts,
				logging.ErrorMessage: err.Error(),
			})
			if attempts == 1 && s.State() == AwaitingTunnel {
				s.advertiseLocal(attempts)
				s.setState(Reconnecting)
			}
			if s.ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return tun, nil
	}

	tun, err := backoff.Retry(s.ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
	)
	if err != nil {
		return nil, attempts, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return tun, attempts, nil
}

func (s *Selector) advertiseLocal(attempts int) {
	s.advertise(&Binding{
		LocalPort:    s.cfg.Port,
		PublicURL:    fmt.Sprintf("http://localhost:%d", s.cfg.Port),
		AttemptCount: attempts,
		Local:        true,
	})
}

func (s *Selector) advertise(b *Binding) {
	prev := s.binding.Swap(b)
	defer s.firstOnce.Do(func() { close(s.first) })

	if prev != nil && prev.PublicURL == b.PublicURL {
		return
	}

	s.logger.Info(logging.Tunnel, logging.Startup, "advertising relay url", map[logging.ExtraKey]any{
		logging.URL: b.PublicURL,
		"local":     b.Local,
	})
	s.changes.Publish(URLChange{URL: b.PublicURL, State: s.State(), Local: b.Local})
}

func (s *Selector) setState(st State) {
	s.state.Store(int32(st))
	s.recordState(st)
}

func (s *Selector) recordState(st State) {
	s.metrics.SetTransportState(st.String(), stateNames)
}

// CheckHealth expects {"status":"ok"} from <baseURL>/api/health.
func CheckHealth(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/api/health", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<12)).Decode(&body); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("relay reports %q", body.Status)
	}
	return nil
}

// Package tunnel exposes a local port under a public URL through a
// localtunnel-compatible server.
package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultServer = "https://localtunnel.me"

	maxConnections  = 10
	localRetryDelay = time.Second
	requestTimeout  = 15 * time.Second
)

var ErrClosed = errors.New("tunnel closed")

// Tunnel is one live public binding. Done is closed when the binding is lost
// or closed.
type Tunnel interface {
	URL() string
	Done() <-chan struct{}
	Err() error
	Close() error
}

type Provider interface {
	Open(ctx context.Context, localPort int) (Tunnel, error)
}

type assignment struct {
	ID           string `json:"id"`
	Port         int    `json:"port"`
	MaxConnCount int    `json:"max_conn_count"`
	URL          string `json:"url"`
	Message      string `json:"message"`
}

// Localtunnel asks the server for a subdomain, then keeps a pool of raw TCP
// connections to it, each spliced onto a fresh connection to the local port.
type Localtunnel struct {
	server     string
	subdomain  string
	localHost  string
	httpClient *http.Client
	dialer     net.Dialer
	logger     logging.Logger
}

type Option func(*Localtunnel)

func WithSubdomain(s string) Option {
	return func(l *Localtunnel) { l.subdomain = s }
}

func WithLocalHost(h string) Option {
	return func(l *Localtunnel) { l.localHost = h }
}

func WithHTTPClient(c *http.Client) Option {
	return func(l *Localtunnel) { l.httpClient = c }
}

func NewLocaltunnel(server string, logger logging.Logger, opts ...Option) *Localtunnel {
	if server == "" {
		server = DefaultServer
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Localtunnel{
		server:    server,
		localHost: "127.0.0.1",
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		dialer: net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second},
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Localtunnel) Open(ctx context.Context, localPort int) (Tunnel, error) {
	base, err := url.Parse(l.server)
	if err != nil {
		return nil, fmt.Errorf("parse tunnel server: %w", err)
	}

	a, err := l.requestAssignment(ctx, base)
	if err != nil {
		return nil, err
	}

	conns := a.MaxConnCount
	if conns < 1 {
		conns = 1
	}
	if conns > maxConnections {
		conns = maxConnections
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)

	t := &tunnel{
		url:        a.URL,
		remoteAddr: net.JoinHostPort(base.Hostname(), strconv.Itoa(a.Port)),
		localAddr:  net.JoinHostPort(l.localHost, strconv.Itoa(localPort)),
		dialer:     l.dialer,
		logger:     l.logger,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	for i := 0; i < conns; i++ {
		g.Go(func() error { return t.worker(gctx) })
	}

	go func() {
		err := g.Wait()
		if err == nil {
			err = ErrClosed
		}
		t.finish(err)
	}()

	l.logger.Info(logging.Tunnel, logging.Startup, "tunnel open", map[logging.ExtraKey]any{
		logging.URL:   a.URL,
		"connections": conns,
	})
	return t, nil
}

func (l *Localtunnel) requestAssignment(ctx context.Context, base *url.URL) (assignment, error) {
	u := *base
	if l.subdomain != "" {
		u.Path = "/" + l.subdomain
	} else {
		u.Path = "/"
		u.RawQuery = "new"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return assignment{}, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return assignment{}, fmt.Errorf("request tunnel: %w", err)
	}
	defer resp.Body.Close()

	var a assignment
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&a); err != nil {
		return assignment{}, fmt.Errorf("decode tunnel assignment (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return assignment{}, fmt.Errorf("tunnel server returned %d: %s", resp.StatusCode, a.Message)
	}
	if a.URL == "" || a.Port == 0 {
		return assignment{}, fmt.Errorf("tunnel server gave no binding: %s", a.Message)
	}
	return a, nil
}

type tunnel struct {
	url        string
	remoteAddr string
	localAddr  string
	dialer     net.Dialer
	logger     logging.Logger

	cancel context.CancelFunc
	once   sync.Once
	mu     sync.Mutex
	err    error
	done   chan struct{}
}

func (t *tunnel) URL() string           { return t.url }
func (t *tunnel) Done() <-chan struct{} { return t.done }

func (t *tunnel) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *tunnel) Close() error {
	t.cancel()
	<-t.done
	return nil
}

func (t *tunnel) finish(err error) {
	t.once.Do(func() {
		t.cancel()
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

// worker keeps one server connection spliced to the local port. Losing the
// server is fatal for the whole tunnel; losing the local side is retried.
func (t *tunnel) worker(ctx context.Context) error {
	for {
		remote, err := t.dialer.DialContext(ctx, "tcp", t.remoteAddr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dial tunnel server: %w", err)
		}

		local, err := t.dialer.DialContext(ctx, "tcp", t.localAddr)
		if err != nil {
			_ = remote.Close()
			t.logger.Warn(logging.Tunnel, logging.Connection, "local dial failed", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(localRetryDelay):
			}
			continue
		}

		splice(ctx, remote, local)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func splice(ctx context.Context, a, b net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		_ = a.Close()
		_ = b.Close()
	})
	defer stop()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(a, b)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(b, a)
		done <- struct{}{}
	}()

	<-done
	_ = a.Close()
	_ = b.Close()
	<-done
}

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hilthontt/remotepad/internal/infrastructure/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	starts    atomic.Int32
	shutdowns atomic.Int32
	startErr  error
}

func (f *fakeServer) Start() error {
	f.starts.Add(1)
	return f.startErr
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	return nil
}

type fakeTunnel struct {
	url  string
	done chan struct{}
	once sync.Once
}

func newFakeTunnel(url string) *fakeTunnel {
	return &fakeTunnel{url: url, done: make(chan struct{})}
}

func (t *fakeTunnel) URL() string           { return t.url }
func (t *fakeTunnel) Done() <-chan struct{} { return t.done }
func (t *fakeTunnel) Err() error            { return tunnel.ErrClosed }
func (t *fakeTunnel) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

// fakeProvider returns the queued results in order, then keeps failing.
type fakeProvider struct {
	mu       sync.Mutex
	results  []tunnel.Tunnel
	attempts int
}

func (p *fakeProvider) Open(ctx context.Context, port int) (tunnel.Tunnel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if len(p.results) == 0 {
		return nil, errors.New("connection refused")
	}
	next := p.results[0]
	p.results = p.results[1:]
	if next == nil {
		return nil, errors.New("connection refused")
	}
	return next, nil
}

func (p *fakeProvider) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func fastConfig() Config {
	return Config{Port: 3001, TunnelEnabled: true, MaxAttempts: 5, RetryDelay: 5 * time.Millisecond}
}

func unhealthy(context.Context, string) error { return errors.New("down") }

func nextChange(t *testing.T, ch <-chan URLChange) URLChange {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no url change")
		return URLChange{}
	}
}

func TestTunnelFailuresSettleInLocalMode(t *testing.T) {
	srv := &fakeServer{}
	prov := &fakeProvider{}
	s := New(fastConfig(), srv, prov)
	defer s.Disconnect()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "http://localhost:3001", s.CurrentURL())

	require.Eventually(t, func() bool {
		b, ok := s.Binding()
		return ok && b.AttemptCount == 5 && s.State() == Ready
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5, prov.Attempts())
	assert.Equal(t, "http://localhost:3001", s.CurrentURL())

	b, _ := s.Binding()
	assert.True(t, b.Local)
	assert.Equal(t, 3001, b.LocalPort)
}

func TestTunnelSuccessAdvertisesPublicURL(t *testing.T) {
	prov := &fakeProvider{results: []tunnel.Tunnel{newFakeTunnel("https://brave-fox.loca.lt/")}}
	s := New(fastConfig(), &fakeServer{}, prov)
	defer s.Disconnect()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "https://brave-fox.loca.lt", s.CurrentURL())
	assert.Equal(t, Ready, s.State())

	b, ok := s.Binding()
	require.True(t, ok)
	assert.Equal(t, 1, b.AttemptCount)
	assert.False(t, b.Local)
}

func TestLateTunnelSuccessReplacesLocalURL(t *testing.T) {
	prov := &fakeProvider{results: []tunnel.Tunnel{nil, nil, newFakeTunnel("https://third.loca.lt")}}
	s := New(fastConfig(), &fakeServer{}, prov)
	defer s.Disconnect()

	changes, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, "http://localhost:3001", nextChange(t, changes).URL)
	c := nextChange(t, changes)
	assert.Equal(t, "https://third.loca.lt", c.URL)
	assert.False(t, c.Local)
	assert.Equal(t, 3, prov.Attempts())
}

func TestTunnelLossStartsFreshRound(t *testing.T) {
	first := newFakeTunnel("https://first.loca.lt")
	prov := &fakeProvider{results: []tunnel.Tunnel{first, nil, newFakeTunnel("https://second.loca.lt")}}
	s := New(fastConfig(), &fakeServer{}, prov)
	defer s.Disconnect()

	changes, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "https://first.loca.lt", nextChange(t, changes).URL)

	_ = first.Close()

	lost := nextChange(t, changes)
	assert.True(t, lost.Local)
	assert.Equal(t, "https://second.loca.lt", nextChange(t, changes).URL)

	b, _ := s.Binding()
	assert.Equal(t, 2, b.AttemptCount)
}

func TestMultipleSubscribersAllSeeChanges(t *testing.T) {
	prov := &fakeProvider{results: []tunnel.Tunnel{newFakeTunnel("https://x.loca.lt")}}
	s := New(fastConfig(), &fakeServer{}, prov)
	defer s.Disconnect()

	a, cancelA := s.Subscribe()
	defer cancelA()
	b, cancelB := s.Subscribe()
	defer cancelB()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "https://x.loca.lt", nextChange(t, a).URL)
	assert.Equal(t, "https://x.loca.lt", nextChange(t, b).URL)
}

func TestHostedRelayPreferredWhenHealthy(t *testing.T) {
	prov := &fakeProvider{}
	healthy := func(context.Context, string) error { return nil }
	cfg := fastConfig()
	cfg.HostedRelayURL = "https://relay.remotepad.app/"

	s := New(cfg, &fakeServer{}, prov, WithHealthCheck(healthy))
	defer s.Disconnect()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "https://relay.remotepad.app", s.CurrentURL())
	assert.Equal(t, Ready, s.State())
	assert.Zero(t, prov.Attempts())
}

func TestUnhealthyHostedRelayFallsBackToTunnel(t *testing.T) {
	prov := &fakeProvider{results: []tunnel.Tunnel{newFakeTunnel("https://y.loca.lt")}}
	cfg := fastConfig()
	cfg.HostedRelayURL = "https://relay.remotepad.app"

	s := New(cfg, &fakeServer{}, prov, WithHealthCheck(unhealthy))
	defer s.Disconnect()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "https://y.loca.lt", s.CurrentURL())
}

func TestTunnelDisabledIsLocalOnly(t *testing.T) {
	prov := &fakeProvider{}
	cfg := fastConfig()
	cfg.TunnelEnabled = false

	s := New(cfg, &fakeServer{}, prov)
	defer s.Disconnect()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "http://localhost:3001", s.CurrentURL())
	assert.Zero(t, prov.Attempts())
}

func TestStartFailsWhenLocalServerFails(t *testing.T) {
	s := New(fastConfig(), &fakeServer{startErr: errors.New("address in use")}, &fakeProvider{})
	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "address in use")
	assert.Equal(t, Stopped, s.State())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	srv := &fakeServer{}
	tun := newFakeTunnel("https://z.loca.lt")
	s := New(fastConfig(), srv, &fakeProvider{results: []tunnel.Tunnel{tun}})

	changes, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Disconnect())
	require.NoError(t, s.Disconnect())

	assert.Equal(t, int32(1), srv.shutdowns.Load())
	assert.Equal(t, Stopped, s.State())

	select {
	case <-tun.Done():
	default:
		t.Fatal("tunnel left open")
	}

	// drain, then the hub closes the channel
	for range changes {
	}
}

func TestCheckHealth(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"ok","uptime":"1s"}`)
	}))
	defer ok.Close()
	assert.NoError(t, CheckHealth(context.Background(), ok.URL+"/"))

	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"status":"unhealthy"}`)
	}))
	defer sick.Close()
	assert.Error(t, CheckHealth(context.Background(), sick.URL))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_tunnel", AwaitingTunnel.String())
	assert.Equal(t, "unknown", State(42).String())
}

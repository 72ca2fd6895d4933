package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/remotepad/internal/infrastructure/configs"
	"github.com/hilthontt/remotepad/internal/infrastructure/metrics"
	"github.com/hilthontt/remotepad/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/remotepad/internal/infrastructure/repository"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
	"github.com/hilthontt/remotepad/internal/infrastructure/wsclient"
	healthHandler "github.com/hilthontt/remotepad/internal/presentation/handler/health"
	relayHandler "github.com/hilthontt/remotepad/internal/presentation/handler/relay"
	roomHandler "github.com/hilthontt/remotepad/internal/presentation/handler/rooms"
	settingsHandler "github.com/hilthontt/remotepad/internal/presentation/handler/settings"
	"github.com/hilthontt/remotepad/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	mu   sync.Mutex
	host string
	port int
}

func (f *fakeTarget) Target() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.host, f.port
}

func (f *fakeTarget) SetTarget(host string, port int) error {
	if port <= 0 {
		return assert.AnError
	}
	f.mu.Lock()
	f.host, f.port = host, port
	f.mu.Unlock()
	return nil
}

type fixture struct {
	app    *Application
	server *httptest.Server
	osc    *fakeTarget
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	registry := repository.NewRoomRegistry(repository.WithCodeGenerator(func() (string, error) {
		return "A7F3K9", nil
	}))
	core := ws.NewCore(ws.Options{Registry: registry})
	ctx, cancel := context.WithCancel(context.Background())
	go core.Run(ctx)

	osc := &fakeTarget{host: "127.0.0.1", port: 9000}
	opts = append([]Option{
		WithRooms(roomHandler.NewHandler(registry)),
		WithSettings(settingsHandler.NewHandler(osc)),
		WithMetrics(metrics.New()),
	}, opts...)

	app := NewApplication(
		configs.HTTPConfig{AllowedOrigins: []string{"https://remotepad.app"}},
		healthHandler.NewHandler(),
		relayHandler.NewHandler(core, nil, nil, nil),
		nil,
		opts...,
	)
	srv := httptest.NewServer(app.Mount())

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-core.Done()
	})
	return &fixture{app: app, server: srv, osc: osc}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthChecks(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/health", "/api/healthz", "/api/ready", "/api/live"} {
		resp := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "ok", decode(t, resp)["status"], path)
	}

	require.NoError(t, transport.CheckHealth(context.Background(), f.server.URL))
}

func TestRoomLookupFollowsRelay(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/rooms/A7F3K9", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/rooms/abc", "").StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	host, err := wsclient.Dial(ctx, f.server.URL, nil)
	require.NoError(t, err)
	defer host.Close()

	ack, err := host.Request(ctx, ws.CreateRoom, nil)
	require.NoError(t, err)
	require.Equal(t, "A7F3K9", ack.RoomCode)

	resp := f.do(t, http.MethodGet, "/api/rooms/a7f3k9", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "A7F3K9", body["code"])
	assert.Equal(t, false, body["joined"])
	assert.NotContains(t, body, "hostId")
}

func TestRoomLookupIsRateLimited(t *testing.T) {
	limiter := ratelimiter.New(ratelimiter.Options{MaxRatePerSecond: 1, MaxBurst: 1, CacheTTL: time.Minute})
	f := newFixture(t, WithRateLimiter(limiter))

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/rooms/A7F3K9", "").StatusCode)

	resp := f.do(t, http.MethodGet, "/api/rooms/A7F3K9", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestOSCSettings(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/settings/osc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"host": "127.0.0.1", "port": float64(9000)}, decode(t, resp))

	resp = f.do(t, http.MethodPut, "/api/settings/osc", `{"host":"10.0.0.5","port":8000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	host, port := f.osc.Target()
	assert.Equal(t, "10.0.0.5", host)
	assert.Equal(t, 8000, port)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/settings/osc", `{"host":"x","port":0}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/settings/osc", `{"bogus":true}`).StatusCode)
}

func TestCorsPreflight(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/settings/osc", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://remotepad.app")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://remotepad.app", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerBindsAndDrains(t *testing.T) {
	app := NewApplication(
		configs.HTTPConfig{Host: "127.0.0.1", Port: 0},
		healthHandler.NewHandler(),
		relayHandler.NewHandler(ws.NewCore(ws.Options{Registry: repository.NewRoomRegistry()}), nil, nil, nil),
		nil,
	)
	srv := app.Server()
	require.NoError(t, srv.Start())
	require.NotEmpty(t, srv.Addr())

	base := "http://" + srv.Addr()
	require.NoError(t, transport.CheckHealth(context.Background(), base))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Error(t, transport.CheckHealth(context.Background(), base))
}

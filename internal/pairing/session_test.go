package pairing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
	"github.com/hilthontt/remotepad/internal/infrastructure/wsclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	relay  string
	sink   *recordingSink
	host   *Host
	hostEv <-chan Event
	client *Client
}

func startHost(t *testing.T, codes ...string) *session {
	t.Helper()

	relay := startRelay(t, codes...)
	rec := &recordingSink{}
	host := NewHost(HostConfig{
		RelayURL:         relay,
		ClientBaseURL:    "https://remote.example",
		DefaultServerURL: relay,
	}, NewDispatcher(rec, rec), nil)

	events, cancel := host.Events()
	t.Cleanup(cancel)

	require.NoError(t, host.Start(context.Background()))
	t.Cleanup(func() { _ = host.Close() })

	client := NewClient(ClientConfig{DefaultServerURL: relay, ConnectTimeout: 3 * time.Second}, nil)
	t.Cleanup(client.Disconnect)

	return &session{relay: relay, sink: rec, host: host, hostEv: events, client: client}
}

func (s *session) pair(t *testing.T, code string) {
	t.Helper()
	require.NoError(t, s.client.Connect(context.Background(), code, ""))
	joined := waitEvent(t, s.hostEv, EventClientJoined)
	assert.NotEmpty(t, joined.PeerID)
}

func (s *session) waitCalls(t *testing.T, want ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(s.sink.Calls()) >= len(want)
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, s.sink.Calls())
}

func TestPhoneMoveReachesDesktopSink(t *testing.T) {
	s := startHost(t, "A7F3K9")
	assert.Equal(t, "A7F3K9", s.host.Code())
	assert.Equal(t, "https://remote.example/A7F3K9", s.host.PairingURL())

	s.pair(t, "a7f3k9")
	assert.Equal(t, Connected, s.client.State())
	assert.Equal(t, "A7F3K9", s.client.Code())

	require.NoError(t, s.client.Send(domain.MouseMove{DX: 5, DY: -3}))
	s.waitCalls(t, "move 5 -3")
}

func TestBrowserOSCAliasTriggersDefaultAddress(t *testing.T) {
	s := startHost(t, "A7F3K9")
	s.pair(t, "A7F3K9")

	s.client.mu.Lock()
	conn := s.client.conn
	s.client.mu.Unlock()
	require.NoError(t, conn.Send(ws.RemoteMessage, json.RawMessage(`{"type":"osc","trigger":2}`)))

	s.waitCalls(t, "trigger /remote/osc/2 0")
}

func TestJoinUnknownCodeFails(t *testing.T) {
	s := startHost(t, "A7F3K9")

	err := s.client.Connect(context.Background(), "ZZZZZZ", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	var ackErr *wsclient.AckError
	require.ErrorAs(t, err, &ackErr)
	assert.Equal(t, ws.JoinFailedText, ackErr.Message)
	assert.Equal(t, Error, s.client.State())
}

func TestUnreachableRelayIsTransportError(t *testing.T) {
	c := NewClient(ClientConfig{ConnectTimeout: time.Second}, nil)
	err := c.Connect(context.Background(), "A7F3K9", "http://127.0.0.1:1")
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestPingReportsLatency(t *testing.T) {
	s := startHost(t, "A7F3K9")
	s.pair(t, "A7F3K9")

	events, cancel := s.client.Subscribe()
	defer cancel()

	require.NoError(t, s.client.Ping())
	e := waitEvent(t, events, EventLatency)
	assert.GreaterOrEqual(t, e.LatencyMs, int64(0))
	assert.Empty(t, s.sink.Calls())
}

func TestRegenerateDropsPhone(t *testing.T) {
	s := startHost(t, "A7F3K9", "B8G4M2")
	s.pair(t, "A7F3K9")

	events, cancel := s.client.Subscribe()
	defer cancel()

	require.NoError(t, s.host.Regenerate(context.Background()))
	assert.Equal(t, "B8G4M2", s.host.Code())

	closed := waitEvent(t, events, EventRoomClosed)
	assert.Equal(t, "A7F3K9", closed.Code)
	require.Eventually(t, func() bool { return s.client.State() == Disconnected }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, s.client.Connect(context.Background(), "B8G4M2", ""))
	waitEvent(t, s.hostEv, EventClientJoined)
}

func TestHostCloseEndsPhoneSession(t *testing.T) {
	s := startHost(t, "A7F3K9")
	s.pair(t, "A7F3K9")

	events, cancel := s.client.Subscribe()
	defer cancel()

	require.NoError(t, s.host.Close())
	waitEvent(t, events, EventRoomClosed)
}

func TestPhoneLeavingIsReportedToHost(t *testing.T) {
	s := startHost(t, "A7F3K9")
	s.pair(t, "A7F3K9")

	s.client.Disconnect()
	waitEvent(t, s.hostEv, EventPeerDisconnected)
	assert.Empty(t, s.host.PeerID())
}

func TestSetPublicURLReissuesCode(t *testing.T) {
	s := startHost(t, "A7F3K9")

	s.host.SetPublicURL("https://abc.loca.lt")
	e := waitEvent(t, s.hostEv, EventCodeIssued)
	for e.URL == "https://remote.example/A7F3K9" {
		e = waitEvent(t, s.hostEv, EventCodeIssued)
	}
	assert.Equal(t, "A7F3K9", e.Code)
	assert.Contains(t, e.URL, "server=https%3A%2F%2Fabc.loca.lt")
	assert.Contains(t, e.URL, "room=A7F3K9")
}

func TestHostReconnectsAfterRelayRestart(t *testing.T) {
	relay := startRestartableRelay(t, "A7F3K9")
	rec := &recordingSink{}
	host := NewHost(HostConfig{
		RelayURL:         relay.url,
		ClientBaseURL:    "https://remote.example",
		DefaultServerURL: relay.url,
	}, NewDispatcher(rec, rec), nil)
	t.Cleanup(func() { _ = host.Close() })

	require.NoError(t, host.Start(context.Background()))
	require.Equal(t, "A7F3K9", host.Code())

	relay.restart("B8G4M2")

	require.Eventually(t, func() bool {
		return host.State() == Disconnected
	}, 3*time.Second, 10*time.Millisecond)
	assert.Empty(t, host.Code())

	require.NoError(t, host.Regenerate(context.Background()))
	assert.Equal(t, Connected, host.State())
	assert.Equal(t, "B8G4M2", host.Code())

	client := NewClient(ClientConfig{DefaultServerURL: relay.url, ConnectTimeout: 3 * time.Second}, nil)
	t.Cleanup(client.Disconnect)
	require.NoError(t, client.Connect(context.Background(), "B8G4M2", ""))
	require.NoError(t, client.Send(domain.MouseMove{DX: 1, DY: 2}))

	require.Eventually(t, func() bool {
		return len(rec.Calls()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"move 1 2"}, rec.Calls())
}

func TestHostStartAgainReplacesLiveSession(t *testing.T) {
	s := startHost(t, "A7F3K9", "B8G4M2")
	require.Equal(t, "A7F3K9", s.host.Code())

	require.NoError(t, s.host.Start(context.Background()))
	assert.Equal(t, Connected, s.host.State())
	assert.Equal(t, "B8G4M2", s.host.Code())
}

func TestConnectWithoutAckTimesOut(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	silent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(silent.Close)

	c := NewClient(ClientConfig{ConnectTimeout: 300 * time.Millisecond}, nil)
	t.Cleanup(c.Disconnect)

	started := time.Now()
	err := c.Connect(context.Background(), "A7F3K9", silent.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.Equal(t, Error, c.State())
	assert.Less(t, time.Since(started), 3*time.Second)
}

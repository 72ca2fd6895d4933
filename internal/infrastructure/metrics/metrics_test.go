package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()

	m.RoomCreated()
	m.RoomCreated()
	m.SetRoomsActive(1)
	m.RoomJoin("ok")
	m.RoomJoin("not_found")
	m.FrameRelayed("remote-message")
	m.TunnelAttempt(false)
	m.TunnelAttempt(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.roomsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.roomsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.roomJoins.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tunnelAttempts.WithLabelValues("failure")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "remotepad_rooms_created_total 2")
}

func TestSetTransportStateIsExclusive(t *testing.T) {
	m := New()
	states := []string{"Idle", "Ready", "Reconnecting"}

	m.SetTransportState("Ready", states)
	m.SetTransportState("Reconnecting", states)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.transportState.WithLabelValues("Ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transportState.WithLabelValues("Reconnecting")))
}

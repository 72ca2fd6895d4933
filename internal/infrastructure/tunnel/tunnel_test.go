package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portOf(t *testing.T, rawURL string) int {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	p, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return p
}

// fakeServer plays the localtunnel control endpoint and hands out a TCP
// listener the client connects back to.
func fakeServer(t *testing.T) (*httptest.Server, net.Listener, chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	paths := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"brave-fox","port":%d,"max_conn_count":1,"url":"https://brave-fox.loca.lt"}`,
			ln.Addr().(*net.TCPAddr).Port)
	}))
	t.Cleanup(srv.Close)

	return srv, ln, paths
}

func TestOpenSplicesPublicTrafficToLocalPort(t *testing.T) {
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "relay ok")
	}))
	defer local.Close()

	srv, ln, paths := fakeServer(t)
	lt := NewLocaltunnel(srv.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tun, err := lt.Open(ctx, portOf(t, local.URL))
	require.NoError(t, err)
	defer tun.Close()

	assert.Equal(t, "https://brave-fox.loca.lt", tun.URL())
	assert.Equal(t, "/?new", <-paths)

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))

	_, err = io.WriteString(conn, "GET /api/health HTTP/1.1\r\nHost: brave-fox.loca.lt\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "relay ok", string(body))
}

func TestOpenRequestsSubdomain(t *testing.T) {
	srv, _, paths := fakeServer(t)
	lt := NewLocaltunnel(srv.URL, nil, WithSubdomain("my-desk"))

	tun, err := lt.Open(context.Background(), 1)
	require.NoError(t, err)
	defer tun.Close()

	assert.Equal(t, "/my-desk", <-paths)
}

func TestLostServerEndsTunnel(t *testing.T) {
	srv, ln, _ := fakeServer(t)
	lt := NewLocaltunnel(srv.URL, nil)

	local, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer local.Close()

	tun, err := lt.Open(context.Background(), local.Addr().(*net.TCPAddr).Port)
	require.NoError(t, err)

	conn, err := ln.Accept()
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	require.NoError(t, conn.Close())

	select {
	case <-tun.Done():
		assert.Error(t, tun.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("tunnel did not notice the server going away")
	}
}

func TestCloseIsClean(t *testing.T) {
	srv, _, _ := fakeServer(t)
	tun, err := NewLocaltunnel(srv.URL, nil).Open(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, tun.Close())
	<-tun.Done()
	assert.ErrorIs(t, tun.Err(), ErrClosed)
}

func TestOpenFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"message":"no capacity"}`)
	}))
	defer srv.Close()

	_, err := NewLocaltunnel(srv.URL, nil).Open(context.Background(), 3001)
	assert.ErrorContains(t, err, "no capacity")
}

func TestOpenFailsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewLocaltunnel(addr, nil).Open(context.Background(), 3001)
	assert.Error(t, err)
}

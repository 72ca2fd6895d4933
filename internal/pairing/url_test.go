package pairing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientBase    = "https://remotepad.app/remote"
	testDefaultServer = "https://relay.remotepad.app"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name, server, want string
	}{
		{"explicit server", "https://brave-fox.loca.lt", "https://remotepad.app/remote?server=https%3A%2F%2Fbrave-fox.loca.lt&room=A7F3K9"},
		{"local server", "http://localhost:3001", "https://remotepad.app/remote?server=http%3A%2F%2Flocalhost%3A3001&room=A7F3K9"},
		{"default server", "https://relay.remotepad.app/", "https://remotepad.app/remote/A7F3K9"},
		{"no server", "", "https://remotepad.app/remote/A7F3K9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildURL(testClientBase+"/", tt.server, testDefaultServer, "A7F3K9"))
		})
	}
}

func TestParsePairingURLRoundTrip(t *testing.T) {
	server, code, err := ParsePairingURL(BuildURL(testClientBase, "http://localhost:3001", testDefaultServer, "A7F3K9"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3001", server)
	assert.Equal(t, "A7F3K9", code)

	server, code, err = ParsePairingURL("https://remotepad.app/remote/a7f3k9")
	require.NoError(t, err)
	assert.Empty(t, server)
	assert.Equal(t, "A7F3K9", code)
}

func TestParsePairingURLRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"https://remotepad.app/remote",
		"https://remotepad.app/remote/ABC",
		"https://remotepad.app/remote?room=O0O0O0",
		"://nope",
	} {
		_, _, err := ParsePairingURL(raw)
		assert.ErrorIs(t, err, ErrInvalidPairingURL, raw)
	}
}

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogParamsToZapParamsIsSorted(t *testing.T) {
	params := logParamsToZapParams(map[ExtraKey]any{
		RoomCode: "A7F3K9",
		ConnID:   "c-1",
		Attempt:  2,
	})

	assert.Equal(t, []any{"Attempt", 2, "ConnId", "c-1", "RoomCode", "A7F3K9"}, params)
}

func TestNewLoggerRejectsUnknownBackend(t *testing.T) {
	assert.Panics(t, func() {
		NewLogger(&LoggerConfig{Logger: "logrus"})
	})
}

func TestNopLoggerAcceptsNilExtra(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Info(General, Startup, "hello", nil)
		l.Warnf("value %d", 1)
	})
}

func TestFileOnlyWritesToRotatedFile(t *testing.T) {
	for _, backend := range []string{"zap", "zerolog"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			l := NewLogger(&LoggerConfig{FilePath: dir, Level: "info", Logger: backend, FileOnly: true})

			l.Info(Pairing, Session, "joined room", map[ExtraKey]any{RoomCode: "A7F3K9"})
			l.Debug(Pairing, Session, "below level", nil)

			raw, err := os.ReadFile(filepath.Join(dir, "remotepad.log"))
			require.NoError(t, err)
			assert.Contains(t, string(raw), "A7F3K9")
			assert.NotContains(t, string(raw), "below level")
		})
	}
}

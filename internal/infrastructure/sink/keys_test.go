package sink

import (
	"testing"

	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestLookupKey(t *testing.T) {
	tests := []struct {
		key   string
		code  uint16
		shift bool
		ok    bool
	}{
		{"Enter", keyEnter, false, true},
		{"ArrowLeft", keyLeft, false, true},
		{"a", 30, false, true},
		{"Q", 16, true, true},
		{"m", 50, false, true},
		{"1", 2, false, true},
		{"0", 11, false, true},
		{"!", 2, true, true},
		{"?", keySlash, true, true},
		{"F1", keyF1, false, true},
		{"F10", 68, false, true},
		{"MediaPlayPause", keyPlayPause, false, true},
		{"é", 0, false, false},
		{"Hyper", 0, false, false},
	}

	for _, tt := range tests {
		ks, ok := lookupKey(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		if tt.ok {
			assert.Equal(t, tt.code, ks.code, tt.key)
			assert.Equal(t, tt.shift, ks.shift, tt.key)
		}
	}
}

func TestButtonCode(t *testing.T) {
	code, ok := buttonCode(domain.ButtonRight)
	assert.True(t, ok)
	assert.Equal(t, uint16(btnRight), code)

	_, ok = buttonCode("thumb")
	assert.False(t, ok)
}

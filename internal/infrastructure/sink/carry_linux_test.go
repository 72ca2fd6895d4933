//go:build linux

package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCarryKeepsFraction(t *testing.T) {
	var rest float64

	assert.Equal(t, int32(0), carry(&rest, 0.4))
	assert.Equal(t, int32(1), carry(&rest, 0.7))
	assert.InDelta(t, 0.1, rest, 1e-9)

	assert.Equal(t, int32(-2), carry(&rest, -2.3))
	assert.InDelta(t, -0.2, rest, 1e-9)
}

func TestSupportedKeysAreUnique(t *testing.T) {
	seen := map[uint16]bool{}
	for _, c := range supportedKeys() {
		assert.False(t, seen[c], "duplicate %d", c)
		seen[c] = true
	}
	assert.True(t, seen[btnLeft])
	assert.True(t, seen[keyLeftShift])
}

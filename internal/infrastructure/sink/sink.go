// Package sink holds the destinations for decoded remote-control messages:
// input injection for pointer and keyboard, OSC for triggers.
package sink

import (
	"errors"

	"github.com/hilthontt/remotepad/internal/domain"
)

var ErrUnsupported = errors.New("input sink not supported on this platform")

type InputSink interface {
	MoveCursor(dx, dy float64) error
	Click(button domain.Button) error
	ButtonDown(button domain.Button) error
	ButtonUp(button domain.Button) error
	Scroll(dx, dy float64) error
	PressKey(key string) error
	KeyDown(key string) error
	KeyUp(key string) error
	TypeText(text string) error
}

type TriggerSink interface {
	SendTrigger(address string, args ...any) error
}

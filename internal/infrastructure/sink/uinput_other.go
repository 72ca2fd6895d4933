//go:build !linux

package sink

import "github.com/hilthontt/remotepad/internal/domain"

// UInput is only available on linux.
type UInput struct{}

func NewUInput(string) (*UInput, error) { return nil, ErrUnsupported }

func (*UInput) MoveCursor(float64, float64) error { return ErrUnsupported }
func (*UInput) Click(domain.Button) error         { return ErrUnsupported }
func (*UInput) ButtonDown(domain.Button) error    { return ErrUnsupported }
func (*UInput) ButtonUp(domain.Button) error      { return ErrUnsupported }
func (*UInput) Scroll(float64, float64) error     { return ErrUnsupported }
func (*UInput) PressKey(string) error             { return ErrUnsupported }
func (*UInput) KeyDown(string) error              { return ErrUnsupported }
func (*UInput) KeyUp(string) error                { return ErrUnsupported }
func (*UInput) TypeText(string) error             { return ErrUnsupported }
func (*UInput) Close() error                      { return nil }

//go:build linux

package sink

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/hilthontt/remotepad/internal/domain"
	"golang.org/x/sys/unix"
)

const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02

	synReport = 0

	relX      = 0x00
	relY      = 0x01
	relHWheel = 0x06
	relWheel  = 0x08

	busVirtual = 0x06

	uinputMaxNameSize = 80
	absCount          = 64

	// one wheel detent per this many scroll units
	wheelStep = 20.0
)

// ioctl request encoding, linux _IOC
const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocNone  = 0
	iocWrite = 1
)

func ioc(dir, typ, nr, size uint32) uint {
	return uint(dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift)
}

var (
	uiDevCreate  = ioc(iocNone, 'U', 1, 0)
	uiDevDestroy = ioc(iocNone, 'U', 2, 0)
	uiSetEvBit   = ioc(iocWrite, 'U', 100, uint32(unsafe.Sizeof(int32(0))))
	uiSetKeyBit  = ioc(iocWrite, 'U', 101, uint32(unsafe.Sizeof(int32(0))))
	uiSetRelBit  = ioc(iocWrite, 'U', 102, uint32(unsafe.Sizeof(int32(0))))
)

type inputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev mirrors struct uinput_user_dev.
type uinputUserDev struct {
	Name         [uinputMaxNameSize]byte
	ID           inputID
	FFEffectsMax uint32
	AbsMax       [absCount]int32
	AbsMin       [absCount]int32
	AbsFuzz      [absCount]int32
	AbsFlat      [absCount]int32
}

// inputEvent mirrors struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// UInput injects events through a virtual device created on /dev/uinput.
// The process needs write access to that node.
type UInput struct {
	mu   sync.Mutex
	f    *os.File
	name string

	// sub-unit motion carried to the next event
	restX, restY   float64
	wheelX, wheelY float64
}

func NewUInput(name string) (*UInput, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open uinput: %w", err)
	}
	fd := int(f.Fd())

	fail := func(step string, err error) (*UInput, error) {
		_ = f.Close()
		return nil, fmt.Errorf("uinput %s: %w", step, err)
	}

	for _, ev := range []int{evKey, evRel, evSyn} {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, ev); err != nil {
			return fail("set evbit", err)
		}
	}
	for _, rel := range []int{relX, relY, relWheel, relHWheel} {
		if err := unix.IoctlSetInt(fd, uiSetRelBit, rel); err != nil {
			return fail("set relbit", err)
		}
	}
	for _, code := range supportedKeys() {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(code)); err != nil {
			return fail("set keybit", err)
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:uinputMaxNameSize-1], name)
	dev.ID = inputID{BusType: busVirtual, Vendor: 0x1d6b, Product: 0x0104, Version: 1}
	if err := binary.Write(f, binary.NativeEndian, &dev); err != nil {
		return fail("write device", err)
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(uiDevCreate), 0); errno != 0 {
		return fail("create device", errno)
	}

	return &UInput{f: f, name: name}, nil
}

func supportedKeys() []uint16 {
	seen := make(map[uint16]bool)
	var codes []uint16
	add := func(c uint16) {
		if !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}

	for _, c := range namedKeys {
		add(c)
	}
	for _, ks := range charKeys {
		add(ks.code)
	}
	for c := uint16(keyF1); c < keyF1+10; c++ {
		add(c)
	}
	add(btnLeft)
	add(btnRight)
	add(btnMiddle)
	return codes
}

func (u *UInput) MoveCursor(dx, dy float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	x, y := carry(&u.restX, dx), carry(&u.restY, dy)
	if x == 0 && y == 0 {
		return nil
	}
	return u.emitLocked(
		inputEvent{Type: evRel, Code: relX, Value: x},
		inputEvent{Type: evRel, Code: relY, Value: y},
	)
}

func (u *UInput) Scroll(dx, dy float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	h := carry(&u.wheelX, dx/wheelStep)
	// wheel up is positive
	v := carry(&u.wheelY, -dy/wheelStep)
	if h == 0 && v == 0 {
		return nil
	}
	return u.emitLocked(
		inputEvent{Type: evRel, Code: relHWheel, Value: h},
		inputEvent{Type: evRel, Code: relWheel, Value: v},
	)
}

func (u *UInput) Click(button domain.Button) error {
	code, ok := buttonCode(button)
	if !ok {
		return fmt.Errorf("unknown button %q", button)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tapLocked(code, false)
}

func (u *UInput) ButtonDown(button domain.Button) error {
	return u.button(button, 1)
}

func (u *UInput) ButtonUp(button domain.Button) error {
	return u.button(button, 0)
}

func (u *UInput) button(button domain.Button, value int32) error {
	code, ok := buttonCode(button)
	if !ok {
		return fmt.Errorf("unknown button %q", button)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.emitLocked(inputEvent{Type: evKey, Code: code, Value: value})
}

func (u *UInput) PressKey(key string) error {
	ks, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("unmapped key %q", key)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tapLocked(ks.code, ks.shift)
}

func (u *UInput) KeyDown(key string) error {
	return u.key(key, 1)
}

func (u *UInput) KeyUp(key string) error {
	return u.key(key, 0)
}

func (u *UInput) key(key string, value int32) error {
	ks, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("unmapped key %q", key)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.emitLocked(inputEvent{Type: evKey, Code: ks.code, Value: value})
}

// TypeText skips characters with no key mapping.
func (u *UInput) TypeText(text string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, r := range text {
		ks, ok := charKeys[r]
		if !ok {
			continue
		}
		if err := u.tapLocked(ks.code, ks.shift); err != nil {
			return err
		}
	}
	return nil
}

func (u *UInput) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	_, _, _ = unix.Syscall(unix.SYS_IOCTL, u.f.Fd(), uintptr(uiDevDestroy), 0)
	return u.f.Close()
}

func (u *UInput) tapLocked(code uint16, shift bool) error {
	var evs []inputEvent
	if shift {
		evs = append(evs, inputEvent{Type: evKey, Code: keyLeftShift, Value: 1})
	}
	evs = append(evs, inputEvent{Type: evKey, Code: code, Value: 1})
	if err := u.emitLocked(evs...); err != nil {
		return err
	}

	evs = evs[:0]
	evs = append(evs, inputEvent{Type: evKey, Code: code, Value: 0})
	if shift {
		evs = append(evs, inputEvent{Type: evKey, Code: keyLeftShift, Value: 0})
	}
	return u.emitLocked(evs...)
}

// emitLocked writes evs followed by a SYN_REPORT.
func (u *UInput) emitLocked(evs ...inputEvent) error {
	tv := unix.NsecToTimeval(time.Now().UnixNano())
	evs = append(evs, inputEvent{Type: evSyn, Code: synReport})
	for i := range evs {
		evs[i].Time = tv
	}
	if err := binary.Write(u.f, binary.NativeEndian, evs); err != nil {
		return fmt.Errorf("write input events: %w", err)
	}
	return nil
}

// carry adds v to *rest and returns the whole part, keeping the remainder.
func carry(rest *float64, v float64) int32 {
	*rest += v
	whole := math.Trunc(*rest)
	*rest -= whole
	return int32(whole)
}

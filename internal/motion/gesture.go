package motion

import (
	"math"
	"sync"
	"time"
)

const (
	TapMaxDistance   = 10.0
	TapMaxDuration   = 200 * time.Millisecond
	DoubleTapWindow  = 300 * time.Millisecond
	LongPressTimeout = 500 * time.Millisecond
)

type Gesture int

const (
	Tap Gesture = iota + 1
	DoubleTap
	TwoFingerTap
	LongPress
	// LongPressEnd is emitted when a touch that fired LongPress is lifted.
	LongPressEnd
)

func (g Gesture) String() string {
	switch g {
	case Tap:
		return "tap"
	case DoubleTap:
		return "double_tap"
	case TwoFingerTap:
		return "two_finger_tap"
	case LongPress:
		return "long_press"
	case LongPressEnd:
		return "long_press_end"
	default:
		return "unknown"
	}
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}

type gestureState int

const (
	stateIdle gestureState = iota
	stateDown
	stateMoving
	stateLongPressed
	stateTapPending
)

// GestureRecognizer classifies touch lifecycles. Each pending timer carries
// the generation it was armed in; a callback from an older generation is
// ignored even if Stop lost the race.
type GestureRecognizer struct {
	mu        sync.Mutex
	scheduler Scheduler
	emit      func(Gesture)

	state     gestureState
	start     Sample
	twoFinger bool

	longPress    Timer
	longPressGen uint64

	pendingTap    Timer
	pendingTapGen uint64

	gen uint64
}

// NewGestureRecognizer calls emit for each recognized gesture. emit runs
// without the recognizer lock held, possibly on a timer goroutine.
func NewGestureRecognizer(scheduler Scheduler, emit func(Gesture)) *GestureRecognizer {
	if scheduler == nil {
		scheduler = RealScheduler
	}
	return &GestureRecognizer{scheduler: scheduler, emit: emit}
}

func (r *GestureRecognizer) Down(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLongPressLocked()
	r.start = s
	r.twoFinger = s.TouchCount == 2
	r.state = stateDown

	if s.TouchCount <= 1 {
		r.gen++
		gen := r.gen
		r.longPressGen = gen
		r.longPress = r.scheduler.AfterFunc(LongPressTimeout, func() { r.fireLongPress(gen) })
	}
}

func (r *GestureRecognizer) Move(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateDown {
		return
	}
	switch {
	case s.TouchCount == 2:
		// a second finger may land after the first one's down
		r.twoFinger = true
	case s.TouchCount > 2:
		r.twoFinger = false
	}
	if s.TouchCount > 1 {
		r.cancelLongPressLocked()
	}
	if math.Hypot(s.X-r.start.X, s.Y-r.start.Y) > TapMaxDistance {
		r.cancelLongPressLocked()
		r.state = stateMoving
	}
}

func (r *GestureRecognizer) Up(s Sample) {
	var out []Gesture

	r.mu.Lock()
	switch r.state {
	case stateLongPressed:
		out = append(out, LongPressEnd)
		r.state = r.idleStateLocked()

	case stateDown:
		r.cancelLongPressLocked()
		held := time.Duration(s.TimestampMs-r.start.TimestampMs) * time.Millisecond
		moved := math.Hypot(s.X-r.start.X, s.Y-r.start.Y)
		if s.TouchCount != 0 && s.TouchCount != 2 {
			r.twoFinger = false
		}

		switch {
		case held > TapMaxDuration || moved > TapMaxDistance:
			r.state = r.idleStateLocked()
		case r.twoFinger:
			out = append(out, r.flushPendingTapLocked()...)
			out = append(out, TwoFingerTap)
			r.state = stateIdle
		case r.pendingTap != nil:
			r.pendingTap.Stop()
			r.pendingTap = nil
			out = append(out, DoubleTap)
			r.state = stateIdle
		default:
			r.gen++
			gen := r.gen
			r.pendingTapGen = gen
			r.pendingTap = r.scheduler.AfterFunc(DoubleTapWindow, func() { r.firePendingTap(gen) })
			r.state = stateTapPending
		}

	case stateMoving:
		r.state = r.idleStateLocked()
	}
	r.mu.Unlock()

	r.deliver(out)
}

// Reset cancels every pending timer without emitting.
func (r *GestureRecognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLongPressLocked()
	if r.pendingTap != nil {
		r.pendingTap.Stop()
		r.pendingTap = nil
	}
	r.gen++
	r.state = stateIdle
}

func (r *GestureRecognizer) fireLongPress(gen uint64) {
	r.mu.Lock()
	if r.longPress == nil || r.longPressGen != gen || r.state != stateDown {
		r.mu.Unlock()
		return
	}
	r.longPress = nil
	r.state = stateLongPressed
	r.mu.Unlock()

	r.deliver([]Gesture{LongPress})
}

func (r *GestureRecognizer) firePendingTap(gen uint64) {
	r.mu.Lock()
	if r.pendingTap == nil || r.pendingTapGen != gen {
		r.mu.Unlock()
		return
	}
	r.pendingTap = nil
	if r.state == stateTapPending {
		r.state = stateIdle
	}
	r.mu.Unlock()

	r.deliver([]Gesture{Tap})
}

func (r *GestureRecognizer) cancelLongPressLocked() {
	if r.longPress != nil {
		r.longPress.Stop()
		r.longPress = nil
	}
}

func (r *GestureRecognizer) flushPendingTapLocked() []Gesture {
	if r.pendingTap == nil {
		return nil
	}
	r.pendingTap.Stop()
	r.pendingTap = nil
	return []Gesture{Tap}
}

func (r *GestureRecognizer) idleStateLocked() gestureState {
	if r.pendingTap != nil {
		return stateTapPending
	}
	return stateIdle
}

func (r *GestureRecognizer) deliver(out []Gesture) {
	if r.emit == nil {
		return
	}
	for _, g := range out {
		r.emit(g)
	}
}

package pairing

import (
	"sync"

	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/motion"
)

// Sender is anything that can put a message on the wire, usually a Client.
type Sender interface {
	Send(msg domain.RelayMessage) error
}

// Trackpad turns raw touches into relay messages: motion through the filter,
// taps and presses through the gesture recognizer.
type Trackpad struct {
	sender   Sender
	logger   logging.Logger
	gestures *motion.GestureRecognizer

	mu        sync.Mutex
	filter    *motion.Filter
	touches   int
	scrolling bool
}

func NewTrackpad(sender Sender, cfg motion.Config, scheduler motion.Scheduler, logger logging.Logger) *Trackpad {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Trackpad{
		sender: sender,
		logger: logger,
		filter: motion.NewFilter(cfg),
	}
	t.gestures = motion.NewGestureRecognizer(scheduler, t.onGesture)
	return t
}

func (t *Trackpad) TouchStart(s motion.Sample) {
	t.mu.Lock()
	t.filter.Start(s)
	t.touches = s.TouchCount
	t.scrolling = s.TouchCount >= 2
	t.mu.Unlock()

	t.gestures.Down(s)
}

func (t *Trackpad) TouchMove(s motion.Sample) {
	t.gestures.Move(s)

	t.mu.Lock()
	if s.TouchCount != t.touches {
		// finger count changed; measure from here so the cursor does not jump
		t.touches = s.TouchCount
		t.scrolling = s.TouchCount >= 2
		t.filter.Start(s)
		t.mu.Unlock()
		return
	}

	var msg domain.RelayMessage
	if t.scrolling {
		if dx, dy, ok := t.filter.Scroll(s); ok {
			msg = domain.Scroll{DX: dx, DY: dy}
		}
	} else if dx, dy, ok := t.filter.Move(s); ok {
		msg = domain.MouseMove{DX: dx, DY: dy}
	}
	t.mu.Unlock()

	if msg != nil {
		t.send(msg)
	}
}

func (t *Trackpad) TouchEnd(s motion.Sample) {
	t.gestures.Up(s)

	t.mu.Lock()
	t.filter.End()
	t.touches = 0
	t.scrolling = false
	t.mu.Unlock()
}

func (t *Trackpad) SetSensitivity(v float64) {
	t.mu.Lock()
	t.filter.SetSensitivity(v)
	t.mu.Unlock()
}

// Close drops any pending tap without sending it.
func (t *Trackpad) Close() {
	t.gestures.Reset()
}

func (t *Trackpad) onGesture(g motion.Gesture) {
	switch g {
	case motion.Tap:
		t.send(domain.Click{Button: domain.ButtonLeft})
	case motion.DoubleTap:
		t.send(domain.Click{Button: domain.ButtonLeft})
		t.send(domain.Click{Button: domain.ButtonLeft})
	case motion.TwoFingerTap:
		t.send(domain.Click{Button: domain.ButtonRight})
	case motion.LongPress:
		t.send(domain.MouseDown{Button: domain.ButtonLeft})
	case motion.LongPressEnd:
		t.send(domain.MouseUp{Button: domain.ButtonLeft})
	}
}

func (t *Trackpad) send(msg domain.RelayMessage) {
	if err := t.sender.Send(msg); err != nil {
		t.logger.Debug(logging.Pairing, logging.Forward, "trackpad send failed", map[logging.ExtraKey]any{
			logging.MessageType:  string(msg.Type()),
			logging.ErrorMessage: err.Error(),
		})
	}
}

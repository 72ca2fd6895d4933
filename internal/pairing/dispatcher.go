package pairing

import (
	"errors"
	"fmt"
	"math"

	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/metrics"
	"github.com/hilthontt/remotepad/internal/infrastructure/sink"
	"github.com/hilthontt/remotepad/internal/motion"
)

// maxVolumeSteps caps how many key presses a single volume message can ask for.
const maxVolumeSteps = 20

var mediaKeys = map[domain.MediaAction]string{
	domain.MediaPlayPause: "MediaPlayPause",
	domain.MediaNext:      "MediaTrackNext",
	domain.MediaPrev:      "MediaTrackPrevious",
	domain.MediaVolUp:     "AudioVolumeUp",
	domain.MediaVolDown:   "AudioVolumeDown",
}

var navigateKeys = map[domain.Direction]string{
	domain.DirectionUp:    "ArrowUp",
	domain.DirectionDown:  "ArrowDown",
	domain.DirectionLeft:  "ArrowLeft",
	domain.DirectionRight: "ArrowRight",
}

// Dispatcher applies decoded messages to the sinks. A failing or panicking
// sink call affects only the message that caused it.
type Dispatcher struct {
	input   sink.InputSink
	trigger sink.TriggerSink
	gyro    *motion.GyroFilter
	metrics *metrics.Metrics
	logger  logging.Logger

	// reply answers a ping; nil drops it
	reply func(domain.RelayMessage) error
}

type DispatcherOption func(*Dispatcher)

func WithGyro(g *motion.GyroFilter) DispatcherOption {
	return func(d *Dispatcher) { d.gyro = g }
}

func WithDispatchMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatchLogger(l logging.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func NewDispatcher(input sink.InputSink, trigger sink.TriggerSink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		input:   input,
		trigger: trigger,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.gyro == nil {
		d.gyro = motion.NewGyroFilter(motion.GyroConfig{DeadZone: motion.DefaultGyroDeadZone})
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	if d.logger == nil {
		d.logger = logging.NewNop()
	}
	return d
}

// Dispatch decodes and applies one message. Unknown tags and invalid
// messages are logged and returned but never fatal.
func (d *Dispatcher) Dispatch(raw []byte) error {
	msg, err := domain.DecodeRelayMessage(raw)
	if err != nil {
		tag, _ := domain.PeekType(raw)
		label := "invalid"
		if errors.Is(err, domain.ErrUnknownMessageTag) {
			label = "unknown"
		}
		d.metrics.DispatchFailed(label)
		d.logger.Warn(logging.Pairing, logging.Dispatch, "dropping message", map[logging.ExtraKey]any{
			logging.MessageType:  string(tag),
			logging.ErrorMessage: err.Error(),
		})
		return err
	}
	return d.Apply(msg)
}

func (d *Dispatcher) Apply(msg domain.RelayMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic on %s: %v", msg.Type(), r)
		}
		if err != nil {
			d.metrics.DispatchFailed(string(msg.Type()))
			d.logger.Error(logging.Sink, logging.Dispatch, "dispatch failed", map[logging.ExtraKey]any{
				logging.MessageType:  string(msg.Type()),
				logging.ErrorMessage: err.Error(),
			})
			return
		}
		d.metrics.MessageDispatched(string(msg.Type()))
	}()

	return d.apply(msg)
}

func (d *Dispatcher) apply(msg domain.RelayMessage) error {
	switch m := msg.(type) {
	case domain.MouseMove:
		return d.input.MoveCursor(m.DX, m.DY)
	case domain.Click:
		return d.input.Click(m.Button)
	case domain.MouseDown:
		return d.input.ButtonDown(m.Button)
	case domain.MouseUp:
		return d.input.ButtonUp(m.Button)
	case domain.Scroll:
		return d.input.Scroll(m.DX, m.DY)
	case domain.Gyro:
		dx, dy, ok := d.gyro.Update(m.DX, m.DY)
		if !ok {
			return nil
		}
		return d.input.MoveCursor(dx, dy)
	case domain.GyroCalibrate:
		d.gyro.Calibrate()
		return nil
	case domain.Key:
		switch m.Action {
		case domain.KeyDown:
			return d.input.KeyDown(m.Key)
		case domain.KeyUp:
			return d.input.KeyUp(m.Key)
		default:
			return d.input.PressKey(m.Key)
		}
	case domain.Text:
		return d.input.TypeText(m.Text)
	case domain.Media:
		return d.media(m)
	case domain.Navigate:
		return d.input.PressKey(navigateKeys[m.Direction])
	case domain.OSCTrigger:
		return d.trigger.SendTrigger(m.ResolvedAddress())
	case domain.Ping:
		if d.reply == nil {
			return nil
		}
		return d.reply(domain.Pong{Timestamp: m.Timestamp})
	case domain.Pong:
		return nil
	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownMessageTag, msg)
	}
}

// media presses the mapped key; a volume value repeats it that many times.
func (d *Dispatcher) media(m domain.Media) error {
	key := mediaKeys[m.Action]
	steps := 1
	if m.Value != nil && (m.Action == domain.MediaVolUp || m.Action == domain.MediaVolDown) {
		steps = int(math.Round(math.Abs(*m.Value)))
		steps = max(1, min(steps, maxVolumeSteps))
	}
	for i := 0; i < steps; i++ {
		if err := d.input.PressKey(key); err != nil {
			return err
		}
	}
	return nil
}

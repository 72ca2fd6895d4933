package sink

import (
	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
)

// Log records every action instead of performing it. It backs the "log"
// driver and headless deployments.
type Log struct {
	logger logging.Logger
}

func NewLog(logger logging.Logger) *Log {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) record(action string, extra map[logging.ExtraKey]any) error {
	if extra == nil {
		extra = map[logging.ExtraKey]any{}
	}
	extra[logging.MessageType] = action
	l.logger.Debug(logging.Sink, logging.Dispatch, action, extra)
	return nil
}

func (l *Log) MoveCursor(dx, dy float64) error {
	return l.record("move_cursor", map[logging.ExtraKey]any{"dx": dx, "dy": dy})
}

func (l *Log) Click(button domain.Button) error {
	return l.record("click", map[logging.ExtraKey]any{"button": button})
}

func (l *Log) ButtonDown(button domain.Button) error {
	return l.record("button_down", map[logging.ExtraKey]any{"button": button})
}

func (l *Log) ButtonUp(button domain.Button) error {
	return l.record("button_up", map[logging.ExtraKey]any{"button": button})
}

func (l *Log) Scroll(dx, dy float64) error {
	return l.record("scroll", map[logging.ExtraKey]any{"dx": dx, "dy": dy})
}

func (l *Log) PressKey(key string) error {
	return l.record("press_key", map[logging.ExtraKey]any{"key": key})
}

func (l *Log) KeyDown(key string) error {
	return l.record("key_down", map[logging.ExtraKey]any{"key": key})
}

func (l *Log) KeyUp(key string) error {
	return l.record("key_up", map[logging.ExtraKey]any{"key": key})
}

func (l *Log) TypeText(text string) error {
	return l.record("type_text", map[logging.ExtraKey]any{"length": len(text)})
}

func (l *Log) SendTrigger(address string, args ...any) error {
	return l.record("send_trigger", map[logging.ExtraKey]any{"address": address, "args": args})
}

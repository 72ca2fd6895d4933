package tui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
	"github.com/hilthontt/remotepad/internal/infrastructure/wsclient"
	"github.com/hilthontt/remotepad/internal/motion"
	"github.com/hilthontt/remotepad/internal/pairing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu         sync.Mutex
	sent       []domain.RelayMessage
	connected  string
	connectErr error
	pings      int
	events     chan pairing.Event
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan pairing.Event, 8)}
}

func (f *fakeSession) Connect(_ context.Context, code, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = code
	return nil
}

func (f *fakeSession) Send(msg domain.RelayMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSession) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeSession) Subscribe() (<-chan pairing.Event, func()) {
	return f.events, func() {}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds msg; when it starts a connect, the connect command is run and
// its result fed back. Other commands are cursor blinks and are dropped.
func press(t *testing.T, m tea.Model, msg tea.Msg) tea.Model {
	t.Helper()
	m, cmd := m.Update(msg)
	if cmd == nil || !m.(model).connecting {
		return m
	}
	m, _ = m.Update(cmd())
	return m
}

func joined(t *testing.T, s *fakeSession) tea.Model {
	t.Helper()
	m := NewModel(context.Background(), s, "", "a7f3k9")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, padPage, m.(model).page)
	require.Equal(t, "A7F3K9", s.connected)
	return m
}

func TestJoinRejectsShortCode(t *testing.T) {
	s := newFakeSession()
	m := NewModel(context.Background(), s, "", "ab")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, joinPage, m.(model).page)
	assert.NotEmpty(t, m.(model).error)
	assert.Empty(t, s.connected)
}

func TestJoinFailureShowsGenericText(t *testing.T) {
	s := newFakeSession()
	s.connectErr = &wsclient.AckError{Code: ws.CodeRoomNotFound, Message: ws.JoinFailedText}
	m := NewModel(context.Background(), s, "", "ZZZZZZ")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, joinPage, m.(model).page)
	assert.Equal(t, ws.JoinFailedText, m.(model).error)
}

func TestDescribeConnectErrors(t *testing.T) {
	assert.Contains(t, describe(pairing.ErrConnectTimeout), "Timed out")
	assert.Equal(t, "Relay unreachable.", describe(pairing.ErrTransportUnavailable))
	assert.Equal(t, "boom", describe(errors.New("boom")))
}

func TestPadKeysSendMessages(t *testing.T) {
	s := newFakeSession()
	m := joined(t, s)

	for _, msg := range []tea.Msg{
		runes("l"),
		runes("k"),
		tea.KeyMsg{Type: tea.KeyLeft},
		tea.KeyMsg{Type: tea.KeyEnter},
		runes("r"),
		tea.KeyMsg{Type: tea.KeyPgDown},
		tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}},
		runes("-"),
		runes("2"),
		tea.KeyMsg{Type: tea.KeyBackspace},
	} {
		m = press(t, m, msg)
	}

	assert.Equal(t, []domain.RelayMessage{
		domain.MouseMove{DX: moveStep, DY: 0},
		domain.MouseMove{DX: 0, DY: -moveStep},
		domain.Navigate{Direction: domain.DirectionLeft},
		domain.Click{Button: domain.ButtonLeft},
		domain.Click{Button: domain.ButtonRight},
		domain.Scroll{DY: scrollStep},
		domain.Media{Action: domain.MediaPlayPause},
		domain.Media{Action: domain.MediaVolDown},
		domain.OSCTrigger{Trigger: "2"},
		domain.Key{Key: "Backspace"},
	}, s.sent)
	assert.Equal(t, "key", m.(model).lastSent)
}

func TestTypingSendsText(t *testing.T) {
	s := newFakeSession()
	m := joined(t, s)

	m = press(t, m, runes("t"))
	require.Equal(t, typingPage, m.(model).page)
	m = press(t, m, runes("hi there"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, padPage, m.(model).page)
	assert.Equal(t, []domain.RelayMessage{domain.Text{Text: "hi there"}}, s.sent)
}

func TestPingAndLatency(t *testing.T) {
	s := newFakeSession()
	m := joined(t, s)

	m = press(t, m, runes("p"))
	assert.Equal(t, 1, s.pings)

	m, _ = m.Update(sessionEventMsg(pairing.Event{Kind: pairing.EventLatency, LatencyMs: 12}))
	assert.Equal(t, int64(12), m.(model).latencyMs)
	assert.Contains(t, m.View(), "latency 12ms")
}

func TestRoomClosedReturnsToJoin(t *testing.T) {
	s := newFakeSession()
	m := joined(t, s)

	m, cmd := m.Update(sessionEventMsg(pairing.Event{Kind: pairing.EventRoomClosed, Code: "A7F3K9"}))
	assert.NotNil(t, cmd)
	assert.Equal(t, joinPage, m.(model).page)
	assert.Contains(t, m.(model).error, "closed")
}

func TestQuitKeys(t *testing.T) {
	s := newFakeSession()
	m := joined(t, s)

	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

type fakeTouchpad struct {
	calls []string
	last  motion.Sample
}

func (f *fakeTouchpad) record(kind string, s motion.Sample) {
	f.calls = append(f.calls, fmt.Sprintf("%s %d", kind, s.TouchCount))
	f.last = s
}

func (f *fakeTouchpad) TouchStart(s motion.Sample) { f.record("start", s) }
func (f *fakeTouchpad) TouchMove(s motion.Sample)  { f.record("move", s) }
func (f *fakeTouchpad) TouchEnd(s motion.Sample)   { f.record("end", s) }

func TestMouseDragDrivesTouchpad(t *testing.T) {
	s := newFakeSession()
	pad := &fakeTouchpad{}
	m := NewModel(context.Background(), s, "", "A7F3K9", WithTouchpad(pad))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, padPage, m.(model).page)

	mouse := func(x, y int, b tea.MouseButton, a tea.MouseAction) {
		m, _ = m.Update(tea.MouseMsg{X: x, Y: y, Button: b, Action: a})
	}

	mouse(3, 3, tea.MouseButtonNone, tea.MouseActionMotion)
	mouse(3, 3, tea.MouseButtonLeft, tea.MouseActionPress)
	mouse(5, 4, tea.MouseButtonLeft, tea.MouseActionMotion)
	mouse(5, 4, tea.MouseButtonNone, tea.MouseActionRelease)

	mouse(1, 1, tea.MouseButtonRight, tea.MouseActionPress)
	mouse(1, 2, tea.MouseButtonRight, tea.MouseActionMotion)
	mouse(1, 2, tea.MouseButtonNone, tea.MouseActionRelease)

	assert.Equal(t, []string{"start 1", "move 1", "end 1", "start 2", "move 2", "end 2"}, pad.calls)
	assert.InDelta(t, 1*cellWidth, pad.last.X, 1e-9)
	assert.InDelta(t, 2*cellHeight, pad.last.Y, 1e-9)
}

func TestMouseWheelScrollsWithoutTouchpad(t *testing.T) {
	s := newFakeSession()
	m := joined(t, s)

	m, _ = m.Update(tea.MouseMsg{Button: tea.MouseButtonWheelUp, Action: tea.MouseActionPress})
	m, _ = m.Update(tea.MouseMsg{Button: tea.MouseButtonWheelDown, Action: tea.MouseActionPress})
	_, _ = m.Update(tea.MouseMsg{Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})

	assert.Equal(t, []domain.RelayMessage{
		domain.Scroll{DY: -scrollStep},
		domain.Scroll{DY: scrollStep},
	}, s.sent)
}

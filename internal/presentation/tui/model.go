// Package tui is the terminal stand-in for the phone: it joins a room and
// turns key presses into relay messages.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
	"github.com/hilthontt/remotepad/internal/infrastructure/wsclient"
	"github.com/hilthontt/remotepad/internal/motion"
	"github.com/hilthontt/remotepad/internal/pairing"
)

const (
	moveStep   = 15.0
	scrollStep = 3.0

	// terminal cells are roughly this many pixels
	cellWidth  = 8.0
	cellHeight = 16.0
)

// Session is the part of pairing.Client the remote drives.
type Session interface {
	Connect(ctx context.Context, code, serverURL string) error
	Send(msg domain.RelayMessage) error
	Ping() error
	Subscribe() (<-chan pairing.Event, func())
}

// Touchpad receives mouse drags as touches. A right-button drag counts as
// two fingers.
type Touchpad interface {
	TouchStart(s motion.Sample)
	TouchMove(s motion.Sample)
	TouchEnd(s motion.Sample)
}

type Option func(*model)

func WithTouchpad(t Touchpad) Option {
	return func(m *model) { m.touchpad = t }
}

var moveDeltas = map[string][2]float64{
	"h": {-moveStep, 0},
	"l": {moveStep, 0},
	"k": {0, -moveStep},
	"j": {0, moveStep},
}

type page int

const (
	joinPage page = iota
	padPage
	typingPage
)

type (
	connectedMsg     struct{ code string }
	connectFailedMsg struct{ err error }
	sessionEventMsg  pairing.Event
	eventsClosedMsg  struct{}
)

type model struct {
	ctx     context.Context
	session Session
	server  string
	events  <-chan pairing.Event

	page       page
	code       textinput.Model
	text       textinput.Model
	connecting bool
	status     string
	error      string
	lastSent   string
	latencyMs  int64

	touchpad Touchpad
	touches  int
	now      func() int64
}

// NewModel prefills the join form with code when it is non-empty.
func NewModel(ctx context.Context, session Session, serverURL, code string, opts ...Option) tea.Model {
	events, _ := session.Subscribe()

	ci := textinput.New()
	ci.Placeholder = "A7F3K9"
	ci.CharLimit = domain.RoomCodeLength
	ci.Width = 12
	ci.SetValue(code)
	ci.Focus()

	ti := textinput.New()
	ti.Placeholder = "text to type on the desktop"
	ti.CharLimit = 256
	ti.Width = 40

	m := model{
		ctx:     ctx,
		session: session,
		server:  serverURL,
		events:  events,
		code:    ci,
		text:    ti,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

func (m model) listen() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return sessionEventMsg(e)
	}
}

func (m model) connect(code string) tea.Cmd {
	return func() tea.Msg {
		if err := m.session.Connect(m.ctx, code, m.server); err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{code: code}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		switch m.page {
		case joinPage:
			return m.joinUpdate(msg)
		case typingPage:
			return m.typingUpdate(msg)
		default:
			return m.padUpdate(msg)
		}

	case tea.MouseMsg:
		if m.page != padPage {
			return m, nil
		}
		return m.mouse(msg), nil

	case connectedMsg:
		m.connecting = false
		m.error = ""
		m.page = padPage
		m.status = "Connected to " + msg.code
		return m, nil

	case connectFailedMsg:
		m.connecting = false
		m.error = describe(msg.err)
		return m, nil

	case sessionEventMsg:
		m = m.onEvent(pairing.Event(msg))
		return m, m.listen()

	case eventsClosedMsg:
		return m, nil
	}

	if m.page == joinPage {
		var cmd tea.Cmd
		m.code, cmd = m.code.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) joinUpdate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		return m, tea.Quit
	case msg.Type == tea.KeyEnter:
		if m.connecting {
			return m, nil
		}
		code := domain.NormalizeCode(m.code.Value())
		if !domain.ValidCode(code) {
			m.error = fmt.Sprintf("Codes are %d characters", domain.RoomCodeLength)
			return m, nil
		}
		m.error = ""
		m.connecting = true
		return m, m.connect(code)
	}

	var cmd tea.Cmd
	m.code, cmd = m.code.Update(msg)
	return m, cmd
}

func (m model) padUpdate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()

	switch {
	case key.Matches(msg, keys.Back), k == "q":
		return m, tea.Quit

	case key.Matches(msg, keys.Navigate):
		return m.send(domain.Navigate{Direction: domain.Direction(k)}), nil

	case key.Matches(msg, keys.Move):
		d := moveDeltas[k]
		return m.send(domain.MouseMove{DX: d[0], DY: d[1]}), nil

	case key.Matches(msg, keys.Scroll):
		dy := scrollStep
		if k == "pgup" {
			dy = -scrollStep
		}
		return m.send(domain.Scroll{DY: dy}), nil

	case key.Matches(msg, keys.Enter):
		return m.send(domain.Click{Button: domain.ButtonLeft}), nil
	case key.Matches(msg, keys.Right):
		return m.send(domain.Click{Button: domain.ButtonRight}), nil
	case key.Matches(msg, keys.Middle):
		return m.send(domain.Click{Button: domain.ButtonMiddle}), nil

	case key.Matches(msg, keys.Media):
		action := map[string]domain.MediaAction{
			" ":     domain.MediaPlayPause,
			"space": domain.MediaPlayPause,
			"n":     domain.MediaNext,
			"b":     domain.MediaPrev,
		}[k]
		return m.send(domain.Media{Action: action}), nil

	case key.Matches(msg, keys.Volume):
		action := domain.MediaVolUp
		if k == "-" {
			action = domain.MediaVolDown
		}
		return m.send(domain.Media{Action: action}), nil

	case key.Matches(msg, keys.Trigger):
		return m.send(domain.OSCTrigger{Trigger: domain.TriggerID(k)}), nil

	case key.Matches(msg, keys.Ping):
		if err := m.session.Ping(); err != nil {
			m.error = err.Error()
		}
		return m, nil

	case key.Matches(msg, keys.Type):
		m.page = typingPage
		m.text.Reset()
		m.text.Focus()
		return m, textinput.Blink

	case msg.Type == tea.KeyBackspace:
		return m.send(domain.Key{Key: "Backspace"}), nil
	case msg.Type == tea.KeyTab:
		return m.send(domain.Key{Key: "Tab"}), nil
	}
	return m, nil
}

func (m model) mouse(msg tea.MouseMsg) model {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		return m.send(domain.Scroll{DY: -scrollStep})
	case tea.MouseButtonWheelDown:
		return m.send(domain.Scroll{DY: scrollStep})
	}
	if m.touchpad == nil {
		return m
	}

	s := motion.Sample{
		X:           float64(msg.X) * cellWidth,
		Y:           float64(msg.Y) * cellHeight,
		TimestampMs: m.now(),
	}

	switch msg.Action {
	case tea.MouseActionPress:
		m.touches = 1
		if msg.Button == tea.MouseButtonRight {
			m.touches = 2
		}
		s.TouchCount = m.touches
		m.touchpad.TouchStart(s)
	case tea.MouseActionMotion:
		if m.touches == 0 {
			return m
		}
		s.TouchCount = m.touches
		m.touchpad.TouchMove(s)
	case tea.MouseActionRelease:
		if m.touches == 0 {
			return m
		}
		s.TouchCount = m.touches
		m.touches = 0
		m.touchpad.TouchEnd(s)
	}
	return m
}

func (m model) typingUpdate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.text.Blur()
		m.page = padPage
		return m, nil
	case msg.Type == tea.KeyEnter:
		text := m.text.Value()
		m.text.Blur()
		m.page = padPage
		if text == "" {
			return m, nil
		}
		return m.send(domain.Text{Text: text}), nil
	}

	var cmd tea.Cmd
	m.text, cmd = m.text.Update(msg)
	return m, cmd
}

func (m model) send(msg domain.RelayMessage) model {
	if err := m.session.Send(msg); err != nil {
		m.error = err.Error()
		return m
	}
	m.error = ""
	m.lastSent = string(msg.Type())
	return m
}

func (m model) onEvent(e pairing.Event) model {
	switch e.Kind {
	case pairing.EventLatency:
		m.latencyMs = e.LatencyMs
	case pairing.EventPeerDisconnected:
		m.status = "Desktop went away"
	case pairing.EventRoomClosed:
		m = m.backToJoin("The desktop closed the session.")
	case pairing.EventStateChanged:
		if e.State == pairing.Disconnected && m.page != joinPage {
			m = m.backToJoin("Disconnected.")
		}
	}
	return m
}

func (m model) backToJoin(reason string) model {
	m.page = joinPage
	m.touches = 0
	m.status = ""
	m.error = reason
	m.latencyMs = 0
	m.code.Focus()
	return m
}

func describe(err error) string {
	var ackErr *wsclient.AckError
	switch {
	case errors.Is(err, pairing.ErrConnectTimeout):
		return "Timed out. Check the code and try again."
	case errors.Is(err, pairing.ErrTransportUnavailable):
		return "Relay unreachable."
	case errors.As(err, &ackErr):
		return ws.JoinFailedText
	default:
		return err.Error()
	}
}

var (
	brandStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	bodyStyle   = lipgloss.NewStyle()
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

func (m model) View() string {
	var sections []string
	sections = append(sections, brandStyle.Render("remotepad"), "")

	switch m.page {
	case joinPage:
		sections = append(sections,
			bodyStyle.Render("Enter the code shown on your desktop."),
			"",
			accentStyle.Render("Room Code:"),
			m.code.View(),
		)
		if m.connecting {
			sections = append(sections, "", accentStyle.Render("Connecting..."))
		}
	case typingPage:
		sections = append(sections,
			accentStyle.Render("Type:"),
			m.text.View(),
			"",
			helpStyle.Render("enter to send • esc to cancel"),
		)
	default:
		sections = append(sections, accentStyle.Render(m.status))
		if m.latencyMs > 0 {
			sections = append(sections, bodyStyle.Render(fmt.Sprintf("latency %dms", m.latencyMs)))
		}
		if m.lastSent != "" {
			sections = append(sections, helpStyle.Render("sent "+m.lastSent))
		}
		sections = append(sections, "", helpStyle.Render(padHelp()))
		if m.touchpad != nil {
			sections = append(sections, helpStyle.Render("drag to move • right-drag to scroll • click to tap"))
		}
	}

	if m.error != "" {
		sections = append(sections, "", errorStyle.Render("⚠ "+m.error))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func padHelp() string {
	bindings := []key.Binding{
		keys.Move, keys.Navigate, keys.Enter, keys.Right, keys.Scroll,
		keys.Media, keys.Volume, keys.Trigger, keys.Type, keys.Ping, keys.Quit,
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

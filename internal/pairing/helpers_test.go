package pairing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/remotepad/internal/domain"
	"github.com/hilthontt/remotepad/internal/infrastructure/repository"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
	"github.com/hilthontt/remotepad/internal/motion"
)

// recordingSink stands in for both the input and the trigger sink.
type recordingSink struct {
	mu      sync.Mutex
	calls   []string
	panicOn string
	failOn  string
}

func (s *recordingSink) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn != "" && s.panicOn == call {
		panic("sink exploded")
	}
	if s.failOn != "" && s.failOn == call {
		return fmt.Errorf("sink refused %s", call)
	}
	s.calls = append(s.calls, call)
	return nil
}

func (s *recordingSink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingSink) MoveCursor(dx, dy float64) error {
	return s.record(fmt.Sprintf("move %g %g", dx, dy))
}
func (s *recordingSink) Click(b domain.Button) error      { return s.record("click " + string(b)) }
func (s *recordingSink) ButtonDown(b domain.Button) error { return s.record("down " + string(b)) }
func (s *recordingSink) ButtonUp(b domain.Button) error   { return s.record("up " + string(b)) }
func (s *recordingSink) Scroll(dx, dy float64) error {
	return s.record(fmt.Sprintf("scroll %g %g", dx, dy))
}
func (s *recordingSink) PressKey(k string) error { return s.record("press " + k) }
func (s *recordingSink) KeyDown(k string) error  { return s.record("keydown " + k) }
func (s *recordingSink) KeyUp(k string) error    { return s.record("keyup " + k) }
func (s *recordingSink) TypeText(t string) error { return s.record("type " + t) }
func (s *recordingSink) SendTrigger(addr string, args ...any) error {
	return s.record(fmt.Sprintf("trigger %s %d", addr, len(args)))
}

type manualTimer struct {
	at      time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualScheduler fires timers only from Advance, on the calling goroutine.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) motion.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{at: m.now + d, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && t.at <= m.now {
			t.stopped = true
			due = append(due, t)
		}
	}
	m.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// startRelay runs a relay that hands out the given codes in order.
func startRelay(t *testing.T, codes ...string) string {
	t.Helper()

	i := 0
	var mu sync.Mutex
	gen := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c, nil
	}

	core := ws.NewCore(ws.Options{Registry: repository.NewRoomRegistry(repository.WithCodeGenerator(gen))})
	ctx, cancel := context.WithCancel(context.Background())
	go core.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		core.Accept(conn, r.RemoteAddr)
	})
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		<-core.Done()
		srv.Close()
	})
	return srv.URL
}

func waitEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				t.Fatalf("event stream closed waiting for %s", kind)
			}
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return Event{}
		}
	}
}

// restartableRelay keeps one listener while its core can be replaced, which
// drops every connection the way a relay restart does.
type restartableRelay struct {
	url  string
	core atomic.Pointer[ws.Core]

	mu   sync.Mutex
	stop context.CancelFunc
}

func startRestartableRelay(t *testing.T, codes ...string) *restartableRelay {
	t.Helper()

	r := &restartableRelay{}
	r.restart(codes...)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.core.Load().Accept(conn, req.RemoteAddr)
	})
	srv := httptest.NewServer(mux)
	r.url = srv.URL

	t.Cleanup(func() {
		r.shutdown()
		srv.Close()
	})
	return r
}

// restart stops the running core and starts a fresh one issuing codes.
func (r *restartableRelay) restart(codes ...string) {
	r.shutdown()

	i := 0
	gen := func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
	core := ws.NewCore(ws.Options{Registry: repository.NewRoomRegistry(repository.WithCodeGenerator(gen))})
	ctx, cancel := context.WithCancel(context.Background())
	go core.Run(ctx)

	r.mu.Lock()
	r.stop = func() {
		cancel()
		<-core.Done()
	}
	r.mu.Unlock()
	r.core.Store(core)
}

func (r *restartableRelay) shutdown() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

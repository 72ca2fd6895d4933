package sink

import (
	"fmt"
	"sync"

	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hypebeast/go-osc/osc"
)

// OSC sends triggers as OSC messages over UDP. The target can be changed
// while messages are flowing.
type OSC struct {
	mu     sync.RWMutex
	client *osc.Client
	host   string
	port   int
	logger logging.Logger
}

func NewOSC(host string, port int, logger logging.Logger) (*OSC, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &OSC{logger: logger}
	if err := o.SetTarget(host, port); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OSC) SendTrigger(address string, args ...any) error {
	o.mu.RLock()
	client := o.client
	o.mu.RUnlock()

	msg := osc.NewMessage(address, args...)
	if err := client.Send(msg); err != nil {
		return fmt.Errorf("send osc %s: %w", address, err)
	}
	return nil
}

func (o *OSC) SetTarget(host string, port int) error {
	if host == "" {
		return fmt.Errorf("osc host is empty")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("osc port %d out of range", port)
	}

	o.mu.Lock()
	o.client = osc.NewClient(host, port)
	o.host, o.port = host, port
	o.mu.Unlock()

	o.logger.Info(logging.Sink, logging.ExternalService, "osc target set", map[logging.ExtraKey]any{
		logging.HostIp: fmt.Sprintf("%s:%d", host, port),
	})
	return nil
}

func (o *OSC) Target() (string, int) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.host, o.port
}

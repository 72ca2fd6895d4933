package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "remotepad"

// Metrics defines our Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	roomsActive      prometheus.Gauge
	roomsCreated     prometheus.Counter
	roomJoins        *prometheus.CounterVec
	relayedMessages  *prometheus.CounterVec
	droppedFrames    *prometheus.CounterVec
	connections      prometheus.Gauge
	dispatchedInputs *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	tunnelAttempts   *prometheus.CounterVec
	transportState   *prometheus.GaugeVec
}

// New registers every collector on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms currently held by the relay.",
		}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created since start.",
		}),
		roomJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_joins_total",
			Help:      "Join attempts by result.",
		}, []string{"result"}),
		relayedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_frames_total",
			Help:      "Frames forwarded between peers by frame type.",
		}, []string{"type"}),
		droppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Frames dropped by reason.",
		}, []string{"reason"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open relay WebSocket connections.",
		}),
		dispatchedInputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_messages_total",
			Help:      "Remote messages applied on the desktop by message type.",
		}, []string{"type"}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Remote messages whose sink call failed or panicked.",
		}, []string{"type"}),
		tunnelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tunnel_attempts_total",
			Help:      "Tunnel open attempts by result.",
		}, []string{"result"}),
		transportState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_state",
			Help:      "1 for the transport selector's current state, 0 otherwise.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.roomsActive,
		m.roomsCreated,
		m.roomJoins,
		m.relayedMessages,
		m.droppedFrames,
		m.connections,
		m.dispatchedInputs,
		m.dispatchFailures,
		m.tunnelAttempts,
		m.transportState,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RoomCreated() { m.roomsCreated.Inc() }

func (m *Metrics) SetRoomsActive(n int) { m.roomsActive.Set(float64(n)) }

func (m *Metrics) RoomJoin(result string) { m.roomJoins.WithLabelValues(result).Inc() }

func (m *Metrics) FrameRelayed(frameType string) {
	m.relayedMessages.WithLabelValues(frameType).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	m.droppedFrames.WithLabelValues(reason).Inc()
}

func (m *Metrics) ConnOpened() { m.connections.Inc() }

func (m *Metrics) ConnClosed() { m.connections.Dec() }

func (m *Metrics) MessageDispatched(msgType string) {
	m.dispatchedInputs.WithLabelValues(msgType).Inc()
}

func (m *Metrics) DispatchFailed(msgType string) {
	m.dispatchFailures.WithLabelValues(msgType).Inc()
}

func (m *Metrics) TunnelAttempt(ok bool) {
	if ok {
		m.tunnelAttempts.WithLabelValues("success").Inc()
		return
	}
	m.tunnelAttempts.WithLabelValues("failure").Inc()
}

// SetTransportState marks state as current and clears the others in states.
func (m *Metrics) SetTransportState(state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.transportState.WithLabelValues(s).Set(v)
	}
}

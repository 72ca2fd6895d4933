package transport

type State int32

const (
	Idle State = iota
	StartingLocalServer
	HostedRelay
	AwaitingTunnel
	Ready
	Reconnecting
	Stopped
)

var stateNames = []string{
	"idle",
	"starting_local_server",
	"hosted_relay",
	"awaiting_tunnel",
	"ready",
	"reconnecting",
	"stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Binding is the advertised address. It is replaced, never mutated.
type Binding struct {
	LocalPort    int
	PublicURL    string
	AttemptCount int
	// Local is true when only same-network phones can reach PublicURL.
	Local bool
	// Hosted is true when PublicURL is a hosted relay rather than ours.
	Hosted bool
}

// URLChange is published every time the advertised URL changes.
type URLChange struct {
	URL   string
	State State
	Local bool
}

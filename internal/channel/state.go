package channel

// State is the connection state of a Manager
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	ReconnectPending
)

// States lists every state, in declaration order
var States = []State{Disconnected, Connecting, Connected, ReconnectPending}

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ReconnectPending:
		return "reconnect_pending"
	default:
		return "unknown"
	}
}

func stateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = s.String()
	}
	return names
}

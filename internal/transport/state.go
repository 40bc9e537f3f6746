package transport

// State is the lifecycle state of a Channel.
type State int

const (
	// StateDisconnected means no connection is established.
	StateDisconnected State = iota

	// StateConnecting means the channel is dialing or redialing.
	StateConnecting

	// StateConnected means the channel is established and ready.
	StateConnected

	// StateErrored means the channel hit a terminal failure and will not
	// reconnect on its own.
	StateErrored

	// StateClosed means the channel was explicitly closed by its owner.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErrored:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

package handshake

// State is the Operation's position in the handshake state machine.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateMatched
	StateConnecting
	StateDiscovering
	StateAwaitingApproval

	// Terminal states
	StateApproved
	StateTimedOut
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateMatched:
		return "matched"
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateApproved:
		return "approved"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s >= StateApproved
}

package session

// State is a session's lifecycle stage.
type State int32

const (
	// StateOpen accepts inbound packets and delivers outbound messages.
	StateOpen State = iota
	// StateDraining means the peer went away or sent an empty message; teardown follows.
	StateDraining
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

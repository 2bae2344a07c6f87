package client

// State is the lifecycle phase of a Connection. States only move forward.
type State int

const (
	// StateConnecting: stream established, no frame received yet.
	StateConnecting State = iota
	// StateHandshaking: the relay has spoken, no name confirmed yet.
	StateHandshaking
	// StateActive: name confirmed, chat flows both ways.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

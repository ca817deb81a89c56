package transport

import (
	"fmt"
	"net"
)

// State is a transport lifecycle state.
type State int

const (
	// StateSetup is reported once when the transport starts.
	StateSetup State = iota
	// StateWaiting means the transport could not come up yet and will retry.
	StateWaiting
	// StateReady means the group has been joined and datagrams can flow.
	StateReady
	// StateFailed is terminal; the transport must be replaced to retry.
	StateFailed
	// StateCancelled is terminal and reported once by Cancel.
	StateCancelled
)

// String returns the lowercase state name used in logs
func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateCancelled
}

// StateEvent is a single state transition. Err is set for StateWaiting
// (*TransientNetworkError) and StateFailed (*TransportFailedError).
type StateEvent struct {
	State State
	Err   error
}

// Datagram is a datagram received from the multicast group.
type Datagram struct {
	Data           []byte
	Source         *net.UDPAddr
	InterfaceIndex int
}

// StateFunc receives state transitions.
type StateFunc func(StateEvent)

// ReceiveFunc receives datagrams. The Data slice is owned by the callee.
type ReceiveFunc func(Datagram)

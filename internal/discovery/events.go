package discovery

import (
	"fmt"
	"time"

	"github.com/muurk/ssdpscan/internal/transport"
)

// EventKind identifies a session lifecycle event.
type EventKind int

const (
	// EventJoinFailed means a start attempt could not join the group.
	EventJoinFailed EventKind = iota
	// EventStarted means a new session acquired a transport.
	EventStarted
	// EventStateChanged carries a transport state transition.
	EventStateChanged
	// EventSearchSent means the search message was written.
	EventSearchSent
	// EventSendFailed means the search message could not be written.
	EventSendFailed
	// EventStopped means the session was stopped by the caller or its timeout.
	EventStopped
	// EventReplaced means the session was torn down to make room for a new one.
	EventReplaced
	// EventRejected means a start request was ignored.
	EventRejected
)

// String returns a short name for the event kind
func (k EventKind) String() string {
	switch k {
	case EventJoinFailed:
		return "join_failed"
	case EventStarted:
		return "started"
	case EventStateChanged:
		return "state_changed"
	case EventSearchSent:
		return "search_sent"
	case EventSendFailed:
		return "send_failed"
	case EventStopped:
		return "stopped"
	case EventReplaced:
		return "replaced"
	case EventRejected:
		return "rejected"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event describes something that happened to a discovery session. State is
// only meaningful for EventStateChanged.
type Event struct {
	Kind      EventKind
	SessionID string
	State     transport.State
	Err       error
	Time      time.Time
}

// String returns a human-readable description of the event
func (e Event) String() string {
	s := e.Kind.String()
	if e.Kind == EventStateChanged {
		s += " " + e.State.String()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

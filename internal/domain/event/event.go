package event

import "time"

// Kind identifies a session lifecycle event.
type Kind string

const (
	SessionConnected Kind = "session.connected"
	SessionMessage   Kind = "session.message"
	SessionClosed    Kind = "session.closed"
	SessionRejected  Kind = "session.rejected"
)

// Event is an observation of a session lifecycle step.
// Slot is -1 for rejected connections (no slot was reserved).
type Event struct {
	Kind    Kind      `json:"kind"`
	Slot    int       `json:"slot"`
	TraceID string    `json:"trace_id,omitempty"`
	Remote  string    `json:"remote_addr,omitempty"`
	Message string    `json:"message,omitempty"`
	Reason  string    `json:"reason,omitempty"` // closed: "disconnected" | "io_failure"
	At      time.Time `json:"at"`
}

// Publisher ships events somewhere.
// Publish must not block the caller on network I/O.
type Publisher interface {
	Publish(ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

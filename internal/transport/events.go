package transport

import "encoding/json"

// EventType classifies transport events delivered to the consumer.
type EventType int

const (
	// EventConnected is emitted after the realtime channel handshake
	// completes. It also signals recovery from a degraded period.
	EventConnected EventType = iota

	// EventDisconnected is emitted when an established connection drops.
	// The client keeps reconnecting on its own; this is informational.
	EventDisconnected

	// EventDegraded is emitted once the number of consecutive connection
	// failures passes the configured threshold.
	EventDegraded

	// EventMessage carries one named server event with its JSON payload.
	EventMessage
)

// String returns the event type name for logging.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventDegraded:
		return "degraded"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is one item on the transport's outbound stream.
type Event struct {
	Type EventType

	// Name and Data are set for EventMessage.
	Name string
	Data json.RawMessage

	// Err is set for EventDisconnected when the drop had a cause.
	Err error
}

package transport

import "errors"

// Domain-specific errors for the realtime transport.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when an emit is attempted while the
	// channel is down.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAckTimeout is returned when the server does not acknowledge an
	// emit within the deadline.
	ErrAckTimeout = errors.New("transport: acknowledgment timed out")

	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("transport: client closed")

	// ErrMalformedFrame is returned for inbound frames that cannot be
	// decoded.
	ErrMalformedFrame = errors.New("transport: malformed frame")
)

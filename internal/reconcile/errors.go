package reconcile

import "errors"

// Domain-specific errors for payload reconciliation.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedPayload is returned for payloads that cannot be decoded
	// or that lack a device identifier. Such payloads are dropped whole.
	ErrMalformedPayload = errors.New("reconcile: malformed payload")

	// ErrOutOfRange is returned when a payload carries a value outside the
	// device's declared capability bounds. The whole payload is rejected;
	// nothing is partially applied.
	ErrOutOfRange = errors.New("reconcile: value outside device capabilities")
)

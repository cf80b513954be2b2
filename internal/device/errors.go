package device

import "errors"

// Domain-specific errors for the device store.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotFound is returned when the requested device identifier
	// is not present in the store.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrEmptyID is returned when an operation is attempted with an empty
	// device identifier.
	ErrEmptyID = errors.New("device: identifier cannot be empty")
)

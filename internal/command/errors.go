package command

import (
	"errors"
	"fmt"
)

// Domain-specific errors for the command pipeline.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrValidation is the base of all synchronous rejection errors. A
	// command failing validation never mutates state and never touches
	// the network.
	ErrValidation = errors.New("command: invalid")

	// ErrUnknownDevice rejects commands addressed to a device the store
	// has never seen.
	ErrUnknownDevice = fmt.Errorf("%w: unknown device", ErrValidation)

	// ErrUnsupported rejects commands targeting a field the device's
	// capability set does not declare writable.
	ErrUnsupported = fmt.Errorf("%w: not supported by device", ErrValidation)

	// ErrOutOfRange rejects values outside the device's declared bounds
	// or off its step grid.
	ErrOutOfRange = fmt.Errorf("%w: value out of range", ErrValidation)

	// ErrWrongMode rejects commands that are structurally impossible in
	// the current operating mode.
	ErrWrongMode = fmt.Errorf("%w: not permitted in current operating mode", ErrValidation)

	// ErrCommandFailed resolves a command whose delivery could not be
	// confirmed after all retries. Optimistic state has been rolled back.
	ErrCommandFailed = errors.New("command: delivery not confirmed")

	// ErrShutdown resolves commands still pending when the pipeline
	// shuts down.
	ErrShutdown = errors.New("command: pipeline shut down")
)

package auth

import "errors"

// Domain-specific errors for session management.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthenticationFailed is returned when the OAuth endpoint rejects
	// the refresh token. This is fatal for the session: retrying with the
	// same credentials cannot succeed.
	ErrAuthenticationFailed = errors.New("auth: authentication failed")

	// ErrNoRefreshToken is returned when no refresh token is available,
	// neither configured nor persisted from a previous run.
	ErrNoRefreshToken = errors.New("auth: no refresh token available")
)

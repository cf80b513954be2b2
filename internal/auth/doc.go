// Package auth manages the OAuth session with the Sensi cloud.
//
// The cloud issues short-lived bearer tokens against a long-lived refresh
// token. Session hides the exchange: callers ask for a token and get a
// valid one, renewed proactively before expiry. Renewal is single-flight,
// so a burst of concurrent callers during a token rollover shares one
// network exchange.
//
// Every exchange rotates the refresh token. Rotated tokens are persisted
// to a small SQLite store so a process restart resumes the session instead
// of burning the configured token again. Persistence is optional; without
// a store path the session lives in memory only.
//
// An endpoint rejection (HTTP 4xx) surfaces ErrAuthenticationFailed and is
// fatal: the refresh token is spent or revoked and operator intervention
// is required. Network failures are ordinary transient errors.
package auth

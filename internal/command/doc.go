// Package command turns host intents into cloud writes with optimistic
// local state.
//
// Every command passes a strict validation chain before anything else
// happens: the device must be known, the field writable per the device's
// capability set, the value inside bounds and on the step grid, and the
// write structurally possible in the current operating mode. A failure is
// a synchronous error; nothing was sent and nothing changed.
//
// Accepted commands apply optimistically to the device store, so hosts
// see the intended value immediately, then go out as acked socket.io
// emits. An unacknowledged emit is retried with backoff; when retries are
// exhausted the optimistic fields roll back to the last server-confirmed
// values and the command resolves as failed. A server update covering a
// pending field is authoritative: it retires the pending entry, and the
// optimistic value never outlives it.
//
// Composite writes (dual setpoints) apply and roll back atomically.
package command

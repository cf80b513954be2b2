// Package device provides the canonical in-memory store for Sensi
// thermostat state.
//
// The Store is the single source of truth consumers read from. Every known
// thermostat is keyed by its ICD identifier and owns three sub-documents:
//
//   - Registration: quasi-static metadata (name, location, product type,
//     timezone). Replaced wholesale when an update arrives.
//   - Capabilities: the declarative feature document plus its resolved
//     capability set. Immutable for the life of a session; replaced only
//     on an explicit refresh.
//   - State: the mutable runtime snapshot (readings, modes, demand and
//     relay statuses, nested fan and humidity sub-states). Updated only
//     through merge operations.
//
// Runtime state is never mutated directly by consumers: the reconciliation
// engine and the command pipeline both funnel changes through Apply, which
// serializes merges per device and fires the change callback after every
// non-empty merge. Normalization and merge computation happen before the
// per-device critical section is entered; no I/O runs under the lock.
//
// Derived attributes (effective HVAC action, effective fan mode, target
// temperature, humidity-control status) are computed from stored fields on
// every snapshot rather than stored, so they can never diverge from the
// fields they are derived from.
//
// The vendor's "status" connectivity field is advisory only: it has been
// observed reporting "online" for unreachable devices, so merges are never
// suppressed for offline devices and snapshots carry a separate
// transport-derived Stale flag instead.
package device

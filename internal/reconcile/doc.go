// Package reconcile merges inbound cloud payloads into the device store.
//
// The cloud sends both full snapshots and partial diffs on the same event,
// with no marker distinguishing them. The merge does not need one: a field
// present in the payload overwrites the stored value, a field absent is
// left untouched. Decoding uses pointer-field payload structs so "absent"
// survives the JSON round trip.
//
// Merging is conservative. A payload that cannot be decoded, names no
// device, or carries values outside the device's declared capability
// bounds is dropped whole and logged; nothing is partially applied. Every
// accepted merge yields the set of changed field paths, which gates change
// notifications and lets the command pipeline match server-confirmed
// updates against pending optimistic writes.
//
// The Engine's Run loop is the single consumer of the transport event
// stream: it dispatches state, capabilities, and info events, registers
// newly seen devices, and forwards degraded-mode transitions to the store.
package reconcile

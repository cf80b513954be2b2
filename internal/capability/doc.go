// Package capability resolves Sensi capability documents into the set of
// operations a thermostat actually supports.
//
// A capability document is the quasi-static, declarative description the
// cloud returns for each thermostat: which operating and fan modes are
// enabled, which display/configuration toggles exist, and the numeric
// bounds for the circulating fan duty cycle and humidity targets.
//
// Resolve is a pure function. It is invoked once per session when a
// capabilities document is first fetched, and again only on an explicit
// refresh; the resulting Set is treated as immutable in between.
//
// The Set is consumed by the command pipeline for validation (rejecting
// writes the device cannot honour) and exposed on device snapshots so
// consumers can decide which controls to surface.
package capability

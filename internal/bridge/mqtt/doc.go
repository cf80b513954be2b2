// Package mqtt publishes thermostat snapshots to an MQTT broker.
//
// The bridge is an optional consumer of the device store's change stream:
// every accepted merge produces a retained JSON snapshot on the device's
// state topic, so late subscribers immediately see current state. A Last
// Will and Testament on the bridge status topic lets subscribers tell a
// crashed bridge from a quiet one.
//
// The bridge is write-only. Commands toward the thermostats enter through
// the command pipeline, not through MQTT.
package mqtt

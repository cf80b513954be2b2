// Package telemetry records thermostat readings to InfluxDB.
//
// The recorder is an optional consumer of the device store's change
// stream: each accepted merge produces time-series points for the
// numeric readings worth graphing (temperature, humidity, setpoints,
// equipment demand, link quality). Writes are non-blocking and batched
// by the underlying client; a slow or absent InfluxDB never stalls the
// synchronization loop.
package telemetry

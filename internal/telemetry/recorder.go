package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ablyth/sensi-core/internal/device"
	"github.com/ablyth/sensi-core/internal/infrastructure/config"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	// millisecondsPerSecond converts seconds to milliseconds for the InfluxDB API.
	millisecondsPerSecond = 1000
)

// Recorder writes thermostat readings to InfluxDB.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Write operations are non-blocking and batched.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	// connected tracks current connection state.
	connected bool
	mu        sync.RWMutex

	// onError is called when async write errors occur.
	onError func(err error)
}

// Connect establishes a connection to the InfluxDB server.
//
// It performs the following setup:
//  1. Creates the client with token authentication
//  2. Verifies connectivity with a ping
//  3. Configures the non-blocking write API with batching
//  4. Sets up error callback for async write failures
func Connect(cfg config.InfluxDBConfig) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	// Validate and convert config values (ensure non-negative for uint conversion)
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{
		client:    client,
		writeAPI:  writeAPI,
		cfg:       cfg,
		connected: true,
	}

	go r.handleWriteErrors(writeAPI.Errors())

	return r, nil
}

// handleWriteErrors processes async write errors from the WriteAPI.
func (r *Recorder) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		r.mu.RLock()
		callback := r.onError
		r.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// HandleChange records the readings carried by a device change. Wire it to
// the device store's change callback. Stale snapshots are skipped so the
// series does not flatline on data the cloud stopped refreshing.
func (r *Recorder) HandleChange(deviceID string, snap device.Snapshot) {
	if snap.Stale {
		return
	}
	r.WriteSnapshot(snap)
}

// WriteSnapshot writes the graphable readings of one snapshot.
//
// Points produced:
//   - climate: temperature, humidity, setpoints, derived target
//   - demand: equipment demand percentages
//   - health: battery voltage and wifi link quality
func (r *Recorder) WriteSnapshot(snap device.Snapshot) {
	if !r.IsConnected() {
		return
	}

	now := time.Now()
	tags := map[string]string{
		"device_id":      snap.ID,
		"operating_mode": string(snap.State.OperatingMode),
		"hvac_action":    string(snap.Derived.HVACAction),
	}

	climate := map[string]interface{}{
		"temperature":   snap.State.DisplayTemp,
		"humidity":      snap.State.Humidity,
		"heat_setpoint": snap.State.CurrentHeatTemp,
		"cool_setpoint": snap.State.CurrentCoolTemp,
	}
	if snap.Derived.TargetTemperature != nil {
		climate["target_temperature"] = *snap.Derived.TargetTemperature
	}
	r.writeAPI.WritePoint(write.NewPoint("climate", tags, climate, now))

	demand := map[string]interface{}{
		"heat":             snap.State.DemandStatus.Heat,
		"cool":             snap.State.DemandStatus.Cool,
		"fan":              snap.State.DemandStatus.Fan,
		"aux":              snap.State.DemandStatus.Aux,
		"humidification":   snap.State.DemandStatus.Humidification,
		"dehumidification": snap.State.DemandStatus.Dehumidification,
	}
	r.writeAPI.WritePoint(write.NewPoint("demand",
		map[string]string{"device_id": snap.ID}, demand, now))

	health := map[string]interface{}{
		"battery_voltage": snap.State.BatteryVoltage,
		"wifi_quality":    snap.State.WifiConnectionQuality,
	}
	r.writeAPI.WritePoint(write.NewPoint("health",
		map[string]string{"device_id": snap.ID}, health, now))
}

// Close gracefully shuts down the InfluxDB connection, flushing any
// pending writes first.
func (r *Recorder) Close() error {
	if r.client == nil {
		return nil
	}

	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()

	r.writeAPI.Flush()
	r.client.Close()

	return nil
}

// HealthCheck verifies the InfluxDB connection is alive and functioning.
func (r *Recorder) HealthCheck(ctx context.Context) error {
	if !r.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := r.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("telemetry health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("telemetry health check failed: server not healthy")
	}

	return nil
}

// IsConnected returns the current connection state.
func (r *Recorder) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// SetOnError sets a callback invoked when async write errors occur.
//
// Since writes are non-blocking, errors are delivered asynchronously.
// Use this callback to log or handle write failures.
func (r *Recorder) SetOnError(callback func(err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = callback
}

// Flush forces all pending writes to be sent to InfluxDB.
// Safe to call after Close() (no-op).
func (r *Recorder) Flush() {
	if r.writeAPI == nil {
		return
	}

	if !r.IsConnected() {
		return
	}

	r.writeAPI.Flush()
}

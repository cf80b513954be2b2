package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ablyth/sensi-core/internal/device"
	"github.com/ablyth/sensi-core/internal/infrastructure/config"
)

// fakeWriteAPI captures points instead of shipping them.
type fakeWriteAPI struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
	errs    chan error
}

func newFakeWriteAPI() *fakeWriteAPI {
	return &fakeWriteAPI{errs: make(chan error, 1)}
}

func (f *fakeWriteAPI) WriteRecord(string) {}

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}

func (f *fakeWriteAPI) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
}

func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }

func (f *fakeWriteAPI) SetWriteFailedCallback(api.WriteFailedCallback) {}

func (f *fakeWriteAPI) captured() []*write.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*write.Point, len(f.points))
	copy(out, f.points)
	return out
}

func testRecorder(fake *fakeWriteAPI) *Recorder {
	return &Recorder{writeAPI: fake, connected: true}
}

func testSnapshot() device.Snapshot {
	target := 68
	return device.Snapshot{
		ID: "36-6f-92-ff-fe-01-23-45",
		State: device.State{
			OperatingMode:         device.ModeHeat,
			DisplayTemp:           71.5,
			Humidity:              45,
			CurrentHeatTemp:       68,
			CurrentCoolTemp:       76,
			BatteryVoltage:        3.1,
			WifiConnectionQuality: 72,
			DemandStatus: device.DemandStatus{
				Heat: 100,
				Fan:  100,
			},
		},
		Derived: device.Derived{
			HVACAction:        device.ActionHeating,
			TargetTemperature: &target,
		},
		UpdatedAt: time.Now(),
	}
}

func pointTags(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	return tags
}

func pointFields(p *write.Point) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func findPoint(t *testing.T, points []*write.Point, name string) *write.Point {
	t.Helper()
	for _, p := range points {
		if p.Name() == name {
			return p
		}
	}
	t.Fatalf("no %q point captured", name)
	return nil
}

func TestWriteSnapshotPoints(t *testing.T) {
	fake := newFakeWriteAPI()
	r := testRecorder(fake)

	r.WriteSnapshot(testSnapshot())

	points := fake.captured()
	if len(points) != 3 {
		t.Fatalf("captured %d points, want 3", len(points))
	}

	climate := findPoint(t, points, "climate")
	tags := pointTags(climate)
	if tags["device_id"] != "36-6f-92-ff-fe-01-23-45" {
		t.Errorf("device_id tag = %q", tags["device_id"])
	}
	if tags["operating_mode"] != "heat" {
		t.Errorf("operating_mode tag = %q, want heat", tags["operating_mode"])
	}
	if tags["hvac_action"] != "heating" {
		t.Errorf("hvac_action tag = %q, want heating", tags["hvac_action"])
	}

	fields := pointFields(climate)
	if fields["temperature"] != 71.5 {
		t.Errorf("temperature = %v, want 71.5", fields["temperature"])
	}
	if fields["humidity"] != int64(45) {
		t.Errorf("humidity = %v, want 45", fields["humidity"])
	}
	if fields["heat_setpoint"] != int64(68) {
		t.Errorf("heat_setpoint = %v, want 68", fields["heat_setpoint"])
	}
	if fields["target_temperature"] != int64(68) {
		t.Errorf("target_temperature = %v, want 68", fields["target_temperature"])
	}

	demand := pointFields(findPoint(t, points, "demand"))
	if demand["heat"] != int64(100) {
		t.Errorf("demand heat = %v, want 100", demand["heat"])
	}
	if demand["cool"] != int64(0) {
		t.Errorf("demand cool = %v, want 0", demand["cool"])
	}

	health := pointFields(findPoint(t, points, "health"))
	if health["battery_voltage"] != 3.1 {
		t.Errorf("battery_voltage = %v, want 3.1", health["battery_voltage"])
	}
	if health["wifi_quality"] != int64(72) {
		t.Errorf("wifi_quality = %v, want 72", health["wifi_quality"])
	}
}

func TestWriteSnapshotNoTarget(t *testing.T) {
	fake := newFakeWriteAPI()
	r := testRecorder(fake)

	snap := testSnapshot()
	snap.State.OperatingMode = device.ModeOff
	snap.Derived.HVACAction = device.ActionOff
	snap.Derived.TargetTemperature = nil

	r.WriteSnapshot(snap)

	climate := pointFields(findPoint(t, fake.captured(), "climate"))
	if _, ok := climate["target_temperature"]; ok {
		t.Error("target_temperature recorded while system is off")
	}
}

func TestWriteSnapshotDisconnected(t *testing.T) {
	fake := newFakeWriteAPI()
	r := testRecorder(fake)
	r.connected = false

	r.WriteSnapshot(testSnapshot())

	if len(fake.captured()) != 0 {
		t.Error("points written while disconnected")
	}
}

func TestHandleChangeSkipsStale(t *testing.T) {
	fake := newFakeWriteAPI()
	r := testRecorder(fake)

	snap := testSnapshot()
	snap.Stale = true
	r.HandleChange(snap.ID, snap)

	if len(fake.captured()) != 0 {
		t.Error("stale snapshot recorded")
	}
}

func TestFlushDisconnectedIsNoop(t *testing.T) {
	fake := newFakeWriteAPI()
	r := testRecorder(fake)
	r.connected = false

	r.Flush()

	fake.mu.Lock()
	flushes := fake.flushes
	fake.mu.Unlock()
	if flushes != 0 {
		t.Errorf("flushes = %d, want 0", flushes)
	}
}

func TestOnErrorCallback(t *testing.T) {
	fake := newFakeWriteAPI()
	r := testRecorder(fake)

	received := make(chan error, 1)
	r.SetOnError(func(err error) { received <- err })

	go r.handleWriteErrors(fake.errs)
	fake.errs <- errors.New("write refused")

	select {
	case err := <-received:
		if err == nil || err.Error() != "write refused" {
			t.Errorf("callback error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error callback not invoked")
	}
}

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

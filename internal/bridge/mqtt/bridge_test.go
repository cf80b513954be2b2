package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ablyth/sensi-core/internal/device"
	"github.com/ablyth/sensi-core/internal/infrastructure/config"
)

// testConfig returns a valid bridge configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "sensi-core-test",
			TLS:      false,
		},
		QoS:         1,
		TopicPrefix: "sensi",
	}
}

func testSnapshot(id string) device.Snapshot {
	return device.Snapshot{
		ID: id,
		State: device.State{
			Status:          "online",
			OperatingMode:   device.ModeHeat,
			DisplayTemp:     71.5,
			Humidity:        45,
			DisplayScale:    "f",
			CurrentHeatTemp: 68,
			CurrentCoolTemp: 76,
		},
		UpdatedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// Fake paho client
// =============================================================================

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishRecord struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu          sync.Mutex
	connectErr  error
	publishErr  error
	connected   bool
	disconnects int
	published   []publishRecord
}

func (f *fakeClient) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr == nil {
		f.connected = true
	}
	return &fakeToken{err: f.connectErr}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishRecord{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  data,
	})
	return &fakeToken{err: f.publishErr}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakeClient) records() []publishRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishRecord, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeClient) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeClient) Subscribe(string, byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakeClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakeClient) Unsubscribe(...string) pahomqtt.Token { return &fakeToken{} }

func (f *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// connectWithFake swaps the paho constructor for the fake, connects, and
// returns the bridge together with the options it built.
func connectWithFake(t *testing.T, fc *fakeClient, cfg config.MQTTConfig) (*Bridge, *pahomqtt.ClientOptions) {
	t.Helper()

	var captured *pahomqtt.ClientOptions
	orig := newClient
	newClient = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		captured = opts
		return fc
	}
	t.Cleanup(func() { newClient = orig })

	b, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return b, captured
}

// captureLogger records warnings for assertions.
type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Error(string, ...any) {}
func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *captureLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	fc := &fakeClient{}
	b, opts := connectWithFake(t, fc, testConfig())

	if !b.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("broker servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "sensi-core-test" {
		t.Errorf("client id = %q, want %q", opts.ClientID, "sensi-core-test")
	}
}

func TestConnectTLSUsesSSLScheme(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	fc := &fakeClient{}
	_, opts := connectWithFake(t, fc, cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].Scheme != "ssl" {
		t.Errorf("broker servers = %v, want ssl scheme", opts.Servers)
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config not set for TLS broker")
	}
}

func TestConnectConfiguresLWT(t *testing.T) {
	fc := &fakeClient{}
	_, opts := connectWithFake(t, fc, testConfig())

	if !opts.WillEnabled {
		t.Fatal("LWT not enabled")
	}
	if opts.WillTopic != "sensi/bridge/status" {
		t.Errorf("will topic = %q, want %q", opts.WillTopic, "sensi/bridge/status")
	}
	if !opts.WillRetained {
		t.Error("will message should be retained")
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("will payload = %s, want offline status", opts.WillPayload)
	}
}

func TestConnectFailure(t *testing.T) {
	fc := &fakeClient{connectErr: errors.New("broker refused")}

	orig := newClient
	newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client { return fc }
	t.Cleanup(func() { newClient = orig })

	_, err := Connect(testConfig())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	fc := &fakeClient{}
	b, _ := connectWithFake(t, fc, testConfig())

	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if b.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}

	recs := fc.records()
	if len(recs) != 1 {
		t.Fatalf("published %d messages on close, want 1 offline status", len(recs))
	}
	if recs[0].topic != "sensi/bridge/status" {
		t.Errorf("offline topic = %q, want %q", recs[0].topic, "sensi/bridge/status")
	}
	if !recs[0].retained {
		t.Error("offline status should be retained")
	}
	if !strings.Contains(string(recs[0].payload), `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s, want graceful_shutdown reason", recs[0].payload)
	}

	fc.mu.Lock()
	disconnects := fc.disconnects
	fc.mu.Unlock()
	if disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", disconnects)
	}
}

func TestCloseNil(t *testing.T) {
	b := &Bridge{}
	if err := b.Close(); err != nil {
		t.Errorf("Close() on zero bridge error = %v, want nil", err)
	}
}

// =============================================================================
// Snapshot Publish Tests
// =============================================================================

func TestPublishSnapshot(t *testing.T) {
	fc := &fakeClient{}
	b, _ := connectWithFake(t, fc, testConfig())

	snap := testSnapshot("36-6f-92-ff-fe-01-23-45")
	if err := b.PublishSnapshot(snap); err != nil {
		t.Fatalf("PublishSnapshot() error = %v", err)
	}

	recs := fc.records()
	if len(recs) != 1 {
		t.Fatalf("published %d messages, want 1", len(recs))
	}

	rec := recs[0]
	if rec.topic != "sensi/36-6f-92-ff-fe-01-23-45/state" {
		t.Errorf("topic = %q, want %q", rec.topic, "sensi/36-6f-92-ff-fe-01-23-45/state")
	}
	if !rec.retained {
		t.Error("snapshot should be published retained")
	}
	if rec.qos != 1 {
		t.Errorf("qos = %d, want 1", rec.qos)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(rec.payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if string(decoded["icd_id"]) != `"36-6f-92-ff-fe-01-23-45"` {
		t.Errorf("payload icd_id = %s", decoded["icd_id"])
	}
	if _, ok := decoded["state"]; !ok {
		t.Error("payload missing state document")
	}
}

func TestPublishSnapshotDisconnected(t *testing.T) {
	fc := &fakeClient{}
	b, _ := connectWithFake(t, fc, testConfig())

	fc.setConnected(false)

	err := b.PublishSnapshot(testSnapshot("dev-1"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishSnapshot() error = %v, want ErrNotConnected", err)
	}
	if len(fc.records()) != 0 {
		t.Error("nothing should be published while disconnected")
	}
}

func TestPublishSnapshotBrokerError(t *testing.T) {
	fc := &fakeClient{}
	b, _ := connectWithFake(t, fc, testConfig())

	fc.mu.Lock()
	fc.publishErr = errors.New("puback lost")
	fc.mu.Unlock()

	err := b.PublishSnapshot(testSnapshot("dev-1"))
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishSnapshot() error = %v, want ErrPublishFailed", err)
	}
}

func TestHandleChangeLogsFailure(t *testing.T) {
	fc := &fakeClient{}
	b, _ := connectWithFake(t, fc, testConfig())

	logger := &captureLogger{}
	b.SetLogger(logger)

	fc.setConnected(false)
	b.HandleChange("dev-1", testSnapshot("dev-1"))

	if logger.warnCount() != 1 {
		t.Errorf("warn count = %d, want 1", logger.warnCount())
	}
}

func TestPublishAll(t *testing.T) {
	fc := &fakeClient{}
	b, _ := connectWithFake(t, fc, testConfig())

	snaps := []device.Snapshot{testSnapshot("dev-1"), testSnapshot("dev-2")}
	b.PublishAll(snaps)

	recs := fc.records()
	if len(recs) != 2 {
		t.Fatalf("published %d messages, want 2", len(recs))
	}
	if recs[0].topic != "sensi/dev-1/state" || recs[1].topic != "sensi/dev-2/state" {
		t.Errorf("topics = %q, %q", recs[0].topic, recs[1].topic)
	}
}

func TestQoSClamped(t *testing.T) {
	cfg := testConfig()
	cfg.QoS = 7

	fc := &fakeClient{}
	b, _ := connectWithFake(t, fc, cfg)

	if err := b.PublishSnapshot(testSnapshot("dev-1")); err != nil {
		t.Fatalf("PublishSnapshot() error = %v", err)
	}

	recs := fc.records()
	if recs[0].qos != maxQoS {
		t.Errorf("qos = %d, want clamped to %d", recs[0].qos, maxQoS)
	}
}

// =============================================================================
// Status Tests
// =============================================================================

func TestOnlineStatusOnConnect(t *testing.T) {
	fc := &fakeClient{}
	b, _ := connectWithFake(t, fc, testConfig())

	b.handleConnect()

	recs := fc.records()
	if len(recs) != 1 {
		t.Fatalf("published %d messages, want 1 online status", len(recs))
	}
	if recs[0].topic != "sensi/bridge/status" {
		t.Errorf("status topic = %q, want %q", recs[0].topic, "sensi/bridge/status")
	}
	if !strings.Contains(string(recs[0].payload), `"status":"online"`) {
		t.Errorf("status payload = %s, want online", recs[0].payload)
	}
}

func TestDisconnectTracksState(t *testing.T) {
	fc := &fakeClient{}
	b, _ := connectWithFake(t, fc, testConfig())

	b.handleDisconnect(errors.New("connection reset"))

	b.connMu.RLock()
	connected := b.connected
	b.connMu.RUnlock()
	if connected {
		t.Error("bridge still marked connected after connection loss")
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "State",
			builder: func() string {
				return Topics{}.State("36-6f-92-ff-fe-01-23-45")
			},
			expected: "sensi/36-6f-92-ff-fe-01-23-45/state",
		},
		{
			name: "StateCustomPrefix",
			builder: func() string {
				return Topics{Prefix: "home/hvac"}.State("dev-1")
			},
			expected: "home/hvac/dev-1/state",
		},
		{
			name: "BridgeStatus",
			builder: func() string {
				return Topics{}.BridgeStatus()
			},
			expected: "sensi/bridge/status",
		},
		{
			name: "BridgeStatusCustomPrefix",
			builder: func() string {
				return Topics{Prefix: "home/hvac"}.BridgeStatus()
			},
			expected: "home/hvac/bridge/status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

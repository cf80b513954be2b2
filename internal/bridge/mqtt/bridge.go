package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ablyth/sensi-core/internal/device"
	"github.com/ablyth/sensi-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the bridge.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// newClient builds the underlying paho client. Tests swap this for a fake.
var newClient = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	return pahomqtt.NewClient(opts)
}

// Bridge publishes retained device snapshots to an MQTT broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - HandleChange may be called directly from the device store's change
//     callback; each publish waits for broker acknowledgment with a bounded
//     timeout so a slow broker cannot wedge the caller forever.
type Bridge struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament (LWT) for offline detection
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with timeout
//  5. Publishes online status to the bridge status topic
func Connect(cfg config.MQTTConfig) (*Bridge, error) {
	topics := Topics{Prefix: cfg.TopicPrefix}

	opts := buildClientOptions(cfg)
	configureLWT(opts, topics, cfg.Broker.ClientID)

	b := &Bridge{
		cfg:    cfg,
		topics: topics,
		logger: noopLogger{},
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		b.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.handleDisconnect(err)
	})

	// Create and connect
	b.client = newClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// Set connected state immediately after successful connection.
	// The OnConnectHandler callback runs asynchronously and may not have
	// executed yet; setting it here ensures IsConnected() returns true.
	b.connMu.Lock()
	b.connected = true
	b.connMu.Unlock()

	return b, nil
}

// SetLogger sets a logger for publish failures and connection events.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// HandleChange publishes the snapshot produced by a device change. Wire it
// to the device store's change callback. Publish failures are logged, not
// returned; the broker is a mirror, never an authority, and the next change
// will carry current state anyway.
func (b *Bridge) HandleChange(deviceID string, snap device.Snapshot) {
	if err := b.PublishSnapshot(snap); err != nil {
		b.getLogger().Warn("snapshot publish failed",
			"device", deviceID, "error", err)
	}
}

// PublishSnapshot publishes one retained snapshot to the device state topic.
func (b *Bridge) PublishSnapshot(snap device.Snapshot) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("mqtt: encode snapshot for %s: %w", snap.ID, err)
	}

	topic := b.topics.State(snap.ID)
	token := b.client.Publish(topic, b.qos(), true, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout on %s", ErrPublishFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	b.getLogger().Debug("snapshot published", "topic", topic, "bytes", len(payload))
	return nil
}

// PublishAll publishes retained snapshots for every device the store knows.
// Called once after connect so retained topics reflect current state even
// when the bridge restarted while the devices stayed quiet.
func (b *Bridge) PublishAll(snaps []device.Snapshot) {
	for _, snap := range snaps {
		if err := b.PublishSnapshot(snap); err != nil {
			b.getLogger().Warn("initial snapshot publish failed",
				"device", snap.ID, "error", err)
		}
	}
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes a graceful offline status (distinct from the LWT crash
// status), waits for pending operations, then disconnects.
func (b *Bridge) Close() error {
	if b.client == nil {
		return nil
	}

	if b.IsConnected() {
		payload := buildOfflinePayload(b.cfg.Broker.ClientID)
		token := b.client.Publish(b.topics.BridgeStatus(), b.qos(), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	b.client.Disconnect(defaultDisconnectQuiesce)

	b.connMu.Lock()
	b.connected = false
	b.connMu.Unlock()

	return nil
}

// IsConnected returns the current connection state.
func (b *Bridge) IsConnected() bool {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return b.connected && b.client.IsConnected()
}

// handleConnect is called on initial connect and on every reconnect.
func (b *Bridge) handleConnect() {
	b.connMu.Lock()
	b.connected = true
	b.connMu.Unlock()

	payload := buildOnlinePayload(b.cfg.Broker.ClientID)
	b.client.Publish(b.topics.BridgeStatus(), b.qos(), true, payload)

	b.getLogger().Info("mqtt bridge connected",
		"broker", b.cfg.Broker.Host, "prefix", b.topics.prefix())
}

// handleDisconnect is called when the connection is lost. The paho client
// reconnects on its own; we only track state and log.
func (b *Bridge) handleDisconnect(err error) {
	b.connMu.Lock()
	b.connected = false
	b.connMu.Unlock()

	b.getLogger().Warn("mqtt bridge connection lost", "error", err)
}

// qos returns the configured QoS clamped to the valid range.
func (b *Bridge) qos() byte {
	if b.cfg.QoS < 0 {
		return 0
	}
	if b.cfg.QoS > maxQoS {
		return maxQoS
	}
	return byte(b.cfg.QoS)
}

// Sensi Core - thermostat cloud synchronization daemon
//
// This is the main entry point for Sensi Core. It maintains a live local
// mirror of every thermostat on a Sensi account:
//   - OAuth session against the Sensi cloud with persisted token rotation
//   - Push channel over socket.io with reconnect and polling fallback
//   - Partial-update reconciliation into an in-memory device store
//   - Optimistic command pipeline with ack tracking and rollback
//   - Optional MQTT snapshot bridge and InfluxDB telemetry recorder
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ablyth/sensi-core/internal/auth"
	"github.com/ablyth/sensi-core/internal/bridge/mqtt"
	"github.com/ablyth/sensi-core/internal/command"
	"github.com/ablyth/sensi-core/internal/device"
	"github.com/ablyth/sensi-core/internal/infrastructure/config"
	"github.com/ablyth/sensi-core/internal/infrastructure/logging"
	"github.com/ablyth/sensi-core/internal/reconcile"
	"github.com/ablyth/sensi-core/internal/telemetry"
	"github.com/ablyth/sensi-core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Sensi Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open token store (optional; sessions work in memory without it)
	var tokenStore *auth.Store
	if cfg.Auth.StorePath != "" {
		tokenStore, err = auth.OpenStore(cfg.Auth.StorePath)
		if err != nil {
			return fmt.Errorf("opening token store: %w", err)
		}
		defer func() {
			if closeErr := tokenStore.Close(); closeErr != nil {
				log.Error("error closing token store", "error", closeErr)
			}
		}()
		log.Info("token store opened", "path", cfg.Auth.StorePath)
	}

	// Establish the OAuth session
	session, err := auth.NewSession(cfg.Auth, tokenStore)
	if err != nil {
		return fmt.Errorf("creating auth session: %w", err)
	}
	session.SetLogger(log.With("component", "auth"))

	// Device store: the canonical local mirror
	store := device.NewStore()
	store.SetLogger(log.With("component", "device"))

	// Reconciliation engine consumes transport events
	engine := reconcile.New(store)
	engine.SetLogger(log.With("component", "reconcile"))

	// Transport client: push channel with polling fallback
	client := transport.New(cfg.Transport, session)
	client.SetLogger(log.With("component", "transport"))
	client.SetDeviceLister(store.IDs)

	// Command pipeline writes through the same channel
	pipeline := command.New(store, client, cfg.Command)
	pipeline.SetLogger(log.With("component", "command"))

	// Server-confirmed updates retire matching pending writes
	engine.OnServerUpdate(pipeline.OnServerUpdate)

	// Optional consumers of the change stream
	var changeHandlers []device.ChangeFunc

	if cfg.MQTT.Enabled {
		bridge, bridgeErr := mqtt.Connect(cfg.MQTT)
		if bridgeErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", bridgeErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := bridge.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		bridge.SetLogger(log.With("component", "mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// Seed retained topics with whatever the store already holds
		bridge.PublishAll(store.Snapshots())
		changeHandlers = append(changeHandlers, bridge.HandleChange)
	} else {
		log.Info("MQTT bridge disabled")
	}

	if cfg.InfluxDB.Enabled {
		recorder, recErr := telemetry.Connect(cfg.InfluxDB)
		if recErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", recErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		recorder.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		changeHandlers = append(changeHandlers, recorder.HandleChange)
	} else {
		log.Info("InfluxDB telemetry disabled")
	}

	if len(changeHandlers) > 0 {
		store.OnChange(func(deviceID string, snap device.Snapshot) {
			for _, h := range changeHandlers {
				h(deviceID, snap)
			}
		})
	}

	// Start the synchronization loop
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(runCtx, client.Events())
	}()

	transportErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		transportErr <- client.Run(runCtx)
	}()

	log.Info("initialisation complete, synchronizing")

	var fatal error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case err := <-transportErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			fatal = fmt.Errorf("transport stopped: %w", err)
			log.Error("transport stopped", "error", err)
		}
	}

	// Unconfirmed optimistic writes roll back before the mirror goes away
	pipeline.Shutdown()

	cancelRun()
	wg.Wait()

	if fatal != nil {
		return fatal
	}

	log.Info("Sensi Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SENSICORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SENSICORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

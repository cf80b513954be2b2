package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ablyth/sensi-core/internal/auth"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("SENSICORE_CONFIG")
	defer os.Setenv("SENSICORE_CONFIG", originalEnv)

	os.Setenv("SENSICORE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingRefreshToken verifies run fails when no refresh token is
// available from config, environment, or the token store.
func TestRun_MissingRefreshToken(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	storePath := filepath.Join(tmpDir, "tokens.db")

	configContent := `
auth:
  client_id: "test-client"
  store_path: "` + storePath + `"

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("SENSICORE_CONFIG")
	defer os.Setenv("SENSICORE_CONFIG", originalEnv)
	os.Setenv("SENSICORE_CONFIG", configPath)

	// The refresh token must not leak in from the host environment.
	originalToken := os.Getenv("SENSICORE_AUTH_REFRESH_TOKEN")
	defer os.Setenv("SENSICORE_AUTH_REFRESH_TOKEN", originalToken)
	os.Unsetenv("SENSICORE_AUTH_REFRESH_TOKEN")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if !errors.Is(err, auth.ErrNoRefreshToken) {
		t.Fatalf("run() error = %v, want ErrNoRefreshToken", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("SENSICORE_CONFIG")
	defer os.Setenv("SENSICORE_CONFIG", originalEnv)

	os.Unsetenv("SENSICORE_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("SENSICORE_CONFIG")
	defer os.Setenv("SENSICORE_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("SENSICORE_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

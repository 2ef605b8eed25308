// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; secrets go to OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"osql/cli/internal/xdg"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel string `json:"log_level"`
	// ToolsServicePath overrides discovery of the tools service binary.
	ToolsServicePath string `json:"tools_service_path,omitempty"`
	// BatchBufferSize is how many completed batches a query session buffers
	// before spilling to its overflow list.
	BatchBufferSize int `json:"batch_buffer_size"`
	// EmitEmptyBatches controls whether a batch with no result set and no
	// message appears in query output.
	EmitEmptyBatches bool `json:"emit_empty_batches"`
	// TelemetryOptOut disables usage telemetry when true.
	TelemetryOptOut bool     `json:"telemetry_opt_out"`
	DB              DBConfig `json:"db"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	DSN      string `json:"dsn"`
	Provided bool   `json:"provided"`
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		LogLevel:         "info",
		BatchBufferSize:  16,
		EmitEmptyBatches: true,
		DB:               DBConfig{}, // DSN comes from env/keychain, not config
	}
}

// Load reads configuration; missing file returns defaults.
func Load() (Config, error) {
	var c Config
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	if c.BatchBufferSize <= 0 {
		c.BatchBufferSize = Default().BatchBufferSize
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// Manages engine configuration stored in config.json under the data dir.

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DriverFile and DriverSQLite select the durable backing store.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config stores engine-wide settings. Loaded from config.json in the data
// directory, created with defaults if missing.
type Config struct {
	// Driver selects the backing store: "file" or "sqlite".
	Driver string `json:"driver"`

	// MaxVersions bounds per-key version history.
	MaxVersions int `json:"max_versions"`

	// JanitorIntervalSec is how often the TTL janitor sweeps. 0 disables
	// the background sweep.
	JanitorIntervalSec int `json:"janitor_interval_sec"`

	// GitMirror commits the storage root to a local git repository after
	// backups and migrations.
	GitMirror bool `json:"git_mirror"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Driver:             DriverFile,
		MaxVersions:        defaultMaxVersions,
		JanitorIntervalSec: 0,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Driver != DriverFile && c.Driver != DriverSQLite {
		return fmt.Errorf("unknown driver: %q", c.Driver)
	}
	if c.MaxVersions <= 0 {
		return errors.New("max_versions must be positive")
	}
	if c.JanitorIntervalSec < 0 {
		return errors.New("janitor_interval_sec must be non-negative")
	}
	return nil
}

// LoadConfig loads configuration from dataDir/config.json, creating the
// file with defaults if it doesn't exist.
func LoadConfig(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.json")
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config.json: %w", err)
		}
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config.json: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config.json: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to dataDir/config.json.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dataDir, "config.json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config.json: %w", err)
	}
	return nil
}

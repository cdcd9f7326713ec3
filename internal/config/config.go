// Package config manages server configuration stored in server_config.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the configuration file name inside the data directory.
const FileName = "server_config.json"

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing.
type ServerConfig struct {
	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`

	// Krank configures the rankings service.
	Krank Krank `json:"krank"`

	// MaxBlobBytes limits the size of a single uploaded blob.
	MaxBlobBytes int64 `json:"max_blob_bytes"`

	// History enables the git history of every write under the data directory.
	History bool `json:"history"`
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// WriteRatePerMin limits write operations (POST).
	// 0 means unlimited.
	WriteRatePerMin int `json:"write_rate_per_min"`

	// WriteBurst is the number of writes accepted back to back.
	WriteBurst int `json:"write_burst"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.WriteBurst < 0 {
		return errors.New("write_burst must be non-negative")
	}
	return nil
}

// Krank configures the rankings service.
type Krank struct {
	// K is the Elo update factor.
	K float64 `json:"k"`
	// DefaultLast is the number of matches returned when a client does not
	// ask for a specific count.
	DefaultLast int `json:"default_last"`
}

// Validate checks the rankings settings.
func (k *Krank) Validate() error {
	if k.K <= 0 {
		return errors.New("k must be positive")
	}
	if k.DefaultLast <= 0 {
		return errors.New("default_last must be positive")
	}
	return nil
}

// Default returns the default configuration.
func Default() ServerConfig {
	return ServerConfig{
		RateLimits:   RateLimits{WriteRatePerMin: 60, WriteBurst: 10},
		Krank:        Krank{K: 16, DefaultLast: 10},
		MaxBlobBytes: 10 * 1024 * 1024, // 10 MiB
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	if err := c.Krank.Validate(); err != nil {
		return fmt.Errorf("krank: %w", err)
	}
	if c.MaxBlobBytes <= 0 {
		return errors.New("max_blob_bytes must be positive")
	}
	return nil
}

// LoadServerConfig loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist.
func LoadServerConfig(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, FileName)
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
		}
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}

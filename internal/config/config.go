// Package config loads the server configuration from config.yaml in the data
// directory, creating it with defaults on first run.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAdminID is the original deployment's sole administrator. It remains
// the default until the operator overrides admin_ids in config.yaml.
const DefaultAdminID uint64 = 44269255

// RateLimit configures the token bucket applied to write endpoints.
type RateLimit struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
	Burst         int `yaml:"burst"`
}

// Config holds the server configuration persisted in config.yaml.
type Config struct {
	// JWTSecret signs session tokens. Generated randomly on first run.
	JWTSecret string `yaml:"jwt_secret"`
	// AdminIDs is the set of user identifiers granted administrative
	// privilege.
	AdminIDs []uint64 `yaml:"admin_ids"`
	// SessionTTLHours bounds session (and token) validity.
	SessionTTLHours int `yaml:"session_ttl_hours"`
	// RateLimit applies to the like endpoint, keyed by client IP.
	RateLimit RateLimit `yaml:"rate_limit"`
	// ImageDir is the post image directory, relative to the data directory.
	ImageDir string `yaml:"image_dir"`
	// GitLog enables the git audit trail of the data directory.
	GitLog bool `yaml:"git_log"`
}

// SessionTTL returns the configured session validity as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func defaults() *Config {
	return &Config{
		AdminIDs:        []uint64{DefaultAdminID},
		SessionTTLHours: 24,
		RateLimit:       RateLimit{Requests: 60, WindowSeconds: 60, Burst: 10},
		ImageDir:        "images",
	}
}

// Load reads config.yaml from dataDir. A missing file is created with
// defaults and a fresh random JWT secret. Unset fields fall back to their
// defaults.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.yaml")
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		if err := save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		if err := save(path, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.SessionTTLHours <= 0 {
		cfg.SessionTTLHours = 24
	}
	if cfg.ImageDir == "" {
		cfg.ImageDir = "images"
	}
	return cfg, nil
}

func save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func randomSecret() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

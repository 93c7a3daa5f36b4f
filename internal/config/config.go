// Package config loads the daemon's bootstrap configuration from a JSON
// file with environment overrides and sensible defaults: where the
// workspace root lives, what port to listen on, and the logging level.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds daemon bootstrap configuration.
type Config struct {
	DataDir           string `json:"data_dir"`
	WorkspaceRoot     string `json:"workspace_root"`
	ListenPort        int    `json:"listen_port"`
	DefaultLeaseTTLMs int64  `json:"default_lease_ttl_ms"`
	LogLevel          string `json:"log_level"`
	Token             string `json:"-"`
}

// DefaultDataDir returns the default data directory (~/.teamd).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".teamd")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:           dataDir,
		WorkspaceRoot:     filepath.Join(dataDir, "workspace"),
		ListenPort:        0,
		DefaultLeaseTTLMs: 5 * 60 * 1000,
		LogLevel:          "info",
	}
}

// Load reads configuration from a JSON file, falling back to defaults for
// any unset fields, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.DataDir = expandTilde(cfg.DataDir)
	cfg.WorkspaceRoot = expandTilde(cfg.WorkspaceRoot)
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = filepath.Join(cfg.DataDir, "workspace")
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TEAM_WORKSPACE_ROOT"); v != "" {
		cfg.WorkspaceRoot = expandTilde(v)
	}
	if v := os.Getenv("TEAMD_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("TEAMD_LISTEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ListenPort = p
		}
	}
	if v := os.Getenv("TEAMD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0700)
}

// ConfigPath returns the default path to the daemon's config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}

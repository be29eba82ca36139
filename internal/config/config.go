// Package config resolves where teamworkflow keeps its data and how it runs.
package config

import (
	"os"
	"path/filepath"
)

const (
	AppName = "teamworkflow"

	DBFile = "teamworkflow.db"

	DefaultAddr     = ":8080"
	DefaultLogLevel = "info"

	EnvDB       = "TEAMWORKFLOW_DB"
	EnvAddr     = "TEAMWORKFLOW_ADDR"
	EnvLogLevel = "TEAMWORKFLOW_LOG_LEVEL"
)

// Config holds the runtime settings shared by every command. Planning
// parameters live in the database settings table, not here.
type Config struct {
	// Dir is the configuration directory.
	Dir string

	// DBPath is the SQLite database file.
	DBPath string

	// Addr is the listen address of the HTTP API.
	Addr string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Load builds a Config from the environment, falling back to defaults
// under the XDG config directory.
func Load() *Config {
	dir := DefaultConfigDir()
	c := &Config{
		Dir:      dir,
		DBPath:   filepath.Join(dir, DBFile),
		Addr:     DefaultAddr,
		LogLevel: DefaultLogLevel,
	}
	if v := os.Getenv(EnvDB); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return c
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/teamworkflow, or
// $HOME/.config/teamworkflow when XDG_CONFIG_HOME is unset.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// EnsureDir creates the directory holding the database.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(filepath.Dir(c.DBPath), 0o700)
}

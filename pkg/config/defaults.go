package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/ms2bridge/pkg/adapter/dbus"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the backend implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)

	// Add a default backend if none configured
	if len(cfg.Backends) == 0 {
		cfg.Backends = []BackendConfig{defaultBackend()}
	}
	applyBackendDefaults(cfg.Backends)

	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	// Limit 0 (unlimited) and RequestTimeout 0 (no timeout) are meaningful
}

// defaultBackend publishes the user's music directory.
func defaultBackend() BackendConfig {
	return BackendConfig{
		ID:   "grl-filesystem",
		Name: "Filesystem",
		Type: "filesystem",
		Filesystem: map[string]any{
			"root":   defaultMediaRoot(),
			"search": true,
		},
	}
}

func defaultMediaRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Music")
}

// applyBackendDefaults initializes the type-specific sections.
func applyBackendDefaults(backends []BackendConfig) {
	for i := range backends {
		b := &backends[i]
		if b.Memory == nil {
			b.Memory = make(map[string]any)
		}
		if b.Filesystem == nil {
			b.Filesystem = make(map[string]any)
		}
		if b.S3 == nil {
			b.S3 = make(map[string]any)
		}
		if b.Name == "" {
			b.Name = b.ID
		}
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the D-Bus adapter when the section was never written, so a
	// freshly loaded config has at least one adapter. An explicit
	// enabled: false next to a bus or address keeps it off.
	if !cfg.DBus.Enabled && cfg.DBus.Bus == "" && cfg.DBus.Address == "" {
		cfg.DBus.Enabled = true
	}

	applyDBusDefaults(&cfg.DBus)
}

// applyDBusDefaults sets D-Bus adapter defaults.
func applyDBusDefaults(cfg *dbus.Config) {
	if cfg.Bus == "" {
		cfg.Bus = dbus.BusSession
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Backends: []BackendConfig{defaultBackend()},
		Adapters: AdaptersConfig{
			DBus: dbus.Config{Enabled: true},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/ms2bridge/pkg/adapter/dbus"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
	if cfg.Server.RequestTimeout != 0 {
		t.Errorf("Expected no request timeout by default, got %v", cfg.Server.RequestTimeout)
	}
}

func TestApplyDefaults_Backends(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if len(cfg.Backends) != 1 {
		t.Fatalf("Expected 1 default backend, got %d", len(cfg.Backends))
	}
	b := cfg.Backends[0]
	if b.Type != "filesystem" {
		t.Errorf("Expected default backend type 'filesystem', got %q", b.Type)
	}
	root, ok := b.Filesystem["root"].(string)
	if !ok || filepath.Base(root) != "Music" {
		t.Errorf("Expected default root to be the Music directory, got %v", b.Filesystem["root"])
	}
	if b.Memory == nil || b.S3 == nil {
		t.Error("Expected type-specific maps to be initialized")
	}
}

func TestApplyDefaults_BackendName(t *testing.T) {
	cfg := &Config{
		Backends: []BackendConfig{
			{ID: "grl-radio", Type: "memory"},
			{ID: "grl-s3", Name: "Bucket", Type: "s3"},
		},
	}
	ApplyDefaults(cfg)

	if len(cfg.Backends) != 2 {
		t.Fatalf("Expected configured backends to be kept, got %d", len(cfg.Backends))
	}
	if cfg.Backends[0].Name != "grl-radio" {
		t.Errorf("Expected name to default to id, got %q", cfg.Backends[0].Name)
	}
	if cfg.Backends[1].Name != "Bucket" {
		t.Errorf("Expected explicit name 'Bucket', got %q", cfg.Backends[1].Name)
	}
}

func TestApplyDefaults_DBus(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if !cfg.Adapters.DBus.Enabled {
		t.Error("Expected D-Bus adapter enabled when unconfigured")
	}
	if cfg.Adapters.DBus.Bus != dbus.BusSession {
		t.Errorf("Expected default bus 'session', got %q", cfg.Adapters.DBus.Bus)
	}
	if cfg.Adapters.DBus.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default D-Bus shutdown timeout 30s, got %v", cfg.Adapters.DBus.ShutdownTimeout)
	}
}

func TestApplyDefaults_DBusDisabled(t *testing.T) {
	cfg := &Config{
		Adapters: AdaptersConfig{
			DBus: dbus.Config{Enabled: false, Bus: dbus.BusSystem},
		},
	}

	ApplyDefaults(cfg)

	if cfg.Adapters.DBus.Enabled {
		t.Error("Expected explicitly configured adapter to stay disabled")
	}
	if cfg.Adapters.DBus.Bus != dbus.BusSystem {
		t.Errorf("Expected explicit bus to be preserved, got %q", cfg.Adapters.DBus.Bus)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug", Format: "json", Output: "stderr"},
		Server: ServerConfig{
			ShutdownTimeout: 5 * time.Second,
			Limit:           10,
			RequestTimeout:  time.Second,
		},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected explicit shutdown timeout 5s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Limit != 10 {
		t.Errorf("Expected explicit limit 10, got %d", cfg.Server.Limit)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

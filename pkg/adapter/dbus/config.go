package dbus

import (
	"fmt"
	"time"
)

const (
	BusSession = "session"
	BusSystem  = "system"
)

// Config holds configuration parameters for the D-Bus adapter.
//
// Default values (applied by New if zero):
//   - Bus: session
//   - ShutdownTimeout: 30s
type Config struct {
	// Enabled controls whether the D-Bus adapter is active.
	Enabled bool `mapstructure:"enabled"`

	// Bus selects the message bus: "session" or "system".
	// Ignored when Address is set.
	Bus string `mapstructure:"bus" validate:"omitempty,oneof=session system"`

	// Address connects to an explicit bus address
	// (e.g., "unix:path=/run/user/1000/bus").
	Address string `mapstructure:"address"`

	// ShutdownTimeout bounds how long Stop waits for in-flight method calls.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.Bus == "" {
		c.Bus = BusSession
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Address == "" && c.Bus != BusSession && c.Bus != BusSystem {
		return fmt.Errorf("invalid bus %q: must be %q or %q", c.Bus, BusSession, BusSystem)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// describe returns the bus the adapter connects to, for logging.
func (c *Config) describe() string {
	if c.Address != "" {
		return c.Address
	}
	return c.Bus
}

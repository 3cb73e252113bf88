package config

import (
	"fmt"

	"github.com/marmos91/ms2bridge/pkg/adapter"
	"github.com/marmos91/ms2bridge/pkg/adapter/dbus"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: If no adapter is enabled
func CreateAdapters(cfg *Config) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.DBus.Enabled {
		adapters = append(adapters, dbus.New(cfg.Adapters.DBus))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}

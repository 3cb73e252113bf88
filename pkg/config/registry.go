package config

import (
	"context"
	"fmt"
	"slices"

	"github.com/marmos91/ms2bridge/internal/logger"
	"github.com/marmos91/ms2bridge/pkg/metrics"
	"github.com/marmos91/ms2bridge/pkg/registry"
)

// InitializeRegistry creates a Registry holding every configured backend.
//
// This function orchestrates the complete initialization process:
//  1. Creates an empty registry from the server settings
//  2. Creates each enabled backend from cfg.Backends
//  3. Registers the backends, in configuration order
//
// A backend that cannot be created or registered (incapable, duplicate
// display name, name collision) is logged and skipped; the remaining
// backends are still published.
//
// Parameters:
//   - ctx: Context for backend construction
//   - cfg: Complete configuration loaded from config file
//   - only: Backend ids to load; empty loads every enabled backend
//   - m: Bridge metrics passed to every endpoint (nil uses no-op)
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg, nil, nil)
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
func InitializeRegistry(ctx context.Context, cfg *Config, only []string, m metrics.BridgeMetrics) (*registry.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}

	logger.Debug("Initializing registry from configuration")

	for _, id := range only {
		if !slices.ContainsFunc(cfg.Backends, func(b BackendConfig) bool { return b.ID == id }) {
			logger.Warn("Requested backend %q is not configured", id)
		}
	}

	reg := registry.New(registry.Options{
		AllowDuplicates: cfg.Server.AllowDuplicates,
		Limit:           cfg.Server.Limit,
		RequestTimeout:  cfg.Server.RequestTimeout,
		Metrics:         m,
	})

	for _, bc := range cfg.Backends {
		if !bc.IsEnabled() {
			logger.Debug("Backend %q is disabled", bc.ID)
			continue
		}
		if len(only) > 0 && !slices.Contains(only, bc.ID) {
			logger.Debug("Backend %q not requested", bc.ID)
			continue
		}
		if err := ctx.Err(); err != nil {
			_ = reg.Close()
			return nil, err
		}

		logger.Debug("Creating backend %q (type: %s)", bc.ID, bc.Type)
		b, err := CreateBackend(ctx, bc)
		if err != nil {
			logger.Warn("Skipping backend %q: %v", bc.ID, err)
			continue
		}

		if _, err := reg.AddBackend(b); err != nil {
			logger.Warn("Skipping backend %q: %v", bc.ID, err)
			if cerr := b.Close(); cerr != nil {
				logger.Debug("Closing backend %q: %v", bc.ID, cerr)
			}
			continue
		}
	}

	logger.Debug("Registered %d endpoint(s)", reg.Count())
	return reg, nil
}

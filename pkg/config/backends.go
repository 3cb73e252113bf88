package config

import (
	"context"
	"fmt"

	"github.com/marmos91/ms2bridge/pkg/media"
	"github.com/marmos91/ms2bridge/pkg/media/filesystem"
	"github.com/marmos91/ms2bridge/pkg/media/memory"
	"github.com/marmos91/ms2bridge/pkg/media/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateBackend creates a media backend based on configuration.
//
// This factory function uses the Type field to determine which backend
// implementation to create, then decodes the type-specific configuration
// from the corresponding map and passes it to the backend's constructor.
//
// Supported types:
//   - "memory": Uses pkg/media/memory (static catalog from configuration)
//   - "filesystem": Uses pkg/media/filesystem (local directory tree)
//   - "s3": Uses pkg/media/s3 (Amazon S3 or compatible storage)
func CreateBackend(ctx context.Context, cfg BackendConfig) (media.Backend, error) {
	switch cfg.Type {
	case "memory":
		var bc memory.Config
		if err := decodeOptions(cfg.Memory, &bc); err != nil {
			return nil, fmt.Errorf("failed to decode memory backend config: %w", err)
		}
		return memory.NewFromConfig(cfg.ID, cfg.Name, bc)

	case "filesystem":
		var bc filesystem.Config
		if err := decodeOptions(cfg.Filesystem, &bc); err != nil {
			return nil, fmt.Errorf("failed to decode filesystem backend config: %w", err)
		}
		if err := validate.Struct(bc); err != nil {
			return nil, fmt.Errorf("filesystem backend: %w", formatValidationError(err))
		}
		return filesystem.New(cfg.ID, cfg.Name, bc)

	case "s3":
		var bc s3.Config
		if err := decodeOptions(cfg.S3, &bc); err != nil {
			return nil, fmt.Errorf("failed to decode S3 backend config: %w", err)
		}
		if err := validate.Struct(bc); err != nil {
			return nil, fmt.Errorf("S3 backend: %w", formatValidationError(err))
		}
		return s3.NewFromConfig(ctx, cfg.ID, cfg.Name, bc)

	default:
		return nil, fmt.Errorf("unknown backend type: %q", cfg.Type)
	}
}

// decodeOptions decodes a type-specific section into target. Durations may
// be written as strings ("1h") and unknown keys are rejected.
func decodeOptions(options map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

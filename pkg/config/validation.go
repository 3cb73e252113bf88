package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/ms2bridge/pkg/registry"
)

// validate checks struct tags. Field errors are reported with their
// configuration key names (server.metrics.port) rather than Go field names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks cfg after defaults have been applied. Log levels are
// accepted in either case; ApplyDefaults normalizes them.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return checkBackends(cfg)
}

// checkBackends enforces the rules tags cannot express: backend ids and the
// endpoint names derived from them must be unique, and something has to
// publish them. Display names may repeat; the registry decides at runtime
// according to allow_duplicates.
func checkBackends(cfg *Config) error {
	if len(cfg.Backends) == 0 {
		return fmt.Errorf("backends: at least one backend must be configured")
	}

	ids := make(map[string]int, len(cfg.Backends))
	endpoints := make(map[string]int, len(cfg.Backends))
	for i, b := range cfg.Backends {
		if j, seen := ids[b.ID]; seen {
			return fmt.Errorf("backends[%d]: duplicate backend id %q (see backends[%d])", i, b.ID, j)
		}
		ids[b.ID] = i

		name := registry.SanitizeName(b.ID)
		if j, seen := endpoints[name]; seen {
			return fmt.Errorf("backends[%d]: id %q maps to endpoint %s, already used by %q",
				i, b.ID, name, cfg.Backends[j].ID)
		}
		endpoints[name] = i
	}

	if !cfg.Adapters.DBus.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}
	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == 0 {
		return fmt.Errorf("server.metrics: port is required when metrics are enabled")
	}
	return nil
}

// formatValidationError reports every failed field, one per line, keyed by
// its path below the configuration root.
func formatValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	msgs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := fe.Namespace()
		if _, rest, ok := strings.Cut(key, "."); ok {
			key = rest
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Errorf("%s: must satisfy %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Errorf("%s: must satisfy %s (got %v)", key, fe.Tag(), fe.Value()))
		}
	}
	return errors.Join(msgs...)
}

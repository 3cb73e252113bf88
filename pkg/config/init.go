package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a sample configuration file to the default location.
//
// Returns the path of the written file. Fails when the file already exists
// unless force is set.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath writes a sample configuration file to configPath,
// creating parent directories as needed.
func InitConfigToPath(configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as a commented YAML document.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var sb strings.Builder

	sb.WriteString("# ms2bridge Configuration File\n")
	sb.WriteString("#\n")
	sb.WriteString("# Every setting can be overridden with an MS2BRIDGE_ environment variable,\n")
	sb.WriteString("# e.g. MS2BRIDGE_LOGGING_LEVEL=DEBUG.\n\n")

	sb.WriteString("# Logging configuration\n")
	sb.WriteString("logging:\n")
	sb.WriteString("  # Log level: DEBUG, INFO, WARN, ERROR\n")
	fmt.Fprintf(&sb, "  level: %s\n", scalar(cfg.Logging.Level))
	sb.WriteString("  # Log format: text, json\n")
	fmt.Fprintf(&sb, "  format: %s\n", scalar(cfg.Logging.Format))
	sb.WriteString("  # Output: stdout, stderr, or a file path\n")
	fmt.Fprintf(&sb, "  output: %s\n\n", scalar(cfg.Logging.Output))

	sb.WriteString("# Server-wide settings\n")
	sb.WriteString("server:\n")
	sb.WriteString("  # Maximum time to wait for adapters to stop\n")
	fmt.Fprintf(&sb, "  shutdown_timeout: %s\n", cfg.Server.ShutdownTimeout)
	sb.WriteString("  # Maximum number of objects per listing or search (0 = unlimited)\n")
	fmt.Fprintf(&sb, "  limit: %d\n", cfg.Server.Limit)
	sb.WriteString("  # Publish backends whose display name is already taken\n")
	fmt.Fprintf(&sb, "  allow_duplicates: %t\n", cfg.Server.AllowDuplicates)
	sb.WriteString("  # Upper bound for a single backend request (0 = no timeout)\n")
	fmt.Fprintf(&sb, "  request_timeout: %s\n", cfg.Server.RequestTimeout)
	sb.WriteString("  metrics:\n")
	fmt.Fprintf(&sb, "    enabled: %t\n", cfg.Server.Metrics.Enabled)
	fmt.Fprintf(&sb, "    port: %d\n\n", cfg.Server.Metrics.Port)

	sb.WriteString("# Media backends. Each one is published as a separate MediaServer2 service.\n")
	sb.WriteString("# Types: memory, filesystem, s3\n")
	sb.WriteString("backends:\n")
	for _, b := range cfg.Backends {
		fmt.Fprintf(&sb, "  - id: %s\n", scalar(b.ID))
		fmt.Fprintf(&sb, "    name: %s\n", scalar(b.Name))
		fmt.Fprintf(&sb, "    type: %s\n", scalar(b.Type))

		var section map[string]any
		switch b.Type {
		case "memory":
			section = b.Memory
		case "filesystem":
			section = b.Filesystem
		case "s3":
			section = b.S3
		}
		if len(section) > 0 {
			body, err := yaml.Marshal(sortedSection(section))
			if err != nil {
				return "", fmt.Errorf("backend %q: %w", b.ID, err)
			}
			fmt.Fprintf(&sb, "    %s:\n", b.Type)
			sb.WriteString(indent(string(body), "      "))
		}
	}
	sb.WriteString(`
  # Example S3 backend:
  # - id: grl-s3
  #   name: Bucket
  #   type: s3
  #   s3:
  #     bucket: my-media
  #     region: us-east-1
  #     prefix: music/
  #     presign_ttl: 1h

  # Example memory backend:
  # - id: grl-radio
  #   name: Radio
  #   type: memory
  #   memory:
  #     searchable: true
  #     nodes:
  #       - id: stations
  #         title: Stations
  #         kind: container
  #       - id: jazz
  #         parent: stations
  #         title: Jazz FM
  #         kind: audio
  #         mime: audio/mpeg
  #         url: http://example.com/jazz.mp3

`)

	sb.WriteString("# Protocol adapters\n")
	sb.WriteString("adapters:\n")
	sb.WriteString("  dbus:\n")
	fmt.Fprintf(&sb, "    enabled: %t\n", cfg.Adapters.DBus.Enabled)
	sb.WriteString("    # Bus to connect to: session, system\n")
	fmt.Fprintf(&sb, "    bus: %s\n", scalar(cfg.Adapters.DBus.Bus))
	sb.WriteString("    # Explicit bus address, overrides bus when set\n")
	fmt.Fprintf(&sb, "    address: %s\n", scalar(cfg.Adapters.DBus.Address))
	fmt.Fprintf(&sb, "    shutdown_timeout: %s\n", cfg.Adapters.DBus.ShutdownTimeout)

	return sb.String(), nil
}

// scalar renders v as a YAML scalar, quoting where required.
func scalar(v any) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return strings.TrimSpace(string(out))
}

// sortedSection converts a section to a yaml.Node with sorted keys.
func sortedSection(section map[string]any) *yaml.Node {
	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		var value yaml.Node
		if err := value.Encode(section[k]); err != nil {
			continue
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			&value,
		)
	}
	return node
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}

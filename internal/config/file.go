package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// secretKeys are blanked by Redacted.
var secretKeys = []string{"rpc_password", "api_key", "api_jwt_secret"}

// Marshal encodes the configuration in the given format: toml, yaml or json.
func (c *Config) Marshal(format string) ([]byte, error) {
	return marshalSettings(c.Settings(), format)
}

// Redacted returns the settings map with credentials masked.
func (c *Config) Redacted() map[string]interface{} {
	settings := c.Settings()
	for _, key := range secretKeys {
		if s, ok := settings[key].(string); ok && s != "" {
			settings[key] = "********"
		}
	}
	return settings
}

func marshalSettings(settings map[string]interface{}, format string) ([]byte, error) {
	switch format {
	case "toml":
		return toml.Marshal(settings)
	case "yaml", "yml":
		return yaml.Marshal(settings)
	case "json":
		return json.MarshalIndent(settings, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}
}

// FormatFromPath returns the config format implied by the file extension.
func FormatFromPath(path string) (string, error) {
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		return "toml", nil
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json":
		return "json", nil
	default:
		return "", fmt.Errorf("unsupported config format: %s", ext)
	}
}

// WriteFile writes cfg to path in the format implied by its extension.
// The file is written to a temporary sibling first and renamed into place.
func WriteFile(path string, cfg *Config) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	data, err := cfg.Marshal(format)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write atomically
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

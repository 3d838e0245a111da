// Package config loads the host configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plugin backends.
const (
	BackendNative = "native"
	BackendLua    = "lua"
)

// Config is the YAML host configuration.
type Config struct {
	// MetadataDir holds the plugin descriptors (<id>.json).
	MetadataDir string `yaml:"metadata_dir"`

	// ModuleDir holds the plugin modules (shared objects or Lua
	// plugin directories, depending on the backend).
	ModuleDir string `yaml:"module_dir"`

	// FrameworkVersion is the host version announced to plugins.
	FrameworkVersion string `yaml:"framework_version"`

	// Backend selects the module loader: "native" or "lua".
	Backend string `yaml:"backend"`

	// GrantsFile persists permission grants across restarts. Empty
	// disables persistence.
	GrantsFile string `yaml:"grants_file"`

	// Plugins carries per-plugin host settings keyed by plugin id.
	Plugins map[string]PluginConfig `yaml:"plugins"`
}

// PluginConfig is the per-plugin block.
type PluginConfig struct {
	// Enabled marks the plugin for activation at startup.
	Enabled bool `yaml:"enabled"`

	// Grants lists permissions granted to the plugin.
	Grants []string `yaml:"grants"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MetadataDir:      "plugins.d",
		ModuleDir:        "plugins",
		FrameworkVersion: "1.0.0",
		Backend:          BackendNative,
	}
}

// Load reads a YAML configuration file. Fields not present in the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.MetadataDir == "" {
		return fmt.Errorf("metadata_dir must not be empty")
	}
	if c.ModuleDir == "" {
		return fmt.Errorf("module_dir must not be empty")
	}
	if c.FrameworkVersion == "" {
		return fmt.Errorf("framework_version must not be empty")
	}
	switch c.Backend {
	case BackendNative, BackendLua:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

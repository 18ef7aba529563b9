// Package config provides configuration management for protock.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is protock's configuration: just the two concerns a one-shot CLI
// still needs a file for, default check mode/strictness and log shape.
type Config struct {
	Check   CheckConfig   `yaml:"check"`
	Logging LoggingConfig `yaml:"logging"`
}

// CheckConfig controls the compatibility engine's default behavior when
// the CLI flags don't override it.
type CheckConfig struct {
	DefaultMode string `yaml:"default_mode"` // forward, backward, both

	// WarningsAsErr only raises how loudly warnings are surfaced; it never
	// changes the process exit code. Per spec, exit is 0 iff no check
	// appended an error-severity record, regardless of this setting.
	WarningsAsErr bool `yaml:"warnings_as_errors"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Check: CheckConfig{
			DefaultMode: "backward",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables override file configuration; an empty path skips
// the file entirely and returns defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path is from command-line argument, user-controlled input is expected
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PROTOCK_MODE"); v != "" {
		c.Check.DefaultMode = v
	}
	if v := os.Getenv("PROTOCK_WARNINGS_AS_ERRORS"); v != "" {
		c.Check.WarningsAsErr = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("PROTOCK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PROTOCK_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validModes := map[string]bool{"forward": true, "backward": true, "both": true}
	mode := strings.ToLower(c.Check.DefaultMode)
	if !validModes[mode] {
		return fmt.Errorf("invalid check mode: %s", c.Check.DefaultMode)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	format := strings.ToLower(c.Logging.Format)
	if !validFormats[format] {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	return nil
}

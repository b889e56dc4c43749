package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables follow the naming convention
// SYNAPSE_SECTION_FIELD (e.g., SYNAPSE_SERVER_LISTEN_ADDRESS) and always take
// precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("SYNAPSE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("SYNAPSE_LOG_LEVEL"); val != "" {
		cfg.Telemetry.LogLevel = val
	}
	if val := os.Getenv("SYNAPSE_VOICE_LIBRARY_DIR"); val != "" {
		cfg.Voices.LibraryDir = val
	}
	if val := os.Getenv("SYNAPSE_MODEL_PROFILE_DB_PATH"); val != "" {
		cfg.Models.ProfileDBPath = val
	}
	if val := os.Getenv("SYNAPSE_MODEL_RECONFIGURE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Models.ReconfigureTimeout = d
		}
	}
	if val := os.Getenv("SYNAPSE_INSTANCE_ID"); val != "" {
		cfg.TerminalFeed.InstanceID = val
	}
	if val := os.Getenv("SYNAPSE_TERMINAL_FEED_MODE"); val != "" {
		cfg.TerminalFeed.Mode = val
	}
	if val := os.Getenv("SYNAPSE_TERMINAL_FEED_BUS_MODE"); val != "" {
		cfg.TerminalFeed.BusMode = val
	}
	if val := os.Getenv("SYNAPSE_TERMINAL_FEED_REDIS_ADDR"); val != "" {
		cfg.TerminalFeed.RedisAddr = val
	}
	if val := os.Getenv("SYNAPSE_TERMINAL_FEED_ACCESS_TOKEN"); val != "" {
		cfg.TerminalFeed.AccessToken = val
	}
	if val := os.Getenv("SYNAPSE_TERMINAL_FEED_BACKLOG_LINES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.TerminalFeed.BacklogLines = n
		}
	}
}

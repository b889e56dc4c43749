package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// validBackendTypes are the recognized backend type tags. The tag selects
// both the proxy translation strategy and the timeout class.
var validBackendTypes = map[string]bool{
	"llm":        true,
	"embeddings": true,
	"tts":        true,
	"stt":        true,
	"speaker":    true,
	"audio":      true,
	"default":    true,
}

var validFeedLevels = map[string]bool{
	"DEBUG":    true,
	"INFO":     true,
	"WARNING":  true,
	"ERROR":    true,
	"CRITICAL": true,
}

// Validate checks the configuration for errors. It returns the first
// problem found.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}

	if len(cfg.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}
	for name, b := range cfg.Backends {
		if name == "" {
			return fmt.Errorf("backend name cannot be empty")
		}
		if b.URL == "" {
			return fmt.Errorf("backend %q: url cannot be empty", name)
		}
		u, err := url.Parse(b.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend %q: invalid url %q", name, b.URL)
		}
		if !validBackendTypes[b.Type] {
			return fmt.Errorf("backend %q: unknown type %q", name, b.Type)
		}
		if !strings.HasPrefix(b.Health, "/") {
			return fmt.Errorf("backend %q: health path must start with /", name)
		}
	}

	for pattern, target := range cfg.Routes {
		if !strings.HasPrefix(pattern, "/") {
			return fmt.Errorf("route pattern %q must start with /", pattern)
		}
		if strings.Contains(strings.TrimSuffix(pattern, "/*"), "*") {
			return fmt.Errorf("route pattern %q: wildcard is only allowed as a trailing /*", pattern)
		}
		if _, ok := cfg.Backends[target]; !ok {
			return fmt.Errorf("route %q targets unknown backend %q", pattern, target)
		}
	}

	if _, ok := cfg.Backends[cfg.Models.RuntimeBackend]; !ok {
		return fmt.Errorf("models.runtime_backend %q is not a configured backend", cfg.Models.RuntimeBackend)
	}
	if cfg.Models.ReconfigureTimeout <= 0 {
		return fmt.Errorf("models.reconfigure_timeout must be positive")
	}
	if _, ok := cfg.Backends[cfg.Voices.TTSBackend]; !ok {
		return fmt.Errorf("voices.tts_backend %q is not a configured backend", cfg.Voices.TTSBackend)
	}
	if cfg.Voices.MaxReferenceFiles < 1 {
		return fmt.Errorf("voices.max_reference_files must be at least 1")
	}
	if cfg.Voices.MaxReferenceBytes < 44 {
		return fmt.Errorf("voices.max_reference_bytes is smaller than a WAV header")
	}

	tf := &cfg.TerminalFeed
	switch tf.Mode {
	case "live", "off":
	default:
		return fmt.Errorf("terminal_feed.mode must be \"live\" or \"off\", got %q", tf.Mode)
	}
	switch tf.BusMode {
	case "local":
	case "redis":
		if tf.RedisAddr == "" {
			return fmt.Errorf("terminal_feed.redis_addr is required when bus_mode is \"redis\"")
		}
	default:
		return fmt.Errorf("terminal_feed.bus_mode must be \"local\" or \"redis\", got %q", tf.BusMode)
	}
	if !validFeedLevels[strings.ToUpper(tf.DefaultLevel)] {
		return fmt.Errorf("terminal_feed.default_level %q is not a known level", tf.DefaultLevel)
	}
	if tf.BacklogLines > tf.BufferSize {
		return fmt.Errorf("terminal_feed.backlog_lines (%d) cannot exceed buffer_size (%d)", tf.BacklogLines, tf.BufferSize)
	}
	for _, raw := range strings.Split(tf.RedactExtraPatterns, "||") {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("terminal_feed.redact_extra_patterns: invalid pattern %q: %w", pattern, err)
		}
	}

	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.log_level %q is not a known level", cfg.Telemetry.LogLevel)
	}

	return nil
}

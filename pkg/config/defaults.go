package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApplyDefaults fills in default values for any unset configuration fields.
// It is called automatically by LoadConfig before validation.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "0.0.0.0:8000"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = 3600
	}

	// Backend defaults
	for name, b := range cfg.Backends {
		if b.Health == "" {
			b.Health = "/health"
		}
		if b.Type == "" {
			b.Type = "default"
		}
		cfg.Backends[name] = b
	}

	// Models defaults
	if cfg.Models.RuntimeBackend == "" {
		cfg.Models.RuntimeBackend = "llama-router"
	}
	if cfg.Models.ProfileDBPath == "" {
		cfg.Models.ProfileDBPath = "/data/profiles.db"
	}
	if cfg.Models.LoadPollInterval == 0 {
		cfg.Models.LoadPollInterval = 2 * time.Second
	}
	if cfg.Models.ReconfigureTimeout == 0 {
		cfg.Models.ReconfigureTimeout = 180 * time.Second
	}
	if cfg.Models.Kubernetes.Namespace == "" {
		cfg.Models.Kubernetes.Namespace = "default"
	}

	// Voices defaults
	if cfg.Voices.LibraryDir == "" {
		cfg.Voices.LibraryDir = "/data/voices"
	}
	if cfg.Voices.TTSBackend == "" {
		cfg.Voices.TTSBackend = "chatterbox-tts"
	}
	if cfg.Voices.MaxReferenceFiles == 0 {
		cfg.Voices.MaxReferenceFiles = 10
	}
	if cfg.Voices.MaxReferenceBytes == 0 {
		cfg.Voices.MaxReferenceBytes = 50 << 20
	}

	// Terminal feed defaults
	if cfg.TerminalFeed.Mode == "" {
		cfg.TerminalFeed.Mode = "live"
	}
	if cfg.TerminalFeed.BufferSize == 0 {
		cfg.TerminalFeed.BufferSize = 1000
	}
	if cfg.TerminalFeed.BacklogLines == 0 {
		cfg.TerminalFeed.BacklogLines = 80
	}
	if cfg.TerminalFeed.SubscriberQueueSize == 0 {
		cfg.TerminalFeed.SubscriberQueueSize = 200
	}
	if cfg.TerminalFeed.MaxLineChars == 0 {
		cfg.TerminalFeed.MaxLineChars = 2000
	}
	if cfg.TerminalFeed.KeepaliveInterval == 0 {
		cfg.TerminalFeed.KeepaliveInterval = 15 * time.Second
	}
	if cfg.TerminalFeed.DefaultLevel == "" {
		cfg.TerminalFeed.DefaultLevel = "INFO"
	}
	if cfg.TerminalFeed.InstanceID == "" {
		cfg.TerminalFeed.InstanceID = fmt.Sprintf("synapse-%s", uuid.NewString()[:8])
	}
	if cfg.TerminalFeed.BusMode == "" {
		cfg.TerminalFeed.BusMode = "local"
	}
	if cfg.TerminalFeed.RedisChannel == "" {
		cfg.TerminalFeed.RedisChannel = "synapse:terminal_feed"
	}

	// Telemetry defaults
	if cfg.Telemetry.LogLevel == "" {
		cfg.Telemetry.LogLevel = "info"
	}
	if cfg.Telemetry.LogFormat == "" {
		cfg.Telemetry.LogFormat = "text"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "synapse"
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = "gateway"
	}
	if cfg.Telemetry.Metrics.HealthRefreshSchedule == "" {
		cfg.Telemetry.Metrics.HealthRefreshSchedule = "@every 1m"
	}
}

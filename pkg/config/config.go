package config

import "time"

// Config is the root configuration structure for the Synapse gateway.
// It is loaded once at startup; the backend registry and routing table
// derived from it are immutable for the life of the process.
type Config struct {
	// Server contains HTTP server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Backends is the backend registry. Keys are backend names
	// (e.g., "ollama", "chatterbox-tts").
	Backends map[string]BackendConfig `yaml:"backends"`

	// Routes maps URL path patterns to backend names. Patterns are either
	// exact paths ("/v1/embeddings") or trailing-wildcard prefixes
	// ("/stt/*"). Routes not listed here are handled by gateway-local
	// components (models, voices, events, health).
	Routes map[string]string `yaml:"routes"`

	// Models contains model lifecycle orchestration settings.
	Models ModelsConfig `yaml:"models"`

	// Voices contains voice library settings.
	Voices VoicesConfig `yaml:"voices"`

	// TerminalFeed contains live log feed settings.
	TerminalFeed TerminalFeedConfig `yaml:"terminal_feed"`

	// Telemetry contains logging and metrics settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the gateway HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "0.0.0.0:8000"
	ListenAddress string `yaml:"listen_address"`

	// ReadHeaderTimeout bounds reading of request headers. Request bodies
	// are not bounded here because uploads and long completions stream.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration for the gateway surface.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins. Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "PUT", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache age in seconds. Default: 3600
	MaxAge int `yaml:"max_age"`
}

// BackendConfig describes one upstream inference service.
type BackendConfig struct {
	// URL is the backend's base URL, e.g. "http://ollama:11434".
	URL string `yaml:"url"`

	// Type tags the backend for proxy translation and timeout selection.
	// One of: llm, embeddings, tts, stt, speaker, audio, default.
	Type string `yaml:"type"`

	// Health is the backend's health endpoint path. Default: "/health"
	Health string `yaml:"health"`
}

// ModelsConfig contains model lifecycle orchestration settings.
type ModelsConfig struct {
	// RuntimeBackend is the name of the backend entry that hosts the
	// single-slot LLM runtime. Default: "llama-router"
	RuntimeBackend string `yaml:"runtime_backend"`

	// MultiModel indicates the backing runtime can keep several models
	// loaded at once. When false (the default) the runtime is treated as
	// single-slot: loading a second model evicts the first.
	MultiModel bool `yaml:"multi_model"`

	// CoderModel is the model id auto-routing resolves for
	// coding-flavored prompts.
	CoderModel string `yaml:"coder_model"`

	// GeneralModel is the model id auto-routing resolves for everything
	// else, and the fallback when no classification applies.
	GeneralModel string `yaml:"general_model"`

	// CodingKeywords overrides the built-in keyword list used by the
	// auto-routing prompt classifier. Leave empty for defaults.
	CodingKeywords []string `yaml:"coding_keywords"`

	// ProfileDBPath is the SQLite file holding persisted model profiles.
	// Default: "/data/profiles.db"
	ProfileDBPath string `yaml:"profile_db_path"`

	// LoadPollInterval is how often to poll the runtime while waiting for
	// a model to reach loaded/failed. Default: 2s
	LoadPollInterval time.Duration `yaml:"load_poll_interval"`

	// ReconfigureTimeout bounds the wait for the backing runtime to come
	// back after a runtime-argument patch. Default: 180s
	ReconfigureTimeout time.Duration `yaml:"reconfigure_timeout"`

	// Kubernetes describes the deployment the runtime controller patches
	// when runtime-affecting profile fields change. Reconfiguration is
	// disabled when the deployment name is empty.
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
}

// KubernetesConfig identifies the runtime deployment for arg patching.
type KubernetesConfig struct {
	// Namespace of the runtime deployment. Default: "default"
	Namespace string `yaml:"namespace"`

	// Deployment is the deployment name, e.g. "llama-router".
	Deployment string `yaml:"deployment"`

	// Container is the container whose args carry runtime flags.
	Container string `yaml:"container"`
}

// VoicesConfig contains voice library settings.
type VoicesConfig struct {
	// LibraryDir is the durable directory tree holding voice profiles.
	// Default: "/data/voices"
	LibraryDir string `yaml:"library_dir"`

	// TTSBackend is the name of the backend entry references are uploaded
	// to for synthesis. Default: "chatterbox-tts"
	TTSBackend string `yaml:"tts_backend"`

	// MaxReferenceFiles caps files per create/add request. Default: 10
	MaxReferenceFiles int `yaml:"max_reference_files"`

	// MaxReferenceBytes caps each reference file size. Default: 50 MiB
	MaxReferenceBytes int64 `yaml:"max_reference_bytes"`

	// WatchLibrary enables a filesystem watcher that invalidates upload
	// cache entries when reference files change outside the gateway.
	// Default: false
	WatchLibrary bool `yaml:"watch_library"`
}

// TerminalFeedConfig contains live log feed settings.
type TerminalFeedConfig struct {
	// Mode is "live" or "off". Default: "live"
	Mode string `yaml:"mode"`

	// BufferSize is the ring buffer capacity (lines). Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// BacklogLines is how many buffered lines a new subscriber replays.
	// Clamped to BufferSize. Default: 80
	BacklogLines int `yaml:"backlog_lines"`

	// SubscriberQueueSize bounds each subscriber's queue; overflow drops
	// that subscriber's oldest queued event. Default: 200
	SubscriberQueueSize int `yaml:"subscriber_queue_size"`

	// MaxLineChars caps event message length before truncation.
	// Default: 2000
	MaxLineChars int `yaml:"max_line_chars"`

	// KeepaliveInterval is how often an idle SSE connection receives a
	// comment frame. Default: 15s
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// DefaultLevel is the minimum level served when a subscriber does not
	// ask for one. Default: "INFO"
	DefaultLevel string `yaml:"default_level"`

	// RedactExtraPatterns holds additional redaction regexes separated by
	// "||". Invalid patterns are skipped.
	RedactExtraPatterns string `yaml:"redact_extra_patterns"`

	// AccessToken gates GET /events/terminal via cookie when non-empty.
	AccessToken string `yaml:"access_token"`

	// InstanceID stamps events originating on this replica.
	// Default: "synapse-" + short random suffix.
	InstanceID string `yaml:"instance_id"`

	// BusMode is "local" or "redis". In redis mode events are mirrored
	// across replicas over a shared pub/sub channel. Default: "local"
	BusMode string `yaml:"bus_mode"`

	// RedisAddr is the redis host:port for bus_mode=redis.
	RedisAddr string `yaml:"redis_addr"`

	// RedisChannel is the pub/sub channel name.
	// Default: "synapse:terminal_feed"
	RedisChannel string `yaml:"redis_channel"`
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	// LogLevel is the minimum slog level ("debug", "info", "warn",
	// "error"). Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "json" or "text". Default: "text"
	LogFormat string `yaml:"log_format"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served.
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric namespace. Default: "synapse"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem. Default: "gateway"
	Subsystem string `yaml:"subsystem"`

	// HealthRefreshSchedule is a cron expression for the background
	// health snapshot refresh. Empty disables the scheduled refresh.
	// Default: "@every 1m"
	HealthRefreshSchedule string `yaml:"health_refresh_schedule"`
}

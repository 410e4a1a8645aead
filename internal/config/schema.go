// Package config provides configuration management for Railhead.
package config

import (
	"time"
)

// ConfigFileNames are the base names searched for configuration files.
var ConfigFileNames = []string{"railhead", "railhead.config"}

// ConfigFileExtensions are the recognized configuration file extensions.
var ConfigFileExtensions = []string{"yaml", "yml", "json", "toml"}

// Config is the root configuration for Railhead.
type Config struct {
	// Database configures the PostgreSQL connection.
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	// Scheduler configures the orchestration tick loop.
	Scheduler SchedulerConfig `mapstructure:"scheduler" json:"scheduler"`
	// Providers configures the available provider implementations.
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`
	// Notifications configures messaging fan-out.
	Notifications NotificationsConfig `mapstructure:"notifications" json:"notifications"`
	// AI configures optional release notes enrichment.
	AI AIConfig `mapstructure:"ai" json:"ai"`
	// Artifacts configures manual build artifact storage.
	Artifacts ArtifactsConfig `mapstructure:"artifacts" json:"artifacts"`
	// Observability configures the metrics and health endpoint.
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability"`
	// Output configures output settings.
	Output OutputConfig `mapstructure:"output" json:"output"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	// DSN is the PostgreSQL connection string (can use env var expansion).
	DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int `mapstructure:"max_open_conns" json:"max_open_conns"`
	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int `mapstructure:"max_idle_conns" json:"max_idle_conns"`
	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
	// AutoMigrate applies pending migrations at daemon start.
	AutoMigrate bool `mapstructure:"auto_migrate" json:"auto_migrate"`
}

// SchedulerConfig configures the orchestration tick loop.
type SchedulerConfig struct {
	// Interval is the time between scheduler ticks.
	Interval time.Duration `mapstructure:"interval" json:"interval"`
	// Concurrency is the maximum number of releases advanced in parallel per tick.
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`
	// ExecuteTimeout is the soft deadline for one orchestrator execute.
	ExecuteTimeout time.Duration `mapstructure:"execute_timeout" json:"execute_timeout"`
	// LeaseTTL is how long a CronJob lease is honored before it counts as abandoned.
	LeaseTTL time.Duration `mapstructure:"lease_ttl" json:"lease_ttl"`
	// InstanceID overrides the generated scheduler instance identity.
	InstanceID string `mapstructure:"instance_id" json:"instance_id,omitempty"`
	// PollPendingInterval is the cadence of the pending workflow poll job.
	PollPendingInterval time.Duration `mapstructure:"poll_pending_interval" json:"poll_pending_interval"`
	// PollRunningInterval is the cadence of the running workflow poll job.
	PollRunningInterval time.Duration `mapstructure:"poll_running_interval" json:"poll_running_interval"`
}

// ProvidersConfig configures provider implementations and call hardening.
type ProvidersConfig struct {
	// CallTimeout is the per-call timeout applied to every provider invocation.
	CallTimeout time.Duration `mapstructure:"call_timeout" json:"call_timeout"`
	// Resilience configures retry, circuit breaking, and rate limiting.
	Resilience ResilienceConfig `mapstructure:"resilience" json:"resilience"`
	// Git configures the local git SCM provider.
	Git GitProviderConfig `mapstructure:"git" json:"git"`
	// Webhook configures the webhook messaging provider.
	Webhook WebhookProviderConfig `mapstructure:"webhook" json:"webhook"`
	// Memory enables the in-memory provider set for local development.
	Memory MemoryProviderConfig `mapstructure:"memory" json:"memory"`
}

// ResilienceConfig configures provider call hardening.
type ResilienceConfig struct {
	// RetryAttempts is the number of attempts per provider call.
	RetryAttempts int `mapstructure:"retry_attempts" json:"retry_attempts"`
	// RetryInitialDelay is the delay before the first retry.
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay" json:"retry_initial_delay"`
	// RetryMaxDelay caps the exponential backoff delay.
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay" json:"retry_max_delay"`
	// RateLimit is the allowed provider calls per interval (0 disables).
	RateLimit int `mapstructure:"rate_limit" json:"rate_limit"`
	// RateBurst is the rate limiter burst size.
	RateBurst int `mapstructure:"rate_burst" json:"rate_burst"`
	// BreakerThreshold is the consecutive failure count that opens the circuit.
	BreakerThreshold int `mapstructure:"breaker_threshold" json:"breaker_threshold"`
	// BreakerCooldown is how long an open circuit waits before probing again.
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" json:"breaker_cooldown"`
}

// GitProviderConfig configures the local git SCM provider.
type GitProviderConfig struct {
	// Enabled registers the git provider under provider type "git".
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// RepoPath is the path to the repository the provider operates on.
	RepoPath string `mapstructure:"repo_path" json:"repo_path,omitempty"`
	// DefaultRemote is the remote used when pushing refs (default: "origin").
	DefaultRemote string `mapstructure:"default_remote" json:"default_remote,omitempty"`
	// Push pushes created branches and tags to the default remote.
	Push bool `mapstructure:"push" json:"push"`
}

// WebhookProviderConfig configures the webhook messaging provider.
type WebhookProviderConfig struct {
	// Enabled registers the webhook messenger under provider type "webhook".
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Endpoint is the URL notifications are POSTed to (can use env var expansion).
	Endpoint string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	// Secret signs payloads with HMAC-SHA256 (can use env var expansion).
	Secret string `mapstructure:"secret" json:"secret,omitempty"`
	// Timeout is the delivery timeout per notification.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// MemoryProviderConfig enables the in-memory provider set.
type MemoryProviderConfig struct {
	// Enabled registers deterministic in-memory providers under provider
	// type "memory". Intended for local development and tests.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// NotificationsConfig configures messaging fan-out.
type NotificationsConfig struct {
	// Enabled turns notification dispatch on.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// TemplatesPath points to a YAML catalog overriding the embedded templates.
	TemplatesPath string `mapstructure:"templates_path" json:"templates_path,omitempty"`
	// DefaultChannel is the channel messages are addressed to when a task
	// does not name one.
	DefaultChannel string `mapstructure:"default_channel" json:"default_channel,omitempty"`
}

// AIConfig configures optional release notes enrichment.
type AIConfig struct {
	// Enabled indicates whether AI enrichment is enabled.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Provider is the AI provider (openai, ollama, anthropic, gemini).
	// Use "ollama" for local/offline LLM support.
	Provider string `mapstructure:"provider" json:"provider"`
	// Model is the model to use.
	// For OpenAI: "gpt-4o", "gpt-4o-mini", etc.
	// For Ollama: "llama3.2", "mistral", etc.
	// For Anthropic: "claude-sonnet-4-20250514", etc.
	// For Gemini: "gemini-2.0-flash-exp", etc.
	Model string `mapstructure:"model" json:"model"`
	// APIKey is the API key (can use environment variable expansion).
	APIKey string `mapstructure:"api_key" json:"api_key,omitempty"`
	// BaseURL is the API base URL (for custom endpoints).
	// For Ollama, defaults to "http://localhost:11434/v1".
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
	// MaxTokens is the maximum tokens for AI responses.
	MaxTokens int `mapstructure:"max_tokens" json:"max_tokens"`
	// Temperature controls randomness (0.0-2.0).
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	// Timeout is the API request timeout.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// RetryAttempts is the number of retry attempts for failed requests.
	RetryAttempts int `mapstructure:"retry_attempts" json:"retry_attempts"`
}

// ArtifactsConfig configures manual build artifact storage.
type ArtifactsConfig struct {
	// RootDir is the directory uploaded build artifacts are stored under.
	RootDir string `mapstructure:"root_dir" json:"root_dir"`
	// MaxSizeBytes caps the accepted artifact size (0 = unlimited).
	MaxSizeBytes int64 `mapstructure:"max_size_bytes" json:"max_size_bytes"`
	// BaseURL is the public URL prefix download links are derived from.
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
}

// ObservabilityConfig configures the metrics and health endpoint.
type ObservabilityConfig struct {
	// ListenAddr is the address the observability server binds to.
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	// TickEndpoint exposes POST /tick so an external cron service can drive
	// the scheduler.
	TickEndpoint bool `mapstructure:"tick_endpoint" json:"tick_endpoint"`
}

// OutputConfig configures output settings.
type OutputConfig struct {
	// Format is the output format (text, json).
	Format string `mapstructure:"format" json:"format"`
	// Color enables colored output.
	Color bool `mapstructure:"color" json:"color"`
	// Verbose enables verbose output.
	Verbose bool `mapstructure:"verbose" json:"verbose"`
	// Quiet suppresses non-essential output.
	Quiet bool `mapstructure:"quiet" json:"quiet"`
	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:    16,
			MaxIdleConns:    4,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     false,
		},
		Scheduler: SchedulerConfig{
			Interval:            60 * time.Second,
			Concurrency:         8,
			ExecuteTimeout:      120 * time.Second,
			LeaseTTL:            300 * time.Second,
			PollPendingInterval: 30 * time.Second,
			PollRunningInterval: 45 * time.Second,
		},
		Providers: ProvidersConfig{
			CallTimeout: 30 * time.Second,
			Resilience: ResilienceConfig{
				RetryAttempts:     3,
				RetryInitialDelay: 200 * time.Millisecond,
				RetryMaxDelay:     5 * time.Second,
				RateLimit:         10,
				RateBurst:         5,
				BreakerThreshold:  5,
				BreakerCooldown:   30 * time.Second,
			},
			Git: GitProviderConfig{
				DefaultRemote: "origin",
			},
			Webhook: WebhookProviderConfig{
				Timeout: 10 * time.Second,
			},
		},
		Notifications: NotificationsConfig{
			Enabled:        true,
			DefaultChannel: "releases",
		},
		AI: AIConfig{
			Enabled:       false,
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			MaxTokens:     1000,
			Temperature:   0.3,
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
		Artifacts: ArtifactsConfig{
			RootDir: "./artifacts",
		},
		Observability: ObservabilityConfig{
			ListenAddr:   ":9090",
			TickEndpoint: false,
		},
		Output: OutputConfig{
			Format:   "text",
			Color:    true,
			LogLevel: "info",
		},
	}
}

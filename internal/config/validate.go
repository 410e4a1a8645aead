package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// openAIKeyLength is the standard length of OpenAI API keys (e.g., "sk-..." format).
const openAIKeyLength = 51

// Scheduler guardrails. Ticking faster than once a second or fanning out
// wider than this hammers the database without advancing releases any faster.
const (
	minSchedulerInterval    = time.Second
	maxSchedulerConcurrency = 64
	minLeaseTTL             = 30 * time.Second
)

// isOpenAIKeyFormat checks if a string appears to be an OpenAI API key format.
// OpenAI keys are 51 characters long and start with "sk-".
// Returns false for environment variable references (${...}).
func isOpenAIKeyFormat(key string) bool {
	return key != "" &&
		!strings.HasPrefix(key, "${") &&
		len(key) == openAIKeyLength &&
		strings.HasPrefix(key, "sk-")
}

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}

	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error to the validation error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning to the validation error.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration.
type Validator struct {
	errors *ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: &ValidationError{},
	}
}

// Validate validates the configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateDatabase(cfg.Database)
	v.validateScheduler(cfg.Scheduler)
	v.validateProviders(cfg.Providers)
	v.validateNotifications(cfg.Notifications)
	v.validateAI(cfg.AI)
	v.validateArtifacts(cfg.Artifacts)
	v.validateObservability(cfg.Observability)
	v.validateOutput(cfg.Output)

	// Print warnings to stderr even if there are no errors
	if v.errors.HasWarnings() {
		fmt.Fprintf(os.Stderr, "\n⚠️  Configuration Warnings:\n")
		for _, warning := range v.errors.Warnings {
			fmt.Fprintf(os.Stderr, "  - %s\n", warning)
		}
		fmt.Fprintf(os.Stderr, "\n")
	}

	if v.errors.HasErrors() {
		return rherrors.Validation("config.Validate", v.errors.Error())
	}

	return nil
}

// validateDatabase validates database configuration.
func (v *Validator) validateDatabase(cfg DatabaseConfig) {
	if cfg.DSN == "" {
		v.errors.Addf("database.dsn: required (set via config or RAILHEAD_DATABASE_DSN env var)")
	}

	if cfg.MaxOpenConns < 1 {
		v.errors.Addf("database.max_open_conns: must be at least 1, got %d", cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns < 0 {
		v.errors.Addf("database.max_idle_conns: must be non-negative, got %d", cfg.MaxIdleConns)
	}

	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		v.errors.Warnf("database.max_idle_conns: %d exceeds max_open_conns %d, idle connections above the cap are discarded", cfg.MaxIdleConns, cfg.MaxOpenConns)
	}

	if cfg.ConnMaxLifetime < 0 {
		v.errors.Addf("database.conn_max_lifetime: must be non-negative")
	}
}

// validateScheduler validates scheduler configuration.
func (v *Validator) validateScheduler(cfg SchedulerConfig) {
	if cfg.Interval < minSchedulerInterval {
		v.errors.Addf("scheduler.interval: must be at least %s, got %s", minSchedulerInterval, cfg.Interval)
	}

	if cfg.Concurrency < 1 || cfg.Concurrency > maxSchedulerConcurrency {
		v.errors.Addf("scheduler.concurrency: must be between 1 and %d, got %d", maxSchedulerConcurrency, cfg.Concurrency)
	}

	if cfg.ExecuteTimeout <= 0 {
		v.errors.Addf("scheduler.execute_timeout: must be positive")
	}

	if cfg.LeaseTTL < minLeaseTTL {
		v.errors.Addf("scheduler.lease_ttl: must be at least %s, got %s", minLeaseTTL, cfg.LeaseTTL)
	}

	// A worker that runs past its lease can race a competing scheduler
	if cfg.ExecuteTimeout > 0 && cfg.LeaseTTL > 0 && cfg.ExecuteTimeout >= cfg.LeaseTTL {
		v.errors.Warnf("scheduler.execute_timeout: %s is not shorter than lease_ttl %s, a slow worker may outlive its lease", cfg.ExecuteTimeout, cfg.LeaseTTL)
	}

	if cfg.PollPendingInterval <= 0 {
		v.errors.Addf("scheduler.poll_pending_interval: must be positive")
	}

	if cfg.PollRunningInterval <= 0 {
		v.errors.Addf("scheduler.poll_running_interval: must be positive")
	}
}

// validateProviders validates provider configuration.
func (v *Validator) validateProviders(cfg ProvidersConfig) {
	if cfg.CallTimeout <= 0 {
		v.errors.Addf("providers.call_timeout: must be positive")
	}

	v.validateResilience(cfg.Resilience)

	// Git provider
	if cfg.Git.Enabled {
		if cfg.Git.RepoPath == "" {
			v.errors.Addf("providers.git.repo_path: required when the git provider is enabled")
		} else if _, err := os.Stat(cfg.Git.RepoPath); os.IsNotExist(err) {
			v.errors.Warnf("providers.git.repo_path: path does not exist: %s", cfg.Git.RepoPath)
		}

		if cfg.Git.Push && cfg.Git.DefaultRemote == "" {
			v.errors.Addf("providers.git.default_remote: required when push is enabled")
		}
	}

	// Webhook provider
	if cfg.Webhook.Enabled {
		if cfg.Webhook.Endpoint == "" {
			v.errors.Addf("providers.webhook.endpoint: required when the webhook provider is enabled")
		} else if _, err := url.Parse(cfg.Webhook.Endpoint); err != nil {
			v.errors.Addf("providers.webhook.endpoint: invalid URL: %s", cfg.Webhook.Endpoint)
		}

		if cfg.Webhook.Secret == "" {
			v.errors.Warnf("providers.webhook.secret: not set, payloads will not be signed")
		}

		if cfg.Webhook.Timeout <= 0 {
			v.errors.Addf("providers.webhook.timeout: must be positive")
		}
	}
}

// validateResilience validates provider call hardening knobs.
func (v *Validator) validateResilience(cfg ResilienceConfig) {
	if cfg.RetryAttempts < 1 {
		v.errors.Addf("providers.resilience.retry_attempts: must be at least 1, got %d", cfg.RetryAttempts)
	}

	if cfg.RetryInitialDelay <= 0 {
		v.errors.Addf("providers.resilience.retry_initial_delay: must be positive")
	}

	if cfg.RetryMaxDelay < cfg.RetryInitialDelay {
		v.errors.Addf("providers.resilience.retry_max_delay: must be at least retry_initial_delay")
	}

	if cfg.RateLimit < 0 {
		v.errors.Addf("providers.resilience.rate_limit: must be non-negative, got %d", cfg.RateLimit)
	}

	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		v.errors.Addf("providers.resilience.rate_burst: must be at least 1 when rate_limit is set")
	}

	if cfg.BreakerThreshold < 1 {
		v.errors.Addf("providers.resilience.breaker_threshold: must be at least 1, got %d", cfg.BreakerThreshold)
	}

	if cfg.BreakerCooldown <= 0 {
		v.errors.Addf("providers.resilience.breaker_cooldown: must be positive")
	}
}

// validateNotifications validates notification configuration.
func (v *Validator) validateNotifications(cfg NotificationsConfig) {
	if !cfg.Enabled {
		return // Skip validation if notifications are disabled
	}

	// Validate template catalog override exists if specified
	if cfg.TemplatesPath != "" {
		if _, err := os.Stat(cfg.TemplatesPath); os.IsNotExist(err) {
			v.errors.Addf("notifications.templates_path: file does not exist: %s", cfg.TemplatesPath)
		}
	}

	if cfg.DefaultChannel == "" {
		v.errors.Warnf("notifications.default_channel: not set, messages without an explicit channel are dropped")
	}
}

// validateAI validates AI configuration.
func (v *Validator) validateAI(cfg AIConfig) {
	if !cfg.Enabled {
		return // Skip validation if AI is disabled
	}

	// Validate provider
	validProviders := []string{"openai", "anthropic", "claude", "ollama", "gemini"}
	if !slices.Contains(validProviders, cfg.Provider) {
		v.errors.Addf("ai.provider: must be one of %v, got %q", validProviders, cfg.Provider)
	}

	// Warn about deprecated "claude" provider
	if cfg.Provider == "claude" {
		v.errors.Warnf("ai.provider: 'claude' is deprecated, use 'anthropic' instead")
	}

	// Warn if an OpenAI-shaped key is configured for another provider
	if cfg.Provider == "anthropic" && isOpenAIKeyFormat(cfg.APIKey) {
		v.errors.Warnf("ai.api_key: appears to be an OpenAI key but provider is 'anthropic'")
	}

	// Validate model
	if cfg.Model == "" {
		v.errors.Addf("ai.model: required when AI is enabled")
	}

	// Validate API key is provided (after env expansion)
	if cfg.APIKey == "" {
		// Check if it's provided via environment variable (provider-specific or generic)
		providerEnvVars := map[string]string{
			"openai":    "OPENAI_API_KEY",
			"anthropic": "ANTHROPIC_API_KEY",
			"claude":    "ANTHROPIC_API_KEY",
			"gemini":    "GEMINI_API_KEY",
			"ollama":    "", // Ollama doesn't require an API key
		}

		envVar := providerEnvVars[cfg.Provider]
		genericEnvVar := "RAILHEAD_AI_API_KEY"

		// Ollama doesn't require an API key
		if cfg.Provider == "ollama" {
			return
		}

		if os.Getenv(envVar) == "" && os.Getenv(genericEnvVar) == "" {
			v.errors.Addf("ai.api_key: required when AI is enabled (set via config or %s env var)", envVar)
		}
	}

	// Validate temperature
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		v.errors.Addf("ai.temperature: must be between 0 and 2, got %f", cfg.Temperature)
	}
	// Warn about high temperature values
	if cfg.Temperature > 1.0 {
		v.errors.Warnf("ai.temperature: value %.1f is unusually high (typical range is 0.0-1.0)", cfg.Temperature)
	}

	// Validate max_tokens
	if cfg.MaxTokens < 1 || cfg.MaxTokens > 128000 {
		v.errors.Addf("ai.max_tokens: must be between 1 and 128000, got %d", cfg.MaxTokens)
	}

	// Validate timeout
	if cfg.Timeout <= 0 {
		v.errors.Addf("ai.timeout: must be positive")
	}

	// Validate retry_attempts
	if cfg.RetryAttempts < 0 {
		v.errors.Addf("ai.retry_attempts: must be non-negative, got %d", cfg.RetryAttempts)
	}

	// Validate base_url if provided
	if cfg.BaseURL != "" {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			v.errors.Addf("ai.base_url: invalid URL: %s", cfg.BaseURL)
		}
	}
}

// validateArtifacts validates artifact storage configuration.
func (v *Validator) validateArtifacts(cfg ArtifactsConfig) {
	if cfg.RootDir == "" {
		v.errors.Addf("artifacts.root_dir: required")
	}

	if cfg.MaxSizeBytes < 0 {
		v.errors.Addf("artifacts.max_size_bytes: must be non-negative, got %d", cfg.MaxSizeBytes)
	}

	if cfg.BaseURL != "" {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			v.errors.Addf("artifacts.base_url: invalid URL: %s", cfg.BaseURL)
		}
	}
}

// validateObservability validates observability configuration.
func (v *Validator) validateObservability(cfg ObservabilityConfig) {
	// Empty listen_addr disables the server
	if cfg.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
			v.errors.Addf("observability.listen_addr: invalid host:port address: %s", cfg.ListenAddr)
		}
	}

	if cfg.TickEndpoint && cfg.ListenAddr == "" {
		v.errors.Addf("observability.tick_endpoint: requires listen_addr to be set")
	}
}

// validateOutput validates output configuration.
func (v *Validator) validateOutput(cfg OutputConfig) {
	// Validate format
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, cfg.Format) {
		v.errors.Addf("output.format: must be one of %v, got %q", validFormats, cfg.Format)
	}

	// Validate log_level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, cfg.LogLevel) {
		v.errors.Addf("output.log_level: must be one of %v, got %q", validLogLevels, cfg.LogLevel)
	}

	// Quiet and verbose are mutually exclusive
	if cfg.Quiet && cfg.Verbose {
		v.errors.Addf("output: quiet and verbose cannot both be enabled")
	}
}

// Validate is a convenience function to validate configuration.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// ValidateAndLoad loads and validates configuration.
func ValidateAndLoad() (*Config, error) {
	cfg, err := NewLoader().Load()
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

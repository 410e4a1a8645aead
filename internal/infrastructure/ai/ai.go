// Package ai rewrites draft release notes through an LLM provider.
// Enrichment is optional and advisory: without a key the enricher is
// disabled and drafts pass through unchanged, and the notes tasks keep
// the deterministic draft whenever a call fails. Nothing in this
// package sits on the scheduling path.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// Supported provider names.
const (
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure-openai"
	ProviderAnthropic   = "anthropic"
	ProviderGemini      = "gemini"
	ProviderOllama      = "ollama"
)

// Config configures the notes enricher.
type Config struct {
	// Enabled turns enrichment on. Off by default.
	Enabled bool
	// Provider is the LLM provider (openai, azure-openai, anthropic,
	// gemini, ollama).
	Provider string
	// APIKey authenticates against the provider. Cloud providers
	// without a key yield a disabled enricher; Ollama needs none.
	APIKey string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Model is the model to use. Empty picks the provider's default.
	Model string
	// MaxTokens caps the response size.
	MaxTokens int
	// Temperature controls randomness.
	Temperature float64
	// Timeout bounds one API call.
	Timeout time.Duration
	// RetryAttempts is the total number of tries per call.
	RetryAttempts int
	// RateLimitRPM throttles outbound calls per minute. Zero disables
	// throttling.
	RateLimitRPM int
	// SystemPrompt overrides the built-in system prompt.
	SystemPrompt string
	// UserPrompt overrides the built-in user prompt template. The
	// placeholders {{VERSION}} and {{CONTENT}} are substituted.
	UserPrompt string
}

// DefaultConfig returns the default enricher configuration.
func DefaultConfig() Config {
	return Config{
		Provider:      ProviderOpenAI,
		Model:         "gpt-4o-mini",
		MaxTokens:     1024,
		Temperature:   0.3,
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RateLimitRPM:  60,
	}
}

// completer is one LLM backend.
type completer interface {
	complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	available() bool
}

// Enricher rewrites draft notes through the configured backend.
type Enricher struct {
	cfg     Config
	backend completer
}

// New creates an enricher for the configured provider. A config with
// Enabled false, or a cloud provider without an API key, yields a
// disabled enricher rather than an error; a malformed key or an
// unknown provider fails construction.
func New(cfg Config) (*Enricher, error) {
	def := DefaultConfig()
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}

	if !cfg.Enabled {
		return &Enricher{cfg: cfg}, nil
	}

	var backend completer
	var err error
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, ProviderAzureOpenAI:
		backend, err = newOpenAICompleter(cfg)
	case ProviderAnthropic, "claude":
		backend, err = newAnthropicCompleter(cfg)
	case ProviderGemini:
		backend, err = newGeminiCompleter(cfg)
	case ProviderOllama:
		backend, err = newOllamaCompleter(cfg)
	default:
		return nil, rherrors.AI("ai.New", fmt.Sprintf("unknown AI provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, err
	}
	return &Enricher{cfg: cfg, backend: backend}, nil
}

// Enabled reports whether enrichment calls a live backend.
func (e *Enricher) Enabled() bool {
	return e != nil && e.backend != nil && e.backend.available()
}

// Provider returns the configured provider name.
func (e *Enricher) Provider() string {
	return e.cfg.Provider
}

// Enrich rewrites the draft notes for a version. A disabled enricher
// and an empty draft both pass through unchanged. Errors surface to
// the caller, which is expected to keep the draft.
func (e *Enricher) Enrich(ctx context.Context, version, draft string) (string, error) {
	if strings.TrimSpace(draft) == "" {
		return draft, nil
	}
	if !e.Enabled() {
		return draft, nil
	}

	system := e.cfg.SystemPrompt
	if system == "" {
		system = defaultNotesSystemPrompt
	}
	// Commit text can smuggle tokens and connection strings; scrub the
	// draft before it leaves the process.
	user := buildNotesPrompt(userTemplate(e.cfg.UserPrompt), version, rherrors.RedactSensitive(draft))

	out, err := e.backend.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	// A model that answers with nothing is not an improvement.
	if strings.TrimSpace(out) == "" {
		return draft, nil
	}
	return out, nil
}

package ai

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// Default Ollama endpoint and model.
const (
	DefaultOllamaBaseURL = "http://localhost:11434/v1"
	DefaultOllamaModel   = "llama3.2"
)

// ollamaCompleter talks to a local Ollama through its OpenAI-compatible
// API, so it reuses the go-openai client.
type ollamaCompleter struct {
	client  *openai.Client
	cfg     Config
	guard   *Resilience
	baseURL string
}

func newOllamaCompleter(cfg Config) (completer, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}

	// The client requires a key even though Ollama ignores it.
	clientCfg := openai.DefaultConfig("ollama")
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	// A local service fails fast, so trip the breaker sooner.
	rc := DefaultResilienceConfig()
	rc.RateLimitRPM = cfg.RateLimitRPM
	rc.RetryAttempts = cfg.RetryAttempts
	if cfg.Timeout > 0 {
		rc.RetryMaxWait = cfg.Timeout
	}
	rc.BreakerThreshold = 3

	return &ollamaCompleter{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		guard:   NewResilience(rc),
		baseURL: cfg.BaseURL,
	}, nil
}

func (c *ollamaCompleter) available() bool {
	return c.client != nil
}

func (c *ollamaCompleter) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := c.guard.Execute(ctx, func(ctx context.Context) (string, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			MaxTokens:   c.cfg.MaxTokens,
			Temperature: float32(c.cfg.Temperature),
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", rherrors.AI("ai.complete", "no choices in model response")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		return "", rherrors.AIWrapSafe(err, "ai.complete", "notes enrichment call failed (is Ollama running?)")
	}
	return out, nil
}

// CheckConnection verifies the local Ollama is reachable. The status
// command uses it to diagnose an enricher that silently falls back.
func (c *ollamaCompleter) CheckConnection(ctx context.Context) error {
	healthURL := strings.TrimSuffix(c.baseURL, "/v1")
	healthURL = strings.TrimSuffix(healthURL, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return rherrors.AIWrap(err, "ai.CheckConnection", "failed to create health check request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return rherrors.AI("ai.CheckConnection", fmt.Sprintf("Ollama is not reachable at %s: %v", healthURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rherrors.AI("ai.CheckConnection", fmt.Sprintf("Ollama returned status %d", resp.StatusCode))
	}
	return nil
}

// ConnectionChecker is implemented by backends that can probe their
// endpoint. CheckBackend reports nil for backends without a probe.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) error
}

// CheckBackend probes the enricher's backend when it supports probing.
func (e *Enricher) CheckBackend(ctx context.Context) error {
	if !e.Enabled() {
		return nil
	}
	if checker, ok := e.backend.(ConnectionChecker); ok {
		return checker.CheckConnection(ctx)
	}
	return nil
}

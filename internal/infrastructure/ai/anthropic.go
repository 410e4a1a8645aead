package ai

import (
	"context"
	"regexp"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// DefaultAnthropicModel is the model used when none is configured.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// anthropicKeyPattern matches Anthropic API keys.
var anthropicKeyPattern = regexp.MustCompile(`^sk-ant-[a-zA-Z0-9_-]{20,}$`)

type anthropicCompleter struct {
	client *anthropic.Client
	cfg    Config
	guard  *Resilience
}

func newAnthropicCompleter(cfg Config) (completer, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	if !anthropicKeyPattern.MatchString(cfg.APIKey) {
		return nil, rherrors.AI("ai.newAnthropicCompleter", "invalid Anthropic API key format (expected sk-ant-...)")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicCompleter{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		cfg:    cfg,
		guard:  newEnrichmentResilience(cfg),
	}, nil
}

func (c *anthropicCompleter) available() bool {
	return c.client != nil
}

func (c *anthropicCompleter) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	temperature := float32(c.cfg.Temperature)
	out, err := c.guard.Execute(ctx, func(ctx context.Context) (string, error) {
		resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:     anthropic.Model(c.cfg.Model),
			MaxTokens: c.cfg.MaxTokens,
			System:    systemPrompt,
			Messages: []anthropic.Message{
				anthropic.NewUserTextMessage(userPrompt),
			},
			Temperature: &temperature,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Content) == 0 {
			return "", rherrors.AI("ai.complete", "no content in model response")
		}
		return strings.TrimSpace(resp.GetFirstContentText()), nil
	})
	if err != nil {
		return "", rherrors.AIWrapSafe(err, "ai.complete", "notes enrichment call failed")
	}
	return out, nil
}

package ai

import (
	"context"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"

	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// DefaultOpenAIModel is the model used when none is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// openaiKeyPattern matches standard and project-scoped OpenAI keys.
// Validating up front keeps malformed keys out of SDK error messages.
var openaiKeyPattern = regexp.MustCompile(`^sk-(?:proj-)?[a-zA-Z0-9_-]{20,}$`)

type openaiCompleter struct {
	client *openai.Client
	cfg    Config
	guard  *Resilience
}

// newOpenAICompleter builds the OpenAI backend. Azure OpenAI is served
// through the same client with a custom base URL. An empty key returns
// a nil backend, which disables enrichment.
func newOpenAICompleter(cfg Config) (completer, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	if !openaiKeyPattern.MatchString(cfg.APIKey) {
		return nil, rherrors.AI("ai.newOpenAICompleter", "invalid OpenAI API key format")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openaiCompleter{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		guard:  newEnrichmentResilience(cfg),
	}, nil
}

func (c *openaiCompleter) available() bool {
	return c.client != nil
}

func (c *openaiCompleter) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
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
		return "", rherrors.AIWrapSafe(err, "ai.complete", "notes enrichment call failed")
	}
	return out, nil
}

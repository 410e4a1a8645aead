package ai

import (
	"context"
	"regexp"
	"strings"

	"google.golang.org/genai"

	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash-exp"

// geminiKeyPattern matches Google AI Studio keys.
var geminiKeyPattern = regexp.MustCompile(`^AIza[a-zA-Z0-9_-]{35,}$`)

type geminiCompleter struct {
	client *genai.Client
	cfg    Config
	guard  *Resilience
}

func newGeminiCompleter(cfg Config) (completer, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	if !geminiKeyPattern.MatchString(cfg.APIKey) {
		return nil, rherrors.AI("ai.newGeminiCompleter", "invalid Gemini API key format (expected AIza...)")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, rherrors.AIWrapSafe(err, "ai.newGeminiCompleter", "failed to create Gemini client")
	}

	return &geminiCompleter{
		client: client,
		cfg:    cfg,
		guard:  newEnrichmentResilience(cfg),
	}, nil
}

func (c *geminiCompleter) available() bool {
	return c.client != nil
}

func (c *geminiCompleter) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := c.guard.Execute(ctx, func(ctx context.Context) (string, error) {
		// Gemini takes a single prompt rather than a system/user split.
		parts := []*genai.Part{
			{Text: systemPrompt + "\n\n" + userPrompt},
		}
		temperature := float32(c.cfg.Temperature)

		resp, err := c.client.Models.GenerateContent(
			ctx,
			c.cfg.Model,
			[]*genai.Content{{Parts: parts}},
			&genai.GenerateContentConfig{
				Temperature:     &temperature,
				MaxOutputTokens: int32(c.cfg.MaxTokens), // #nosec G115 -- bounded config value
			},
		)
		if err != nil {
			return "", err
		}
		if len(resp.Candidates) == 0 {
			return "", rherrors.AI("ai.complete", "no candidates in model response")
		}
		candidate := resp.Candidates[0]
		if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
			return "", rherrors.AI("ai.complete", "empty candidate in model response")
		}

		var b strings.Builder
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		if b.Len() == 0 {
			return "", rherrors.AI("ai.complete", "no text in model response")
		}
		return strings.TrimSpace(b.String()), nil
	})
	if err != nil {
		return "", rherrors.AIWrapSafe(err, "ai.complete", "notes enrichment call failed")
	}
	return out, nil
}

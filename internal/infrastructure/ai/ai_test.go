package ai

import (
	"context"
	"strings"
	"testing"
)

func TestNewDisabledByConfig(t *testing.T) {
	e, err := New(Config{Enabled: false, Provider: ProviderOpenAI, APIKey: "sk-1234567890abcdef1234567890abcdef"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Enabled() {
		t.Error("enricher enabled despite Enabled: false")
	}

	out, err := e.Enrich(context.Background(), "1.4.0", "- fix crash")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if out != "- fix crash" {
		t.Errorf("disabled enricher changed the draft: %q", out)
	}
}

func TestNewDisabledWithoutKey(t *testing.T) {
	for _, provider := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini} {
		e, err := New(Config{Enabled: true, Provider: provider})
		if err != nil {
			t.Fatalf("New(%s): %v", provider, err)
		}
		if e.Enabled() {
			t.Errorf("%s enricher enabled without an API key", provider)
		}
	}
}

func TestNewRejectsMalformedKeys(t *testing.T) {
	cases := []struct {
		provider string
		key      string
	}{
		{ProviderOpenAI, "not-a-key"},
		{ProviderAnthropic, "sk-1234567890abcdef1234567890abcdef"},
		{ProviderGemini, "sk-ant-REDACTED"},
	}
	for _, tc := range cases {
		if _, err := New(Config{Enabled: true, Provider: tc.provider, APIKey: tc.key}); err == nil {
			t.Errorf("New(%s) accepted malformed key %q", tc.provider, tc.key)
		}
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Enabled: true, Provider: "watson"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "watson") {
		t.Errorf("error does not name the provider: %v", err)
	}
}

func TestEnrichEmptyDraftPassesThrough(t *testing.T) {
	e, err := New(Config{Enabled: true, Provider: ProviderOpenAI, APIKey: "sk-1234567890abcdef1234567890abcdef"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := e.Enrich(context.Background(), "1.4.0", "")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if out != "" {
		t.Errorf("empty draft produced %q", out)
	}
}

type recordingCompleter struct {
	user string
}

func (r *recordingCompleter) complete(_ context.Context, _, user string) (string, error) {
	r.user = user
	return "polished", nil
}

func (r *recordingCompleter) available() bool { return true }

func TestEnrichScrubsDraftSecrets(t *testing.T) {
	rec := &recordingCompleter{}
	e := &Enricher{cfg: DefaultConfig(), backend: rec}

	draft := "- chore: rotate sk-1234567890abcdef1234567890abcdef before release"
	out, err := e.Enrich(context.Background(), "1.4.0", draft)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if out != "polished" {
		t.Errorf("Enrich = %q, want backend output", out)
	}
	if strings.Contains(rec.user, "sk-1234567890abcdef") {
		t.Errorf("prompt leaked the key: %q", rec.user)
	}
	if !strings.Contains(rec.user, "[REDACTED]") {
		t.Errorf("prompt was not redacted: %q", rec.user)
	}
}

func TestBuildNotesPrompt(t *testing.T) {
	got := buildNotesPrompt(defaultNotesUserPrompt, "1.4.0", "- feat: dark mode")
	if !strings.Contains(got, "version 1.4.0") {
		t.Errorf("prompt missing version: %q", got)
	}
	if !strings.Contains(got, "- feat: dark mode") {
		t.Errorf("prompt missing draft: %q", got)
	}

	custom := buildNotesPrompt("Polish {{CONTENT}} for {{VERSION}}", "2.0.0", "raw")
	if custom != "Polish raw for 2.0.0" {
		t.Errorf("custom template = %q", custom)
	}
}

func TestUserTemplateFallsBack(t *testing.T) {
	if userTemplate("  ") != defaultNotesUserPrompt {
		t.Error("blank custom template did not fall back to the default")
	}
	if userTemplate("custom") != "custom" {
		t.Error("custom template was not used")
	}
}

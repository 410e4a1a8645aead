package ai

import "strings"

const defaultNotesSystemPrompt = `You are a release manager writing release notes for a mobile and web product.
Rewrite the draft change list into short, publishable notes.
Group related changes, drop merge commits and internal chores, and keep one line per change.
Never invent a change that is not in the draft. Output plain text bullet points only.`

const defaultNotesUserPrompt = `Rewrite the draft release notes for version {{VERSION}}:

{{CONTENT}}`

// buildNotesPrompt substitutes the version and draft into a prompt
// template.
func buildNotesPrompt(template, version, draft string) string {
	prompt := strings.ReplaceAll(template, "{{VERSION}}", version)
	return strings.ReplaceAll(prompt, "{{CONTENT}}", draft)
}

// userTemplate returns the custom template when one is configured.
func userTemplate(custom string) string {
	if strings.TrimSpace(custom) == "" {
		return defaultNotesUserPrompt
	}
	return custom
}

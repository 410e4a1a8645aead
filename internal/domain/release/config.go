package release

import (
	"fmt"
	"strings"
	"time"
)

// ReleaseConfig selects, per tenant, which provider serves each
// capability and carries the provider-facing settings tasks need.
// Releases reference a config by ID and never embed provider details.
type ReleaseConfig struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenantId" db:"tenant_id"`
	Name     string `json:"name" db:"name"`

	// Provider selection by capability, by registered provider type.
	SCMProvider            string `json:"scmProvider" db:"scm_provider"`
	CICDProvider           string `json:"cicdProvider" db:"cicd_provider"`
	PMProvider             string `json:"pmProvider" db:"pm_provider"`
	TestManagementProvider string `json:"testManagementProvider" db:"test_management_provider"`
	MessagingProvider      string `json:"messagingProvider" db:"messaging_provider"`

	Settings ConfigSettings `json:"settings" db:"settings"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ConfigSettings holds provider-facing knobs, persisted as one JSON
// document alongside the config row.
type ConfigSettings struct {
	// RepoOwner and RepoName locate the source repository for SCM calls.
	RepoOwner string `json:"repoOwner,omitempty"`
	RepoName  string `json:"repoName,omitempty"`

	// CICDWorkflows maps platform to the workflow or job identifier the
	// CI/CD provider triggers for that platform's builds.
	CICDWorkflows map[string]string `json:"cicdWorkflows,omitempty"`

	// TestFlightWorkflow is the workflow identifier for TestFlight builds.
	TestFlightWorkflow string `json:"testFlightWorkflow,omitempty"`

	// AutomationWorkflow is the workflow identifier for the automated
	// regression suite. One workflow covers all platforms.
	AutomationWorkflow string `json:"automationWorkflow,omitempty"`

	// PMProjectKey is the project management project the release ticket
	// is created under.
	PMProjectKey string `json:"pmProjectKey,omitempty"`

	// PMCompletedStatus is the ticket status that counts as release
	// approval. Approval polling compares against it case-insensitively.
	PMCompletedStatus string `json:"pmCompletedStatus,omitempty"`

	// TestSuiteName names the regression suite in the test management tool.
	TestSuiteName string `json:"testSuiteName,omitempty"`

	// AutomationPassThreshold is the minimum pass rate, in percent, for
	// automation runs to be reported as passing.
	AutomationPassThreshold float64 `json:"automationPassThreshold,omitempty"`

	// NotificationChannel is where build and regression messages go.
	NotificationChannel string `json:"notificationChannel,omitempty"`
}

// Validate checks that the config names a tenant and at least the
// providers every release needs.
func (c *ReleaseConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("release config id cannot be empty")
	}
	if strings.TrimSpace(c.TenantID) == "" {
		return fmt.Errorf("release config tenant id cannot be empty")
	}
	if strings.TrimSpace(c.SCMProvider) == "" {
		return fmt.Errorf("release config must name an SCM provider")
	}
	if strings.TrimSpace(c.CICDProvider) == "" {
		return fmt.Errorf("release config must name a CI/CD provider")
	}
	if strings.TrimSpace(c.PMProvider) == "" {
		return fmt.Errorf("release config must name a project management provider")
	}
	if strings.TrimSpace(c.MessagingProvider) == "" {
		return fmt.Errorf("release config must name a messaging provider")
	}
	if c.Settings.AutomationPassThreshold < 0 || c.Settings.AutomationPassThreshold > 100 {
		return fmt.Errorf("automation pass threshold must be between 0 and 100, got %v",
			c.Settings.AutomationPassThreshold)
	}
	return nil
}

// CompletedStatus returns the configured approval status, defaulting to Done.
func (c *ReleaseConfig) CompletedStatus() string {
	if strings.TrimSpace(c.Settings.PMCompletedStatus) == "" {
		return "Done"
	}
	return c.Settings.PMCompletedStatus
}

// WorkflowFor returns the CI/CD workflow identifier for a platform.
func (c *ReleaseConfig) WorkflowFor(p Platform) (string, bool) {
	if c.Settings.CICDWorkflows == nil {
		return "", false
	}
	wf, ok := c.Settings.CICDWorkflows[strings.ToLower(string(p))]
	return wf, ok && wf != ""
}

// Channel returns the configured notification channel or the given fallback.
func (c *ReleaseConfig) Channel(fallback string) string {
	if strings.TrimSpace(c.Settings.NotificationChannel) == "" {
		return fallback
	}
	return c.Settings.NotificationChannel
}

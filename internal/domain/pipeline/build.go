package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/railhead-io/railhead/internal/domain/release"
)

// BuildKind tells which pipeline step produced a build.
type BuildKind string

// Build kinds.
const (
	BuildPreRegression BuildKind = "PRE_REGRESSION"
	BuildRegression    BuildKind = "REGRESSION"
	BuildTestFlight    BuildKind = "TEST_FLIGHT"
)

// String returns the string representation.
func (k BuildKind) String() string { return string(k) }

// IsValid checks if the build kind is valid.
func (k BuildKind) IsValid() bool {
	switch k {
	case BuildPreRegression, BuildRegression, BuildTestFlight:
		return true
	}
	return false
}

// ParseBuildKind parses a build kind from a string.
func ParseBuildKind(raw string) (BuildKind, error) {
	k := BuildKind(strings.ToUpper(strings.TrimSpace(raw)))
	if !k.IsValid() {
		return "", fmt.Errorf("invalid build kind: %q", raw)
	}
	return k, nil
}

// Build records one CI build triggered for a release. Regression builds
// carry the cycle they were built for.
type Build struct {
	ID           string            `json:"id" db:"id"`
	ReleaseID    release.ReleaseID `json:"releaseId" db:"release_id"`
	RegressionID *string           `json:"regressionId,omitempty" db:"regression_id"`
	Platform     release.Platform  `json:"platform" db:"platform"`
	Kind         BuildKind         `json:"kind" db:"kind"`
	BuildNumber  string            `json:"buildNumber" db:"build_number"`
	WorkflowRef  string            `json:"workflowRef" db:"workflow_ref"`
	TriggeredAt  time.Time         `json:"triggeredAt" db:"triggered_at"`
}

// Validate checks the build fields.
func (b Build) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("build id cannot be empty")
	}
	if b.ReleaseID == "" {
		return fmt.Errorf("build release id cannot be empty")
	}
	if !b.Platform.IsValid() {
		return fmt.Errorf("invalid build platform: %s", b.Platform)
	}
	if !b.Kind.IsValid() {
		return fmt.Errorf("invalid build kind: %s", b.Kind)
	}
	if b.BuildNumber == "" {
		return fmt.Errorf("build number cannot be empty")
	}
	if b.Kind == BuildRegression && b.RegressionID == nil {
		return fmt.Errorf("regression builds must reference their cycle")
	}
	return nil
}

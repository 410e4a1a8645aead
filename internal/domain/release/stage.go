package release

import (
	"fmt"
	"strings"
)

// Stage identifies one of the three ordered phases of a release.
type Stage string

const (
	// StageKickoff is the first stage: branch fork, tickets, test suites.
	StageKickoff Stage = "KICKOFF"
	// StageRegression is the second stage: the regression cycle loop.
	StageRegression Stage = "REGRESSION"
	// StagePostRegression is the third stage: final tags, notes, submission.
	StagePostRegression Stage = "POST_REGRESSION"
)

// AllStages returns the stages in execution order.
func AllStages() []Stage {
	return []Stage{StageKickoff, StageRegression, StagePostRegression}
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsValid returns true if the stage is valid.
func (s Stage) IsValid() bool {
	switch s {
	case StageKickoff, StageRegression, StagePostRegression:
		return true
	default:
		return false
	}
}

// Ordinal returns the 1-based stage number, or 0 for an invalid stage.
func (s Stage) Ordinal() int {
	switch s {
	case StageKickoff:
		return 1
	case StageRegression:
		return 2
	case StagePostRegression:
		return 3
	default:
		return 0
	}
}

// Next returns the stage that follows, or false for the last stage.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageKickoff:
		return StageRegression, true
	case StageRegression:
		return StagePostRegression, true
	default:
		return "", false
	}
}

// ParseStage parses a string into a Stage.
func ParseStage(s string) (Stage, error) {
	stage := Stage(strings.ToUpper(strings.TrimSpace(s)))
	if !stage.IsValid() {
		return "", fmt.Errorf("invalid stage: %q", s)
	}
	return stage, nil
}

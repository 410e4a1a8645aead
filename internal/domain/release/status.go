// Package release provides domain types for release orchestration.
package release

import (
	"fmt"
	"strings"
)

// Status represents the lifecycle state of a release.
// This is a value object in DDD terms.
type Status string

const (
	// StatusPending indicates the release exists but orchestration has not started.
	StatusPending Status = "PENDING"
	// StatusInProgress indicates the release is actively being orchestrated.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusPaused indicates orchestration is suspended by a user.
	StatusPaused Status = "PAUSED"
	// StatusSubmitted indicates the release has been submitted to the stores.
	StatusSubmitted Status = "SUBMITTED"
	// StatusCompleted indicates the release finished all three stages.
	StatusCompleted Status = "COMPLETED"
	// StatusArchived indicates the release was archived; state is frozen.
	StatusArchived Status = "ARCHIVED"
	// StatusFailed indicates the release was abandoned as unrecoverable.
	// Only ever set by an operator, never by the orchestrator itself.
	StatusFailed Status = "FAILED"
)

// AllStatuses returns all valid release statuses.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusInProgress,
		StatusPaused,
		StatusSubmitted,
		StatusCompleted,
		StatusArchived,
		StatusFailed,
	}
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a valid release status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPaused, StatusSubmitted,
		StatusCompleted, StatusArchived, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if this is a terminal state. No stage progression
// is permitted after entry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusArchived || s == StatusFailed
}

// IsActive returns true if the release is actively in progress.
func (s Status) IsActive() bool {
	return s == StatusInProgress || s == StatusSubmitted
}

// CanTransitionTo returns true if transitioning to the target status is valid.
func (s Status) CanTransitionTo(target Status) bool {
	validTargets, exists := validStatusTransitions()[s]
	if !exists {
		return false
	}

	for _, valid := range validTargets {
		if valid == target {
			return true
		}
	}
	return false
}

// validStatusTransitions defines the release lifecycle state machine.
// Archival is reachable from every non-terminal state.
func validStatusTransitions() map[Status][]Status {
	return map[Status][]Status{
		StatusPending:    {StatusInProgress, StatusArchived},
		StatusInProgress: {StatusPaused, StatusSubmitted, StatusCompleted, StatusArchived, StatusFailed},
		StatusPaused:     {StatusInProgress, StatusArchived, StatusFailed},
		StatusSubmitted:  {StatusCompleted, StatusArchived, StatusFailed},
		StatusCompleted:  {}, // Terminal
		StatusArchived:   {}, // Terminal
		StatusFailed:     {}, // Terminal
	}
}

// ParseStatus parses a string into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid release status: %q", s)
	}
	return status, nil
}

// Description returns a human-readable description of the status.
func (s Status) Description() string {
	switch s {
	case StatusPending:
		return "Release created, orchestration not started"
	case StatusInProgress:
		return "Release is being orchestrated"
	case StatusPaused:
		return "Orchestration paused by user"
	case StatusSubmitted:
		return "Release submitted to the stores"
	case StatusCompleted:
		return "Release completed all stages"
	case StatusArchived:
		return "Release archived, state frozen"
	case StatusFailed:
		return "Release abandoned as unrecoverable"
	default:
		return "Unknown status"
	}
}

// Package pipeline provides the staged execution model that drives a
// release: the cron job aggregate, regression cycles, tasks and builds.
package pipeline

import (
	"fmt"
	"strings"
)

// StageStatus represents the state of one pipeline stage.
type StageStatus string

// Stage statuses.
const (
	StagePending    StageStatus = "PENDING"
	StageInProgress StageStatus = "IN_PROGRESS"
	StageCompleted  StageStatus = "COMPLETED"
)

// AllStageStatuses returns all valid stage statuses.
func AllStageStatuses() []StageStatus {
	return []StageStatus{StagePending, StageInProgress, StageCompleted}
}

// String returns the string representation.
func (s StageStatus) String() string { return string(s) }

// IsValid checks if the stage status is valid.
func (s StageStatus) IsValid() bool {
	switch s {
	case StagePending, StageInProgress, StageCompleted:
		return true
	}
	return false
}

// CanTransitionTo checks whether the stage can move to the target status.
// Stages only ever move forward.
func (s StageStatus) CanTransitionTo(target StageStatus) bool {
	switch s {
	case StagePending:
		return target == StageInProgress
	case StageInProgress:
		return target == StageCompleted
	}
	return false
}

// ParseStageStatus parses a stage status from a string.
func ParseStageStatus(raw string) (StageStatus, error) {
	s := StageStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid stage status: %q", raw)
	}
	return s, nil
}

// CronStatus represents the state of the cron job driving a release.
type CronStatus string

// Cron job statuses.
const (
	CronPending   CronStatus = "PENDING"
	CronRunning   CronStatus = "RUNNING"
	CronPaused    CronStatus = "PAUSED"
	CronCompleted CronStatus = "COMPLETED"
)

// AllCronStatuses returns all valid cron statuses.
func AllCronStatuses() []CronStatus {
	return []CronStatus{CronPending, CronRunning, CronPaused, CronCompleted}
}

// String returns the string representation.
func (s CronStatus) String() string { return string(s) }

// IsValid checks if the cron status is valid.
func (s CronStatus) IsValid() bool {
	switch s {
	case CronPending, CronRunning, CronPaused, CronCompleted:
		return true
	}
	return false
}

// IsSchedulable reports whether the scheduler should pick this job up.
func (s CronStatus) IsSchedulable() bool { return s == CronRunning }

// CanTransitionTo checks whether the cron job can move to the target status.
func (s CronStatus) CanTransitionTo(target CronStatus) bool {
	valid := cronStatusTransitions()[s]
	for _, t := range valid {
		if t == target {
			return true
		}
	}
	return false
}

func cronStatusTransitions() map[CronStatus][]CronStatus {
	return map[CronStatus][]CronStatus{
		CronPending:   {CronRunning},
		CronRunning:   {CronPaused, CronCompleted},
		CronPaused:    {CronRunning, CronCompleted},
		CronCompleted: {},
	}
}

// ParseCronStatus parses a cron status from a string.
func ParseCronStatus(raw string) (CronStatus, error) {
	s := CronStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid cron status: %q", raw)
	}
	return s, nil
}

// PauseType records why a cron job is paused. The zero value means the
// job is not paused.
type PauseType string

// Pause reasons.
const (
	PauseNone                 PauseType = ""
	PauseUserRequested        PauseType = "USER_REQUESTED"
	PauseTaskFailure          PauseType = "TASK_FAILURE"
	PauseAwaitingStageTrigger PauseType = "AWAITING_STAGE_TRIGGER"
)

// String returns the string representation.
func (p PauseType) String() string { return string(p) }

// IsValid checks if the pause type is a known reason or none.
func (p PauseType) IsValid() bool {
	switch p {
	case PauseNone, PauseUserRequested, PauseTaskFailure, PauseAwaitingStageTrigger:
		return true
	}
	return false
}

// IsPaused reports whether this pause type represents an actual pause.
func (p PauseType) IsPaused() bool { return p != PauseNone }

// ParsePauseType parses a pause type from a string. Empty input maps to
// PauseNone.
func ParsePauseType(raw string) (PauseType, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" || trimmed == "NONE" {
		return PauseNone, nil
	}
	p := PauseType(trimmed)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid pause type: %q", raw)
	}
	return p, nil
}

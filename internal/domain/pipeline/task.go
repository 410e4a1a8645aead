package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/railhead-io/railhead/internal/domain/release"
)

// TaskStatus represents the execution state of a task.
type TaskStatus string

// Task statuses.
const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
)

// AllTaskStatuses returns all valid task statuses.
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskFailed}
}

// String returns the string representation.
func (s TaskStatus) String() string { return string(s) }

// IsValid checks if the task status is valid.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// IsFinal reports whether the task reached an end state. FAILED is final
// until an operator retries it.
func (s TaskStatus) IsFinal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// ParseTaskStatus parses a task status from a string.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid task status: %q", raw)
	}
	return s, nil
}

// ExternalData is the structured result document of a task.
type ExternalData map[string]any

// Clone returns a deep-enough copy for the flat documents tasks record.
func (d ExternalData) Clone() ExternalData {
	if d == nil {
		return nil
	}
	out := make(ExternalData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// JSON renders the document for persistence.
func (d ExternalData) JSON() ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// ParseExternalData decodes a persisted result document.
func ParseExternalData(raw []byte) (ExternalData, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var d ExternalData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("invalid external data: %w", err)
	}
	return d, nil
}

// ReleaseTask is one unit of pipeline work. Execution is at-least-once:
// a task may be dispatched again after a crash, so every mutation here
// tolerates replays.
type ReleaseTask struct {
	id           string
	releaseID    release.ReleaseID
	regressionID *string
	taskType     TaskType
	stage        release.Stage
	status       TaskStatus
	externalID   *string
	externalData ExternalData
	createdAt    time.Time
	updatedAt    time.Time
}

// NewTask creates a pending task, deriving the stage from the catalog.
// regressionID ties regression stage tasks to their cycle.
func NewTask(id string, releaseID release.ReleaseID, regressionID *string, taskType TaskType, now time.Time) (*ReleaseTask, error) {
	if id == "" {
		return nil, fmt.Errorf("task id cannot be empty")
	}
	if releaseID == "" {
		return nil, fmt.Errorf("task release id cannot be empty")
	}
	spec, ok := SpecFor(taskType)
	if !ok {
		return nil, fmt.Errorf("unknown task type: %q", taskType)
	}
	if spec.Stage == release.StageRegression && regressionID == nil {
		return nil, fmt.Errorf("%s requires a regression cycle", taskType)
	}
	return &ReleaseTask{
		id:           id,
		releaseID:    releaseID,
		regressionID: regressionID,
		taskType:     taskType,
		stage:        spec.Stage,
		status:       TaskPending,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// ReconstructTaskParams carries a persisted task row back into the entity.
type ReconstructTaskParams struct {
	ID           string
	ReleaseID    release.ReleaseID
	RegressionID *string
	Type         TaskType
	Stage        release.Stage
	Status       TaskStatus
	ExternalID   *string
	ExternalData ExternalData
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReconstructTask rebuilds a task from persistence.
func ReconstructTask(p ReconstructTaskParams) *ReleaseTask {
	return &ReleaseTask{
		id:           p.ID,
		releaseID:    p.ReleaseID,
		regressionID: p.RegressionID,
		taskType:     p.Type,
		stage:        p.Stage,
		status:       p.Status,
		externalID:   p.ExternalID,
		externalData: p.ExternalData,
		createdAt:    p.CreatedAt,
		updatedAt:    p.UpdatedAt,
	}
}

// ID returns the task ID.
func (t *ReleaseTask) ID() string { return t.id }

// ReleaseID returns the owning release.
func (t *ReleaseTask) ReleaseID() release.ReleaseID { return t.releaseID }

// RegressionID returns the owning regression cycle, if any.
func (t *ReleaseTask) RegressionID() *string { return t.regressionID }

// Type returns the task type.
func (t *ReleaseTask) Type() TaskType { return t.taskType }

// Stage returns the stage the task belongs to.
func (t *ReleaseTask) Stage() release.Stage { return t.stage }

// Status returns the execution status.
func (t *ReleaseTask) Status() TaskStatus { return t.status }

// ExternalID returns the external resource identifier, if recorded.
func (t *ReleaseTask) ExternalID() *string { return t.externalID }

// ExternalData returns the structured result document, if recorded.
func (t *ReleaseTask) ExternalData() ExternalData { return t.externalData }

// CreatedAt returns the creation timestamp.
func (t *ReleaseTask) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns the last update timestamp.
func (t *ReleaseTask) UpdatedAt() time.Time { return t.updatedAt }

// HasExternalRef reports whether an external identifier was recorded.
// The executor uses it to tell a fresh trigger from a replayed one.
func (t *ReleaseTask) HasExternalRef() bool {
	return t.externalID != nil && *t.externalID != ""
}

// Begin moves the task to IN_PROGRESS. Replaying Begin on a task that
// already ran is a no-op.
func (t *ReleaseTask) Begin(now time.Time) error {
	switch t.status {
	case TaskPending:
		t.status = TaskInProgress
		t.updatedAt = now
		return nil
	case TaskInProgress:
		return nil
	default:
		return fmt.Errorf("%w: cannot begin %s task %s", ErrTaskFinal, t.status, t.taskType)
	}
}

// RecordExternalRef stores the external identifier while the task keeps
// running. Trigger-then-watch tasks use it so a replay checks the
// already-triggered resource instead of triggering a second one.
func (t *ReleaseTask) RecordExternalRef(externalID string, now time.Time) error {
	if t.status != TaskInProgress {
		return fmt.Errorf("%w: task %s is %s", ErrTaskNotRunning, t.taskType, t.status)
	}
	if externalID == "" {
		return fmt.Errorf("external id cannot be empty")
	}
	t.externalID = &externalID
	t.updatedAt = now
	return nil
}

// CompleteWithRef finishes the task recording an external identifier.
// The identifier lands in both the externalID column and the result
// document under "externalId", so consumers reading either surface see
// the same ref.
func (t *ReleaseTask) CompleteWithRef(externalID string, now time.Time) error {
	if err := t.ensureCompletable(); err != nil {
		return err
	}
	if externalID == "" {
		return fmt.Errorf("external id cannot be empty")
	}
	t.externalID = &externalID
	if t.externalData == nil {
		t.externalData = make(ExternalData, 1)
	}
	t.externalData["externalId"] = externalID
	t.status = TaskCompleted
	t.updatedAt = now
	return nil
}

// CompleteWithData finishes the task recording a structured result.
func (t *ReleaseTask) CompleteWithData(data ExternalData, now time.Time) error {
	if err := t.ensureCompletable(); err != nil {
		return err
	}
	t.externalData = data.Clone()
	t.status = TaskCompleted
	t.updatedAt = now
	return nil
}

// MergeData folds keys into the result document while the task keeps
// running. Polling tasks use it to record each observation.
func (t *ReleaseTask) MergeData(data ExternalData, now time.Time) error {
	if t.status != TaskInProgress {
		return fmt.Errorf("%w: task %s is %s", ErrTaskNotRunning, t.taskType, t.status)
	}
	if t.externalData == nil {
		t.externalData = make(ExternalData, len(data))
	}
	for k, v := range data {
		t.externalData[k] = v
	}
	t.updatedAt = now
	return nil
}

// Fail marks the task FAILED and records the error in the result document.
func (t *ReleaseTask) Fail(reason string, now time.Time) error {
	if t.status != TaskInProgress && t.status != TaskPending {
		return fmt.Errorf("%w: cannot fail %s task %s", ErrTaskFinal, t.status, t.taskType)
	}
	if t.externalData == nil {
		t.externalData = make(ExternalData, 2)
	}
	t.externalData["error"] = reason
	t.externalData["failedAt"] = now.UTC().Format(time.RFC3339)
	t.status = TaskFailed
	t.updatedAt = now
	return nil
}

// ResetForRetry moves a FAILED task back to PENDING. The recorded
// external identifier survives the retry so triggered resources are
// not triggered twice; the error keys do not.
func (t *ReleaseTask) ResetForRetry(now time.Time) error {
	if t.status != TaskFailed {
		return fmt.Errorf("%w: task %s is %s", ErrTaskNotFailed, t.taskType, t.status)
	}
	delete(t.externalData, "error")
	delete(t.externalData, "failedAt")
	if len(t.externalData) == 0 {
		t.externalData = nil
	}
	t.status = TaskPending
	t.updatedAt = now
	return nil
}

func (t *ReleaseTask) ensureCompletable() error {
	if t.status != TaskInProgress {
		return fmt.Errorf("%w: task %s is %s", ErrTaskNotRunning, t.taskType, t.status)
	}
	return nil
}

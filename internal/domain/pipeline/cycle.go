package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/railhead-io/railhead/internal/domain/release"
)

// CycleStatus represents the state of one regression cycle.
type CycleStatus string

// Cycle statuses.
const (
	CycleNotStarted CycleStatus = "NOT_STARTED"
	CycleStarted    CycleStatus = "STARTED"
	CycleInProgress CycleStatus = "IN_PROGRESS"
	CycleDone       CycleStatus = "DONE"
)

// AllCycleStatuses returns all valid cycle statuses.
func AllCycleStatuses() []CycleStatus {
	return []CycleStatus{CycleNotStarted, CycleStarted, CycleInProgress, CycleDone}
}

// String returns the string representation.
func (s CycleStatus) String() string { return string(s) }

// IsValid checks if the cycle status is valid.
func (s CycleStatus) IsValid() bool {
	switch s {
	case CycleNotStarted, CycleStarted, CycleInProgress, CycleDone:
		return true
	}
	return false
}

// CanTransitionTo checks whether the cycle can move to the target status.
func (s CycleStatus) CanTransitionTo(target CycleStatus) bool {
	switch s {
	case CycleNotStarted:
		return target == CycleStarted
	case CycleStarted:
		return target == CycleInProgress || target == CycleDone
	case CycleInProgress:
		return target == CycleDone
	}
	return false
}

// ParseCycleStatus parses a cycle status from a string.
func ParseCycleStatus(raw string) (CycleStatus, error) {
	s := CycleStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid cycle status: %q", raw)
	}
	return s, nil
}

// CycleTag builds the tag name for a regression cycle. Tags count from
// zero, so the first cycle of a 1.0.0 release is tagged v1.0.0_rc_0.
func CycleTag(version string, tagCount int) string {
	return fmt.Sprintf("v%s_rc_%d", strings.TrimPrefix(version, "v"), tagCount)
}

// RegressionCycle is one pass through the regression stage. A release
// accumulates cycles over time; exactly one is the latest.
type RegressionCycle struct {
	id        string
	releaseID release.ReleaseID
	cycleTag  string
	status    CycleStatus
	isLatest  bool
	createdAt time.Time
	updatedAt time.Time
}

// NewRegressionCycle creates a cycle in NOT_STARTED, marked latest.
// Demoting the previous latest cycle is the caller's job.
func NewRegressionCycle(id string, releaseID release.ReleaseID, cycleTag string, now time.Time) (*RegressionCycle, error) {
	if id == "" {
		return nil, fmt.Errorf("cycle id cannot be empty")
	}
	if releaseID == "" {
		return nil, fmt.Errorf("cycle release id cannot be empty")
	}
	if cycleTag == "" {
		return nil, fmt.Errorf("cycle tag cannot be empty")
	}
	return &RegressionCycle{
		id:        id,
		releaseID: releaseID,
		cycleTag:  cycleTag,
		status:    CycleNotStarted,
		isLatest:  true,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructCycleParams carries a persisted cycle row back into the entity.
type ReconstructCycleParams struct {
	ID        string
	ReleaseID release.ReleaseID
	CycleTag  string
	Status    CycleStatus
	IsLatest  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReconstructCycle rebuilds a cycle from persistence.
func ReconstructCycle(p ReconstructCycleParams) *RegressionCycle {
	return &RegressionCycle{
		id:        p.ID,
		releaseID: p.ReleaseID,
		cycleTag:  p.CycleTag,
		status:    p.Status,
		isLatest:  p.IsLatest,
		createdAt: p.CreatedAt,
		updatedAt: p.UpdatedAt,
	}
}

// ID returns the cycle ID.
func (c *RegressionCycle) ID() string { return c.id }

// ReleaseID returns the owning release.
func (c *RegressionCycle) ReleaseID() release.ReleaseID { return c.releaseID }

// CycleTag returns the cycle's tag name.
func (c *RegressionCycle) CycleTag() string { return c.cycleTag }

// Status returns the cycle status.
func (c *RegressionCycle) Status() CycleStatus { return c.status }

// IsLatest reports whether this is the release's current cycle.
func (c *RegressionCycle) IsLatest() bool { return c.isLatest }

// CreatedAt returns the creation timestamp.
func (c *RegressionCycle) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the last update timestamp.
func (c *RegressionCycle) UpdatedAt() time.Time { return c.updatedAt }

// Start moves the cycle to STARTED once its tasks exist.
func (c *RegressionCycle) Start(now time.Time) error {
	return c.transition(CycleStarted, now)
}

// MarkInProgress records that the cycle's tasks began executing.
func (c *RegressionCycle) MarkInProgress(now time.Time) error {
	return c.transition(CycleInProgress, now)
}

// MarkDone finishes the cycle.
func (c *RegressionCycle) MarkDone(now time.Time) error {
	return c.transition(CycleDone, now)
}

// Demote clears the latest flag when a newer cycle supersedes this one.
func (c *RegressionCycle) Demote(now time.Time) {
	if !c.isLatest {
		return
	}
	c.isLatest = false
	c.updatedAt = now
}

func (c *RegressionCycle) transition(to CycleStatus, now time.Time) error {
	if c.status == to {
		return nil
	}
	if !c.status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidCycleTransition, c.status, to)
	}
	c.status = to
	c.updatedAt = now
	return nil
}

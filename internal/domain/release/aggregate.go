package release

import (
	"fmt"
	"strings"
	"time"
)

// ReleaseID uniquely identifies a release.
type ReleaseID string

// Release is the aggregate root for the release management bounded context.
// It owns the release lifecycle; the per-stage pipeline state lives on the
// companion cron job aggregate and references the release by ID.
type Release struct {
	// Identity
	id       ReleaseID
	tenantID string

	// State
	releaseType Type
	status      Status

	// Source control
	branch     string
	baseBranch string

	// Configuration
	configID string

	// Schedule
	targetReleaseDate   time.Time
	kickOffDate         time.Time
	kickOffReminderDate *time.Time

	// Manual build uploads
	hasManualBuildUpload bool

	// Accounts
	createdByAccountID   string
	pilotAccountID       string
	lastUpdatedAccountID string

	// Timestamps
	createdAt time.Time
	updatedAt time.Time
}

// NewReleaseParams carries the inputs for creating a release.
type NewReleaseParams struct {
	ID                  ReleaseID
	TenantID            string
	Type                Type
	BaseBranch          string
	ConfigID            string
	TargetReleaseDate   time.Time
	KickOffDate         time.Time
	KickOffReminderDate *time.Time
	CreatedByAccountID  string
	PilotAccountID      string
}

// NewRelease creates a release in the PENDING state.
func NewRelease(p NewReleaseParams, now time.Time) (*Release, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("release id cannot be empty")
	}
	if strings.TrimSpace(p.TenantID) == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}
	if !p.Type.IsValid() {
		return nil, fmt.Errorf("invalid release type: %s", p.Type)
	}
	if strings.TrimSpace(p.BaseBranch) == "" {
		return nil, fmt.Errorf("base branch cannot be empty")
	}
	if strings.TrimSpace(p.ConfigID) == "" {
		return nil, fmt.Errorf("release config id cannot be empty")
	}
	if p.TargetReleaseDate.Before(p.KickOffDate) {
		return nil, fmt.Errorf("target release date %s is before kick-off date %s",
			p.TargetReleaseDate.Format(time.RFC3339), p.KickOffDate.Format(time.RFC3339))
	}
	if p.KickOffReminderDate != nil && p.KickOffReminderDate.After(p.KickOffDate) {
		return nil, fmt.Errorf("kick-off reminder date must not be after the kick-off date")
	}

	return &Release{
		id:                   p.ID,
		tenantID:             p.TenantID,
		releaseType:          p.Type,
		status:               StatusPending,
		baseBranch:           p.BaseBranch,
		configID:             p.ConfigID,
		targetReleaseDate:    p.TargetReleaseDate,
		kickOffDate:          p.KickOffDate,
		kickOffReminderDate:  p.KickOffReminderDate,
		createdByAccountID:   p.CreatedByAccountID,
		pilotAccountID:       p.PilotAccountID,
		lastUpdatedAccountID: p.CreatedByAccountID,
		createdAt:            now,
		updatedAt:            now,
	}, nil
}

// ReconstructReleaseParams carries a persisted release row back into the aggregate.
type ReconstructReleaseParams struct {
	ID                   ReleaseID
	TenantID             string
	Type                 Type
	Status               Status
	Branch               string
	BaseBranch           string
	ConfigID             string
	TargetReleaseDate    time.Time
	KickOffDate          time.Time
	KickOffReminderDate  *time.Time
	HasManualBuildUpload bool
	CreatedByAccountID   string
	PilotAccountID       string
	LastUpdatedAccountID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ReconstructRelease rebuilds a release from persistence without
// re-running creation validation.
func ReconstructRelease(p ReconstructReleaseParams) *Release {
	return &Release{
		id:                   p.ID,
		tenantID:             p.TenantID,
		releaseType:          p.Type,
		status:               p.Status,
		branch:               p.Branch,
		baseBranch:           p.BaseBranch,
		configID:             p.ConfigID,
		targetReleaseDate:    p.TargetReleaseDate,
		kickOffDate:          p.KickOffDate,
		kickOffReminderDate:  p.KickOffReminderDate,
		hasManualBuildUpload: p.HasManualBuildUpload,
		createdByAccountID:   p.CreatedByAccountID,
		pilotAccountID:       p.PilotAccountID,
		lastUpdatedAccountID: p.LastUpdatedAccountID,
		createdAt:            p.CreatedAt,
		updatedAt:            p.UpdatedAt,
	}
}

// ID returns the release ID.
func (r *Release) ID() ReleaseID { return r.id }

// TenantID returns the owning tenant.
func (r *Release) TenantID() string { return r.tenantID }

// Type returns the release type.
func (r *Release) Type() Type { return r.releaseType }

// Status returns the current lifecycle status.
func (r *Release) Status() Status { return r.status }

// Branch returns the release branch, empty until the branch has been forked.
func (r *Release) Branch() string { return r.branch }

// BaseBranch returns the branch the release branch is cut from.
func (r *Release) BaseBranch() string { return r.baseBranch }

// ConfigID returns the release config this release runs under.
func (r *Release) ConfigID() string { return r.configID }

// TargetReleaseDate returns the planned store release date.
func (r *Release) TargetReleaseDate() time.Time { return r.targetReleaseDate }

// KickOffDate returns when stage one work becomes due.
func (r *Release) KickOffDate() time.Time { return r.kickOffDate }

// KickOffReminderDate returns the optional reminder date before kick-off.
func (r *Release) KickOffReminderDate() *time.Time { return r.kickOffReminderDate }

// HasManualBuildUpload reports whether builds are uploaded by hand
// instead of produced by CI.
func (r *Release) HasManualBuildUpload() bool { return r.hasManualBuildUpload }

// CreatedByAccountID returns the account that created the release.
func (r *Release) CreatedByAccountID() string { return r.createdByAccountID }

// PilotAccountID returns the release pilot account.
func (r *Release) PilotAccountID() string { return r.pilotAccountID }

// LastUpdatedAccountID returns the account behind the latest mutation.
func (r *Release) LastUpdatedAccountID() string { return r.lastUpdatedAccountID }

// CreatedAt returns the creation timestamp.
func (r *Release) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last update timestamp.
func (r *Release) UpdatedAt() time.Time { return r.updatedAt }

// KickOffDue reports whether the kick-off date has been reached.
func (r *Release) KickOffDue(now time.Time) bool {
	return !now.Before(r.kickOffDate)
}

// KickOffReminderDue reports whether the reminder date exists and has been reached.
func (r *Release) KickOffReminderDue(now time.Time) bool {
	return r.kickOffReminderDate != nil && !now.Before(*r.kickOffReminderDate)
}

// Begin moves the release from PENDING to IN_PROGRESS.
func (r *Release) Begin(accountID string, now time.Time) error {
	if err := r.transition(StatusInProgress); err != nil {
		return err
	}
	r.touch(accountID, now)
	return nil
}

// Pause moves the release to PAUSED. Pausing an already paused release
// reports alreadyPaused and changes nothing.
func (r *Release) Pause(accountID string, now time.Time) (alreadyPaused bool, err error) {
	if r.status == StatusPaused {
		return true, nil
	}
	if r.status != StatusInProgress {
		return false, fmt.Errorf("%w: status is %s", ErrNotInProgress, r.status)
	}
	if err := r.transition(StatusPaused); err != nil {
		return false, err
	}
	r.touch(accountID, now)
	return false, nil
}

// Resume moves a paused release back to IN_PROGRESS.
func (r *Release) Resume(accountID string, now time.Time) error {
	if r.status != StatusPaused {
		return fmt.Errorf("%w: status is %s", ErrNotPaused, r.status)
	}
	if err := r.transition(StatusInProgress); err != nil {
		return err
	}
	r.touch(accountID, now)
	return nil
}

// MarkSubmitted records that the release has been submitted for store review.
func (r *Release) MarkSubmitted(accountID string, now time.Time) error {
	if err := r.transition(StatusSubmitted); err != nil {
		return err
	}
	r.touch(accountID, now)
	return nil
}

// Complete marks the release as shipped.
func (r *Release) Complete(accountID string, now time.Time) error {
	if err := r.transition(StatusCompleted); err != nil {
		return err
	}
	r.touch(accountID, now)
	return nil
}

// Archive moves the release to ARCHIVED. Archiving an already archived
// release reports alreadyArchived and changes nothing.
func (r *Release) Archive(accountID string, now time.Time) (alreadyArchived bool, err error) {
	if r.status == StatusArchived {
		return true, nil
	}
	if err := r.transition(StatusArchived); err != nil {
		return false, err
	}
	r.touch(accountID, now)
	return false, nil
}

// MarkFailed moves the release to FAILED. This is an operator action,
// the orchestrator never fails a release on its own.
func (r *Release) MarkFailed(accountID string, now time.Time) error {
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	r.touch(accountID, now)
	return nil
}

// SetBranch records the forked release branch.
func (r *Release) SetBranch(branch string, now time.Time) error {
	if strings.TrimSpace(branch) == "" {
		return fmt.Errorf("branch cannot be empty")
	}
	r.branch = branch
	r.updatedAt = now
	return nil
}

// MarkManualBuildUploaded flags the release as using manual build uploads.
func (r *Release) MarkManualBuildUploaded(accountID string, now time.Time) {
	r.hasManualBuildUpload = true
	r.touch(accountID, now)
}

// IsTerminal reports whether the release can no longer change.
func (r *Release) IsTerminal() bool { return r.status.IsTerminal() }

func (r *Release) transition(to Status) error {
	if !r.status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, r.status, to)
	}
	r.status = to
	return nil
}

func (r *Release) touch(accountID string, now time.Time) {
	if accountID != "" {
		r.lastUpdatedAccountID = accountID
	}
	r.updatedAt = now
}

// Summary returns a snapshot of the release for display and logging.
func (r *Release) Summary() Summary {
	return Summary{
		ID:                r.id,
		TenantID:          r.tenantID,
		Type:              r.releaseType,
		Status:            r.status,
		Branch:            r.branch,
		BaseBranch:        r.baseBranch,
		TargetReleaseDate: r.targetReleaseDate,
		KickOffDate:       r.kickOffDate,
		PilotAccountID:    r.pilotAccountID,
		UpdatedAt:         r.updatedAt,
	}
}

// Summary is a read-only snapshot of a release.
type Summary struct {
	ID                ReleaseID `json:"id"`
	TenantID          string    `json:"tenantId"`
	Type              Type      `json:"type"`
	Status            Status    `json:"status"`
	Branch            string    `json:"branch,omitempty"`
	BaseBranch        string    `json:"baseBranch"`
	TargetReleaseDate time.Time `json:"targetReleaseDate"`
	KickOffDate       time.Time `json:"kickOffDate"`
	PilotAccountID    string    `json:"releasePilot,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

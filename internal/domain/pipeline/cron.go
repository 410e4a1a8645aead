package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/railhead-io/railhead/internal/domain/release"
)

// DefaultLockTimeoutSec is the advisory lease TTL applied when a cron
// job does not carry its own.
const DefaultLockTimeoutSec = 300

// CronConfig switches the optional tasks of a release pipeline.
type CronConfig struct {
	KickOffReminder     bool `json:"kickOffReminder"`
	PreRegressionBuilds bool `json:"preRegressionBuilds"`
	AutomationBuilds    bool `json:"automationBuilds"`
	AutomationRuns      bool `json:"automationRuns"`
	TestFlightBuilds    bool `json:"testFlightBuilds"`
}

// Enabled reports whether the given optional-task flag is switched on.
// FlagNone is always on.
func (c CronConfig) Enabled(flag ConfigFlag) bool {
	switch flag {
	case FlagNone:
		return true
	case FlagKickOffReminder:
		return c.KickOffReminder
	case FlagPreRegressionBuild:
		return c.PreRegressionBuilds
	case FlagAutomationBuilds:
		return c.AutomationBuilds
	case FlagAutomationRuns:
		return c.AutomationRuns
	case FlagTestFlightBuilds:
		return c.TestFlightBuilds
	}
	return false
}

// RegressionSlot schedules one regression cycle, with the config that
// cycle should run under.
type RegressionSlot struct {
	DueAt  time.Time  `json:"date"`
	Config CronConfig `json:"config"`
}

// CronJob is the durable pipeline state of one release. It tracks the
// three stage statuses, the pause state, the scheduled regression
// cycles and the advisory lease that keeps concurrent schedulers from
// executing the same release.
type CronJob struct {
	id        string
	releaseID release.ReleaseID

	stage1Status StageStatus
	stage2Status StageStatus
	stage3Status StageStatus

	cronStatus CronStatus
	pauseType  PauseType

	autoTransitionToStage2 bool
	autoTransitionToStage3 bool

	cronConfig          CronConfig
	upcomingRegressions []RegressionSlot

	lockedBy       *string
	lockedAt       *time.Time
	lockTimeoutSec int

	version   int
	createdAt time.Time
	updatedAt time.Time
}

// NewCronJobParams carries the inputs for creating a cron job.
type NewCronJobParams struct {
	ID                     string
	ReleaseID              release.ReleaseID
	Config                 CronConfig
	UpcomingRegressions    []RegressionSlot
	AutoTransitionToStage2 bool
	AutoTransitionToStage3 bool
	LockTimeoutSec         int
}

// NewCronJob creates a pipeline record in PENDING with all stages pending.
func NewCronJob(p NewCronJobParams, now time.Time) (*CronJob, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("cron job id cannot be empty")
	}
	if p.ReleaseID == "" {
		return nil, fmt.Errorf("cron job release id cannot be empty")
	}
	timeout := p.LockTimeoutSec
	if timeout <= 0 {
		timeout = DefaultLockTimeoutSec
	}
	slots := make([]RegressionSlot, len(p.UpcomingRegressions))
	copy(slots, p.UpcomingRegressions)
	sortSlots(slots)

	return &CronJob{
		id:                     p.ID,
		releaseID:              p.ReleaseID,
		stage1Status:           StagePending,
		stage2Status:           StagePending,
		stage3Status:           StagePending,
		cronStatus:             CronPending,
		autoTransitionToStage2: p.AutoTransitionToStage2,
		autoTransitionToStage3: p.AutoTransitionToStage3,
		cronConfig:             p.Config,
		upcomingRegressions:    slots,
		lockTimeoutSec:         timeout,
		createdAt:              now,
		updatedAt:              now,
	}, nil
}

// ReconstructCronJobParams carries a persisted cron job row back into
// the aggregate.
type ReconstructCronJobParams struct {
	ID                     string
	ReleaseID              release.ReleaseID
	Stage1Status           StageStatus
	Stage2Status           StageStatus
	Stage3Status           StageStatus
	CronStatus             CronStatus
	PauseType              PauseType
	AutoTransitionToStage2 bool
	AutoTransitionToStage3 bool
	Config                 CronConfig
	UpcomingRegressions    []RegressionSlot
	LockedBy               *string
	LockedAt               *time.Time
	LockTimeoutSec         int
	Version                int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ReconstructCronJob rebuilds a cron job from persistence.
func ReconstructCronJob(p ReconstructCronJobParams) *CronJob {
	timeout := p.LockTimeoutSec
	if timeout <= 0 {
		timeout = DefaultLockTimeoutSec
	}
	slots := make([]RegressionSlot, len(p.UpcomingRegressions))
	copy(slots, p.UpcomingRegressions)
	sortSlots(slots)

	return &CronJob{
		id:                     p.ID,
		releaseID:              p.ReleaseID,
		stage1Status:           p.Stage1Status,
		stage2Status:           p.Stage2Status,
		stage3Status:           p.Stage3Status,
		cronStatus:             p.CronStatus,
		pauseType:              p.PauseType,
		autoTransitionToStage2: p.AutoTransitionToStage2,
		autoTransitionToStage3: p.AutoTransitionToStage3,
		cronConfig:             p.Config,
		upcomingRegressions:    slots,
		lockedBy:               p.LockedBy,
		lockedAt:               p.LockedAt,
		lockTimeoutSec:         timeout,
		version:                p.Version,
		createdAt:              p.CreatedAt,
		updatedAt:              p.UpdatedAt,
	}
}

func sortSlots(slots []RegressionSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].DueAt.Before(slots[j].DueAt)
	})
}

// ID returns the cron job ID.
func (j *CronJob) ID() string { return j.id }

// ReleaseID returns the release this pipeline drives.
func (j *CronJob) ReleaseID() release.ReleaseID { return j.releaseID }

// CronStatus returns the pipeline status.
func (j *CronJob) CronStatus() CronStatus { return j.cronStatus }

// PauseReason returns why the pipeline is paused, or PauseNone.
func (j *CronJob) PauseReason() PauseType { return j.pauseType }

// AutoTransitionToStage2 reports whether regression starts unattended.
func (j *CronJob) AutoTransitionToStage2() bool { return j.autoTransitionToStage2 }

// AutoTransitionToStage3 reports whether post-regression starts unattended.
func (j *CronJob) AutoTransitionToStage3() bool { return j.autoTransitionToStage3 }

// Config returns the pipeline's base task config.
func (j *CronJob) Config() CronConfig { return j.cronConfig }

// UpcomingRegressions returns the scheduled regression slots ordered by
// due time.
func (j *CronJob) UpcomingRegressions() []RegressionSlot {
	out := make([]RegressionSlot, len(j.upcomingRegressions))
	copy(out, j.upcomingRegressions)
	return out
}

// LockedBy returns the current lease owner, if any.
func (j *CronJob) LockedBy() *string { return j.lockedBy }

// LockedAt returns when the lease was taken, if held.
func (j *CronJob) LockedAt() *time.Time { return j.lockedAt }

// LockTimeout returns the advisory lease TTL.
func (j *CronJob) LockTimeout() time.Duration {
	return time.Duration(j.lockTimeoutSec) * time.Second
}

// LockTimeoutSec returns the advisory lease TTL in seconds.
func (j *CronJob) LockTimeoutSec() int { return j.lockTimeoutSec }

// Version returns the optimistic concurrency version.
func (j *CronJob) Version() int { return j.version }

// CreatedAt returns the creation timestamp.
func (j *CronJob) CreatedAt() time.Time { return j.createdAt }

// UpdatedAt returns the last update timestamp.
func (j *CronJob) UpdatedAt() time.Time { return j.updatedAt }

// StageStatusFor returns the status of the given stage.
func (j *CronJob) StageStatusFor(stage release.Stage) StageStatus {
	switch stage {
	case release.StageKickoff:
		return j.stage1Status
	case release.StageRegression:
		return j.stage2Status
	case release.StagePostRegression:
		return j.stage3Status
	}
	return ""
}

// ActiveStage returns the stage currently in progress.
func (j *CronJob) ActiveStage() (release.Stage, bool) {
	for _, s := range release.AllStages() {
		if j.StageStatusFor(s) == StageInProgress {
			return s, true
		}
	}
	return "", false
}

// Corrupted reports an impossible stage layout: more than one stage in
// progress at once. A corrupted pipeline must be halted, not executed.
func (j *CronJob) Corrupted() bool {
	count := 0
	for _, s := range release.AllStages() {
		if j.StageStatusFor(s) == StageInProgress {
			count++
		}
	}
	return count > 1
}

// Start moves the pipeline to RUNNING and opens the kick-off stage.
func (j *CronJob) Start(now time.Time) error {
	if err := j.transitionCron(CronRunning); err != nil {
		return err
	}
	if err := j.beginStage(release.StageKickoff); err != nil {
		return err
	}
	j.updatedAt = now
	return nil
}

// Pause stops scheduling entirely and records the reason. Pausing an
// already paused pipeline updates the reason.
func (j *CronJob) Pause(reason PauseType, now time.Time) error {
	if !reason.IsPaused() {
		return fmt.Errorf("pause requires a reason")
	}
	if j.cronStatus == CronPaused {
		j.pauseType = reason
		j.updatedAt = now
		return nil
	}
	if err := j.transitionCron(CronPaused); err != nil {
		return err
	}
	j.pauseType = reason
	j.updatedAt = now
	return nil
}

// MarkTaskFailure records a failed task. The cron status stays RUNNING
// so a task retry resumes ticking without restarting the pipeline; the
// pause type alone keeps the executor away.
func (j *CronJob) MarkTaskFailure(now time.Time) {
	j.pauseType = PauseTaskFailure
	j.updatedAt = now
}

// AwaitStageTrigger parks the pipeline until a user opens the next
// stage. The cron status stays RUNNING because a due regression slot
// may legitimately re-open the regression stage in the meantime.
func (j *CronJob) AwaitStageTrigger(now time.Time) {
	j.pauseType = PauseAwaitingStageTrigger
	j.updatedAt = now
}

// Resume lifts a user-requested pause. Pauses caused by failed tasks or
// pending stage triggers have their own remedies and cannot be resumed.
func (j *CronJob) Resume(now time.Time) error {
	switch j.pauseType {
	case PauseUserRequested:
	case PauseNone:
		return fmt.Errorf("%w: cron status is %s", ErrCronNotPaused, j.cronStatus)
	default:
		return fmt.Errorf("%w: paused with %s", ErrResumeBlocked, j.pauseType)
	}
	if j.cronStatus == CronPaused {
		if err := j.transitionCron(CronRunning); err != nil {
			return err
		}
	}
	j.pauseType = PauseNone
	j.updatedAt = now
	return nil
}

// ClearPause drops the pause reason without touching the cron status.
// Retrying a failed task uses it to let the next tick proceed.
func (j *CronJob) ClearPause(now time.Time) {
	j.pauseType = PauseNone
	j.updatedAt = now
}

// Complete finishes the pipeline once every stage is done.
func (j *CronJob) Complete(now time.Time) error {
	for _, s := range release.AllStages() {
		if j.StageStatusFor(s) != StageCompleted {
			return fmt.Errorf("%w: stage %s is %s", ErrStagesIncomplete, s, j.StageStatusFor(s))
		}
	}
	if err := j.transitionCron(CronCompleted); err != nil {
		return err
	}
	j.updatedAt = now
	return nil
}

// Freeze ends the pipeline wherever it stands. Archival uses it: stage
// statuses and tasks keep their last values, only scheduling stops.
func (j *CronJob) Freeze(now time.Time) {
	if j.cronStatus == CronCompleted {
		return
	}
	j.cronStatus = CronCompleted
	j.updatedAt = now
}

// AdvanceToStage opens the target stage on the automatic path. The
// prior stage must already be completed.
func (j *CronJob) AdvanceToStage(target release.Stage, now time.Time) error {
	if err := j.ensureStageReady(target); err != nil {
		return err
	}
	if err := j.beginStage(target); err != nil {
		return err
	}
	j.updatedAt = now
	return nil
}

// TriggerStage opens the target stage on user request. It flips the
// matching auto-transition flag on, clears any awaiting-trigger pause
// and puts the cron back to RUNNING.
func (j *CronJob) TriggerStage(target release.Stage, now time.Time) error {
	if err := j.ensureStageReady(target); err != nil {
		return err
	}
	if err := j.beginStage(target); err != nil {
		return err
	}
	switch target {
	case release.StageRegression:
		j.autoTransitionToStage2 = true
	case release.StagePostRegression:
		j.autoTransitionToStage3 = true
	}
	if j.cronStatus == CronPaused {
		if err := j.transitionCron(CronRunning); err != nil {
			return err
		}
	}
	j.pauseType = PauseNone
	j.updatedAt = now
	return nil
}

func (j *CronJob) ensureStageReady(target release.Stage) error {
	switch target {
	case release.StageRegression:
		if j.stage1Status != StageCompleted {
			return fmt.Errorf("%w: kick-off is %s", ErrStageNotReady, j.stage1Status)
		}
	case release.StagePostRegression:
		if j.stage2Status != StageCompleted {
			return fmt.Errorf("%w: regression is %s", ErrStageNotReady, j.stage2Status)
		}
	default:
		return fmt.Errorf("cannot advance to %s", target)
	}
	return nil
}

// CompleteStage marks the given stage completed.
func (j *CronJob) CompleteStage(stage release.Stage, now time.Time) error {
	current := j.StageStatusFor(stage)
	if !current.CanTransitionTo(StageCompleted) {
		return fmt.Errorf("%w: stage %s is %s", ErrInvalidStageTransition, stage, current)
	}
	j.setStage(stage, StageCompleted)
	j.updatedAt = now
	return nil
}

// AddRegressionSlot schedules another regression cycle, keeping slots
// ordered by due time.
func (j *CronJob) AddRegressionSlot(slot RegressionSlot, now time.Time) error {
	if j.cronStatus == CronCompleted {
		return fmt.Errorf("%w: pipeline already completed", ErrCronCompleted)
	}
	j.upcomingRegressions = append(j.upcomingRegressions, slot)
	sortSlots(j.upcomingRegressions)
	j.updatedAt = now
	return nil
}

// NextDueSlot returns the earliest slot whose due time has passed.
func (j *CronJob) NextDueSlot(now time.Time) (RegressionSlot, bool) {
	if len(j.upcomingRegressions) == 0 {
		return RegressionSlot{}, false
	}
	first := j.upcomingRegressions[0]
	if first.DueAt.After(now) {
		return RegressionSlot{}, false
	}
	return first, true
}

// ConsumeNextDueSlot removes and returns the earliest due slot.
func (j *CronJob) ConsumeNextDueSlot(now time.Time) (RegressionSlot, bool) {
	slot, ok := j.NextDueSlot(now)
	if !ok {
		return RegressionSlot{}, false
	}
	j.upcomingRegressions = j.upcomingRegressions[1:]
	j.updatedAt = now
	return slot, true
}

// HasPendingSlots reports whether any regression slots remain, due or not.
func (j *CronJob) HasPendingSlots() bool {
	return len(j.upcomingRegressions) > 0
}

// LeaseExpired reports whether a held lease has outlived its TTL.
func (j *CronJob) LeaseExpired(now time.Time) bool {
	if j.lockedAt == nil {
		return false
	}
	return now.Sub(*j.lockedAt) > j.LockTimeout()
}

// Leased reports whether an unexpired lease is held.
func (j *CronJob) Leased(now time.Time) bool {
	return j.lockedBy != nil && !j.LeaseExpired(now)
}

// AcquireLease takes the advisory lease if it is free or expired.
// A holder re-acquiring its own lease refreshes it.
func (j *CronJob) AcquireLease(owner string, now time.Time) error {
	if owner == "" {
		return fmt.Errorf("lease owner cannot be empty")
	}
	if j.Leased(now) && *j.lockedBy != owner {
		return fmt.Errorf("%w: held by %s", ErrLeaseHeld, *j.lockedBy)
	}
	j.lockedBy = &owner
	t := now
	j.lockedAt = &t
	j.updatedAt = now
	return nil
}

// RenewLease refreshes the lease timestamp for the current owner.
func (j *CronJob) RenewLease(owner string, now time.Time) error {
	if j.lockedBy == nil || *j.lockedBy != owner {
		return fmt.Errorf("%w: not held by %s", ErrLeaseNotOwned, owner)
	}
	t := now
	j.lockedAt = &t
	j.updatedAt = now
	return nil
}

// ReleaseLease frees the lease if the caller still owns it. Releasing a
// lease that expired and was taken over is a no-op, never an error.
func (j *CronJob) ReleaseLease(owner string, now time.Time) {
	if j.lockedBy == nil || *j.lockedBy != owner {
		return
	}
	j.lockedBy = nil
	j.lockedAt = nil
	j.updatedAt = now
}

func (j *CronJob) transitionCron(to CronStatus) error {
	if !j.cronStatus.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidCronTransition, j.cronStatus, to)
	}
	j.cronStatus = to
	return nil
}

func (j *CronJob) beginStage(stage release.Stage) error {
	current := j.StageStatusFor(stage)
	if !current.CanTransitionTo(StageInProgress) {
		return fmt.Errorf("%w: stage %s is %s", ErrInvalidStageTransition, stage, current)
	}
	j.setStage(stage, StageInProgress)
	return nil
}

func (j *CronJob) setStage(stage release.Stage, status StageStatus) {
	switch stage {
	case release.StageKickoff:
		j.stage1Status = status
	case release.StageRegression:
		j.stage2Status = status
	case release.StagePostRegression:
		j.stage3Status = status
	}
}

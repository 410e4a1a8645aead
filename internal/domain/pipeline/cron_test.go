package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/railhead-io/railhead/internal/domain/release"
)

func newTestJob(t *testing.T, slots ...RegressionSlot) *CronJob {
	t.Helper()
	job, err := NewCronJob(NewCronJobParams{
		ID:                     "cron-1",
		ReleaseID:              "rel-1",
		Config:                 CronConfig{KickOffReminder: true},
		UpcomingRegressions:    slots,
		AutoTransitionToStage2: true,
	}, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewCronJob() error = %v", err)
	}
	return job
}

func TestNewCronJobDefaults(t *testing.T) {
	job := newTestJob(t)

	if job.CronStatus() != CronPending {
		t.Errorf("CronStatus() = %v, want PENDING", job.CronStatus())
	}
	for _, s := range release.AllStages() {
		if job.StageStatusFor(s) != StagePending {
			t.Errorf("stage %s = %v, want PENDING", s, job.StageStatusFor(s))
		}
	}
	if job.LockTimeoutSec() != DefaultLockTimeoutSec {
		t.Errorf("LockTimeoutSec() = %d, want %d", job.LockTimeoutSec(), DefaultLockTimeoutSec)
	}
	if job.PauseReason().IsPaused() {
		t.Error("new job reports paused")
	}
}

func TestCronJobStart(t *testing.T) {
	job := newTestJob(t)
	now := time.Now()

	if err := job.Start(now); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if job.CronStatus() != CronRunning {
		t.Errorf("CronStatus() = %v, want RUNNING", job.CronStatus())
	}
	if job.StageStatusFor(release.StageKickoff) != StageInProgress {
		t.Errorf("kick-off = %v, want IN_PROGRESS", job.StageStatusFor(release.StageKickoff))
	}
	stage, ok := job.ActiveStage()
	if !ok || stage != release.StageKickoff {
		t.Errorf("ActiveStage() = %v, %v", stage, ok)
	}

	if err := job.Start(now); !errors.Is(err, ErrInvalidCronTransition) {
		t.Errorf("second Start() error = %v, want ErrInvalidCronTransition", err)
	}
}

func TestCronJobPauseResume(t *testing.T) {
	job := newTestJob(t)
	now := time.Now()
	if err := job.Start(now); err != nil {
		t.Fatal(err)
	}

	if err := job.Pause(PauseNone, now); err == nil {
		t.Error("Pause(PauseNone) error = nil, want error")
	}
	if err := job.Pause(PauseTaskFailure, now); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if job.PauseReason() != PauseTaskFailure {
		t.Errorf("PauseReason() = %v, want TASK_FAILURE", job.PauseReason())
	}

	// Pausing again updates the reason.
	if err := job.Pause(PauseUserRequested, now); err != nil {
		t.Fatalf("re-Pause() error = %v", err)
	}
	if job.PauseReason() != PauseUserRequested {
		t.Errorf("PauseReason() = %v, want USER_REQUESTED", job.PauseReason())
	}

	if err := job.Resume(now); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if job.CronStatus() != CronRunning || job.PauseReason() != PauseNone {
		t.Errorf("after Resume: status=%v pause=%v", job.CronStatus(), job.PauseReason())
	}

	if err := job.Resume(now); !errors.Is(err, ErrCronNotPaused) {
		t.Errorf("Resume() while running error = %v, want ErrCronNotPaused", err)
	}
}

func TestCronJobResumeBlockedReasons(t *testing.T) {
	now := time.Now()

	job := newTestJob(t)
	if err := job.Start(now); err != nil {
		t.Fatal(err)
	}
	job.MarkTaskFailure(now)
	if job.CronStatus() != CronRunning {
		t.Errorf("CronStatus() after task failure = %v, want RUNNING", job.CronStatus())
	}
	if err := job.Resume(now); !errors.Is(err, ErrResumeBlocked) {
		t.Errorf("Resume() on TASK_FAILURE error = %v, want ErrResumeBlocked", err)
	}

	// Retrying the task clears the flag without a cron restart.
	job.ClearPause(now)
	if job.PauseReason() != PauseNone || job.CronStatus() != CronRunning {
		t.Errorf("after ClearPause: status=%v pause=%v", job.CronStatus(), job.PauseReason())
	}

	job.AwaitStageTrigger(now)
	if err := job.Resume(now); !errors.Is(err, ErrResumeBlocked) {
		t.Errorf("Resume() on AWAITING_STAGE_TRIGGER error = %v, want ErrResumeBlocked", err)
	}
}

func TestCronJobTriggerStage(t *testing.T) {
	job, err := NewCronJob(NewCronJobParams{
		ID:        "cron-2",
		ReleaseID: "rel-2",
	}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := job.Start(now); err != nil {
		t.Fatal(err)
	}

	if err := job.TriggerStage(release.StageRegression, now); !errors.Is(err, ErrStageNotReady) {
		t.Errorf("TriggerStage(REGRESSION) early error = %v, want ErrStageNotReady", err)
	}

	// Kick-off completes without auto-transition: paused awaiting the trigger.
	if err := job.CompleteStage(release.StageKickoff, now); err != nil {
		t.Fatal(err)
	}
	if err := job.Pause(PauseAwaitingStageTrigger, now); err != nil {
		t.Fatal(err)
	}

	if err := job.TriggerStage(release.StageRegression, now); err != nil {
		t.Fatalf("TriggerStage(REGRESSION) error = %v", err)
	}
	if job.StageStatusFor(release.StageRegression) != StageInProgress {
		t.Errorf("regression = %v, want IN_PROGRESS", job.StageStatusFor(release.StageRegression))
	}
	if job.CronStatus() != CronRunning || job.PauseReason() != PauseNone {
		t.Errorf("after trigger: status=%v pause=%v", job.CronStatus(), job.PauseReason())
	}
	if !job.AutoTransitionToStage2() {
		t.Error("TriggerStage did not flip autoTransitionToStage2")
	}
}

func TestCronJobFreeze(t *testing.T) {
	job := newTestJob(t)
	now := time.Now()
	if err := job.Start(now); err != nil {
		t.Fatal(err)
	}

	job.Freeze(now)
	if job.CronStatus() != CronCompleted {
		t.Errorf("CronStatus() after Freeze = %v, want COMPLETED", job.CronStatus())
	}
	if job.StageStatusFor(release.StageKickoff) != StageInProgress {
		t.Error("Freeze changed the stage status")
	}

	// Freezing again changes nothing.
	job.Freeze(now.Add(time.Minute))
	if job.CronStatus() != CronCompleted {
		t.Errorf("CronStatus() = %v, want COMPLETED", job.CronStatus())
	}
}

func TestCronJobStageAdvance(t *testing.T) {
	job := newTestJob(t)
	now := time.Now()
	if err := job.Start(now); err != nil {
		t.Fatal(err)
	}

	// Regression cannot open before kick-off completes.
	if err := job.AdvanceToStage(release.StageRegression, now); !errors.Is(err, ErrStageNotReady) {
		t.Errorf("AdvanceToStage(REGRESSION) early error = %v, want ErrStageNotReady", err)
	}

	if err := job.CompleteStage(release.StageKickoff, now); err != nil {
		t.Fatalf("CompleteStage(KICKOFF) error = %v", err)
	}
	if err := job.AdvanceToStage(release.StageRegression, now); err != nil {
		t.Fatalf("AdvanceToStage(REGRESSION) error = %v", err)
	}
	if job.StageStatusFor(release.StageRegression) != StageInProgress {
		t.Errorf("regression = %v, want IN_PROGRESS", job.StageStatusFor(release.StageRegression))
	}

	if err := job.CompleteStage(release.StageRegression, now); err != nil {
		t.Fatal(err)
	}
	if err := job.AdvanceToStage(release.StagePostRegression, now); err != nil {
		t.Fatal(err)
	}
	if err := job.CompleteStage(release.StagePostRegression, now); err != nil {
		t.Fatal(err)
	}

	if err := job.Complete(now); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if job.CronStatus() != CronCompleted {
		t.Errorf("CronStatus() = %v, want COMPLETED", job.CronStatus())
	}
}

func TestCronJobCompleteRequiresAllStages(t *testing.T) {
	job := newTestJob(t)
	now := time.Now()
	if err := job.Start(now); err != nil {
		t.Fatal(err)
	}
	if err := job.Complete(now); !errors.Is(err, ErrStagesIncomplete) {
		t.Errorf("Complete() early error = %v, want ErrStagesIncomplete", err)
	}
}

func TestCronJobCorrupted(t *testing.T) {
	job := ReconstructCronJob(ReconstructCronJobParams{
		ID:           "cron-x",
		ReleaseID:    "rel-x",
		Stage1Status: StageInProgress,
		Stage2Status: StageInProgress,
		Stage3Status: StagePending,
		CronStatus:   CronRunning,
	})
	if !job.Corrupted() {
		t.Error("Corrupted() = false with two stages in progress")
	}

	healthy := newTestJob(t)
	if healthy.Corrupted() {
		t.Error("Corrupted() = true for a fresh job")
	}
}

func TestCronJobSlots(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	early := RegressionSlot{DueAt: base, Config: CronConfig{AutomationRuns: true}}
	late := RegressionSlot{DueAt: base.Add(48 * time.Hour)}

	// Slots sort by due time regardless of insertion order.
	job := newTestJob(t, late, early)
	slots := job.UpcomingRegressions()
	if len(slots) != 2 || !slots[0].DueAt.Equal(base) {
		t.Fatalf("UpcomingRegressions() = %v", slots)
	}

	if _, ok := job.NextDueSlot(base.Add(-time.Hour)); ok {
		t.Error("NextDueSlot() before due time returned a slot")
	}

	slot, ok := job.ConsumeNextDueSlot(base.Add(time.Minute))
	if !ok {
		t.Fatal("ConsumeNextDueSlot() found nothing at due time")
	}
	if !slot.Config.AutomationRuns {
		t.Error("consumed slot lost its config override")
	}
	if got := len(job.UpcomingRegressions()); got != 1 {
		t.Errorf("slots remaining = %d, want 1", got)
	}

	// The remaining slot is later and not yet due.
	if _, ok := job.ConsumeNextDueSlot(base.Add(time.Hour)); ok {
		t.Error("ConsumeNextDueSlot() consumed an undue slot")
	}
	if !job.HasPendingSlots() {
		t.Error("HasPendingSlots() = false with one slot left")
	}
}

func TestCronJobAddSlotKeepsOrder(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	job := newTestJob(t, RegressionSlot{DueAt: base.Add(24 * time.Hour)})
	now := time.Now()

	if err := job.AddRegressionSlot(RegressionSlot{DueAt: base}, now); err != nil {
		t.Fatalf("AddRegressionSlot() error = %v", err)
	}
	slots := job.UpcomingRegressions()
	if !slots[0].DueAt.Equal(base) {
		t.Errorf("slots out of order: %v", slots)
	}
}

func TestCronJobLease(t *testing.T) {
	job := newTestJob(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := job.AcquireLease("sched-a", t0); err != nil {
		t.Fatalf("AcquireLease() error = %v", err)
	}
	if !job.Leased(t0) {
		t.Error("Leased() = false after acquire")
	}

	// Another scheduler is shut out while the lease is fresh.
	if err := job.AcquireLease("sched-b", t0.Add(time.Minute)); !errors.Is(err, ErrLeaseHeld) {
		t.Errorf("AcquireLease(sched-b) error = %v, want ErrLeaseHeld", err)
	}

	// The owner can refresh its own lease.
	if err := job.RenewLease("sched-a", t0.Add(2*time.Minute)); err != nil {
		t.Errorf("RenewLease() error = %v", err)
	}
	if err := job.RenewLease("sched-b", t0.Add(2*time.Minute)); !errors.Is(err, ErrLeaseNotOwned) {
		t.Errorf("RenewLease(sched-b) error = %v, want ErrLeaseNotOwned", err)
	}

	// Past the TTL the lease is up for grabs.
	expired := t0.Add(2*time.Minute + time.Duration(DefaultLockTimeoutSec+1)*time.Second)
	if !job.LeaseExpired(expired) {
		t.Error("LeaseExpired() = false past the TTL")
	}
	if err := job.AcquireLease("sched-b", expired); err != nil {
		t.Errorf("AcquireLease() on expired lease error = %v", err)
	}

	// The old owner's release is now a no-op, not a theft.
	job.ReleaseLease("sched-a", expired.Add(time.Second))
	if job.LockedBy() == nil || *job.LockedBy() != "sched-b" {
		t.Errorf("LockedBy() = %v, want sched-b", job.LockedBy())
	}

	job.ReleaseLease("sched-b", expired.Add(2*time.Second))
	if job.LockedBy() != nil {
		t.Error("LockedBy() != nil after owner release")
	}
}

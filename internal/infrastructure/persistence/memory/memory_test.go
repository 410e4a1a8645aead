package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
)

func seedRelease(t *testing.T, s ports.Store, id release.ReleaseID) *release.Release {
	t.Helper()
	kickOff := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	rel, err := release.NewRelease(release.NewReleaseParams{
		ID:                 id,
		TenantID:           "tenant-a",
		Type:               release.TypeMinor,
		BaseBranch:         "develop",
		ConfigID:           "cfg-001",
		TargetReleaseDate:  kickOff.AddDate(0, 0, 14),
		KickOffDate:        kickOff,
		CreatedByAccountID: "acct-creator",
	}, kickOff.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("NewRelease() error = %v", err)
	}
	if err := s.Releases.Create(context.Background(), rel); err != nil {
		t.Fatalf("Releases.Create() error = %v", err)
	}
	return rel
}

func seedCronJob(t *testing.T, s ports.Store, releaseID release.ReleaseID) *pipeline.CronJob {
	t.Helper()
	job, err := pipeline.NewCronJob(pipeline.NewCronJobParams{
		ID:                     "cron-" + string(releaseID),
		ReleaseID:              releaseID,
		AutoTransitionToStage2: true,
	}, time.Now())
	if err != nil {
		t.Fatalf("NewCronJob() error = %v", err)
	}
	if err := s.CronJobs.Create(context.Background(), job); err != nil {
		t.Fatalf("CronJobs.Create() error = %v", err)
	}
	return job
}

func TestReleaseRoundTrip(t *testing.T) {
	db := New()
	s := db.Store()
	ctx := context.Background()

	rel := seedRelease(t, s, "rel-1")

	got, err := s.Releases.FindByID(ctx, "rel-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.TenantID() != rel.TenantID() || got.Status() != release.StatusPending {
		t.Errorf("round trip lost fields: tenant=%s status=%s", got.TenantID(), got.Status())
	}

	// The stored row is a snapshot: mutating the returned aggregate does
	// not leak back without Update.
	if err := got.Begin("acct-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	again, err := s.Releases.FindByID(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Status() != release.StatusPending {
		t.Errorf("mutation leaked into store: status = %s", again.Status())
	}

	if err := s.Releases.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	again, _ = s.Releases.FindByID(ctx, "rel-1")
	if again.Status() != release.StatusInProgress {
		t.Errorf("Update() not visible: status = %s", again.Status())
	}

	if _, err := s.Releases.FindByID(ctx, "rel-missing"); !errors.Is(err, release.ErrReleaseNotFound) {
		t.Errorf("FindByID(missing) error = %v, want ErrReleaseNotFound", err)
	}
}

func TestCronJobLeaseOps(t *testing.T) {
	db := New()
	s := db.Store()
	ctx := context.Background()
	t0 := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	seedRelease(t, s, "rel-1")
	seedCronJob(t, s, "rel-1")

	ok, err := s.CronJobs.AcquireLease(ctx, "rel-1", "sched-a", t0)
	if err != nil || !ok {
		t.Fatalf("AcquireLease(sched-a) = %v, %v", ok, err)
	}

	// Contention: the second scheduler is refused, silently.
	ok, err = s.CronJobs.AcquireLease(ctx, "rel-1", "sched-b", t0.Add(time.Second))
	if err != nil {
		t.Fatalf("AcquireLease(sched-b) error = %v", err)
	}
	if ok {
		t.Error("AcquireLease(sched-b) succeeded against a fresh lease")
	}

	ok, err = s.CronJobs.RenewLease(ctx, "rel-1", "sched-a", t0.Add(time.Minute))
	if err != nil || !ok {
		t.Errorf("RenewLease(sched-a) = %v, %v", ok, err)
	}
	ok, _ = s.CronJobs.RenewLease(ctx, "rel-1", "sched-b", t0.Add(time.Minute))
	if ok {
		t.Error("RenewLease(sched-b) renewed a lease it does not own")
	}

	// Expiry takeover.
	expired := t0.Add(time.Minute + time.Duration(pipeline.DefaultLockTimeoutSec+1)*time.Second)
	ok, err = s.CronJobs.AcquireLease(ctx, "rel-1", "sched-b", expired)
	if err != nil || !ok {
		t.Fatalf("AcquireLease(sched-b) after expiry = %v, %v", ok, err)
	}

	// The old owner releasing now is a no-op.
	if err := s.CronJobs.ReleaseLease(ctx, "rel-1", "sched-a"); err != nil {
		t.Fatalf("ReleaseLease(sched-a) error = %v", err)
	}
	job, err := s.CronJobs.FindByReleaseID(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}
	if job.LockedBy() == nil || *job.LockedBy() != "sched-b" {
		t.Errorf("LockedBy() = %v, want sched-b", job.LockedBy())
	}
}

func TestCronJobOptimisticUpdate(t *testing.T) {
	db := New()
	s := db.Store()
	ctx := context.Background()
	now := time.Now()

	seedRelease(t, s, "rel-1")
	seedCronJob(t, s, "rel-1")

	first, err := s.CronJobs.FindByReleaseID(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}
	stale, err := s.CronJobs.FindByReleaseID(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := first.Start(now); err != nil {
		t.Fatal(err)
	}
	if err := s.CronJobs.Update(ctx, first); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// The second copy read the same version and must now be rejected.
	if err := stale.Start(now); err != nil {
		t.Fatal(err)
	}
	if err := s.CronJobs.Update(ctx, stale); !errors.Is(err, pipeline.ErrStaleCronJob) {
		t.Errorf("stale Update() error = %v, want ErrStaleCronJob", err)
	}

	fresh, err := s.CronJobs.FindByReleaseID(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Version() != first.Version()+1 {
		t.Errorf("Version() = %d, want %d", fresh.Version(), first.Version()+1)
	}
}

func TestUpdateKeepsLeaseColumns(t *testing.T) {
	db := New()
	s := db.Store()
	ctx := context.Background()
	now := time.Now()

	seedRelease(t, s, "rel-1")
	seedCronJob(t, s, "rel-1")

	if ok, err := s.CronJobs.AcquireLease(ctx, "rel-1", "sched-a", now); err != nil || !ok {
		t.Fatalf("AcquireLease() = %v, %v", ok, err)
	}

	// The job read before the lease carries no lease columns; Update must
	// not wipe them.
	job, err := s.CronJobs.FindByReleaseID(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := job.Start(now); err != nil {
		t.Fatal(err)
	}
	if err := s.CronJobs.Update(ctx, job); err != nil {
		t.Fatal(err)
	}

	after, err := s.CronJobs.FindByReleaseID(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}
	if after.LockedBy() == nil || *after.LockedBy() != "sched-a" {
		t.Errorf("Update() dropped the lease: LockedBy = %v", after.LockedBy())
	}
}

func TestRunningCandidatesOrdering(t *testing.T) {
	db := New()
	s := db.Store()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []release.ReleaseID{"rel-c", "rel-a", "rel-b"} {
		seedRelease(t, s, id)
		job := seedCronJob(t, s, id)
		if id == "rel-b" {
			continue // stays PENDING
		}
		if err := job.Start(now); err != nil {
			t.Fatal(err)
		}
		if err := s.CronJobs.Update(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	candidates, err := s.CronJobs.FindRunningCandidates(ctx)
	if err != nil {
		t.Fatalf("FindRunningCandidates() error = %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(candidates))
	}
	if candidates[0].ReleaseID() != "rel-a" || candidates[1].ReleaseID() != "rel-c" {
		t.Errorf("candidate order = %s, %s", candidates[0].ReleaseID(), candidates[1].ReleaseID())
	}
}

func TestTaskStageOrdering(t *testing.T) {
	db := New()
	s := db.Store()
	ctx := context.Background()
	now := time.Now()

	seedRelease(t, s, "rel-1")

	// Created out of order on purpose.
	var tasks []*pipeline.ReleaseTask
	for i, taskType := range []pipeline.TaskType{
		pipeline.TaskCreateTestSuite,
		pipeline.TaskForkBranch,
		pipeline.TaskCreatePMTicket,
	} {
		task, err := pipeline.NewTask(fmt.Sprintf("task-%d", i), "rel-1", nil, taskType, now)
		if err != nil {
			t.Fatal(err)
		}
		tasks = append(tasks, task)
	}
	if err := s.Tasks.BulkCreate(ctx, tasks); err != nil {
		t.Fatalf("BulkCreate() error = %v", err)
	}

	got, err := s.Tasks.FindByReleaseAndStage(ctx, "rel-1", release.StageKickoff)
	if err != nil {
		t.Fatal(err)
	}
	want := []pipeline.TaskType{
		pipeline.TaskForkBranch,
		pipeline.TaskCreatePMTicket,
		pipeline.TaskCreateTestSuite,
	}
	if len(got) != len(want) {
		t.Fatalf("tasks = %d, want %d", len(got), len(want))
	}
	for i, task := range got {
		if task.Type() != want[i] {
			t.Errorf("task[%d] = %s, want %s", i, task.Type(), want[i])
		}
	}
}

func TestCycleTagCountSurvivesDemotion(t *testing.T) {
	db := New()
	s := db.Store()
	ctx := context.Background()
	now := time.Now()

	seedRelease(t, s, "rel-1")

	first, err := pipeline.NewRegressionCycle("cycle-0", "rel-1", pipeline.CycleTag("1.0.0", 0), now)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Cycles.Create(ctx, first); err != nil {
		t.Fatal(err)
	}

	first.Demote(now)
	if err := s.Cycles.Update(ctx, first); err != nil {
		t.Fatal(err)
	}
	second, err := pipeline.NewRegressionCycle("cycle-1", "rel-1", pipeline.CycleTag("1.0.0", 1), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Cycles.Create(ctx, second); err != nil {
		t.Fatal(err)
	}

	tags, err := s.Cycles.CountTagsByRelease(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}
	if tags != 2 {
		t.Errorf("CountTagsByRelease() = %d, want 2", tags)
	}

	latest, err := s.Cycles.FindLatest(ctx, "rel-1")
	if err != nil {
		t.Fatalf("FindLatest() error = %v", err)
	}
	if latest.ID() != "cycle-1" {
		t.Errorf("FindLatest() = %s, want cycle-1", latest.ID())
	}
}

func TestFindLatestWithoutCycles(t *testing.T) {
	db := New()
	s := db.Store()

	if _, err := s.Cycles.FindLatest(context.Background(), "rel-1"); !errors.Is(err, pipeline.ErrCycleNotFound) {
		t.Errorf("FindLatest() error = %v, want ErrCycleNotFound", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db := New()
	s := db.Store()
	ctx := context.Background()

	seedRelease(t, s, "rel-1")

	failed := errors.New("boom")
	err := db.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		rel, err := tx.Releases.FindByID(ctx, "rel-1")
		if err != nil {
			return err
		}
		if err := rel.Begin("acct-1", time.Now()); err != nil {
			return err
		}
		if err := tx.Releases.Update(ctx, rel); err != nil {
			return err
		}
		return failed
	})
	if !errors.Is(err, failed) {
		t.Fatalf("WithinTx() error = %v, want boom", err)
	}

	rel, err := s.Releases.FindByID(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}
	if rel.Status() != release.StatusPending {
		t.Errorf("rolled-back status = %s, want PENDING", rel.Status())
	}

	// A successful transaction is adopted.
	err = db.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		rel, err := tx.Releases.FindByID(ctx, "rel-1")
		if err != nil {
			return err
		}
		if err := rel.Begin("acct-1", time.Now()); err != nil {
			return err
		}
		return tx.Releases.Update(ctx, rel)
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}
	rel, _ = s.Releases.FindByID(ctx, "rel-1")
	if rel.Status() != release.StatusInProgress {
		t.Errorf("committed status = %s, want IN_PROGRESS", rel.Status())
	}
}

func TestHistoryAppendOnly(t *testing.T) {
	db := New()
	s := db.Store()
	ctx := context.Background()
	now := time.Now()

	entry, err := release.NewStateHistory("hist-1", "rel-1", release.HistoryActionStart, "acct-1", now,
		release.Change("status", "PENDING", "IN_PROGRESS"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.History.Append(ctx, entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Mutating the caller's copy after append must not change the stored row.
	entry.Items[0].NewValue = "TAMPERED"

	got, err := s.History.FindByRelease(ctx, "rel-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(got[0].Items) != 1 {
		t.Fatalf("history = %+v", got)
	}
	if got[0].Items[0].NewValue != "IN_PROGRESS" {
		t.Errorf("stored item mutated: %s", got[0].Items[0].NewValue)
	}
}

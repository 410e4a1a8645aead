package release

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
	"github.com/railhead-io/railhead/internal/infrastructure/persistence/memory"
)

var testStart = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

// stubClock returns a fixed time the test can move by hand.
type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

type fixture struct {
	db    *memory.DB
	store ports.Store
	clock *stubClock
	relID release.ReleaseID
}

// newFixture seeds one pending release with an android and an iOS
// mapping and a pending cron job.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := memory.New()
	f := &fixture{
		db:    db,
		store: db.Store(),
		clock: &stubClock{now: testStart},
		relID: "rel-1",
	}

	rel, err := release.NewRelease(release.NewReleaseParams{
		ID:                 f.relID,
		TenantID:           "tenant-1",
		Type:               release.TypeMinor,
		BaseBranch:         "develop",
		ConfigID:           "cfg-1",
		TargetReleaseDate:  testStart.AddDate(0, 0, 14),
		KickOffDate:        testStart,
		CreatedByAccountID: "acct-1",
		PilotAccountID:     "acct-2",
	}, testStart)
	if err != nil {
		t.Fatalf("NewRelease() error = %v", err)
	}
	if err := f.store.Releases.Create(ctx, rel); err != nil {
		t.Fatalf("create release: %v", err)
	}

	mappings := release.Mappings{}
	for _, p := range []release.Platform{release.PlatformAndroid, release.PlatformIOS} {
		mappings = append(mappings, release.PlatformTargetMapping{
			ReleaseID: f.relID,
			Platform:  p,
			Target:    p.DefaultTarget(),
			Version:   "1.4.0",
		})
	}
	if err := f.store.Mappings.ReplaceForRelease(ctx, f.relID, mappings); err != nil {
		t.Fatalf("replace mappings: %v", err)
	}

	job, err := pipeline.NewCronJob(pipeline.NewCronJobParams{
		ID:        "cron-1",
		ReleaseID: f.relID,
		Config:    pipeline.CronConfig{PreRegressionBuilds: true},
	}, testStart)
	if err != nil {
		t.Fatalf("NewCronJob() error = %v", err)
	}
	if err := f.store.CronJobs.Create(ctx, job); err != nil {
		t.Fatalf("create cron job: %v", err)
	}

	return f
}

// begin moves the fixture to a running pipeline without going through
// the start use case.
func (f *fixture) begin(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	rel := f.release(t)
	if err := rel.Begin("acct-1", f.clock.now); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := f.store.Releases.Update(ctx, rel); err != nil {
		t.Fatalf("update release: %v", err)
	}
	job := f.job(t)
	if err := job.Start(f.clock.now); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.store.CronJobs.Update(ctx, job); err != nil {
		t.Fatalf("update cron job: %v", err)
	}
}

func (f *fixture) release(t *testing.T) *release.Release {
	t.Helper()
	rel, err := f.store.Releases.FindByID(context.Background(), f.relID)
	if err != nil {
		t.Fatalf("FindByID(release) error = %v", err)
	}
	return rel
}

func (f *fixture) saveRelease(t *testing.T, rel *release.Release) {
	t.Helper()
	if err := f.store.Releases.Update(context.Background(), rel); err != nil {
		t.Fatalf("update release: %v", err)
	}
}

func (f *fixture) job(t *testing.T) *pipeline.CronJob {
	t.Helper()
	job, err := f.store.CronJobs.FindByReleaseID(context.Background(), f.relID)
	if err != nil {
		t.Fatalf("FindByReleaseID(cron) error = %v", err)
	}
	return job
}

func (f *fixture) saveJob(t *testing.T, job *pipeline.CronJob) {
	t.Helper()
	if err := f.store.CronJobs.Update(context.Background(), job); err != nil {
		t.Fatalf("update cron job: %v", err)
	}
}

func (f *fixture) history(t *testing.T) []*release.StateHistory {
	t.Helper()
	entries, err := f.store.History.FindByRelease(context.Background(), f.relID)
	if err != nil {
		t.Fatalf("FindByRelease(history) error = %v", err)
	}
	return entries
}

// seedTask persists one task in the given terminal or pending shape.
func (f *fixture) seedTask(t *testing.T, taskType pipeline.TaskType, status pipeline.TaskStatus) *pipeline.ReleaseTask {
	t.Helper()
	task, err := pipeline.NewTask(fmt.Sprintf("task-%s", taskType), f.relID, nil, taskType, f.clock.now)
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	switch status {
	case pipeline.TaskPending:
	case pipeline.TaskFailed:
		if err := task.Begin(f.clock.now); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if err := task.Fail("provider exploded", f.clock.now); err != nil {
			t.Fatalf("Fail() error = %v", err)
		}
	case pipeline.TaskCompleted:
		if err := task.Begin(f.clock.now); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if err := task.CompleteWithRef("ext-1", f.clock.now); err != nil {
			t.Fatalf("CompleteWithRef() error = %v", err)
		}
	default:
		t.Fatalf("unsupported seed status %s", status)
	}
	if err := f.store.Tasks.BulkCreate(context.Background(), []*pipeline.ReleaseTask{task}); err != nil {
		t.Fatalf("BulkCreate() error = %v", err)
	}
	return task
}

func (f *fixture) task(t *testing.T, id string) *pipeline.ReleaseTask {
	t.Helper()
	task, err := f.store.Tasks.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(task) error = %v", err)
	}
	return task
}

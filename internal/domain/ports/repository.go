// Package ports defines the persistence interfaces the orchestrator and
// application layers depend on. Implementations live under
// internal/infrastructure.
package ports

import (
	"context"
	"time"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// ReleaseRepository persists release aggregates.
type ReleaseRepository interface {
	// Create persists a new release.
	Create(ctx context.Context, r *release.Release) error

	// FindByID retrieves a release by its ID.
	FindByID(ctx context.Context, id release.ReleaseID) (*release.Release, error)

	// FindByTenant retrieves a tenant's releases, newest first.
	FindByTenant(ctx context.Context, tenantID string) ([]*release.Release, error)

	// FindByStatus retrieves releases in a given status.
	FindByStatus(ctx context.Context, status release.Status) ([]*release.Release, error)

	// Update persists changes to an existing release.
	Update(ctx context.Context, r *release.Release) error
}

// CronJobRepository persists the pipeline state of releases and owns the
// advisory lease operations.
type CronJobRepository interface {
	// Create persists a new cron job.
	Create(ctx context.Context, job *pipeline.CronJob) error

	// FindByReleaseID retrieves the cron job driving a release.
	FindByReleaseID(ctx context.Context, releaseID release.ReleaseID) (*pipeline.CronJob, error)

	// FindRunningCandidates retrieves the cron jobs the scheduler should
	// consider this tick: RUNNING jobs, ordered by release ID for a
	// stable scan order.
	FindRunningCandidates(ctx context.Context) ([]*pipeline.CronJob, error)

	// Update persists changes to a cron job. Implementations check the
	// optimistic version and report a conflict when it moved.
	Update(ctx context.Context, job *pipeline.CronJob) error

	// AcquireLease atomically takes the advisory lease for a release if
	// it is free or expired. It reports whether the lease was taken.
	AcquireLease(ctx context.Context, releaseID release.ReleaseID, owner string, now time.Time) (bool, error)

	// RenewLease refreshes the lease timestamp if the owner still holds
	// it. It reports whether the lease was renewed.
	RenewLease(ctx context.Context, releaseID release.ReleaseID, owner string, now time.Time) (bool, error)

	// ReleaseLease frees the lease if the owner still holds it. Losing
	// the lease to an expiry takeover is not an error.
	ReleaseLease(ctx context.Context, releaseID release.ReleaseID, owner string) error
}

// ReleaseTaskRepository persists pipeline tasks.
type ReleaseTaskRepository interface {
	// BulkCreate persists a batch of tasks in one round trip.
	BulkCreate(ctx context.Context, tasks []*pipeline.ReleaseTask) error

	// FindByID retrieves a task by its ID.
	FindByID(ctx context.Context, id string) (*pipeline.ReleaseTask, error)

	// FindByReleaseAndStage retrieves a release's tasks for one stage in
	// catalog order.
	FindByReleaseAndStage(ctx context.Context, releaseID release.ReleaseID, stage release.Stage) ([]*pipeline.ReleaseTask, error)

	// FindByTaskType retrieves a release's tasks of one type, newest first.
	FindByTaskType(ctx context.Context, releaseID release.ReleaseID, taskType pipeline.TaskType) ([]*pipeline.ReleaseTask, error)

	// FindByRegressionCycle retrieves the tasks of one regression cycle
	// in catalog order.
	FindByRegressionCycle(ctx context.Context, regressionID string) ([]*pipeline.ReleaseTask, error)

	// Update persists changes to a task.
	Update(ctx context.Context, task *pipeline.ReleaseTask) error
}

// RegressionCycleRepository persists regression cycles.
type RegressionCycleRepository interface {
	// Create persists a new cycle.
	Create(ctx context.Context, cycle *pipeline.RegressionCycle) error

	// FindByID retrieves a cycle by its ID.
	FindByID(ctx context.Context, id string) (*pipeline.RegressionCycle, error)

	// FindLatest retrieves the release's latest cycle, or
	// pipeline.ErrCycleNotFound when the release has none yet.
	FindLatest(ctx context.Context, releaseID release.ReleaseID) (*pipeline.RegressionCycle, error)

	// FindAll retrieves all cycles of a release, oldest first.
	FindAll(ctx context.Context, releaseID release.ReleaseID) ([]*pipeline.RegressionCycle, error)

	// Update persists changes to a cycle.
	Update(ctx context.Context, cycle *pipeline.RegressionCycle) error

	// CountByRelease returns how many cycles the release has had.
	CountByRelease(ctx context.Context, releaseID release.ReleaseID) (int, error)

	// CountTagsByRelease returns how many cycle tags the release has
	// claimed. Tag numbering never reuses a claimed number.
	CountTagsByRelease(ctx context.Context, releaseID release.ReleaseID) (int, error)
}

// PlatformMappingRepository persists platform target mappings.
type PlatformMappingRepository interface {
	// ReplaceForRelease swaps the release's mappings for the given set.
	ReplaceForRelease(ctx context.Context, releaseID release.ReleaseID, mappings release.Mappings) error

	// FindByRelease retrieves the release's mappings.
	FindByRelease(ctx context.Context, releaseID release.ReleaseID) (release.Mappings, error)
}

// ReleaseUploadRepository persists manual build uploads.
type ReleaseUploadRepository interface {
	// Create persists a new upload record.
	Create(ctx context.Context, upload release.ReleaseUpload) error

	// FindByRelease retrieves a release's uploads, newest first.
	FindByRelease(ctx context.Context, releaseID release.ReleaseID) ([]release.ReleaseUpload, error)

	// FindByReleaseAndStage retrieves the uploads for one stage.
	FindByReleaseAndStage(ctx context.Context, releaseID release.ReleaseID, stage release.Stage) ([]release.ReleaseUpload, error)
}

// BuildRepository persists triggered CI builds.
type BuildRepository interface {
	// Create persists a new build row.
	Create(ctx context.Context, build pipeline.Build) error

	// FindByRelease retrieves a release's builds, newest first.
	FindByRelease(ctx context.Context, releaseID release.ReleaseID) ([]pipeline.Build, error)

	// FindByRegressionCycle retrieves the builds of one cycle.
	FindByRegressionCycle(ctx context.Context, regressionID string) ([]pipeline.Build, error)
}

// StateHistoryRepository persists the append-only audit log.
type StateHistoryRepository interface {
	// Append persists a history entry with its items.
	Append(ctx context.Context, entry *release.StateHistory) error

	// FindByRelease retrieves a release's history, newest first.
	FindByRelease(ctx context.Context, releaseID release.ReleaseID) ([]*release.StateHistory, error)
}

// ReleaseConfigRepository persists release configs.
type ReleaseConfigRepository interface {
	// Create persists a new config.
	Create(ctx context.Context, cfg *release.ReleaseConfig) error

	// FindByID retrieves a config by its ID.
	FindByID(ctx context.Context, id string) (*release.ReleaseConfig, error)

	// FindByTenant retrieves a tenant's configs.
	FindByTenant(ctx context.Context, tenantID string) ([]*release.ReleaseConfig, error)

	// Update persists changes to a config.
	Update(ctx context.Context, cfg *release.ReleaseConfig) error
}

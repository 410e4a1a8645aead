package release

import (
	"context"
	"errors"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// loadRelease fetches a release and maps repository errors onto kinds.
func loadRelease(ctx context.Context, s ports.Store, op string, id release.ReleaseID) (*release.Release, error) {
	rel, err := s.Releases.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, release.ErrReleaseNotFound) {
			return nil, rherrors.Wrapf(err, rherrors.KindNotFound, op, "release %s not found", id)
		}
		return nil, rherrors.Wrap(err, rherrors.KindIO, op, "load release")
	}
	return rel, nil
}

// loadReleaseForTenant fetches a release scoped to a tenant. A release
// belonging to another tenant reads as not found.
func loadReleaseForTenant(ctx context.Context, s ports.Store, op string, id release.ReleaseID, tenantID string) (*release.Release, error) {
	rel, err := loadRelease(ctx, s, op, id)
	if err != nil {
		return nil, err
	}
	if tenantID != "" && rel.TenantID() != tenantID {
		return nil, rherrors.Newf(rherrors.KindNotFound, "release %s not found", id)
	}
	return rel, nil
}

// loadJob fetches the cron job driving a release.
func loadJob(ctx context.Context, s ports.Store, op string, releaseID release.ReleaseID) (*pipeline.CronJob, error) {
	job, err := s.CronJobs.FindByReleaseID(ctx, releaseID)
	if err != nil {
		if errors.Is(err, pipeline.ErrCronJobNotFound) {
			return nil, rherrors.Wrapf(err, rherrors.KindNotFound, op, "pipeline for release %s not found", releaseID)
		}
		return nil, rherrors.Wrap(err, rherrors.KindIO, op, "load cron job")
	}
	return job, nil
}

// loadTask fetches a task by ID.
func loadTask(ctx context.Context, s ports.Store, op string, taskID string) (*pipeline.ReleaseTask, error) {
	task, err := s.Tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pipeline.ErrTaskNotFound) {
			return nil, rherrors.Wrapf(err, rherrors.KindNotFound, op, "task %s not found", taskID)
		}
		return nil, rherrors.Wrap(err, rherrors.KindIO, op, "load task")
	}
	return task, nil
}

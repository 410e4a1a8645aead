package orchestrator

import (
	"context"
	"fmt"

	"github.com/railhead-io/railhead/internal/domain/release"
)

// postRegressionState drives stage three: final tag, final notes, the
// store submission checks. Completing it completes the pipeline and the
// release itself.
type postRegressionState struct {
	deps stageDeps
}

func (s *postRegressionState) Stage() release.Stage { return release.StagePostRegression }

func (s *postRegressionState) Execute(ctx context.Context, ec *execContext) error {
	tasks, err := s.deps.store.Tasks.FindByReleaseAndStage(ctx, ec.release.ID(), release.StagePostRegression)
	if err != nil {
		return fmt.Errorf("load post-regression tasks: %w", err)
	}
	if len(tasks) == 0 {
		created, err := newStageTasks(ec, postRegressionTaskTypes(ec), nil, s.deps.clock.Now())
		if err != nil {
			return err
		}
		if err := s.deps.store.Tasks.BulkCreate(ctx, created); err != nil {
			return fmt.Errorf("create post-regression tasks: %w", err)
		}
		s.deps.logger.Info("post-regression tasks created",
			"releaseId", ec.release.ID(), "tasks", len(created))
		tasks = created
	}
	return s.deps.exec.RunChain(ctx, ec, tasks, nil)
}

func (s *postRegressionState) IsComplete(ctx context.Context, ec *execContext) (bool, error) {
	tasks, err := s.deps.store.Tasks.FindByReleaseAndStage(ctx, ec.release.ID(), release.StagePostRegression)
	if err != nil {
		return false, err
	}
	return allCompleted(tasks), nil
}

func (s *postRegressionState) TransitionToNext(ctx context.Context, ec *execContext) error {
	now := s.deps.clock.Now()
	if err := ec.job.CompleteStage(release.StagePostRegression, now); err != nil {
		return err
	}
	if err := ec.job.Complete(now); err != nil {
		return err
	}
	if ec.release.Status().IsActive() {
		if err := ec.release.Complete("", now); err != nil {
			return err
		}
		if err := s.deps.store.Releases.Update(ctx, ec.release); err != nil {
			return err
		}
	}
	s.deps.logger.Info("release pipeline completed",
		"releaseId", ec.release.ID(), "status", ec.release.Status())
	return nil
}

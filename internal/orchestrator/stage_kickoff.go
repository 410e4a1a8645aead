package orchestrator

import (
	"context"
	"fmt"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// kickoffState drives stage one. The first execution instantiates the
// kick-off tasks; afterwards the ordered chain runs as far as its date
// gates allow. The reminder waits for the reminder date and everything
// from the branch fork onward waits for the kick-off date.
type kickoffState struct {
	deps stageDeps
}

func (s *kickoffState) Stage() release.Stage { return release.StageKickoff }

func (s *kickoffState) Execute(ctx context.Context, ec *execContext) error {
	tasks, err := s.deps.store.Tasks.FindByReleaseAndStage(ctx, ec.release.ID(), release.StageKickoff)
	if err != nil {
		return fmt.Errorf("load kick-off tasks: %w", err)
	}
	if len(tasks) == 0 {
		created, err := newStageTasks(ec, kickoffTaskTypes(ec), nil, s.deps.clock.Now())
		if err != nil {
			return err
		}
		if err := s.deps.store.Tasks.BulkCreate(ctx, created); err != nil {
			return fmt.Errorf("create kick-off tasks: %w", err)
		}
		s.deps.logger.Info("kick-off tasks created",
			"releaseId", ec.release.ID(), "tasks", len(created))
		tasks = created
	}

	gate := func(t *pipeline.ReleaseTask) bool {
		now := s.deps.clock.Now()
		switch t.Type() {
		case pipeline.TaskPreKickOffReminder:
			return ec.release.KickOffReminderDue(now)
		case pipeline.TaskForkBranch:
			return ec.release.KickOffDue(now)
		}
		return true
	}
	return s.deps.exec.RunChain(ctx, ec, tasks, gate)
}

func (s *kickoffState) IsComplete(ctx context.Context, ec *execContext) (bool, error) {
	tasks, err := s.deps.store.Tasks.FindByReleaseAndStage(ctx, ec.release.ID(), release.StageKickoff)
	if err != nil {
		return false, err
	}
	return allCompleted(tasks), nil
}

func (s *kickoffState) TransitionToNext(ctx context.Context, ec *execContext) error {
	now := s.deps.clock.Now()
	if err := ec.job.CompleteStage(release.StageKickoff, now); err != nil {
		return err
	}
	if ec.job.AutoTransitionToStage2() {
		if err := ec.job.AdvanceToStage(release.StageRegression, now); err != nil {
			return err
		}
		s.deps.logger.Info("kick-off completed, regression started", "releaseId", ec.release.ID())
		return nil
	}
	if err := ec.job.Pause(pipeline.PauseAwaitingStageTrigger, now); err != nil {
		return err
	}
	s.deps.logger.Info("kick-off completed, awaiting regression trigger", "releaseId", ec.release.ID())
	return nil
}

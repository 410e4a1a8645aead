package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// regressionState drives stage two. Each regression cycle gets its own
// task set built from the slot's config; the latest cycle runs until
// every task completes, then the next due slot opens a fresh cycle. A
// release whose schedule carries no slots at all still gets one cycle,
// built from the pipeline's base config, so regression never silently
// skips.
type regressionState struct {
	deps stageDeps
}

func (s *regressionState) Stage() release.Stage { return release.StageRegression }

func (s *regressionState) Execute(ctx context.Context, ec *execContext) error {
	cycle, err := s.latestCycle(ctx, ec)
	if err != nil {
		return err
	}
	if cycle != nil && cycle.Status() != pipeline.CycleDone {
		return s.runCycle(ctx, ec, cycle)
	}

	// The latest cycle is finished or none exists yet. Slot consumption
	// stays in memory here: it is persisted by the orchestrator's single
	// job write at the end of the tick, where a concurrent schedule edit
	// surfaces as a version conflict.
	now := s.deps.clock.Now()
	slot, due := ec.job.ConsumeNextDueSlot(now)
	var cfg pipeline.CronConfig
	switch {
	case due:
		cfg = slot.Config
	case cycle == nil && !ec.job.HasPendingSlots():
		cfg = ec.job.Config()
	default:
		return nil
	}

	next, err := s.openCycle(ctx, ec, cfg)
	if err != nil {
		return err
	}
	return s.runCycle(ctx, ec, next)
}

func (s *regressionState) IsComplete(ctx context.Context, ec *execContext) (bool, error) {
	cycle, err := s.latestCycle(ctx, ec)
	if err != nil {
		return false, err
	}
	if cycle == nil || cycle.Status() != pipeline.CycleDone {
		return false, nil
	}
	return !ec.job.HasPendingSlots(), nil
}

func (s *regressionState) TransitionToNext(ctx context.Context, ec *execContext) error {
	now := s.deps.clock.Now()
	// A cycle opened by a late slot runs with the regression stage
	// already marked completed; only the first pass closes it.
	if ec.job.StageStatusFor(release.StageRegression) != pipeline.StageCompleted {
		if err := ec.job.CompleteStage(release.StageRegression, now); err != nil {
			return err
		}
	}
	if ec.job.AutoTransitionToStage3() {
		if ec.job.StageStatusFor(release.StagePostRegression) != pipeline.StagePending {
			return nil
		}
		if err := ec.job.AdvanceToStage(release.StagePostRegression, now); err != nil {
			return err
		}
		// A cycle opened while the pipeline awaited the stage trigger
		// leaves that pause reason behind; advancing clears it.
		ec.job.ClearPause(now)
		s.deps.logger.Info("regression completed, post-regression started", "releaseId", ec.release.ID())
		return nil
	}
	// The cron stays RUNNING so a regression slot scheduled while the
	// pipeline waits here can still open another cycle.
	ec.job.AwaitStageTrigger(now)
	s.deps.logger.Info("regression completed, awaiting post-regression trigger", "releaseId", ec.release.ID())
	return nil
}

// latestCycle returns the release's current cycle, or nil when the
// release has none yet.
func (s *regressionState) latestCycle(ctx context.Context, ec *execContext) (*pipeline.RegressionCycle, error) {
	cycle, err := s.deps.store.Cycles.FindLatest(ctx, ec.release.ID())
	if errors.Is(err, pipeline.ErrCycleNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest cycle: %w", err)
	}
	return cycle, nil
}

// openCycle creates the next regression cycle and its tasks in one
// transaction. Tag numbers count claimed tags, never active cycles, so
// a cycle that was created but never finished still burns its number.
func (s *regressionState) openCycle(ctx context.Context, ec *execContext, cfg pipeline.CronConfig) (*pipeline.RegressionCycle, error) {
	version, err := ec.mappings.ReleaseVersion()
	if err != nil {
		return nil, err
	}

	var created *pipeline.RegressionCycle
	err = s.deps.tx.WithinTx(ctx, func(ctx context.Context, st ports.Store) error {
		tagCount, err := st.Cycles.CountTagsByRelease(ctx, ec.release.ID())
		if err != nil {
			return err
		}
		now := s.deps.clock.Now()

		prev, err := st.Cycles.FindLatest(ctx, ec.release.ID())
		switch {
		case errors.Is(err, pipeline.ErrCycleNotFound):
		case err != nil:
			return err
		default:
			prev.Demote(now)
			if err := st.Cycles.Update(ctx, prev); err != nil {
				return err
			}
		}

		cycle, err := pipeline.NewRegressionCycle(newID(), ec.release.ID(), pipeline.CycleTag(version, tagCount), now)
		if err != nil {
			return err
		}
		if err := st.Cycles.Create(ctx, cycle); err != nil {
			return err
		}

		cycleID := cycle.ID()
		tasks, err := newStageTasks(ec, regressionTaskTypes(ec, cfg, tagCount == 0), &cycleID, now)
		if err != nil {
			return err
		}
		if err := st.Tasks.BulkCreate(ctx, tasks); err != nil {
			return err
		}

		if err := cycle.Start(now); err != nil {
			return err
		}
		if err := st.Cycles.Update(ctx, cycle); err != nil {
			return err
		}
		created = cycle
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open regression cycle: %w", err)
	}
	s.deps.logger.Info("regression cycle opened",
		"releaseId", ec.release.ID(), "cycleTag", created.CycleTag())
	return created, nil
}

func (s *regressionState) runCycle(ctx context.Context, ec *execContext, cycle *pipeline.RegressionCycle) error {
	ec.cycle = cycle
	tasks, err := s.deps.store.Tasks.FindByRegressionCycle(ctx, cycle.ID())
	if err != nil {
		return fmt.Errorf("load cycle tasks: %w", err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("regression cycle %s has no tasks", cycle.ID())
	}

	now := s.deps.clock.Now()
	if cycle.Status() == pipeline.CycleStarted {
		if err := cycle.MarkInProgress(now); err != nil {
			return err
		}
		if err := s.deps.store.Cycles.Update(ctx, cycle); err != nil {
			return err
		}
	}

	if err := s.deps.exec.RunChain(ctx, ec, tasks, nil); err != nil {
		return err
	}

	if allCompleted(tasks) {
		if err := cycle.MarkDone(s.deps.clock.Now()); err != nil {
			return err
		}
		if err := s.deps.store.Cycles.Update(ctx, cycle); err != nil {
			return err
		}
		s.deps.logger.Info("regression cycle completed",
			"releaseId", ec.release.ID(), "cycleTag", cycle.CycleTag())
	}
	return nil
}

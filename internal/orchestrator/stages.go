package orchestrator

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// stageState is the per-stage behavior contract. The orchestrator
// selects one state per tick; Execute advances the stage's work,
// IsComplete reports whether the stage finished, and TransitionToNext
// moves the pipeline forward, honoring the manual stage gates.
type stageState interface {
	Stage() release.Stage
	Execute(ctx context.Context, ec *execContext) error
	IsComplete(ctx context.Context, ec *execContext) (bool, error)
	TransitionToNext(ctx context.Context, ec *execContext) error
}

// stageDeps is the dependency bundle shared by the stage states.
type stageDeps struct {
	store  ports.Store
	tx     ports.Transactor
	exec   *TaskExecutor
	clock  ports.Clock
	logger *log.Logger
}

func allCompleted(tasks []*pipeline.ReleaseTask) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.Status() != pipeline.TaskCompleted {
			return false
		}
	}
	return true
}

func anyBuildPlatform(ms release.Mappings) bool {
	for _, p := range ms.Platforms() {
		if p.BuildsArtifacts() {
			return true
		}
	}
	return false
}

// newStageTasks builds pending task entities for the given types.
func newStageTasks(ec *execContext, types []pipeline.TaskType, regressionID *string, now time.Time) ([]*pipeline.ReleaseTask, error) {
	tasks := make([]*pipeline.ReleaseTask, 0, len(types))
	for _, tt := range types {
		t, err := pipeline.NewTask(newID(), ec.release.ID(), regressionID, tt, now)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// kickoffTaskTypes selects the kick-off tasks this release needs. Tasks
// that cannot apply are not instantiated at all: an absent optional task
// is trivially complete.
func kickoffTaskTypes(ec *execContext) []pipeline.TaskType {
	cfg := ec.job.Config()
	out := make([]pipeline.TaskType, 0, 5)
	for _, spec := range pipeline.TasksForStage(release.StageKickoff) {
		if !cfg.Enabled(spec.Flag) {
			continue
		}
		switch spec.Type {
		case pipeline.TaskPreKickOffReminder:
			if ec.release.KickOffReminderDate() == nil {
				continue
			}
		case pipeline.TaskCreateTestSuite:
			if ec.providers.testMgmt == nil {
				continue
			}
		case pipeline.TaskTriggerPreRegBuild:
			if !anyBuildPlatform(ec.mappings) {
				continue
			}
		}
		out = append(out, spec.Type)
	}
	return out
}

// regressionTaskTypes selects the tasks of one regression cycle under
// the slot's config.
func regressionTaskTypes(ec *execContext, cfg pipeline.CronConfig, firstCycle bool) []pipeline.TaskType {
	out := make([]pipeline.TaskType, 0, 7)
	for _, spec := range pipeline.TasksForStage(release.StageRegression) {
		if !cfg.Enabled(spec.Flag) {
			continue
		}
		if spec.SkipOnFirstCycle && firstCycle {
			continue
		}
		switch spec.Type {
		case pipeline.TaskResetTestSuite:
			if ec.providers.testMgmt == nil {
				continue
			}
		case pipeline.TaskTriggerRegBuilds:
			if !anyBuildPlatform(ec.mappings) {
				continue
			}
		}
		out = append(out, spec.Type)
	}
	return out
}

// postRegressionTaskTypes selects the post-regression tasks. TestFlight
// additionally needs an iOS mapping; without one the task has nothing
// to build and is not created.
func postRegressionTaskTypes(ec *execContext) []pipeline.TaskType {
	cfg := ec.job.Config()
	out := make([]pipeline.TaskType, 0, 6)
	for _, spec := range pipeline.TasksForStage(release.StagePostRegression) {
		if !cfg.Enabled(spec.Flag) {
			continue
		}
		if spec.RequiresPlatform != "" && !ec.mappings.HasPlatform(spec.RequiresPlatform) {
			continue
		}
		out = append(out, spec.Type)
	}
	return out
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/provider"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// OrchestratorParams carries the dependencies for NewOrchestrator.
type OrchestratorParams struct {
	Store    ports.Store
	Tx       ports.Transactor
	Registry *provider.Registry
	Executor *TaskExecutor
	Clock    ports.Clock
	Logger   *log.Logger
}

// Orchestrator advances one release pipeline per invocation. It loads
// the release and its cron job, selects the stage that owns this tick,
// runs as much of that stage's task chain as wait states allow, applies
// any stage transition and persists the cron job exactly once at the
// end. Concurrent schedule edits surface at that single write as a
// version conflict, which aborts the tick; the next tick reloads and
// honors the edit.
type Orchestrator struct {
	store    ports.Store
	registry *provider.Registry
	clock    ports.Clock
	logger   *log.Logger
	states   map[release.Stage]stageState
}

// NewOrchestrator wires the three stage states over the shared deps.
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	if p.Clock == nil {
		p.Clock = ports.RealClock{}
	}
	if p.Logger == nil {
		p.Logger = log.Default()
	}
	deps := stageDeps{
		store:  p.Store,
		tx:     p.Tx,
		exec:   p.Executor,
		clock:  p.Clock,
		logger: p.Logger,
	}
	return &Orchestrator{
		store:    p.Store,
		registry: p.Registry,
		clock:    p.Clock,
		logger:   p.Logger,
		states: map[release.Stage]stageState{
			release.StageKickoff:        &kickoffState{deps: deps},
			release.StageRegression:     &regressionState{deps: deps},
			release.StagePostRegression: &postRegressionState{deps: deps},
		},
	}
}

// ExecuteRelease runs one tick for one release. Callers are expected to
// hold the release's advisory lease.
func (o *Orchestrator) ExecuteRelease(ctx context.Context, releaseID release.ReleaseID) error {
	rel, err := o.store.Releases.FindByID(ctx, releaseID)
	if err != nil {
		return fmt.Errorf("load release: %w", err)
	}
	job, err := o.store.CronJobs.FindByReleaseID(ctx, releaseID)
	if err != nil {
		return fmt.Errorf("load cron job: %w", err)
	}
	now := o.clock.Now()
	before := auditSnapshot(job)

	// An archived release freezes its pipeline on the next tick, no
	// matter where it stood.
	if rel.Status() == release.StatusArchived {
		if job.CronStatus() == pipeline.CronCompleted {
			return nil
		}
		job.Freeze(now)
		if err := o.store.CronJobs.Update(ctx, job); err != nil {
			return fmt.Errorf("freeze archived pipeline: %w", err)
		}
		o.recordStatusChanges(ctx, releaseID, before, auditSnapshot(job))
		o.logger.Info("archived release pipeline frozen", "releaseId", releaseID)
		return nil
	}

	if !job.CronStatus().IsSchedulable() {
		return nil
	}
	switch job.PauseReason() {
	case pipeline.PauseUserRequested, pipeline.PauseTaskFailure:
		// AWAITING_STAGE_TRIGGER deliberately passes: a due regression
		// slot may still open a cycle while the pipeline waits for the
		// next stage trigger.
		o.logger.Debug("release pipeline paused, skipping",
			"releaseId", releaseID, "pauseType", job.PauseReason())
		return nil
	}
	if job.Corrupted() {
		return fmt.Errorf("%w: release %s", pipeline.ErrCorruptPipeline, releaseID)
	}

	ec, err := o.buildContext(ctx, rel, job)
	if err != nil {
		return err
	}

	state, ok, err := o.selectState(ctx, ec, now)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := state.Execute(ctx, ec); err != nil {
		if errors.Is(err, ErrTaskFailed) {
			job.MarkTaskFailure(o.clock.Now())
			if uerr := o.store.CronJobs.Update(ctx, job); uerr != nil {
				return fmt.Errorf("record task failure: %w", uerr)
			}
			o.recordStatusChanges(ctx, releaseID, before, auditSnapshot(job))
			o.logger.Warn("task failed, pipeline paused for retry",
				"releaseId", releaseID, "stage", state.Stage(), "error", err)
			return nil
		}
		return fmt.Errorf("execute stage %s: %w", state.Stage(), err)
	}

	done, err := state.IsComplete(ctx, ec)
	if err != nil {
		return err
	}
	if done {
		if err := state.TransitionToNext(ctx, ec); err != nil {
			return fmt.Errorf("transition from stage %s: %w", state.Stage(), err)
		}
	}

	if err := o.store.CronJobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist cron job: %w", err)
	}
	o.recordStatusChanges(ctx, releaseID, before, auditSnapshot(job))
	return nil
}

// Fields every tick diffs into the audit trail.
var auditedFields = []string{"stage1Status", "stage2Status", "stage3Status", "cronStatus", "pauseType"}

func auditSnapshot(job *pipeline.CronJob) map[string]string {
	return map[string]string{
		"stage1Status": string(job.StageStatusFor(release.StageKickoff)),
		"stage2Status": string(job.StageStatusFor(release.StageRegression)),
		"stage3Status": string(job.StageStatusFor(release.StagePostRegression)),
		"cronStatus":   string(job.CronStatus()),
		"pauseType":    string(job.PauseReason()),
	}
}

// recordStatusChanges appends one STATUS_CHANGE audit entry covering the
// fields this tick moved. The pipeline write has already committed, so a
// failed append is logged instead of failing the tick.
func (o *Orchestrator) recordStatusChanges(ctx context.Context, releaseID release.ReleaseID, before, after map[string]string) {
	var items []release.StateHistoryItem
	for _, field := range auditedFields {
		if before[field] != after[field] {
			items = append(items, release.Change(field, before[field], after[field]))
		}
	}
	if len(items) == 0 {
		return
	}
	entry, err := release.NewStateHistory(newID(), releaseID, release.HistoryActionStatusChange, "system", o.clock.Now(), items...)
	if err == nil {
		err = o.store.History.Append(ctx, entry)
	}
	if err != nil {
		o.logger.Warn("failed to record status change",
			"releaseId", releaseID, "error", err)
	}
}

func (o *Orchestrator) buildContext(ctx context.Context, rel *release.Release, job *pipeline.CronJob) (*execContext, error) {
	cfg, err := o.store.Configs.FindByID(ctx, rel.ConfigID())
	if err != nil {
		return nil, fmt.Errorf("load release config: %w", err)
	}
	mappings, err := o.store.Mappings.FindByRelease(ctx, rel.ID())
	if err != nil {
		return nil, fmt.Errorf("load platform mappings: %w", err)
	}
	providers, err := resolveProviders(o.registry, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve providers: %w", err)
	}
	return &execContext{
		release:   rel,
		job:       job,
		config:    cfg,
		mappings:  mappings,
		providers: providers,
	}, nil
}

// selectState picks the stage that owns this tick. A stage in progress
// always wins. With no stage in progress, a completed regression stage
// still owns the tick while a due slot or an unfinished cycle remains,
// so late-scheduled regressions run even after the stage was closed.
func (o *Orchestrator) selectState(ctx context.Context, ec *execContext, now time.Time) (stageState, bool, error) {
	if stage, ok := ec.job.ActiveStage(); ok {
		return o.states[stage], true, nil
	}

	if ec.job.StageStatusFor(release.StageRegression) == pipeline.StageCompleted &&
		ec.job.StageStatusFor(release.StagePostRegression) == pipeline.StagePending {
		if _, due := ec.job.NextDueSlot(now); due {
			return o.states[release.StageRegression], true, nil
		}
		cycle, err := o.store.Cycles.FindLatest(ctx, ec.release.ID())
		switch {
		case errors.Is(err, pipeline.ErrCycleNotFound):
		case err != nil:
			return nil, false, fmt.Errorf("load latest cycle: %w", err)
		default:
			if cycle.Status() != pipeline.CycleDone {
				return o.states[release.StageRegression], true, nil
			}
		}
	}
	return nil, false, nil
}

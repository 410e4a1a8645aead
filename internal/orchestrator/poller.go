package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/provider"
)

// PollerParams carries the dependencies for NewPollingDispatcher.
type PollerParams struct {
	Store    ports.Store
	Registry *provider.Registry
	Guard    *Guard

	// PendingInterval is the cadence of the dispatch discovery pass.
	PendingInterval time.Duration

	// RunningInterval is the cadence of the run status pass.
	RunningInterval time.Duration

	Clock  ports.Clock
	Logger *log.Logger
}

// PollingDispatcher observes triggered automation runs. The scheduler
// never calls the CI provider for run status itself: this dispatcher
// records what it sees onto the watch task's result document, and the
// next orchestrator tick completes the task from those observations.
//
// Two passes run on their own cadences. The pending pass resolves
// dispatch markers into concrete run IDs for providers whose dispatch
// API returns nothing; the running pass refreshes the status of runs
// known by ID.
type PollingDispatcher struct {
	store           ports.Store
	registry        *provider.Registry
	guard           *Guard
	pendingInterval time.Duration
	runningInterval time.Duration
	clock           ports.Clock
	logger          *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPollingDispatcher creates a dispatcher. Zero intervals get the
// production defaults.
func NewPollingDispatcher(p PollerParams) *PollingDispatcher {
	if p.PendingInterval <= 0 {
		p.PendingInterval = 30 * time.Second
	}
	if p.RunningInterval <= 0 {
		p.RunningInterval = 45 * time.Second
	}
	if p.Clock == nil {
		p.Clock = ports.RealClock{}
	}
	if p.Logger == nil {
		p.Logger = log.Default()
	}
	return &PollingDispatcher{
		store:           p.Store,
		registry:        p.Registry,
		guard:           p.Guard,
		pendingInterval: p.PendingInterval,
		runningInterval: p.RunningInterval,
		clock:           p.Clock,
		logger:          p.Logger,
	}
}

// Start launches both poll loops.
func (d *PollingDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return fmt.Errorf("polling dispatcher already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(2)
	go d.loop(runCtx, d.pendingInterval, d.PollPending)
	go d.loop(runCtx, d.runningInterval, d.PollRunning)
	return nil
}

// Stop ends both loops and waits for in-flight passes.
func (d *PollingDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *PollingDispatcher) loop(ctx context.Context, interval time.Duration, pass func(context.Context)) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass(ctx)
		}
	}
}

// watchTarget is one automation watch task with everything needed to
// poll its provider.
type watchTarget struct {
	task         *pipeline.ReleaseTask
	poller       provider.WorkflowPoller
	repo         provider.RepoRef
	providerType string
}

// watchTargets collects the IN_PROGRESS automation watch tasks of every
// RUNNING pipeline whose CI provider supports polling.
func (d *PollingDispatcher) watchTargets(ctx context.Context) ([]watchTarget, error) {
	jobs, err := d.store.CronJobs.FindRunningCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list running pipelines: %w", err)
	}
	var out []watchTarget
	for _, job := range jobs {
		rel, err := d.store.Releases.FindByID(ctx, job.ReleaseID())
		if err != nil {
			d.logger.Warn("poll: load release", "releaseId", job.ReleaseID(), "error", err)
			continue
		}
		cfg, err := d.store.Configs.FindByID(ctx, rel.ConfigID())
		if err != nil {
			d.logger.Warn("poll: load release config", "releaseId", rel.ID(), "error", err)
			continue
		}
		poller, err := d.registry.WorkflowPoller(cfg.CICDProvider)
		if err != nil {
			// Provider cannot be observed; its runs are recorded by
			// other means.
			continue
		}
		tasks, err := d.store.Tasks.FindByTaskType(ctx, rel.ID(), pipeline.TaskAutomationRuns)
		if err != nil {
			d.logger.Warn("poll: load watch tasks", "releaseId", rel.ID(), "error", err)
			continue
		}
		repo := provider.RepoRef{Owner: cfg.Settings.RepoOwner, Name: cfg.Settings.RepoName}
		for _, t := range tasks {
			if t.Status() != pipeline.TaskInProgress {
				continue
			}
			out = append(out, watchTarget{task: t, poller: poller, repo: repo, providerType: cfg.CICDProvider})
		}
	}
	return out, nil
}

// PollPending resolves dispatch markers into run IDs. Dispatch-style CI
// APIs return nothing from a trigger, so the run is found afterwards by
// workflow and ref.
func (d *PollingDispatcher) PollPending(ctx context.Context) {
	targets, err := d.watchTargets(ctx)
	if err != nil {
		d.logger.Error("pending poll pass", "error", err)
		return
	}
	for _, t := range targets {
		data := t.task.ExternalData()
		workflowRef := dataString(data, "workflowRef")
		ref := dataString(data, "ref")
		if workflowRef == "" || dataString(data, "runId") != "" {
			continue
		}
		run, err := guarded(ctx, d.guard, guardKey("workflowPoll", t.providerType), func(ctx context.Context) (provider.WorkflowRun, error) {
			return t.poller.FindDispatchedRun(ctx, t.repo, workflowRef, ref)
		})
		if err != nil || run.ID == "" {
			// The run may simply not exist yet.
			d.logger.Debug("dispatched run not found yet",
				"taskId", t.task.ID(), "workflow", workflowRef, "ref", ref, "error", err)
			continue
		}
		obs := pipeline.ExternalData{
			"runId":  run.ID,
			"status": string(provider.RunQueued),
		}
		if run.URL != "" {
			obs["url"] = run.URL
		}
		d.record(ctx, t.task, obs)
		d.logger.Info("dispatched run resolved",
			"taskId", t.task.ID(), "runId", run.ID, "workflow", workflowRef)
	}
}

// PollRunning refreshes the observed state of runs known by ID.
func (d *PollingDispatcher) PollRunning(ctx context.Context) {
	targets, err := d.watchTargets(ctx)
	if err != nil {
		d.logger.Error("running poll pass", "error", err)
		return
	}
	for _, t := range targets {
		data := t.task.ExternalData()
		runID := dataString(data, "runId")
		if runID == "" || dataString(data, "status") == string(provider.RunCompleted) {
			continue
		}
		state, err := guarded(ctx, d.guard, guardKey("workflowPoll", t.providerType), func(ctx context.Context) (provider.WorkflowRunState, error) {
			return t.poller.WorkflowRunStatus(ctx, t.repo, runID)
		})
		if err != nil {
			d.logger.Warn("poll run status",
				"taskId", t.task.ID(), "runId", runID, "error", err)
			continue
		}
		obs := pipeline.ExternalData{
			"status":    string(state.Status),
			"checkedAt": timestamp(d.clock.Now()),
		}
		if state.Conclusion != "" {
			obs["conclusion"] = state.Conclusion
		}
		if state.URL != "" {
			obs["url"] = state.URL
		}
		d.record(ctx, t.task, obs)
		if state.Status == provider.RunCompleted {
			d.logger.Info("automation run finished",
				"taskId", t.task.ID(), "runId", runID, "conclusion", state.Conclusion)
		}
	}
}

// record merges observations into the watch task. Losing the race with
// an executor that just completed the task is fine; the observations
// were only needed while the task still ran.
func (d *PollingDispatcher) record(ctx context.Context, task *pipeline.ReleaseTask, obs pipeline.ExternalData) {
	if err := task.MergeData(obs, d.clock.Now()); err != nil {
		d.logger.Debug("watch task no longer running", "taskId", task.ID(), "error", err)
		return
	}
	if err := d.store.Tasks.Update(ctx, task); err != nil {
		d.logger.Warn("persist run observation", "taskId", task.ID(), "error", err)
	}
}

func dataString(d pipeline.ExternalData, key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

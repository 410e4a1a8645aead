// Package orchestrator advances release pipelines. The scheduler scans
// for runnable releases on a fixed tick, takes the per-release advisory
// lease, and hands each release to the orchestrator, which selects the
// active stage and executes its task chain through the providers named
// by the release config. Execution is at-least-once: every task handler
// tolerates replays.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/provider"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// ErrTaskFailed marks an error that already failed its task. The
// orchestrator reacts by recording a task-failure pause instead of
// aborting the tick.
var ErrTaskFailed = errors.New("task execution failed")

// NotesEnricher rewrites raw commit notes into publishable release
// notes. A nil enricher leaves the raw notes untouched.
type NotesEnricher interface {
	Enrich(ctx context.Context, version, raw string) (string, error)
}

// providerSet is the resolved provider bundle one release executes
// against. testMgmt and poller are nil when the config names none.
type providerSet struct {
	scm       provider.SCM
	cicd      provider.CICDWorkflow
	pm        provider.PMTicket
	testMgmt  provider.TestManagementRun
	messaging provider.Messaging
	poller    provider.WorkflowPoller
}

// resolveProviders binds the release config's provider selections
// against the registry. A poller is optional: providers that cannot be
// observed simply leave watch tasks to their own polling.
func resolveProviders(reg *provider.Registry, cfg *release.ReleaseConfig) (providerSet, error) {
	var ps providerSet
	var err error
	if ps.scm, err = reg.SCM(cfg.SCMProvider); err != nil {
		return ps, err
	}
	if ps.cicd, err = reg.CICD(cfg.CICDProvider); err != nil {
		return ps, err
	}
	if ps.pm, err = reg.PM(cfg.PMProvider); err != nil {
		return ps, err
	}
	if ps.messaging, err = reg.Messaging(cfg.MessagingProvider); err != nil {
		return ps, err
	}
	if cfg.TestManagementProvider != "" {
		if ps.testMgmt, err = reg.TestManagement(cfg.TestManagementProvider); err != nil {
			return ps, err
		}
	}
	if p, perr := reg.WorkflowPoller(cfg.CICDProvider); perr == nil {
		ps.poller = p
	}
	return ps, nil
}

// execContext bundles everything one release's tick works against. The
// cycle is set only while regression tasks execute.
type execContext struct {
	release   *release.Release
	job       *pipeline.CronJob
	config    *release.ReleaseConfig
	mappings  release.Mappings
	cycle     *pipeline.RegressionCycle
	providers providerSet
}

func (ec *execContext) repo() provider.RepoRef {
	return provider.RepoRef{
		Owner: ec.config.Settings.RepoOwner,
		Name:  ec.config.Settings.RepoName,
	}
}

// releaseBranch returns the forked release branch, falling back to the
// base branch while the fork has not happened yet.
func (ec *execContext) releaseBranch() string {
	if b := ec.release.Branch(); b != "" {
		return b
	}
	return ec.release.BaseBranch()
}

func (ec *execContext) channel(fallback string) string {
	return ec.config.Channel(fallback)
}

// taskHandler executes one task type. Handlers mutate the task in
// memory; the executor persists it afterwards. Returning an error fails
// the task.
type taskHandler func(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error

// ExecutorParams carries the dependencies of a TaskExecutor.
type ExecutorParams struct {
	Store          ports.Store
	Guard          *Guard
	Clock          ports.Clock
	Logger         *log.Logger
	Enricher       NotesEnricher
	Observer       Observer
	DefaultChannel string
}

// TaskExecutor dispatches pipeline tasks to their handlers and persists
// every state change, so a crash at any point replays cleanly.
type TaskExecutor struct {
	store          ports.Store
	guard          *Guard
	clock          ports.Clock
	logger         *log.Logger
	enricher       NotesEnricher
	observer       Observer
	defaultChannel string
	dispatch       map[pipeline.TaskType]taskHandler
}

// NewTaskExecutor creates a task executor with its dispatch table.
func NewTaskExecutor(p ExecutorParams) *TaskExecutor {
	if p.Clock == nil {
		p.Clock = ports.RealClock{}
	}
	if p.Logger == nil {
		p.Logger = log.Default()
	}
	if p.DefaultChannel == "" {
		p.DefaultChannel = "releases"
	}
	if p.Observer == nil {
		p.Observer = NopObserver{}
	}
	e := &TaskExecutor{
		store:          p.Store,
		guard:          p.Guard,
		clock:          p.Clock,
		logger:         p.Logger,
		enricher:       p.Enricher,
		observer:       p.Observer,
		defaultChannel: p.DefaultChannel,
	}
	e.dispatch = map[pipeline.TaskType]taskHandler{
		// Kick-off
		pipeline.TaskPreKickOffReminder: e.handlePreKickOffReminder,
		pipeline.TaskForkBranch:         e.handleForkBranch,
		pipeline.TaskCreatePMTicket:     e.handleCreatePMTicket,
		pipeline.TaskCreateTestSuite:    e.handleCreateTestSuite,
		pipeline.TaskTriggerPreRegBuild: e.handleTriggerPreRegBuilds,

		// Regression
		pipeline.TaskResetTestSuite:      e.handleResetTestSuite,
		pipeline.TaskCreateRCTag:         e.handleCreateRCTag,
		pipeline.TaskCreateReleaseNotes:  e.handleCreateReleaseNotes,
		pipeline.TaskTriggerRegBuilds:    e.handleTriggerRegBuilds,
		pipeline.TaskTriggerAutomation:   e.handleTriggerAutomation,
		pipeline.TaskAutomationRuns:      e.handleAutomationRuns,
		pipeline.TaskSendRegBuildMessage: e.handleSendRegBuildMessage,

		// Post-regression
		pipeline.TaskCherryPicksReminder:  e.handleCherryPicksReminder,
		pipeline.TaskCreateReleaseTag:     e.handleCreateReleaseTag,
		pipeline.TaskCreateFinalNotes:     e.handleCreateFinalNotes,
		pipeline.TaskTriggerTestFlight:    e.handleTriggerTestFlight,
		pipeline.TaskSendPostRegMessage:   e.handleSendPostRegMessage,
		pipeline.TaskCheckReleaseApproval: e.handleCheckReleaseApproval,
	}
	return e
}

// Execute runs one task end to end: begin, dispatch, persist. A handler
// error fails the task and surfaces as ErrTaskFailed; infrastructure
// errors surface as themselves and leave the task replayable.
func (e *TaskExecutor) Execute(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	now := e.clock.Now()
	if err := task.Begin(now); err != nil {
		return err
	}
	if err := e.store.Tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("persist task start: %w", err)
	}

	handler, ok := e.dispatch[task.Type()]
	if !ok {
		return fmt.Errorf("no handler registered for task type %s", task.Type())
	}

	logger := e.logger.With("release", task.ReleaseID(), "task", task.Type())
	if err := handler(ctx, ec, task); err != nil {
		e.observer.TaskExecuted(string(task.Type()), false)
		logger.Error("task failed", "err", err)
		if ferr := task.Fail(err.Error(), e.clock.Now()); ferr != nil {
			return fmt.Errorf("mark task failed: %w (cause: %v)", ferr, err)
		}
		if uerr := e.store.Tasks.Update(ctx, task); uerr != nil {
			return fmt.Errorf("persist task failure: %w (cause: %v)", uerr, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrTaskFailed, task.Type(), err)
	}

	if err := e.store.Tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("persist task result: %w", err)
	}
	if task.Status() == pipeline.TaskCompleted {
		e.observer.TaskExecuted(string(task.Type()), true)
		logger.Debug("task completed")
	}
	return nil
}

// RunChain executes a stage's tasks in order until one does not finish:
// an unmet gate, a task left waiting on an external system, or a
// failure. Completed tasks are skipped, which is what makes replay after
// a crash safe.
func (e *TaskExecutor) RunChain(ctx context.Context, ec *execContext, tasks []*pipeline.ReleaseTask, gate func(*pipeline.ReleaseTask) bool) error {
	for _, task := range tasks {
		switch task.Status() {
		case pipeline.TaskCompleted:
			continue
		case pipeline.TaskFailed:
			// A failed task normally pauses the pipeline before the
			// chain runs again; hitting one here re-raises the pause.
			return fmt.Errorf("%w: %s is FAILED", ErrTaskFailed, task.Type())
		}
		if gate != nil && !gate(task) {
			return nil
		}
		if err := e.Execute(ctx, ec, task); err != nil {
			return err
		}
		if task.Status() != pipeline.TaskCompleted {
			return nil
		}
	}
	return nil
}

// guardKey builds the rate-limit and breaker key for a provider call.
func guardKey(capability, providerType string) string {
	return capability + ":" + providerType
}

// deliver sends a notification and reports whether it arrived. Message
// delivery is never load-bearing: failures are logged and the task that
// asked for the message completes regardless.
func (e *TaskExecutor) deliver(ctx context.Context, ec *execContext, msg provider.Message) bool {
	_, err := guarded(ctx, e.guard, guardKey("messaging", ec.config.MessagingProvider), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, ec.providers.messaging.Send(ctx, msg)
	})
	if err != nil {
		e.observer.NotificationDelivered(false)
		e.logger.Warn("notification not delivered", "release", ec.release.ID(), "channel", msg.Channel, "err", err)
		return false
	}
	e.observer.NotificationDelivered(true)
	return true
}

// enrichNotes runs the optional notes enricher, keeping the raw notes
// when enrichment is unavailable or fails.
func (e *TaskExecutor) enrichNotes(ctx context.Context, version, raw string) string {
	if e.enricher == nil || raw == "" {
		return raw
	}
	out, err := e.enricher.Enrich(ctx, version, raw)
	if err != nil {
		e.logger.Warn("notes enrichment failed, keeping raw notes", "err", err)
		return raw
	}
	return out
}

// newestWithRef returns the newest task of the given type that recorded
// an external reference.
func (e *TaskExecutor) newestWithRef(ctx context.Context, releaseID release.ReleaseID, taskType pipeline.TaskType) (*pipeline.ReleaseTask, bool, error) {
	tasks, err := e.store.Tasks.FindByTaskType(ctx, releaseID, taskType)
	if err != nil {
		return nil, false, err
	}
	for _, t := range tasks {
		if t.HasExternalRef() {
			return t, true, nil
		}
	}
	return nil, false, nil
}

// commitTitles renders a comparison into one line per commit.
func commitTitles(res provider.CompareResult) string {
	titles := make([]string, 0, len(res.Commits))
	for _, c := range res.Commits {
		titles = append(titles, "- "+c.Title)
	}
	return strings.Join(titles, "\n")
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func newID() string { return uuid.NewString() }

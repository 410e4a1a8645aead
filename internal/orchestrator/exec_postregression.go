package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/provider"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// handleCherryPicksReminder checks whether the release branch moved past
// the last regression candidate. Divergence means commits shipped that
// no regression cycle covered, which is worth a nudge before tagging.
func (e *TaskExecutor) handleCherryPicksReminder(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	base, err := e.latestCycleTag(ctx, ec.release.ID())
	if err != nil {
		return err
	}
	if base == "" {
		base = ec.release.BaseBranch()
	}
	res, err := guarded(ctx, e.guard, guardKey("scm", ec.config.SCMProvider), func(ctx context.Context) (provider.CompareResult, error) {
		return ec.providers.scm.CompareRefs(ctx, provider.CompareRequest{
			Repo: ec.repo(),
			Base: base,
			Head: ec.releaseBranch(),
		})
	})
	if err != nil {
		return fmt.Errorf("compare %s..%s: %w", base, ec.releaseBranch(), err)
	}
	divergent := len(res.Commits) > 0
	if divergent {
		channel := ec.channel(e.defaultChannel)
		e.deliver(ctx, ec, provider.Message{
			Channel: channel,
			Title:   "Cherry-picks pending before release",
			Body: fmt.Sprintf("%s has %d commit(s) that were not part of regression candidate %s.",
				ec.releaseBranch(), len(res.Commits), base),
			Fields: map[string]string{"release": string(ec.release.ID())},
		})
	}
	return task.CompleteWithData(pipeline.ExternalData{
		"divergent":   divergent,
		"baseRef":     base,
		"commitCount": len(res.Commits),
	}, e.clock.Now())
}

func (e *TaskExecutor) handleCreateReleaseTag(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	tag, err := ec.mappings.FinalTag()
	if err != nil {
		return err
	}
	res, err := guarded(ctx, e.guard, guardKey("scm", ec.config.SCMProvider), func(ctx context.Context) (provider.TagResult, error) {
		return ec.providers.scm.CreateTag(ctx, provider.CreateTagRequest{
			Repo:      ec.repo(),
			TagName:   tag,
			TargetRef: ec.releaseBranch(),
			Message:   fmt.Sprintf("Release %s", tag),
		})
	})
	if err != nil {
		return fmt.Errorf("create release tag %s: %w", tag, err)
	}
	return task.CompleteWithData(pipeline.ExternalData{
		"tag": tag,
		"sha": res.SHA,
	}, e.clock.Now())
}

func (e *TaskExecutor) handleCreateFinalNotes(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	base, err := e.latestCycleTag(ctx, ec.release.ID())
	if err != nil {
		return err
	}
	if base == "" {
		base = ec.release.BaseBranch()
	}
	version, err := ec.mappings.ReleaseVersion()
	if err != nil {
		return err
	}
	tag, err := ec.mappings.FinalTag()
	if err != nil {
		return err
	}
	res, err := guarded(ctx, e.guard, guardKey("scm", ec.config.SCMProvider), func(ctx context.Context) (provider.CompareResult, error) {
		return ec.providers.scm.CompareRefs(ctx, provider.CompareRequest{
			Repo: ec.repo(),
			Base: base,
			Head: ec.releaseBranch(),
		})
	})
	if err != nil {
		return fmt.Errorf("compare %s..%s: %w", base, ec.releaseBranch(), err)
	}
	notes := e.enrichNotes(ctx, version, commitTitles(res))
	return task.CompleteWithData(pipeline.ExternalData{
		"tag":         tag,
		"baseRef":     base,
		"commitCount": len(res.Commits),
		"notes":       notes,
	}, e.clock.Now())
}

func (e *TaskExecutor) handleTriggerTestFlight(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if !ec.mappings.HasPlatform(release.PlatformIOS) {
		return fmt.Errorf("release has no iOS platform mapping")
	}
	if task.HasExternalRef() {
		return task.CompleteWithRef(*task.ExternalID(), e.clock.Now())
	}
	workflow := ec.config.Settings.TestFlightWorkflow
	if workflow == "" {
		return fmt.Errorf("release config %s names no TestFlight workflow", ec.config.ID)
	}
	version, _ := ec.mappings.VersionFor(release.PlatformIOS)
	run, err := guarded(ctx, e.guard, guardKey("cicd", ec.config.CICDProvider), func(ctx context.Context) (provider.WorkflowRun, error) {
		return ec.providers.cicd.TriggerWorkflow(ctx, provider.TriggerWorkflowRequest{
			Repo:        ec.repo(),
			WorkflowRef: workflow,
			Ref:         ec.releaseBranch(),
			Inputs: map[string]string{
				"platform": "ios",
				"version":  version,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("trigger TestFlight build: %w", err)
	}
	build := pipeline.Build{
		ID:          newID(),
		ReleaseID:   ec.release.ID(),
		Platform:    release.PlatformIOS,
		Kind:        pipeline.BuildTestFlight,
		BuildNumber: buildNumber(run),
		WorkflowRef: workflow,
		TriggeredAt: e.clock.Now(),
	}
	if err := e.store.Builds.Create(ctx, build); err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return task.CompleteWithRef(build.BuildNumber, e.clock.Now())
}

func (e *TaskExecutor) handleSendPostRegMessage(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	tag, err := ec.mappings.FinalTag()
	if err != nil {
		return err
	}
	channel := ec.channel(e.defaultChannel)
	delivered := e.deliver(ctx, ec, provider.Message{
		Channel: channel,
		Title:   fmt.Sprintf("Release %s tagged", tag),
		Body: fmt.Sprintf("Regression is complete and %s has been tagged. Target release date is %s.",
			tag, ec.release.TargetReleaseDate().Format("2006-01-02")),
		Fields: map[string]string{
			"release": string(ec.release.ID()),
			"branch":  ec.releaseBranch(),
		},
	})
	return task.CompleteWithData(pipeline.ExternalData{
		"channel":   channel,
		"delivered": delivered,
		"tag":       tag,
		"sentAt":    timestamp(e.clock.Now()),
	}, e.clock.Now())
}

// handleCheckReleaseApproval polls the platform release tickets until
// every one of them reaches the configured completed status. Observed
// statuses are recorded on each check so operators can see what the
// approval is waiting on.
func (e *TaskExecutor) handleCheckReleaseApproval(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	ticketTask, ok, err := e.newestWithRef(ctx, ec.release.ID(), pipeline.TaskCreatePMTicket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no project management tickets to check")
	}
	keys := strings.Split(*ticketTask.ExternalID(), ",")
	want := ec.config.CompletedStatus()

	statuses := make(map[string]string, len(keys))
	approved := true
	for _, key := range keys {
		status, err := guarded(ctx, e.guard, guardKey("pm", ec.config.PMProvider), func(ctx context.Context) (string, error) {
			return ec.providers.pm.TicketStatus(ctx, key)
		})
		if err != nil {
			return fmt.Errorf("ticket %s status: %w", key, err)
		}
		statuses[key] = status
		if !strings.EqualFold(status, want) {
			approved = false
		}
	}

	obs := pipeline.ExternalData{
		"ticketStatuses":  statuses,
		"completedStatus": want,
		"checkedAt":       timestamp(e.clock.Now()),
	}
	if !approved {
		return task.MergeData(obs, e.clock.Now())
	}

	// Every platform ticket is done: the release is submitted for store
	// review. A replay that finds it already submitted skips the step.
	if ec.release.Status() == release.StatusInProgress {
		if err := ec.release.MarkSubmitted("", e.clock.Now()); err != nil {
			return err
		}
		if err := e.store.Releases.Update(ctx, ec.release); err != nil {
			return fmt.Errorf("persist release submission: %w", err)
		}
	}
	obs["approved"] = true
	return task.CompleteWithData(obs, e.clock.Now())
}

// latestCycleTag returns the latest regression cycle's tag, or the
// empty string when the release never ran a cycle.
func (e *TaskExecutor) latestCycleTag(ctx context.Context, releaseID release.ReleaseID) (string, error) {
	latest, err := e.store.Cycles.FindLatest(ctx, releaseID)
	if errors.Is(err, pipeline.ErrCycleNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return latest.CycleTag(), nil
}

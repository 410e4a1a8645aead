package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/provider"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// dispatchRefPrefix marks automation trigger references for providers
// whose dispatch API cannot return the run identifier synchronously.
// The pending poll job resolves them into concrete run IDs.
const dispatchRefPrefix = "dispatch:"

func (e *TaskExecutor) handleResetTestSuite(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if ec.providers.testMgmt == nil {
		return fmt.Errorf("release config %s names no test management provider", ec.config.ID)
	}
	suiteTask, ok, err := e.newestWithRef(ctx, ec.release.ID(), pipeline.TaskCreateTestSuite)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no test suite run to reset")
	}
	runID := *suiteTask.ExternalID()
	_, err = guarded(ctx, e.guard, guardKey("testmgmt", ec.config.TestManagementProvider), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, ec.providers.testMgmt.ResetSuiteRun(ctx, runID)
	})
	if err != nil {
		return fmt.Errorf("reset test suite run %s: %w", runID, err)
	}
	return task.CompleteWithData(pipeline.ExternalData{
		"suiteRunId": runID,
		"resetAt":    timestamp(e.clock.Now()),
	}, e.clock.Now())
}

func (e *TaskExecutor) handleCreateRCTag(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if ec.cycle == nil {
		return fmt.Errorf("rc tag task has no regression cycle")
	}
	tag := ec.cycle.CycleTag()
	res, err := guarded(ctx, e.guard, guardKey("scm", ec.config.SCMProvider), func(ctx context.Context) (provider.TagResult, error) {
		return ec.providers.scm.CreateTag(ctx, provider.CreateTagRequest{
			Repo:      ec.repo(),
			TagName:   tag,
			TargetRef: ec.releaseBranch(),
			Message:   fmt.Sprintf("Regression candidate %s", tag),
		})
	})
	if err != nil {
		return fmt.Errorf("create rc tag %s: %w", tag, err)
	}
	return task.CompleteWithData(pipeline.ExternalData{
		"tag": tag,
		"sha": res.SHA,
	}, e.clock.Now())
}

func (e *TaskExecutor) handleCreateReleaseNotes(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if ec.cycle == nil {
		return fmt.Errorf("release notes task has no regression cycle")
	}
	base, err := e.previousCycleTag(ctx, ec)
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
		"tag":         ec.cycle.CycleTag(),
		"baseRef":     base,
		"commitCount": len(res.Commits),
		"notes":       notes,
	}, e.clock.Now())
}

func (e *TaskExecutor) handleTriggerRegBuilds(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if ec.cycle == nil {
		return fmt.Errorf("regression build task has no regression cycle")
	}
	if task.HasExternalRef() {
		return task.CompleteWithRef(*task.ExternalID(), e.clock.Now())
	}
	id := ec.cycle.ID()
	numbers, err := e.triggerPlatformBuilds(ctx, ec, pipeline.BuildRegression, &id, ec.cycle.CycleTag())
	if err != nil {
		return err
	}
	return task.CompleteWithRef(strings.Join(numbers, ","), e.clock.Now())
}

func (e *TaskExecutor) handleTriggerAutomation(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if ec.cycle == nil {
		return fmt.Errorf("automation trigger task has no regression cycle")
	}
	if task.HasExternalRef() {
		return task.CompleteWithRef(*task.ExternalID(), e.clock.Now())
	}
	workflow := ec.config.Settings.AutomationWorkflow
	if workflow == "" {
		return fmt.Errorf("release config %s names no automation workflow", ec.config.ID)
	}
	tag := ec.cycle.CycleTag()
	run, err := guarded(ctx, e.guard, guardKey("cicd", ec.config.CICDProvider), func(ctx context.Context) (provider.WorkflowRun, error) {
		return ec.providers.cicd.TriggerWorkflow(ctx, provider.TriggerWorkflowRequest{
			Repo:        ec.repo(),
			WorkflowRef: workflow,
			Ref:         tag,
			Inputs:      map[string]string{"tag": tag},
		})
	})
	if err != nil {
		return fmt.Errorf("trigger automation on %s: %w", tag, err)
	}
	ref := run.ID
	if ref == "" {
		ref = dispatchRefPrefix + workflow + "@" + tag
	}
	return task.CompleteWithRef(ref, e.clock.Now())
}

// handleAutomationRuns watches a triggered automation run. The executor
// never polls the provider here: the polling jobs record the observed
// run status into the task's result document, and the watch task
// completes once a terminal status has been recorded.
func (e *TaskExecutor) handleAutomationRuns(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if ec.cycle == nil {
		return fmt.Errorf("automation watch task has no regression cycle")
	}
	data := task.ExternalData()
	if status, _ := data["status"].(string); status == string(provider.RunCompleted) {
		conclusion, _ := data["conclusion"].(string)
		merged := data.Clone()
		merged["passed"] = strings.EqualFold(conclusion, "success")
		return task.CompleteWithData(merged, e.clock.Now())
	}
	if _, ok := data["runId"]; ok {
		return nil
	}
	if _, ok := data["workflowRef"]; ok {
		return nil
	}

	// First execution: bind the watch to the run the trigger started.
	cycleTasks, err := e.store.Tasks.FindByRegressionCycle(ctx, ec.cycle.ID())
	if err != nil {
		return err
	}
	var ref string
	for _, t := range cycleTasks {
		if t.Type() == pipeline.TaskTriggerAutomation && t.HasExternalRef() {
			ref = *t.ExternalID()
			break
		}
	}
	if ref == "" {
		return fmt.Errorf("no automation trigger to watch for cycle %s", ec.cycle.CycleTag())
	}
	obs := pipeline.ExternalData{
		"threshold": ec.config.Settings.AutomationPassThreshold,
		"checkedAt": timestamp(e.clock.Now()),
	}
	if strings.HasPrefix(ref, dispatchRefPrefix) {
		obs["workflowRef"] = ec.config.Settings.AutomationWorkflow
		obs["ref"] = ec.cycle.CycleTag()
	} else {
		obs["runId"] = ref
		obs["status"] = string(provider.RunQueued)
	}
	return task.MergeData(obs, e.clock.Now())
}

func (e *TaskExecutor) handleSendRegBuildMessage(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if ec.cycle == nil {
		return fmt.Errorf("regression message task has no regression cycle")
	}
	builds, err := e.store.Builds.FindByRegressionCycle(ctx, ec.cycle.ID())
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(builds))
	for _, b := range builds {
		lines = append(lines, fmt.Sprintf("%s build #%s", strings.ToLower(string(b.Platform)), b.BuildNumber))
	}
	body := fmt.Sprintf("Regression candidate %s is ready for testing.", ec.cycle.CycleTag())
	if len(lines) > 0 {
		body += "\n" + strings.Join(lines, "\n")
	}

	fields := map[string]string{
		"release": string(ec.release.ID()),
		"tag":     ec.cycle.CycleTag(),
	}
	if ec.release.HasManualBuildUpload() {
		uploads, err := e.store.Uploads.FindByReleaseAndStage(ctx, ec.release.ID(), release.StageRegression)
		if err != nil {
			return err
		}
		readiness := release.ComputeUploadReadiness(ec.mappings, uploads, release.StageRegression)
		fields["manualUploadsReady"] = fmt.Sprintf("%t", readiness.AllPlatformsReady)
	}

	channel := ec.channel(e.defaultChannel)
	delivered := e.deliver(ctx, ec, provider.Message{
		Channel: channel,
		Title:   fmt.Sprintf("Regression build %s", ec.cycle.CycleTag()),
		Body:    body,
		Fields:  fields,
	})
	return task.CompleteWithData(pipeline.ExternalData{
		"channel":   channel,
		"delivered": delivered,
		"cycleTag":  ec.cycle.CycleTag(),
		"builds":    strings.Join(lines, ", "),
		"sentAt":    timestamp(e.clock.Now()),
	}, e.clock.Now())
}

// previousCycleTag returns the tag of the cycle before the current one,
// or the empty string for the first cycle.
func (e *TaskExecutor) previousCycleTag(ctx context.Context, ec *execContext) (string, error) {
	cycles, err := e.store.Cycles.FindAll(ctx, ec.release.ID())
	if err != nil {
		return "", err
	}
	var prev string
	for _, c := range cycles {
		if ec.cycle != nil && c.ID() == ec.cycle.ID() {
			break
		}
		prev = c.CycleTag()
	}
	return prev, nil
}

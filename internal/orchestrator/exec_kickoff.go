package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/provider"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// releaseBranchName derives the release branch from the release version.
func releaseBranchName(version string) string {
	return "release/v" + strings.TrimPrefix(version, "v")
}

func (e *TaskExecutor) handlePreKickOffReminder(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	channel := ec.channel(e.defaultChannel)
	body := fmt.Sprintf("Release %s (%s) kicks off on %s. Target release date is %s.",
		ec.release.ID(),
		strings.ToLower(string(ec.release.Type())),
		ec.release.KickOffDate().Format("2006-01-02"),
		ec.release.TargetReleaseDate().Format("2006-01-02"))
	delivered := e.deliver(ctx, ec, provider.Message{
		Channel: channel,
		Title:   "Release kick-off reminder",
		Body:    body,
		Fields: map[string]string{
			"release":    string(ec.release.ID()),
			"baseBranch": ec.release.BaseBranch(),
		},
	})
	return task.CompleteWithData(pipeline.ExternalData{
		"channel":   channel,
		"delivered": delivered,
		"sentAt":    timestamp(e.clock.Now()),
	}, e.clock.Now())
}

func (e *TaskExecutor) handleForkBranch(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if existing := ec.release.Branch(); existing != "" {
		// A replay after the branch was already cut reuses it.
		return task.CompleteWithData(pipeline.ExternalData{
			"branch": existing,
			"reused": true,
		}, e.clock.Now())
	}
	version, err := ec.mappings.ReleaseVersion()
	if err != nil {
		return err
	}
	branch := releaseBranchName(version)
	res, err := guarded(ctx, e.guard, guardKey("scm", ec.config.SCMProvider), func(ctx context.Context) (provider.BranchResult, error) {
		return ec.providers.scm.CreateBranch(ctx, provider.CreateBranchRequest{
			Repo:       ec.repo(),
			BranchName: branch,
			FromRef:    ec.release.BaseBranch(),
		})
	})
	if err != nil {
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	if err := ec.release.SetBranch(branch, e.clock.Now()); err != nil {
		return err
	}
	if err := e.store.Releases.Update(ctx, ec.release); err != nil {
		return fmt.Errorf("persist release branch: %w", err)
	}
	return task.CompleteWithData(pipeline.ExternalData{
		"branch": branch,
		"sha":    res.SHA,
	}, e.clock.Now())
}

func (e *TaskExecutor) handleCreatePMTicket(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	platforms := ec.mappings.Platforms()
	if len(platforms) == 0 {
		return release.ErrNoMappings
	}
	if task.HasExternalRef() {
		// A replay reuses the tickets created before the crash; the
		// mapping rows may still need the keys.
		if err := e.recordPMRunIDs(ctx, ec, strings.Split(*task.ExternalID(), ",")); err != nil {
			return err
		}
		return task.CompleteWithRef(*task.ExternalID(), e.clock.Now())
	}

	// One ticket per platform, created in parallel.
	keys := make([]string, len(platforms))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range platforms {
		g.Go(func() error {
			version, _ := ec.mappings.VersionFor(p)
			ticket, err := guarded(gctx, e.guard, guardKey("pm", ec.config.PMProvider), func(ctx context.Context) (provider.Ticket, error) {
				return ec.providers.pm.CreateReleaseTicket(ctx, provider.CreateTicketRequest{
					ProjectKey:  ec.config.Settings.PMProjectKey,
					Title:       fmt.Sprintf("%s %s release", strings.ToLower(string(p)), version),
					Description: fmt.Sprintf("Tracking ticket for release %s on %s.", ec.release.ID(), strings.ToLower(string(p))),
					Platform:    strings.ToLower(string(p)),
					Version:     version,
					Labels:      []string{"release", strings.ToLower(string(p))},
				})
			})
			if err != nil {
				return fmt.Errorf("create %s ticket: %w", strings.ToLower(string(p)), err)
			}
			keys[i] = ticket.Key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := e.recordPMRunIDs(ctx, ec, keys); err != nil {
		return err
	}
	return task.CompleteWithRef(strings.Join(keys, ","), e.clock.Now())
}

// recordPMRunIDs stores one ticket key per platform on the mapping rows.
// Keys arrive in canonical platform order, matching Platforms().
func (e *TaskExecutor) recordPMRunIDs(ctx context.Context, ec *execContext, keys []string) error {
	platforms := ec.mappings.Platforms()
	if len(keys) != len(platforms) {
		return fmt.Errorf("have %d ticket keys for %d platforms", len(keys), len(platforms))
	}
	for i, p := range platforms {
		ec.mappings.RecordPMRunID(p, keys[i])
	}
	if err := e.store.Mappings.ReplaceForRelease(ctx, ec.release.ID(), ec.mappings); err != nil {
		return fmt.Errorf("persist ticket keys on mappings: %w", err)
	}
	return nil
}

// recordTestRunID stores the suite run id on every mapping row.
func (e *TaskExecutor) recordTestRunID(ctx context.Context, ec *execContext, runID string) error {
	for _, p := range ec.mappings.Platforms() {
		ec.mappings.RecordTestRunID(p, runID)
	}
	if err := e.store.Mappings.ReplaceForRelease(ctx, ec.release.ID(), ec.mappings); err != nil {
		return fmt.Errorf("persist test run id on mappings: %w", err)
	}
	return nil
}

func (e *TaskExecutor) handleCreateTestSuite(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if task.HasExternalRef() {
		if err := e.recordTestRunID(ctx, ec, *task.ExternalID()); err != nil {
			return err
		}
		return task.CompleteWithRef(*task.ExternalID(), e.clock.Now())
	}
	if ec.providers.testMgmt == nil {
		return fmt.Errorf("release config %s names no test management provider", ec.config.ID)
	}
	version, err := ec.mappings.ReleaseVersion()
	if err != nil {
		return err
	}
	suiteName := ec.config.Settings.TestSuiteName
	if suiteName == "" {
		suiteName = fmt.Sprintf("Regression %s", version)
	}
	run, err := guarded(ctx, e.guard, guardKey("testmgmt", ec.config.TestManagementProvider), func(ctx context.Context) (provider.SuiteRun, error) {
		return ec.providers.testMgmt.CreateSuiteRun(ctx, provider.CreateSuiteRunRequest{
			SuiteName:   suiteName,
			Version:     version,
			Description: fmt.Sprintf("Regression suite for release %s", ec.release.ID()),
		})
	})
	if err != nil {
		return fmt.Errorf("create test suite run: %w", err)
	}
	if err := e.recordTestRunID(ctx, ec, run.ID); err != nil {
		return err
	}
	return task.CompleteWithRef(run.ID, e.clock.Now())
}

func (e *TaskExecutor) handleTriggerPreRegBuilds(ctx context.Context, ec *execContext, task *pipeline.ReleaseTask) error {
	if task.HasExternalRef() {
		return task.CompleteWithRef(*task.ExternalID(), e.clock.Now())
	}
	numbers, err := e.triggerPlatformBuilds(ctx, ec, pipeline.BuildPreRegression, nil, ec.releaseBranch())
	if err != nil {
		return err
	}
	return task.CompleteWithRef(strings.Join(numbers, ","), e.clock.Now())
}

// triggerPlatformBuilds starts one CI build per platform that produces
// installable artifacts and records each as a build row. It returns the
// build numbers in canonical platform order.
func (e *TaskExecutor) triggerPlatformBuilds(ctx context.Context, ec *execContext, kind pipeline.BuildKind, regressionID *string, ref string) ([]string, error) {
	var numbers []string
	for _, p := range ec.mappings.Platforms() {
		if !p.BuildsArtifacts() {
			continue
		}
		workflow, ok := ec.config.WorkflowFor(p)
		if !ok {
			return nil, fmt.Errorf("no CI workflow configured for %s", strings.ToLower(string(p)))
		}
		version, _ := ec.mappings.VersionFor(p)
		run, err := guarded(ctx, e.guard, guardKey("cicd", ec.config.CICDProvider), func(ctx context.Context) (provider.WorkflowRun, error) {
			return ec.providers.cicd.TriggerWorkflow(ctx, provider.TriggerWorkflowRequest{
				Repo:        ec.repo(),
				WorkflowRef: workflow,
				Ref:         ref,
				Inputs: map[string]string{
					"platform": strings.ToLower(string(p)),
					"version":  version,
				},
			})
		})
		if err != nil {
			return nil, fmt.Errorf("trigger %s build for %s: %w", kind, strings.ToLower(string(p)), err)
		}
		build := pipeline.Build{
			ID:           newID(),
			ReleaseID:    ec.release.ID(),
			RegressionID: regressionID,
			Platform:     p,
			Kind:         kind,
			BuildNumber:  buildNumber(run),
			WorkflowRef:  workflow,
			TriggeredAt:  e.clock.Now(),
		}
		if err := e.store.Builds.Create(ctx, build); err != nil {
			return nil, fmt.Errorf("record build: %w", err)
		}
		numbers = append(numbers, build.BuildNumber)
	}
	if len(numbers) == 0 {
		return nil, fmt.Errorf("release targets no platforms with build artifacts")
	}
	return numbers, nil
}

// buildNumber picks the run's build number, falling back to the run ID
// for providers that do not number builds.
func buildNumber(run provider.WorkflowRun) string {
	if run.BuildNumber != "" {
		return run.BuildNumber
	}
	return run.ID
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apprelease "github.com/railhead-io/railhead/internal/application/release"
	"github.com/railhead-io/railhead/internal/container"
	"github.com/railhead-io/railhead/internal/domain/release"
	"github.com/railhead-io/railhead/internal/fileutil"
)

var (
	releaseAccount string
	releaseTenant  string

	uploadStage    string
	uploadPlatform string
	uploadFile     string
)

// maxUploadFileSize caps build artifacts read from disk.
const maxUploadFileSize = 512 << 20

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Operate on a release pipeline",
	Long: `Operate on one release: start it, pause or resume it, archive it,
fire the manual stage gates, retry a failed task or upload a build.

Every subcommand records the acting account (--account) in the
release's audit history.`,
}

func init() {
	rootCmd.AddCommand(releaseCmd)
	releaseCmd.PersistentFlags().StringVar(&releaseAccount, "account", "", "acting account id recorded in the audit history")
	releaseCmd.PersistentFlags().StringVar(&releaseTenant, "tenant", "", "tenant id the release belongs to")

	releaseCmd.AddCommand(releaseStartCmd)
	releaseCmd.AddCommand(releasePauseCmd)
	releaseCmd.AddCommand(releaseResumeCmd)
	releaseCmd.AddCommand(releaseArchiveCmd)
	releaseCmd.AddCommand(releaseTriggerStage2Cmd)
	releaseCmd.AddCommand(releaseTriggerStage3Cmd)
	releaseCmd.AddCommand(releaseRetryTaskCmd)
	releaseCmd.AddCommand(releaseUploadBuildCmd)

	releaseUploadBuildCmd.Flags().StringVar(&uploadStage, "stage", "", "pipeline stage the build belongs to (KICKOFF, REGRESSION, POST_REGRESSION)")
	releaseUploadBuildCmd.Flags().StringVar(&uploadPlatform, "platform", "", "platform the build targets (ANDROID, IOS, WEB)")
	releaseUploadBuildCmd.Flags().StringVar(&uploadFile, "file", "", "path to the build artifact")
	releaseUploadBuildCmd.MarkFlagRequired("stage")
	releaseUploadBuildCmd.MarkFlagRequired("platform")
	releaseUploadBuildCmd.MarkFlagRequired("file")
}

// withServices builds a container for one service call and tears it
// down afterwards.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc container.Services) error) error {
	app, err := container.New(cmd.Context(), container.Params{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(cmd.Context(), app.Services())
}

var releaseStartCmd = &cobra.Command{
	Use:   "start <release-id>",
	Short: "Start a release's pipeline",
	Long: `Start the release: the pipeline goes RUNNING and the next scheduler
tick opens the kick-off stage.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc container.Services) error {
			out, err := svc.StartRelease.Execute(ctx, apprelease.StartReleaseInput{
				ReleaseID: release.ReleaseID(args[0]),
				AccountID: releaseAccount,
			})
			return respond(apprelease.Respond(out, err), func(any) {
				printSuccess(fmt.Sprintf("Release %s started (pipeline %s, kick-off %s)",
					out.Release.ID, out.CronStatus, out.Stage1))
			})
		})
	},
}

var releasePauseCmd = &cobra.Command{
	Use:   "pause <release-id>",
	Short: "Pause a running release",
	Long: `Pause the release. In-flight work finishes; later ticks skip the
release until it is resumed. Pausing a paused release is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc container.Services) error {
			out, err := svc.PauseRelease.Execute(ctx, apprelease.PauseReleaseInput{
				ReleaseID: release.ReleaseID(args[0]),
				TenantID:  releaseTenant,
				AccountID: releaseAccount,
			})
			return respond(apprelease.Respond(out, err), func(any) {
				if out.AlreadyPaused {
					printInfo(fmt.Sprintf("Release %s was already paused", out.Release.ID))
					return
				}
				printSuccess(fmt.Sprintf("Release %s paused", out.Release.ID))
			})
		})
	},
}

var releaseResumeCmd = &cobra.Command{
	Use:   "resume <release-id>",
	Short: "Resume a paused release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc container.Services) error {
			out, err := svc.ResumeRelease.Execute(ctx, apprelease.ResumeReleaseInput{
				ReleaseID: release.ReleaseID(args[0]),
				TenantID:  releaseTenant,
				AccountID: releaseAccount,
			})
			return respond(apprelease.Respond(out, err), func(any) {
				printSuccess(fmt.Sprintf("Release %s resumed (pipeline %s)", out.Release.ID, out.CronStatus))
			})
		})
	},
}

var releaseArchiveCmd = &cobra.Command{
	Use:   "archive <release-id>",
	Short: "Archive a release, freezing its pipeline",
	Long: `Archive the release wherever it stands. The pipeline completes in
place and later ticks become no-ops. Archiving is terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc container.Services) error {
			out, err := svc.ArchiveRelease.Execute(ctx, apprelease.ArchiveReleaseInput{
				ReleaseID: release.ReleaseID(args[0]),
				AccountID: releaseAccount,
			})
			return respond(apprelease.Respond(out, err), func(any) {
				if out.AlreadyArchived {
					printInfo(fmt.Sprintf("Release %s was already archived", out.Release.ID))
					return
				}
				printSuccess(fmt.Sprintf("Release %s archived", out.Release.ID))
			})
		})
	},
}

var releaseTriggerStage2Cmd = &cobra.Command{
	Use:   "trigger-stage2 <release-id>",
	Short: "Fire the manual gate into the regression stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return triggerStage(cmd, args[0], release.StageRegression)
	},
}

var releaseTriggerStage3Cmd = &cobra.Command{
	Use:   "trigger-stage3 <release-id>",
	Short: "Fire the manual gate into the pre-release stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return triggerStage(cmd, args[0], release.StagePostRegression)
	},
}

func triggerStage(cmd *cobra.Command, releaseID string, stage release.Stage) error {
	return withServices(cmd, func(ctx context.Context, svc container.Services) error {
		out, err := svc.TriggerStage.Execute(ctx, apprelease.TriggerStageInput{
			ReleaseID: release.ReleaseID(releaseID),
			Stage:     stage,
			AccountID: releaseAccount,
		})
		return respond(apprelease.Respond(out, err), func(any) {
			printSuccess(fmt.Sprintf("Release %s gate fired, %s opens next tick", out.Release.ID, out.Stage))
		})
	})
}

var releaseRetryTaskCmd = &cobra.Command{
	Use:   "retry-task <task-id>",
	Short: "Retry a failed pipeline task",
	Long: `Reset a failed task to pending and lift the failure pause so the
next tick re-executes it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc container.Services) error {
			out, err := svc.RetryTask.Execute(ctx, apprelease.RetryTaskInput{
				TaskID:    args[0],
				AccountID: releaseAccount,
			})
			return respond(apprelease.Respond(out, err), func(any) {
				printSuccess(fmt.Sprintf("Task %s (%s) reset to %s", out.TaskID, out.TaskType, out.Status))
			})
		})
	},
}

var releaseUploadBuildCmd = &cobra.Command{
	Use:   "upload-build <release-id>",
	Short: "Upload a manually produced build artifact",
	Long: `Record a manually produced build for one platform and stage. The
artifact is stored under artifacts.root_dir and counted toward the
stage's upload readiness.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := fileutil.ReadFileLimited(uploadFile, maxUploadFileSize)
		if err != nil {
			return fmt.Errorf("read build artifact: %w", err)
		}
		return withServices(cmd, func(ctx context.Context, svc container.Services) error {
			out, err := svc.UploadBuild.Execute(ctx, apprelease.UploadManualBuildInput{
				ReleaseID: release.ReleaseID(args[0]),
				Stage:     release.Stage(strings.ToUpper(uploadStage)),
				Platform:  release.Platform(strings.ToUpper(uploadPlatform)),
				FileName:  baseName(uploadFile),
				Content:   content,
				AccountID: releaseAccount,
			})
			return respond(apprelease.Respond(out, err), func(any) {
				printSuccess(fmt.Sprintf("Build stored for %s/%s", uploadPlatform, uploadStage))
				if out.AllPlatformsReady {
					printInfo("All platform builds are in for this stage")
				} else if len(out.MissingPlatforms) > 0 {
					printSubtle("Still missing: " + joinPlatforms(out.MissingPlatforms))
				}
			})
		})
	},
}

// baseName trims directories from a path for use as the stored name.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

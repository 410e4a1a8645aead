package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apprelease "github.com/railhead-io/railhead/internal/application/release"
	"github.com/railhead-io/railhead/internal/container"
	"github.com/railhead-io/railhead/internal/domain/release"
)

var statusCmd = &cobra.Command{
	Use:   "status <release-id>",
	Short: "Show the full pipeline status of a release",
	Long: `Show a release's pipeline status: cron state, every stage with its
tasks, the latest regression cycle and manual upload readiness.

With --json the raw status report is printed for scripting.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := container.New(cmd.Context(), container.Params{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := app.Services().GetStatus.Execute(cmd.Context(), apprelease.GetReleaseStatusInput{
		ReleaseID: release.ReleaseID(args[0]),
	})
	return respond(apprelease.Respond(out, err), func(any) {
		renderStatus(out)
	})
}

func renderStatus(out *apprelease.GetReleaseStatusOutput) {
	rel := out.Release
	printTitle(fmt.Sprintf("Release %s", rel.ID))
	fmt.Printf("  Tenant:   %s\n", rel.TenantID)
	fmt.Printf("  Type:     %s\n", rel.Type)
	fmt.Printf("  Status:   %s\n", styles.Bold.Render(string(rel.Status)))
	fmt.Printf("  Pipeline: %s", out.CronStatus)
	if out.PauseType != "" {
		fmt.Printf(" (%s)", out.PauseType)
	}
	fmt.Println()
	if rel.Branch != "" {
		fmt.Printf("  Branch:   %s (from %s)\n", rel.Branch, rel.BaseBranch)
	} else {
		fmt.Printf("  Branch:   not forked yet (base %s)\n", rel.BaseBranch)
	}
	fmt.Printf("  Target:   %s\n", rel.TargetReleaseDate.Format("2006-01-02"))
	fmt.Printf("  Gates:    stage2 auto=%t, stage3 auto=%t\n", out.AutoStage2, out.AutoStage3)
	if out.PendingSlots > 0 {
		fmt.Printf("  Upcoming regressions: %d\n", out.PendingSlots)
	}
	if out.LatestCycle != nil {
		fmt.Printf("  Latest cycle: %s (%s)\n", out.LatestCycle.Tag, out.LatestCycle.Status)
	}

	for _, st := range out.Stages {
		fmt.Println()
		printInfo(fmt.Sprintf("%s: %s", st.Stage, st.Status))
		for _, task := range st.Tasks {
			line := fmt.Sprintf("  %-28s %s", task.Type, task.Status)
			if task.Error != "" {
				line += "  " + styles.Error.Render(task.Error)
			}
			fmt.Println(line)
		}
	}

	fmt.Println()
	if out.Readiness.AllPlatformsReady {
		printSuccess("All platform builds uploaded")
	} else if len(out.Readiness.Missing) > 0 {
		printSubtle("Missing uploads: " + joinPlatforms(out.Readiness.Missing))
	}
}

func joinPlatforms(ps []release.Platform) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

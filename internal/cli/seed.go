package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/railhead-io/railhead/internal/container"
	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
	"github.com/railhead-io/railhead/internal/fileutil"
)

var seedFile string

// maxSeedFileSize caps the accepted fixture file size.
const maxSeedFileSize = 4 << 20

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load release fixtures from a TOML file",
	Long: `Load release configs, releases, platform mappings and their cron
pipelines from a TOML fixture file into the configured store.

Seeded releases land in PENDING; start them with 'railhead release
start'. A minimal fixture:

  [[configs]]
  id = "cfg-mobile"
  tenant = "acme"
  name = "Mobile trains"
  scm = "git"
  cicd = "memory"
  pm = "memory"
  messaging = "webhook"

  [[releases]]
  id = "rel-2026-09"
  tenant = "acme"
  type = "MINOR"
  base_branch = "develop"
  config = "cfg-mobile"
  target_date = 2026-09-30T00:00:00Z
  kickoff_date = 2026-09-01T09:00:00Z
  created_by = "acct-release"
  pilot = "acct-release"
  auto_stage2 = true
  regressions = [2026-09-08T09:00:00Z, 2026-09-15T09:00:00Z]

    [[releases.mappings]]
    platform = "ANDROID"
    target = "PLAY_STORE"
    version = "1.25.0"`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.toml", "fixture file to load")
}

// seedDoc is the root of a fixture file.
type seedDoc struct {
	Configs  []seedConfig  `toml:"configs"`
	Releases []seedRelease `toml:"releases"`
}

type seedConfig struct {
	ID             string       `toml:"id"`
	Tenant         string       `toml:"tenant"`
	Name           string       `toml:"name"`
	SCM            string       `toml:"scm"`
	CICD           string       `toml:"cicd"`
	PM             string       `toml:"pm"`
	TestManagement string       `toml:"test_management"`
	Messaging      string       `toml:"messaging"`
	Settings       seedSettings `toml:"settings"`
}

type seedSettings struct {
	RepoOwner               string            `toml:"repo_owner"`
	RepoName                string            `toml:"repo_name"`
	CICDWorkflows           map[string]string `toml:"cicd_workflows"`
	TestFlightWorkflow      string            `toml:"testflight_workflow"`
	AutomationWorkflow      string            `toml:"automation_workflow"`
	PMProjectKey            string            `toml:"pm_project_key"`
	PMCompletedStatus       string            `toml:"pm_completed_status"`
	TestSuiteName           string            `toml:"test_suite_name"`
	AutomationPassThreshold float64           `toml:"automation_pass_threshold"`
	NotificationChannel     string            `toml:"notification_channel"`
}

type seedRelease struct {
	ID              string        `toml:"id"`
	Tenant          string        `toml:"tenant"`
	Type            string        `toml:"type"`
	BaseBranch      string        `toml:"base_branch"`
	Config          string        `toml:"config"`
	TargetDate      time.Time     `toml:"target_date"`
	KickoffDate     time.Time     `toml:"kickoff_date"`
	KickoffReminder *time.Time    `toml:"kickoff_reminder"`
	CreatedBy       string        `toml:"created_by"`
	Pilot           string        `toml:"pilot"`
	AutoStage2      bool          `toml:"auto_stage2"`
	AutoStage3      bool          `toml:"auto_stage3"`
	LockTimeoutSec  int           `toml:"lock_timeout_sec"`
	Options         seedOptions   `toml:"options"`
	Regressions     []time.Time   `toml:"regressions"`
	Mappings        []seedMapping `toml:"mappings"`
}

// seedOptions mirrors the optional-task flags of a cron pipeline.
type seedOptions struct {
	KickoffReminder     bool `toml:"kickoff_reminder"`
	PreRegressionBuilds bool `toml:"pre_regression_builds"`
	AutomationBuilds    bool `toml:"automation_builds"`
	AutomationRuns      bool `toml:"automation_runs"`
	TestFlightBuilds    bool `toml:"testflight_builds"`
}

type seedMapping struct {
	Platform string `toml:"platform"`
	Target   string `toml:"target"`
	Version  string `toml:"version"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	raw, err := fileutil.ReadFileLimited(seedFile, maxSeedFileSize)
	if err != nil {
		return fmt.Errorf("read fixture file: %w", err)
	}
	var doc seedDoc
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse fixture file: %w", err)
	}
	if len(doc.Configs) == 0 && len(doc.Releases) == 0 {
		return fmt.Errorf("fixture file %s defines nothing to seed", seedFile)
	}

	ctx := cmd.Context()
	app, err := container.New(ctx, container.Params{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Database.DSN == "" {
		logger.Warn("no database configured; seeding the in-memory store, which is discarded on exit")
	}

	err = app.Transactor().WithinTx(ctx, func(ctx context.Context, s ports.Store) error {
		for _, sc := range doc.Configs {
			if err := seedOneConfig(ctx, s, sc); err != nil {
				return fmt.Errorf("config %q: %w", sc.ID, err)
			}
		}
		for _, sr := range doc.Releases {
			if err := seedOneRelease(ctx, s, sr); err != nil {
				return fmt.Errorf("release %q: %w", sr.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	printSuccess(fmt.Sprintf("Seeded %d config(s) and %d release(s) from %s",
		len(doc.Configs), len(doc.Releases), seedFile))
	return nil
}

func seedOneConfig(ctx context.Context, s ports.Store, sc seedConfig) error {
	now := time.Now()
	rc := &release.ReleaseConfig{
		ID:                     sc.ID,
		TenantID:               sc.Tenant,
		Name:                   sc.Name,
		SCMProvider:            sc.SCM,
		CICDProvider:           sc.CICD,
		PMProvider:             sc.PM,
		TestManagementProvider: sc.TestManagement,
		MessagingProvider:      sc.Messaging,
		Settings: release.ConfigSettings{
			RepoOwner:               sc.Settings.RepoOwner,
			RepoName:                sc.Settings.RepoName,
			CICDWorkflows:           sc.Settings.CICDWorkflows,
			TestFlightWorkflow:      sc.Settings.TestFlightWorkflow,
			AutomationWorkflow:      sc.Settings.AutomationWorkflow,
			PMProjectKey:            sc.Settings.PMProjectKey,
			PMCompletedStatus:       sc.Settings.PMCompletedStatus,
			TestSuiteName:           sc.Settings.TestSuiteName,
			AutomationPassThreshold: sc.Settings.AutomationPassThreshold,
			NotificationChannel:     sc.Settings.NotificationChannel,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	return s.Configs.Create(ctx, rc)
}

func seedOneRelease(ctx context.Context, s ports.Store, sr seedRelease) error {
	now := time.Now()
	rel, err := release.NewRelease(release.NewReleaseParams{
		ID:                  release.ReleaseID(sr.ID),
		TenantID:            sr.Tenant,
		Type:                release.Type(sr.Type),
		BaseBranch:          sr.BaseBranch,
		ConfigID:            sr.Config,
		TargetReleaseDate:   sr.TargetDate,
		KickOffDate:         sr.KickoffDate,
		KickOffReminderDate: sr.KickoffReminder,
		CreatedByAccountID:  sr.CreatedBy,
		PilotAccountID:      sr.Pilot,
	}, now)
	if err != nil {
		return err
	}
	if err := s.Releases.Create(ctx, rel); err != nil {
		return err
	}

	mappings := make(release.Mappings, 0, len(sr.Mappings))
	for _, m := range sr.Mappings {
		mappings = append(mappings, release.PlatformTargetMapping{
			ReleaseID: rel.ID(),
			Platform:  release.Platform(m.Platform),
			Target:    release.Target(m.Target),
			Version:   m.Version,
		})
	}
	if len(mappings) > 0 {
		if err := mappings.Validate(); err != nil {
			return err
		}
		if err := s.Mappings.ReplaceForRelease(ctx, rel.ID(), mappings); err != nil {
			return err
		}
	}

	cronConfig := pipeline.CronConfig{
		KickOffReminder:     sr.Options.KickoffReminder,
		PreRegressionBuilds: sr.Options.PreRegressionBuilds,
		AutomationBuilds:    sr.Options.AutomationBuilds,
		AutomationRuns:      sr.Options.AutomationRuns,
		TestFlightBuilds:    sr.Options.TestFlightBuilds,
	}
	slots := make([]pipeline.RegressionSlot, 0, len(sr.Regressions))
	for _, due := range sr.Regressions {
		slots = append(slots, pipeline.RegressionSlot{DueAt: due, Config: cronConfig})
	}
	job, err := pipeline.NewCronJob(pipeline.NewCronJobParams{
		ID:                     uuid.NewString(),
		ReleaseID:              rel.ID(),
		Config:                 cronConfig,
		UpcomingRegressions:    slots,
		AutoTransitionToStage2: sr.AutoStage2,
		AutoTransitionToStage3: sr.AutoStage3,
		LockTimeoutSec:         sr.LockTimeoutSec,
	}, now)
	if err != nil {
		return err
	}
	return s.CronJobs.Create(ctx, job)
}

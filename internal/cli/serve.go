package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/railhead-io/railhead/internal/config"
	"github.com/railhead-io/railhead/internal/container"
)

var serveDev bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the release orchestration daemon",
	Long: `Run the Railhead daemon: the tick scheduler, the workflow polling
dispatcher and the observability endpoint.

Each tick scans for RUNNING pipelines and advances every release whose
advisory lease it can take, so several daemon instances may run
against the same database. With observability.tick_endpoint enabled the
in-process timer is replaced by POST /tick, letting an external cron
service drive the schedule.

Examples:
  # Run against the configured PostgreSQL database
  railhead serve

  # Run a throwaway daemon: in-memory storage and providers
  railhead serve --dev`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "in-memory storage and providers, no database required")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := container.New(ctx, container.Params{
		Config: cfg,
		Logger: logger,
		Dev:    serveDev,
	})
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if watcher, err := watchConfig(app); err != nil {
		logger.Warn("config watch disabled", "err", err)
	} else if watcher != nil {
		defer watcher.Close()
	}

	if serveDev {
		printInfo("Running in dev mode: state is in memory and lost on exit")
	}
	fmt.Printf("Railhead daemon running, metrics on %s\n", app.Config().Observability.ListenAddr)
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()
	fmt.Println("\nShutting down")
	return app.Close()
}

// watchConfig re-reads the config file on change and applies what can
// change at runtime: the log level, the tick interval and the tick
// concurrency. Anything else needs a restart and is logged as such.
// Returns a nil watcher when no config file is in use.
func watchConfig(app *container.Container) (*fsnotify.Watcher, error) {
	path := cfgFile
	if path == "" {
		loader := config.NewLoader()
		if _, err := loader.Load(); err == nil {
			path = loader.GetConfigPath()
		}
	}
	if path == "" {
		return nil, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace the file, which drops a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				reloadConfig(app, path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", "err", err)
			}
		}
	}()
	return watcher, nil
}

// reloadConfig applies a changed config file to the running daemon.
func reloadConfig(app *container.Container, path string) {
	fresh, err := config.NewLoader().WithConfigPath(path).Load()
	if err != nil {
		logger.Warn("config reload failed", "path", path, "err", err)
		return
	}
	if err := config.Validate(fresh); err != nil {
		logger.Warn("config reload rejected", "path", path, "err", err)
		return
	}

	if fresh.Output.LogLevel != cfg.Output.LogLevel {
		logger.SetLevel(parseLevel(fresh.Output.LogLevel, cfg.Output.Verbose))
		logger.Info("log level changed", "level", fresh.Output.LogLevel)
		cfg.Output.LogLevel = fresh.Output.LogLevel
	}
	if fresh.Scheduler.Interval != cfg.Scheduler.Interval || fresh.Scheduler.Concurrency != cfg.Scheduler.Concurrency {
		app.ApplyScheduler(fresh.Scheduler)
		logger.Info("scheduler settings applied",
			"interval", fresh.Scheduler.Interval, "concurrency", fresh.Scheduler.Concurrency)
		cfg.Scheduler.Interval = fresh.Scheduler.Interval
		cfg.Scheduler.Concurrency = fresh.Scheduler.Concurrency
	}
	if fresh.Scheduler != cfg.Scheduler || fresh.Database != cfg.Database {
		logger.Info("lease, timeout or database settings changed, restart to apply")
	}
}

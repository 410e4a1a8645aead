// Package container wires Railhead's storage, providers, orchestration
// loop and service layer together from one configuration. The CLI
// builds a Container per invocation; the serve command additionally
// starts its background loops.
package container

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	apprelease "github.com/railhead-io/railhead/internal/application/release"
	"github.com/railhead-io/railhead/internal/config"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/provider"
	rherrors "github.com/railhead-io/railhead/internal/errors"
	"github.com/railhead-io/railhead/internal/infrastructure/ai"
	"github.com/railhead-io/railhead/internal/infrastructure/artifact"
	"github.com/railhead-io/railhead/internal/infrastructure/gitscm"
	"github.com/railhead-io/railhead/internal/infrastructure/memprovider"
	"github.com/railhead-io/railhead/internal/infrastructure/notify"
	"github.com/railhead-io/railhead/internal/infrastructure/persistence"
	"github.com/railhead-io/railhead/internal/infrastructure/persistence/memory"
	"github.com/railhead-io/railhead/internal/infrastructure/persistence/postgres"
	"github.com/railhead-io/railhead/internal/observability"
	"github.com/railhead-io/railhead/internal/orchestrator"
	"github.com/railhead-io/railhead/internal/version"
)

// defaultShutdownTimeout bounds graceful shutdown of all components.
const defaultShutdownTimeout = 10 * time.Second

// Closeable is a component that participates in container shutdown.
type Closeable interface {
	Close() error
}

// closeFunc adapts a bare function to Closeable.
type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// Params carries the inputs for New.
type Params struct {
	Config *config.Config
	Logger *log.Logger

	// Dev forces in-memory storage and the in-memory provider set,
	// regardless of what the configuration enables. Used by
	// `railhead serve --dev` and by tests.
	Dev bool
}

// Services bundles the application use cases the CLI commands call.
type Services struct {
	StartRelease   *apprelease.StartReleaseUseCase
	PauseRelease   *apprelease.PauseReleaseUseCase
	ResumeRelease  *apprelease.ResumeReleaseUseCase
	ArchiveRelease *apprelease.ArchiveReleaseUseCase
	TriggerStage   *apprelease.TriggerStageUseCase
	RetryTask      *apprelease.RetryTaskUseCase
	UploadBuild    *apprelease.UploadManualBuildUseCase
	GetStatus      *apprelease.GetReleaseStatusUseCase
}

// Container holds every wired component. Build one with New, start the
// background loops with Start, and always Close it.
type Container struct {
	cfg    *config.Config
	logger *log.Logger

	mu      sync.Mutex
	closed  bool
	started bool

	pg  *postgres.DB
	mem *memory.DB

	store     ports.Store
	tx        ports.Transactor
	registry  *provider.Registry
	memSet    *memprovider.Set
	guard     *orchestrator.Guard
	metrics   *observability.Metrics
	executor  *orchestrator.TaskExecutor
	orch      *orchestrator.Orchestrator
	leases    *orchestrator.LeaseManager
	source    orchestrator.TickSource
	scheduler *orchestrator.Scheduler
	poller    *orchestrator.PollingDispatcher
	artifacts *artifact.Store
	obs       *observability.Server
	services  Services

	closeables []Closeable
}

// New builds a container from the configuration. Nothing starts
// running; background loops wait for Start.
func New(ctx context.Context, p Params) (*Container, error) {
	if p.Config == nil {
		return nil, rherrors.Validation("container.New", "configuration is required")
	}
	if p.Logger == nil {
		p.Logger = log.Default()
	}

	c := &Container{
		cfg:    p.Config,
		logger: p.Logger,
	}

	if err := c.initStorage(ctx, p.Dev); err != nil {
		c.closeAll()
		return nil, err
	}
	if err := c.initProviders(p.Dev); err != nil {
		c.closeAll()
		return nil, err
	}
	if err := c.initOrchestration(); err != nil {
		c.closeAll()
		return nil, err
	}
	if err := c.initServices(); err != nil {
		c.closeAll()
		return nil, err
	}
	c.initObservability()

	return c, nil
}

// registerCloseable queues a component for LIFO shutdown.
func (c *Container) registerCloseable(cl Closeable) {
	if cl != nil {
		c.closeables = append(c.closeables, cl)
	}
}

// initStorage opens PostgreSQL when a DSN is configured and falls back
// to the in-memory store otherwise. Dev mode always takes the in-memory
// store so a scratch daemon needs no database.
func (c *Container) initStorage(ctx context.Context, dev bool) error {
	if dev || c.cfg.Database.DSN == "" {
		c.mem = memory.New()
		c.store = c.mem.Store()
		c.tx = c.mem
		c.logger.Debug("storage initialized", "backend", "memory")
		return nil
	}

	db, err := postgres.Open(ctx, postgres.Config{
		DSN:             c.cfg.Database.DSN,
		MaxOpenConns:    c.cfg.Database.MaxOpenConns,
		MaxIdleConns:    c.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: c.cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	c.pg = db
	c.registerCloseable(db)

	if c.cfg.Database.AutoMigrate {
		if err := persistence.Migrate(ctx, db.SQL()); err != nil {
			return err
		}
		c.logger.Debug("migrations applied")
	}

	c.store = db.Store()
	c.tx = db
	c.logger.Debug("storage initialized", "backend", "postgres")
	return nil
}

// initProviders builds the registry from the enabled provider blocks.
func (c *Container) initProviders(dev bool) error {
	c.registry = provider.NewRegistry()

	if c.cfg.Providers.Git.Enabled {
		opts := []gitscm.Option{gitscm.WithRepoPath(c.cfg.Providers.Git.RepoPath)}
		if c.cfg.Providers.Git.Push {
			opts = append(opts, gitscm.WithPush(c.cfg.Providers.Git.DefaultRemote))
		}
		scm, err := gitscm.New(opts...)
		if err != nil {
			return err
		}
		if err := c.registry.RegisterSCM("git", scm); err != nil {
			return err
		}
		c.logger.Debug("provider registered", "type", "git", "capability", "scm")
	}

	if c.cfg.Providers.Webhook.Enabled {
		messenger, err := notify.NewMessenger(notify.Config{
			Endpoint:      c.cfg.Providers.Webhook.Endpoint,
			Secret:        c.cfg.Providers.Webhook.Secret,
			Timeout:       c.cfg.Providers.Webhook.Timeout,
			TemplatesPath: c.cfg.Notifications.TemplatesPath,
		})
		if err != nil {
			return err
		}
		if err := c.registry.RegisterMessaging("webhook", messenger); err != nil {
			return err
		}
		c.logger.Debug("provider registered", "type", "webhook", "capability", "messaging")
	}

	if dev || c.cfg.Providers.Memory.Enabled {
		c.memSet = memprovider.New()
		if err := c.memSet.Register(c.registry); err != nil {
			return err
		}
		c.logger.Debug("provider registered", "type", "memory", "capability", "all")
	}

	res := c.cfg.Providers.Resilience
	c.guard = orchestrator.NewGuard(orchestrator.GuardConfig{
		RateLimit:         res.RateLimit,
		RateBurst:         res.RateBurst,
		RetryAttempts:     res.RetryAttempts,
		RetryInitialDelay: res.RetryInitialDelay,
		RetryMaxDelay:     res.RetryMaxDelay,
		BreakerThreshold:  res.BreakerThreshold,
		BreakerCooldown:   res.BreakerCooldown,
		CallTimeout:       c.cfg.Providers.CallTimeout,
	})
	return nil
}

// initOrchestration wires the executor, orchestrator, lease manager,
// scheduler and polling dispatcher.
func (c *Container) initOrchestration() error {
	c.metrics = observability.NewMetrics(version.Get())

	var enricher orchestrator.NotesEnricher
	if c.cfg.AI.Enabled {
		e, err := ai.New(ai.Config{
			Enabled:       true,
			Provider:      c.cfg.AI.Provider,
			APIKey:        c.cfg.AI.APIKey,
			BaseURL:       c.cfg.AI.BaseURL,
			Model:         c.cfg.AI.Model,
			MaxTokens:     c.cfg.AI.MaxTokens,
			Temperature:   c.cfg.AI.Temperature,
			Timeout:       c.cfg.AI.Timeout,
			RetryAttempts: c.cfg.AI.RetryAttempts,
		})
		if err != nil {
			return err
		}
		enricher = e
	}

	defaultChannel := ""
	if c.cfg.Notifications.Enabled {
		defaultChannel = c.cfg.Notifications.DefaultChannel
	}
	c.executor = orchestrator.NewTaskExecutor(orchestrator.ExecutorParams{
		Store:          c.store,
		Guard:          c.guard,
		Logger:         c.logger,
		Enricher:       enricher,
		Observer:       c.metrics,
		DefaultChannel: defaultChannel,
	})

	c.orch = orchestrator.NewOrchestrator(orchestrator.OrchestratorParams{
		Store:    c.store,
		Tx:       c.tx,
		Registry: c.registry,
		Executor: c.executor,
		Logger:   c.logger,
	})

	c.leases = orchestrator.NewLeaseManager(c.store.CronJobs, nil, c.instanceID(), c.logger)

	if c.cfg.Observability.TickEndpoint {
		c.source = orchestrator.NewManualTicker()
	} else {
		c.source = orchestrator.NewIntervalTicker(c.cfg.Scheduler.Interval)
	}
	c.scheduler = orchestrator.NewScheduler(orchestrator.SchedulerParams{
		Store:          c.store,
		Orchestrator:   c.orch,
		Leases:         c.leases,
		Source:         c.source,
		Concurrency:    c.cfg.Scheduler.Concurrency,
		ExecuteTimeout: c.cfg.Scheduler.ExecuteTimeout,
		Observer:       c.metrics,
		Logger:         c.logger,
	})

	c.poller = orchestrator.NewPollingDispatcher(orchestrator.PollerParams{
		Store:           c.store,
		Registry:        c.registry,
		Guard:           c.guard,
		PendingInterval: c.cfg.Scheduler.PollPendingInterval,
		RunningInterval: c.cfg.Scheduler.PollRunningInterval,
		Logger:          c.logger,
	})
	return nil
}

// initServices builds the use case bundle the CLI exposes.
func (c *Container) initServices() error {
	opts := []artifact.Option{artifact.WithMaxSize(c.cfg.Artifacts.MaxSizeBytes)}
	if c.cfg.Artifacts.BaseURL != "" {
		opts = append(opts, artifact.WithBaseURL(c.cfg.Artifacts.BaseURL))
	}
	store, err := artifact.New(c.cfg.Artifacts.RootDir, opts...)
	if err != nil {
		return err
	}
	c.artifacts = store

	c.services = Services{
		StartRelease:   apprelease.NewStartReleaseUseCase(c.tx, nil),
		PauseRelease:   apprelease.NewPauseReleaseUseCase(c.tx, nil),
		ResumeRelease:  apprelease.NewResumeReleaseUseCase(c.tx, nil),
		ArchiveRelease: apprelease.NewArchiveReleaseUseCase(c.tx, nil),
		TriggerStage:   apprelease.NewTriggerStageUseCase(c.tx, nil),
		RetryTask:      apprelease.NewRetryTaskUseCase(c.tx, nil),
		UploadBuild:    apprelease.NewUploadManualBuildUseCase(c.store, c.tx, c.artifacts, nil),
		GetStatus:      apprelease.NewGetReleaseStatusUseCase(c.store),
	}
	return nil
}

// initObservability builds the metrics endpoint. The server is created
// here but listens only once Start runs.
func (c *Container) initObservability() {
	var tick func()
	if c.cfg.Observability.TickEndpoint {
		tick = func() { c.scheduler.Tick(context.Background()) }
	}
	var readiness func(ctx context.Context) error
	if c.pg != nil {
		readiness = c.pg.Ping
	}
	c.obs = observability.NewServer(observability.ServerParams{
		ListenAddr: c.cfg.Observability.ListenAddr,
		Metrics:    c.metrics,
		Readiness:  readiness,
		Tick:       tick,
		Logger:     c.logger,
	})
}

// instanceID returns the identity this process signs leases with.
func (c *Container) instanceID() string {
	if id := c.cfg.Scheduler.InstanceID; id != "" {
		return id
	}
	return orchestrator.InstanceID()
}

// Start launches the scheduler, the polling dispatcher and the
// observability endpoint. It is used by the serve command; one-shot CLI
// commands never call it.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return rherrors.New(rherrors.KindFatal, "container is closed")
	}
	if c.started {
		return rherrors.New(rherrors.KindFatal, "container already started")
	}

	if err := c.obs.Start(); err != nil {
		return rherrors.Wrap(err, rherrors.KindFatal, "container.Start", "start observability endpoint")
	}
	c.registerCloseable(c.obs)

	if err := c.poller.Start(ctx); err != nil {
		return err
	}
	c.registerCloseable(closeFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return c.poller.Stop(ctx)
	}))

	if err := c.scheduler.Start(ctx); err != nil {
		return err
	}
	c.registerCloseable(closeFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return c.scheduler.Stop(ctx)
	}))

	c.started = true
	c.logger.Info("railhead started",
		"version", version.Get(),
		"instance", c.leases.Owner(),
		"tick_endpoint", c.cfg.Observability.TickEndpoint)
	return nil
}

// Config returns the configuration the container was built from.
func (c *Container) Config() *config.Config { return c.cfg }

// Store returns the repository bundle.
func (c *Container) Store() ports.Store { return c.store }

// Transactor returns the transaction runner for the active backend.
func (c *Container) Transactor() ports.Transactor { return c.tx }

// Registry returns the provider registry.
func (c *Container) Registry() *provider.Registry { return c.registry }

// MemoryProviders returns the in-memory provider set, or nil when it is
// not registered. Tests use it to steer provider behavior.
func (c *Container) MemoryProviders() *memprovider.Set { return c.memSet }

// Scheduler returns the tick scheduler.
func (c *Container) Scheduler() *orchestrator.Scheduler { return c.scheduler }

// ApplyScheduler applies the reloadable scheduler settings, which are
// the tick interval and the per-tick concurrency. Lease and timeout
// changes still need a restart.
func (c *Container) ApplyScheduler(sc config.SchedulerConfig) {
	if c.scheduler != nil {
		c.scheduler.SetConcurrency(sc.Concurrency)
	}
	if t, ok := c.source.(*orchestrator.IntervalTicker); ok {
		t.SetInterval(sc.Interval)
	}
}

// Poller returns the workflow polling dispatcher.
func (c *Container) Poller() *orchestrator.PollingDispatcher { return c.poller }

// Metrics returns the telemetry counters.
func (c *Container) Metrics() *observability.Metrics { return c.metrics }

// Artifacts returns the build artifact store.
func (c *Container) Artifacts() *artifact.Store { return c.artifacts }

// Services returns the use case bundle.
func (c *Container) Services() Services { return c.services }

// Close shuts the container down with the default timeout.
func (c *Container) Close() error {
	return c.CloseWithTimeout(defaultShutdownTimeout)
}

// CloseWithTimeout stops every registered component in reverse order of
// registration, bounding the whole shutdown by timeout.
func (c *Container) CloseWithTimeout(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	for i := len(c.closeables) - 1; i >= 0; i-- {
		if err := c.closeOne(ctx, c.closeables[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closeables = nil
	if firstErr != nil {
		c.logger.Warn("shutdown finished with errors", "err", firstErr)
		return firstErr
	}
	c.logger.Debug("shutdown complete")
	return nil
}

// closeAll is the construction-failure cleanup path.
func (c *Container) closeAll() {
	_ = c.CloseWithTimeout(defaultShutdownTimeout)
}

// closeOne closes a component, giving up when the shutdown deadline
// passes.
func (c *Container) closeOne(ctx context.Context, cl Closeable) error {
	done := make(chan error, 1)
	go func() { done <- cl.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.logger.Warn("component close timed out")
		return ctx.Err()
	}
}

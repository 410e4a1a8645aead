package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// SchedulerParams carries the dependencies for NewScheduler.
type SchedulerParams struct {
	Store        ports.Store
	Orchestrator *Orchestrator
	Leases       *LeaseManager
	Source       TickSource

	// Concurrency bounds how many releases advance in parallel per tick.
	Concurrency int

	// ExecuteTimeout is the soft deadline for one release execution.
	ExecuteTimeout time.Duration

	// Observer receives scheduling telemetry. Nil means none.
	Observer Observer

	Logger *log.Logger
}

// Scheduler fans one tick out over every RUNNING pipeline. Each release
// is advanced under its advisory lease, so any number of scheduler
// instances can tick concurrently without double-executing a release.
type Scheduler struct {
	store          ports.Store
	orchestrator   *Orchestrator
	leases         *LeaseManager
	source         TickSource
	concurrency    atomic.Int64
	executeTimeout time.Duration
	observer       Observer
	logger         *log.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// defaultConcurrency bounds a pass when no limit is configured.
const defaultConcurrency = 8

// NewScheduler creates a scheduler. Zero params get working defaults.
func NewScheduler(p SchedulerParams) *Scheduler {
	if p.Concurrency <= 0 {
		p.Concurrency = defaultConcurrency
	}
	if p.ExecuteTimeout <= 0 {
		p.ExecuteTimeout = 2 * time.Minute
	}
	if p.Logger == nil {
		p.Logger = log.Default()
	}
	if p.Observer == nil {
		p.Observer = NopObserver{}
	}
	s := &Scheduler{
		store:          p.Store,
		orchestrator:   p.Orchestrator,
		leases:         p.Leases,
		source:         p.Source,
		executeTimeout: p.ExecuteTimeout,
		observer:       p.Observer,
		logger:         p.Logger,
	}
	s.concurrency.Store(int64(p.Concurrency))
	return s
}

// SetConcurrency adjusts per-tick parallelism. It applies from the next
// pass; a pass already in flight keeps its limit.
func (s *Scheduler) SetConcurrency(n int) {
	if n <= 0 {
		n = defaultConcurrency
	}
	s.concurrency.Store(int64(n))
}

// Start begins consuming ticks from the source.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.source.Start(ctx, func() { s.Tick(ctx) })
}

// Stop ends tick delivery and drains any pass still in flight.
func (s *Scheduler) Stop(ctx context.Context) error {
	if err := s.source.Stop(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one scheduling pass: list the RUNNING pipelines and advance
// each under its lease. A tick arriving while the previous pass still
// runs is dropped, not queued.
func (s *Scheduler) Tick(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("previous scheduler pass still running, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	jobs, err := s.store.CronJobs.FindRunningCandidates(ctx)
	if err != nil {
		s.logger.Error("list running pipelines", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}
	s.observer.TickStarted(len(jobs))
	s.logger.Debug("scheduler pass started", "candidates", len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(int(s.concurrency.Load()))
	for _, job := range jobs {
		releaseID := job.ReleaseID()
		g.Go(func() error {
			s.runOne(gctx, releaseID)
			return nil
		})
	}
	_ = g.Wait()
}

// runOne advances a single release under its lease. Contention is not
// an error: another instance owns the release this tick.
func (s *Scheduler) runOne(ctx context.Context, releaseID release.ReleaseID) {
	free, ok, err := s.leases.TryAcquire(ctx, releaseID)
	if err != nil {
		s.logger.Error("acquire release lease", "releaseId", releaseID, "error", err)
		return
	}
	if !ok {
		s.observer.LeaseOutcome(false)
		s.logger.Debug("release leased elsewhere, skipping", "releaseId", releaseID)
		return
	}
	s.observer.LeaseOutcome(true)
	defer free()

	execCtx, cancel := context.WithTimeout(ctx, s.executeTimeout)
	defer cancel()

	err = s.orchestrator.ExecuteRelease(execCtx, releaseID)
	s.observer.ReleaseAdvanced(err == nil)
	if err != nil {
		if errors.Is(err, pipeline.ErrStaleCronJob) {
			s.logger.Warn("pipeline edited mid-tick, retrying next tick", "releaseId", releaseID)
			return
		}
		s.logger.Error("advance release", "releaseId", releaseID, "error", err)
	}
}

package orchestrator

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// LeaseManager hands out the per-release advisory lease. The lease is
// advisory, not a lock: losing it to an expiry takeover is expected and
// the release path tolerates it silently.
type LeaseManager struct {
	jobs   ports.CronJobRepository
	clock  ports.Clock
	owner  string
	logger *log.Logger
}

// NewLeaseManager creates a lease manager signing leases as owner.
func NewLeaseManager(jobs ports.CronJobRepository, clock ports.Clock, owner string, logger *log.Logger) *LeaseManager {
	if clock == nil {
		clock = ports.RealClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LeaseManager{jobs: jobs, clock: clock, owner: owner, logger: logger}
}

// Owner returns the identity leases are signed with.
func (m *LeaseManager) Owner() string { return m.owner }

// TryAcquire takes the lease for a release if it is free or expired.
// When acquired it returns a release function that frees the lease; the
// release function survives cancellation of the acquiring context so a
// timed-out execution still cleans up after itself.
func (m *LeaseManager) TryAcquire(ctx context.Context, releaseID release.ReleaseID) (func(), bool, error) {
	ok, err := m.jobs.AcquireLease(ctx, releaseID, m.owner, m.clock.Now())
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	free := func() {
		if err := m.jobs.ReleaseLease(context.WithoutCancel(ctx), releaseID, m.owner); err != nil {
			m.logger.Warn("lease release failed", "release", releaseID, "owner", m.owner, "err", err)
		}
	}
	return free, true, nil
}

// Renew refreshes the lease timestamp mid-execution. It reports whether
// the lease is still held by this instance.
func (m *LeaseManager) Renew(ctx context.Context, releaseID release.ReleaseID) (bool, error) {
	return m.jobs.RenewLease(ctx, releaseID, m.owner, m.clock.Now())
}

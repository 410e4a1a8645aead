package ports

import (
	"context"
	"time"
)

// Store bundles every repository behind one value that is passed down
// through the orchestrator and application layers. Callers receive the
// Store they should use; nothing reaches into globals for persistence.
type Store struct {
	Releases ReleaseRepository
	CronJobs CronJobRepository
	Tasks    ReleaseTaskRepository
	Cycles   RegressionCycleRepository
	Mappings PlatformMappingRepository
	Uploads  ReleaseUploadRepository
	Builds   BuildRepository
	History  StateHistoryRepository
	Configs  ReleaseConfigRepository
}

// Transactor runs a function against a Store whose repositories share
// one database transaction. The transaction commits when fn returns nil
// and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// Clock provides the current time. The scheduler and executor take a
// Clock so tests can drive time directly.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time { return time.Now() }

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/release"
)

type cronJobRepo struct{ q querier }

type cronJobRow struct {
	ID                     string     `db:"id"`
	ReleaseID              string     `db:"release_id"`
	Stage1Status           string     `db:"stage1_status"`
	Stage2Status           string     `db:"stage2_status"`
	Stage3Status           string     `db:"stage3_status"`
	CronStatus             string     `db:"cron_status"`
	PauseType              string     `db:"pause_type"`
	AutoTransitionToStage2 bool       `db:"auto_transition_to_stage2"`
	AutoTransitionToStage3 bool       `db:"auto_transition_to_stage3"`
	CronConfig             []byte     `db:"cron_config"`
	UpcomingRegressions    []byte     `db:"upcoming_regressions"`
	LockedBy               *string    `db:"locked_by"`
	LockedAt               *time.Time `db:"locked_at"`
	LockTimeoutSec         int        `db:"lock_timeout_sec"`
	Version                int        `db:"version"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}

func cronJobToRow(j *pipeline.CronJob) (cronJobRow, error) {
	cfg, err := json.Marshal(j.Config())
	if err != nil {
		return cronJobRow{}, fmt.Errorf("encode cron config: %w", err)
	}
	slots, err := json.Marshal(j.UpcomingRegressions())
	if err != nil {
		return cronJobRow{}, fmt.Errorf("encode regression slots: %w", err)
	}
	return cronJobRow{
		ID:                     j.ID(),
		ReleaseID:              string(j.ReleaseID()),
		Stage1Status:           string(j.StageStatusFor(release.StageKickoff)),
		Stage2Status:           string(j.StageStatusFor(release.StageRegression)),
		Stage3Status:           string(j.StageStatusFor(release.StagePostRegression)),
		CronStatus:             string(j.CronStatus()),
		PauseType:              string(j.PauseReason()),
		AutoTransitionToStage2: j.AutoTransitionToStage2(),
		AutoTransitionToStage3: j.AutoTransitionToStage3(),
		CronConfig:             cfg,
		UpcomingRegressions:    slots,
		LockedBy:               j.LockedBy(),
		LockedAt:               j.LockedAt(),
		LockTimeoutSec:         j.LockTimeoutSec(),
		Version:                j.Version(),
		CreatedAt:              j.CreatedAt(),
		UpdatedAt:              j.UpdatedAt(),
	}, nil
}

func (row cronJobRow) aggregate() (*pipeline.CronJob, error) {
	var cfg pipeline.CronConfig
	if len(row.CronConfig) > 0 {
		if err := json.Unmarshal(row.CronConfig, &cfg); err != nil {
			return nil, fmt.Errorf("decode cron config for release %s: %w", row.ReleaseID, err)
		}
	}
	var slots []pipeline.RegressionSlot
	if len(row.UpcomingRegressions) > 0 {
		if err := json.Unmarshal(row.UpcomingRegressions, &slots); err != nil {
			return nil, fmt.Errorf("decode regression slots for release %s: %w", row.ReleaseID, err)
		}
	}
	return pipeline.ReconstructCronJob(pipeline.ReconstructCronJobParams{
		ID:                     row.ID,
		ReleaseID:              release.ReleaseID(row.ReleaseID),
		Stage1Status:           pipeline.StageStatus(row.Stage1Status),
		Stage2Status:           pipeline.StageStatus(row.Stage2Status),
		Stage3Status:           pipeline.StageStatus(row.Stage3Status),
		CronStatus:             pipeline.CronStatus(row.CronStatus),
		PauseType:              pipeline.PauseType(row.PauseType),
		AutoTransitionToStage2: row.AutoTransitionToStage2,
		AutoTransitionToStage3: row.AutoTransitionToStage3,
		Config:                 cfg,
		UpcomingRegressions:    slots,
		LockedBy:               row.LockedBy,
		LockedAt:               row.LockedAt,
		LockTimeoutSec:         row.LockTimeoutSec,
		Version:                row.Version,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}), nil
}

const cronJobColumns = `id, release_id, stage1_status, stage2_status, stage3_status,
	cron_status, pause_type, auto_transition_to_stage2, auto_transition_to_stage3,
	cron_config, upcoming_regressions, locked_by, locked_at, lock_timeout_sec,
	version, created_at, updated_at`

func (r *cronJobRepo) Create(ctx context.Context, job *pipeline.CronJob) error {
	row, err := cronJobToRow(job)
	if err != nil {
		return err
	}
	_, err = sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO cron_jobs (`+cronJobColumns+`)
		VALUES (:id, :release_id, :stage1_status, :stage2_status, :stage3_status,
			:cron_status, :pause_type, :auto_transition_to_stage2, :auto_transition_to_stage3,
			:cron_config, :upcoming_regressions, :locked_by, :locked_at, :lock_timeout_sec,
			:version, :created_at, :updated_at)`,
		row)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("cron job for release %s already exists", job.ReleaseID())
		}
		return fmt.Errorf("insert cron job for release %s: %w", job.ReleaseID(), err)
	}
	return nil
}

func (r *cronJobRepo) FindByReleaseID(ctx context.Context, releaseID release.ReleaseID) (*pipeline.CronJob, error) {
	var row cronJobRow
	err := r.q.GetContext(ctx, &row,
		`SELECT `+cronJobColumns+` FROM cron_jobs WHERE release_id = $1`, string(releaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: release %s", pipeline.ErrCronJobNotFound, releaseID)
	}
	if err != nil {
		return nil, fmt.Errorf("select cron job for release %s: %w", releaseID, err)
	}
	return row.aggregate()
}

func (r *cronJobRepo) FindRunningCandidates(ctx context.Context) ([]*pipeline.CronJob, error) {
	var rows []cronJobRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT `+cronJobColumns+` FROM cron_jobs
		WHERE cron_status = $1
		ORDER BY release_id`, string(pipeline.CronRunning))
	if err != nil {
		return nil, fmt.Errorf("select running cron jobs: %w", err)
	}
	out := make([]*pipeline.CronJob, 0, len(rows))
	for _, row := range rows {
		job, err := row.aggregate()
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// Update applies an optimistic version check: the aggregate must carry
// the version it was read at, and the row advances by one. The lease
// columns are owned by the lease operations and stay untouched.
func (r *cronJobRepo) Update(ctx context.Context, job *pipeline.CronJob) error {
	row, err := cronJobToRow(job)
	if err != nil {
		return err
	}
	res, err := sqlx.NamedExecContext(ctx, r.q, `
		UPDATE cron_jobs SET
			stage1_status = :stage1_status,
			stage2_status = :stage2_status,
			stage3_status = :stage3_status,
			cron_status = :cron_status,
			pause_type = :pause_type,
			auto_transition_to_stage2 = :auto_transition_to_stage2,
			auto_transition_to_stage3 = :auto_transition_to_stage3,
			cron_config = :cron_config,
			upcoming_regressions = :upcoming_regressions,
			lock_timeout_sec = :lock_timeout_sec,
			version = version + 1,
			updated_at = :updated_at
		WHERE release_id = :release_id AND version = :version`,
		row)
	if err != nil {
		return fmt.Errorf("update cron job for release %s: %w", job.ReleaseID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cron job for release %s: %w", job.ReleaseID(), err)
	}
	if n == 0 {
		return r.staleOrMissing(ctx, job.ReleaseID(), job.Version())
	}
	return nil
}

// staleOrMissing tells a vanished row apart from a moved version, so
// callers holding a stale aggregate know to refetch.
func (r *cronJobRepo) staleOrMissing(ctx context.Context, releaseID release.ReleaseID, have int) error {
	var current int
	err := r.q.GetContext(ctx, &current,
		`SELECT version FROM cron_jobs WHERE release_id = $1`, string(releaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: release %s", pipeline.ErrCronJobNotFound, releaseID)
	}
	if err != nil {
		return fmt.Errorf("check cron job version for release %s: %w", releaseID, err)
	}
	return fmt.Errorf("%w: have %d, row is %d", pipeline.ErrStaleCronJob, have, current)
}

// AcquireLease takes the advisory lease in one compare-and-set
// statement. A free lease, an expired one, or the caller's own lease
// all count as acquirable. Taking it advances the version like any
// other write.
func (r *cronJobRepo) AcquireLease(ctx context.Context, releaseID release.ReleaseID, owner string, now time.Time) (bool, error) {
	if owner == "" {
		return false, fmt.Errorf("lease owner cannot be empty")
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE cron_jobs SET
			locked_by = $1,
			locked_at = $2,
			version = version + 1
		WHERE release_id = $3
		  AND (locked_by IS NULL
		       OR locked_by = $1
		       OR locked_at IS NULL
		       OR locked_at + make_interval(secs => lock_timeout_sec) < $2)`,
		owner, now, string(releaseID))
	if err != nil {
		return false, fmt.Errorf("acquire lease for release %s: %w", releaseID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease for release %s: %w", releaseID, err)
	}
	if n == 0 {
		if err := r.mustExist(ctx, releaseID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// RenewLease refreshes the lease timestamp while the owner still holds
// it. Losing the race to an expiry takeover shows up as a false return.
func (r *cronJobRepo) RenewLease(ctx context.Context, releaseID release.ReleaseID, owner string, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE cron_jobs SET locked_at = $1
		WHERE release_id = $2 AND locked_by = $3`,
		now, string(releaseID), owner)
	if err != nil {
		return false, fmt.Errorf("renew lease for release %s: %w", releaseID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("renew lease for release %s: %w", releaseID, err)
	}
	if n == 0 {
		if err := r.mustExist(ctx, releaseID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *cronJobRepo) ReleaseLease(ctx context.Context, releaseID release.ReleaseID, owner string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE cron_jobs SET locked_by = NULL, locked_at = NULL
		WHERE release_id = $1 AND locked_by = $2`,
		string(releaseID), owner)
	if err != nil {
		return fmt.Errorf("release lease for release %s: %w", releaseID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release lease for release %s: %w", releaseID, err)
	}
	if n == 0 {
		// Either the row is gone or an expiry takeover moved the lease.
		// The latter is not an error.
		return r.mustExist(ctx, releaseID)
	}
	return nil
}

func (r *cronJobRepo) mustExist(ctx context.Context, releaseID release.ReleaseID) error {
	var exists bool
	err := r.q.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM cron_jobs WHERE release_id = $1)`, string(releaseID))
	if err != nil {
		return fmt.Errorf("check cron job for release %s: %w", releaseID, err)
	}
	if !exists {
		return fmt.Errorf("%w: release %s", pipeline.ErrCronJobNotFound, releaseID)
	}
	return nil
}

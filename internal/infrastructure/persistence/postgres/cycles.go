package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/release"
)

type cycleRepo struct{ q querier }

type cycleRow struct {
	ID        string    `db:"id"`
	ReleaseID string    `db:"release_id"`
	CycleTag  string    `db:"cycle_tag"`
	Status    string    `db:"status"`
	IsLatest  bool      `db:"is_latest"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row cycleRow) entity() *pipeline.RegressionCycle {
	return pipeline.ReconstructCycle(pipeline.ReconstructCycleParams{
		ID:        row.ID,
		ReleaseID: release.ReleaseID(row.ReleaseID),
		CycleTag:  row.CycleTag,
		Status:    pipeline.CycleStatus(row.Status),
		IsLatest:  row.IsLatest,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	})
}

const cycleColumns = `id, release_id, cycle_tag, status, is_latest, created_at, updated_at`

// Create inserts the cycle and claims its tag number. The partial
// unique index rejects a second latest cycle, so callers must demote
// the previous one first.
func (r *cycleRepo) Create(ctx context.Context, cycle *pipeline.RegressionCycle) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO regression_cycles (`+cycleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cycle.ID(), string(cycle.ReleaseID()), cycle.CycleTag(),
		string(cycle.Status()), cycle.IsLatest(), cycle.CreatedAt(), cycle.UpdatedAt())
	if err != nil {
		if isUniqueViolation(err, "regression_cycles_latest_idx") {
			return fmt.Errorf("release %s already has a latest cycle", cycle.ReleaseID())
		}
		if isUniqueViolation(err, "") {
			return fmt.Errorf("cycle %s already exists", cycle.ID())
		}
		return fmt.Errorf("insert cycle %s: %w", cycle.ID(), err)
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO cycle_tag_counters (release_id, claimed)
		VALUES ($1, 1)
		ON CONFLICT (release_id) DO UPDATE SET claimed = cycle_tag_counters.claimed + 1`,
		string(cycle.ReleaseID()))
	if err != nil {
		return fmt.Errorf("claim cycle tag for release %s: %w", cycle.ReleaseID(), err)
	}
	return nil
}

func (r *cycleRepo) FindByID(ctx context.Context, id string) (*pipeline.RegressionCycle, error) {
	var row cycleRow
	err := r.q.GetContext(ctx, &row,
		`SELECT `+cycleColumns+` FROM regression_cycles WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrCycleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select cycle %s: %w", id, err)
	}
	return row.entity(), nil
}

func (r *cycleRepo) FindLatest(ctx context.Context, releaseID release.ReleaseID) (*pipeline.RegressionCycle, error) {
	var row cycleRow
	err := r.q.GetContext(ctx, &row, `
		SELECT `+cycleColumns+` FROM regression_cycles
		WHERE release_id = $1 AND is_latest`,
		string(releaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: release %s", pipeline.ErrCycleNotFound, releaseID)
	}
	if err != nil {
		return nil, fmt.Errorf("select latest cycle for release %s: %w", releaseID, err)
	}
	return row.entity(), nil
}

func (r *cycleRepo) FindAll(ctx context.Context, releaseID release.ReleaseID) ([]*pipeline.RegressionCycle, error) {
	var rows []cycleRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT `+cycleColumns+` FROM regression_cycles
		WHERE release_id = $1
		ORDER BY created_at, id`,
		string(releaseID))
	if err != nil {
		return nil, fmt.Errorf("select cycles for release %s: %w", releaseID, err)
	}
	out := make([]*pipeline.RegressionCycle, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.entity())
	}
	return out, nil
}

func (r *cycleRepo) Update(ctx context.Context, cycle *pipeline.RegressionCycle) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE regression_cycles SET
			status = $1, is_latest = $2, updated_at = $3
		WHERE id = $4`,
		string(cycle.Status()), cycle.IsLatest(), cycle.UpdatedAt(), cycle.ID())
	if err != nil {
		if isUniqueViolation(err, "regression_cycles_latest_idx") {
			return fmt.Errorf("release %s already has a latest cycle", cycle.ReleaseID())
		}
		return fmt.Errorf("update cycle %s: %w", cycle.ID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cycle %s: %w", cycle.ID(), err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", pipeline.ErrCycleNotFound, cycle.ID())
	}
	return nil
}

func (r *cycleRepo) CountByRelease(ctx context.Context, releaseID release.ReleaseID) (int, error) {
	var count int
	err := r.q.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM regression_cycles WHERE release_id = $1`, string(releaseID))
	if err != nil {
		return 0, fmt.Errorf("count cycles for release %s: %w", releaseID, err)
	}
	return count, nil
}

func (r *cycleRepo) CountTagsByRelease(ctx context.Context, releaseID release.ReleaseID) (int, error) {
	var claimed int
	err := r.q.GetContext(ctx, &claimed,
		`SELECT COALESCE(
			(SELECT claimed FROM cycle_tag_counters WHERE release_id = $1), 0)`,
		string(releaseID))
	if err != nil {
		return 0, fmt.Errorf("count cycle tags for release %s: %w", releaseID, err)
	}
	return claimed, nil
}

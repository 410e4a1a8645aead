package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/railhead-io/railhead/internal/domain/release"
)

type mappingRepo struct{ q querier }

// ReplaceForRelease swaps the release's mapping set. Callers run it
// inside WithinTx so the delete and the insert land together.
func (r *mappingRepo) ReplaceForRelease(ctx context.Context, releaseID release.ReleaseID, mappings release.Mappings) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM release_platforms_targets_mapping WHERE release_id = $1`, string(releaseID))
	if err != nil {
		return fmt.Errorf("clear mappings for release %s: %w", releaseID, err)
	}
	if len(mappings) == 0 {
		return nil
	}
	_, err = sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO release_platforms_targets_mapping (release_id, platform, target, version, pm_run_id, test_run_id)
		VALUES (:release_id, :platform, :target, :version, :pm_run_id, :test_run_id)`,
		[]release.PlatformTargetMapping(mappings))
	if err != nil {
		return fmt.Errorf("insert mappings for release %s: %w", releaseID, err)
	}
	return nil
}

func (r *mappingRepo) FindByRelease(ctx context.Context, releaseID release.ReleaseID) (release.Mappings, error) {
	var out release.Mappings
	err := r.q.SelectContext(ctx, &out, `
		SELECT release_id, platform, target, version, pm_run_id, test_run_id
		FROM release_platforms_targets_mapping
		WHERE release_id = $1
		ORDER BY platform`,
		string(releaseID))
	if err != nil {
		return nil, fmt.Errorf("select mappings for release %s: %w", releaseID, err)
	}
	return out, nil
}

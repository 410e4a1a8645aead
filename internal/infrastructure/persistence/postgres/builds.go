package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/release"
)

type buildRepo struct{ q querier }

const buildColumns = `id, release_id, regression_id, platform, kind,
	build_number, workflow_ref, triggered_at`

func (r *buildRepo) Create(ctx context.Context, build pipeline.Build) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO builds (`+buildColumns+`)
		VALUES (:id, :release_id, :regression_id, :platform, :kind,
			:build_number, :workflow_ref, :triggered_at)`,
		build)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("build %s already exists", build.ID)
		}
		return fmt.Errorf("insert build %s: %w", build.ID, err)
	}
	return nil
}

func (r *buildRepo) FindByRelease(ctx context.Context, releaseID release.ReleaseID) ([]pipeline.Build, error) {
	var out []pipeline.Build
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+buildColumns+` FROM builds
		WHERE release_id = $1
		ORDER BY triggered_at DESC, id DESC`,
		string(releaseID))
	if err != nil {
		return nil, fmt.Errorf("select builds for release %s: %w", releaseID, err)
	}
	return out, nil
}

func (r *buildRepo) FindByRegressionCycle(ctx context.Context, regressionID string) ([]pipeline.Build, error) {
	var out []pipeline.Build
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+buildColumns+` FROM builds
		WHERE regression_id = $1
		ORDER BY triggered_at DESC, id DESC`,
		regressionID)
	if err != nil {
		return nil, fmt.Errorf("select builds for cycle %s: %w", regressionID, err)
	}
	return out, nil
}

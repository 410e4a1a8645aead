package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/railhead-io/railhead/internal/domain/release"
)

type uploadRepo struct{ q querier }

const uploadColumns = `id, release_id, stage, platform, file_name, artifact_path,
	download_url, size_bytes, uploaded_by, uploaded_at`

// Create upserts on the (release, stage, platform) slot: re-uploading a
// platform's build replaces the previous artifact record.
func (r *uploadRepo) Create(ctx context.Context, upload release.ReleaseUpload) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO release_uploads (`+uploadColumns+`)
		VALUES (:id, :release_id, :stage, :platform, :file_name, :artifact_path,
			:download_url, :size_bytes, :uploaded_by, :uploaded_at)
		ON CONFLICT ON CONSTRAINT release_uploads_slot_key DO UPDATE SET
			id = EXCLUDED.id,
			file_name = EXCLUDED.file_name,
			artifact_path = EXCLUDED.artifact_path,
			download_url = EXCLUDED.download_url,
			size_bytes = EXCLUDED.size_bytes,
			uploaded_by = EXCLUDED.uploaded_by,
			uploaded_at = EXCLUDED.uploaded_at`,
		upload)
	if err != nil {
		return fmt.Errorf("upsert upload for release %s %s/%s: %w",
			upload.ReleaseID, upload.Stage, upload.Platform, err)
	}
	return nil
}

func (r *uploadRepo) FindByRelease(ctx context.Context, releaseID release.ReleaseID) ([]release.ReleaseUpload, error) {
	var out []release.ReleaseUpload
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+uploadColumns+` FROM release_uploads
		WHERE release_id = $1
		ORDER BY uploaded_at DESC, id DESC`,
		string(releaseID))
	if err != nil {
		return nil, fmt.Errorf("select uploads for release %s: %w", releaseID, err)
	}
	return out, nil
}

func (r *uploadRepo) FindByReleaseAndStage(ctx context.Context, releaseID release.ReleaseID, stage release.Stage) ([]release.ReleaseUpload, error) {
	var out []release.ReleaseUpload
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+uploadColumns+` FROM release_uploads
		WHERE release_id = $1 AND stage = $2
		ORDER BY uploaded_at DESC, id DESC`,
		string(releaseID), string(stage))
	if err != nil {
		return nil, fmt.Errorf("select uploads for release %s stage %s: %w", releaseID, stage, err)
	}
	return out, nil
}

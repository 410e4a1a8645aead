package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/railhead-io/railhead/internal/domain/release"
)

type releaseRepo struct{ q querier }

type releaseRow struct {
	ID                   string     `db:"id"`
	TenantID             string     `db:"tenant_id"`
	Type                 string     `db:"type"`
	Status               string     `db:"status"`
	Branch               string     `db:"branch"`
	BaseBranch           string     `db:"base_branch"`
	ConfigID             string     `db:"config_id"`
	TargetReleaseDate    time.Time  `db:"target_release_date"`
	KickOffDate          time.Time  `db:"kick_off_date"`
	KickOffReminderDate  *time.Time `db:"kick_off_reminder_date"`
	HasManualBuildUpload bool       `db:"has_manual_build_upload"`
	CreatedByAccountID   string     `db:"created_by_account_id"`
	PilotAccountID       string     `db:"pilot_account_id"`
	LastUpdatedAccountID string     `db:"last_updated_account_id"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

func releaseToRow(r *release.Release) releaseRow {
	return releaseRow{
		ID:                   string(r.ID()),
		TenantID:             r.TenantID(),
		Type:                 string(r.Type()),
		Status:               string(r.Status()),
		Branch:               r.Branch(),
		BaseBranch:           r.BaseBranch(),
		ConfigID:             r.ConfigID(),
		TargetReleaseDate:    r.TargetReleaseDate(),
		KickOffDate:          r.KickOffDate(),
		KickOffReminderDate:  r.KickOffReminderDate(),
		HasManualBuildUpload: r.HasManualBuildUpload(),
		CreatedByAccountID:   r.CreatedByAccountID(),
		PilotAccountID:       r.PilotAccountID(),
		LastUpdatedAccountID: r.LastUpdatedAccountID(),
		CreatedAt:            r.CreatedAt(),
		UpdatedAt:            r.UpdatedAt(),
	}
}

func (row releaseRow) aggregate() *release.Release {
	return release.ReconstructRelease(release.ReconstructReleaseParams{
		ID:                   release.ReleaseID(row.ID),
		TenantID:             row.TenantID,
		Type:                 release.Type(row.Type),
		Status:               release.Status(row.Status),
		Branch:               row.Branch,
		BaseBranch:           row.BaseBranch,
		ConfigID:             row.ConfigID,
		TargetReleaseDate:    row.TargetReleaseDate,
		KickOffDate:          row.KickOffDate,
		KickOffReminderDate:  row.KickOffReminderDate,
		HasManualBuildUpload: row.HasManualBuildUpload,
		CreatedByAccountID:   row.CreatedByAccountID,
		PilotAccountID:       row.PilotAccountID,
		LastUpdatedAccountID: row.LastUpdatedAccountID,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	})
}

const releaseColumns = `id, tenant_id, type, status, branch, base_branch, config_id,
	target_release_date, kick_off_date, kick_off_reminder_date,
	has_manual_build_upload, created_by_account_id, pilot_account_id,
	last_updated_account_id, created_at, updated_at`

func (r *releaseRepo) Create(ctx context.Context, rel *release.Release) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO releases (`+releaseColumns+`)
		VALUES (:id, :tenant_id, :type, :status, :branch, :base_branch, :config_id,
			:target_release_date, :kick_off_date, :kick_off_reminder_date,
			:has_manual_build_upload, :created_by_account_id, :pilot_account_id,
			:last_updated_account_id, :created_at, :updated_at)`,
		releaseToRow(rel))
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("release %s already exists", rel.ID())
		}
		return fmt.Errorf("insert release %s: %w", rel.ID(), err)
	}
	return nil
}

func (r *releaseRepo) FindByID(ctx context.Context, id release.ReleaseID) (*release.Release, error) {
	var row releaseRow
	err := r.q.GetContext(ctx, &row,
		`SELECT `+releaseColumns+` FROM releases WHERE id = $1`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", release.ErrReleaseNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select release %s: %w", id, err)
	}
	return row.aggregate(), nil
}

func (r *releaseRepo) FindByTenant(ctx context.Context, tenantID string) ([]*release.Release, error) {
	var rows []releaseRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT `+releaseColumns+` FROM releases
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("select releases for tenant %s: %w", tenantID, err)
	}
	out := make([]*release.Release, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.aggregate())
	}
	return out, nil
}

func (r *releaseRepo) FindByStatus(ctx context.Context, status release.Status) ([]*release.Release, error) {
	var rows []releaseRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT `+releaseColumns+` FROM releases
		WHERE status = $1
		ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("select releases by status %s: %w", status, err)
	}
	out := make([]*release.Release, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.aggregate())
	}
	return out, nil
}

func (r *releaseRepo) Update(ctx context.Context, rel *release.Release) error {
	res, err := sqlx.NamedExecContext(ctx, r.q, `
		UPDATE releases SET
			tenant_id = :tenant_id,
			type = :type,
			status = :status,
			branch = :branch,
			base_branch = :base_branch,
			config_id = :config_id,
			target_release_date = :target_release_date,
			kick_off_date = :kick_off_date,
			kick_off_reminder_date = :kick_off_reminder_date,
			has_manual_build_upload = :has_manual_build_upload,
			pilot_account_id = :pilot_account_id,
			last_updated_account_id = :last_updated_account_id,
			updated_at = :updated_at
		WHERE id = :id`,
		releaseToRow(rel))
	if err != nil {
		return fmt.Errorf("update release %s: %w", rel.ID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update release %s: %w", rel.ID(), err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", release.ErrReleaseNotFound, rel.ID())
	}
	return nil
}

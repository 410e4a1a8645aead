package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/railhead-io/railhead/internal/domain/release"
)

type configRepo struct{ q querier }

type configRow struct {
	ID                     string    `db:"id"`
	TenantID               string    `db:"tenant_id"`
	Name                   string    `db:"name"`
	SCMProvider            string    `db:"scm_provider"`
	CICDProvider           string    `db:"cicd_provider"`
	PMProvider             string    `db:"pm_provider"`
	TestManagementProvider string    `db:"test_management_provider"`
	MessagingProvider      string    `db:"messaging_provider"`
	Settings               []byte    `db:"settings"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

func configToRow(cfg *release.ReleaseConfig) (configRow, error) {
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return configRow{}, fmt.Errorf("encode settings for config %s: %w", cfg.ID, err)
	}
	return configRow{
		ID:                     cfg.ID,
		TenantID:               cfg.TenantID,
		Name:                   cfg.Name,
		SCMProvider:            cfg.SCMProvider,
		CICDProvider:           cfg.CICDProvider,
		PMProvider:             cfg.PMProvider,
		TestManagementProvider: cfg.TestManagementProvider,
		MessagingProvider:      cfg.MessagingProvider,
		Settings:               settings,
		CreatedAt:              cfg.CreatedAt,
		UpdatedAt:              cfg.UpdatedAt,
	}, nil
}

func (row configRow) entity() (*release.ReleaseConfig, error) {
	var settings release.ConfigSettings
	if len(row.Settings) > 0 {
		if err := json.Unmarshal(row.Settings, &settings); err != nil {
			return nil, fmt.Errorf("decode settings for config %s: %w", row.ID, err)
		}
	}
	return &release.ReleaseConfig{
		ID:                     row.ID,
		TenantID:               row.TenantID,
		Name:                   row.Name,
		SCMProvider:            row.SCMProvider,
		CICDProvider:           row.CICDProvider,
		PMProvider:             row.PMProvider,
		TestManagementProvider: row.TestManagementProvider,
		MessagingProvider:      row.MessagingProvider,
		Settings:               settings,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}, nil
}

const configColumns = `id, tenant_id, name, scm_provider, cicd_provider, pm_provider,
	test_management_provider, messaging_provider, settings, created_at, updated_at`

func (r *configRepo) Create(ctx context.Context, cfg *release.ReleaseConfig) error {
	row, err := configToRow(cfg)
	if err != nil {
		return err
	}
	_, err = sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO release_configs (`+configColumns+`)
		VALUES (:id, :tenant_id, :name, :scm_provider, :cicd_provider, :pm_provider,
			:test_management_provider, :messaging_provider, :settings, :created_at, :updated_at)`,
		row)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("release config %s already exists", cfg.ID)
		}
		return fmt.Errorf("insert release config %s: %w", cfg.ID, err)
	}
	return nil
}

func (r *configRepo) FindByID(ctx context.Context, id string) (*release.ReleaseConfig, error) {
	var row configRow
	err := r.q.GetContext(ctx, &row,
		`SELECT `+configColumns+` FROM release_configs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", release.ErrConfigNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select release config %s: %w", id, err)
	}
	return row.entity()
}

func (r *configRepo) FindByTenant(ctx context.Context, tenantID string) ([]*release.ReleaseConfig, error) {
	var rows []configRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT `+configColumns+` FROM release_configs
		WHERE tenant_id = $1
		ORDER BY id`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("select release configs for tenant %s: %w", tenantID, err)
	}
	out := make([]*release.ReleaseConfig, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.entity()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (r *configRepo) Update(ctx context.Context, cfg *release.ReleaseConfig) error {
	row, err := configToRow(cfg)
	if err != nil {
		return err
	}
	res, err := sqlx.NamedExecContext(ctx, r.q, `
		UPDATE release_configs SET
			tenant_id = :tenant_id,
			name = :name,
			scm_provider = :scm_provider,
			cicd_provider = :cicd_provider,
			pm_provider = :pm_provider,
			test_management_provider = :test_management_provider,
			messaging_provider = :messaging_provider,
			settings = :settings,
			updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return fmt.Errorf("update release config %s: %w", cfg.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update release config %s: %w", cfg.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", release.ErrConfigNotFound, cfg.ID)
	}
	return nil
}

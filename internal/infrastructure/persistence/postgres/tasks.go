package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/release"
)

type taskRepo struct{ q querier }

type taskRow struct {
	ID           string    `db:"id"`
	ReleaseID    string    `db:"release_id"`
	RegressionID *string   `db:"regression_id"`
	Type         string    `db:"type"`
	Stage        string    `db:"stage"`
	Status       string    `db:"status"`
	ExternalID   *string   `db:"external_id"`
	ExternalData []byte    `db:"external_data"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func taskToRow(t *pipeline.ReleaseTask) (taskRow, error) {
	data, err := t.ExternalData().JSON()
	if err != nil {
		return taskRow{}, fmt.Errorf("encode external data for task %s: %w", t.ID(), err)
	}
	return taskRow{
		ID:           t.ID(),
		ReleaseID:    string(t.ReleaseID()),
		RegressionID: t.RegressionID(),
		Type:         string(t.Type()),
		Stage:        string(t.Stage()),
		Status:       string(t.Status()),
		ExternalID:   t.ExternalID(),
		ExternalData: data,
		CreatedAt:    t.CreatedAt(),
		UpdatedAt:    t.UpdatedAt(),
	}, nil
}

func (row taskRow) entity() (*pipeline.ReleaseTask, error) {
	data, err := pipeline.ParseExternalData(row.ExternalData)
	if err != nil {
		return nil, fmt.Errorf("decode external data for task %s: %w", row.ID, err)
	}
	return pipeline.ReconstructTask(pipeline.ReconstructTaskParams{
		ID:           row.ID,
		ReleaseID:    release.ReleaseID(row.ReleaseID),
		RegressionID: row.RegressionID,
		Type:         pipeline.TaskType(row.Type),
		Stage:        release.Stage(row.Stage),
		Status:       pipeline.TaskStatus(row.Status),
		ExternalID:   row.ExternalID,
		ExternalData: data,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}), nil
}

// sortRowsCatalog orders task rows the way the pipeline runs them: by
// catalog position, then by creation time for types outside the catalog.
func sortRowsCatalog(rows []taskRow) {
	order := func(raw string) int {
		spec, ok := pipeline.SpecFor(pipeline.TaskType(raw))
		if !ok {
			return int(^uint(0) >> 1)
		}
		return spec.Order
	}
	sort.Slice(rows, func(i, j int) bool {
		oi, oj := order(rows[i].Type), order(rows[j].Type)
		if oi != oj {
			return oi < oj
		}
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
}

func taskEntities(rows []taskRow) ([]*pipeline.ReleaseTask, error) {
	out := make([]*pipeline.ReleaseTask, 0, len(rows))
	for _, row := range rows {
		t, err := row.entity()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

const taskColumns = `id, release_id, regression_id, type, stage, status,
	external_id, external_data, created_at, updated_at`

func (r *taskRepo) BulkCreate(ctx context.Context, tasks []*pipeline.ReleaseTask) error {
	if len(tasks) == 0 {
		return nil
	}
	rows := make([]taskRow, 0, len(tasks))
	for _, t := range tasks {
		row, err := taskToRow(t)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	// sqlx expands a slice bind into one multi-row VALUES statement.
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO release_tasks (`+taskColumns+`)
		VALUES (:id, :release_id, :regression_id, :type, :stage, :status,
			:external_id, :external_data, :created_at, :updated_at)`,
		rows)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("task batch collides with existing task ids: %w", err)
		}
		return fmt.Errorf("insert %d tasks: %w", len(tasks), err)
	}
	return nil
}

func (r *taskRepo) FindByID(ctx context.Context, id string) (*pipeline.ReleaseTask, error) {
	var row taskRow
	err := r.q.GetContext(ctx, &row,
		`SELECT `+taskColumns+` FROM release_tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select task %s: %w", id, err)
	}
	return row.entity()
}

func (r *taskRepo) FindByReleaseAndStage(ctx context.Context, releaseID release.ReleaseID, stage release.Stage) ([]*pipeline.ReleaseTask, error) {
	var rows []taskRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT `+taskColumns+` FROM release_tasks
		WHERE release_id = $1 AND stage = $2`,
		string(releaseID), string(stage))
	if err != nil {
		return nil, fmt.Errorf("select tasks for release %s stage %s: %w", releaseID, stage, err)
	}
	sortRowsCatalog(rows)
	return taskEntities(rows)
}

func (r *taskRepo) FindByTaskType(ctx context.Context, releaseID release.ReleaseID, taskType pipeline.TaskType) ([]*pipeline.ReleaseTask, error) {
	var rows []taskRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT `+taskColumns+` FROM release_tasks
		WHERE release_id = $1 AND type = $2
		ORDER BY created_at DESC, id DESC`,
		string(releaseID), string(taskType))
	if err != nil {
		return nil, fmt.Errorf("select %s tasks for release %s: %w", taskType, releaseID, err)
	}
	return taskEntities(rows)
}

func (r *taskRepo) FindByRegressionCycle(ctx context.Context, regressionID string) ([]*pipeline.ReleaseTask, error) {
	var rows []taskRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT `+taskColumns+` FROM release_tasks
		WHERE regression_id = $1`,
		regressionID)
	if err != nil {
		return nil, fmt.Errorf("select tasks for cycle %s: %w", regressionID, err)
	}
	sortRowsCatalog(rows)
	return taskEntities(rows)
}

func (r *taskRepo) Update(ctx context.Context, task *pipeline.ReleaseTask) error {
	row, err := taskToRow(task)
	if err != nil {
		return err
	}
	res, err := sqlx.NamedExecContext(ctx, r.q, `
		UPDATE release_tasks SET
			status = :status,
			external_id = :external_id,
			external_data = :external_data,
			updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID(), err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", pipeline.ErrTaskNotFound, task.ID())
	}
	return nil
}

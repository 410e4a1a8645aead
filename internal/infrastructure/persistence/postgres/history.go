package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/railhead-io/railhead/internal/domain/release"
)

type historyRepo struct{ q querier }

// historyItemRow adds the persisted position, so items come back in the
// order the entry recorded them.
type historyItemRow struct {
	ID        string `db:"id"`
	HistoryID string `db:"history_id"`
	Ord       int    `db:"ord"`
	Field     string `db:"field"`
	OldValue  string `db:"old_value"`
	NewValue  string `db:"new_value"`
}

func (r *historyRepo) Append(ctx context.Context, entry *release.StateHistory) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO state_history (id, release_id, action, account_id, created_at)
		VALUES (:id, :release_id, :action, :account_id, :created_at)`,
		entry)
	if err != nil {
		return fmt.Errorf("insert history entry %s: %w", entry.ID, err)
	}
	if len(entry.Items) == 0 {
		return nil
	}
	rows := make([]historyItemRow, 0, len(entry.Items))
	for i, it := range entry.Items {
		rows = append(rows, historyItemRow{
			ID:        it.ID,
			HistoryID: entry.ID,
			Ord:       i,
			Field:     it.Field,
			OldValue:  it.OldValue,
			NewValue:  it.NewValue,
		})
	}
	_, err = sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO state_history_items (id, history_id, ord, field, old_value, new_value)
		VALUES (:id, :history_id, :ord, :field, :old_value, :new_value)`,
		rows)
	if err != nil {
		return fmt.Errorf("insert history items for entry %s: %w", entry.ID, err)
	}
	return nil
}

func (r *historyRepo) FindByRelease(ctx context.Context, releaseID release.ReleaseID) ([]*release.StateHistory, error) {
	var entries []release.StateHistory
	err := r.q.SelectContext(ctx, &entries, `
		SELECT id, release_id, action, account_id, created_at
		FROM state_history
		WHERE release_id = $1
		ORDER BY created_at DESC, id DESC`,
		string(releaseID))
	if err != nil {
		return nil, fmt.Errorf("select history for release %s: %w", releaseID, err)
	}
	if len(entries) == 0 {
		return []*release.StateHistory{}, nil
	}

	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	var items []historyItemRow
	err = r.q.SelectContext(ctx, &items, `
		SELECT id, history_id, ord, field, old_value, new_value
		FROM state_history_items
		WHERE history_id = ANY($1)
		ORDER BY history_id, ord`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select history items for release %s: %w", releaseID, err)
	}

	byEntry := make(map[string][]release.StateHistoryItem, len(entries))
	for _, it := range items {
		byEntry[it.HistoryID] = append(byEntry[it.HistoryID], release.StateHistoryItem{
			ID:        it.ID,
			HistoryID: it.HistoryID,
			Field:     it.Field,
			OldValue:  it.OldValue,
			NewValue:  it.NewValue,
		})
	}

	out := make([]*release.StateHistory, 0, len(entries))
	for i := range entries {
		h := entries[i]
		h.Items = byEntry[h.ID]
		out = append(out, &h)
	}
	return out, nil
}

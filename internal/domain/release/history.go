package release

import (
	"fmt"
	"time"
)

// HistoryAction identifies what kind of change a state history entry records.
type HistoryAction string

// Audited release actions.
const (
	HistoryActionCreate        HistoryAction = "CREATE"
	HistoryActionStart         HistoryAction = "START"
	HistoryActionPause         HistoryAction = "PAUSE"
	HistoryActionResume        HistoryAction = "RESUME"
	HistoryActionArchive       HistoryAction = "ARCHIVE"
	HistoryActionTriggerStage2 HistoryAction = "TRIGGER_STAGE_2"
	HistoryActionTriggerStage3 HistoryAction = "TRIGGER_STAGE_3"
	HistoryActionRetryTask     HistoryAction = "RETRY_TASK"
	HistoryActionUploadBuild   HistoryAction = "UPLOAD_BUILD"
	HistoryActionStatusChange  HistoryAction = "STATUS_CHANGE"
)

// StateHistory is one append-only audit entry for a release. Entries are
// never updated or deleted.
type StateHistory struct {
	ID        string             `json:"id" db:"id"`
	ReleaseID ReleaseID          `json:"releaseId" db:"release_id"`
	Action    HistoryAction      `json:"action" db:"action"`
	AccountID string             `json:"accountId" db:"account_id"`
	CreatedAt time.Time          `json:"createdAt" db:"created_at"`
	Items     []StateHistoryItem `json:"items,omitempty" db:"-"`
}

// StateHistoryItem records one field-level change inside a history entry.
type StateHistoryItem struct {
	ID        string `json:"id" db:"id"`
	HistoryID string `json:"historyId" db:"history_id"`
	Field     string `json:"field" db:"field"`
	OldValue  string `json:"oldValue" db:"old_value"`
	NewValue  string `json:"newValue" db:"new_value"`
}

// NewStateHistory creates an audit entry with optional field changes.
func NewStateHistory(id string, releaseID ReleaseID, action HistoryAction, accountID string, now time.Time, items ...StateHistoryItem) (*StateHistory, error) {
	if id == "" {
		return nil, fmt.Errorf("history id cannot be empty")
	}
	if releaseID == "" {
		return nil, fmt.Errorf("history release id cannot be empty")
	}
	if action == "" {
		return nil, fmt.Errorf("history action cannot be empty")
	}
	h := &StateHistory{
		ID:        id,
		ReleaseID: releaseID,
		Action:    action,
		AccountID: accountID,
		CreatedAt: now,
		Items:     make([]StateHistoryItem, 0, len(items)),
	}
	for i, it := range items {
		it.HistoryID = id
		if it.ID == "" {
			// Items built with Change carry no id of their own; derive
			// one from the entry so the row key stays unique.
			it.ID = fmt.Sprintf("%s/%d", id, i)
		}
		h.Items = append(h.Items, it)
	}
	return h, nil
}

// Change builds a field-level change item for a history entry.
func Change(field, oldValue, newValue string) StateHistoryItem {
	return StateHistoryItem{Field: field, OldValue: oldValue, NewValue: newValue}
}

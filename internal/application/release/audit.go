package release

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
)

func newID() string { return uuid.NewString() }

// appendHistory records one audit entry for a mutating operation. Every
// use case that changes state appends exactly one entry inside the same
// transaction as the change itself.
func appendHistory(ctx context.Context, s ports.Store, releaseID release.ReleaseID, action release.HistoryAction, accountID string, now time.Time, items ...release.StateHistoryItem) error {
	entry, err := release.NewStateHistory(newID(), releaseID, action, accountID, now, items...)
	if err != nil {
		return err
	}
	return s.History.Append(ctx, entry)
}

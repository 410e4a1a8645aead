package release

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/release"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

func TestPauseReleaseSetsUserRequested(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	uc := NewPauseReleaseUseCase(f.db, f.clock)

	out, err := uc.Execute(context.Background(), PauseReleaseInput{
		ReleaseID: f.relID,
		TenantID:  "tenant-1",
		AccountID: "acct-2",
	})
	require.NoError(t, err)
	assert.False(t, out.AlreadyPaused)
	assert.Equal(t, release.StatusPaused, out.Release.Status)

	job := f.job(t)
	assert.Equal(t, pipeline.CronPaused, job.CronStatus())
	assert.Equal(t, pipeline.PauseUserRequested, job.PauseReason())
	assert.Equal(t, release.StatusPaused, f.release(t).Status())

	entries := f.history(t)
	require.Len(t, entries, 1)
	assert.Equal(t, release.HistoryActionPause, entries[0].Action)
	assert.Equal(t, "acct-2", entries[0].AccountID)
}

func TestPauseReleaseIdempotent(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	uc := NewPauseReleaseUseCase(f.db, f.clock)
	input := PauseReleaseInput{ReleaseID: f.relID, TenantID: "tenant-1", AccountID: "acct-2"}

	_, err := uc.Execute(context.Background(), input)
	require.NoError(t, err)

	out, err := uc.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, out.AlreadyPaused)

	// The repeat call changes nothing and leaves no second audit entry.
	assert.Len(t, f.history(t), 1)
	assert.Equal(t, pipeline.PauseUserRequested, f.job(t).PauseReason())
}

func TestPauseReleaseWrongTenant(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	uc := NewPauseReleaseUseCase(f.db, f.clock)

	_, err := uc.Execute(context.Background(), PauseReleaseInput{
		ReleaseID: f.relID,
		TenantID:  "tenant-2",
		AccountID: "acct-2",
	})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindNotFound))
	assert.Equal(t, release.StatusInProgress, f.release(t).Status())
}

func TestPauseReleaseNotInProgress(t *testing.T) {
	f := newFixture(t)
	uc := NewPauseReleaseUseCase(f.db, f.clock)

	_, err := uc.Execute(context.Background(), PauseReleaseInput{
		ReleaseID: f.relID,
		TenantID:  "tenant-1",
		AccountID: "acct-2",
	})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindConflict))
	assert.Equal(t, release.StatusPending, f.release(t).Status())
}

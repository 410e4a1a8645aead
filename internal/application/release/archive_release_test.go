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

func TestArchiveReleaseFreezesPipeline(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	uc := NewArchiveReleaseUseCase(f.db, f.clock)

	out, err := uc.Execute(context.Background(), ArchiveReleaseInput{ReleaseID: f.relID, AccountID: "acct-1"})
	require.NoError(t, err)
	assert.False(t, out.AlreadyArchived)
	assert.Equal(t, release.StatusArchived, out.Release.Status)

	assert.Equal(t, release.StatusArchived, f.release(t).Status())
	job := f.job(t)
	assert.Equal(t, pipeline.CronCompleted, job.CronStatus())
	// The frozen pipeline keeps whatever stage state it had.
	assert.Equal(t, pipeline.StageInProgress, job.StageStatusFor(release.StageKickoff))

	entries := f.history(t)
	require.Len(t, entries, 1)
	assert.Equal(t, release.HistoryActionArchive, entries[0].Action)
}

func TestArchiveReleaseIdempotent(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	uc := NewArchiveReleaseUseCase(f.db, f.clock)
	input := ArchiveReleaseInput{ReleaseID: f.relID, AccountID: "acct-1"}

	_, err := uc.Execute(context.Background(), input)
	require.NoError(t, err)

	out, err := uc.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, out.AlreadyArchived)
	assert.Len(t, f.history(t), 1)
}

func TestArchiveReleaseCompletedConflict(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	rel := f.release(t)
	require.NoError(t, rel.Complete("acct-1", f.clock.now))
	f.saveRelease(t, rel)

	uc := NewArchiveReleaseUseCase(f.db, f.clock)
	_, err := uc.Execute(context.Background(), ArchiveReleaseInput{ReleaseID: f.relID, AccountID: "acct-1"})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindConflict))
}

package release

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/release"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

func TestResumeReleaseLiftsUserPause(t *testing.T) {
	f := newFixture(t)
	f.begin(t)

	pause := NewPauseReleaseUseCase(f.db, f.clock)
	_, err := pause.Execute(context.Background(), PauseReleaseInput{ReleaseID: f.relID, TenantID: "tenant-1", AccountID: "acct-2"})
	require.NoError(t, err)
	f.clock.now = f.clock.now.Add(time.Minute)

	resume := NewResumeReleaseUseCase(f.db, f.clock)
	out, err := resume.Execute(context.Background(), ResumeReleaseInput{ReleaseID: f.relID, TenantID: "tenant-1", AccountID: "acct-2"})
	require.NoError(t, err)
	assert.Equal(t, pipeline.CronRunning, out.CronStatus)
	assert.Equal(t, release.StatusInProgress, out.Release.Status)

	job := f.job(t)
	assert.Equal(t, pipeline.CronRunning, job.CronStatus())
	assert.Equal(t, pipeline.PauseNone, job.PauseReason())

	entries := f.history(t)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, release.HistoryActionResume, entries[0].Action)
}

func TestResumeReleaseNotPaused(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	uc := NewResumeReleaseUseCase(f.db, f.clock)

	_, err := uc.Execute(context.Background(), ResumeReleaseInput{ReleaseID: f.relID, TenantID: "tenant-1", AccountID: "acct-2"})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindConflict))
	assert.Contains(t, err.Error(), "not paused")
}

func TestResumeReleaseBlockedByTaskFailure(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	job := f.job(t)
	job.MarkTaskFailure(f.clock.now)
	f.saveJob(t, job)

	uc := NewResumeReleaseUseCase(f.db, f.clock)
	_, err := uc.Execute(context.Background(), ResumeReleaseInput{ReleaseID: f.relID, TenantID: "tenant-1", AccountID: "acct-2"})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindConflict))
	assert.Contains(t, err.Error(), "TASK_FAILURE")
}

func TestResumeReleaseBlockedByStageGate(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	job := f.job(t)
	require.NoError(t, job.Pause(pipeline.PauseAwaitingStageTrigger, f.clock.now))
	f.saveJob(t, job)

	uc := NewResumeReleaseUseCase(f.db, f.clock)
	_, err := uc.Execute(context.Background(), ResumeReleaseInput{ReleaseID: f.relID, TenantID: "tenant-1", AccountID: "acct-2"})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindConflict))
	assert.Contains(t, err.Error(), "AWAITING_STAGE_TRIGGER")
}

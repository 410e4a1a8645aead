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

func TestTriggerStageOpensRegression(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	job := f.job(t)
	require.NoError(t, job.CompleteStage(release.StageKickoff, f.clock.now))
	f.saveJob(t, job)

	uc := NewTriggerStageUseCase(f.db, f.clock)
	out, err := uc.Execute(context.Background(), TriggerStageInput{
		ReleaseID: f.relID,
		Stage:     release.StageRegression,
		AccountID: "acct-2",
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageInProgress, out.StageStatus)
	assert.Equal(t, pipeline.CronRunning, out.CronStatus)

	job = f.job(t)
	assert.Equal(t, pipeline.StageInProgress, job.StageStatusFor(release.StageRegression))
	assert.True(t, job.AutoTransitionToStage2())
	assert.Equal(t, pipeline.PauseNone, job.PauseReason())

	entries := f.history(t)
	require.Len(t, entries, 1)
	assert.Equal(t, release.HistoryActionTriggerStage2, entries[0].Action)
}

func TestTriggerStageClearsAwaitingGate(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	job := f.job(t)
	require.NoError(t, job.CompleteStage(release.StageKickoff, f.clock.now))
	require.NoError(t, job.Pause(pipeline.PauseAwaitingStageTrigger, f.clock.now))
	f.saveJob(t, job)

	uc := NewTriggerStageUseCase(f.db, f.clock)
	out, err := uc.Execute(context.Background(), TriggerStageInput{
		ReleaseID: f.relID,
		Stage:     release.StageRegression,
		AccountID: "acct-2",
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.CronRunning, out.CronStatus)
	assert.Equal(t, pipeline.PauseNone, f.job(t).PauseReason())
}

func TestTriggerStageThirdStage(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	job := f.job(t)
	require.NoError(t, job.CompleteStage(release.StageKickoff, f.clock.now))
	require.NoError(t, job.AdvanceToStage(release.StageRegression, f.clock.now))
	require.NoError(t, job.CompleteStage(release.StageRegression, f.clock.now))
	f.saveJob(t, job)

	uc := NewTriggerStageUseCase(f.db, f.clock)
	out, err := uc.Execute(context.Background(), TriggerStageInput{
		ReleaseID: f.relID,
		Stage:     release.StagePostRegression,
		AccountID: "acct-2",
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageInProgress, out.StageStatus)

	job = f.job(t)
	assert.True(t, job.AutoTransitionToStage3())

	entries := f.history(t)
	require.Len(t, entries, 1)
	assert.Equal(t, release.HistoryActionTriggerStage3, entries[0].Action)
}

func TestTriggerStagePriorStageIncomplete(t *testing.T) {
	f := newFixture(t)
	f.begin(t)

	uc := NewTriggerStageUseCase(f.db, f.clock)
	_, err := uc.Execute(context.Background(), TriggerStageInput{
		ReleaseID: f.relID,
		Stage:     release.StageRegression,
		AccountID: "acct-2",
	})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindConflict))
	assert.Equal(t, pipeline.StagePending, f.job(t).StageStatusFor(release.StageRegression))
}

func TestTriggerStageAlreadyOpen(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	job := f.job(t)
	require.NoError(t, job.CompleteStage(release.StageKickoff, f.clock.now))
	require.NoError(t, job.AdvanceToStage(release.StageRegression, f.clock.now))
	f.saveJob(t, job)

	uc := NewTriggerStageUseCase(f.db, f.clock)
	_, err := uc.Execute(context.Background(), TriggerStageInput{
		ReleaseID: f.relID,
		Stage:     release.StageRegression,
		AccountID: "acct-2",
	})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindConflict))
}

func TestTriggerStageRejectsKickoff(t *testing.T) {
	f := newFixture(t)
	uc := NewTriggerStageUseCase(f.db, f.clock)

	_, err := uc.Execute(context.Background(), TriggerStageInput{
		ReleaseID: f.relID,
		Stage:     release.StageKickoff,
		AccountID: "acct-2",
	})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindValidation))
}

func TestTriggerStagePausedRelease(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	rel := f.release(t)
	_, err := rel.Pause("acct-2", f.clock.now)
	require.NoError(t, err)
	f.saveRelease(t, rel)

	uc := NewTriggerStageUseCase(f.db, f.clock)
	_, err = uc.Execute(context.Background(), TriggerStageInput{
		ReleaseID: f.relID,
		Stage:     release.StageRegression,
		AccountID: "acct-2",
	})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindConflict))
	assert.Contains(t, err.Error(), "resume")
}

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

func TestRetryTaskResetsFailedTask(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	seeded := f.seedTask(t, pipeline.TaskForkBranch, pipeline.TaskFailed)
	job := f.job(t)
	job.MarkTaskFailure(f.clock.now)
	f.saveJob(t, job)

	uc := NewRetryTaskUseCase(f.db, f.clock)
	out, err := uc.Execute(context.Background(), RetryTaskInput{TaskID: seeded.ID(), AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, pipeline.TaskPending, out.Status)
	assert.Equal(t, pipeline.CronRunning, out.CronStatus)

	task := f.task(t, seeded.ID())
	assert.Equal(t, pipeline.TaskPending, task.Status())
	assert.NotContains(t, task.ExternalData(), "error")

	job = f.job(t)
	assert.Equal(t, pipeline.CronRunning, job.CronStatus())
	assert.Equal(t, pipeline.PauseNone, job.PauseReason())

	entries := f.history(t)
	require.Len(t, entries, 1)
	assert.Equal(t, release.HistoryActionRetryTask, entries[0].Action)
}

func TestRetryTaskResumesUserPausedPipeline(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	seeded := f.seedTask(t, pipeline.TaskCreateRCTag, pipeline.TaskFailed)
	job := f.job(t)
	require.NoError(t, job.Pause(pipeline.PauseUserRequested, f.clock.now))
	f.saveJob(t, job)

	uc := NewRetryTaskUseCase(f.db, f.clock)
	out, err := uc.Execute(context.Background(), RetryTaskInput{TaskID: seeded.ID(), AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, pipeline.CronRunning, out.CronStatus)

	job = f.job(t)
	assert.Equal(t, pipeline.CronRunning, job.CronStatus())
	assert.Equal(t, pipeline.PauseNone, job.PauseReason())
}

func TestRetryTaskNotFailed(t *testing.T) {
	f := newFixture(t)
	f.begin(t)
	seeded := f.seedTask(t, pipeline.TaskForkBranch, pipeline.TaskCompleted)

	uc := NewRetryTaskUseCase(f.db, f.clock)
	_, err := uc.Execute(context.Background(), RetryTaskInput{TaskID: seeded.ID(), AccountID: "acct-1"})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindConflict))
	assert.Equal(t, pipeline.TaskCompleted, f.task(t, seeded.ID()).Status())
}

func TestRetryTaskNotFound(t *testing.T) {
	f := newFixture(t)
	uc := NewRetryTaskUseCase(f.db, f.clock)

	_, err := uc.Execute(context.Background(), RetryTaskInput{TaskID: "missing", AccountID: "acct-1"})
	require.Error(t, err)
	assert.True(t, rherrors.IsKind(err, rherrors.KindNotFound))
}

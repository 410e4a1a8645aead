package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// RetryTaskInput represents the input for the RetryTask use case.
type RetryTaskInput struct {
	TaskID    string
	AccountID string
}

// Validate validates the RetryTaskInput.
func (i *RetryTaskInput) Validate() error {
	v := NewValidationError()
	v.Add(ValidateTaskID(i.TaskID))
	v.Add(ValidateSafeString(i.AccountID, "account_id", MaxAccountIDLength))
	return v.ToError()
}

// RetryTaskOutput represents the output of the RetryTask use case.
type RetryTaskOutput struct {
	TaskID     string              `json:"taskId"`
	TaskType   pipeline.TaskType   `json:"taskType"`
	Status     pipeline.TaskStatus `json:"status"`
	CronStatus pipeline.CronStatus `json:"cronStatus"`
}

// RetryTaskUseCase puts a failed task back in front of the scheduler.
// The provider is not called inline; the next tick picks the task up
// through the normal chain.
type RetryTaskUseCase struct {
	tx     ports.Transactor
	clock  ports.Clock
	logger *slog.Logger
}

// NewRetryTaskUseCase creates a new RetryTaskUseCase.
func NewRetryTaskUseCase(tx ports.Transactor, clock ports.Clock) *RetryTaskUseCase {
	return &RetryTaskUseCase{
		tx:     tx,
		clock:  clock,
		logger: slog.Default().With("usecase", "retry_task"),
	}
}

// Execute executes the retry task use case.
func (uc *RetryTaskUseCase) Execute(ctx context.Context, input RetryTaskInput) (*RetryTaskOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindValidation, "RetryTask", "invalid input")
	}

	var out *RetryTaskOutput
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s ports.Store) error {
		task, err := loadTask(ctx, s, "RetryTask", input.TaskID)
		if err != nil {
			return err
		}

		now := uc.clock.Now()
		if err := task.ResetForRetry(now); err != nil {
			if errors.Is(err, pipeline.ErrTaskNotFailed) {
				return rherrors.Wrapf(err, rherrors.KindConflict, "RetryTask", "task %s is %s, only failed tasks can be retried", task.Type(), task.Status())
			}
			return rherrors.Wrap(err, rherrors.KindConflict, "RetryTask", "cannot retry task")
		}

		job, err := loadJob(ctx, s, "RetryTask", task.ReleaseID())
		if err != nil {
			return err
		}
		oldPause := job.PauseReason()
		if job.CronStatus() == pipeline.CronPaused {
			if err := job.Resume(now); err != nil {
				return rherrors.Wrap(err, rherrors.KindConflict, "RetryTask", "cannot resume pipeline for retry")
			}
		} else {
			job.ClearPause(now)
		}

		if err := s.Tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		if err := s.CronJobs.Update(ctx, job); err != nil {
			return fmt.Errorf("save cron job: %w", err)
		}
		if err := appendHistory(ctx, s, task.ReleaseID(), release.HistoryActionRetryTask, input.AccountID, now,
			release.Change("task", "", task.Type().String()),
			release.Change("taskStatus", pipeline.TaskFailed.String(), task.Status().String()),
			release.Change("pauseType", oldPause.String(), job.PauseReason().String()),
		); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		out = &RetryTaskOutput{
			TaskID:     task.ID(),
			TaskType:   task.Type(),
			Status:     task.Status(),
			CronStatus: job.CronStatus(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("task queued for retry",
		"task_id", input.TaskID,
		"task_type", out.TaskType,
		"account_id", input.AccountID)
	return out, nil
}

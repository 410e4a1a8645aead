package pipeline

import "errors"

// Domain errors for pipeline operations.
var (
	// ErrCronJobNotFound indicates a cron job was not found.
	ErrCronJobNotFound = errors.New("cron job not found")

	// ErrStaleCronJob indicates the cron job row version moved under an
	// optimistic update.
	ErrStaleCronJob = errors.New("cron job version conflict")

	// ErrInvalidCronTransition indicates an invalid cron status transition.
	ErrInvalidCronTransition = errors.New("invalid cron status transition")

	// ErrInvalidStageTransition indicates an invalid stage status transition.
	ErrInvalidStageTransition = errors.New("invalid stage status transition")

	// ErrInvalidCycleTransition indicates an invalid cycle status transition.
	ErrInvalidCycleTransition = errors.New("invalid cycle status transition")

	// ErrCronNotPaused indicates the pipeline is not paused.
	ErrCronNotPaused = errors.New("pipeline is not paused")

	// ErrResumeBlocked indicates the pipeline is paused for a reason
	// resume cannot clear, such as a failed task.
	ErrResumeBlocked = errors.New("pipeline cannot be resumed")

	// ErrCronCompleted indicates the pipeline already completed.
	ErrCronCompleted = errors.New("pipeline already completed")

	// ErrStageNotReady indicates an earlier stage has not completed.
	ErrStageNotReady = errors.New("earlier stage not completed")

	// ErrStagesIncomplete indicates not every stage has completed.
	ErrStagesIncomplete = errors.New("stages incomplete")

	// ErrLeaseHeld indicates another scheduler holds the lease.
	ErrLeaseHeld = errors.New("lease held by another scheduler")

	// ErrLeaseNotOwned indicates the caller does not own the lease.
	ErrLeaseNotOwned = errors.New("lease not owned by caller")

	// ErrTaskNotFound indicates a task was not found.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskFinal indicates the task already reached an end state.
	ErrTaskFinal = errors.New("task already finished")

	// ErrTaskNotRunning indicates the task is not in progress.
	ErrTaskNotRunning = errors.New("task not in progress")

	// ErrTaskNotFailed indicates a retry on a task that has not failed.
	ErrTaskNotFailed = errors.New("task has not failed")

	// ErrCycleNotFound indicates a regression cycle was not found.
	ErrCycleNotFound = errors.New("regression cycle not found")

	// ErrCorruptPipeline indicates impossible persisted pipeline state.
	ErrCorruptPipeline = errors.New("corrupt pipeline state")
)

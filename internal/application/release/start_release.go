// Package release provides application use cases for release management.
package release

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// StartReleaseInput represents the input for the StartRelease use case.
type StartReleaseInput struct {
	ReleaseID release.ReleaseID
	AccountID string
}

// Validate validates the StartReleaseInput.
func (i *StartReleaseInput) Validate() error {
	v := NewValidationError()
	v.Add(ValidateReleaseID(i.ReleaseID))
	v.Add(ValidateSafeString(i.AccountID, "account_id", MaxAccountIDLength))
	return v.ToError()
}

// StartReleaseOutput represents the output of the StartRelease use case.
type StartReleaseOutput struct {
	Release    release.Summary      `json:"release"`
	CronStatus pipeline.CronStatus  `json:"cronStatus"`
	Stage1     pipeline.StageStatus `json:"stage1Status"`
}

// StartReleaseUseCase opens the kick-off stage and puts the pipeline on
// the scheduler's radar.
type StartReleaseUseCase struct {
	tx     ports.Transactor
	clock  ports.Clock
	logger *slog.Logger
}

// NewStartReleaseUseCase creates a new StartReleaseUseCase.
func NewStartReleaseUseCase(tx ports.Transactor, clock ports.Clock) *StartReleaseUseCase {
	return &StartReleaseUseCase{
		tx:     tx,
		clock:  clock,
		logger: slog.Default().With("usecase", "start_release"),
	}
}

// Execute executes the start release use case.
func (uc *StartReleaseUseCase) Execute(ctx context.Context, input StartReleaseInput) (*StartReleaseOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindValidation, "StartRelease", "invalid input")
	}

	var out *StartReleaseOutput
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s ports.Store) error {
		rel, err := loadRelease(ctx, s, "StartRelease", input.ReleaseID)
		if err != nil {
			return err
		}
		if rel.IsTerminal() {
			return rherrors.Newf(rherrors.KindConflict, "release %s is %s and cannot start", rel.ID(), rel.Status())
		}

		job, err := loadJob(ctx, s, "StartRelease", input.ReleaseID)
		if err != nil {
			return err
		}
		if job.CronStatus() == pipeline.CronRunning {
			return rherrors.Newf(rherrors.KindConflict, "release %s is already running", rel.ID())
		}

		now := uc.clock.Now()
		oldStatus := rel.Status()
		oldCron := job.CronStatus()

		if err := job.Start(now); err != nil {
			return rherrors.Wrap(err, rherrors.KindConflict, "StartRelease", "cannot start pipeline")
		}
		if rel.Status() == release.StatusPending {
			if err := rel.Begin(input.AccountID, now); err != nil {
				return rherrors.Wrap(err, rherrors.KindConflict, "StartRelease", "cannot begin release")
			}
		}

		if err := s.CronJobs.Update(ctx, job); err != nil {
			return fmt.Errorf("save cron job: %w", err)
		}
		if err := s.Releases.Update(ctx, rel); err != nil {
			return fmt.Errorf("save release: %w", err)
		}
		if err := appendHistory(ctx, s, rel.ID(), release.HistoryActionStart, input.AccountID, now,
			release.Change("status", oldStatus.String(), rel.Status().String()),
			release.Change("cronStatus", oldCron.String(), job.CronStatus().String()),
		); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		out = &StartReleaseOutput{
			Release:    rel.Summary(),
			CronStatus: job.CronStatus(),
			Stage1:     job.StageStatusFor(release.StageKickoff),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("release started",
		"release_id", input.ReleaseID,
		"account_id", input.AccountID)
	return out, nil
}

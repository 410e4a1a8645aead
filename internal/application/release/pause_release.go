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

// PauseReleaseInput represents the input for the PauseRelease use case.
type PauseReleaseInput struct {
	ReleaseID release.ReleaseID
	TenantID  string
	AccountID string
}

// Validate validates the PauseReleaseInput.
func (i *PauseReleaseInput) Validate() error {
	v := NewValidationError()
	v.Add(ValidateReleaseID(i.ReleaseID))
	v.Add(ValidateSafeString(i.TenantID, "tenant_id", MaxAccountIDLength))
	v.Add(ValidateSafeString(i.AccountID, "account_id", MaxAccountIDLength))
	return v.ToError()
}

// PauseReleaseOutput represents the output of the PauseRelease use case.
type PauseReleaseOutput struct {
	Release       release.Summary `json:"release"`
	AlreadyPaused bool            `json:"alreadyPaused"`
}

// PauseReleaseUseCase suspends scheduling on user request. Pausing an
// already paused release succeeds without changing anything.
type PauseReleaseUseCase struct {
	tx     ports.Transactor
	clock  ports.Clock
	logger *slog.Logger
}

// NewPauseReleaseUseCase creates a new PauseReleaseUseCase.
func NewPauseReleaseUseCase(tx ports.Transactor, clock ports.Clock) *PauseReleaseUseCase {
	return &PauseReleaseUseCase{
		tx:     tx,
		clock:  clock,
		logger: slog.Default().With("usecase", "pause_release"),
	}
}

// Execute executes the pause release use case.
func (uc *PauseReleaseUseCase) Execute(ctx context.Context, input PauseReleaseInput) (*PauseReleaseOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindValidation, "PauseRelease", "invalid input")
	}

	var out *PauseReleaseOutput
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s ports.Store) error {
		rel, err := loadReleaseForTenant(ctx, s, "PauseRelease", input.ReleaseID, input.TenantID)
		if err != nil {
			return err
		}

		now := uc.clock.Now()
		oldStatus := rel.Status()

		alreadyPaused, err := rel.Pause(input.AccountID, now)
		if err != nil {
			return rherrors.Wrap(err, rherrors.KindConflict, "PauseRelease", "cannot pause release")
		}
		if alreadyPaused {
			out = &PauseReleaseOutput{Release: rel.Summary(), AlreadyPaused: true}
			return nil
		}

		job, err := loadJob(ctx, s, "PauseRelease", input.ReleaseID)
		if err != nil {
			return err
		}
		oldPause := job.PauseReason()
		if err := job.Pause(pipeline.PauseUserRequested, now); err != nil {
			return rherrors.Wrap(err, rherrors.KindConflict, "PauseRelease", "cannot pause pipeline")
		}

		if err := s.CronJobs.Update(ctx, job); err != nil {
			return fmt.Errorf("save cron job: %w", err)
		}
		if err := s.Releases.Update(ctx, rel); err != nil {
			return fmt.Errorf("save release: %w", err)
		}
		if err := appendHistory(ctx, s, rel.ID(), release.HistoryActionPause, input.AccountID, now,
			release.Change("status", oldStatus.String(), rel.Status().String()),
			release.Change("pauseType", oldPause.String(), job.PauseReason().String()),
		); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		out = &PauseReleaseOutput{Release: rel.Summary()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("release paused",
		"release_id", input.ReleaseID,
		"already_paused", out.AlreadyPaused,
		"account_id", input.AccountID)
	return out, nil
}

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

// ResumeReleaseInput represents the input for the ResumeRelease use case.
type ResumeReleaseInput struct {
	ReleaseID release.ReleaseID
	TenantID  string
	AccountID string
}

// Validate validates the ResumeReleaseInput.
func (i *ResumeReleaseInput) Validate() error {
	v := NewValidationError()
	v.Add(ValidateReleaseID(i.ReleaseID))
	v.Add(ValidateSafeString(i.TenantID, "tenant_id", MaxAccountIDLength))
	v.Add(ValidateSafeString(i.AccountID, "account_id", MaxAccountIDLength))
	return v.ToError()
}

// ResumeReleaseOutput represents the output of the ResumeRelease use case.
type ResumeReleaseOutput struct {
	Release    release.Summary     `json:"release"`
	CronStatus pipeline.CronStatus `json:"cronStatus"`
}

// ResumeReleaseUseCase lifts a user-requested pause. Pauses held for a
// failed task or a pending stage trigger have their own remedies and are
// refused with the pause type in the message.
type ResumeReleaseUseCase struct {
	tx     ports.Transactor
	clock  ports.Clock
	logger *slog.Logger
}

// NewResumeReleaseUseCase creates a new ResumeReleaseUseCase.
func NewResumeReleaseUseCase(tx ports.Transactor, clock ports.Clock) *ResumeReleaseUseCase {
	return &ResumeReleaseUseCase{
		tx:     tx,
		clock:  clock,
		logger: slog.Default().With("usecase", "resume_release"),
	}
}

// Execute executes the resume release use case.
func (uc *ResumeReleaseUseCase) Execute(ctx context.Context, input ResumeReleaseInput) (*ResumeReleaseOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindValidation, "ResumeRelease", "invalid input")
	}

	var out *ResumeReleaseOutput
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s ports.Store) error {
		rel, err := loadReleaseForTenant(ctx, s, "ResumeRelease", input.ReleaseID, input.TenantID)
		if err != nil {
			return err
		}
		job, err := loadJob(ctx, s, "ResumeRelease", input.ReleaseID)
		if err != nil {
			return err
		}

		now := uc.clock.Now()
		oldPause := job.PauseReason()

		if err := job.Resume(now); err != nil {
			switch {
			case errors.Is(err, pipeline.ErrCronNotPaused):
				return rherrors.Wrapf(err, rherrors.KindConflict, "ResumeRelease", "release %s is not paused", rel.ID())
			case errors.Is(err, pipeline.ErrResumeBlocked):
				return rherrors.Wrapf(err, rherrors.KindConflict, "ResumeRelease", "release %s is paused with %s and cannot be resumed", rel.ID(), oldPause)
			default:
				return rherrors.Wrap(err, rherrors.KindConflict, "ResumeRelease", "cannot resume pipeline")
			}
		}
		oldStatus := rel.Status()
		if rel.Status() == release.StatusPaused {
			if err := rel.Resume(input.AccountID, now); err != nil {
				return rherrors.Wrap(err, rherrors.KindConflict, "ResumeRelease", "cannot resume release")
			}
		}

		if err := s.CronJobs.Update(ctx, job); err != nil {
			return fmt.Errorf("save cron job: %w", err)
		}
		if err := s.Releases.Update(ctx, rel); err != nil {
			return fmt.Errorf("save release: %w", err)
		}
		if err := appendHistory(ctx, s, rel.ID(), release.HistoryActionResume, input.AccountID, now,
			release.Change("status", oldStatus.String(), rel.Status().String()),
			release.Change("pauseType", oldPause.String(), job.PauseReason().String()),
		); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		out = &ResumeReleaseOutput{Release: rel.Summary(), CronStatus: job.CronStatus()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("release resumed",
		"release_id", input.ReleaseID,
		"account_id", input.AccountID)
	return out, nil
}

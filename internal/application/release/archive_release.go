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

// ArchiveReleaseInput represents the input for the ArchiveRelease use case.
type ArchiveReleaseInput struct {
	ReleaseID release.ReleaseID
	AccountID string
}

// Validate validates the ArchiveReleaseInput.
func (i *ArchiveReleaseInput) Validate() error {
	v := NewValidationError()
	v.Add(ValidateReleaseID(i.ReleaseID))
	v.Add(ValidateSafeString(i.AccountID, "account_id", MaxAccountIDLength))
	return v.ToError()
}

// ArchiveReleaseOutput represents the output of the ArchiveRelease use case.
type ArchiveReleaseOutput struct {
	Release         release.Summary `json:"release"`
	AlreadyArchived bool            `json:"alreadyArchived"`
}

// ArchiveReleaseUseCase freezes a release wherever it stands. The cron
// pipeline completes in place and later ticks become no-ops.
type ArchiveReleaseUseCase struct {
	tx     ports.Transactor
	clock  ports.Clock
	logger *slog.Logger
}

// NewArchiveReleaseUseCase creates a new ArchiveReleaseUseCase.
func NewArchiveReleaseUseCase(tx ports.Transactor, clock ports.Clock) *ArchiveReleaseUseCase {
	return &ArchiveReleaseUseCase{
		tx:     tx,
		clock:  clock,
		logger: slog.Default().With("usecase", "archive_release"),
	}
}

// Execute executes the archive release use case.
func (uc *ArchiveReleaseUseCase) Execute(ctx context.Context, input ArchiveReleaseInput) (*ArchiveReleaseOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindValidation, "ArchiveRelease", "invalid input")
	}

	var out *ArchiveReleaseOutput
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s ports.Store) error {
		rel, err := loadRelease(ctx, s, "ArchiveRelease", input.ReleaseID)
		if err != nil {
			return err
		}

		now := uc.clock.Now()
		oldStatus := rel.Status()

		alreadyArchived, err := rel.Archive(input.AccountID, now)
		if err != nil {
			return rherrors.Wrap(err, rherrors.KindConflict, "ArchiveRelease", "cannot archive release")
		}
		if alreadyArchived {
			out = &ArchiveReleaseOutput{Release: rel.Summary(), AlreadyArchived: true}
			return nil
		}

		job, err := loadJob(ctx, s, "ArchiveRelease", input.ReleaseID)
		if err != nil {
			return err
		}
		oldCron := job.CronStatus()
		job.Freeze(now)

		if err := s.CronJobs.Update(ctx, job); err != nil {
			return fmt.Errorf("save cron job: %w", err)
		}
		if err := s.Releases.Update(ctx, rel); err != nil {
			return fmt.Errorf("save release: %w", err)
		}
		if err := appendHistory(ctx, s, rel.ID(), release.HistoryActionArchive, input.AccountID, now,
			release.Change("status", oldStatus.String(), rel.Status().String()),
			release.Change("cronStatus", oldCron.String(), pipeline.CronCompleted.String()),
		); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		out = &ArchiveReleaseOutput{Release: rel.Summary()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("release archived",
		"release_id", input.ReleaseID,
		"already_archived", out.AlreadyArchived,
		"account_id", input.AccountID)
	return out, nil
}

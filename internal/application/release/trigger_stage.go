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

// TriggerStageInput represents the input for the TriggerStage use case.
// Stage must be the regression or post-regression stage; the kick-off
// stage only opens through Start.
type TriggerStageInput struct {
	ReleaseID release.ReleaseID
	Stage     release.Stage
	AccountID string
}

// Validate validates the TriggerStageInput.
func (i *TriggerStageInput) Validate() error {
	v := NewValidationError()
	v.Add(ValidateReleaseID(i.ReleaseID))
	v.Add(ValidateSafeString(i.AccountID, "account_id", MaxAccountIDLength))
	if i.Stage != release.StageRegression && i.Stage != release.StagePostRegression {
		v.AddMessage(fmt.Sprintf("stage must be %s or %s", release.StageRegression, release.StagePostRegression))
	}
	return v.ToError()
}

// TriggerStageOutput represents the output of the TriggerStage use case.
type TriggerStageOutput struct {
	Release     release.Summary      `json:"release"`
	Stage       release.Stage        `json:"stage"`
	StageStatus pipeline.StageStatus `json:"stageStatus"`
	CronStatus  pipeline.CronStatus  `json:"cronStatus"`
}

// TriggerStageUseCase opens the next stage on user request. The prior
// stage must be completed and the target still pending; the matching
// auto-transition flag flips on so later cycles advance without another
// trigger.
type TriggerStageUseCase struct {
	tx     ports.Transactor
	clock  ports.Clock
	logger *slog.Logger
}

// NewTriggerStageUseCase creates a new TriggerStageUseCase.
func NewTriggerStageUseCase(tx ports.Transactor, clock ports.Clock) *TriggerStageUseCase {
	return &TriggerStageUseCase{
		tx:     tx,
		clock:  clock,
		logger: slog.Default().With("usecase", "trigger_stage"),
	}
}

// Execute executes the trigger stage use case.
func (uc *TriggerStageUseCase) Execute(ctx context.Context, input TriggerStageInput) (*TriggerStageOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindValidation, "TriggerStage", "invalid input")
	}

	var out *TriggerStageOutput
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s ports.Store) error {
		rel, err := loadRelease(ctx, s, "TriggerStage", input.ReleaseID)
		if err != nil {
			return err
		}
		if rel.IsTerminal() {
			return rherrors.Newf(rherrors.KindConflict, "release %s is %s", rel.ID(), rel.Status())
		}
		if rel.Status() == release.StatusPaused {
			return rherrors.Newf(rherrors.KindConflict, "release %s is paused; resume it before triggering a stage", rel.ID())
		}

		job, err := loadJob(ctx, s, "TriggerStage", input.ReleaseID)
		if err != nil {
			return err
		}
		if job.StageStatusFor(input.Stage) != pipeline.StagePending {
			return rherrors.Newf(rherrors.KindConflict, "stage %s is already %s", input.Stage, job.StageStatusFor(input.Stage))
		}

		now := uc.clock.Now()
		if err := job.TriggerStage(input.Stage, now); err != nil {
			if errors.Is(err, pipeline.ErrStageNotReady) {
				return rherrors.Wrapf(err, rherrors.KindConflict, "TriggerStage", "stage %s is not ready", input.Stage)
			}
			return rherrors.Wrap(err, rherrors.KindConflict, "TriggerStage", "cannot trigger stage")
		}

		if err := s.CronJobs.Update(ctx, job); err != nil {
			return fmt.Errorf("save cron job: %w", err)
		}
		action := release.HistoryActionTriggerStage2
		if input.Stage == release.StagePostRegression {
			action = release.HistoryActionTriggerStage3
		}
		if err := appendHistory(ctx, s, rel.ID(), action, input.AccountID, now,
			release.Change("stage", "", input.Stage.String()),
			release.Change(fmt.Sprintf("stage%dStatus", input.Stage.Ordinal()), pipeline.StagePending.String(), job.StageStatusFor(input.Stage).String()),
		); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		out = &TriggerStageOutput{
			Release:     rel.Summary(),
			Stage:       input.Stage,
			StageStatus: job.StageStatusFor(input.Stage),
			CronStatus:  job.CronStatus(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("stage triggered",
		"release_id", input.ReleaseID,
		"stage", input.Stage,
		"account_id", input.AccountID)
	return out, nil
}

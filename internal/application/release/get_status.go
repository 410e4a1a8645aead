package release

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// GetReleaseStatusInput represents the input for the GetReleaseStatus use case.
type GetReleaseStatusInput struct {
	ReleaseID release.ReleaseID
}

// Validate validates the GetReleaseStatusInput.
func (i *GetReleaseStatusInput) Validate() error {
	return ValidateReleaseID(i.ReleaseID)
}

// TaskReport is one task row in a status report.
type TaskReport struct {
	ID         string              `json:"id"`
	Type       pipeline.TaskType   `json:"type"`
	Status     pipeline.TaskStatus `json:"status"`
	ExternalID string              `json:"externalId,omitempty"`
	Error      string              `json:"error,omitempty"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// StageReport is one stage with its tasks in a status report.
type StageReport struct {
	Stage  release.Stage        `json:"stage"`
	Status pipeline.StageStatus `json:"status"`
	Tasks  []TaskReport         `json:"tasks"`
}

// CycleReport summarizes the latest regression cycle.
type CycleReport struct {
	Tag    string               `json:"tag"`
	Status pipeline.CycleStatus `json:"status"`
}

// GetReleaseStatusOutput is the full status report for one release.
type GetReleaseStatusOutput struct {
	Release      release.Summary         `json:"release"`
	CronStatus   pipeline.CronStatus     `json:"cronStatus"`
	PauseType    pipeline.PauseType      `json:"pauseType"`
	AutoStage2   bool                    `json:"autoTransitionToStage2"`
	AutoStage3   bool                    `json:"autoTransitionToStage3"`
	PendingSlots int                     `json:"pendingSlots"`
	Stages       []StageReport           `json:"stages"`
	LatestCycle  *CycleReport            `json:"latestCycle,omitempty"`
	Readiness    release.UploadReadiness `json:"uploadReadiness"`
}

// GetReleaseStatusUseCase assembles the read model behind the status
// command and endpoint: release, pipeline, per-stage tasks, latest
// cycle and manual upload readiness in one shot.
type GetReleaseStatusUseCase struct {
	store ports.Store
}

// NewGetReleaseStatusUseCase creates a new GetReleaseStatusUseCase.
func NewGetReleaseStatusUseCase(store ports.Store) *GetReleaseStatusUseCase {
	return &GetReleaseStatusUseCase{store: store}
}

// Execute assembles the status report.
func (uc *GetReleaseStatusUseCase) Execute(ctx context.Context, input GetReleaseStatusInput) (*GetReleaseStatusOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindValidation, "GetReleaseStatus", "invalid input")
	}

	rel, err := loadRelease(ctx, uc.store, "GetReleaseStatus", input.ReleaseID)
	if err != nil {
		return nil, err
	}
	job, err := loadJob(ctx, uc.store, "GetReleaseStatus", input.ReleaseID)
	if err != nil {
		return nil, err
	}

	out := &GetReleaseStatusOutput{
		Release:      rel.Summary(),
		CronStatus:   job.CronStatus(),
		PauseType:    job.PauseReason(),
		AutoStage2:   job.AutoTransitionToStage2(),
		AutoStage3:   job.AutoTransitionToStage3(),
		PendingSlots: len(job.UpcomingRegressions()),
	}

	for _, stage := range release.AllStages() {
		tasks, err := uc.store.Tasks.FindByReleaseAndStage(ctx, input.ReleaseID, stage)
		if err != nil {
			return nil, fmt.Errorf("load %s tasks: %w", stage, err)
		}
		report := StageReport{
			Stage:  stage,
			Status: job.StageStatusFor(stage),
			Tasks:  make([]TaskReport, 0, len(tasks)),
		}
		for _, t := range tasks {
			tr := TaskReport{
				ID:        t.ID(),
				Type:      t.Type(),
				Status:    t.Status(),
				UpdatedAt: t.UpdatedAt(),
			}
			if ref := t.ExternalID(); ref != nil {
				tr.ExternalID = *ref
			}
			if msg, ok := t.ExternalData()["error"].(string); ok {
				tr.Error = msg
			}
			report.Tasks = append(report.Tasks, tr)
		}
		out.Stages = append(out.Stages, report)
	}

	cycle, err := uc.store.Cycles.FindLatest(ctx, input.ReleaseID)
	switch {
	case err == nil:
		out.LatestCycle = &CycleReport{Tag: cycle.CycleTag(), Status: cycle.Status()}
	case errors.Is(err, pipeline.ErrCycleNotFound):
	default:
		return nil, fmt.Errorf("load latest cycle: %w", err)
	}

	mappings, err := uc.store.Mappings.FindByRelease(ctx, input.ReleaseID)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	uploads, err := uc.store.Uploads.FindByReleaseAndStage(ctx, input.ReleaseID, release.StagePostRegression)
	if err != nil {
		return nil, fmt.Errorf("load uploads: %w", err)
	}
	out.Readiness = release.ComputeUploadReadiness(mappings, uploads, release.StagePostRegression)

	return out, nil
}

package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// ArtifactRef locates a stored build artifact.
type ArtifactRef struct {
	Path      string
	URL       string
	SizeBytes int64
}

// ArtifactStore persists uploaded build artifacts outside the database.
// Saving the same release, stage, platform and file name again replaces
// the previous content.
type ArtifactStore interface {
	Save(ctx context.Context, releaseID release.ReleaseID, stage release.Stage, platform release.Platform, fileName string, content []byte) (ArtifactRef, error)
}

// UploadManualBuildInput represents the input for the UploadManualBuild use case.
type UploadManualBuildInput struct {
	ReleaseID release.ReleaseID
	Stage     release.Stage
	Platform  release.Platform
	FileName  string
	Content   []byte
	AccountID string
}

// Validate validates the UploadManualBuildInput.
func (i *UploadManualBuildInput) Validate() error {
	v := NewValidationError()
	v.Add(ValidateReleaseID(i.ReleaseID))
	v.Add(ValidateFileName(i.FileName))
	v.Add(ValidateSafeString(i.AccountID, "account_id", MaxAccountIDLength))
	if !i.Stage.IsValid() {
		v.AddMessage(fmt.Sprintf("invalid stage: %q", i.Stage))
	}
	if len(i.Content) == 0 {
		v.AddMessage("artifact content is empty")
	}
	return v.ToError()
}

// UploadManualBuildOutput reports the stored artifact and per-platform
// readiness for the stage, computed against the release's mappings.
type UploadManualBuildOutput struct {
	Upload            release.ReleaseUpload `json:"upload"`
	UploadedPlatforms []release.Platform    `json:"uploadedPlatforms"`
	MissingPlatforms  []release.Platform    `json:"missingPlatforms"`
	AllPlatformsReady bool                  `json:"allPlatformsReady"`
}

// UploadManualBuildUseCase accepts a build artifact uploaded by hand in
// place of a CI pipeline. The artifact lands in the artifact store first
// and the upload row second, so a crash in between leaves an orphaned
// file rather than a row pointing nowhere.
type UploadManualBuildUseCase struct {
	store     ports.Store
	tx        ports.Transactor
	artifacts ArtifactStore
	clock     ports.Clock
	logger    *slog.Logger
}

// NewUploadManualBuildUseCase creates a new UploadManualBuildUseCase.
func NewUploadManualBuildUseCase(store ports.Store, tx ports.Transactor, artifacts ArtifactStore, clock ports.Clock) *UploadManualBuildUseCase {
	return &UploadManualBuildUseCase{
		store:     store,
		tx:        tx,
		artifacts: artifacts,
		clock:     clock,
		logger:    slog.Default().With("usecase", "upload_manual_build"),
	}
}

// Execute executes the upload manual build use case.
func (uc *UploadManualBuildUseCase) Execute(ctx context.Context, input UploadManualBuildInput) (*UploadManualBuildOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindValidation, "UploadManualBuild", "invalid input")
	}

	platform, err := release.PlatformForArtifact(input.FileName)
	if err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindValidation, "UploadManualBuild", "unsupported artifact")
	}
	if input.Platform != "" && input.Platform != platform {
		return nil, rherrors.Newf(rherrors.KindValidation, "artifact %q is a %s build, not %s", input.FileName, platform, input.Platform)
	}

	rel, err := loadRelease(ctx, uc.store, "UploadManualBuild", input.ReleaseID)
	if err != nil {
		return nil, err
	}
	if rel.IsTerminal() {
		return nil, rherrors.Newf(rherrors.KindConflict, "release %s is %s and cannot accept uploads", rel.ID(), rel.Status())
	}

	ref, err := uc.artifacts.Save(ctx, input.ReleaseID, input.Stage, platform, input.FileName, input.Content)
	if err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindIO, "UploadManualBuild", "store artifact")
	}

	var out *UploadManualBuildOutput
	err = uc.tx.WithinTx(ctx, func(ctx context.Context, s ports.Store) error {
		rel, err := loadRelease(ctx, s, "UploadManualBuild", input.ReleaseID)
		if err != nil {
			return err
		}

		now := uc.clock.Now()
		upload := release.ReleaseUpload{
			ID:           newID(),
			ReleaseID:    input.ReleaseID,
			Stage:        input.Stage,
			Platform:     platform,
			FileName:     input.FileName,
			ArtifactPath: ref.Path,
			DownloadURL:  ref.URL,
			SizeBytes:    ref.SizeBytes,
			UploadedBy:   input.AccountID,
			UploadedAt:   now,
		}
		if err := upload.Validate(); err != nil {
			return rherrors.Wrap(err, rherrors.KindValidation, "UploadManualBuild", "invalid upload")
		}
		if err := s.Uploads.Create(ctx, upload); err != nil {
			return fmt.Errorf("save upload: %w", err)
		}

		rel.MarkManualBuildUploaded(input.AccountID, now)
		if err := s.Releases.Update(ctx, rel); err != nil {
			return fmt.Errorf("save release: %w", err)
		}

		mappings, err := s.Mappings.FindByRelease(ctx, input.ReleaseID)
		if err != nil && !errors.Is(err, release.ErrNoMappings) {
			return fmt.Errorf("load mappings: %w", err)
		}
		uploads, err := s.Uploads.FindByReleaseAndStage(ctx, input.ReleaseID, input.Stage)
		if err != nil {
			return fmt.Errorf("load uploads: %w", err)
		}
		readiness := release.ComputeUploadReadiness(mappings, uploads, input.Stage)

		if err := appendHistory(ctx, s, rel.ID(), release.HistoryActionUploadBuild, input.AccountID, now,
			release.Change("platform", "", platform.String()),
			release.Change("fileName", "", input.FileName),
			release.Change("stage", "", input.Stage.String()),
		); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		out = &UploadManualBuildOutput{
			Upload:            upload,
			UploadedPlatforms: readiness.Uploaded,
			MissingPlatforms:  readiness.Missing,
			AllPlatformsReady: readiness.AllPlatformsReady,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("manual build uploaded",
		"release_id", input.ReleaseID,
		"stage", input.Stage,
		"platform", platform,
		"file", input.FileName,
		"size_bytes", ref.SizeBytes,
		"all_ready", out.AllPlatformsReady)
	return out, nil
}

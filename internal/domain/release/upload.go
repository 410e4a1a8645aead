package release

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// AllowedArtifactExtensions lists the accepted manual build artifact types.
var AllowedArtifactExtensions = []string{".ipa", ".apk", ".aab"}

// ReleaseUpload records one manually uploaded build artifact.
type ReleaseUpload struct {
	ID           string    `json:"id" db:"id"`
	ReleaseID    ReleaseID `json:"releaseId" db:"release_id"`
	Stage        Stage     `json:"stage" db:"stage"`
	Platform     Platform  `json:"platform" db:"platform"`
	FileName     string    `json:"fileName" db:"file_name"`
	ArtifactPath string    `json:"artifactPath" db:"artifact_path"`
	DownloadURL  string    `json:"downloadUrl" db:"download_url"`
	SizeBytes    int64     `json:"sizeBytes" db:"size_bytes"`
	UploadedBy   string    `json:"uploadedBy" db:"uploaded_by"`
	UploadedAt   time.Time `json:"uploadedAt" db:"uploaded_at"`
}

// PlatformForArtifact derives the platform from an artifact file name.
// .ipa files are iOS builds, .apk and .aab files are Android builds.
func PlatformForArtifact(fileName string) (Platform, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".ipa":
		return PlatformIOS, nil
	case ".apk", ".aab":
		return PlatformAndroid, nil
	default:
		return "", fmt.Errorf("%w: %q (allowed: %s)",
			ErrUnsupportedArtifact, ext, strings.Join(AllowedArtifactExtensions, ", "))
	}
}

// Validate checks the upload fields.
func (u ReleaseUpload) Validate() error {
	if u.ReleaseID == "" {
		return fmt.Errorf("upload release id cannot be empty")
	}
	if !u.Stage.IsValid() {
		return fmt.Errorf("invalid upload stage: %s", u.Stage)
	}
	if !u.Platform.IsValid() {
		return fmt.Errorf("invalid upload platform: %s", u.Platform)
	}
	p, err := PlatformForArtifact(u.FileName)
	if err != nil {
		return err
	}
	if p != u.Platform {
		return fmt.Errorf("artifact %q is a %s build, not %s", u.FileName, p, u.Platform)
	}
	return nil
}

// UploadReadiness reports which platforms have a build uploaded for a
// stage and which are still missing.
type UploadReadiness struct {
	Uploaded          []Platform `json:"uploaded"`
	Missing           []Platform `json:"missing"`
	AllPlatformsReady bool       `json:"allPlatformsReady"`
}

// ComputeUploadReadiness compares the uploads present for a stage against
// the platforms the release targets. Platforms without installable
// artifacts, currently only web, are excluded from readiness.
func ComputeUploadReadiness(mappings Mappings, uploads []ReleaseUpload, stage Stage) UploadReadiness {
	have := make(map[Platform]bool)
	for _, u := range uploads {
		if u.Stage == stage {
			have[u.Platform] = true
		}
	}

	readiness := UploadReadiness{
		Uploaded: []Platform{},
		Missing:  []Platform{},
	}
	for _, p := range mappings.Platforms() {
		if !p.BuildsArtifacts() {
			continue
		}
		if have[p] {
			readiness.Uploaded = append(readiness.Uploaded, p)
		} else {
			readiness.Missing = append(readiness.Missing, p)
		}
	}
	readiness.AllPlatformsReady = len(readiness.Missing) == 0 && len(readiness.Uploaded) > 0
	return readiness
}

package release

import (
	"errors"
	"testing"
	"time"
)

func TestPlatformForArtifact(t *testing.T) {
	tests := []struct {
		fileName string
		want     Platform
		wantErr  bool
	}{
		{"app-release.apk", PlatformAndroid, false},
		{"bundle.aab", PlatformAndroid, false},
		{"MyApp.IPA", PlatformIOS, false},
		{"build.zip", "", true},
		{"noextension", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			got, err := PlatformForArtifact(tt.fileName)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedArtifact) {
					t.Errorf("PlatformForArtifact(%q) error = %v, want ErrUnsupportedArtifact", tt.fileName, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PlatformForArtifact(%q) error = %v", tt.fileName, err)
			}
			if got != tt.want {
				t.Errorf("PlatformForArtifact(%q) = %v, want %v", tt.fileName, got, tt.want)
			}
		})
	}
}

func TestUploadValidate(t *testing.T) {
	base := ReleaseUpload{
		ID:        "up-1",
		ReleaseID: "rel-1",
		Stage:     StageRegression,
		Platform:  PlatformAndroid,
		FileName:  "app.apk",
	}
	if err := base.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	mismatched := base
	mismatched.FileName = "app.ipa"
	if err := mismatched.Validate(); err == nil {
		t.Error("Validate() = nil for iOS artifact on Android upload, want error")
	}

	badStage := base
	badStage.Stage = "STAGE_9"
	if err := badStage.Validate(); err == nil {
		t.Error("Validate() = nil for invalid stage, want error")
	}
}

func TestComputeUploadReadiness(t *testing.T) {
	mappings := Mappings{
		{ReleaseID: "r", Platform: PlatformAndroid, Target: TargetPlayStore, Version: "1.0.0"},
		{ReleaseID: "r", Platform: PlatformIOS, Target: TargetAppStore, Version: "1.0.0"},
		{ReleaseID: "r", Platform: PlatformWeb, Target: TargetWeb, Version: "1.0.0"},
	}
	now := time.Now()

	// Nothing uploaded yet.
	got := ComputeUploadReadiness(mappings, nil, StageRegression)
	if got.AllPlatformsReady {
		t.Error("AllPlatformsReady = true with no uploads")
	}
	if len(got.Missing) != 2 {
		t.Errorf("Missing = %v, want android and ios", got.Missing)
	}

	// Android uploaded for regression, iOS still missing. Web never counts.
	uploads := []ReleaseUpload{
		{ReleaseID: "r", Stage: StageRegression, Platform: PlatformAndroid, FileName: "a.apk", UploadedAt: now},
		{ReleaseID: "r", Stage: StageKickoff, Platform: PlatformIOS, FileName: "a.ipa", UploadedAt: now},
	}
	got = ComputeUploadReadiness(mappings, uploads, StageRegression)
	if got.AllPlatformsReady {
		t.Error("AllPlatformsReady = true with iOS missing")
	}
	if len(got.Uploaded) != 1 || got.Uploaded[0] != PlatformAndroid {
		t.Errorf("Uploaded = %v, want [ANDROID]", got.Uploaded)
	}
	if len(got.Missing) != 1 || got.Missing[0] != PlatformIOS {
		t.Errorf("Missing = %v, want [IOS]", got.Missing)
	}

	// Both present for the stage.
	uploads = append(uploads, ReleaseUpload{
		ReleaseID: "r", Stage: StageRegression, Platform: PlatformIOS, FileName: "a.ipa", UploadedAt: now,
	})
	got = ComputeUploadReadiness(mappings, uploads, StageRegression)
	if !got.AllPlatformsReady {
		t.Errorf("AllPlatformsReady = false, readiness = %+v", got)
	}
}

func TestComputeUploadReadinessWebOnly(t *testing.T) {
	mappings := Mappings{
		{ReleaseID: "r", Platform: PlatformWeb, Target: TargetWeb, Version: "1.0.0"},
	}
	got := ComputeUploadReadiness(mappings, nil, StageRegression)
	// A web-only release has nothing to upload and is never "ready".
	if got.AllPlatformsReady {
		t.Error("AllPlatformsReady = true for web-only release")
	}
	if len(got.Missing) != 0 {
		t.Errorf("Missing = %v, want empty", got.Missing)
	}
}

func TestNewStateHistory(t *testing.T) {
	now := time.Now()
	h, err := NewStateHistory("h-1", "rel-1", HistoryActionPause, "acct-1", now,
		Change("status", "IN_PROGRESS", "PAUSED"),
		Change("pauseType", "", "USER_REQUESTED"),
	)
	if err != nil {
		t.Fatalf("NewStateHistory() error = %v", err)
	}
	if len(h.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(h.Items))
	}
	for _, it := range h.Items {
		if it.HistoryID != "h-1" {
			t.Errorf("item HistoryID = %q, want h-1", it.HistoryID)
		}
	}

	if _, err := NewStateHistory("", "rel-1", HistoryActionPause, "a", now); err == nil {
		t.Error("NewStateHistory() with empty id error = nil, want error")
	}
}

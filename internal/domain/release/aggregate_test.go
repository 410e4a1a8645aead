package release

import (
	"errors"
	"testing"
	"time"
)

func validParams() NewReleaseParams {
	kickOff := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	reminder := kickOff.Add(-48 * time.Hour)
	return NewReleaseParams{
		ID:                  "rel-001",
		TenantID:            "tenant-a",
		Type:                TypeMinor,
		BaseBranch:          "develop",
		ConfigID:            "cfg-001",
		TargetReleaseDate:   kickOff.Add(14 * 24 * time.Hour),
		KickOffDate:         kickOff,
		KickOffReminderDate: &reminder,
		CreatedByAccountID:  "acct-creator",
		PilotAccountID:      "acct-pilot",
	}
}

func newTestRelease(t *testing.T) *Release {
	t.Helper()
	r, err := NewRelease(validParams(), time.Date(2025, 2, 20, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRelease() error = %v", err)
	}
	return r
}

func TestNewRelease(t *testing.T) {
	r := newTestRelease(t)

	if r.Status() != StatusPending {
		t.Errorf("Status() = %v, want PENDING", r.Status())
	}
	if r.Branch() != "" {
		t.Errorf("Branch() = %q, want empty before fork", r.Branch())
	}
	if r.LastUpdatedAccountID() != "acct-creator" {
		t.Errorf("LastUpdatedAccountID() = %q, want creator", r.LastUpdatedAccountID())
	}
	if r.HasManualBuildUpload() {
		t.Error("HasManualBuildUpload() = true for a new release")
	}
}

func TestNewReleaseValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewReleaseParams)
	}{
		{"empty id", func(p *NewReleaseParams) { p.ID = "" }},
		{"empty tenant", func(p *NewReleaseParams) { p.TenantID = "  " }},
		{"invalid type", func(p *NewReleaseParams) { p.Type = "PATCH" }},
		{"empty base branch", func(p *NewReleaseParams) { p.BaseBranch = "" }},
		{"empty config", func(p *NewReleaseParams) { p.ConfigID = "" }},
		{"target before kickoff", func(p *NewReleaseParams) {
			p.TargetReleaseDate = p.KickOffDate.Add(-time.Hour)
		}},
		{"reminder after kickoff", func(p *NewReleaseParams) {
			after := p.KickOffDate.Add(time.Hour)
			p.KickOffReminderDate = &after
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			if _, err := NewRelease(p, time.Now()); err == nil {
				t.Error("NewRelease() error = nil, want validation error")
			}
		})
	}
}

func TestReleaseLifecycle(t *testing.T) {
	r := newTestRelease(t)
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	if err := r.Begin("acct-pilot", now); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if r.Status() != StatusInProgress {
		t.Errorf("Status() = %v, want IN_PROGRESS", r.Status())
	}
	if r.LastUpdatedAccountID() != "acct-pilot" {
		t.Errorf("LastUpdatedAccountID() = %q, want acct-pilot", r.LastUpdatedAccountID())
	}

	if err := r.MarkSubmitted("acct-pilot", now.Add(time.Hour)); err != nil {
		t.Fatalf("MarkSubmitted() error = %v", err)
	}
	if err := r.Complete("acct-pilot", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !r.IsTerminal() {
		t.Error("IsTerminal() = false after Complete")
	}
}

func TestReleaseBeginTwice(t *testing.T) {
	r := newTestRelease(t)
	now := time.Now()

	if err := r.Begin("a", now); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	err := r.Begin("a", now)
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("second Begin() error = %v, want ErrInvalidStatusTransition", err)
	}
}

func TestReleasePauseResume(t *testing.T) {
	r := newTestRelease(t)
	now := time.Now()

	// Pausing a pending release is rejected.
	if _, err := r.Pause("a", now); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("Pause() on PENDING error = %v, want ErrNotInProgress", err)
	}

	if err := r.Begin("a", now); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	already, err := r.Pause("a", now)
	if err != nil || already {
		t.Fatalf("Pause() = (%v, %v), want (false, nil)", already, err)
	}
	if r.Status() != StatusPaused {
		t.Errorf("Status() = %v, want PAUSED", r.Status())
	}

	// Second pause is a no-op.
	already, err = r.Pause("a", now)
	if err != nil || !already {
		t.Errorf("second Pause() = (%v, %v), want (true, nil)", already, err)
	}

	if err := r.Resume("a", now); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if r.Status() != StatusInProgress {
		t.Errorf("Status() = %v, want IN_PROGRESS after resume", r.Status())
	}

	// Resuming a running release is rejected.
	if err := r.Resume("a", now); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Resume() on IN_PROGRESS error = %v, want ErrNotPaused", err)
	}
}

func TestReleaseArchiveIdempotent(t *testing.T) {
	r := newTestRelease(t)
	now := time.Now()

	already, err := r.Archive("a", now)
	if err != nil || already {
		t.Fatalf("Archive() = (%v, %v), want (false, nil)", already, err)
	}
	if r.Status() != StatusArchived {
		t.Errorf("Status() = %v, want ARCHIVED", r.Status())
	}

	already, err = r.Archive("a", now)
	if err != nil || !already {
		t.Errorf("second Archive() = (%v, %v), want (true, nil)", already, err)
	}
}

func TestReleaseArchiveCompletedRejected(t *testing.T) {
	r := newTestRelease(t)
	now := time.Now()
	if err := r.Begin("a", now); err != nil {
		t.Fatal(err)
	}
	if err := r.Complete("a", now); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Archive("a", now); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("Archive() on COMPLETED error = %v, want ErrInvalidStatusTransition", err)
	}
}

func TestReleaseSetBranch(t *testing.T) {
	r := newTestRelease(t)
	now := time.Now()

	if err := r.SetBranch("release/v1.4.0", now); err != nil {
		t.Fatalf("SetBranch() error = %v", err)
	}
	if r.Branch() != "release/v1.4.0" {
		t.Errorf("Branch() = %q, want release/v1.4.0", r.Branch())
	}
	if err := r.SetBranch("  ", now); err == nil {
		t.Error("SetBranch(blank) error = nil, want error")
	}
}

func TestReleaseKickOffDue(t *testing.T) {
	r := newTestRelease(t)
	kickOff := r.KickOffDate()

	if r.KickOffDue(kickOff.Add(-time.Minute)) {
		t.Error("KickOffDue() = true before the kick-off date")
	}
	if !r.KickOffDue(kickOff) {
		t.Error("KickOffDue() = false at the kick-off date")
	}
	if !r.KickOffReminderDue(kickOff) {
		t.Error("KickOffReminderDue() = false after the reminder date")
	}
	if r.KickOffReminderDue(kickOff.Add(-72 * time.Hour)) {
		t.Error("KickOffReminderDue() = true before the reminder date")
	}
}

func TestReconstructRelease(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := ReconstructRelease(ReconstructReleaseParams{
		ID:                   "rel-42",
		TenantID:             "tenant-b",
		Type:                 TypeHotfix,
		Status:               StatusPaused,
		Branch:               "release/v2.0.1",
		BaseBranch:           "main",
		ConfigID:             "cfg-9",
		TargetReleaseDate:    created.Add(7 * 24 * time.Hour),
		KickOffDate:          created,
		HasManualBuildUpload: true,
		CreatedByAccountID:   "acct-x",
		PilotAccountID:       "acct-y",
		LastUpdatedAccountID: "acct-z",
		CreatedAt:            created,
		UpdatedAt:            created.Add(time.Hour),
	})

	if r.Status() != StatusPaused {
		t.Errorf("Status() = %v, want PAUSED", r.Status())
	}
	if r.Branch() != "release/v2.0.1" {
		t.Errorf("Branch() = %q, want release/v2.0.1", r.Branch())
	}
	if !r.HasManualBuildUpload() {
		t.Error("HasManualBuildUpload() = false, want true")
	}

	// Reconstructed aggregates keep enforcing transitions.
	if err := r.Resume("acct-y", created.Add(2*time.Hour)); err != nil {
		t.Errorf("Resume() error = %v", err)
	}
}

func TestReleaseSummary(t *testing.T) {
	r := newTestRelease(t)
	s := r.Summary()
	if s.ID != r.ID() || s.Status != r.Status() || s.BaseBranch != r.BaseBranch() {
		t.Errorf("Summary() = %+v, does not match aggregate", s)
	}
}

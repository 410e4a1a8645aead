package release

import "testing"

func TestStatusIsValid(t *testing.T) {
	for _, s := range AllStatuses() {
		if !s.IsValid() {
			t.Errorf("IsValid() = false for %s, want true", s)
		}
	}
	if Status("SHIPPED").IsValid() {
		t.Error("IsValid() = true for SHIPPED, want false")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusInProgress, false},
		{StatusPaused, false},
		{StatusSubmitted, false},
		{StatusCompleted, true},
		{StatusArchived, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to in progress", StatusPending, StatusInProgress, true},
		{"pending to archived", StatusPending, StatusArchived, true},
		{"pending to paused", StatusPending, StatusPaused, false},
		{"in progress to paused", StatusInProgress, StatusPaused, true},
		{"in progress to submitted", StatusInProgress, StatusSubmitted, true},
		{"in progress to completed", StatusInProgress, StatusCompleted, true},
		{"paused to in progress", StatusPaused, StatusInProgress, true},
		{"paused to submitted", StatusPaused, StatusSubmitted, false},
		{"submitted to completed", StatusSubmitted, StatusCompleted, true},
		{"completed is terminal", StatusCompleted, StatusArchived, false},
		{"archived is terminal", StatusArchived, StatusInProgress, false},
		{"failed is terminal", StatusFailed, StatusInProgress, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{"PENDING", StatusPending, false},
		{"in_progress", StatusInProgress, false},
		{"  Paused  ", StatusPaused, false},
		{"archived", StatusArchived, false},
		{"bogus", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatus(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStageOrdering(t *testing.T) {
	if StageKickoff.Ordinal() != 1 || StageRegression.Ordinal() != 2 || StagePostRegression.Ordinal() != 3 {
		t.Errorf("stage ordinals = %d, %d, %d, want 1, 2, 3",
			StageKickoff.Ordinal(), StageRegression.Ordinal(), StagePostRegression.Ordinal())
	}

	next, ok := StageKickoff.Next()
	if !ok || next != StageRegression {
		t.Errorf("StageKickoff.Next() = %v, %v, want REGRESSION, true", next, ok)
	}
	next, ok = StageRegression.Next()
	if !ok || next != StagePostRegression {
		t.Errorf("StageRegression.Next() = %v, %v, want POST_REGRESSION, true", next, ok)
	}
	if _, ok := StagePostRegression.Next(); ok {
		t.Error("StagePostRegression.Next() ok = true, want false")
	}
}

func TestPlatformDefaultTarget(t *testing.T) {
	tests := []struct {
		platform Platform
		want     Target
	}{
		{PlatformAndroid, TargetPlayStore},
		{PlatformIOS, TargetAppStore},
		{PlatformWeb, TargetWeb},
	}

	for _, tt := range tests {
		if got := tt.platform.DefaultTarget(); got != tt.want {
			t.Errorf("DefaultTarget(%s) = %v, want %v", tt.platform, got, tt.want)
		}
	}
}

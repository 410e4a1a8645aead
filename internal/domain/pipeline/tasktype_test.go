package pipeline

import (
	"testing"

	"github.com/railhead-io/railhead/internal/domain/release"
)

func TestCatalogStageCounts(t *testing.T) {
	tests := []struct {
		stage release.Stage
		want  int
	}{
		{release.StageKickoff, 5},
		{release.StageRegression, 7},
		{release.StagePostRegression, 6},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			specs := TasksForStage(tt.stage)
			if len(specs) != tt.want {
				t.Errorf("TasksForStage(%s) returned %d specs, want %d", tt.stage, len(specs), tt.want)
			}
			for i, s := range specs {
				if s.Order != i+1 {
					t.Errorf("spec %s has order %d at position %d", s.Type, s.Order, i)
				}
			}
		})
	}
}

func TestCatalogExternalRefTypes(t *testing.T) {
	wantExternal := map[TaskType]bool{
		TaskCreatePMTicket:     true,
		TaskCreateTestSuite:    true,
		TaskTriggerPreRegBuild: true,
		TaskTriggerRegBuilds:   true,
		TaskTriggerAutomation:  true,
		TaskTriggerTestFlight:  true,
	}

	externalCount := 0
	for _, taskType := range AllTaskTypes() {
		cat, ok := taskType.Category()
		if !ok {
			t.Fatalf("Category(%s) not found", taskType)
		}
		if cat == CategoryExternalRef {
			externalCount++
			if !wantExternal[taskType] {
				t.Errorf("%s is EXTERNAL_REF, expected STRUCTURED", taskType)
			}
		} else if wantExternal[taskType] {
			t.Errorf("%s is STRUCTURED, expected EXTERNAL_REF", taskType)
		}
	}
	if externalCount != len(wantExternal) {
		t.Errorf("external-ref task count = %d, want %d", externalCount, len(wantExternal))
	}
}

func TestCatalogFlagsAndGates(t *testing.T) {
	spec, ok := SpecFor(TaskResetTestSuite)
	if !ok {
		t.Fatal("RESET_TEST_SUITE missing from catalog")
	}
	if !spec.SkipOnFirstCycle {
		t.Error("RESET_TEST_SUITE should skip the first cycle")
	}

	spec, ok = SpecFor(TaskTriggerTestFlight)
	if !ok {
		t.Fatal("TRIGGER_TEST_FLIGHT_BUILD missing from catalog")
	}
	if spec.RequiresPlatform != release.PlatformIOS {
		t.Errorf("TRIGGER_TEST_FLIGHT_BUILD requires platform %q, want IOS", spec.RequiresPlatform)
	}
	if spec.Flag != FlagTestFlightBuilds {
		t.Errorf("TRIGGER_TEST_FLIGHT_BUILD flag = %q, want testFlightBuilds", spec.Flag)
	}

	required := []TaskType{TaskForkBranch, TaskCreatePMTicket, TaskCreateRCTag, TaskCheckReleaseApproval}
	for _, taskType := range required {
		s, _ := SpecFor(taskType)
		if s.Optional() {
			t.Errorf("%s should not be optional", taskType)
		}
	}
}

func TestConfigEnabled(t *testing.T) {
	cfg := CronConfig{
		KickOffReminder:  true,
		AutomationRuns:   true,
		TestFlightBuilds: false,
	}

	tests := []struct {
		flag ConfigFlag
		want bool
	}{
		{FlagNone, true},
		{FlagKickOffReminder, true},
		{FlagPreRegressionBuild, false},
		{FlagAutomationRuns, true},
		{FlagTestFlightBuilds, false},
	}

	for _, tt := range tests {
		if got := cfg.Enabled(tt.flag); got != tt.want {
			t.Errorf("Enabled(%q) = %v, want %v", tt.flag, got, tt.want)
		}
	}
}

func TestParseTaskType(t *testing.T) {
	got, err := ParseTaskType("fork_branch")
	if err != nil || got != TaskForkBranch {
		t.Errorf("ParseTaskType(fork_branch) = %v, %v", got, err)
	}
	if _, err := ParseTaskType("MAKE_COFFEE"); err == nil {
		t.Error("ParseTaskType(MAKE_COFFEE) error = nil, want error")
	}
}

func TestTaskTypeStage(t *testing.T) {
	stage, ok := TaskCheckReleaseApproval.Stage()
	if !ok || stage != release.StagePostRegression {
		t.Errorf("Stage(CHECK_PROJECT_RELEASE_APPROVAL) = %v, %v", stage, ok)
	}
	if _, ok := TaskType("NOPE").Stage(); ok {
		t.Error("Stage(NOPE) ok = true, want false")
	}
}

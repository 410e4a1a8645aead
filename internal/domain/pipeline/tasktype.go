package pipeline

import (
	"fmt"
	"strings"

	"github.com/railhead-io/railhead/internal/domain/release"
)

// TaskType identifies one kind of pipeline work item.
type TaskType string

// Kick-off stage tasks.
const (
	TaskPreKickOffReminder TaskType = "PRE_KICK_OFF_REMINDER"
	TaskForkBranch         TaskType = "FORK_BRANCH"
	TaskCreatePMTicket     TaskType = "CREATE_PROJECT_MANAGEMENT_TICKET"
	TaskCreateTestSuite    TaskType = "CREATE_TEST_SUITE"
	TaskTriggerPreRegBuild TaskType = "TRIGGER_PRE_REGRESSION_BUILDS"
)

// Regression stage tasks.
const (
	TaskResetTestSuite      TaskType = "RESET_TEST_SUITE"
	TaskCreateRCTag         TaskType = "CREATE_RC_TAG"
	TaskCreateReleaseNotes  TaskType = "CREATE_RELEASE_NOTES"
	TaskTriggerRegBuilds    TaskType = "TRIGGER_REGRESSION_BUILDS"
	TaskTriggerAutomation   TaskType = "TRIGGER_AUTOMATION_RUNS"
	TaskAutomationRuns      TaskType = "AUTOMATION_RUNS"
	TaskSendRegBuildMessage TaskType = "SEND_REGRESSION_BUILD_MESSAGE"
)

// Post-regression stage tasks.
const (
	TaskCherryPicksReminder  TaskType = "PRE_RELEASE_CHERRY_PICKS_REMINDER"
	TaskCreateReleaseTag     TaskType = "CREATE_RELEASE_TAG"
	TaskCreateFinalNotes     TaskType = "CREATE_FINAL_RELEASE_NOTES"
	TaskTriggerTestFlight    TaskType = "TRIGGER_TEST_FLIGHT_BUILD"
	TaskSendPostRegMessage   TaskType = "SEND_POST_REGRESSION_MESSAGE"
	TaskCheckReleaseApproval TaskType = "CHECK_PROJECT_RELEASE_APPROVAL"
)

// Category splits task types by how their outcome is recorded.
type Category string

const (
	// CategoryExternalRef tasks create or track a resource in an
	// external system and record its identifier as a plain string.
	CategoryExternalRef Category = "EXTERNAL_REF"

	// CategoryStructured tasks record a structured result document.
	CategoryStructured Category = "STRUCTURED"
)

// ConfigFlag names an optional-task switch on the cron config.
type ConfigFlag string

// Optional-task flags.
const (
	FlagNone               ConfigFlag = ""
	FlagKickOffReminder    ConfigFlag = "kickOffReminder"
	FlagPreRegressionBuild ConfigFlag = "preRegressionBuilds"
	FlagAutomationBuilds   ConfigFlag = "automationBuilds"
	FlagAutomationRuns     ConfigFlag = "automationRuns"
	FlagTestFlightBuilds   ConfigFlag = "testFlightBuilds"
)

// TaskSpec describes one task type: which stage it belongs to, how its
// outcome is recorded, and what enables or gates it.
type TaskSpec struct {
	Type     TaskType
	Stage    release.Stage
	Category Category

	// Order is the dispatch position within the stage.
	Order int

	// Flag names the cron config switch that enables this task.
	// FlagNone means the task always runs.
	Flag ConfigFlag

	// SkipOnFirstCycle drops the task from the first regression cycle.
	SkipOnFirstCycle bool

	// RequiresPlatform makes the task fail unless the release targets
	// the given platform.
	RequiresPlatform release.Platform
}

// Optional reports whether the task is switched by a config flag.
func (s TaskSpec) Optional() bool { return s.Flag != FlagNone }

// catalog is the authoritative task table. Order within a stage is the
// dispatch order.
func catalog() []TaskSpec {
	return []TaskSpec{
		// Kick-off
		{Type: TaskPreKickOffReminder, Stage: release.StageKickoff, Category: CategoryStructured, Order: 1, Flag: FlagKickOffReminder},
		{Type: TaskForkBranch, Stage: release.StageKickoff, Category: CategoryStructured, Order: 2},
		{Type: TaskCreatePMTicket, Stage: release.StageKickoff, Category: CategoryExternalRef, Order: 3},
		{Type: TaskCreateTestSuite, Stage: release.StageKickoff, Category: CategoryExternalRef, Order: 4},
		{Type: TaskTriggerPreRegBuild, Stage: release.StageKickoff, Category: CategoryExternalRef, Order: 5, Flag: FlagPreRegressionBuild},

		// Regression, repeated once per cycle
		{Type: TaskResetTestSuite, Stage: release.StageRegression, Category: CategoryStructured, Order: 1, SkipOnFirstCycle: true},
		{Type: TaskCreateRCTag, Stage: release.StageRegression, Category: CategoryStructured, Order: 2},
		{Type: TaskCreateReleaseNotes, Stage: release.StageRegression, Category: CategoryStructured, Order: 3},
		{Type: TaskTriggerRegBuilds, Stage: release.StageRegression, Category: CategoryExternalRef, Order: 4},
		{Type: TaskTriggerAutomation, Stage: release.StageRegression, Category: CategoryExternalRef, Order: 5, Flag: FlagAutomationBuilds},
		{Type: TaskAutomationRuns, Stage: release.StageRegression, Category: CategoryStructured, Order: 6, Flag: FlagAutomationRuns},
		{Type: TaskSendRegBuildMessage, Stage: release.StageRegression, Category: CategoryStructured, Order: 7},

		// Post-regression
		{Type: TaskCherryPicksReminder, Stage: release.StagePostRegression, Category: CategoryStructured, Order: 1},
		{Type: TaskCreateReleaseTag, Stage: release.StagePostRegression, Category: CategoryStructured, Order: 2},
		{Type: TaskCreateFinalNotes, Stage: release.StagePostRegression, Category: CategoryStructured, Order: 3},
		{Type: TaskTriggerTestFlight, Stage: release.StagePostRegression, Category: CategoryExternalRef, Order: 4, Flag: FlagTestFlightBuilds, RequiresPlatform: release.PlatformIOS},
		{Type: TaskSendPostRegMessage, Stage: release.StagePostRegression, Category: CategoryStructured, Order: 5},
		{Type: TaskCheckReleaseApproval, Stage: release.StagePostRegression, Category: CategoryStructured, Order: 6},
	}
}

// AllTaskTypes returns every task type in catalog order.
func AllTaskTypes() []TaskType {
	specs := catalog()
	out := make([]TaskType, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Type)
	}
	return out
}

// SpecFor returns the catalog entry for a task type.
func SpecFor(t TaskType) (TaskSpec, bool) {
	for _, s := range catalog() {
		if s.Type == t {
			return s, true
		}
	}
	return TaskSpec{}, false
}

// TasksForStage returns the specs for one stage in dispatch order.
func TasksForStage(stage release.Stage) []TaskSpec {
	out := make([]TaskSpec, 0, 7)
	for _, s := range catalog() {
		if s.Stage == stage {
			out = append(out, s)
		}
	}
	return out
}

// String returns the string representation.
func (t TaskType) String() string { return string(t) }

// IsValid checks if the task type exists in the catalog.
func (t TaskType) IsValid() bool {
	_, ok := SpecFor(t)
	return ok
}

// Stage returns the stage a task type belongs to.
func (t TaskType) Stage() (release.Stage, bool) {
	s, ok := SpecFor(t)
	return s.Stage, ok
}

// Category returns how the task's outcome is recorded.
func (t TaskType) Category() (Category, bool) {
	s, ok := SpecFor(t)
	return s.Category, ok
}

// ParseTaskType parses a task type from a string.
func ParseTaskType(raw string) (TaskType, error) {
	t := TaskType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid task type: %q", raw)
	}
	return t, nil
}

package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/railhead-io/railhead/internal/domain/release"
)

// MachineContext is the context evaluated by machine guards.
type MachineContext struct {
	Job           *CronJob
	ManualTrigger bool
}

// Event names for the pipeline machine.
const (
	EventStart              statekit.EventType = "START"
	EventKickoffDone        statekit.EventType = "KICKOFF_DONE"
	EventOpenRegression     statekit.EventType = "OPEN_REGRESSION"
	EventCycleDone          statekit.EventType = "CYCLE_DONE"
	EventNextCycle          statekit.EventType = "NEXT_CYCLE"
	EventOpenPostRegression statekit.EventType = "OPEN_POST_REGRESSION"
	EventFinish             statekit.EventType = "FINISH"
)

// Guard names for the pipeline machine.
const (
	GuardRegressionReady statekit.GuardType = "regressionReady"
	GuardSlotScheduled   statekit.GuardType = "slotScheduled"
	GuardNoSlotsPending  statekit.GuardType = "noSlotsPending"
)

// Phase names. A phase is the machine-level view of the pipeline: which
// stage runs, or which stage boundary the pipeline is waiting at.
const (
	PhasePending            = "PENDING"
	PhaseKickoff            = "KICKOFF"
	PhaseKickoffComplete    = "KICKOFF_COMPLETE"
	PhaseRegression         = "REGRESSION"
	PhaseRegressionComplete = "REGRESSION_COMPLETE"
	PhasePostRegression     = "POST_REGRESSION"
	PhaseCompleted          = "COMPLETED"
)

// Machine wraps the Statekit state machine for the release pipeline.
// The cron job aggregate stays the source of truth; the machine mirrors
// its flow for transition validation and visualization.
type Machine struct {
	interpreter *statekit.Interpreter[MachineContext]
}

// NewMachine builds the pipeline state machine.
func NewMachine() (*Machine, error) {
	machine, err := statekit.NewMachine[MachineContext]("release-pipeline").
		WithInitial(statekit.StateID(PhasePending)).
		// Guards
		WithGuard(GuardRegressionReady, guardRegressionReady).
		WithGuard(GuardSlotScheduled, guardSlotScheduled).
		WithGuard(GuardNoSlotsPending, guardNoSlotsPending).
		// Pending
		State(statekit.StateID(PhasePending)).
		On(EventStart).Target(statekit.StateID(PhaseKickoff)).
		Done().
		// Kick-off running
		State(statekit.StateID(PhaseKickoff)).
		On(EventKickoffDone).Target(statekit.StateID(PhaseKickoffComplete)).
		Done().
		// Kick-off done, waiting for auto transition or a manual trigger
		State(statekit.StateID(PhaseKickoffComplete)).
		On(EventOpenRegression).Target(statekit.StateID(PhaseRegression)).Guard(GuardRegressionReady).
		Done().
		// Regression cycle running
		State(statekit.StateID(PhaseRegression)).
		On(EventCycleDone).Target(statekit.StateID(PhaseRegressionComplete)).
		Done().
		// Between cycles: another due slot reopens regression, otherwise
		// the pipeline can move on.
		State(statekit.StateID(PhaseRegressionComplete)).
		On(EventNextCycle).Target(statekit.StateID(PhaseRegression)).Guard(GuardSlotScheduled).
		On(EventOpenPostRegression).Target(statekit.StateID(PhasePostRegression)).Guard(GuardNoSlotsPending).
		Done().
		// Post-regression running
		State(statekit.StateID(PhasePostRegression)).
		On(EventFinish).Target(statekit.StateID(PhaseCompleted)).
		Done().
		// Done (terminal)
		State(statekit.StateID(PhaseCompleted)).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline machine: %w", err)
	}

	return &Machine{interpreter: statekit.NewInterpreter(machine)}, nil
}

// Guards take context by value.

func guardRegressionReady(ctx MachineContext, _ statekit.Event) bool {
	if ctx.ManualTrigger {
		return true
	}
	return ctx.Job != nil && ctx.Job.AutoTransitionToStage2()
}

func guardSlotScheduled(ctx MachineContext, _ statekit.Event) bool {
	return ctx.Job != nil && ctx.Job.HasPendingSlots()
}

func guardNoSlotsPending(ctx MachineContext, _ statekit.Event) bool {
	if ctx.Job == nil {
		return false
	}
	if ctx.Job.HasPendingSlots() {
		return false
	}
	return ctx.ManualTrigger || ctx.Job.AutoTransitionToStage3()
}

// Start starts the machine interpreter.
func (m *Machine) Start() {
	m.interpreter.Start()
}

// Send sends an event to the interpreter.
func (m *Machine) Send(event statekit.EventType) error {
	if m.interpreter == nil {
		return fmt.Errorf("interpreter not started")
	}
	m.interpreter.Send(statekit.Event{Type: event})
	return nil
}

// CurrentPhase returns the interpreter's current phase.
func (m *Machine) CurrentPhase() string {
	if m.interpreter == nil {
		return ""
	}
	return string(m.interpreter.State().Value)
}

// IsDone returns true if the machine reached its final phase.
func (m *Machine) IsDone() bool {
	if m.interpreter == nil {
		return false
	}
	return m.interpreter.Done()
}

// PhaseOf derives the machine phase from persisted cron job state.
func PhaseOf(job *CronJob) string {
	switch {
	case job.CronStatus() == CronCompleted:
		return PhaseCompleted
	case job.CronStatus() == CronPending:
		return PhasePending
	case job.StageStatusFor(release.StagePostRegression) == StageInProgress:
		return PhasePostRegression
	case job.StageStatusFor(release.StageRegression) == StageInProgress:
		return PhaseRegression
	case job.StageStatusFor(release.StageRegression) == StageCompleted:
		return PhaseRegressionComplete
	case job.StageStatusFor(release.StageKickoff) == StageCompleted:
		return PhaseKickoffComplete
	default:
		return PhaseKickoff
	}
}

// XStateJSON represents the XState JSON format for visualization.
type XStateJSON struct {
	ID      string                     `json:"id"`
	Initial string                     `json:"initial"`
	States  map[string]XStateStateJSON `json:"states"`
}

// XStateStateJSON represents a state in XState JSON format.
type XStateStateJSON struct {
	Type string                      `json:"type,omitempty"`
	On   map[string]XStateTransition `json:"on,omitempty"`
}

// XStateTransition represents a transition in XState JSON format.
type XStateTransition struct {
	Target string `json:"target"`
	Guard  string `json:"cond,omitempty"`
}

// ExportXStateJSON exports the machine definition as XState-compatible JSON.
func (m *Machine) ExportXStateJSON() ([]byte, error) {
	xstate := XStateJSON{
		ID:      "release-pipeline",
		Initial: PhasePending,
		States: map[string]XStateStateJSON{
			PhasePending: {
				On: map[string]XStateTransition{
					string(EventStart): {Target: PhaseKickoff},
				},
			},
			PhaseKickoff: {
				On: map[string]XStateTransition{
					string(EventKickoffDone): {Target: PhaseKickoffComplete},
				},
			},
			PhaseKickoffComplete: {
				On: map[string]XStateTransition{
					string(EventOpenRegression): {Target: PhaseRegression, Guard: string(GuardRegressionReady)},
				},
			},
			PhaseRegression: {
				On: map[string]XStateTransition{
					string(EventCycleDone): {Target: PhaseRegressionComplete},
				},
			},
			PhaseRegressionComplete: {
				On: map[string]XStateTransition{
					string(EventNextCycle):          {Target: PhaseRegression, Guard: string(GuardSlotScheduled)},
					string(EventOpenPostRegression): {Target: PhasePostRegression, Guard: string(GuardNoSlotsPending)},
				},
			},
			PhasePostRegression: {
				On: map[string]XStateTransition{
					string(EventFinish): {Target: PhaseCompleted},
				},
			},
			PhaseCompleted: {
				Type: "final",
			},
		},
	}

	return json.MarshalIndent(xstate, "", "  ")
}

// ExportSnapshot exports a cron job's pipeline state as JSON.
func ExportSnapshot(job *CronJob) ([]byte, error) {
	snapshot := struct {
		ReleaseID     string            `json:"release_id"`
		Phase         string            `json:"phase"`
		CronStatus    string            `json:"cron_status"`
		PauseType     string            `json:"pause_type,omitempty"`
		Stages        map[string]string `json:"stages"`
		UpcomingSlots int               `json:"upcoming_slots"`
		UpdatedAt     string            `json:"updated_at"`
	}{
		ReleaseID:     string(job.ReleaseID()),
		Phase:         PhaseOf(job),
		CronStatus:    string(job.CronStatus()),
		PauseType:     string(job.PauseReason()),
		Stages:        make(map[string]string, 3),
		UpcomingSlots: len(job.UpcomingRegressions()),
		UpdatedAt:     job.UpdatedAt().Format("2006-01-02T15:04:05Z07:00"),
	}
	for _, s := range release.AllStages() {
		snapshot.Stages[string(s)] = string(job.StageStatusFor(s))
	}

	return json.MarshalIndent(snapshot, "", "  ")
}

package orchestrator

// Observer receives orchestration telemetry. The scheduler and executor
// report through it; the observability package implements it. A nop
// observer keeps telemetry strictly optional.
type Observer interface {
	// TickStarted reports a scheduler pass over the given number of
	// candidate releases.
	TickStarted(candidates int)

	// LeaseOutcome reports one lease attempt: acquired or contended.
	LeaseOutcome(acquired bool)

	// ReleaseAdvanced reports one completed orchestrator execution.
	ReleaseAdvanced(success bool)

	// TaskExecuted reports one task dispatch by type.
	TaskExecuted(taskType string, success bool)

	// NotificationDelivered reports one messaging fan-out attempt.
	NotificationDelivered(success bool)
}

// NopObserver drops all telemetry.
type NopObserver struct{}

func (NopObserver) TickStarted(int)            {}
func (NopObserver) LeaseOutcome(bool)          {}
func (NopObserver) ReleaseAdvanced(bool)       {}
func (NopObserver) TaskExecuted(string, bool)  {}
func (NopObserver) NotificationDelivered(bool) {}

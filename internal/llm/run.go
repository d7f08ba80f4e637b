package llm

// RunState is the lifecycle state of a threaded run.
//
//	created -> queued -> in_progress -> {completed | failed | cancelled | expired}
//
// Only completed is a success. requires_action and cancelling are transient.
// The service also reports incomplete, which is handled as a failure.
type RunState string

const (
	RunCreated        RunState = "created"
	RunQueued         RunState = "queued"
	RunInProgress     RunState = "in_progress"
	RunRequiresAction RunState = "requires_action"
	RunCancelling     RunState = "cancelling"
	RunCompleted      RunState = "completed"
	RunFailed         RunState = "failed"
	RunCancelled      RunState = "cancelled"
	RunExpired        RunState = "expired"
	RunIncomplete     RunState = "incomplete"
)

// Terminal reports whether no further transition can happen from s.
func (s RunState) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired, RunIncomplete:
		return true
	}
	return false
}

// Succeeded reports whether s is the success-terminal state.
func (s RunState) Succeeded() bool {
	return s == RunCompleted
}

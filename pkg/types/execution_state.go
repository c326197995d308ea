package types

// Phase is the top-level category of an ExecutionState.
type Phase string

const (
	PhaseAgentDisconnected Phase = "AgentDisconnected"
	PhasePending           Phase = "Pending"
	PhaseRunning           Phase = "Running"
	PhaseSucceeded         Phase = "Succeeded"
	PhaseFailed            Phase = "Failed"
	PhaseStopping          Phase = "Stopping"
	PhaseRemoved           Phase = "Removed"
)

// SubState refines a Phase. Which values are meaningful depends on the
// Phase; zero value SubStateNone applies to phases that carry no
// sub-state (AgentDisconnected, Removed).
type SubState string

const (
	SubStateNone SubState = ""

	// Pending sub-states.
	SubStateInitial        SubState = "Initial"
	SubStateWaitingToStart SubState = "WaitingToStart"
	SubStateStarting       SubState = "Starting"
	SubStateStartingFailed SubState = "StartingFailed"

	// Running sub-state.
	SubStateOk SubState = "Ok"

	// Failed sub-states.
	SubStateExecFailed SubState = "ExecFailed"
	SubStateUnknown    SubState = "Unknown"
	SubStateLost       SubState = "Lost"

	// Stopping sub-states.
	SubStateRequested    SubState = "Requested"
	SubStateDeleteFailed SubState = "DeleteFailed"
	SubStateWaitingToStop SubState = "WaitingToStop"
)

// ExecutionState is the reported state of one workload instance: a
// top-level Phase, a Phase-specific SubState, and a free-form diagnostic
// string.
type ExecutionState struct {
	Phase          Phase    `json:"phase"`
	SubState       SubState `json:"subState"`
	AdditionalInfo string   `json:"additionalInfo"`
}

// AgentDisconnected is the state assigned to every workload on an agent
// that the server has lost contact with.
func AgentDisconnected() ExecutionState {
	return ExecutionState{Phase: PhaseAgentDisconnected}
}

// PendingInitial is the state a workload starts in before its queue has
// attempted anything.
func PendingInitial() ExecutionState {
	return ExecutionState{Phase: PhasePending, SubState: SubStateInitial}
}

// PendingWaitingToStart is the state a workload is parked in while its
// add-conditions are not yet satisfied.
func PendingWaitingToStart() ExecutionState {
	return ExecutionState{Phase: PhasePending, SubState: SubStateWaitingToStart}
}

// PendingStarting is the state between issuing a create call and the
// runtime reporting success.
func PendingStarting() ExecutionState {
	return ExecutionState{Phase: PhasePending, SubState: SubStateStarting}
}

// PendingStartingFailed records a failed create attempt that will be
// retried.
func PendingStartingFailed(info string) ExecutionState {
	return ExecutionState{Phase: PhasePending, SubState: SubStateStartingFailed, AdditionalInfo: info}
}

// RunningOk is the steady-state "healthy and running" state.
func RunningOk() ExecutionState {
	return ExecutionState{Phase: PhaseRunning, SubState: SubStateOk}
}

// SucceededOk is reported when a workload's process exits cleanly and is
// not restarted.
func SucceededOk() ExecutionState {
	return ExecutionState{Phase: PhaseSucceeded, SubState: SubStateOk}
}

// FailedExecFailed is reported when the workload process exits with a
// nonzero status.
func FailedExecFailed(info string) ExecutionState {
	return ExecutionState{Phase: PhaseFailed, SubState: SubStateExecFailed, AdditionalInfo: info}
}

// FailedUnknown is reported when the runtime cannot determine the exit
// disposition of a workload.
func FailedUnknown(info string) ExecutionState {
	return ExecutionState{Phase: PhaseFailed, SubState: SubStateUnknown, AdditionalInfo: info}
}

// FailedLost is reported when the runtime has lost track of the
// workload's container entirely.
func FailedLost(info string) ExecutionState {
	return ExecutionState{Phase: PhaseFailed, SubState: SubStateLost, AdditionalInfo: info}
}

// StoppingRequested is reported immediately after a delete command is
// accepted, before the runtime call completes.
func StoppingRequested() ExecutionState {
	return ExecutionState{Phase: PhaseStopping, SubState: SubStateRequested}
}

// StoppingDeleteFailed records a failed delete attempt that will be
// retried.
func StoppingDeleteFailed(info string) ExecutionState {
	return ExecutionState{Phase: PhaseStopping, SubState: SubStateDeleteFailed, AdditionalInfo: info}
}

// StoppingWaitingToStop is reported while waiting for a dependent's
// delete-conditions to be satisfied before this workload may be deleted.
func StoppingWaitingToStop() ExecutionState {
	return ExecutionState{Phase: PhaseStopping, SubState: SubStateWaitingToStop}
}

// Removed is the terminal state reported once a workload's container has
// been deleted and its queue has exited.
func Removed() ExecutionState {
	return ExecutionState{Phase: PhaseRemoved}
}

// IsRunning reports whether s represents a healthy running instance.
func (s ExecutionState) IsRunning() bool {
	return s.Phase == PhaseRunning
}

// IsSucceeded reports whether s represents a workload that exited
// successfully.
func (s ExecutionState) IsSucceeded() bool {
	return s.Phase == PhaseSucceeded
}

// IsFailed reports whether s represents a workload in any failed
// sub-state.
func (s ExecutionState) IsFailed() bool {
	return s.Phase == PhaseFailed
}

// IsPending reports whether s is any Pending sub-state.
func (s ExecutionState) IsPending() bool {
	return s.Phase == PhasePending
}

// IsWaitingToStart reports whether s is specifically
// Pending(WaitingToStart).
func (s ExecutionState) IsWaitingToStart() bool {
	return s.Phase == PhasePending && s.SubState == SubStateWaitingToStart
}

// IsStopping reports whether s is any Stopping sub-state.
func (s ExecutionState) IsStopping() bool {
	return s.Phase == PhaseStopping
}

// IsRemoved reports whether s is the terminal Removed state.
func (s ExecutionState) IsRemoved() bool {
	return s.Phase == PhaseRemoved
}

// IsTerminal reports whether s is a state a restart policy acts on:
// Succeeded or Failed.
func (s ExecutionState) IsTerminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed
}

// IsNotPendingNorRunning reports whether s is neither a Pending nor a
// Running state, used by DeleteCondition NotPendingNorRunning.
func (s ExecutionState) IsNotPendingNorRunning() bool {
	return s.Phase != PhasePending && s.Phase != PhaseRunning
}

// inShutdownChain reports whether s is part of the one-way shutdown
// chain that ApplyHysteresis refuses to let a stray report reverse.
func (s ExecutionState) inShutdownChain() bool {
	return s.Phase == PhaseStopping || s.Phase == PhaseRemoved
}

// ApplyHysteresis computes the effective stored state given the
// previously stored state and a newly observed state. Once a workload
// has entered the Stopping/Removed shutdown chain, a stray runtime
// report that is not itself part of that chain must not revert the
// stored view back towards Running; the prior state is preserved
// instead.
func ApplyHysteresis(prior, observed ExecutionState) ExecutionState {
	if prior.inShutdownChain() && !observed.inShutdownChain() {
		return prior
	}
	return observed
}

// String renders the state as "Phase(SubState)" or bare "Phase" when
// there is no sub-state, e.g. for logging.
func (s ExecutionState) String() string {
	if s.SubState == SubStateNone {
		return string(s.Phase)
	}
	return string(s.Phase) + "(" + string(s.SubState) + ")"
}

// Package serverstate owns the server's single authoritative
// CompleteState: validating and applying updates, projecting filtered
// views for clients, and computing the per-agent workload deltas the
// dispatcher fans out.
package serverstate

import (
	"sort"
	"sync"

	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/statediff"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// ServerState owns the one CompleteState the server holds; every method
// takes the one mutex, so it is safe to call from the dispatcher's
// per-connection goroutines concurrently.
type ServerState struct {
	mu       sync.Mutex
	complete types.CompleteState
}

// New returns a ServerState with an empty desired state.
func New() *ServerState {
	return &ServerState{
		complete: types.CompleteState{
			DesiredState:   types.NewState(),
			WorkloadStates: map[string]types.ExecutionState{},
			AgentMap:       map[string]types.AgentAttributes{},
		},
	}
}

// UpdateResult is the outcome of an accepted Update: the canonical
// instance names that came into existence and the ones that went away.
type UpdateResult struct {
	Added   []string
	Deleted []string
}

// Update validates newState, merges it into the desired state through
// fieldMask (a full replacement when fieldMask is empty), and returns
// the canonical instance names added and deleted as a result. The
// update is rejected — and the stored state left untouched — if any
// invariant from types.State fails: api_version, name formats, resolved
// config references, or an acyclic dependency graph.
func (s *ServerState) Update(newState types.State, fieldMask []string) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := mergeState(s.complete.DesiredState, newState, fieldMask)
	if err := validate(merged); err != nil {
		return UpdateResult{}, err
	}

	added, deleted := diffInstanceNames(s.complete.DesiredState, merged)
	s.complete.DesiredState = merged
	return UpdateResult{Added: added, Deleted: deleted}, nil
}

// GetCompleteState projects the current complete state through
// fieldMask (the full state when fieldMask is empty).
func (s *ServerState) GetCompleteState(fieldMask []string) types.CompleteState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statediff.Project(s.complete, fieldMask)
}

// SetWorkloadState records a workload's reported execution state
// directly into the complete state snapshot this ServerState projects
// from event subscriptions and CLI queries. The hysteresis-applying
// mutation itself lives in pkg/statestore; the dispatcher calls that
// store and mirrors the effective result here so GetCompleteState and
// diffing see the same value.
func (s *ServerState) SetWorkloadState(instanceName string, state types.ExecutionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete.WorkloadStates[instanceName] = state
}

// RemoveWorkloadState drops a workload's entry entirely, e.g. once it
// has been observed Removed or its agent disconnected.
func (s *ServerState) RemoveWorkloadState(instanceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.complete.WorkloadStates, instanceName)
}

// SetAgentAttributes records an agent's most recently reported load.
func (s *ServerState) SetAgentAttributes(agentName string, attrs types.AgentAttributes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete.AgentMap[agentName] = attrs
}

// RemoveAgent drops an agent's entry from the agent map.
func (s *ServerState) RemoveAgent(agentName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.complete.AgentMap, agentName)
}

// DesiredStateSnapshot returns a copy of the current desired state, used
// by components (the runtime manager reconciliation, dependency
// gating) that need to read workload specs without going through a
// field-mask projection.
func (s *ServerState) DesiredStateSnapshot() types.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete.DesiredState
}

// WorkloadsPerAgent partitions added and deleted instance names by the
// agent each one targets, for the dispatcher to turn into one
// UpdateWorkload message per affected agent. Both added and deleted
// instance names are parsed directly for their agent part; desired is
// not consulted, and names that fail to parse are skipped.
func WorkloadsPerAgent(desired types.State, added, deleted []string) map[string]UpdateResult {
	perAgent := map[string]UpdateResult{}
	for _, name := range added {
		parsed, err := naming.Parse(name)
		if err != nil {
			continue
		}
		entry := perAgent[parsed.AgentName]
		entry.Added = append(entry.Added, name)
		perAgent[parsed.AgentName] = entry
	}
	for _, name := range deleted {
		parsed, err := naming.Parse(name)
		if err != nil {
			continue
		}
		entry := perAgent[parsed.AgentName]
		entry.Deleted = append(entry.Deleted, name)
		perAgent[parsed.AgentName] = entry
	}
	_ = desired // reserved for callers that need to cross-check agent liveness
	return perAgent
}

// diffInstanceNames computes the symmetric difference of the workload
// sets of oldState and newState in terms of canonical instance names. A
// workload surviving under the same name is treated as deleted+added
// when its runtime_config changed (its instance hash, and therefore its
// identity, changed with it); otherwise it is an in-place update and
// contributes no instance-name churn at all.
func diffInstanceNames(oldState, newState types.State) (added, deleted []string) {
	for name, spec := range newState.Workloads {
		oldSpec, existed := oldState.Workloads[name]
		newInstance := naming.BuildFromSpec(name, spec)
		if !existed {
			added = append(added, newInstance.String())
			continue
		}
		oldInstance := naming.BuildFromSpec(name, oldSpec)
		if !oldInstance.Equal(newInstance) {
			deleted = append(deleted, oldInstance.String())
			added = append(added, newInstance.String())
		}
	}
	for name, oldSpec := range oldState.Workloads {
		if _, stillPresent := newState.Workloads[name]; !stillPresent {
			deleted = append(deleted, naming.BuildFromSpec(name, oldSpec).String())
		}
	}
	sort.Strings(added)
	sort.Strings(deleted)
	return added, deleted
}

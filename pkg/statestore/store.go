// Package statestore holds the server's in-memory view of every
// workload instance's execution state, applying hysteresis on every
// update so a stray report can never walk a shutting-down workload back
// towards Running.
package statestore

import (
	"sort"
	"sync"

	"github.com/cuemby/ankaios-core/pkg/types"
)

// Store is a map of workload instance name to execution state, with a
// secondary per-agent index so an agent's entries can be located and
// dropped in bulk when it disconnects.
type Store struct {
	mu      sync.Mutex
	states  map[string]types.ExecutionState
	agentOf map[string]string            // instance name -> owning agent
	byAgent map[string]map[string]struct{} // agent -> set of instance names
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		states:  map[string]types.ExecutionState{},
		agentOf: map[string]string{},
		byAgent: map[string]map[string]struct{}{},
	}
}

// Update applies the hysteresis rule between the previously stored state
// (if any) and observed, stores the effective result, and returns it.
// agentName records which agent owns this instance, for RemoveAgent.
func (s *Store) Update(instanceName, agentName string, observed types.ExecutionState) types.ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, had := s.states[instanceName]
	effective := observed
	if had {
		effective = types.ApplyHysteresis(prior, observed)
	}
	s.states[instanceName] = effective
	s.agentOf[instanceName] = agentName
	if s.byAgent[agentName] == nil {
		s.byAgent[agentName] = map[string]struct{}{}
	}
	s.byAgent[agentName][instanceName] = struct{}{}
	return effective
}

// Get returns the stored state for instanceName, if any.
func (s *Store) Get(instanceName string) (types.ExecutionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[instanceName]
	return st, ok
}

// Remove drops a single instance, e.g. once its queue has reported
// Removed and exited, or the workload was dropped from the desired
// state entirely.
func (s *Store) Remove(instanceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(instanceName)
}

func (s *Store) removeLocked(instanceName string) {
	agent, ok := s.agentOf[instanceName]
	delete(s.states, instanceName)
	delete(s.agentOf, instanceName)
	if ok {
		delete(s.byAgent[agent], instanceName)
		if len(s.byAgent[agent]) == 0 {
			delete(s.byAgent, agent)
		}
	}
}

// RemoveAgent drops every instance owned by agentName — the clean-up a
// dispatcher performs when that agent's transport connection is lost —
// and returns the instance names that were removed, sorted for
// deterministic logging and downstream fan-out.
func (s *Store) RemoveAgent(agentName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.byAgent[agentName]))
	for name := range s.byAgent[agentName] {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.removeLocked(name)
	}
	return names
}

// All returns a snapshot copy of every stored state, keyed by instance
// name.
func (s *Store) All() map[string]types.ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.ExecutionState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// ForAgent returns a snapshot copy of the states owned by agentName.
func (s *Store) ForAgent(agentName string) map[string]types.ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.ExecutionState, len(s.byAgent[agentName]))
	for name := range s.byAgent[agentName] {
		out[name] = s.states[name]
	}
	return out
}

// Package events holds the subscriber store behind server-sent complete
// state events: each subscriber (an agent connection or a CLI
// connection) registers a set of field masks, and after every accepted
// state update the dispatcher calls Emit with the update's diff tree so
// each subscriber whose masks matched part of it receives a filtered
// CompleteState response tagged with the altered field paths.
package events

import (
	"sync"

	"github.com/cuemby/ankaios-core/pkg/statediff"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// Store holds the current set of event subscribers, keyed by the
// RequestId each one subscribed under.
type Store struct {
	mu          sync.Mutex
	subscribers map[string]subscriber
}

type subscriber struct {
	id    types.RequestID
	masks []string
}

// New returns an empty subscriber store.
func New() *Store {
	return &Store{subscribers: map[string]subscriber{}}
}

// Add registers id as a subscriber with the given field masks, replacing
// any prior registration for the same id.
func (s *Store) Add(id types.RequestID, masks []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[id.String()] = subscriber{id: id, masks: masks}
}

// Remove drops the subscription registered under id, if any.
func (s *Store) Remove(id types.RequestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id.String())
}

// RemoveAllForAgent drops every subscription whose origin is the named
// agent, e.g. once that agent's connection is gone.
func (s *Store) RemoveAllForAgent(agentName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sub := range s.subscribers {
		if sub.id.MatchesAgent(agentName) {
			delete(s.subscribers, key)
		}
	}
}

// RemoveAllForCli drops every subscription whose origin is the named CLI
// connection, e.g. once that connection closes.
func (s *Store) RemoveAllForCli(cliConnection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sub := range s.subscribers {
		if sub.id.MatchesCli(cliConnection) {
			delete(s.subscribers, key)
		}
	}
}

// RemoveWorkload drops the subscription tied to a specific agent and
// workload name, used when a workload's control interface connection
// dies so a stale subscription is not left behind.
func (s *Store) RemoveWorkload(agentName, workloadName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sub := range s.subscribers {
		if sub.id.MatchesAgentWorkload(agentName, workloadName) {
			delete(s.subscribers, key)
		}
	}
}

// HasSubscribers reports whether any subscriber is currently registered.
func (s *Store) HasSubscribers() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) > 0
}

// Emit computes, for each registered subscriber, the altered field paths
// of added, removed and updated that its masks match (a subscriber with
// no masks matches every leaf path); subscribers with no matches at all
// are skipped. current is the complete state to project the union of
// matched paths through for each emitted response.
func (s *Store) Emit(added, removed, updated statediff.Tree, current types.CompleteState) []types.Response {
	s.mu.Lock()
	subs := make([]subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	var responses []types.Response
	for _, sub := range subs {
		altered := types.AlteredFields{
			Added:   matchPaths(added, sub.masks),
			Removed: matchPaths(removed, sub.masks),
			Updated: matchPaths(updated, sub.masks),
		}
		if altered.AllEmpty() {
			continue
		}

		filterMasks := make([]string, 0, len(altered.Added)+len(altered.Removed)+len(altered.Updated))
		filterMasks = append(filterMasks, altered.Added...)
		filterMasks = append(filterMasks, altered.Removed...)
		filterMasks = append(filterMasks, altered.Updated...)

		responses = append(responses, types.Response{
			RequestID:     sub.id,
			Kind:          types.ResponseCompleteState,
			CompleteState: statediff.Project(current, filterMasks),
			AlteredFields: &altered,
		})
	}
	return responses
}

// matchPaths returns the paths of tree that masks select, or every leaf
// path of tree when masks is empty.
func matchPaths(tree statediff.Tree, masks []string) []string {
	if len(masks) > 0 {
		return statediff.MatchMasks(tree, masks)
	}
	if len(tree) == 0 {
		return nil
	}
	return statediff.CollectLeafPaths(tree)
}

// Package logcampaign tracks which agents are streaming workload logs to
// which collectors, across three kinds of disconnect: the collecting
// agent going away, a CLI connection closing, and a single collector
// workload being removed from the desired state. Each case needs a
// different slice of the same campaign metadata torn down, so the store
// keeps four indices over one set of active log requests rather than a
// single list scanned on every disconnect.
package logcampaign

import (
	"sync"

	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// DisconnectedProvider names one producing agent's log streams that can
// no longer be serviced because that agent just disconnected, even
// though the collector's request itself survives.
type DisconnectedProvider struct {
	RequestID string
	Providers []naming.InstanceName
}

// RemovedLogRequests is the result of tearing down every log campaign
// tied to an agent that disconnected.
type RemovedLogRequests struct {
	// CollectorRequests are requests originated by a workload running on
	// the disconnected agent; the collector is gone, so nothing more
	// needs sending for these.
	CollectorRequests []string

	// DisconnectedLogProviders are requests originated elsewhere for
	// which the disconnected agent was producing logs; the collector is
	// still around and needs a LogsStopResponse for each.
	DisconnectedLogProviders []DisconnectedProvider
}

// Store holds the metadata behind every in-flight log streaming request:
// which agent or CLI connection is collecting it, which workload
// requested it, and which producing agents are feeding it.
type Store struct {
	mu sync.Mutex

	// agentRequests indexes by the agent hosting the collecting
	// workload, i.e. AgentRequestID.AgentName.
	agentRequests map[string]map[string]types.RequestID

	// workloadRequests indexes by the collecting workload's name.
	workloadRequests map[string]map[string]types.RequestID

	// cliRequests indexes by the CLI connection name.
	cliRequests map[string]map[string]types.RequestID

	// logProviders indexes by the producing agent, then by request id
	// string, onto the provider instances that agent streams for that
	// request.
	logProviders map[string]map[string][]naming.InstanceName
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		agentRequests:    map[string]map[string]types.RequestID{},
		workloadRequests: map[string]map[string]types.RequestID{},
		cliRequests:      map[string]map[string]types.RequestID{},
		logProviders:     map[string]map[string][]naming.InstanceName{},
	}
}

// Insert records a new log streaming campaign: id is the collector's
// request, providers are the workload instances whose logs will be
// streamed to satisfy it.
func (s *Store) Insert(id types.RequestID, providers []naming.InstanceName) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.String()
	switch id.Kind {
	case types.RequestIDCli:
		indexAdd(s.cliRequests, id.CliConnection, key, id)
	case types.RequestIDAgent:
		indexAdd(s.workloadRequests, id.WorkloadName, key, id)
		indexAdd(s.agentRequests, id.AgentName, key, id)
	}

	for _, provider := range providers {
		byRequest, ok := s.logProviders[provider.AgentName]
		if !ok {
			byRequest = map[string][]naming.InstanceName{}
			s.logProviders[provider.AgentName] = byRequest
		}
		byRequest[key] = append(byRequest[key], provider)
	}
}

func indexAdd(index map[string]map[string]types.RequestID, outerKey, innerKey string, id types.RequestID) {
	inner, ok := index[outerKey]
	if !ok {
		inner = map[string]types.RequestID{}
		index[outerKey] = inner
	}
	inner[innerKey] = id
}

func indexRemoveOne(index map[string]map[string]types.RequestID, outerKey, innerKey string) {
	inner, ok := index[outerKey]
	if !ok {
		return
	}
	delete(inner, innerKey)
	if len(inner) == 0 {
		delete(index, outerKey)
	}
}

// RemoveAgent tears down every campaign tied to agentName: every request
// collected by a workload running on that agent is dropped outright
// (nothing left to notify), and every other request that agentName was
// producing logs for is reported so a LogsStopResponse can still reach
// its collector.
func (s *Store) RemoveAgent(agentName string) RemovedLogRequests {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := s.agentRequests[agentName]
	delete(s.agentRequests, agentName)

	collectorRequests := make([]string, 0, len(requests))
	for key, id := range requests {
		collectorRequests = append(collectorRequests, key)
		// The collector workload's agent is gone; nothing can still be
		// waiting on this request under its workload name either.
		delete(s.workloadRequests, id.WorkloadName)
		s.removeFromLogProviders(key)
	}

	var disconnected []DisconnectedProvider
	if byRequest, ok := s.logProviders[agentName]; ok {
		delete(s.logProviders, agentName)
		for key, providers := range byRequest {
			disconnected = append(disconnected, DisconnectedProvider{RequestID: key, Providers: providers})
		}
	}

	return RemovedLogRequests{
		CollectorRequests:        collectorRequests,
		DisconnectedLogProviders: disconnected,
	}
}

// RemoveCli tears down every campaign collected by cliConnection,
// returning the removed request ids.
func (s *Store) RemoveCli(cliConnection string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := s.cliRequests[cliConnection]
	delete(s.cliRequests, cliConnection)

	removed := make([]string, 0, len(requests))
	for key := range requests {
		removed = append(removed, key)
		s.removeFromLogProviders(key)
	}
	return removed
}

// RemoveCollectorEntry tears down every campaign collected by
// workloadName, e.g. once that workload is removed from the desired
// state. Unlike RemoveAgent, only this workload's own requests are
// dropped; its agent's other campaigns survive.
func (s *Store) RemoveCollectorEntry(workloadName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := s.workloadRequests[workloadName]
	delete(s.workloadRequests, workloadName)

	removed := make([]string, 0, len(requests))
	for key, id := range requests {
		removed = append(removed, key)
		indexRemoveOne(s.agentRequests, id.AgentName, key)
		s.removeFromLogProviders(key)
	}
	return removed
}

// Remove tears down a single request by its wire id string, whichever
// kind of collector originated it.
func (s *Store) Remove(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := types.ParseRequestID(requestID)
	if err != nil {
		return
	}

	s.removeFromLogProviders(requestID)

	switch id.Kind {
	case types.RequestIDCli:
		indexRemoveOne(s.cliRequests, id.CliConnection, requestID)
	case types.RequestIDAgent:
		indexRemoveOne(s.agentRequests, id.AgentName, requestID)
		indexRemoveOne(s.workloadRequests, id.WorkloadName, requestID)
	}
}

func (s *Store) removeFromLogProviders(requestID string) {
	for agentName, byRequest := range s.logProviders {
		delete(byRequest, requestID)
		if len(byRequest) == 0 {
			delete(s.logProviders, agentName)
		}
	}
}

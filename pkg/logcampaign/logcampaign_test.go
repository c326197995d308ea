package logcampaign

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/types"
)

var provider = naming.Build("log_provider", "agent_B", "some_config")

func populated(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.Insert(types.NewAgentRequestID("agent_A", "workload_1", "request_id"), []naming.InstanceName{provider})
	s.Insert(types.NewAgentRequestID("agent_B", "workload_2", "request_id"), []naming.InstanceName{provider})
	s.Insert(types.NewCliRequestID("cli-conn-1", "cli_request_id_1"), []naming.InstanceName{provider})
	s.Insert(types.NewCliRequestID("cli-conn-2", "cli_request_id_2"), []naming.InstanceName{provider})
	return s
}

func TestInsertCliRequestIndexesByConnectionAndProvider(t *testing.T) {
	s := New()
	id1 := types.NewCliRequestID("cli-conn-1", "r1")
	s.Insert(id1, []naming.InstanceName{provider})

	assert.Len(t, s.cliRequests, 1)
	assert.Contains(t, s.cliRequests["cli-conn-1"], id1.String())
	assert.Len(t, s.logProviders["agent_B"], 1)

	id2 := types.NewCliRequestID("cli-conn-2", "r2")
	s.Insert(id2, []naming.InstanceName{provider})
	assert.Len(t, s.cliRequests, 2)
	assert.Len(t, s.logProviders["agent_B"], 2)

	id3 := types.NewCliRequestID("cli-conn-1", "r3")
	s.Insert(id3, []naming.InstanceName{provider})
	assert.Len(t, s.cliRequests["cli-conn-1"], 2)
	assert.Len(t, s.logProviders["agent_B"], 3)

	assert.Empty(t, s.agentRequests)
	assert.Empty(t, s.workloadRequests)
}

func TestInsertAgentRequestIndexesByAgentAndWorkload(t *testing.T) {
	s := New()
	id := types.NewAgentRequestID("agent_A", "workload_1", "request_id")
	s.Insert(id, []naming.InstanceName{provider})

	assert.Contains(t, s.agentRequests["agent_A"], id.String())
	assert.Contains(t, s.workloadRequests["workload_1"], id.String())
	assert.Len(t, s.logProviders["agent_B"], 1)
	assert.Empty(t, s.cliRequests)
}

func TestRemoveAgentDropsOwnCollectorRequestsNoDisconnectedProviders(t *testing.T) {
	s := populated(t)

	removed := s.RemoveAgent("agent_A")

	assert.ElementsMatch(t, removed.CollectorRequests, []string{"agent_A@workload_1@request_id"})
	assert.Empty(t, removed.DisconnectedLogProviders)

	assert.NotContains(t, s.agentRequests, "agent_A")
	assert.Contains(t, s.agentRequests, "agent_B")
	assert.NotContains(t, s.workloadRequests, "workload_1")
	assert.Contains(t, s.workloadRequests, "workload_2")
	assert.Len(t, s.cliRequests, 2)
}

func TestRemoveAgentReportsDisconnectedProvidersWhenAgentWasProducing(t *testing.T) {
	s := populated(t)

	removed := s.RemoveAgent("agent_B")

	assert.ElementsMatch(t, removed.CollectorRequests, []string{"agent_B@workload_2@request_id"})
	// agent_B was the sole producer for all four requests; its own
	// collector request is dropped outright, leaving three to report.
	assert.Len(t, removed.DisconnectedLogProviders, 3)

	assert.Contains(t, s.agentRequests, "agent_A")
	assert.NotContains(t, s.agentRequests, "agent_B")
	assert.Contains(t, s.workloadRequests, "workload_1")
	assert.NotContains(t, s.workloadRequests, "workload_2")
	assert.NotContains(t, s.logProviders, "agent_B")
	assert.Len(t, s.cliRequests, 2)
}

func TestRemoveCliDropsOnlyThatConnectionsRequests(t *testing.T) {
	s := populated(t)

	removed := s.RemoveCli("cli-conn-1")

	assert.ElementsMatch(t, removed, []string{"cli-conn-1@cli_request_id_1"})
	assert.NotContains(t, s.cliRequests, "cli-conn-1")
	assert.Contains(t, s.cliRequests, "cli-conn-2")
	assert.Len(t, s.logProviders["agent_B"], 3)
	assert.Len(t, s.agentRequests, 2)
	assert.Len(t, s.workloadRequests, 2)
}

func TestRemoveSingleAgentRequestByID(t *testing.T) {
	s := populated(t)

	s.Remove("agent_A@workload_1@request_id")

	assert.NotContains(t, s.agentRequests, "agent_A")
	assert.NotContains(t, s.workloadRequests, "workload_1")
	assert.Len(t, s.logProviders["agent_B"], 3)
	assert.Contains(t, s.agentRequests, "agent_B")
	assert.Len(t, s.cliRequests, 2)
}

func TestRemoveSingleCliRequestByID(t *testing.T) {
	s := populated(t)

	s.Remove("cli-conn-1@cli_request_id_1")

	assert.NotContains(t, s.cliRequests, "cli-conn-1")
	assert.Len(t, s.logProviders["agent_B"], 3)
	assert.Len(t, s.agentRequests, 2)
	assert.Len(t, s.workloadRequests, 2)
}

func TestRemoveCollectorEntryDropsOnlyThatWorkloadsRequests(t *testing.T) {
	s := populated(t)

	removed := s.RemoveCollectorEntry("workload_1")

	assert.ElementsMatch(t, removed, []string{"agent_A@workload_1@request_id"})
	assert.NotContains(t, s.workloadRequests, "workload_1")
	assert.Contains(t, s.workloadRequests, "workload_2")
	// agent_A's only request was the one for workload_1, so its entry
	// is dropped entirely; agent_B's stays.
	assert.NotContains(t, s.agentRequests, "agent_A")
	assert.Contains(t, s.agentRequests, "agent_B")
	assert.Len(t, s.logProviders["agent_B"], 3)
}

func TestRemoveUnknownRequestIDIsNoop(t *testing.T) {
	s := populated(t)
	s.Remove("cli-conn-9@does_not_exist")
	assert.Len(t, s.cliRequests, 2)
}

package statediff

import (
	"testing"

	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeStateWithWorkload(name, agent string) types.CompleteState {
	s := types.NewState()
	s.Workloads[name] = types.WorkloadSpec{AgentName: agent, RuntimeName: "podman"}
	return types.CompleteState{DesiredState: s, WorkloadStates: map[string]types.ExecutionState{}, AgentMap: map[string]types.AgentAttributes{}}
}

func TestDiffAddedWorkloadIsCompositeLeaf(t *testing.T) {
	oldState := types.CompleteState{DesiredState: types.NewState(), WorkloadStates: map[string]types.ExecutionState{}, AgentMap: map[string]types.AgentAttributes{}}
	newState := completeStateWithWorkload("foo", "agent_a")

	added, removed, updated := Diff(oldState, newState)
	assert.Empty(t, removed)
	assert.Empty(t, updated)

	require.Contains(t, added, "desiredState")
	require.Contains(t, added["desiredState"], "workloads")
	require.Contains(t, added["desiredState"]["workloads"], "foo")
	assert.True(t, added["desiredState"]["workloads"]["foo"].IsLeaf())
}

func TestDiffRemovedWorkloadIsCompositeLeaf(t *testing.T) {
	oldState := completeStateWithWorkload("foo", "agent_a")
	newState := types.CompleteState{DesiredState: types.NewState(), WorkloadStates: map[string]types.ExecutionState{}, AgentMap: map[string]types.AgentAttributes{}}

	added, removed, updated := Diff(oldState, newState)
	assert.Empty(t, added)
	assert.Empty(t, updated)
	assert.True(t, removed["desiredState"]["workloads"]["foo"].IsLeaf())
}

func TestDiffUpdatedFieldIsPreciseLeaf(t *testing.T) {
	oldState := completeStateWithWorkload("foo", "agent_a")
	newState := completeStateWithWorkload("foo", "agent_b")

	added, removed, updated := Diff(oldState, newState)
	assert.Empty(t, added)
	assert.Empty(t, removed)

	assert.True(t, updated["desiredState"]["workloads"]["foo"]["agent"].IsLeaf())
	// runtime field unchanged, must not appear.
	assert.NotContains(t, updated["desiredState"]["workloads"]["foo"], "runtime")
}

func TestMatchMasksWildcardFanOut(t *testing.T) {
	oldState := completeStateWithWorkload("foo", "agent_a")
	newState := completeStateWithWorkload("foo", "agent_b")
	_, _, updated := Diff(oldState, newState)

	matches := MatchMasks(updated, []string{"desiredState.workloads.*.agent"})
	assert.Equal(t, []string{"desiredState.workloads.foo.agent"}, matches)
}

func TestMatchMasksEndsAtInternalNodeFansOutLeaves(t *testing.T) {
	oldState := types.CompleteState{DesiredState: types.NewState(), WorkloadStates: map[string]types.ExecutionState{}, AgentMap: map[string]types.AgentAttributes{}}
	newState := completeStateWithWorkload("foo", "agent_a")
	added, _, _ := Diff(oldState, newState)

	matches := MatchMasks(added, []string{"desiredState.workloads"})
	assert.Equal(t, []string{"desiredState.workloads.foo"}, matches)
}

func TestMatchMasksNoMatchReturnsEmpty(t *testing.T) {
	oldState := completeStateWithWorkload("foo", "agent_a")
	newState := completeStateWithWorkload("foo", "agent_b")
	_, _, updated := Diff(oldState, newState)

	matches := MatchMasks(updated, []string{"desiredState.workloads.*.runtime"})
	assert.Empty(t, matches)
}

func TestDiffRoundTripAppliesBackToNewState(t *testing.T) {
	oldState := completeStateWithWorkload("foo", "agent_a")
	newState := completeStateWithWorkload("foo", "agent_b")

	_, _, updated := Diff(oldState, newState)
	paths := CollectLeafPaths(updated)
	require.Len(t, paths, 1)

	projectedOld := Project(oldState, paths)
	projectedNew := Project(newState, paths)
	assert.NotEqual(t, projectedOld, projectedNew)
	assert.Equal(t, "agent_b", projectedNew.DesiredState.Workloads["foo"].AgentName)
}

func TestProjectEmptyMaskReturnsFullState(t *testing.T) {
	state := completeStateWithWorkload("foo", "agent_a")
	assert.Equal(t, state, Project(state, nil))
}

func TestProjectSingleFieldPreservesShapeOnly(t *testing.T) {
	state := completeStateWithWorkload("foo", "agent_a")
	projected := Project(state, []string{"desiredState.workloads.foo.agent"})

	require.Contains(t, projected.DesiredState.Workloads, "foo")
	assert.Equal(t, "agent_a", projected.DesiredState.Workloads["foo"].AgentName)
	assert.Equal(t, "", projected.DesiredState.Workloads["foo"].RuntimeName)
	assert.Empty(t, projected.WorkloadStates)
	assert.Empty(t, projected.AgentMap)
}

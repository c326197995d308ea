package serverstate

import (
	"testing"

	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateWith(workloads map[string]types.WorkloadSpec) types.State {
	s := types.NewState()
	for name, spec := range workloads {
		s.Workloads[name] = spec
	}
	return s
}

func TestUpdateFullReplacementAddsNewWorkload(t *testing.T) {
	s := New()
	newState := stateWith(map[string]types.WorkloadSpec{
		"nginx": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "image: nginx"},
	})

	result, err := s.Update(newState, nil)
	require.NoError(t, err)

	want := naming.BuildFromSpec("nginx", newState.Workloads["nginx"]).String()
	assert.Equal(t, []string{want}, result.Added)
	assert.Empty(t, result.Deleted)
}

func TestUpdateRejectsWrongAPIVersion(t *testing.T) {
	s := New()
	bad := types.State{APIVersion: "v9.9", Workloads: map[string]types.WorkloadSpec{}, Configs: map[string]types.ConfigItem{}}

	_, err := s.Update(bad, nil)
	require.Error(t, err)
	var verr *types.InvalidAPIVersionError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateRejectsInvalidWorkloadName(t *testing.T) {
	s := New()
	bad := stateWith(map[string]types.WorkloadSpec{
		"bad name!": {AgentName: "agent_A", RuntimeName: "podman"},
	})

	_, err := s.Update(bad, nil)
	require.Error(t, err)
	var verr *types.InvalidNameError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "workload", verr.Kind)
}

func TestUpdateRejectsUnknownConfigReference(t *testing.T) {
	s := New()
	bad := stateWith(map[string]types.WorkloadSpec{
		"nginx": {
			AgentName:   "agent_A",
			RuntimeName: "podman",
			Configs:     map[string]string{"conf": "missing_key"},
		},
	})

	_, err := s.Update(bad, nil)
	require.Error(t, err)
	var verr *types.UnknownConfigReferenceError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateRejectsCyclicDependencies(t *testing.T) {
	s := New()
	bad := stateWith(map[string]types.WorkloadSpec{
		"a": {AgentName: "agent_A", Dependencies: map[string]types.AddCondition{"b": types.AddConditionRunning}},
		"b": {AgentName: "agent_A", Dependencies: map[string]types.AddCondition{"a": types.AddConditionRunning}},
	})

	_, err := s.Update(bad, nil)
	require.Error(t, err)
	var verr *types.CycleDetectedError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateLeavesStoredStateUntouchedOnRejection(t *testing.T) {
	s := New()
	good := stateWith(map[string]types.WorkloadSpec{
		"nginx": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "image: nginx"},
	})
	_, err := s.Update(good, nil)
	require.NoError(t, err)

	bad := types.State{APIVersion: "bogus"}
	_, err = s.Update(bad, nil)
	require.Error(t, err)

	snapshot := s.DesiredStateSnapshot()
	assert.Contains(t, snapshot.Workloads, "nginx")
}

func TestUpdateMaskScopedReplaceAddsWithoutTouchingOthers(t *testing.T) {
	s := New()
	_, err := s.Update(stateWith(map[string]types.WorkloadSpec{
		"a": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "a"},
	}), nil)
	require.NoError(t, err)

	patch := stateWith(map[string]types.WorkloadSpec{
		"b": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "b"},
	})
	result, err := s.Update(patch, []string{"workloads.b"})
	require.NoError(t, err)

	wantAdded := naming.BuildFromSpec("b", patch.Workloads["b"]).String()
	assert.Equal(t, []string{wantAdded}, result.Added)

	snapshot := s.DesiredStateSnapshot()
	assert.Contains(t, snapshot.Workloads, "a")
	assert.Contains(t, snapshot.Workloads, "b")
}

func TestUpdateMaskScopedDeleteRemovesOnlySelectedWorkload(t *testing.T) {
	s := New()
	_, err := s.Update(stateWith(map[string]types.WorkloadSpec{
		"a": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "a"},
		"b": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "b"},
	}), nil)
	require.NoError(t, err)

	empty := types.NewState()
	result, err := s.Update(empty, []string{"workloads.b"})
	require.NoError(t, err)

	wantDeleted := naming.Build("b", "agent_A", "b").String()
	assert.Equal(t, []string{wantDeleted}, result.Deleted)

	snapshot := s.DesiredStateSnapshot()
	assert.Contains(t, snapshot.Workloads, "a")
	assert.NotContains(t, snapshot.Workloads, "b")
}

func TestUpdateChangedRuntimeConfigIsDeletePlusAdd(t *testing.T) {
	s := New()
	_, err := s.Update(stateWith(map[string]types.WorkloadSpec{
		"a": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "v1"},
	}), nil)
	require.NoError(t, err)

	patch := stateWith(map[string]types.WorkloadSpec{
		"a": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "v2"},
	})
	result, err := s.Update(patch, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{naming.Build("a", "agent_A", "v1").String()}, result.Deleted)
	assert.Equal(t, []string{naming.Build("a", "agent_A", "v2").String()}, result.Added)
}

func TestUpdateInPlaceFieldChangeIsNotInstanceChurn(t *testing.T) {
	s := New()
	_, err := s.Update(stateWith(map[string]types.WorkloadSpec{
		"a": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "v1", Tags: map[string]string{"k": "v1"}},
	}), nil)
	require.NoError(t, err)

	patch := stateWith(map[string]types.WorkloadSpec{
		"a": {AgentName: "agent_A", RuntimeName: "podman", RuntimeConfig: "v1", Tags: map[string]string{"k": "v2"}},
	})
	result, err := s.Update(patch, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Added)
	assert.Empty(t, result.Deleted)
}

func TestGetCompleteStateEmptyMaskReturnsEverything(t *testing.T) {
	s := New()
	_, err := s.Update(stateWith(map[string]types.WorkloadSpec{
		"a": {AgentName: "agent_A", RuntimeName: "podman"},
	}), nil)
	require.NoError(t, err)

	complete := s.GetCompleteState(nil)
	assert.Contains(t, complete.DesiredState.Workloads, "a")
}

func TestWorkloadsPerAgentPartitionsByAgentSuffix(t *testing.T) {
	added := []string{naming.Build("a", "agent_A", "cfgA").String()}
	deleted := []string{naming.Build("b", "agent_B", "cfgB").String()}

	perAgent := WorkloadsPerAgent(types.NewState(), added, deleted)

	require.Contains(t, perAgent, "agent_A")
	require.Contains(t, perAgent, "agent_B")
	assert.Equal(t, added, perAgent["agent_A"].Added)
	assert.Equal(t, deleted, perAgent["agent_B"].Deleted)
}

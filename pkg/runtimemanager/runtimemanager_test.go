package runtimemanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/runtime"
	"github.com/cuemby/ankaios-core/pkg/types"
)

type reportRecorder struct {
	mu     sync.Mutex
	states map[string][]types.ExecutionState
}

func newReportRecorder() *reportRecorder {
	return &reportRecorder{states: map[string][]types.ExecutionState{}}
}

func (r *reportRecorder) record(instanceName naming.InstanceName, state types.ExecutionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[instanceName.WorkloadName] = append(r.states[instanceName.WorkloadName], state)
}

func (r *reportRecorder) has(workloadName string, want types.ExecutionState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states[workloadName] {
		if s == want {
			return true
		}
	}
	return false
}

func lookupOf(f *runtime.Fake) FacadeLookup {
	return func(name string) (runtime.Facade, bool) {
		if name != f.Name() {
			return nil, false
		}
		return f, true
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestHandleServerHelloCreatesNewQueues(t *testing.T) {
	fake := runtime.NewFake("fake")
	rec := newReportRecorder()
	m := New("agent-a", lookupOf(fake), rec.record, nil)

	m.HandleServerHello(context.Background(), map[string]types.WorkloadSpec{
		"web": {AgentName: "agent-a", RuntimeName: "fake", RuntimeConfig: "image: web"},
	})

	waitUntil(t, func() bool { return rec.has("web", types.RunningOk()) })
	assert.Len(t, fake.CreateCalls(), 1)
}

func TestHandleUpdateWorkloadIsIdempotentForUnchangedWorkload(t *testing.T) {
	fake := runtime.NewFake("fake")
	rec := newReportRecorder()
	m := New("agent-a", lookupOf(fake), rec.record, nil)

	spec := types.WorkloadSpec{AgentName: "agent-a", RuntimeName: "fake", RuntimeConfig: "image: web"}
	m.HandleServerHello(context.Background(), map[string]types.WorkloadSpec{"web": spec})
	waitUntil(t, func() bool { return rec.has("web", types.RunningOk()) })

	m.HandleUpdateWorkload(context.Background(), map[string]types.WorkloadSpec{"web": spec}, nil)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, fake.CreateCalls(), 1, "unchanged instance identity must not trigger a second create")
}

func TestHandleUpdateWorkloadReplacesChangedInstance(t *testing.T) {
	fake := runtime.NewFake("fake")
	rec := newReportRecorder()
	m := New("agent-a", lookupOf(fake), rec.record, nil)

	spec := types.WorkloadSpec{AgentName: "agent-a", RuntimeName: "fake", RuntimeConfig: "image: web"}
	m.HandleServerHello(context.Background(), map[string]types.WorkloadSpec{"web": spec})
	waitUntil(t, func() bool { return rec.has("web", types.RunningOk()) })

	changed := spec
	changed.RuntimeConfig = "image: web-v2"
	m.HandleUpdateWorkload(context.Background(), map[string]types.WorkloadSpec{"web": changed}, nil)

	waitUntil(t, func() bool { return len(fake.DeleteCalls()) == 1 && len(fake.CreateCalls()) == 2 })
}

func TestHandleUpdateWorkloadDeletesRemovedWorkload(t *testing.T) {
	fake := runtime.NewFake("fake")
	rec := newReportRecorder()
	m := New("agent-a", lookupOf(fake), rec.record, nil)

	spec := types.WorkloadSpec{AgentName: "agent-a", RuntimeName: "fake", RuntimeConfig: "image: web"}
	m.HandleServerHello(context.Background(), map[string]types.WorkloadSpec{"web": spec})
	waitUntil(t, func() bool { return rec.has("web", types.RunningOk()) })

	m.HandleUpdateWorkload(context.Background(), nil, []string{"web"})

	waitUntil(t, func() bool { return rec.has("web", types.Removed()) })
}

func TestResumeAdoptsReusableContainerWithoutCreate(t *testing.T) {
	fake := runtime.NewFake("fake")
	instance := naming.Build("web", "agent-a", "image: web")
	fake.SeedReusable("agent-a", "survived-1", instance)

	rec := newReportRecorder()
	m := New("agent-a", lookupOf(fake), rec.record, nil)

	m.HandleServerHello(context.Background(), map[string]types.WorkloadSpec{
		"web": {AgentName: "agent-a", RuntimeName: "fake", RuntimeConfig: "image: web"},
	})

	waitUntil(t, func() bool {
		_, id, ok := m.LogSource("web")
		return ok && id == "survived-1"
	})
	assert.Empty(t, fake.CreateCalls(), "resume must not call CreateWorkload")
}

func TestDependentWorkloadParksThenStartsOnceConditionSatisfied(t *testing.T) {
	fake := runtime.NewFake("fake")
	rec := newReportRecorder()
	m := New("agent-a", lookupOf(fake), rec.record, nil)

	dependent := types.WorkloadSpec{
		AgentName:     "agent-a",
		RuntimeName:   "fake",
		RuntimeConfig: "image: dependent",
		Dependencies:  map[string]types.AddCondition{"base": types.AddConditionRunning},
	}
	m.HandleServerHello(context.Background(), map[string]types.WorkloadSpec{"dependent": dependent})

	waitUntil(t, func() bool { return rec.has("dependent", types.PendingWaitingToStart()) })
	assert.Empty(t, fake.CreateCalls())

	m.UpdateDependencyState("base", types.RunningOk())

	waitUntil(t, func() bool { return rec.has("dependent", types.RunningOk()) })
}

func TestRestartOnFailureRecreatesAfterFailedExit(t *testing.T) {
	fake := runtime.NewFake("fake")
	rec := newReportRecorder()
	m := New("agent-a", lookupOf(fake), rec.record, nil)

	spec := types.WorkloadSpec{AgentName: "agent-a", RuntimeName: "fake", RuntimeConfig: "image: web", RestartPolicy: types.RestartOnFailure}
	m.HandleServerHello(context.Background(), map[string]types.WorkloadSpec{"web": spec})
	waitUntil(t, func() bool { return rec.has("web", types.RunningOk()) })

	m.onQueueState(naming.BuildFromSpec("web", spec), types.FailedExecFailed("boom"))

	waitUntil(t, func() bool { return len(fake.CreateCalls()) == 2 })
}

func TestRestartNeverDoesNotRecreate(t *testing.T) {
	fake := runtime.NewFake("fake")
	rec := newReportRecorder()
	m := New("agent-a", lookupOf(fake), rec.record, nil)

	spec := types.WorkloadSpec{AgentName: "agent-a", RuntimeName: "fake", RuntimeConfig: "image: web", RestartPolicy: types.RestartNever}
	m.HandleServerHello(context.Background(), map[string]types.WorkloadSpec{"web": spec})
	waitUntil(t, func() bool { return rec.has("web", types.RunningOk()) })

	m.onQueueState(naming.BuildFromSpec("web", spec), types.SucceededOk())

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, fake.CreateCalls(), 1)
}

package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/ankaios-core/internal/transport"
	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/runtime"
	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFake(fake *runtime.Fake) func(string) (runtime.Facade, bool) {
	return func(name string) (runtime.Facade, bool) {
		if name == fake.Name() {
			return fake, true
		}
		return nil, false
	}
}

func TestAgentDispatcherServerHelloCreatesWorkload(t *testing.T) {
	fake := runtime.NewFake("fake")
	d := NewAgentDispatcher("agent_A", lookupFake(fake), nil, func() types.AgentAttributes {
		return types.AgentAttributes{CPUUsagePercent: 1, FreeMemoryBytes: 2}
	})

	inbound := make(chan *transport.Envelope, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx, inbound)

	inbound <- &transport.Envelope{
		Kind: transport.MsgServerHello,
		ServerHello: &transport.ServerHello{
			AddedWorkloads: map[string]types.WorkloadSpec{
				"w1": {AgentName: "agent_A", RuntimeName: "fake", RuntimeConfig: "cfg"},
			},
		},
	}

	require.Eventually(t, func() bool {
		return len(fake.CreateCalls()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAgentDispatcherReportsOwnStateOnOutbound(t *testing.T) {
	fake := runtime.NewFake("fake")
	d := NewAgentDispatcher("agent_A", lookupFake(fake), nil, func() types.AgentAttributes { return types.AgentAttributes{} })

	instance := naming.Build("w1", "agent_A", "cfg")
	d.reportOwnState(instance, types.RunningOk())

	select {
	case env := <-d.Outbound():
		require.Equal(t, transport.MsgUpdateWorkloadState, env.Kind)
		require.Len(t, env.UpdateWorkloadState.States, 1)
		assert.Equal(t, instance.String(), env.UpdateWorkloadState.States[0].InstanceName)
		assert.True(t, env.UpdateWorkloadState.States[0].State.IsRunning())
	case <-time.After(time.Second):
		t.Fatal("expected an UpdateWorkloadState envelope")
	}
}

func TestAgentDispatcherLoadTickSendsAgentLoadStatus(t *testing.T) {
	fake := runtime.NewFake("fake")
	sampled := types.AgentAttributes{CPUUsagePercent: 42, FreeMemoryBytes: 1024}
	d := NewAgentDispatcher("agent_A", lookupFake(fake), nil, func() types.AgentAttributes { return sampled })

	d.sendLoadStatus()

	select {
	case env := <-d.Outbound():
		require.Equal(t, transport.MsgAgentLoadStatus, env.Kind)
		assert.Equal(t, "agent_A", env.AgentLoadStatus.AgentName)
		assert.Equal(t, sampled, env.AgentLoadStatus.Load)
	case <-time.After(time.Second):
		t.Fatal("expected an AgentLoadStatus envelope")
	}
}

func TestAgentDispatcherStopEndsLoop(t *testing.T) {
	fake := runtime.NewFake("fake")
	d := NewAgentDispatcher("agent_A", lookupFake(fake), nil, nil)

	inbound := make(chan *transport.Envelope, 1)
	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), inbound)
		close(done)
	}()

	inbound <- &transport.Envelope{Kind: transport.MsgStop}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after a Stop envelope")
	}
}

func TestAgentDispatcherUpdateWorkloadStateRecordsDependency(t *testing.T) {
	fake := runtime.NewFake("fake")
	d := NewAgentDispatcher("agent_A", lookupFake(fake), nil, nil)

	// w1 is gated on dep running, so it is created only once dep's state is recorded.
	d.handleInbound(context.Background(), &transport.Envelope{
		Kind: transport.MsgServerHello,
		ServerHello: &transport.ServerHello{
			AddedWorkloads: map[string]types.WorkloadSpec{
				"w1": {AgentName: "agent_A", RuntimeName: "fake", RuntimeConfig: "cfg",
					Dependencies: map[string]types.AddCondition{"dep": types.AddConditionRunning}},
			},
		},
	})

	instance := naming.Build("dep", "agent_B", "cfg")
	ok := d.handleInbound(context.Background(), &transport.Envelope{
		Kind: transport.MsgUpdateWorkloadState,
		UpdateWorkloadState: &transport.UpdateWorkloadStatePayload{
			States: []transport.WorkloadStateEntry{{InstanceName: instance.String(), State: types.RunningOk()}},
		},
	})
	assert.True(t, ok)
	require.Eventually(t, func() bool {
		return len(fake.CreateCalls()) == 1
	}, time.Second, 5*time.Millisecond)
}

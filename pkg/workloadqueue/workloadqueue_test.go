package workloadqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/runtime"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// stateRecorder collects every ExecutionState reported by a Queue,
// in order, safe for concurrent use by the queue's goroutine.
type stateRecorder struct {
	mu     sync.Mutex
	states []types.ExecutionState
}

func (r *stateRecorder) record(_ naming.InstanceName, s types.ExecutionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []types.ExecutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ExecutionState(nil), r.states...)
}

func (r *stateRecorder) waitFor(t *testing.T, want types.ExecutionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, s := range r.snapshot() {
			if s == want {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %v, saw %v", want, r.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func testSpec(agent string) types.WorkloadSpec {
	return types.WorkloadSpec{AgentName: agent, RuntimeName: "fake", RuntimeConfig: "image: test"}
}

func alwaysSatisfied(types.WorkloadSpec) bool { return true }

func TestCreateSucceedsReportsRunning(t *testing.T) {
	fake := runtime.NewFake("fake")
	rec := &stateRecorder{}
	instance := naming.Build("web", "agent-a", "image: test")

	q := New(instance, fake, rec.record, alwaysSatisfied)
	q.Send(Command{Kind: CommandCreate, NewSpec: testSpec("agent-a")})

	rec.waitFor(t, types.RunningOk())
	assert.Equal(t, []string{instance.String()}, fake.CreateCalls())
}

func TestCreateFailureRetriesThenSucceeds(t *testing.T) {
	fake := runtime.NewFake("fake")
	instance := naming.Build("web", "agent-a", "image: test")
	fake.SetFailCreate(instance.String(), true)

	rec := &stateRecorder{}
	q := New(instance, fake, rec.record, alwaysSatisfied)
	q.Send(Command{Kind: CommandCreate, NewSpec: testSpec("agent-a")})

	rec.waitFor(t, types.PendingStartingFailed("fake: forced create failure for "+instance.String()))

	fake.SetFailCreate(instance.String(), false)
	rec.waitFor(t, types.RunningOk())
}

func TestResumeAttachesCheckerWithoutCreateCall(t *testing.T) {
	fake := runtime.NewFake("fake")
	instance := naming.Build("web", "agent-a", "image: test")

	q := New(instance, fake, func(naming.InstanceName, types.ExecutionState) {}, alwaysSatisfied)
	q.Send(Command{Kind: CommandResume, ResumeWorkloadID: "existing-1", NewSpec: testSpec("agent-a")})

	require.Eventually(t, func() bool { return q.WorkloadID() == "existing-1" }, time.Second, 5*time.Millisecond)
	assert.Empty(t, fake.CreateCalls())
}

func TestDeleteSucceedsEmitsRemovedAndClosesDone(t *testing.T) {
	fake := runtime.NewFake("fake")
	instance := naming.Build("web", "agent-a", "image: test")
	rec := &stateRecorder{}

	q := New(instance, fake, rec.record, alwaysSatisfied)
	q.Send(Command{Kind: CommandCreate, NewSpec: testSpec("agent-a")})
	rec.waitFor(t, types.RunningOk())

	q.Send(Command{Kind: CommandDelete})

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not exit after successful delete")
	}
	rec.waitFor(t, types.Removed())
	assert.Len(t, fake.DeleteCalls(), 1)
}

func TestDeleteFailureRetriesUntilSuccess(t *testing.T) {
	fake := runtime.NewFake("fake")
	instance := naming.Build("web", "agent-a", "image: test")
	rec := &stateRecorder{}

	q := New(instance, fake, rec.record, alwaysSatisfied)
	q.Send(Command{Kind: CommandCreate, NewSpec: testSpec("agent-a")})
	rec.waitFor(t, types.RunningOk())

	id := q.WorkloadID()
	fake.SetFailDelete(id, true)

	q.Send(Command{Kind: CommandDelete})
	rec.waitFor(t, types.StoppingDeleteFailed("fake: forced delete failure for "+id))

	fake.SetFailDelete(id, false)

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not eventually exit once delete stopped failing")
	}
}

func TestUpdateWithExistingIDDeletesThenRecreates(t *testing.T) {
	fake := runtime.NewFake("fake")
	instance := naming.Build("web", "agent-a", "image: test")
	rec := &stateRecorder{}

	q := New(instance, fake, rec.record, alwaysSatisfied)
	q.Send(Command{Kind: CommandCreate, NewSpec: testSpec("agent-a")})
	rec.waitFor(t, types.RunningOk())
	firstID := q.WorkloadID()

	q.Send(Command{Kind: CommandUpdate, NewSpec: testSpec("agent-a")})

	require.Eventually(t, func() bool {
		return len(fake.DeleteCalls()) == 1 && len(fake.CreateCalls()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, firstID, fake.DeleteCalls()[0])
}

func TestUnsatisfiedDependencyParksWaitingToStart(t *testing.T) {
	fake := runtime.NewFake("fake")
	instance := naming.Build("web", "agent-a", "image: test")
	rec := &stateRecorder{}

	q := New(instance, fake, rec.record, func(types.WorkloadSpec) bool { return false })
	q.Send(Command{Kind: CommandCreate, NewSpec: testSpec("agent-a")})

	rec.waitFor(t, types.PendingWaitingToStart())
	assert.Empty(t, fake.CreateCalls())
}

func TestNotifyDependencyUpdateWakesParkedQueue(t *testing.T) {
	fake := runtime.NewFake("fake")
	instance := naming.Build("web", "agent-a", "image: test")
	rec := &stateRecorder{}

	var satisfied bool
	var mu sync.Mutex
	q := New(instance, fake, rec.record, func(types.WorkloadSpec) bool {
		mu.Lock()
		defer mu.Unlock()
		return satisfied
	})
	q.Send(Command{Kind: CommandCreate, NewSpec: testSpec("agent-a")})
	rec.waitFor(t, types.PendingWaitingToStart())
	assert.Empty(t, fake.CreateCalls())

	mu.Lock()
	satisfied = true
	mu.Unlock()
	q.NotifyDependencyUpdate()

	rec.waitFor(t, types.RunningOk())
}

func TestDeleteWhileCreateRetryPendingCancelsRetryAndDeletes(t *testing.T) {
	fake := runtime.NewFake("fake")
	instance := naming.Build("web", "agent-a", "image: test")
	fake.SetFailCreate(instance.String(), true)
	rec := &stateRecorder{}

	q := New(instance, fake, rec.record, alwaysSatisfied)
	q.Send(Command{Kind: CommandCreate, NewSpec: testSpec("agent-a")})
	rec.waitFor(t, types.PendingStartingFailed("fake: forced create failure for "+instance.String()))

	q.Send(Command{Kind: CommandDelete})

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not exit on delete with no workload id")
	}
	rec.waitFor(t, types.Removed())
}

package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// Fake is an in-process Facade implementation with no external
// dependencies, used to drive pkg/workloadqueue and pkg/runtimemanager
// tests deterministically.
type Fake struct {
	mu sync.Mutex

	name             string
	nextID           int
	workloads        map[string]naming.InstanceName // workloadID -> instance
	reusable         map[string][]ReusableWorkloadState
	FailCreate       map[string]bool // instance name -> forced CreateWorkload failure
	FailDelete       map[string]bool // workload id -> forced DeleteWorkload failure
	createCalls      []string
	deleteCalls      []string
	checkersStarted  int
	checkersStopped  int
}

// NewFake returns an empty Fake registered under name (default
// "fake" when empty).
func NewFake(name string) *Fake {
	if name == "" {
		name = "fake"
	}
	return &Fake{
		name:       name,
		workloads:  map[string]naming.InstanceName{},
		reusable:   map[string][]ReusableWorkloadState{},
		FailCreate: map[string]bool{},
		FailDelete: map[string]bool{},
	}
}

func (f *Fake) Name() string { return f.name }

// SeedReusable makes agentName report a reusable workload for
// instanceName under workloadID, as if it survived a restart.
func (f *Fake) SeedReusable(agentName, workloadID string, instanceName naming.InstanceName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reusable[agentName] = append(f.reusable[agentName], ReusableWorkloadState{InstanceName: instanceName, WorkloadID: workloadID})
}

// SetFailCreate toggles forced CreateWorkload failure for instanceName,
// safe to call while a Queue is concurrently driving this Fake.
func (f *Fake) SetFailCreate(instanceName string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailCreate[instanceName] = fail
}

// SetFailDelete toggles forced DeleteWorkload failure for workloadID,
// safe to call while a Queue is concurrently driving this Fake.
func (f *Fake) SetFailDelete(workloadID string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailDelete[workloadID] = fail
}

func (f *Fake) GetReusableWorkloads(_ context.Context, agentName string) ([]ReusableWorkloadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ReusableWorkloadState(nil), f.reusable[agentName]...), nil
}

func (f *Fake) CreateWorkload(_ context.Context, instanceName naming.InstanceName, _ types.WorkloadSpec, reusableID string, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailCreate[instanceName.String()] {
		return "", fmt.Errorf("fake: forced create failure for %s", instanceName)
	}
	if reusableID != "" {
		f.workloads[reusableID] = instanceName
		f.createCalls = append(f.createCalls, instanceName.String())
		return reusableID, nil
	}

	f.nextID++
	id := fmt.Sprintf("fake-%d", f.nextID)
	f.workloads[id] = instanceName
	f.createCalls = append(f.createCalls, instanceName.String())
	return id, nil
}

func (f *Fake) GetWorkloadID(_ context.Context, instanceName naming.InstanceName) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, name := range f.workloads {
		if name.Equal(instanceName) {
			return id, true, nil
		}
	}
	return "", false, nil
}

// fakeChecker is a no-op StateChecker; Fake never calls send on its own,
// tests drive state transitions directly.
type fakeChecker struct{ stop func() }

func (c *fakeChecker) Stop() { c.stop() }

func (f *Fake) StartChecker(_ context.Context, _ string, _ types.WorkloadSpec, _ StateSender) (StateChecker, error) {
	f.mu.Lock()
	f.checkersStarted++
	f.mu.Unlock()
	return &fakeChecker{stop: func() {
		f.mu.Lock()
		f.checkersStopped++
		f.mu.Unlock()
	}}, nil
}

func (f *Fake) GetLogFetcher(_ context.Context, workloadID string, _ LogFetchOptions) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte(fmt.Sprintf("fake log for %s\n", workloadID)))), nil
}

func (f *Fake) DeleteWorkload(_ context.Context, workloadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailDelete[workloadID] {
		return fmt.Errorf("fake: forced delete failure for %s", workloadID)
	}
	delete(f.workloads, workloadID)
	f.deleteCalls = append(f.deleteCalls, workloadID)
	return nil
}

// CreateCalls returns the instance names CreateWorkload was called with,
// in call order.
func (f *Fake) CreateCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.createCalls...)
}

// DeleteCalls returns the workload ids DeleteWorkload was called with,
// in call order.
func (f *Fake) DeleteCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleteCalls...)
}

var _ Facade = (*Fake)(nil)

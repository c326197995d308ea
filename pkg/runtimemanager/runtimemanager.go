// Package runtimemanager reconciles an agent's running workload queues
// against the sets of added and deleted workloads the server sends it:
// starting, replacing, resuming or deleting a pkg/workloadqueue.Queue
// per workload, waking queues parked on an unsatisfied dependency, and
// applying each workload's restart policy on observed terminal states.
package runtimemanager

import (
	"context"
	"sort"
	"sync"

	"github.com/cuemby/ankaios-core/internal/logging"
	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/runtime"
	"github.com/cuemby/ankaios-core/pkg/statestore"
	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/cuemby/ankaios-core/pkg/workloadqueue"
)

// ReportFunc forwards an observed ExecutionState transition to the
// agent's dispatcher, for relay to the server.
type ReportFunc func(instanceName naming.InstanceName, state types.ExecutionState)

// FacadeLookup resolves a runtime name (WorkloadSpec.RuntimeName) to the
// Facade that implements it. runtime.Lookup is used when nil.
type FacadeLookup func(name string) (runtime.Facade, bool)

// ControlInterfacePathFunc computes the host path bind-mounted into a
// workload's container for control interface access. Returns "" when
// unset, meaning no control interface is mounted.
type ControlInterfacePathFunc func(instanceName naming.InstanceName) string

// Manager owns every workload queue running on one agent.
type Manager struct {
	agentName     string
	lookup        FacadeLookup
	report        ReportFunc
	ctrlIfacePath ControlInterfacePathFunc

	mu         sync.Mutex
	queues     map[string]*workloadqueue.Queue // workload_name -> queue
	instanceOf map[string]naming.InstanceName  // workload_name -> current instance name
	specOf     map[string]types.WorkloadSpec   // workload_name -> desired spec, absent once deleted
	states     *statestore.Store               // workload_name -> last known ExecutionState (own + dependency workloads)
}

// New returns an empty Manager for agentName. A nil lookup defaults to
// runtime.Lookup; report and ctrlIfacePath may be nil.
func New(agentName string, lookup FacadeLookup, report ReportFunc, ctrlIfacePath ControlInterfacePathFunc) *Manager {
	if lookup == nil {
		lookup = runtime.Lookup
	}
	return &Manager{
		agentName:     agentName,
		lookup:        lookup,
		report:        report,
		ctrlIfacePath: ctrlIfacePath,
		queues:        map[string]*workloadqueue.Queue{},
		instanceOf:    map[string]naming.InstanceName{},
		specOf:        map[string]types.WorkloadSpec{},
		states:        statestore.New(),
	}
}

// HandleServerHello processes the initial full workload assignment a
// session receives from the server, equivalent to an update with no
// deletions.
func (m *Manager) HandleServerHello(ctx context.Context, added map[string]types.WorkloadSpec) {
	m.HandleUpdateWorkload(ctx, added, nil)
}

// HandleUpdateWorkload reconciles added/deleted workload assignments:
// partitions added into idempotent/replace/resume/create, sends Delete
// for every deleted workload with a running queue, then wakes any
// parked queue whose dependencies may now be satisfied.
func (m *Manager) HandleUpdateWorkload(ctx context.Context, added map[string]types.WorkloadSpec, deleted []string) {
	log := logging.WithComponent("runtimemanager").With().Str("agent", m.agentName).Logger()

	reusableByRuntime := m.loadReusable(ctx, added)

	names := make([]string, 0, len(added))
	for name := range added {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := added[name]
		newInstance := naming.BuildFromSpec(name, spec)

		m.mu.Lock()
		queue, hasQueue := m.queues[name]
		prevInstance, hasInstance := m.instanceOf[name]
		m.mu.Unlock()

		switch {
		case hasQueue && hasInstance && prevInstance.Equal(newInstance):
			// Idempotent: nothing changed about this workload's identity.
			continue

		case hasQueue:
			m.mu.Lock()
			m.specOf[name] = spec
			m.instanceOf[name] = newInstance
			m.mu.Unlock()
			queue.Send(workloadqueue.Command{
				Kind:                 workloadqueue.CommandUpdate,
				NewSpec:              spec,
				ControlInterfacePath: m.pathFor(newInstance),
			})

		default:
			facade, ok := m.lookup(spec.RuntimeName)
			if !ok {
				log.Warn().Str("workload", name).Str("runtime", spec.RuntimeName).Msg("no facade registered for runtime, skipping")
				continue
			}

			newQueue := workloadqueue.New(newInstance, facade, m.onQueueState, m.dependenciesSatisfied)
			m.mu.Lock()
			m.queues[name] = newQueue
			m.instanceOf[name] = newInstance
			m.specOf[name] = spec
			m.mu.Unlock()

			if reusableID, ok := reusableByRuntime[spec.RuntimeName][newInstance.String()]; ok {
				newQueue.Send(workloadqueue.Command{Kind: workloadqueue.CommandResume, ResumeWorkloadID: reusableID, NewSpec: spec})
			} else {
				newQueue.Send(workloadqueue.Command{
					Kind:                 workloadqueue.CommandCreate,
					NewSpec:              spec,
					ControlInterfacePath: m.pathFor(newInstance),
				})
			}
		}
	}

	deletedSorted := append([]string(nil), deleted...)
	sort.Strings(deletedSorted)
	for _, name := range deletedSorted {
		m.mu.Lock()
		queue, ok := m.queues[name]
		delete(m.specOf, name)
		delete(m.queues, name)
		delete(m.instanceOf, name)
		m.mu.Unlock()
		if ok {
			queue.Send(workloadqueue.Command{Kind: workloadqueue.CommandDelete})
		}
	}

	m.wakeParked()
}

// loadReusable queries GetReusableWorkloads once per distinct runtime
// name present in added, keyed by runtime name then canonical instance
// string, for Resume matching.
func (m *Manager) loadReusable(ctx context.Context, added map[string]types.WorkloadSpec) map[string]map[string]string {
	seen := map[string]bool{}
	out := map[string]map[string]string{}
	for _, spec := range added {
		if seen[spec.RuntimeName] {
			continue
		}
		seen[spec.RuntimeName] = true

		facade, ok := m.lookup(spec.RuntimeName)
		if !ok {
			continue
		}
		reusable, err := facade.GetReusableWorkloads(ctx, m.agentName)
		if err != nil {
			logging.WithComponent("runtimemanager").Warn().Err(err).Str("runtime", spec.RuntimeName).Msg("failed to list reusable workloads")
			continue
		}
		byInstance := make(map[string]string, len(reusable))
		for _, r := range reusable {
			byInstance[r.InstanceName.String()] = r.WorkloadID
		}
		out[spec.RuntimeName] = byInstance
	}
	return out
}

// onQueueState is every queue's StateFunc: it records the state, reports
// it upward, applies the owning workload's restart policy, and wakes
// any queue parked on a dependency that may now be satisfied.
func (m *Manager) onQueueState(instanceName naming.InstanceName, state types.ExecutionState) {
	m.states.Update(instanceName.WorkloadName, m.agentName, state)
	if m.report != nil {
		m.report(instanceName, state)
	}
	m.applyRestartPolicy(instanceName.WorkloadName, state)
	m.wakeParked()
}

// UpdateDependencyState records a state reported by the server for a
// workload this agent does not itself run (a dependency on another
// agent), then wakes any queue parked on it.
func (m *Manager) UpdateDependencyState(workloadName string, state types.ExecutionState) {
	m.states.Update(workloadName, "", state)
	m.wakeParked()
}

// applyRestartPolicy self-sends Create to a workload's queue on an
// observed terminal state, per its RestartPolicy. It only fires while
// the workload is still present in the desired state.
func (m *Manager) applyRestartPolicy(workloadName string, state types.ExecutionState) {
	if !state.IsTerminal() {
		return
	}

	m.mu.Lock()
	spec, stillDesired := m.specOf[workloadName]
	queue, hasQueue := m.queues[workloadName]
	instance, hasInstance := m.instanceOf[workloadName]
	m.mu.Unlock()
	if !stillDesired || !hasQueue || !hasInstance {
		return
	}

	switch spec.RestartPolicy {
	case types.RestartOnFailure:
		if state.IsFailed() {
			queue.Send(workloadqueue.Command{Kind: workloadqueue.CommandCreate, NewSpec: spec, ControlInterfacePath: m.pathFor(instance)})
		}
	case types.RestartAlways:
		queue.Send(workloadqueue.Command{Kind: workloadqueue.CommandCreate, NewSpec: spec, ControlInterfacePath: m.pathFor(instance)})
	case types.RestartNever:
	}
}

// dependenciesSatisfied is the DependencySatisfied callback every queue
// checks before actually calling the runtime: every dependency's
// recorded state must fulfill its AddCondition. An unobserved
// dependency never satisfies.
func (m *Manager) dependenciesSatisfied(spec types.WorkloadSpec) bool {
	for depName, cond := range spec.Dependencies {
		state, ok := m.states.Get(depName)
		if !ok || !cond.Fulfilled(state) {
			return false
		}
	}
	return true
}

// wakeParked re-attempts every queue's parked Create/Update, in
// workload-name order for deterministic behaviour under concurrent
// satisfaction. NotifyDependencyUpdate is a no-op for queues that are
// not currently parked, so calling it on every queue is cheap.
func (m *Manager) wakeParked() {
	m.mu.Lock()
	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	queues := make([]*workloadqueue.Queue, 0, len(names))
	for _, name := range names {
		queues = append(queues, m.queues[name])
	}
	m.mu.Unlock()

	for _, q := range queues {
		q.NotifyDependencyUpdate()
	}
}

func (m *Manager) pathFor(instanceName naming.InstanceName) string {
	if m.ctrlIfacePath == nil {
		return ""
	}
	return m.ctrlIfacePath(instanceName)
}

// LogSource resolves workloadName to the runtime facade and
// runtime-native workload id currently backing it, for the dispatcher
// to open a log stream against. ok is false when the workload has no
// running queue or the queue has not created a container yet.
func (m *Manager) LogSource(workloadName string) (facade runtime.Facade, workloadID string, ok bool) {
	m.mu.Lock()
	queue, hasQueue := m.queues[workloadName]
	spec, hasSpec := m.specOf[workloadName]
	m.mu.Unlock()
	if !hasQueue {
		return nil, "", false
	}
	id := queue.WorkloadID()
	if id == "" {
		return nil, "", false
	}
	runtimeName := ""
	if hasSpec {
		runtimeName = spec.RuntimeName
	}
	facade, found := m.lookup(runtimeName)
	if !found {
		return nil, "", false
	}
	return facade, id, true
}

// Package workloadqueue runs one single-consumer command loop per
// workload instance on an agent: it drives pkg/runtime to create,
// resume, update and delete a workload's container, retries failed
// attempts with a capped exponential backoff, and reports every
// observed ExecutionState transition through a callback.
package workloadqueue

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/ankaios-core/internal/backoff"
	"github.com/cuemby/ankaios-core/internal/chanutil"
	"github.com/cuemby/ankaios-core/internal/logging"
	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/runtime"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// CommandKind identifies the operations a Queue's channel accepts.
type CommandKind int

const (
	CommandCreate CommandKind = iota
	CommandUpdate
	CommandResume
	CommandDelete
	commandRetryCreate
)

// Command is one message sent to a Queue's single-consumer loop.
type Command struct {
	Kind CommandKind

	// NewSpec is the workload spec to create/update with, set on
	// Create and Update.
	NewSpec types.WorkloadSpec

	// ControlInterfacePath, when non-empty, is bind-mounted into the
	// created container.
	ControlInterfacePath string

	// ResumeWorkloadID is the runtime-native id of a reusable
	// container to attach a checker to, set on Resume.
	ResumeWorkloadID string
}

// StateFunc reports an ExecutionState transition observed or caused by
// the queue for instanceName.
type StateFunc func(instanceName naming.InstanceName, state types.ExecutionState)

// DependencySatisfied is consulted before a queued Create/Update
// actually calls the runtime, letting the runtime manager gate
// creation on the workload's add-conditions.
type DependencySatisfied func(spec types.WorkloadSpec) bool

// Policy bounds how a Queue retries failed create/delete attempts.
var Policy = backoff.New(250*time.Millisecond, 8*time.Second)

// Queue is the command loop for one workload instance.
type Queue struct {
	instanceName naming.InstanceName
	facade       runtime.Facade
	onState      StateFunc
	satisfied    DependencySatisfied

	commands chan Command
	done     chan struct{}

	mu          sync.Mutex
	workloadID  string
	checker     runtime.StateChecker
	retryCancel context.CancelFunc
	retryCount  int
	spec        types.WorkloadSpec
	parked      bool
	parkedCmd   Command
}

// New starts a Queue's command loop in a background goroutine and
// returns it. The caller drives it by sending Commands; the loop exits
// once a Delete command succeeds. A failed delete schedules a retry and
// the loop keeps running.
func New(instanceName naming.InstanceName, facade runtime.Facade, onState StateFunc, satisfied DependencySatisfied) *Queue {
	q := &Queue{
		instanceName: instanceName,
		facade:       facade,
		onState:      onState,
		satisfied:    satisfied,
		commands:     make(chan Command, chanutil.DefaultCapacity),
		done:         make(chan struct{}),
	}
	go q.run()
	return q
}

// Send enqueues cmd. It never blocks the caller beyond the channel's
// buffer capacity.
func (q *Queue) Send(cmd Command) {
	select {
	case q.commands <- cmd:
	case <-q.done:
	}
}

// Done is closed once the queue's loop has exited after a successful
// Delete.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) run() {
	ctx := context.Background()
	log := logging.WithWorkload(q.instanceName.String())

	for {
		cmd, ok := <-q.commands
		if !ok {
			return
		}

		switch cmd.Kind {
		case CommandCreate, CommandUpdate, commandRetryCreate:
			q.handleCreateOrUpdate(ctx, cmd)

		case CommandResume:
			q.handleResume(ctx, cmd)

		case CommandDelete:
			q.cancelPendingRetry()
			if q.handleDelete(ctx) {
				log.Info().Msg("workload removed, queue exiting")
				close(q.done)
				return
			}

		default:
			log.Warn().Int("kind", int(cmd.Kind)).Msg("unknown command kind ignored")
		}
	}
}

// handleCreateOrUpdate implements spec steps 2-3: Create/Update calls
// runtime.CreateWorkload; Update against an existing id deletes first.
func (q *Queue) handleCreateOrUpdate(ctx context.Context, cmd Command) {
	log := logging.WithWorkload(q.instanceName.String())

	if cmd.Kind != commandRetryCreate {
		q.mu.Lock()
		q.spec = cmd.NewSpec
		q.retryCount = 0
		q.mu.Unlock()
	}

	q.mu.Lock()
	spec := q.spec
	existingID := q.workloadID
	q.mu.Unlock()

	if q.satisfied != nil && !q.satisfied(spec) {
		q.mu.Lock()
		q.parked = true
		q.parkedCmd = cmd
		q.mu.Unlock()
		q.onState(q.instanceName, types.PendingWaitingToStart())
		return
	}
	q.mu.Lock()
	q.parked = false
	q.mu.Unlock()

	if cmd.Kind == CommandUpdate && existingID != "" {
		if err := q.facade.DeleteWorkload(ctx, existingID); err != nil {
			log.Warn().Err(err).Msg("delete-before-update failed, keeping existing id")
			q.onState(q.instanceName, types.StoppingDeleteFailed(err.Error()))
			q.scheduleRetry(CommandUpdate, cmd)
			return
		}
		q.mu.Lock()
		q.stopCheckerLocked()
		q.workloadID = ""
		q.mu.Unlock()
	}

	q.onState(q.instanceName, types.PendingStarting())

	controlInterfacePath := cmd.ControlInterfacePath
	id, err := q.facade.CreateWorkload(ctx, q.instanceName, spec, "", controlInterfacePath)
	if err != nil {
		log.Warn().Err(err).Msg("create failed, will retry")
		q.onState(q.instanceName, types.PendingStartingFailed(err.Error()))
		q.scheduleRetry(commandRetryCreate, cmd)
		return
	}

	q.mu.Lock()
	q.workloadID = id
	q.retryCount = 0
	q.mu.Unlock()

	q.attachChecker(ctx, id, spec)
	q.onState(q.instanceName, types.RunningOk())
}

// handleResume implements spec step 4: attach a checker without a
// create call.
func (q *Queue) handleResume(ctx context.Context, cmd Command) {
	q.mu.Lock()
	q.workloadID = cmd.ResumeWorkloadID
	q.spec = cmd.NewSpec
	q.mu.Unlock()

	q.attachChecker(ctx, cmd.ResumeWorkloadID, cmd.NewSpec)
}

// handleDelete implements spec step 5. It returns true when the queue
// should exit its loop.
func (q *Queue) handleDelete(ctx context.Context) bool {
	log := logging.WithWorkload(q.instanceName.String())

	q.mu.Lock()
	q.stopCheckerLocked()
	id := q.workloadID
	q.mu.Unlock()

	q.onState(q.instanceName, types.StoppingRequested())

	if id == "" {
		q.onState(q.instanceName, types.Removed())
		return true
	}

	if err := q.facade.DeleteWorkload(ctx, id); err != nil {
		log.Warn().Err(err).Msg("delete failed, will retry")
		q.onState(q.instanceName, types.StoppingDeleteFailed(err.Error()))
		q.scheduleRetry(CommandDelete, Command{Kind: CommandDelete})
		return false
	}

	q.mu.Lock()
	q.workloadID = ""
	q.mu.Unlock()
	q.onState(q.instanceName, types.Removed())
	return true
}

// attachChecker starts a state checker on workloadID, replacing any
// previous one, reporting transitions through onState.
func (q *Queue) attachChecker(ctx context.Context, workloadID string, spec types.WorkloadSpec) {
	checker, err := q.facade.StartChecker(ctx, workloadID, spec, func(s types.ExecutionState) {
		q.onState(q.instanceName, s)
	})
	if err != nil {
		logging.WithWorkload(q.instanceName.String()).Warn().Err(err).Msg("failed to start state checker")
		return
	}
	q.mu.Lock()
	q.stopCheckerLocked()
	q.checker = checker
	q.mu.Unlock()
}

func (q *Queue) stopCheckerLocked() {
	if q.checker != nil {
		q.checker.Stop()
		q.checker = nil
	}
}

// scheduleRetry self-sends a command of retryKind after the backoff
// delay for the current attempt count. A Delete command racing in
// cancels it via cancelPendingRetry.
func (q *Queue) scheduleRetry(retryKind CommandKind, cmd Command) {
	q.mu.Lock()
	attempt := q.retryCount
	q.retryCount++
	ctx, cancel := context.WithCancel(context.Background())
	q.retryCancel = cancel
	q.mu.Unlock()

	delay := Policy.Next(attempt)

	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			q.Send(Command{Kind: retryKind, NewSpec: cmd.NewSpec, ControlInterfacePath: cmd.ControlInterfacePath})
		case <-ctx.Done():
		}
	}()
}

func (q *Queue) cancelPendingRetry() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.retryCancel != nil {
		q.retryCancel()
		q.retryCancel = nil
	}
}

// WorkloadID returns the runtime-native id currently backing this
// queue's instance, if any.
func (q *Queue) WorkloadID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.workloadID
}

// NotifyDependencyUpdate re-attempts a parked Create/Update now that the
// dependency state it was gated on may have changed. It is a no-op if
// the queue is not currently parked; the runtime manager calls it on
// every queue whenever any workload's reported state changes, relying
// on this cheap no-op path rather than tracking which queues to wake.
func (q *Queue) NotifyDependencyUpdate() {
	q.mu.Lock()
	parked := q.parked
	cmd := q.parkedCmd
	q.mu.Unlock()
	if parked {
		q.Send(cmd)
	}
}

// Package runtime abstracts a concrete container runtime behind the
// facade a workload queue drives: creating and deleting a workload's
// container, starting a state checker that reports its ExecutionState,
// fetching its logs, and discovering containers that survived an agent
// restart.
package runtime

import (
	"context"
	"io"
	"time"

	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// ReusableWorkloadState describes a container found already running on
// an agent, matched against the desired state by instance name label,
// that a restarted agent can attach a checker to instead of recreating.
type ReusableWorkloadState struct {
	InstanceName naming.InstanceName
	WorkloadID   string
}

// LogFetchOptions controls how GetLogFetcher streams a workload's log
// output.
type LogFetchOptions struct {
	Follow bool
	Tail   int
	Since  time.Time
	Until  time.Time
}

// StateChecker observes a running workload and reports its
// ExecutionState as it changes. Stop releases any resources the
// checker holds (e.g. a background poll loop); it does not touch the
// workload itself.
type StateChecker interface {
	Stop()
}

// StateSender is the callback a StateChecker reports observed
// ExecutionState transitions through.
type StateSender func(types.ExecutionState)

// Facade is the interface a workload queue (pkg/workloadqueue) drives;
// ContainerdFacade is the only container-backed implementation in this
// codebase (Fake is an in-memory one for tests), and the interface
// itself carries no containerd-specific type.
type Facade interface {
	// Name identifies the runtime, e.g. "podman" or "containerd"; it is
	// matched against WorkloadSpec.RuntimeName to select a facade.
	Name() string

	// GetReusableWorkloads lists containers on agentName whose labels
	// identify them as Ankaios-managed instances, for reconciliation
	// after an agent restart.
	GetReusableWorkloads(ctx context.Context, agentName string) ([]ReusableWorkloadState, error)

	// CreateWorkload creates and starts a new container for spec under
	// instanceName. reusableID, when non-empty, names a container found
	// by GetReusableWorkloads to adopt instead of creating a new one.
	// controlInterfacePath, when non-empty, is bind-mounted into the
	// container at a fixed path. On failure, CreateWorkload makes a
	// best-effort attempt to clean up any partially created container
	// before returning the error.
	CreateWorkload(ctx context.Context, instanceName naming.InstanceName, spec types.WorkloadSpec, reusableID string, controlInterfacePath string) (workloadID string, err error)

	// GetWorkloadID resolves the runtime-native container id currently
	// backing instanceName, if any.
	GetWorkloadID(ctx context.Context, instanceName naming.InstanceName) (workloadID string, found bool, err error)

	// StartChecker attaches a state checker to workloadID that reports
	// transitions through send until Stop is called on the returned
	// StateChecker.
	StartChecker(ctx context.Context, workloadID string, spec types.WorkloadSpec, send StateSender) (StateChecker, error)

	// GetLogFetcher opens a stream of workloadID's log output per
	// options. The caller closes the returned reader when done.
	GetLogFetcher(ctx context.Context, workloadID string, options LogFetchOptions) (io.ReadCloser, error)

	// DeleteWorkload stops and removes workloadID. A not-found condition
	// is reported as success.
	DeleteWorkload(ctx context.Context, workloadID string) error
}

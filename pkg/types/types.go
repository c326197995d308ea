// Package types defines the shared data model used across the server,
// agent and CLI: workload specs, execution states, desired/complete
// state, and the request/response envelope exchanged over the wire.
package types

import (
	"fmt"
	"regexp"
)

// CurrentAPIVersion is the only api_version value a State currently
// validates against.
const CurrentAPIVersion = "v0.1"

// MaxWorkloadNameLength is the maximum length of a workload_name.
const MaxWorkloadNameLength = 63

// NameRegex matches the allowed characters for workload names, agent
// names, config aliases and config keys.
var NameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// RestartPolicy controls whether a workload is automatically re-created
// after it reaches a terminal state.
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "Never"
	RestartOnFailure RestartPolicy = "OnFailure"
	RestartAlways    RestartPolicy = "Always"
)

// AddCondition gates creation of a dependent workload on the reported
// execution state of one of its dependencies.
type AddCondition string

const (
	AddConditionRunning   AddCondition = "Running"
	AddConditionSucceeded AddCondition = "Succeeded"
	AddConditionFailed    AddCondition = "Failed"
)

// DeleteCondition gates deletion of a workload on the reported execution
// state of a dependent that is shutting down.
type DeleteCondition string

const (
	DeleteConditionRunning              DeleteCondition = "Running"
	DeleteConditionNotPendingNorRunning DeleteCondition = "NotPendingNorRunning"
)

// Fulfilled reports whether the given execution state satisfies this
// add-condition.
func (c AddCondition) Fulfilled(s ExecutionState) bool {
	switch c {
	case AddConditionRunning:
		return s.IsRunning()
	case AddConditionSucceeded:
		return s.IsSucceeded()
	case AddConditionFailed:
		return s.IsFailed()
	default:
		return false
	}
}

// Fulfilled reports whether the given execution state satisfies this
// delete-condition. NotPendingNorRunning also admits any waiting-to-start
// state so a cascading shutdown can proceed before a workload ever starts.
func (c DeleteCondition) Fulfilled(s ExecutionState) bool {
	switch c {
	case DeleteConditionRunning:
		return s.IsRunning()
	case DeleteConditionNotPendingNorRunning:
		return s.IsNotPendingNorRunning() || s.IsWaitingToStart()
	default:
		return false
	}
}

// FileMount is a single-shot file written into a workload's filesystem
// namespace at creation time. This is not a managed volume: Data is
// written once when the container is created.
type FileMount struct {
	MountPoint  string
	Data        []byte
	Source      string
	Permissions string
}

// ACLOperation is the access level a control-interface rule grants or
// denies over a field-mask-selected part of the complete state.
type ACLOperation string

const (
	ACLRead      ACLOperation = "Read"
	ACLWrite     ACLOperation = "Write"
	ACLReadWrite ACLOperation = "ReadWrite"
	ACLDeny      ACLOperation = "Deny"
)

// AccessRule grants or denies an operation over the part of the complete
// state selected by FilterMask (a field-mask path, may contain `*`).
type AccessRule struct {
	FilterMask string
	Operation  ACLOperation
}

// WorkloadSpec is the desired configuration of one workload.
type WorkloadSpec struct {
	AgentName              string                   `json:"agent"`
	RuntimeName            string                   `json:"runtime"`
	RuntimeConfig          string                   `json:"runtimeConfig"`
	Dependencies           map[string]AddCondition  `json:"dependencies"`
	RestartPolicy          RestartPolicy            `json:"restartPolicy"`
	Tags                   map[string]string        `json:"tags"`
	Configs                map[string]string         `json:"configs"`
	ControlInterfaceAccess []AccessRule             `json:"controlInterfaceAccess"`
	Files                  []FileMount              `json:"files"`
}

// ConfigItem is a named, reusable configuration value referenced by
// workloads through their Configs alias map.
type ConfigItem struct {
	Value  string            `json:"value"`
	Array  []string          `json:"array"`
	Object map[string]string `json:"object"`
}

// State is the desired configuration submitted by a client: a set of
// named workloads plus the config items they may reference.
type State struct {
	APIVersion string                  `json:"apiVersion"`
	Workloads  map[string]WorkloadSpec `json:"workloads"`
	Configs    map[string]ConfigItem   `json:"configs"`
}

// NewState returns an empty State stamped with CurrentAPIVersion.
func NewState() State {
	return State{
		APIVersion: CurrentAPIVersion,
		Workloads:  map[string]WorkloadSpec{},
		Configs:    map[string]ConfigItem{},
	}
}

// AgentAttributes describes an agent known to the server: its most
// recently reported resource load. The agent's name is the AgentMap key.
type AgentAttributes struct {
	CPUUsagePercent float64 `json:"cpuUsagePercent"`
	FreeMemoryBytes int64   `json:"freeMemoryBytes"`
}

// CompleteState is the union of the desired state, the workload state
// map, and per-agent load information that a CompleteState
// response projects through a field mask.
type CompleteState struct {
	DesiredState   State                      `json:"desiredState"`
	WorkloadStates map[string]ExecutionState  `json:"workloadStatesMap"`
	AgentMap       map[string]AgentAttributes `json:"agentMap"`
}

// ValidationError is a generic validation failure whose Kind names the
// violated invariant. State validation in pkg/serverstate does not
// return it; it returns the specific error types below.
type ValidationError struct {
	Kind    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// InvalidAPIVersionError is returned when a submitted State's api_version
// does not equal CurrentAPIVersion.
type InvalidAPIVersionError struct {
	Received string
	Expected string
}

func (e *InvalidAPIVersionError) Error() string {
	return fmt.Sprintf("unsupported api version: received %q, expected %q", e.Received, e.Expected)
}

// InvalidNameError is returned when a workload, agent, config alias or
// config key name fails NameRegex or exceeds MaxWorkloadNameLength.
type InvalidNameError struct {
	Kind  string // "workload", "agent", "config_alias", "config_key"
	Value string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid %s name %q: must match %s", e.Kind, e.Value, NameRegex.String())
}

// CycleDetectedError is returned when the dependency graph induced by a
// State's workloads contains a cycle; Workload names a workload on the
// cycle.
type CycleDetectedError struct {
	Workload string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("cyclic dependency detected at workload %q", e.Workload)
}

// UnknownConfigReferenceError is returned when a workload's Configs map
// references a config key that does not exist in the State.
type UnknownConfigReferenceError struct {
	Workload string
	Alias    string
	Key      string
}

func (e *UnknownConfigReferenceError) Error() string {
	return fmt.Sprintf("workload %q: config alias %q references unknown config key %q", e.Workload, e.Alias, e.Key)
}

// UnknownWorkloadInMaskError describes a field mask path that names a
// workload absent from the desired state. No function in this module
// returns it: GetCompleteState and event subscriptions project such a
// path as absent and report no error.
type UnknownWorkloadInMaskError struct {
	Path string
}

func (e *UnknownWorkloadInMaskError) Error() string {
	return fmt.Sprintf("field mask references unknown workload: %q", e.Path)
}

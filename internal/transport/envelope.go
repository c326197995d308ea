// Package transport defines the one message envelope that crosses the
// wire between server, agent and CLI, and the gRPC plumbing that moves
// it: a bidirectional streaming RPC carrying Envelope frames encoded
// with encoding/gob rather than generated protobuf, since no protoc
// toolchain is available to produce the real .proto stubs. gRPC itself
// stays the transport, matching the teacher's pkg/api/pkg/client use of
// it; only the wire codec is swapped out.
package transport

import "github.com/cuemby/ankaios-core/pkg/types"

// MessageKind tags which field of an Envelope is populated.
type MessageKind string

const (
	MsgAgentHello          MessageKind = "AgentHello"
	MsgAgentLoadStatus     MessageKind = "AgentLoadStatus"
	MsgUpdateWorkloadState MessageKind = "UpdateWorkloadState"
	MsgRequest             MessageKind = "Request"
	MsgGoodbye             MessageKind = "Goodbye"
	MsgServerHello         MessageKind = "ServerHello"
	MsgUpdateWorkload      MessageKind = "UpdateWorkload"
	MsgResponse            MessageKind = "Response"
	MsgLogsRequest         MessageKind = "LogsRequest"
	MsgLogsCancelRequest   MessageKind = "LogsCancelRequest"
	MsgStop                MessageKind = "Stop"
)

// AgentHello is the first message an agent sends after connecting.
type AgentHello struct {
	AgentName string
}

// AgentLoadStatus is sent by an agent on its periodic load tick.
type AgentLoadStatus struct {
	AgentName string
	Load      types.AgentAttributes
}

// WorkloadStateEntry pairs one instance's canonical name with its
// current ExecutionState, the unit UpdateWorkloadState carries in bulk.
type WorkloadStateEntry struct {
	InstanceName string
	State        types.ExecutionState
}

// UpdateWorkloadStatePayload carries one or more workload state
// transitions, sent by an agent (its own workloads) or a server
// (forwarding dependency/subscription updates).
type UpdateWorkloadStatePayload struct {
	States []WorkloadStateEntry
}

// Goodbye is sent by an agent or CLI connection as it disconnects
// cleanly.
type Goodbye struct{}

// ServerHello is the server's reply to AgentHello: the full set of
// workloads currently assigned to that agent.
type ServerHello struct {
	AddedWorkloads map[string]types.WorkloadSpec
}

// UpdateWorkloadPayload carries an incremental assignment change for one
// agent: workloads newly assigned plus workload names withdrawn.
type UpdateWorkloadPayload struct {
	Added   map[string]types.WorkloadSpec
	Deleted []string
}

// LogsRequestPayload asks the receiving agent to start streaming logs
// for the named workloads.
type LogsRequestPayload struct {
	RequestID     string
	WorkloadNames []string
	Follow        bool
	Tail          int
	Since         string
	Until         string
}

// LogsCancelRequestPayload asks the receiving agent to stop an
// in-progress log stream.
type LogsCancelRequestPayload struct {
	RequestID string
}

// Stop asks the receiving agent to shut down gracefully.
type Stop struct{}

// Envelope is the single message type exchanged in both directions over
// the Exchange stream. Kind selects which one pointer field is
// meaningful; every other field is nil.
type Envelope struct {
	Kind MessageKind

	AgentHello          *AgentHello
	AgentLoadStatus     *AgentLoadStatus
	UpdateWorkloadState *UpdateWorkloadStatePayload
	Request             *types.Request
	Goodbye             *Goodbye
	ServerHello         *ServerHello
	UpdateWorkload      *UpdateWorkloadPayload
	Response            *types.Response
	LogsRequest         *LogsRequestPayload
	LogsCancelRequest   *LogsCancelRequestPayload
	Stop                *Stop
}

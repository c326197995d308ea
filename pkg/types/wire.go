package types

// WorkloadState is one agent's report of a single workload instance's
// execution state, keyed by its canonical instance name.
type WorkloadState struct {
	InstanceName   string
	ExecutionState ExecutionState
}

// MessageKind tags the concrete payload carried by a Message.
// Agent-originated and server-originated kinds share one type. The
// stream itself carries internal/transport.Envelope, which has its own
// kind type; nothing in this module sends a Message.
type MessageKind string

const (
	// Agent -> server.
	MessageAgentHello       MessageKind = "AgentHello"
	MessageAgentLoadStatus  MessageKind = "AgentLoadStatus"
	MessageUpdateWorkloadState MessageKind = "UpdateWorkloadState"
	MessageRequest          MessageKind = "Request"
	MessageGoodbye          MessageKind = "Goodbye"

	// Server -> agent/CLI.
	MessageServerHello      MessageKind = "ServerHello"
	MessageUpdateWorkload   MessageKind = "UpdateWorkload"
	MessageResponse         MessageKind = "Response"
	MessageLogsRequest      MessageKind = "LogsRequest"
	MessageLogsCancelRequest MessageKind = "LogsCancelRequest"
	MessageStop             MessageKind = "Stop"

	// MessageUnknown names a kind neither side recognizes. No decoder
	// in this module produces it; the dispatchers log an envelope of
	// unrecognized kind and go on.
	MessageUnknown MessageKind = "Unknown"
)

// Message is a flat, single-struct form of every agent<->server (and
// CLI<->server) message. The transport does not use it: the stream
// carries internal/transport.Envelope.
type Message struct {
	Kind MessageKind

	// MessageAgentHello
	AgentName string

	// MessageAgentLoadStatus
	LoadAgentName string
	CPUPercent    float64
	FreeMemory    int64

	// MessageUpdateWorkloadState
	WorkloadStates []WorkloadState

	// MessageRequest / MessageResponse
	Request  *Request
	Response *Response

	// MessageServerHello
	HelloAddedWorkloads []string

	// MessageUpdateWorkload
	UpdateAdded   []string
	UpdateDeleted []string

	// MessageLogsRequest / MessageLogsCancelRequest share Request's
	// RequestID and Logs* fields, carried via the Request pointer.

	// UnknownValue preserves the raw wire tag of a MessageUnknown
	// message for diagnostics.
	UnknownValue int32
}

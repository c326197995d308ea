package types

import (
	"fmt"
	"strings"
)

// RequestIDKind distinguishes the two shapes a RequestID's origin can
// take.
type RequestIDKind string

const (
	RequestIDAgent RequestIDKind = "agent"
	RequestIDCli   RequestIDKind = "cli"
)

// RequestID identifies the origin of a Request so the server can route
// the matching Response back. It has two wire shapes:
//
//	agent: "<agent>@<workload>@<uuid>"   (origin: a workload's control interface)
//	cli:   "cli-conn-<n>@<uuid>"
type RequestID struct {
	Kind          RequestIDKind
	AgentName     string // set when Kind == RequestIDAgent
	WorkloadName  string // set when Kind == RequestIDAgent
	CliConnection string // set when Kind == RequestIDCli
	UUID          string
}

// NewAgentRequestID builds the RequestID a workload's control interface
// attaches to requests it originates.
func NewAgentRequestID(agentName, workloadName, uuid string) RequestID {
	return RequestID{Kind: RequestIDAgent, AgentName: agentName, WorkloadName: workloadName, UUID: uuid}
}

// NewCliRequestID builds the RequestID a CLI connection attaches to
// requests it originates.
func NewCliRequestID(cliConnection, uuid string) RequestID {
	return RequestID{Kind: RequestIDCli, CliConnection: cliConnection, UUID: uuid}
}

// ParseRequestID parses the wire string form of a RequestID into its
// tagged variant.
func ParseRequestID(s string) (RequestID, error) {
	parts := strings.Split(s, "@")
	switch len(parts) {
	case 2:
		if strings.HasPrefix(parts[0], "cli-conn-") {
			return RequestID{Kind: RequestIDCli, CliConnection: parts[0], UUID: parts[1]}, nil
		}
		return RequestID{}, fmt.Errorf("malformed request id %q: expected cli-conn-<n>@<uuid>", s)
	case 3:
		return RequestID{Kind: RequestIDAgent, AgentName: parts[0], WorkloadName: parts[1], UUID: parts[2]}, nil
	default:
		return RequestID{}, fmt.Errorf("malformed request id %q", s)
	}
}

// String renders the wire form of the RequestID.
func (r RequestID) String() string {
	switch r.Kind {
	case RequestIDAgent:
		return fmt.Sprintf("%s@%s@%s", r.AgentName, r.WorkloadName, r.UUID)
	case RequestIDCli:
		return fmt.Sprintf("%s@%s", r.CliConnection, r.UUID)
	default:
		return ""
	}
}

// MatchesAgent reports whether this is an agent-origin RequestID from
// the given agent.
func (r RequestID) MatchesAgent(agentName string) bool {
	return r.Kind == RequestIDAgent && r.AgentName == agentName
}

// MatchesAgentWorkload reports whether this is an agent-origin RequestID
// from the given workload on the given agent.
func (r RequestID) MatchesAgentWorkload(agentName, workloadName string) bool {
	return r.Kind == RequestIDAgent && r.AgentName == agentName && r.WorkloadName == workloadName
}

// MatchesCli reports whether this is a CLI-origin RequestID from the
// given CLI connection.
func (r RequestID) MatchesCli(cliConnection string) bool {
	return r.Kind == RequestIDCli && r.CliConnection == cliConnection
}

// RequestKind tags the concrete content carried by a Request.
type RequestKind string

const (
	RequestUpdateState        RequestKind = "UpdateState"
	RequestCompleteState      RequestKind = "CompleteStateRequest"
	RequestLogs               RequestKind = "LogsRequest"
	RequestLogsCancel         RequestKind = "LogsCancelRequest"
)

// Request is a client-originated message. Exactly one field group is
// populated, selected by Kind.
type Request struct {
	ID   RequestID
	Kind RequestKind

	// RequestUpdateState
	UpdateNewState  State
	UpdateFieldMask []string

	// RequestCompleteState
	CompleteStateFieldMask []string
	SubscribeForEvents     bool

	// RequestLogs
	LogsWorkloadNames []string
	LogsFollow        bool
	LogsTail          int
	LogsSince         string
	LogsUntil         string
}

// ResponseKind tags the concrete content carried by a Response.
type ResponseKind string

const (
	ResponseCompleteState     ResponseKind = "CompleteState"
	ResponseUpdateStateResult ResponseKind = "UpdateStateSuccess"
	ResponseLogEntries        ResponseKind = "LogEntriesResponse"
	ResponseLogsStop          ResponseKind = "LogsStopResponse"
	ResponseError             ResponseKind = "Error"
)

// AlteredFields names the field paths that changed in the CompleteState
// an event-triggered response carries, partitioned by change class.
type AlteredFields struct {
	Added   []string
	Removed []string
	Updated []string
}

// AllEmpty reports whether none of the three classes carry any paths.
func (a AlteredFields) AllEmpty() bool {
	return len(a.Added) == 0 && len(a.Removed) == 0 && len(a.Updated) == 0
}

// LogEntry is one line of workload output attributed to its producing
// instance.
type LogEntry struct {
	WorkloadInstanceName string
	Message              string
}

// Response is a server-originated message answering a Request (or, for
// event-driven CompleteState pushes, carrying AlteredFields instead of
// answering one).
type Response struct {
	RequestID RequestID
	Kind      ResponseKind

	// ResponseCompleteState
	CompleteState CompleteState
	AlteredFields *AlteredFields // nil for a direct request answer

	// ResponseUpdateStateResult
	AddedWorkloads   []string
	DeletedWorkloads []string

	// ResponseLogEntries
	LogEntries []LogEntry

	// ResponseLogsStop
	StoppedWorkloadInstanceName string

	// ResponseError
	ErrorMessage string
}

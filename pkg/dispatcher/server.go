package dispatcher

import (
	"sync"

	"github.com/cuemby/ankaios-core/internal/chanutil"
	"github.com/cuemby/ankaios-core/internal/logging"
	"github.com/cuemby/ankaios-core/internal/metrics"
	"github.com/cuemby/ankaios-core/internal/transport"
	"github.com/cuemby/ankaios-core/pkg/events"
	"github.com/cuemby/ankaios-core/pkg/logcampaign"
	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/serverstate"
	"github.com/cuemby/ankaios-core/pkg/statediff"
	"github.com/cuemby/ankaios-core/pkg/statestore"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// ServerDispatcher owns one server session's shared state and the
// per-connection outbound channels to every connected agent and CLI.
// Every public method is safe to call from the transport layer's own
// per-connection goroutines; internal state is guarded by one mutex,
// matching the "single owner, many callers" shape of ServerState
// itself.
type ServerDispatcher struct {
	state *serverstate.ServerState
	ev    *events.Store
	logs  *logcampaign.Store
	wst   *statestore.Store

	mu     sync.Mutex
	agents map[string]chan *transport.Envelope
	clis   map[string]chan *transport.Envelope
}

// NewServerDispatcher builds an empty ServerDispatcher.
func NewServerDispatcher() *ServerDispatcher {
	return &ServerDispatcher{
		state:  serverstate.New(),
		ev:     events.New(),
		logs:   logcampaign.New(),
		wst:    statestore.New(),
		agents: map[string]chan *transport.Envelope{},
		clis:   map[string]chan *transport.Envelope{},
	}
}

// State, Events and LogCampaigns expose the underlying stores for
// callers (the CLI request handler, health checks) that need direct
// read access beyond what the dispatcher methods offer.
func (d *ServerDispatcher) State() *serverstate.ServerState { return d.state }
func (d *ServerDispatcher) Events() *events.Store           { return d.ev }
func (d *ServerDispatcher) LogCampaigns() *logcampaign.Store { return d.logs }

// HandleAgentHello registers a newly connected agent and returns the
// channel of envelopes to send it, seeded with a ServerHello carrying
// every workload currently assigned to it.
func (d *ServerDispatcher) HandleAgentHello(agentName string) <-chan *transport.Envelope {
	d.mu.Lock()
	ch := make(chan *transport.Envelope, chanutil.DefaultCapacity)
	d.agents[agentName] = ch
	d.mu.Unlock()

	desired := d.state.DesiredStateSnapshot()
	ch <- &transport.Envelope{
		Kind: transport.MsgServerHello,
		ServerHello: &transport.ServerHello{
			AddedWorkloads: workloadsForAgent(desired, agentName),
		},
	}
	logging.WithAgent(agentName).Info().Msg("agent connected")
	return ch
}

// HandleCliHello registers a newly connected CLI connection and returns
// the channel of envelopes to send it.
func (d *ServerDispatcher) HandleCliHello(cliConnection string) <-chan *transport.Envelope {
	d.mu.Lock()
	ch := make(chan *transport.Envelope, chanutil.DefaultCapacity)
	d.clis[cliConnection] = ch
	d.mu.Unlock()
	return ch
}

// HandleAgentMessage dispatches one inbound envelope from a connected
// agent.
func (d *ServerDispatcher) HandleAgentMessage(agentName string, env *transport.Envelope) {
	switch env.Kind {
	case transport.MsgUpdateWorkloadState:
		if env.UpdateWorkloadState != nil {
			d.applyWorkloadStates(agentName, env.UpdateWorkloadState.States)
		}

	case transport.MsgAgentLoadStatus:
		if env.AgentLoadStatus != nil {
			d.state.SetAgentAttributes(agentName, env.AgentLoadStatus.Load)
		}

	case transport.MsgResponse:
		if env.Response != nil {
			d.routeResponse(*env.Response)
		}

	case transport.MsgGoodbye:
		d.AgentGone(agentName)

	default:
		logging.WithAgent(agentName).Warn().Str("kind", string(env.Kind)).Msg("unhandled envelope kind from agent")
	}
}

// HandleCliRequest validates and applies a CLI- or workload-originated
// Request, sending the Response (and any triggered event fan-out)
// through the appropriate connections.
func (d *ServerDispatcher) HandleCliRequest(req types.Request) {
	switch req.Kind {
	case types.RequestUpdateState:
		d.handleUpdateState(req)

	case types.RequestCompleteState:
		d.handleCompleteStateRequest(req)

	case types.RequestLogs:
		d.handleLogsRequest(req)

	case types.RequestLogsCancel:
		d.cancelLogCampaign(req.ID)

	default:
		d.sendResponse(types.Response{
			RequestID:    req.ID,
			Kind:         types.ResponseError,
			ErrorMessage: "unknown request kind",
		})
	}
}

func (d *ServerDispatcher) handleUpdateState(req types.Request) {
	before := d.state.GetCompleteState(nil)
	result, err := d.state.Update(req.UpdateNewState, req.UpdateFieldMask)
	if err != nil {
		metrics.StateUpdatesTotal.WithLabelValues("rejected").Inc()
		d.sendResponse(types.Response{
			RequestID:    req.ID,
			Kind:         types.ResponseError,
			ErrorMessage: err.Error(),
		})
		return
	}
	metrics.StateUpdatesTotal.WithLabelValues("accepted").Inc()

	d.sendResponse(types.Response{
		RequestID:        req.ID,
		Kind:             types.ResponseUpdateStateResult,
		AddedWorkloads:   result.Added,
		DeletedWorkloads: result.Deleted,
	})

	d.fanOutUpdate(before, result)
}

// fanOutUpdate sends one UpdateWorkload envelope per affected agent and
// emits the matching CompleteState events to subscribers, diffed against
// before (the complete state snapshotted immediately prior to applying
// this update).
func (d *ServerDispatcher) fanOutUpdate(before types.CompleteState, result serverstate.UpdateResult) {
	desired := d.state.DesiredStateSnapshot()
	perAgent := serverstate.WorkloadsPerAgent(desired, result.Added, result.Deleted)

	d.mu.Lock()
	agentChans := make(map[string]chan *transport.Envelope, len(perAgent))
	for agentName := range perAgent {
		if ch, ok := d.agents[agentName]; ok {
			agentChans[agentName] = ch
		}
	}
	d.mu.Unlock()

	for agentName, delta := range perAgent {
		ch, ok := agentChans[agentName]
		if !ok {
			continue
		}
		added := map[string]types.WorkloadSpec{}
		for _, instanceName := range delta.Added {
			parsed, err := naming.Parse(instanceName)
			if err != nil {
				continue
			}
			if spec, ok := desired.Workloads[parsed.WorkloadName]; ok {
				added[parsed.WorkloadName] = spec
			}
		}
		env := &transport.Envelope{
			Kind: transport.MsgUpdateWorkload,
			UpdateWorkload: &transport.UpdateWorkloadPayload{
				Added:   added,
				Deleted: delta.Deleted,
			},
		}
		select {
		case ch <- env:
		default:
			logging.WithAgent(agentName).Warn().Msg("outbound buffer full, dropping update workload envelope")
		}
	}

	if !d.ev.HasSubscribers() {
		return
	}
	for _, instanceName := range result.Deleted {
		d.state.RemoveWorkloadState(instanceName)
	}
	d.emitEvents(before, d.state.GetCompleteState(nil))
}

func (d *ServerDispatcher) handleCompleteStateRequest(req types.Request) {
	complete := d.state.GetCompleteState(req.CompleteStateFieldMask)
	d.sendResponse(types.Response{
		RequestID:     req.ID,
		Kind:          types.ResponseCompleteState,
		CompleteState: complete,
	})
	if req.SubscribeForEvents {
		d.ev.Add(req.ID, req.CompleteStateFieldMask)
		metrics.EventSubscribersTotal.Inc()
	}
}

func (d *ServerDispatcher) handleLogsRequest(req types.Request) {
	desired := d.state.DesiredStateSnapshot()
	var providers []naming.InstanceName
	for _, workloadName := range req.LogsWorkloadNames {
		if spec, ok := desired.Workloads[workloadName]; ok {
			providers = append(providers, naming.BuildFromSpec(workloadName, spec))
		}
	}
	d.logs.Insert(req.ID, providers)
	metrics.LogCampaignsTotal.Inc()

	byAgent := map[string][]string{}
	for _, provider := range providers {
		byAgent[provider.AgentName] = append(byAgent[provider.AgentName], provider.WorkloadName)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for agentName, workloadNames := range byAgent {
		ch, ok := d.agents[agentName]
		if !ok {
			continue
		}
		env := &transport.Envelope{
			Kind: transport.MsgLogsRequest,
			LogsRequest: &transport.LogsRequestPayload{
				RequestID:     req.ID.String(),
				WorkloadNames: workloadNames,
				Follow:        req.LogsFollow,
				Tail:          req.LogsTail,
				Since:         req.LogsSince,
				Until:         req.LogsUntil,
			},
		}
		select {
		case ch <- env:
		default:
			logging.WithAgent(agentName).Warn().Msg("outbound buffer full, dropping logs request envelope")
		}
	}
}

// cancelLogCampaign tears down a single log campaign by its request id,
// telling every connected agent to stop streaming for it. The request
// may have providers on any subset of agents, and the store does not
// expose which, so the cancel is broadcast; an agent not producing for
// this request simply finds no matching stream to cancel.
func (d *ServerDispatcher) cancelLogCampaign(id types.RequestID) {
	key := id.String()

	d.mu.Lock()
	agentChans := make(map[string]chan *transport.Envelope, len(d.agents))
	for name, ch := range d.agents {
		agentChans[name] = ch
	}
	d.mu.Unlock()

	env := &transport.Envelope{
		Kind:              transport.MsgLogsCancelRequest,
		LogsCancelRequest: &transport.LogsCancelRequestPayload{RequestID: key},
	}
	for name, ch := range agentChans {
		select {
		case ch <- env:
		default:
			logging.WithAgent(name).Warn().Msg("outbound buffer full, dropping logs cancel envelope")
		}
	}

	d.logs.Remove(key)
	metrics.LogCampaignsTotal.Dec()
}

// routeResponse forwards a Response received from an agent (log
// entries, the final LogsStopResponse of a producer-side stream) to
// whichever connection originated the matching request.
func (d *ServerDispatcher) routeResponse(resp types.Response) {
	d.sendResponse(resp)
	if resp.Kind == types.ResponseLogsStop {
		d.logs.Remove(resp.RequestID.String())
		metrics.LogCampaignsTotal.Dec()
	}
}

// sendResponse delivers resp to its RequestID's origin connection,
// whichever kind that is.
func (d *ServerDispatcher) sendResponse(resp types.Response) {
	env := &transport.Envelope{Kind: transport.MsgResponse, Response: &resp}
	d.mu.Lock()
	defer d.mu.Unlock()

	var ch chan *transport.Envelope
	switch resp.RequestID.Kind {
	case types.RequestIDCli:
		ch = d.clis[resp.RequestID.CliConnection]
	case types.RequestIDAgent:
		ch = d.agents[resp.RequestID.AgentName]
	}
	if ch == nil {
		return
	}
	select {
	case ch <- env:
	default:
		logging.Logger.Warn().Str("request", resp.RequestID.String()).Msg("outbound buffer full, dropping response")
	}
}

// emitEvents computes the diff between before and the current complete
// state and sends every matching subscriber its filtered CompleteState
// response.
func (d *ServerDispatcher) emitEvents(before, after types.CompleteState) {
	added, removed, updated := statediff.Diff(before, after)
	for _, resp := range d.ev.Emit(added, removed, updated, after) {
		d.sendResponse(resp)
	}
}

// applyWorkloadStates records states reported by agentName, applying
// hysteresis through the shared statestore, mirrors the effective
// result into ServerState, and fans the change out to event
// subscribers.
func (d *ServerDispatcher) applyWorkloadStates(agentName string, entries []transport.WorkloadStateEntry) {
	before := d.state.GetCompleteState(nil)
	for _, entry := range entries {
		effective := d.wst.Update(entry.InstanceName, agentName, entry.State)
		d.state.SetWorkloadState(entry.InstanceName, effective)
	}
	after := d.state.GetCompleteState(nil)
	d.emitEvents(before, after)

	// Dependency gating: every other connected agent needs to know about
	// this state change so queues parked on it can re-check readiness.
	d.mu.Lock()
	agentChans := make(map[string]chan *transport.Envelope, len(d.agents))
	for name, ch := range d.agents {
		if name != agentName {
			agentChans[name] = ch
		}
	}
	d.mu.Unlock()

	if len(agentChans) == 0 {
		return
	}
	env := &transport.Envelope{
		Kind:                transport.MsgUpdateWorkloadState,
		UpdateWorkloadState: &transport.UpdateWorkloadStatePayload{States: entries},
	}
	for name, ch := range agentChans {
		select {
		case ch <- env:
		default:
			logging.WithAgent(name).Warn().Msg("outbound buffer full, dropping dependency state update")
		}
	}
}

// AgentGone runs the full disconnect clean-up for agentName: drops its
// outbound channel, removes its workload states and event
// subscriptions, and tears down its log campaigns, broadcasting a
// LogsStopResponse to every collector left with a disconnected
// provider.
func (d *ServerDispatcher) AgentGone(agentName string) {
	d.mu.Lock()
	delete(d.agents, agentName)
	d.mu.Unlock()

	for _, instanceName := range d.wst.RemoveAgent(agentName) {
		d.state.RemoveWorkloadState(instanceName)
	}
	d.state.RemoveAgent(agentName)
	d.ev.RemoveAllForAgent(agentName)

	removed := d.logs.RemoveAgent(agentName)
	// The collector requests' own connection is gone; nothing left to notify.
	metrics.LogCampaignsTotal.Sub(float64(len(removed.CollectorRequests)))
	for _, disconnected := range removed.DisconnectedLogProviders {
		requestID, err := types.ParseRequestID(disconnected.RequestID)
		if err != nil {
			continue
		}
		for _, provider := range disconnected.Providers {
			d.sendResponse(types.Response{
				RequestID:                   requestID,
				Kind:                        types.ResponseLogsStop,
				StoppedWorkloadInstanceName: provider.String(),
			})
		}
	}

	logging.WithAgent(agentName).Info().Msg("agent disconnected")
}

// CliGone runs the disconnect clean-up for a closed CLI connection:
// drops its outbound channel, event subscriptions and log campaigns.
func (d *ServerDispatcher) CliGone(cliConnection string) {
	d.mu.Lock()
	delete(d.clis, cliConnection)
	d.mu.Unlock()

	d.ev.RemoveAllForCli(cliConnection)
	removed := d.logs.RemoveCli(cliConnection)
	metrics.LogCampaignsTotal.Sub(float64(len(removed)))
}

func workloadsForAgent(state types.State, agentName string) map[string]types.WorkloadSpec {
	out := map[string]types.WorkloadSpec{}
	for name, spec := range state.Workloads {
		if spec.AgentName == agentName {
			out[name] = spec
		}
	}
	return out
}

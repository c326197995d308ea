// Package dispatcher runs the agent and server select-loops that bind
// the wire transport to the rest of the system: the agent loop drives
// one RuntimeManager from a stream of server envelopes plus its own
// workload state reports and a periodic load tick, while the server
// loop drives ServerState, the event subscriber store and the log
// campaign store from a stream of agent and CLI envelopes. Grounded on
// the original agent_manager.rs start() select loop and on the
// teacher's ticker+stop-channel loop shape in pkg/worker/worker.go and
// pkg/reconciler/reconciler.go.
package dispatcher

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cuemby/ankaios-core/internal/chanutil"
	"github.com/cuemby/ankaios-core/internal/logging"
	"github.com/cuemby/ankaios-core/internal/transport"
	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/runtime"
	"github.com/cuemby/ankaios-core/pkg/runtimemanager"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// LoadSampler reports the current host CPU usage percentage (0-100) and
// free memory in bytes, sampled once per load tick.
type LoadSampler func() types.AgentAttributes

// LoadTickInterval is how often the agent dispatcher samples and
// reports host resource availability.
const LoadTickInterval = 2 * time.Second

// AgentDispatcher binds one RuntimeManager to a transport stream: it
// applies inbound server envelopes to the manager, relays the
// manager's own workload state transitions back to the server, and
// ticks a periodic AgentLoadStatus report.
type AgentDispatcher struct {
	agentName string
	mgr       *runtimemanager.Manager
	outbound  chan *transport.Envelope
	sampler   LoadSampler

	logMu     sync.Mutex
	logCancel map[string]context.CancelFunc
}

// NewAgentDispatcher builds an AgentDispatcher for agentName. lookup and
// ctrlIfacePath are forwarded to runtimemanager.New; sampler defaults
// to DefaultLoadSampler when nil.
func NewAgentDispatcher(agentName string, lookup runtimemanager.FacadeLookup, ctrlIfacePath runtimemanager.ControlInterfacePathFunc, sampler LoadSampler) *AgentDispatcher {
	if sampler == nil {
		sampler = DefaultLoadSampler
	}
	d := &AgentDispatcher{
		agentName: agentName,
		outbound:  make(chan *transport.Envelope, chanutil.DefaultCapacity),
		sampler:   sampler,
		logCancel: map[string]context.CancelFunc{},
	}
	d.mgr = runtimemanager.New(agentName, lookup, d.reportOwnState, ctrlIfacePath)
	return d
}

// Outbound is the channel of envelopes the dispatcher wants sent to the
// server; the transport layer drains it.
func (d *AgentDispatcher) Outbound() <-chan *transport.Envelope {
	return d.outbound
}

// Manager returns the RuntimeManager this dispatcher drives, for
// callers that need direct access (e.g. tests).
func (d *AgentDispatcher) Manager() *runtimemanager.Manager {
	return d.mgr
}

// reportOwnState is the RuntimeManager's ReportFunc: it packages an
// observed own-workload transition as an UpdateWorkloadState envelope
// and forwards it to the server, dropping it if the outbound buffer is
// full rather than blocking the workload queue that produced it.
func (d *AgentDispatcher) reportOwnState(instanceName naming.InstanceName, state types.ExecutionState) {
	env := &transport.Envelope{
		Kind: transport.MsgUpdateWorkloadState,
		UpdateWorkloadState: &transport.UpdateWorkloadStatePayload{
			States: []transport.WorkloadStateEntry{{InstanceName: instanceName.String(), State: state}},
		},
	}
	select {
	case d.outbound <- env:
	default:
		logging.WithAgent(d.agentName).Warn().Str("workload", instanceName.String()).Msg("outbound buffer full, dropping own workload state report")
	}
}

// Run drives the select loop until ctx is cancelled, inbound is closed,
// or a Stop envelope is received. It does not close outbound, leaving
// that to the transport layer once Run returns.
func (d *AgentDispatcher) Run(ctx context.Context, inbound <-chan *transport.Envelope) {
	ticker := time.NewTicker(LoadTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-inbound:
			if !ok {
				return
			}
			if !d.handleInbound(ctx, env) {
				return
			}

		case <-ticker.C:
			d.sendLoadStatus()
		}
	}
}

// handleInbound applies one server envelope and reports whether the
// loop should keep running (false on a Stop message).
func (d *AgentDispatcher) handleInbound(ctx context.Context, env *transport.Envelope) bool {
	log := logging.WithAgent(d.agentName)
	switch env.Kind {
	case transport.MsgServerHello:
		if env.ServerHello != nil {
			d.mgr.HandleServerHello(ctx, env.ServerHello.AddedWorkloads)
		}

	case transport.MsgUpdateWorkload:
		if env.UpdateWorkload != nil {
			d.mgr.HandleUpdateWorkload(ctx, env.UpdateWorkload.Added, env.UpdateWorkload.Deleted)
		}

	case transport.MsgUpdateWorkloadState:
		if env.UpdateWorkloadState != nil {
			for _, entry := range env.UpdateWorkloadState.States {
				parsed, err := naming.Parse(entry.InstanceName)
				if err != nil {
					log.Warn().Err(err).Str("instance", entry.InstanceName).Msg("dropping dependency state update for unparsable instance name")
					continue
				}
				d.mgr.UpdateDependencyState(parsed.WorkloadName, entry.State)
			}
		}

	case transport.MsgResponse:
		// Control interface response routing is out of scope; the
		// response is logged so the round trip is still observable.
		if env.Response != nil {
			log.Debug().Str("request", env.Response.RequestID.String()).Msg("received response from server")
		}

	case transport.MsgLogsRequest:
		if env.LogsRequest != nil {
			d.startLogStream(ctx, *env.LogsRequest)
		}

	case transport.MsgLogsCancelRequest:
		if env.LogsCancelRequest != nil {
			d.cancelLogStream(env.LogsCancelRequest.RequestID)
		}

	case transport.MsgStop:
		return false

	default:
		log.Warn().Str("kind", string(env.Kind)).Msg("unhandled envelope kind")
	}
	return true
}

// sendLoadStatus samples the host and forwards an AgentLoadStatus
// envelope, dropping it under backpressure like reportOwnState.
func (d *AgentDispatcher) sendLoadStatus() {
	env := &transport.Envelope{
		Kind: transport.MsgAgentLoadStatus,
		AgentLoadStatus: &transport.AgentLoadStatus{
			AgentName: d.agentName,
			Load:      d.sampler(),
		},
	}
	select {
	case d.outbound <- env:
	default:
		logging.WithAgent(d.agentName).Warn().Msg("outbound buffer full, dropping load status tick")
	}
}

// startLogStream opens a log fetcher per requested workload name and
// streams LogEntriesResponse envelopes until the reader is exhausted,
// the context is cancelled, or a matching LogsCancelRequest arrives. It
// runs in its own goroutine so the dispatch loop is never blocked on
// log I/O.
func (d *AgentDispatcher) startLogStream(ctx context.Context, req transport.LogsRequestPayload) {
	streamCtx, cancel := context.WithCancel(ctx)
	d.logMu.Lock()
	d.logCancel[req.RequestID] = cancel
	d.logMu.Unlock()

	go func() {
		defer func() {
			d.logMu.Lock()
			delete(d.logCancel, req.RequestID)
			d.logMu.Unlock()
			cancel()
		}()

		var wg sync.WaitGroup
		for _, workloadName := range req.WorkloadNames {
			facade, workloadID, ok := d.mgr.LogSource(workloadName)
			if !ok {
				continue
			}
			wg.Add(1)
			go d.streamOneWorkload(streamCtx, &wg, facade, workloadID, workloadName, req)
		}
		wg.Wait()

		resp := types.Response{Kind: types.ResponseLogsStop}
		if requestID, err := types.ParseRequestID(req.RequestID); err == nil {
			resp.RequestID = requestID
		}
		d.sendEnvelope(&transport.Envelope{Kind: transport.MsgResponse, Response: &resp})
	}()
}

func (d *AgentDispatcher) streamOneWorkload(ctx context.Context, wg *sync.WaitGroup, facade runtime.Facade, workloadID, workloadName string, req transport.LogsRequestPayload) {
	defer wg.Done()

	reader, err := facade.GetLogFetcher(ctx, workloadID, runtime.LogFetchOptions{
		Follow: req.Follow,
		Tail:   req.Tail,
	})
	if err != nil {
		logging.WithAgent(d.agentName).Warn().Err(err).Str("workload", workloadName).Msg("failed to open log fetcher")
		return
	}
	defer reader.Close()

	requestID, err := types.ParseRequestID(req.RequestID)
	if err != nil {
		logging.WithAgent(d.agentName).Warn().Err(err).Str("request", req.RequestID).Msg("unparsable log request id")
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			d.sendEnvelope(&transport.Envelope{
				Kind: transport.MsgResponse,
				Response: &types.Response{
					Kind:       types.ResponseLogEntries,
					LogEntries: []types.LogEntry{{WorkloadInstanceName: workloadName, Message: string(buf[:n])}},
					RequestID:  requestID,
				},
			})
		}
		if err != nil {
			if err != io.EOF {
				logging.WithAgent(d.agentName).Warn().Err(err).Str("workload", workloadName).Msg("log stream read failed")
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (d *AgentDispatcher) cancelLogStream(requestID string) {
	d.logMu.Lock()
	cancel, ok := d.logCancel[requestID]
	d.logMu.Unlock()
	if ok {
		cancel()
	}
}

func (d *AgentDispatcher) sendEnvelope(env *transport.Envelope) {
	select {
	case d.outbound <- env:
	default:
		logging.WithAgent(d.agentName).Warn().Msg("outbound buffer full, dropping log response")
	}
}

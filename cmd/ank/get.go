package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/cuemby/ankaios-core/internal/transport"
	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Display one or more resources",
}

var getWorkloadsCmd = &cobra.Command{
	Use:   "workloads [workload_name...]",
	Short: "List workloads and their reported execution state",
	RunE:  runGetWorkloads,
}

func init() {
	getWorkloadsCmd.Flags().String("agent", "", "Only show workloads assigned to this agent")
	getWorkloadsCmd.Flags().String("state", "", "Only show workloads currently in this execution state")
	getWorkloadsCmd.Flags().Bool("watch", false, "Keep the connection open and re-render on every update")
}

func runGetWorkloads(cmd *cobra.Command, args []string) error {
	agentFilter, _ := cmd.Flags().GetString("agent")
	stateFilter, _ := cmd.Flags().GetString("state")
	watch, _ := cmd.Flags().GetBool("watch")

	conn, err := dialFromFlags(cmd)
	if err != nil {
		return executionError("failed to connect to server: %v", err)
	}
	defer conn.close()

	requestUUID, err := conn.send(types.RequestCompleteState, func(r *types.Request) {
		r.SubscribeForEvents = watch
	})
	if err != nil {
		return executionError("failed to send request: %v", err)
	}

	resp, err := conn.recvMatching(requestUUID)
	if err != nil {
		return executionError("failed to read response: %v", err)
	}
	if resp.Kind == types.ResponseError {
		return executionError("%s", resp.ErrorMessage)
	}
	renderWorkloads(resp.CompleteState, args, agentFilter, stateFilter)

	if !watch {
		return nil
	}
	return watchWorkloads(conn, args, agentFilter, stateFilter)
}

func watchWorkloads(conn *connection, names []string, agentFilter, stateFilter string) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	updates := make(chan types.CompleteState)
	errs := make(chan error, 1)
	go func() {
		for {
			env, err := conn.stream.Recv()
			if err != nil {
				errs <- err
				return
			}
			if env.Kind != transport.MsgResponse || env.Response == nil {
				continue
			}
			if env.Response.Kind == types.ResponseCompleteState && env.Response.AlteredFields != nil {
				updates <- env.Response.CompleteState
			}
		}
	}()

	for {
		select {
		case <-sigCh:
			return nil
		case err := <-errs:
			return executionError("watch connection closed: %v", err)
		case state := <-updates:
			renderWorkloads(state, names, agentFilter, stateFilter)
		}
	}
}

func renderWorkloads(state types.CompleteState, names []string, agentFilter, stateFilter string) {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}

	type row struct {
		name, agent, execState string
	}
	var rows []row
	for name, spec := range state.DesiredState.Workloads {
		if len(want) > 0 && !want[name] {
			continue
		}
		if agentFilter != "" && spec.AgentName != agentFilter {
			continue
		}
		execState := lookupState(state.WorkloadStates, name, spec.AgentName)
		if stateFilter != "" && execState != stateFilter {
			continue
		}
		rows = append(rows, row{name: name, agent: spec.AgentName, execState: execState})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	if len(rows) == 0 {
		fmt.Println("No workloads found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WORKLOAD\tAGENT\tSTATE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.name, r.agent, r.execState)
	}
	w.Flush()
}

// lookupState finds the reported execution state for workloadName by
// scanning the instance names under it (the full instance name carries
// a config hash the caller doesn't know), falling back to "Pending" if
// the agent hasn't reported anything yet.
func lookupState(states map[string]types.ExecutionState, workloadName, agentName string) string {
	prefix := workloadName + "."
	for instanceName, execState := range states {
		if len(instanceName) > len(prefix) && instanceName[:len(prefix)] == prefix {
			return execState.String()
		}
	}
	return string(types.PhasePending)
}

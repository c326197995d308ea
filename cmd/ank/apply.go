package main

import (
	"fmt"

	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply manifest.yaml [manifest2.yaml...]",
	Short: "Apply one or more workload manifests to the cluster's desired state",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().String("agent", "", "Default agent for workloads that don't name their own")
	applyCmd.Flags().Bool("delete", false, "Delete the manifests' workloads instead of applying them")
}

func runApply(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return invalidArgs("apply requires at least one manifest file")
	}
	agentDefault, _ := cmd.Flags().GetString("agent")
	deleteMode, _ := cmd.Flags().GetBool("delete")

	state := types.NewState()
	for _, path := range args {
		m, err := loadManifest(path)
		if err != nil {
			return invalidArgs("%v", err)
		}
		if err := m.toState(state, agentDefault); err != nil {
			return invalidArgs("%v", err)
		}
	}
	if len(state.Workloads) == 0 {
		return invalidArgs("no workloads found in the given manifests")
	}

	conn, err := dialFromFlags(cmd)
	if err != nil {
		return executionError("failed to connect to server: %v", err)
	}
	defer conn.close()

	var requestUUID string
	if deleteMode {
		requestUUID, err = sendDeleteRequest(conn, workloadNames(state))
	} else {
		requestUUID, err = conn.send(types.RequestUpdateState, func(r *types.Request) {
			r.UpdateNewState = state
			r.UpdateFieldMask = fieldMaskFor(state)
		})
	}
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

	if deleteMode {
		for _, name := range resp.DeletedWorkloads {
			fmt.Printf("✓ Workload deleted: %s\n", name)
		}
		return nil
	}
	for _, name := range resp.AddedWorkloads {
		fmt.Printf("✓ Workload applied: %s\n", name)
	}
	return nil
}

// fieldMaskFor selects every workload named in state so an apply only
// touches those entries, leaving any other existing workload alone.
func fieldMaskFor(state types.State) []string {
	mask := make([]string, 0, len(state.Workloads))
	for name := range state.Workloads {
		mask = append(mask, "workloads."+name)
	}
	return mask
}

func workloadNames(state types.State) []string {
	names := make([]string, 0, len(state.Workloads))
	for name := range state.Workloads {
		names = append(names, name)
	}
	return names
}

// sendDeleteRequest builds an UpdateState request whose field mask names
// each workload but whose UpdateNewState carries no corresponding entry,
// which ServerState.Update treats as a deletion of that map entry.
func sendDeleteRequest(conn *connection, names []string) (string, error) {
	mask := make([]string, 0, len(names))
	for _, name := range names {
		mask = append(mask, "workloads."+name)
	}
	return conn.send(types.RequestUpdateState, func(r *types.Request) {
		r.UpdateNewState = types.NewState()
		r.UpdateFieldMask = mask
	})
}

package main

import (
	"fmt"

	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete workload_name [workload_name...]",
	Short: "Delete workloads from the cluster's desired state by name",
	RunE:  runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return invalidArgs("delete requires at least one workload name")
	}

	conn, err := dialFromFlags(cmd)
	if err != nil {
		return executionError("failed to connect to server: %v", err)
	}
	defer conn.close()

	requestUUID, err := sendDeleteRequest(conn, args)
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

	if len(resp.DeletedWorkloads) == 0 {
		fmt.Println("No workloads deleted")
		return nil
	}
	for _, name := range resp.DeletedWorkloads {
		fmt.Printf("✓ Workload deleted: %s\n", name)
	}
	return nil
}

// Command ank is the Ankaios CLI: a thin client that builds Request
// values, sends them to ankd over the same Exchange stream agents use,
// and renders the responses. Grounded on the teacher's cmd/warren
// (cobra tree shape, plain fmt.Println/checkmark console texture,
// RunE error wrapping) and cmd/warren/apply.go (manifest-file driven
// apply command).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

// exitError carries the process exit code a failed command should
// produce, per the CLI's documented contract: 1 for an execution
// error, 2 for invalid arguments.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func invalidArgs(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func executionError(format string, args ...any) error {
	return &exitError{code: 1, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if ee, ok := err.(*exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ank",
	Short:   "Ankaios CLI",
	Long:    `ank talks to an ankd server to inspect and change the cluster's desired state.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ank version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("server", "127.0.0.1:25551", "ankd gRPC address")
	rootCmd.PersistentFlags().String("cert-file", "", "Client certificate (enables mutual TLS)")
	rootCmd.PersistentFlags().String("key-file", "", "Client private key")
	rootCmd.PersistentFlags().String("ca-file", "", "CA bundle to verify the server certificate")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(deleteCmd)

	getCmd.AddCommand(getWorkloadsCmd)
}

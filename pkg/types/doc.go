// Package types is the shared vocabulary between the server, the agent
// and the CLI: a WorkloadSpec describes what should run, an
// ExecutionState describes what is observed to run, and a
// CompleteState is the union an API consumer actually reads.
//
// None of these types know how to validate or mutate themselves beyond
// simple accessors — that belongs to pkg/serverstate (validation),
// pkg/statediff (comparison and field-mask projection) and
// pkg/statestore (hysteresis). Keeping types free of that logic lets all
// three packages depend on types without a cycle.
package types

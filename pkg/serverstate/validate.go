package serverstate

import (
	"sort"

	"github.com/cuemby/ankaios-core/pkg/depgraph"
	"github.com/cuemby/ankaios-core/pkg/types"
)

// validate checks every invariant a desired state must satisfy before it
// may be stored: the api_version, name formats for workloads, agents,
// config aliases and config reference keys, resolved config references,
// and an acyclic dependency graph. It returns the first violation found;
// names are checked in sorted order so the error is deterministic.
func validate(state types.State) error {
	if state.APIVersion != types.CurrentAPIVersion {
		return &types.InvalidAPIVersionError{Received: state.APIVersion, Expected: types.CurrentAPIVersion}
	}

	configNames := make([]string, 0, len(state.Configs))
	for name := range state.Configs {
		configNames = append(configNames, name)
	}
	sort.Strings(configNames)

	for _, name := range configNames {
		if !types.NameRegex.MatchString(name) {
			return &types.InvalidNameError{Kind: "config_key", Value: name}
		}
	}

	names := make([]string, 0, len(state.Workloads))
	for name := range state.Workloads {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !types.NameRegex.MatchString(name) || len(name) > types.MaxWorkloadNameLength {
			return &types.InvalidNameError{Kind: "workload", Value: name}
		}

		spec := state.Workloads[name]
		if !types.NameRegex.MatchString(spec.AgentName) {
			return &types.InvalidNameError{Kind: "agent", Value: spec.AgentName}
		}

		aliases := make([]string, 0, len(spec.Configs))
		for alias := range spec.Configs {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)

		for _, alias := range aliases {
			if !types.NameRegex.MatchString(alias) {
				return &types.InvalidNameError{Kind: "config_alias", Value: alias}
			}
			key := spec.Configs[alias]
			if !types.NameRegex.MatchString(key) {
				return &types.InvalidNameError{Kind: "config_key", Value: key}
			}
			if _, ok := state.Configs[key]; !ok {
				return &types.UnknownConfigReferenceError{Workload: name, Alias: alias, Key: key}
			}
		}
	}

	if workload, cyclic := depgraph.FindCycle(state.Workloads, nil); cyclic {
		return &types.CycleDetectedError{Workload: workload}
	}

	return nil
}

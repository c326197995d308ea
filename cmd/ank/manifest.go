package main

import (
	"fmt"
	"os"

	"github.com/cuemby/ankaios-core/pkg/types"
	"gopkg.in/yaml.v3"
)

// manifestFile is the yaml-tagged shape a user writes to disk. types.State
// itself carries only json tags, so apply parses into this intermediate
// form first and converts field by field.
type manifestFile struct {
	APIVersion string                      `yaml:"apiVersion"`
	Workloads  map[string]manifestWorkload `yaml:"workloads"`
	Configs    map[string]manifestConfig   `yaml:"configs"`
}

type manifestWorkload struct {
	Agent                  string                `yaml:"agent"`
	Runtime                string                `yaml:"runtime"`
	RuntimeConfig          string                `yaml:"runtimeConfig"`
	Dependencies           map[string]string     `yaml:"dependencies"`
	RestartPolicy          string                `yaml:"restartPolicy"`
	Tags                   map[string]string     `yaml:"tags"`
	Configs                map[string]string     `yaml:"configs"`
	ControlInterfaceAccess []manifestAccessRule  `yaml:"controlInterfaceAccess"`
}

type manifestAccessRule struct {
	FilterMask string `yaml:"filterMask"`
	Operation  string `yaml:"operation"`
}

type manifestConfig struct {
	Value  string            `yaml:"value"`
	Array  []string          `yaml:"array"`
	Object map[string]string `yaml:"object"`
}

func loadManifest(path string) (manifestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifestFile{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var m manifestFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return manifestFile{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// toState merges this manifest's workloads and configs into dest, filling
// in agentDefault on any workload that didn't name its own agent, and
// erroring on a workload name already present from an earlier manifest.
func (m manifestFile) toState(dest types.State, agentDefault string) error {
	for name, w := range m.Workloads {
		if _, exists := dest.Workloads[name]; exists {
			return fmt.Errorf("workload %q is defined in more than one manifest", name)
		}
		spec, err := w.toSpec(agentDefault)
		if err != nil {
			return fmt.Errorf("workload %q: %w", name, err)
		}
		dest.Workloads[name] = spec
	}
	for name, c := range m.Configs {
		dest.Configs[name] = types.ConfigItem{Value: c.Value, Array: c.Array, Object: c.Object}
	}
	return nil
}

func (w manifestWorkload) toSpec(agentDefault string) (types.WorkloadSpec, error) {
	agent := w.Agent
	if agent == "" {
		agent = agentDefault
	}
	if agent == "" {
		return types.WorkloadSpec{}, fmt.Errorf("no agent given and no --agent default set")
	}

	restartPolicy := types.RestartNever
	if w.RestartPolicy != "" {
		restartPolicy = types.RestartPolicy(w.RestartPolicy)
	}

	deps := make(map[string]types.AddCondition, len(w.Dependencies))
	for dep, cond := range w.Dependencies {
		deps[dep] = types.AddCondition(cond)
	}

	var rules []types.AccessRule
	for _, r := range w.ControlInterfaceAccess {
		rules = append(rules, types.AccessRule{FilterMask: r.FilterMask, Operation: types.ACLOperation(r.Operation)})
	}

	return types.WorkloadSpec{
		AgentName:              agent,
		RuntimeName:            w.Runtime,
		RuntimeConfig:          w.RuntimeConfig,
		Dependencies:           deps,
		RestartPolicy:          restartPolicy,
		Tags:                   w.Tags,
		Configs:                w.Configs,
		ControlInterfaceAccess: rules,
	}, nil
}

// Package depgraph detects cycles in the dependency graph induced by a
// State's workloads, by an iterative depth-first search.
package depgraph

import (
	"sort"

	"github.com/cuemby/ankaios-core/pkg/types"
)

// FindCycle searches the dependency graph induced by workloads[*].Dependencies
// for a cycle, visiting only startNodes (or, if startNodes is nil, every
// workload in the map). It returns the name of a workload that is part
// of a cycle and true, or ("", false) if the reachable graph is acyclic.
//
// The search is iterative depth-first: a stack drives traversal order, a
// visited set prevents revisiting nodes, and an ordered path tracks the
// currently-open chain of ancestors. A dependency seen again while it is
// still on the open path is a cycle; dependencies naming a workload
// absent from the map are treated as leaves. Workload names and
// dependency names are sorted before traversal so the result is the same
// across processes for the same input. The search returns on the first
// cycle it finds; self-edges (A depends on A) count as cycles.
func FindCycle(workloads map[string]types.WorkloadSpec, startNodes []string) (string, bool) {
	visited := make(map[string]bool, len(workloads))
	path := make([]string, 0, len(workloads))
	stack := make([]string, 0, len(workloads))

	var data []string
	if startNodes != nil {
		data = append(data, startNodes...)
	} else {
		for name := range workloads {
			data = append(data, name)
		}
	}
	sort.Strings(data)

	for _, workloadName := range data {
		if visited[workloadName] {
			continue
		}

		stack = append(stack, workloadName)
		for len(stack) > 0 {
			head := stack[len(stack)-1]

			spec, ok := workloads[head]
			if !ok {
				// head is referenced as a dependency but absent from the
				// state; treat it as a leaf and move on.
				stack = stack[:len(stack)-1]
				continue
			}

			if !visited[head] {
				visited[head] = true
				path = append(path, head)
			} else {
				if len(path) > 0 {
					path = path[:len(path)-1]
				}
				stack = stack[:len(stack)-1]
			}

			deps := make([]string, 0, len(spec.Dependencies))
			for dep := range spec.Dependencies {
				deps = append(deps, dep)
			}
			sort.Strings(deps)

			for _, dep := range deps {
				if !visited[dep] {
					stack = append(stack, dep)
				} else if contains(path, dep) {
					return dep, true
				}
			}
		}
	}
	return "", false
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

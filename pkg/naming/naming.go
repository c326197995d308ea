// Package naming builds and parses the canonical workload instance name
// "name.hash.agent", the stable identity a workload's running container
// is labeled and looked up with.
package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/cuemby/ankaios-core/pkg/types"
)

// InstanceName is the parsed form of a canonical "name.hash.agent"
// string.
type InstanceName struct {
	WorkloadName string
	ConfigHash   string
	AgentName    string
}

// ConfigHash returns the deterministic content hash used as the middle
// component of an instance name: the hex-encoded SHA-256 digest of the
// runtime config string. Identical runtime configs always yield
// identical hashes, across processes and runs.
func ConfigHash(runtimeConfig string) string {
	sum := sha256.Sum256([]byte(runtimeConfig))
	return hex.EncodeToString(sum[:])
}

// Build derives the canonical InstanceName for a workload from its name,
// its agent, and its runtime config.
func Build(workloadName, agentName, runtimeConfig string) InstanceName {
	return InstanceName{
		WorkloadName: workloadName,
		ConfigHash:   ConfigHash(runtimeConfig),
		AgentName:    agentName,
	}
}

// BuildFromSpec is a convenience wrapper deriving the InstanceName
// directly from a WorkloadSpec.
func BuildFromSpec(workloadName string, spec types.WorkloadSpec) InstanceName {
	return Build(workloadName, spec.AgentName, spec.RuntimeConfig)
}

// String renders the canonical "name.hash.agent" form.
func (n InstanceName) String() string {
	return fmt.Sprintf("%s.%s.%s", n.WorkloadName, n.ConfigHash, n.AgentName)
}

// IsFilter reports whether this InstanceName has an empty workload name,
// meaning it is a filter matching every instance on its agent rather
// than a single concrete instance.
func (n InstanceName) IsFilter() bool {
	return n.WorkloadName == ""
}

// Equal reports whether two instance names denote the same executable
// instance: same workload name, same config hash, same agent.
func (n InstanceName) Equal(o InstanceName) bool {
	return n.WorkloadName == o.WorkloadName && n.ConfigHash == o.ConfigHash && n.AgentName == o.AgentName
}

// Parse splits the canonical string form into an InstanceName. It
// requires exactly three dot-separated parts; the workload-name part may
// be empty (an agent-wide filter), but the hash and agent parts may not.
func Parse(s string) (InstanceName, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return InstanceName{}, fmt.Errorf("invalid instance name %q: expected exactly 3 dot-separated parts, got %d", s, len(parts))
	}
	name, hash, agent := parts[0], parts[1], parts[2]
	if hash == "" {
		return InstanceName{}, fmt.Errorf("invalid instance name %q: config hash part must not be empty", s)
	}
	if agent == "" {
		return InstanceName{}, fmt.Errorf("invalid instance name %q: agent part must not be empty", s)
	}
	return InstanceName{WorkloadName: name, ConfigHash: hash, AgentName: agent}, nil
}

// agentFilterEscaper matches the regular-expression metacharacters that
// AgentFilterRegex escapes in an agent name; it is compiled once.
var agentFilterEscaper = regexp.MustCompile(`[.+*?()|\[\]{}^$\\]`)

// AgentFilterRegex returns a regular expression string matching the
// canonical instance name of any workload currently scheduled on the
// given agent, for use against runtime-reported container labels.
func AgentFilterRegex(agentName string) string {
	escaped := agentFilterEscaper.ReplaceAllStringFunc(agentName, func(c string) string {
		return "\\" + c
	})
	return `^[^.]*\.[0-9a-f]+\.` + escaped + `$`
}

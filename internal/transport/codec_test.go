package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ankaios-core/pkg/types"
)

func TestGobCodecRoundTripsEnvelope(t *testing.T) {
	c := gobCodec{}
	assert.Equal(t, "gob", c.Name())

	original := &Envelope{
		Kind: MsgUpdateWorkload,
		UpdateWorkload: &UpdateWorkloadPayload{
			Added: map[string]types.WorkloadSpec{
				"web": {AgentName: "agent-a", RuntimeName: "fake", RuntimeConfig: "image: web"},
			},
			Deleted: []string{"old"},
		},
	}

	data, err := c.Marshal(original)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, c.Unmarshal(data, &decoded))

	assert.Equal(t, MsgUpdateWorkload, decoded.Kind)
	require.NotNil(t, decoded.UpdateWorkload)
	assert.Equal(t, original.UpdateWorkload.Deleted, decoded.UpdateWorkload.Deleted)
	assert.Equal(t, original.UpdateWorkload.Added["web"].RuntimeConfig, decoded.UpdateWorkload.Added["web"].RuntimeConfig)
}

func TestGobCodecRoundTripsAgentLoadStatus(t *testing.T) {
	c := gobCodec{}
	original := &Envelope{
		Kind: MsgAgentLoadStatus,
		AgentLoadStatus: &AgentLoadStatus{
			AgentName: "agent-a",
			Load:      types.AgentAttributes{CPUUsagePercent: 12.5, FreeMemoryBytes: 1024},
		},
	}

	data, err := c.Marshal(original)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, c.Unmarshal(data, &decoded))
	assert.Equal(t, *original.AgentLoadStatus, *decoded.AgentLoadStatus)
}

package naming

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDeterministic(t *testing.T) {
	a := Build("web", "agent-a", `{"image":"nginx"}`)
	b := Build("web", "agent-a", `{"image":"nginx"}`)
	assert.Equal(t, a, b)
	assert.True(t, a.Equal(b))
	assert.Equal(t, "web."+a.ConfigHash+".agent-a", a.String())
}

func TestBuildDifferentConfigDifferentHash(t *testing.T) {
	a := Build("web", "agent-a", `{"image":"nginx"}`)
	b := Build("web", "agent-a", `{"image":"nginx:1.27"}`)
	assert.NotEqual(t, a.ConfigHash, b.ConfigHash)
	assert.False(t, a.Equal(b))
}

func TestParseRoundTrip(t *testing.T) {
	original := Build("web", "agent-a", "cfg")
	parsed, err := Parse(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseFilterForm(t *testing.T) {
	parsed, err := Parse(".deadbeef.agent-a")
	require.NoError(t, err)
	assert.True(t, parsed.IsFilter())
	assert.Equal(t, "deadbeef", parsed.ConfigHash)
	assert.Equal(t, "agent-a", parsed.AgentName)
}

func TestParseRejectsWrongPartCount(t *testing.T) {
	_, err := Parse("web.agent-a")
	assert.Error(t, err)

	_, err = Parse("web.hash.agent.extra")
	assert.Error(t, err)
}

func TestParseRejectsEmptyHashOrAgent(t *testing.T) {
	_, err := Parse("web..agent-a")
	assert.Error(t, err)

	_, err = Parse("web.hash.")
	assert.Error(t, err)
}

func TestAgentFilterRegexMatchesOnlyThatAgent(t *testing.T) {
	re := regexp.MustCompile(AgentFilterRegex("agent-a"))
	assert.True(t, re.MatchString(Build("web", "agent-a", "cfg").String()))
	assert.False(t, re.MatchString(Build("web", "agent-b", "cfg").String()))
}

func TestAgentFilterRegexEscapesSpecialCharacters(t *testing.T) {
	re := regexp.MustCompile(AgentFilterRegex("agent.one+two"))
	assert.True(t, re.MatchString(Build("web", "agent.one+two", "cfg").String()))
	assert.False(t, re.MatchString(Build("web", "agentXoneYtwo", "cfg").String()))
}

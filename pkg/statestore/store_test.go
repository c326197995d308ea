package statestore

import (
	"testing"

	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestUpdateFirstObservationStoresAsIs(t *testing.T) {
	s := New()
	got := s.Update("foo.h1.a1", "a1", types.PendingInitial())
	assert.Equal(t, types.PendingInitial(), got)
}

func TestUpdateHysteresisBlocksRegressionFromStopping(t *testing.T) {
	s := New()
	s.Update("foo.h1.a1", "a1", types.StoppingRequested())

	got := s.Update("foo.h1.a1", "a1", types.RunningOk())
	assert.Equal(t, types.StoppingRequested(), got, "a stray Running report must not revert a Stopping instance")
}

func TestUpdateHysteresisAllowsProgressionWithinShutdownChain(t *testing.T) {
	s := New()
	s.Update("foo.h1.a1", "a1", types.StoppingRequested())

	got := s.Update("foo.h1.a1", "a1", types.Removed())
	assert.Equal(t, types.Removed(), got)
}

func TestUpdateNoHysteresisOutsideShutdownChain(t *testing.T) {
	s := New()
	s.Update("foo.h1.a1", "a1", types.PendingInitial())

	got := s.Update("foo.h1.a1", "a1", types.RunningOk())
	assert.Equal(t, types.RunningOk(), got)
}

func TestRemoveAgentDropsOnlyThatAgentsInstances(t *testing.T) {
	s := New()
	s.Update("foo.h1.a1", "a1", types.RunningOk())
	s.Update("bar.h2.a2", "a2", types.RunningOk())

	removed := s.RemoveAgent("a1")
	assert.Equal(t, []string{"foo.h1.a1"}, removed)

	_, ok := s.Get("foo.h1.a1")
	assert.False(t, ok)
	_, ok = s.Get("bar.h2.a2")
	assert.True(t, ok)
}

func TestForAgentReturnsOnlyThatAgentsStates(t *testing.T) {
	s := New()
	s.Update("foo.h1.a1", "a1", types.RunningOk())
	s.Update("bar.h2.a2", "a2", types.RunningOk())

	states := s.ForAgent("a1")
	assert.Len(t, states, 1)
	assert.Contains(t, states, "foo.h1.a1")
}

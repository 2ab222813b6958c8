package runqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanFromUserMessageIsNoopWhenManual(t *testing.T) {
	s := NewStore()
	p := NewPlanner(s, time.Second, time.Second)

	_, created, err := p.PlanFromUserMessage("c1", "m1", "manual")
	require.NoError(t, err)
	assert.False(t, created)
	_, ok := s.QueuedRun("c1")
	assert.False(t, ok)
}

func TestPlanFromUserMessageExtendsExistingQueuedRun(t *testing.T) {
	s := NewStore()
	p := NewPlanner(s, time.Second, time.Second)

	first, created, err := p.PlanFromUserMessage("c1", "m1", "auto")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := p.PlanFromUserMessage("c1", "m2", "auto")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, first.ID, second.ID, "extends the same queued run rather than creating another")
	assert.Equal(t, "m2", second.Debug.UserMessageID)
	assert.True(t, second.RunAfter.After(first.RunAfter) || second.RunAfter.Equal(first.RunAfter))
}

func TestPlanForceTalkCancelsExistingQueuedRun(t *testing.T) {
	s := NewStore()
	p := NewPlanner(s, time.Second, time.Second)

	_, _, err := p.PlanFromUserMessage("c1", "m1", "auto")
	require.NoError(t, err)

	forced, err := p.PlanForceTalk("c1", "r1", "member-x")
	require.NoError(t, err)
	assert.Equal(t, KindForceTalk, forced.Kind)
	assert.Equal(t, "member-x", forced.SpeakerMembershipID)

	queued, ok := s.QueuedRun("c1")
	require.True(t, ok)
	assert.Equal(t, forced.ID, queued.ID)
}

func TestPlanAutoWithoutHumanFollowupDoesNotOverrideExisting(t *testing.T) {
	s := NewStore()
	p := NewPlanner(s, time.Second, time.Second)

	first, created, err := p.PlanAutoWithoutHumanFollowup("c1", "r1", "trigger-1")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := p.PlanAutoWithoutHumanFollowup("c1", "r1", "trigger-2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, Run{}, second)

	queued, ok := s.QueuedRun("c1")
	require.True(t, ok)
	assert.Equal(t, first.ID, queued.ID)
	assert.Equal(t, "trigger-1", queued.Debug.ExpectedLastMessageID)
}

func TestPlanRegenerateCarriesTargetAndExpectedMessage(t *testing.T) {
	s := NewStore()
	p := NewPlanner(s, time.Second, time.Second)

	r, err := p.PlanRegenerate("c1", "r1", "target-msg", "expected-msg")
	require.NoError(t, err)
	assert.Equal(t, KindRegenerate, r.Kind)
	assert.Equal(t, "target-msg", r.Debug.TargetMessageID)
	assert.Equal(t, "expected-msg", r.Debug.ExpectedLastMessageID)
}

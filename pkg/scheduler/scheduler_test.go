package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernkit/core/pkg/round"
	"github.com/tavernkit/core/pkg/runqueue"
)

// fakeQueue is a static ActivatedQueueProvider test double.
type fakeQueue struct {
	members []Membership
	err     error
}

func (f *fakeQueue) ActivatedQueue(conversationID string) ([]Membership, error) {
	return f.members, f.err
}

// fakeMembers is a map-backed MembershipLookup test double.
type fakeMembers struct {
	byID map[string]Membership
}

func newFakeMembers(ms ...Membership) *fakeMembers {
	m := &fakeMembers{byID: make(map[string]Membership)}
	for _, mm := range ms {
		m.byID[mm.ID] = mm
	}
	return m
}

func (f *fakeMembers) Membership(id string) (Membership, bool) {
	m, ok := f.byID[id]
	return m, ok
}

// recordingEvents collects every published Event in order.
type recordingEvents struct {
	events []Event
}

func (r *recordingEvents) Emit(e Event) { r.events = append(r.events, e) }

func (r *recordingEvents) names() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

// recordingKicker counts Kick calls per conversation.
type recordingKicker struct {
	kicks map[string]int
}

func newRecordingKicker() *recordingKicker { return &recordingKicker{kicks: make(map[string]int)} }

func (k *recordingKicker) Kick(conversationID string) { k.kicks[conversationID]++ }

type recordingAutoDisabler struct {
	disabled []string
}

func (d *recordingAutoDisabler) DisableAllHumanAuto(conversationID string) {
	d.disabled = append(d.disabled, conversationID)
}

func newTestScheduler(members []Membership) (*Scheduler, *round.Store, *runqueue.Store, *recordingEvents, *recordingKicker, *fakeMembers) {
	rs := round.NewStore()
	runs := runqueue.NewStore()
	events := &recordingEvents{}
	kicker := newRecordingKicker()
	lookup := newFakeMembers(members...)
	s := New(Config{
		Rounds:       rs,
		Runs:         runs,
		Queue:        &fakeQueue{members: members},
		Members:      lookup,
		Events:       events,
		Kick:         kicker,
		AutoDisabler: &recordingAutoDisabler{},
		Delays:       DelayConfig{UserInputDebounce: 0, AutoResponseDelay: 0},
	})
	return s, rs, runs, events, kicker, lookup
}

func alice() Membership {
	return Membership{ID: "alice", DisplayName: "Alice", HasAutoResponder: true, Active: true}
}
func bob() Membership {
	return Membership{ID: "bob", DisplayName: "Bob", HasAutoResponder: true, Active: true}
}
func mutedCarol() Membership {
	return Membership{ID: "carol", DisplayName: "Carol", HasAutoResponder: true, Active: true, Muted: true}
}

// Scenario 4 : StartRound with a muted participant in the
// middle of the queue must skip it on its turn without blocking the round.
func TestStartRoundOrderingSkipsMutedParticipant(t *testing.T) {
	s, rs, runs, events, kicker, _ := newTestScheduler([]Membership{alice(), mutedCarol(), bob()})

	resp := s.StartRound("conv-1", "space-1", "msg-1", true, "round_robin")
	require.True(t, resp.Success)
	require.Equal(t, ReasonRoundStarted, resp.Reason)

	active, ok := rs.ActiveRound("conv-1")
	require.True(t, ok)
	assert.Equal(t, 0, active.CurrentPosition)

	queued, ok := runs.QueuedRun("conv-1")
	require.True(t, ok)
	assert.Equal(t, "alice", queued.SpeakerMembershipID)
	assert.Equal(t, 1, kicker.kicks["conv-1"])

	claimed, ok := runs.ClaimQueued("conv-1", time.Minute)
	require.True(t, ok)
	_, err := runs.Finish(claimed.ID, runqueue.StatusSucceeded, nil)
	require.NoError(t, err)

	resp = s.AdvanceTurn(AdvanceTurnInput{
		ConversationID:      "conv-1",
		SpaceID:             "space-1",
		MessageID:           "msg-2",
		MessageRole:         "assistant",
		SpeakerMembershipID: "alice",
		HasRun:              true,
		RunRoundID:          active.ID,
	})
	require.True(t, resp.Success)
	assert.Equal(t, ReasonAdvancedToNextSpeaker, resp.Reason)

	active, ok = rs.ActiveRound("conv-1")
	require.True(t, ok)
	assert.Equal(t, 2, active.CurrentPosition, "carol at position 1 should have been skipped")

	view, err := rs.View(active.ID)
	require.NoError(t, err)
	assert.Equal(t, round.ParticipantSkipped, view.Participants[1].Status)
	assert.Equal(t, "not_schedulable", view.Participants[1].SkipReason)

	queued, ok = runs.QueuedRun("conv-1")
	require.True(t, ok)
	assert.Equal(t, "bob", queued.SpeakerMembershipID)

	assert.Contains(t, events.names(), EventParticipantSkipped)
	assert.Contains(t, events.names(), EventParticipantSpoken)
}

// Scenario 5 : Pause + Resume where the paused round's next
// candidate had been unmuted in the meantime becomes schedulable again.
func TestResumeRoundSchedulesUnmutedParticipant(t *testing.T) {
	s, rs, runs, events, _, lookup := newTestScheduler([]Membership{alice(), mutedCarol()})

	resp := s.StartRound("conv-2", "space-1", "msg-1", true, "round_robin")
	require.True(t, resp.Success)
	active, _ := rs.ActiveRound("conv-2")

	// Simulate alice having already spoken and the round having paused at
	// carol's still-muted slot, before carol is unmuted below.
	t0 := time.Now()
	_, _ = rs.UpdateParticipant(active.ID, 0, func(p *round.Participant) {
		p.Status = round.ParticipantSpoken
		p.SpokenAt = &t0
	})
	_, _ = rs.UpdateRound(active.ID, func(r *round.Round) {
		r.SchedulingState = round.SchedulingPaused
		r.CurrentPosition = 1
	})

	unmutedCarol := mutedCarol()
	unmutedCarol.Muted = false
	lookup.byID["carol"] = unmutedCarol

	resp = s.ResumeRound("conv-2", "space-1")
	require.True(t, resp.Success)
	assert.Equal(t, ReasonRoundResumed, resp.Reason)

	active, ok := rs.ActiveRound("conv-2")
	require.True(t, ok)
	assert.Equal(t, 1, active.CurrentPosition)
	assert.Equal(t, round.SchedulingGenerating, active.SchedulingState)

	queued, ok := runs.QueuedRun("conv-2")
	require.True(t, ok)
	assert.Equal(t, "carol", queued.SpeakerMembershipID)

	assert.Contains(t, events.names(), EventRoundResumed)
}

// ResumeRound fails with blocked_active_run when a run is already running
// for the conversation (ResumeRound guard).
func TestResumeRoundBlockedByRunningRun(t *testing.T) {
	s, rs, runs, _, _, _ := newTestScheduler([]Membership{alice(), bob()})

	resp := s.StartRound("conv-3", "space-1", "msg-1", true, "round_robin")
	require.True(t, resp.Success)
	active, _ := rs.ActiveRound("conv-3")
	_, _ = rs.UpdateRound(active.ID, func(r *round.Round) { r.SchedulingState = round.SchedulingPaused })

	_, ok := runs.ClaimQueued("conv-3", time.Minute)
	require.True(t, ok)

	resp = s.ResumeRound("conv-3", "space-1")
	assert.False(t, resp.Success)
	assert.Equal(t, ReasonBlockedActiveRun, resp.Reason)
}

// Scenario 6 : HandleFailure for the current speaker's failed run puts the
// round into the failed state and disables human auto-mode, so a later
// AdvanceTurn for that round is a no-op.
func TestHandleFailureStopsRoundAndDisablesAuto(t *testing.T) {
	s, rs, runs, events, _, _ := newTestScheduler([]Membership{alice(), bob()})

	resp := s.StartRound("conv-4", "space-1", "msg-1", true, "round_robin")
	require.True(t, resp.Success)
	active, _ := rs.ActiveRound("conv-4")

	claimed, ok := runs.ClaimQueued("conv-4", time.Minute)
	require.True(t, ok)
	claimed.Debug.ScheduledBy = "turn_scheduler"

	resp = s.HandleFailure("conv-4", "space-1", claimed)
	require.True(t, resp.Success)
	assert.Equal(t, ReasonFailureHandled, resp.Reason)

	active, ok = rs.ActiveRound("conv-4")
	require.True(t, ok)
	assert.Equal(t, round.SchedulingFailed, active.SchedulingState)
	assert.Contains(t, events.names(), EventRoundFailed)
	assert.Equal(t, []string{"conv-4"}, s.autoDisabler.(*recordingAutoDisabler).disabled)

	// A later AdvanceTurn for the same round is now a no-op.
	resp = s.AdvanceTurn(AdvanceTurnInput{
		ConversationID:      "conv-4",
		SpaceID:             "space-1",
		MessageID:           "msg-2",
		MessageRole:         "assistant",
		SpeakerMembershipID: "alice",
		HasRun:              true,
		RunRoundID:          active.ID,
	})
	assert.False(t, resp.Success)
	assert.Equal(t, ReasonNoopFailedState, resp.Reason)
}

func TestAdvanceTurnStartsRoundForPlainUserMessage(t *testing.T) {
	s, rs, _, _, _, _ := newTestScheduler([]Membership{alice()})

	resp := s.AdvanceTurn(AdvanceTurnInput{
		ConversationID:      "conv-5",
		SpaceID:             "space-1",
		MessageID:           "msg-1",
		MessageRole:         "user",
		SpeakerMembershipID: "human-1",
		HasRun:              false,
		ReplyOrder:          "round_robin",
	})
	require.True(t, resp.Success)
	assert.Equal(t, ReasonRoundStarted, resp.Reason)

	_, ok := rs.ActiveRound("conv-5")
	assert.True(t, ok)
}

func TestAdvanceTurnIgnoresIndependentRun(t *testing.T) {
	s, _, _, _, _, _ := newTestScheduler([]Membership{alice()})

	resp := s.AdvanceTurn(AdvanceTurnInput{
		ConversationID:      "conv-6",
		SpaceID:             "space-1",
		MessageID:           "msg-1",
		MessageRole:         "assistant",
		SpeakerMembershipID: "alice",
		HasRun:              true,
		RunRoundID:          "",
	})
	assert.False(t, resp.Success)
	assert.Equal(t, ReasonIgnoredIndependentRun, resp.Reason)
}

func TestAdvanceTurnIgnoresStaleRunMessage(t *testing.T) {
	s, rs, _, _, _, _ := newTestScheduler([]Membership{alice(), bob()})

	resp := s.StartRound("conv-7", "space-1", "msg-1", true, "round_robin")
	require.True(t, resp.Success)
	active, _ := rs.ActiveRound("conv-7")

	resp = s.AdvanceTurn(AdvanceTurnInput{
		ConversationID:      "conv-7",
		SpaceID:             "space-1",
		MessageID:           "msg-2",
		MessageRole:         "assistant",
		SpeakerMembershipID: "alice",
		HasRun:              true,
		RunRoundID:          "some-other-round-id",
	})
	assert.False(t, resp.Success)
	assert.Equal(t, ReasonIgnoredStaleRunMessage, resp.Reason)
	_ = active
}

func TestStartRoundFailsWithNoEligibleSpeakers(t *testing.T) {
	s, _, _, _, _, _ := newTestScheduler(nil)
	resp := s.StartRound("conv-8", "space-1", "msg-1", true, "round_robin")
	assert.False(t, resp.Success)
	assert.Equal(t, ReasonNoEligibleSpeakers, resp.Reason)
}

func TestInsertAndAppendSpeakerToRound(t *testing.T) {
	s, rs, _, _, _, _ := newTestScheduler([]Membership{alice(), bob()})
	resp := s.StartRound("conv-9", "space-1", "msg-1", true, "round_robin")
	require.True(t, resp.Success)
	active, _ := rs.ActiveRound("conv-9")

	resp = s.InsertNextSpeaker("conv-9", "space-1", "carol")
	require.True(t, resp.Success)
	view, err := rs.View(active.ID)
	require.NoError(t, err)
	require.Len(t, view.Participants, 3)
	assert.Equal(t, "carol", view.Participants[1].MembershipID)

	resp = s.AppendSpeakerToRound("conv-9", "space-1", "dave")
	require.True(t, resp.Success)
	view, err = rs.View(active.ID)
	require.NoError(t, err)
	require.Len(t, view.Participants, 4)
	assert.Equal(t, "dave", view.Participants[3].MembershipID)
}

func TestRemovePendingParticipantEmptiesRound(t *testing.T) {
	s, rs, _, events, _, _ := newTestScheduler([]Membership{alice(), bob()})
	resp := s.StartRound("conv-10", "space-1", "msg-1", true, "round_robin")
	require.True(t, resp.Success)
	active, _ := rs.ActiveRound("conv-10")

	resp = s.RemovePendingParticipant("conv-10", "space-1", 1)
	require.True(t, resp.Success)
	assert.Equal(t, ReasonRoundQueueEmptied, resp.Reason)

	active, ok := rs.ActiveRound("conv-10")
	require.True(t, ok)
	assert.Equal(t, round.StatusFinished, active.Status)
	assert.Contains(t, events.names(), EventRoundFinished)
}

func TestSkipCurrentSpeakerAdvancesRound(t *testing.T) {
	s, rs, _, _, _, _ := newTestScheduler([]Membership{alice(), bob()})
	resp := s.StartRound("conv-11", "space-1", "msg-1", true, "round_robin")
	require.True(t, resp.Success)
	active, _ := rs.ActiveRound("conv-11")

	resp = s.SkipCurrentSpeaker("conv-11", "space-1", active.ID, "alice", "manual_skip", false)
	require.True(t, resp.Success)

	active, ok := rs.ActiveRound("conv-11")
	require.True(t, ok)
	assert.Equal(t, 1, active.CurrentPosition)
}

func TestStartRoundForSpeakerForcesOrdering(t *testing.T) {
	s, rs, runs, _, _, _ := newTestScheduler([]Membership{alice(), bob()})
	resp := s.StartRoundForSpeaker("conv-12", "space-1", "msg-1", "bob")
	require.True(t, resp.Success)

	active, ok := rs.ActiveRound("conv-12")
	require.True(t, ok)
	view, err := rs.View(active.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", view.Participants[0].MembershipID)

	queued, ok := runs.QueuedRun("conv-12")
	require.True(t, ok)
	assert.Equal(t, "bob", queued.SpeakerMembershipID)
}

package round

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoundAssignsDensePositions(t *testing.T) {
	s := NewStore()
	r := s.CreateRound("conv1", []string{"A", "B", "C"}, Metadata{})

	assert.Equal(t, StatusActive, r.Status)
	assert.Equal(t, SchedulingGenerating, r.SchedulingState)
	assert.Equal(t, 0, r.CurrentPosition)

	parts := s.Participants(r.ID)
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, i, p.Position)
		assert.Equal(t, ParticipantPending, p.Status)
	}
	assert.Equal(t, "A", parts[0].MembershipID)
	assert.Equal(t, "C", parts[2].MembershipID)
}

func TestCreateRoundSupersedesPreviousActiveRound(t *testing.T) {
	s := NewStore()
	first := s.CreateRound("conv1", []string{"A"}, Metadata{})
	s.CreateRound("conv1", []string{"B"}, Metadata{})

	updated, err := s.View(first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuperseded, updated.Round.Status)

	active, ok := s.ActiveRound("conv1")
	require.True(t, ok)
	assert.Equal(t, "B", s.Participants(active.ID)[0].MembershipID)
}

func TestInsertParticipantShiftsLaterPositions(t *testing.T) {
	s := NewStore()
	r := s.CreateRound("conv1", []string{"A", "B", "C"}, Metadata{})

	s.InsertParticipant(r.ID, 1, "X")

	parts := s.Participants(r.ID)
	require.Len(t, parts, 4)
	ids := make([]string, len(parts))
	for i, p := range parts {
		ids[i] = p.MembershipID
		assert.Equal(t, i, p.Position)
	}
	assert.Equal(t, []string{"A", "X", "B", "C"}, ids)
}

func TestRemoveParticipantShiftsLaterPositionsDown(t *testing.T) {
	s := NewStore()
	r := s.CreateRound("conv1", []string{"A", "B", "C"}, Metadata{})

	require.NoError(t, s.RemoveParticipant(r.ID, 1))

	parts := s.Participants(r.ID)
	require.Len(t, parts, 2)
	assert.Equal(t, "A", parts[0].MembershipID)
	assert.Equal(t, 0, parts[0].Position)
	assert.Equal(t, "C", parts[1].MembershipID)
	assert.Equal(t, 1, parts[1].Position)
}

func TestReorderParticipantsAppliesDesiredOrderToEditableSuffix(t *testing.T) {
	s := NewStore()
	r := s.CreateRound("conv1", []string{"A", "B", "C", "D"}, Metadata{})
	parts := s.Participants(r.ID)

	bID, cID, dID := parts[1].ID, parts[2].ID, parts[3].ID
	require.NoError(t, s.ReorderParticipants(r.ID, 1, []string{dID, bID, cID}))

	reordered := s.Participants(r.ID)
	require.Len(t, reordered, 4)
	assert.Equal(t, "A", reordered[0].MembershipID)
	assert.Equal(t, "D", reordered[1].MembershipID)
	assert.Equal(t, "B", reordered[2].MembershipID)
	assert.Equal(t, "C", reordered[3].MembershipID)
	for i, p := range reordered {
		assert.Equal(t, i, p.Position)
	}
}

func TestReorderParticipantsRejectsSetMismatch(t *testing.T) {
	s := NewStore()
	r := s.CreateRound("conv1", []string{"A", "B"}, Metadata{})
	err := s.ReorderParticipants(r.ID, 0, []string{"not-a-real-id"})
	assert.Error(t, err)
}

func TestViewCurrentSpeakerAndIsComplete(t *testing.T) {
	s := NewStore()
	r := s.CreateRound("conv1", []string{"A", "B"}, Metadata{})

	v, err := s.View(r.ID)
	require.NoError(t, err)
	speaker, ok := v.CurrentSpeaker()
	require.True(t, ok)
	assert.Equal(t, "A", speaker.MembershipID)
	assert.False(t, v.IsComplete())

	_, err = s.UpdateRound(r.ID, func(rr *Round) { rr.CurrentPosition = 1 })
	require.NoError(t, err)
	v, err = s.View(r.ID)
	require.NoError(t, err)
	assert.True(t, v.IsComplete())
}

func TestEditableFromDependsOnSchedulingState(t *testing.T) {
	v := View{Round: Round{CurrentPosition: 2, SchedulingState: SchedulingGenerating}}
	assert.Equal(t, 3, v.EditableFrom())

	v.Round.SchedulingState = SchedulingPaused
	assert.Equal(t, 2, v.EditableFrom())
}

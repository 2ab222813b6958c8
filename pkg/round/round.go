// Package round holds the Round State value objects (C10): a
// ConversationRound and its ordered ConversationRoundParticipant slots,
// plus an in-memory arena Store keyed by opaque ids. The state machine
// follows a Status/IsTerminal shape on a string-backed State type guarding
// a struct behind a mutex, with an in-memory registry keyed by id rather
// than holding cyclic pointer references between a round and its
// participants.
package round

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a ConversationRound's lifecycle status.
type Status string

const (
	StatusActive     Status = "active"
	StatusFinished   Status = "finished"
	StatusCanceled   Status = "canceled"
	StatusSuperseded Status = "superseded"
)

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusCanceled, StatusSuperseded:
		return true
	}
	return false
}

// SchedulingState is the Round.scheduling_state FSM diagrams.
type SchedulingState string

const (
	SchedulingNone       SchedulingState = ""
	SchedulingGenerating SchedulingState = "ai_generating"
	SchedulingPaused     SchedulingState = "paused"
	SchedulingFailed     SchedulingState = "failed"
)

// ParticipantStatus is a round-scoped participant slot's status.
type ParticipantStatus string

const (
	ParticipantPending ParticipantStatus = "pending"
	ParticipantSpoken  ParticipantStatus = "spoken"
	ParticipantSkipped ParticipantStatus = "skipped"
)

// Insertion records one InsertNextSpeaker/AppendSpeakerToRound bookkeeping
// entry ("Append an insertions[] entry to round metadata").
type Insertion struct {
	MembershipID string
	Position     int
	At           time.Time
	Appended     bool // true = AppendSpeakerToRound, false = InsertNextSpeaker
}

// Metadata is a Round's free-form bookkeeping bag.
type Metadata struct {
	Insertions  []Insertion
	ResumedAt   *time.Time
	ReplyOrder  string
	IsUserInput bool

	// AutoWithoutHumanRoundsRemaining counts down the rounds the scheduler
	// will still auto-start with no human-triggered message in between
	// (handle_round_complete "decrement
	// auto_without_human_rounds if enabled").
	AutoWithoutHumanRoundsRemaining int
}

// Round is a ConversationRound.
type Round struct {
	ID               string
	ConversationID   string
	Status           Status
	SchedulingState  SchedulingState
	CurrentPosition  int
	EndedReason      string
	TriggerMessageID string
	Metadata         Metadata
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Participant is a ConversationRoundParticipant.
type Participant struct {
	ID           string
	RoundID      string
	Position     int
	MembershipID string
	Status       ParticipantStatus
	SpokenAt     *time.Time
	SkippedAt    *time.Time
	SkipReason   string
}

// View is a read-only snapshot of a Round plus its Participants, ordered by
// Position, used by callers that need to reason about scheduling state
// without reaching into Store internals (C10 "value-object view").
type View struct {
	Round        Round
	Participants []Participant
}

// CurrentSpeaker returns the Participant at CurrentPosition, or (nil, false)
// if the round has no participant at that slot.
func (v View) CurrentSpeaker() (Participant, bool) {
	for _, p := range v.Participants {
		if p.Position == v.Round.CurrentPosition {
			return p, true
		}
	}
	return Participant{}, false
}

// IsComplete reports whether current_position+1 >= len(participants), i.e.
// there is no next slot to advance to (AdvanceTurn guard).
func (v View) IsComplete() bool {
	return v.Round.CurrentPosition+1 >= len(v.Participants)
}

// EditableFrom returns the first position still mutable by
// Insert/Append/Remove/Reorder commands: current_position when paused,
// current_position+1 otherwise ("Editable suffix").
func (v View) EditableFrom() int {
	if v.Round.SchedulingState == SchedulingPaused {
		return v.Round.CurrentPosition
	}
	return v.Round.CurrentPosition + 1
}

// ErrNotFound is returned by Store lookups for an unknown id.
type ErrNotFound struct{ Kind, ID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("round: %s %q not found", e.Kind, e.ID) }

// Store is the in-memory arena of Rounds and Participants, indexed by
// opaque id and by conversation, matching arena-keyed-by-id
// guidance for the Participant↔Round↔Conversation cycle. All methods are
// safe for concurrent use; callers that need multi-step atomicity (the
// Scheduler's commands) hold their own per-conversation lock around the
// calls that need it ("conversation-scoped exclusive lock").
type Store struct {
	mu                  sync.RWMutex
	rounds              map[string]*Round
	participants        map[string]*Participant
	activeByConv        map[string]string    // conversationID -> active round ID
	participantsByRound map[string][]string // roundID -> ordered participant IDs (by position)
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		rounds:              make(map[string]*Round),
		participants:        make(map[string]*Participant),
		activeByConv:        make(map[string]string),
		participantsByRound: make(map[string][]string),
	}
}

// ActiveRound returns the active round for a conversation, if any.
func (s *Store) ActiveRound(conversationID string) (Round, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.activeByConv[conversationID]
	if !ok {
		return Round{}, false
	}
	r, ok := s.rounds[id]
	if !ok {
		return Round{}, false
	}
	return *r, true
}

// View returns a read-only View of a round and its ordered participants.
func (s *Store) View(roundID string) (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return View{}, &ErrNotFound{"round", roundID}
	}
	ids := s.participantsByRound[roundID]
	parts := make([]Participant, 0, len(ids))
	for _, pid := range ids {
		parts = append(parts, *s.participants[pid])
	}
	return View{Round: *r, Participants: parts}, nil
}

// CreateRound inserts a fresh round with dense positions 0..n-1 for
// memberIDs, superseding any existing active round for the conversation
// (StartRound steps 3-4).
func (s *Store) CreateRound(conversationID string, memberIDs []string, meta Metadata) Round {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevID, ok := s.activeByConv[conversationID]; ok {
		if prev, ok := s.rounds[prevID]; ok && !prev.Status.IsTerminal() {
			prev.Status = StatusSuperseded
			prev.UpdatedAt = now()
		}
	}

	r := &Round{
		ID:              uuid.NewString(),
		ConversationID:  conversationID,
		Status:          StatusActive,
		SchedulingState: SchedulingGenerating,
		CurrentPosition: 0,
		Metadata:        meta,
		CreatedAt:       now(),
		UpdatedAt:       now(),
	}
	s.rounds[r.ID] = r
	s.activeByConv[conversationID] = r.ID

	ids := make([]string, 0, len(memberIDs))
	for i, mid := range memberIDs {
		p := &Participant{
			ID:           uuid.NewString(),
			RoundID:      r.ID,
			Position:     i,
			MembershipID: mid,
			Status:       ParticipantPending,
		}
		s.participants[p.ID] = p
		ids = append(ids, p.ID)
	}
	s.participantsByRound[r.ID] = ids

	return *r
}

// UpdateRound applies fn to the stored round under the write lock and
// returns the updated value.
func (s *Store) UpdateRound(roundID string, fn func(*Round)) (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return Round{}, &ErrNotFound{"round", roundID}
	}
	fn(r)
	r.UpdatedAt = now()
	return *r, nil
}

// Participants returns the ordered participant list for a round.
func (s *Store) Participants(roundID string) []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.participantsByRound[roundID]
	out := make([]Participant, 0, len(ids))
	for _, pid := range ids {
		out = append(out, *s.participants[pid])
	}
	return out
}

// UpdateParticipant applies fn to the stored participant at (roundID,
// position) under the write lock.
func (s *Store) UpdateParticipant(roundID string, position int, fn func(*Participant)) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.participantsByRound[roundID]
	for _, pid := range ids {
		p := s.participants[pid]
		if p.Position == position {
			fn(p)
			return *p, nil
		}
	}
	return Participant{}, &ErrNotFound{"participant", fmt.Sprintf("%s@%d", roundID, position)}
}

// InsertParticipant inserts a new pending participant at position pos,
// shifting participants at pos..end by +1 in descending order to honor the
// unique (round, position) constraint (InsertNextSpeaker /
// AppendSpeakerToRound).
func (s *Store) InsertParticipant(roundID string, pos int, membershipID string) Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.participantsByRound[roundID]
	if pos > len(ids) {
		pos = len(ids)
	}
	for i := len(ids) - 1; i >= pos; i-- {
		s.participants[ids[i]].Position++
	}

	p := &Participant{
		ID:           uuid.NewString(),
		RoundID:      roundID,
		Position:     pos,
		MembershipID: membershipID,
		Status:       ParticipantPending,
	}
	s.participants[p.ID] = p

	next := make([]string, 0, len(ids)+1)
	next = append(next, ids[:pos]...)
	next = append(next, p.ID)
	next = append(next, ids[pos:]...)
	s.participantsByRound[roundID] = next

	return *p
}

// RemoveParticipant deletes the participant at position pos and shifts
// later positions down by -1 (RemovePendingParticipant).
func (s *Store) RemoveParticipant(roundID string, pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.participantsByRound[roundID]
	idx := -1
	for i, pid := range ids {
		if s.participants[pid].Position == pos {
			idx = i
			break
		}
	}
	if idx == -1 {
		return &ErrNotFound{"participant", fmt.Sprintf("%s@%d", roundID, pos)}
	}
	removedID := ids[idx]
	next := make([]string, 0, len(ids)-1)
	next = append(next, ids[:idx]...)
	next = append(next, ids[idx+1:]...)
	for i := idx; i < len(next); i++ {
		s.participants[next[i]].Position--
	}
	s.participantsByRound[roundID] = next
	delete(s.participants, removedID)
	return nil
}

// ReorderParticipants sets the editable suffix (positions editableFrom..end)
// to the order given by desiredIDs (participant ids), using a two-phase
// temp-base shift so no intermediate state collides with the unique
// (round, position) constraint (ReorderPendingParticipants).
func (s *Store) ReorderParticipants(roundID string, editableFrom int, desiredIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.participantsByRound[roundID]
	if editableFrom < 0 || editableFrom > len(ids) {
		return fmt.Errorf("round: editable_from %d out of range for %d participants", editableFrom, len(ids))
	}
	suffix := ids[editableFrom:]
	if len(suffix) != len(desiredIDs) {
		return fmt.Errorf("round: reorder length mismatch: have %d, want %d", len(desiredIDs), len(suffix))
	}
	have := make(map[string]bool, len(suffix))
	for _, id := range suffix {
		have[id] = true
	}
	for _, id := range desiredIDs {
		if !have[id] {
			return fmt.Errorf("round: reorder set mismatch: %q is not in the editable suffix", id)
		}
	}

	tempBase := len(ids) + 1000
	for i, id := range suffix {
		s.participants[id].Position = tempBase + i
	}
	for i, id := range desiredIDs {
		s.participants[id].Position = editableFrom + i
	}

	next := make([]string, 0, len(ids))
	next = append(next, ids[:editableFrom]...)
	next = append(next, desiredIDs...)
	s.participantsByRound[roundID] = next
	return nil
}

func now() time.Time { return time.Now() }

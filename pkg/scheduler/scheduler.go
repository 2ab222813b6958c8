package scheduler

import (
	"time"

	"github.com/tavernkit/core/pkg/round"
	"github.com/tavernkit/core/pkg/runqueue"
)

// DelayConfig holds the scheduler's timing knobs: StartRound schedules
// the position-0 speaker with a user-input-debounce delay when the
// triggering message was user input; the planner's own debounce is a
// separate knob on runqueue.Planner.
type DelayConfig struct {
	UserInputDebounce time.Duration
	AutoResponseDelay time.Duration
}

// Config bundles a Scheduler's collaborators.
type Config struct {
	Rounds       *round.Store
	Runs         *runqueue.Store
	Queue        ActivatedQueueProvider
	Members      MembershipLookup
	Events       EventSink
	Kick         Kicker
	AutoDisabler AutoModeDisabler
	Delays       DelayConfig
}

// Scheduler implements the Turn Scheduler Commands (C11).
// Every exported method acquires the conversation's exclusive lock for its
// whole body and publishes accumulated events only after releasing it
// ("Broadcasts: emitted after the lock is released").
type Scheduler struct {
	rounds       *round.Store
	runs         *runqueue.Store
	queue        ActivatedQueueProvider
	members      MembershipLookup
	events       EventSink
	kick         Kicker
	autoDisabler AutoModeDisabler
	delays       DelayConfig
	locks        *lockRegistry
}

// New returns a Scheduler wired to cfg.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		rounds:       cfg.Rounds,
		runs:         cfg.Runs,
		queue:        cfg.Queue,
		members:      cfg.Members,
		events:       cfg.Events,
		kick:         cfg.Kick,
		autoDisabler: cfg.AutoDisabler,
		delays:       cfg.Delays,
		locks:        newLockRegistry(),
	}
}

func (s *Scheduler) publish(events []Event) {
	if s.events == nil {
		return
	}
	for _, e := range events {
		s.events.Emit(e)
	}
}

func (s *Scheduler) runCanceledEvent(conversationID, spaceID string, r runqueue.Run) Event {
	return Event{
		Name:           EventRunCanceled,
		ConversationID: conversationID,
		SpaceID:        spaceID,
		RoundID:        r.RoundID,
		RunID:          r.ID,
		Reason:         "canceled",
	}
}

func now() time.Time { return time.Now() }

// StartRound implements StartRound.
func (s *Scheduler) StartRound(conversationID, spaceID, triggerMessageID string, isUserInput bool, replyOrder string) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		return s.startRoundLocked(conversationID, spaceID, triggerMessageID, isUserInput, replyOrder)
	})
	s.publish(events)
	return resp
}

func (s *Scheduler) startRoundLocked(conversationID, spaceID, triggerMessageID string, isUserInput bool, replyOrder string) (ServiceResponse, []Event) {
	var events []Event

	if canceled, ok := s.runs.CancelQueued(conversationID); ok {
		events = append(events, s.runCanceledEvent(conversationID, spaceID, canceled))
	}

	members, err := s.queue.ActivatedQueue(conversationID)
	if err != nil || len(members) == 0 {
		return fail(ReasonNoEligibleSpeakers, map[string]any{"started": false}), events
	}

	memberIDs := make([]string, len(members))
	for i, m := range members {
		memberIDs[i] = m.ID
	}
	r := s.rounds.CreateRound(conversationID, memberIDs, round.Metadata{
		ReplyOrder:  replyOrder,
		IsUserInput: isUserInput,
	})
	events = append(events, Event{
		Name:             EventRoundStarted,
		ConversationID:   conversationID,
		SpaceID:          spaceID,
		RoundID:          r.ID,
		TriggerMessageID: triggerMessageID,
		Reason:           ReasonRoundStarted,
	})

	var delay time.Duration
	if isUserInput {
		delay = s.delays.UserInputDebounce
	}
	events = append(events, s.scheduleSpeakerLocked(conversationID, spaceID, r.ID, members[0], delay, "")...)

	return ok(ReasonRoundStarted, map[string]any{"started": true, "round_id": r.ID}), events
}

// ScheduleSpeaker implements ScheduleSpeaker as a
// directly-callable command (it is also invoked internally by StartRound,
// advance_to_next_speaker, and ResumeRound).
func (s *Scheduler) ScheduleSpeaker(conversationID, spaceID, roundID, speakerMembershipID string, explicitDelay time.Duration, expectedLastMessageID string) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		if roundID == "" {
			return fail("missing_round", nil), nil
		}
		member, found := s.members.Membership(speakerMembershipID)
		if !found {
			return fail(ReasonMissingSpeaker, nil), nil
		}
		events := s.scheduleSpeakerLocked(conversationID, spaceID, roundID, member, explicitDelay, expectedLastMessageID)
		return ok("scheduled", map[string]any{"round_id": roundID, "speaker_space_membership_id": speakerMembershipID}), events
	})
	s.publish(events)
	return resp
}

// scheduleSpeakerLocked creates the queued Run for speaker and kicks the
// worker pool if nothing is already running. A RecordNotUnique-equivalent
// collision (ErrAlreadyQueued) is a benign no-op per the "return
// nil" wording, not an error.
func (s *Scheduler) scheduleSpeakerLocked(conversationID, spaceID, roundID string, speaker Membership, explicitDelay time.Duration, expectedLastMessageID string) []Event {
	if roundID == "" {
		return nil
	}
	kind := runqueue.KindAutoResponse
	if speaker.IsAutoUser() {
		kind = runqueue.KindAutoUserResponse
	}
	_, err := s.runs.Enqueue(runqueue.Run{
		ConversationID:      conversationID,
		RoundID:             roundID,
		Kind:                kind,
		SpeakerMembershipID: speaker.ID,
		RunAfter:            now().Add(s.delays.AutoResponseDelay).Add(explicitDelay),
		Debug: runqueue.Debug{
			ExpectedLastMessageID: expectedLastMessageID,
			ScheduledBy:           "turn_scheduler",
		},
	})
	if err != nil {
		return nil
	}
	if _, running := s.runs.RunningRun(conversationID); !running && s.kick != nil {
		s.kick.Kick(conversationID)
	}
	return nil
}

// AdvanceTurnInput carries the facts about a just-created Message that
// AdvanceTurn's guard chain needs (AdvanceTurn).
type AdvanceTurnInput struct {
	ConversationID      string
	SpaceID             string
	MessageID           string
	MessageRole         string // "user" or "assistant"
	SpeakerMembershipID string

	// HasRun/RunRoundID describe the ConversationRun (if any) that
	// produced this message. A plain user message typically has no Run at
	// all (HasRun=false); an assistant message always has one.
	HasRun     bool
	RunRoundID string

	ReplyOrder            string
	AutoSchedulingEnabled bool
}

func (in AdvanceTurnInput) justifiesStart() bool {
	switch in.MessageRole {
	case "user":
		return in.ReplyOrder != "manual"
	case "assistant":
		return in.AutoSchedulingEnabled
	default:
		return false
	}
}

// AdvanceTurn implements AdvanceTurn's ordered guard chain.
func (s *Scheduler) AdvanceTurn(in AdvanceTurnInput) ServiceResponse {
	resp, events := s.locks.withLock(in.ConversationID, func() (ServiceResponse, []Event) {
		return s.advanceTurnLocked(in)
	})
	s.publish(events)
	return resp
}

func (s *Scheduler) advanceTurnLocked(in AdvanceTurnInput) (ServiceResponse, []Event) {
	if in.SpeakerMembershipID == "" {
		return fail(ReasonMissingSpeaker, nil), nil
	}

	active, hasActive := s.rounds.ActiveRound(in.ConversationID)

	if in.HasRun && in.RunRoundID != "" {
		if !hasActive || in.RunRoundID != active.ID {
			return fail(ReasonIgnoredStaleRunMessage, nil), nil
		}
	}
	if hasActive && active.SchedulingState == round.SchedulingFailed {
		return fail(ReasonNoopFailedState, nil), nil
	}
	if in.HasRun && in.RunRoundID == "" {
		return fail(ReasonIgnoredIndependentRun, nil), nil
	}

	if !hasActive {
		if in.justifiesStart() {
			return s.startRoundLocked(in.ConversationID, in.SpaceID, in.MessageID, in.MessageRole == "user", in.ReplyOrder)
		}
		return fail(ReasonNoopIdleNoTrigger, nil), nil
	}

	if active.SchedulingState == round.SchedulingPaused {
		return s.advancePausedLocked(active, in)
	}

	s.markSpokenLocked(active.ID, active.CurrentPosition)
	spokenEvent := Event{
		Name:                EventParticipantSpoken,
		ConversationID:      in.ConversationID,
		SpaceID:             in.SpaceID,
		RoundID:             active.ID,
		SpeakerMembershipID: in.SpeakerMembershipID,
		Reason:              "spoken",
	}

	view, err := s.rounds.View(active.ID)
	if err != nil {
		return fail(ReasonNoActiveRound, nil), []Event{spokenEvent}
	}
	if view.IsComplete() {
		resp, events := s.handleRoundCompleteLocked(view, in.SpaceID, in.ReplyOrder, in.AutoSchedulingEnabled)
		return resp, append([]Event{spokenEvent}, events...)
	}
	resp, events := s.advanceToNextSpeakerLocked(active.ID, in.SpaceID, active.CurrentPosition+1)
	return resp, append([]Event{spokenEvent}, events...)
}

func (s *Scheduler) markSpokenLocked(roundID string, position int) {
	t := now()
	_, _ = s.rounds.UpdateParticipant(roundID, position, func(p *round.Participant) {
		p.Status = round.ParticipantSpoken
		p.SpokenAt = &t
	})
}

// advancePausedLocked implements AdvanceTurn's paused branch: mark the
// current speaker spoken, walk current_position past already-resolved
// slots, emit turn_advanced, and deliberately do not schedule anything
// ("do NOT schedule").
func (s *Scheduler) advancePausedLocked(active round.Round, in AdvanceTurnInput) (ServiceResponse, []Event) {
	s.markSpokenLocked(active.ID, active.CurrentPosition)
	view, err := s.rounds.View(active.ID)
	if err != nil {
		return fail(ReasonNoActiveRound, nil), nil
	}
	pos := active.CurrentPosition + 1
	for pos < len(view.Participants) && view.Participants[pos].Status != round.ParticipantPending {
		pos++
	}
	_, _ = s.rounds.UpdateRound(active.ID, func(r *round.Round) { r.CurrentPosition = pos })

	return ok(ReasonTurnAdvancedPaused, map[string]any{"round_id": active.ID, "current_position": pos}),
		[]Event{{
			Name:           EventTurnAdvanced,
			ConversationID: in.ConversationID,
			SpaceID:        in.SpaceID,
			RoundID:        active.ID,
			Reason:         "paused",
		}}
}

// advanceToNextSpeakerLocked implements advance_to_next_speaker.
func (s *Scheduler) advanceToNextSpeakerLocked(roundID, spaceID string, from int) (ServiceResponse, []Event) {
	var events []Event
	view, err := s.rounds.View(roundID)
	if err != nil {
		return fail(ReasonNoActiveRound, nil), events
	}

	for pos := from; pos < len(view.Participants); pos++ {
		p := view.Participants[pos]
		member, found := s.members.Membership(p.MembershipID)
		if found && member.CanBeScheduled() {
			_, _ = s.rounds.UpdateRound(roundID, func(r *round.Round) {
				r.SchedulingState = round.SchedulingGenerating
				r.CurrentPosition = pos
			})
			events = append(events, s.scheduleSpeakerLocked(view.Round.ConversationID, spaceID, roundID, member, 0, "")...)
			return ok(ReasonAdvancedToNextSpeaker, map[string]any{"round_id": roundID, "current_position": pos}), events
		}

		t := now()
		_, _ = s.rounds.UpdateParticipant(roundID, pos, func(pp *round.Participant) {
			pp.Status = round.ParticipantSkipped
			pp.SkippedAt = &t
			pp.SkipReason = "not_schedulable"
		})
		events = append(events, Event{
			Name:                EventParticipantSkipped,
			ConversationID:      view.Round.ConversationID,
			SpaceID:             spaceID,
			RoundID:             roundID,
			SpeakerMembershipID: p.MembershipID,
			Reason:              "not_schedulable",
		})
	}

	resp, moreEvents := s.handleRoundCompleteLocked(view, spaceID, view.Round.Metadata.ReplyOrder, false)
	return resp, append(events, moreEvents...)
}

// handleRoundCompleteLocked implements handle_round_complete.
func (s *Scheduler) handleRoundCompleteLocked(view round.View, spaceID, replyOrder string, autoSchedulingEnabled bool) (ServiceResponse, []Event) {
	var events []Event

	meta := view.Round.Metadata
	if meta.AutoWithoutHumanRoundsRemaining > 0 {
		meta.AutoWithoutHumanRoundsRemaining--
	}
	_, _ = s.rounds.UpdateRound(view.Round.ID, func(r *round.Round) {
		r.Status = round.StatusFinished
		r.EndedReason = "round_complete"
		r.Metadata = meta
	})
	events = append(events, Event{
		Name:           EventRoundFinished,
		ConversationID: view.Round.ConversationID,
		SpaceID:        spaceID,
		RoundID:        view.Round.ID,
		Reason:         "round_complete",
	})

	if autoSchedulingEnabled || AutoSchedulingEnabled(meta) {
		resp, startEvents := s.startRoundLocked(view.Round.ConversationID, spaceID, "", false, replyOrder)
		if nextID, started := resp.Payload["round_id"].(string); started {
			_, _ = s.rounds.UpdateRound(nextID, func(r *round.Round) {
				r.Metadata.AutoWithoutHumanRoundsRemaining = meta.AutoWithoutHumanRoundsRemaining
			})
		}
		return resp, append(events, startEvents...)
	}
	if canceled, ok := s.runs.CancelQueued(view.Round.ConversationID); ok {
		events = append(events, s.runCanceledEvent(view.Round.ConversationID, spaceID, canceled))
	}
	return ok(ReasonRoundComplete, map[string]any{"round_id": view.Round.ID}), events
}

// ResumeRound implements ResumeRound.
func (s *Scheduler) ResumeRound(conversationID, spaceID string) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		active, hasActive := s.rounds.ActiveRound(conversationID)
		if !hasActive {
			return fail(ReasonNoActiveRound, nil), nil
		}
		if active.SchedulingState != round.SchedulingPaused {
			return fail("not_paused", nil), nil
		}

		var events []Event
		if canceled, ok := s.runs.CancelQueued(conversationID); ok {
			events = append(events, s.runCanceledEvent(conversationID, spaceID, canceled))
		}
		if _, running := s.runs.RunningRun(conversationID); running {
			return fail(ReasonBlockedActiveRun, nil), events
		}

		view, err := s.rounds.View(active.ID)
		if err != nil {
			return fail(ReasonNoActiveRound, nil), events
		}

		for pos := view.Round.CurrentPosition; pos < len(view.Participants); pos++ {
			p := view.Participants[pos]
			if p.Status != round.ParticipantPending {
				continue
			}
			member, found := s.members.Membership(p.MembershipID)
			if found && member.CanBeScheduled() {
				_, _ = s.rounds.UpdateRound(active.ID, func(r *round.Round) {
					r.SchedulingState = round.SchedulingGenerating
					r.CurrentPosition = pos
				})
				events = append(events, Event{
					Name:           EventRoundResumed,
					ConversationID: conversationID,
					SpaceID:        spaceID,
					RoundID:        active.ID,
					Reason:         ReasonRoundResumed,
				})
				events = append(events, s.scheduleSpeakerLocked(conversationID, spaceID, active.ID, member, 0, "")...)
				return ok(ReasonRoundResumed, map[string]any{"round_id": active.ID, "current_position": pos}), events
			}
			t := now()
			_, _ = s.rounds.UpdateParticipant(active.ID, pos, func(pp *round.Participant) {
				pp.Status = round.ParticipantSkipped
				pp.SkippedAt = &t
				pp.SkipReason = "not_schedulable"
			})
			events = append(events, Event{
				Name:                EventParticipantSkipped,
				ConversationID:      conversationID,
				SpaceID:             spaceID,
				RoundID:             active.ID,
				SpeakerMembershipID: p.MembershipID,
				Reason:              "not_schedulable",
			})
		}

		view, _ = s.rounds.View(active.ID)
		resp, moreEvents := s.handleRoundCompleteLocked(view, spaceID, active.Metadata.ReplyOrder, false)
		return resp, append(events, moreEvents...)
	})
	s.publish(events)
	return resp
}

// StopRound implements StopRound.
func (s *Scheduler) StopRound(conversationID, spaceID, endedReason string) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		active, hasActive := s.rounds.ActiveRound(conversationID)
		if !hasActive {
			return fail(ReasonNoActiveRound, nil), nil
		}

		var events []Event
		if canceled, ok := s.runs.CancelQueued(conversationID); ok {
			events = append(events, s.runCanceledEvent(conversationID, spaceID, canceled))
		}
		_, _ = s.rounds.UpdateRound(active.ID, func(r *round.Round) {
			r.Status = round.StatusCanceled
			r.EndedReason = endedReason
		})
		events = append(events, Event{
			Name:           EventRoundFinished,
			ConversationID: conversationID,
			SpaceID:        spaceID,
			RoundID:        active.ID,
			Reason:         endedReason,
		})
		return ok(ReasonRoundStopped, map[string]any{"round_id": active.ID}), events
	})
	s.publish(events)
	return resp
}

// SkipCurrentSpeaker implements SkipCurrentSpeaker.
func (s *Scheduler) SkipCurrentSpeaker(conversationID, spaceID, roundID, speakerMembershipID, reason string, cancelRunning bool) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		active, hasActive := s.rounds.ActiveRound(conversationID)
		if !hasActive {
			return fail(ReasonNoActiveRound, nil), nil
		}
		if roundID != "" && roundID != active.ID {
			return fail(ReasonNoActiveRound, nil), nil
		}
		view, err := s.rounds.View(active.ID)
		if err != nil {
			return fail(ReasonNoActiveRound, nil), nil
		}
		speaker, found := view.CurrentSpeaker()
		if !found || speaker.MembershipID != speakerMembershipID {
			return fail(ReasonNotCurrentSpeaker, nil), nil
		}

		var events []Event
		s.runs.CancelQueued(conversationID)

		if running, ok := s.runs.RunningRun(conversationID); ok {
			if !cancelRunning {
				return fail("abort_running_run", nil), events
			}
			_ = s.runs.RequestCancel(running.ID, "turn_scheduler")
			events = append(events, Event{
				Name:           EventRunCanceled,
				ConversationID: conversationID,
				SpaceID:        spaceID,
				RoundID:        active.ID,
				RunID:          running.ID,
				Reason:         "stream_complete",
			})
		}

		t := now()
		_, _ = s.rounds.UpdateParticipant(active.ID, active.CurrentPosition, func(pp *round.Participant) {
			pp.Status = round.ParticipantSkipped
			pp.SkippedAt = &t
			pp.SkipReason = reason
		})
		events = append(events, Event{
			Name:                EventParticipantSkipped,
			ConversationID:      conversationID,
			SpaceID:             spaceID,
			RoundID:             active.ID,
			SpeakerMembershipID: speakerMembershipID,
			Reason:              reason,
		})

		view, _ = s.rounds.View(active.ID)
		if view.IsComplete() {
			resp, moreEvents := s.handleRoundCompleteLocked(view, spaceID, active.Metadata.ReplyOrder, false)
			return resp, append(events, moreEvents...)
		}
		resp, moreEvents := s.advanceToNextSpeakerLocked(active.ID, spaceID, active.CurrentPosition+1)
		return resp, append(events, moreEvents...)
	})
	s.publish(events)
	return resp
}

// InsertNextSpeaker implements InsertNextSpeaker.
func (s *Scheduler) InsertNextSpeaker(conversationID, spaceID, membershipID string) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		active, hasActive := s.rounds.ActiveRound(conversationID)
		if !hasActive {
			return fail(ReasonNoActiveRound, nil), nil
		}
		pos := active.CurrentPosition + 1
		p := s.rounds.InsertParticipant(active.ID, pos, membershipID)
		_, _ = s.rounds.UpdateRound(active.ID, func(r *round.Round) {
			r.Metadata.Insertions = append(r.Metadata.Insertions, round.Insertion{
				MembershipID: membershipID,
				Position:     pos,
				At:           now(),
				Appended:     false,
			})
		})
		return ok("inserted", map[string]any{"round_id": active.ID, "participant_id": p.ID, "position": pos}), nil
	})
	s.publish(events)
	return resp
}

// AppendSpeakerToRound implements AppendSpeakerToRound.
func (s *Scheduler) AppendSpeakerToRound(conversationID, spaceID, membershipID string) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		active, hasActive := s.rounds.ActiveRound(conversationID)
		if !hasActive {
			return fail(ReasonNoActiveRound, nil), nil
		}
		pos := len(s.rounds.Participants(active.ID))
		p := s.rounds.InsertParticipant(active.ID, pos, membershipID)
		_, _ = s.rounds.UpdateRound(active.ID, func(r *round.Round) {
			r.Metadata.Insertions = append(r.Metadata.Insertions, round.Insertion{
				MembershipID: membershipID,
				Position:     pos,
				At:           now(),
				Appended:     true,
			})
		})
		return ok("appended", map[string]any{"round_id": active.ID, "participant_id": p.ID, "position": pos}), nil
	})
	s.publish(events)
	return resp
}

// RemovePendingParticipant implements RemovePendingParticipant.
func (s *Scheduler) RemovePendingParticipant(conversationID, spaceID string, position int) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		active, hasActive := s.rounds.ActiveRound(conversationID)
		if !hasActive {
			return fail(ReasonNoActiveRound, nil), nil
		}
		view, err := s.rounds.View(active.ID)
		if err != nil {
			return fail(ReasonNoActiveRound, nil), nil
		}
		editableFrom := view.EditableFrom()
		if position < editableFrom || position >= len(view.Participants) || view.Participants[position].Status != round.ParticipantPending {
			return fail(ReasonNotPending, nil), nil
		}
		if err := s.rounds.RemoveParticipant(active.ID, position); err != nil {
			return fail(ReasonNotPending, map[string]any{"error": err.Error()}), nil
		}

		var events []Event
		remaining := s.rounds.Participants(active.ID)
		if active.CurrentPosition+1 >= len(remaining) {
			if canceled, ok := s.runs.CancelQueued(conversationID); ok {
				events = append(events, s.runCanceledEvent(conversationID, spaceID, canceled))
			}
			_, _ = s.rounds.UpdateRound(active.ID, func(r *round.Round) {
				r.Status = round.StatusFinished
				r.EndedReason = ReasonRoundQueueEmptied
			})
			events = append(events, Event{
				Name:           EventRoundFinished,
				ConversationID: conversationID,
				SpaceID:        spaceID,
				RoundID:        active.ID,
				Reason:         ReasonRoundQueueEmptied,
			})
			return ok(ReasonRoundQueueEmptied, map[string]any{"round_id": active.ID}), events
		}
		return ok("removed", map[string]any{"round_id": active.ID, "position": position}), events
	})
	s.publish(events)
	return resp
}

// ReorderPendingParticipants implements ReorderPendingParticipants.
func (s *Scheduler) ReorderPendingParticipants(conversationID, spaceID string, desiredParticipantIDs []string) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		active, hasActive := s.rounds.ActiveRound(conversationID)
		if !hasActive {
			return fail(ReasonNoActiveRound, nil), nil
		}
		view, err := s.rounds.View(active.ID)
		if err != nil {
			return fail(ReasonNoActiveRound, nil), nil
		}
		if err := s.rounds.ReorderParticipants(active.ID, view.EditableFrom(), desiredParticipantIDs); err != nil {
			return fail("reorder_invalid", map[string]any{"error": err.Error()}), nil
		}
		return ok("reordered", map[string]any{"round_id": active.ID}), nil
	})
	s.publish(events)
	return resp
}

// HandleFailure implements HandleFailure.
func (s *Scheduler) HandleFailure(conversationID, spaceID string, failedRun runqueue.Run) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		if failedRun.Debug.ScheduledBy != "turn_scheduler" || failedRun.RoundID == "" {
			return fail(ReasonNotSchedulerOwnedRun, nil), nil
		}
		active, hasActive := s.rounds.ActiveRound(conversationID)
		if !hasActive || active.ID != failedRun.RoundID {
			return fail(ReasonNotSchedulerOwnedRun, nil), nil
		}
		view, err := s.rounds.View(active.ID)
		if err != nil {
			return fail(ReasonNoActiveRound, nil), nil
		}
		speaker, found := view.CurrentSpeaker()
		if !found || speaker.MembershipID != failedRun.SpeakerMembershipID {
			return fail(ReasonNotCurrentSpeaker, nil), nil
		}

		var events []Event
		if canceled, ok := s.runs.CancelQueued(conversationID); ok {
			events = append(events, s.runCanceledEvent(conversationID, spaceID, canceled))
		}
		if s.autoDisabler != nil {
			s.autoDisabler.DisableAllHumanAuto(conversationID)
		}
		_, _ = s.rounds.UpdateRound(active.ID, func(r *round.Round) {
			r.SchedulingState = round.SchedulingFailed
		})
		events = append(events, Event{
			Name:           EventRoundFailed,
			ConversationID: conversationID,
			SpaceID:        spaceID,
			RoundID:        active.ID,
			RunID:          failedRun.ID,
			Reason:         ReasonFailureHandled,
		})
		return ok(ReasonFailureHandled, map[string]any{"round_id": active.ID}), events
	})
	s.publish(events)
	return resp
}

// StartRoundForSpeaker starts a fresh round like StartRound but guarantees
// speakerMembershipID is scheduled first regardless of its position in the
// activated queue, generalizing plan_force_talk's "always run for an
// explicit speaker, regardless of reply_order" to "start a round, then
// force its first speaker".
func (s *Scheduler) StartRoundForSpeaker(conversationID, spaceID, triggerMessageID, speakerMembershipID string) ServiceResponse {
	resp, events := s.locks.withLock(conversationID, func() (ServiceResponse, []Event) {
		var events []Event
		if canceled, ok := s.runs.CancelQueued(conversationID); ok {
			events = append(events, s.runCanceledEvent(conversationID, spaceID, canceled))
		}

		members, err := s.queue.ActivatedQueue(conversationID)
		if err != nil || len(members) == 0 {
			return fail(ReasonNoEligibleSpeakers, map[string]any{"started": false}), events
		}
		ordered := moveMembershipToFront(members, speakerMembershipID)

		memberIDs := make([]string, len(ordered))
		for i, m := range ordered {
			memberIDs[i] = m.ID
		}
		r := s.rounds.CreateRound(conversationID, memberIDs, round.Metadata{})
		events = append(events, Event{
			Name:             EventRoundStarted,
			ConversationID:   conversationID,
			SpaceID:          spaceID,
			RoundID:          r.ID,
			TriggerMessageID: triggerMessageID,
			Reason:           ReasonRoundStarted,
		})
		events = append(events, s.scheduleSpeakerLocked(conversationID, spaceID, r.ID, ordered[0], 0, "")...)
		return ok(ReasonRoundStarted, map[string]any{"started": true, "round_id": r.ID}), events
	})
	s.publish(events)
	return resp
}

func moveMembershipToFront(members []Membership, id string) []Membership {
	out := make([]Membership, 0, len(members))
	var found *Membership
	for i := range members {
		if members[i].ID == id && found == nil {
			m := members[i]
			found = &m
			continue
		}
		out = append(out, members[i])
	}
	if found == nil {
		return members
	}
	return append([]Membership{*found}, out...)
}

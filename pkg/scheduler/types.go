// Package scheduler implements the Turn Scheduler Commands (C11): a
// transactional state machine for multi-participant conversation
// turn-taking, layered over pkg/round's arena and pkg/runqueue's planner.
// Commands return typed request/result structs from mutex-guarded methods,
// separating state mutation (under lock) from event publication (after
// unlock, through the Scheduler's configured EventSink).
package scheduler

import "github.com/tavernkit/core/pkg/round"

// ServiceResponse is the typed return value of every scheduler command
// ("commands return a typed ServiceResponse{success/error,
// reason, payload}; only the Executor surfaces human-readable error
// text").
type ServiceResponse struct {
	Success bool
	Reason  string
	Payload map[string]any
}

func ok(reason string, payload map[string]any) ServiceResponse {
	return ServiceResponse{Success: true, Reason: reason, Payload: payload}
}

func fail(reason string, payload map[string]any) ServiceResponse {
	return ServiceResponse{Success: false, Reason: reason, Payload: payload}
}

// Reasons returned in ServiceResponse.Reason, named after the command
// prose so callers can switch on them without string literals scattered
// through business logic.
const (
	ReasonNoEligibleSpeakers     = "no_eligible_speakers"
	ReasonMissingSpeaker         = "missing_speaker_membership"
	ReasonIgnoredStaleRunMessage = "ignored_stale_run_message"
	ReasonNoopFailedState        = "noop_failed_state"
	ReasonIgnoredIndependentRun  = "ignored_independent_run_message"
	ReasonNoopIdleNoTrigger      = "noop_idle_no_trigger"
	ReasonTurnAdvancedPaused     = "turn_advanced_paused"
	ReasonRoundComplete          = "round_complete"
	ReasonAdvancedToNextSpeaker  = "advanced_to_next_speaker"
	ReasonRoundStarted           = "round_started"
	ReasonRoundResumed           = "round_resumed"
	ReasonRoundStopped           = "round_stopped"
	ReasonBlockedActiveRun       = "blocked_active_run"
	ReasonNotCurrentSpeaker      = "not_current_speaker"
	ReasonNoActiveRound          = "no_active_round"
	ReasonNotPending             = "not_pending_or_not_editable"
	ReasonRoundQueueEmptied      = "round_queue_emptied"
	ReasonFailureHandled         = "failure_handled"
	ReasonNotSchedulerOwnedRun   = "not_scheduler_owned_run"
)

// Event is the normalized envelope every scheduler mutation emits.
type Event struct {
	Name                string
	ConversationID      string
	SpaceID             string
	RoundID             string
	RunID               string
	TriggerMessageID    string
	SpeakerMembershipID string
	Reason              string
	Payload             map[string]any
}

// Event names.
const (
	EventRoundStarted       = "turn_scheduler.round_started"
	EventRoundFinished      = "turn_scheduler.round_finished"
	EventRoundFailed        = "turn_scheduler.round_failed"
	EventRoundResumed       = "turn_scheduler.round_resumed"
	EventRoundSuperseded    = "turn_scheduler.round_superseded"
	EventParticipantSpoken  = "turn_scheduler.participant_spoken"
	EventParticipantSkipped = "turn_scheduler.participant_skipped"
	EventTurnAdvanced       = "turn_scheduler.turn_advanced"
	EventAdvanceTurnIgnored = "turn_scheduler.advance_turn_ignored"
	EventAdvanceTurnNoop    = "turn_scheduler.advance_turn_noop"
	EventRunCanceled        = "conversation_run.canceled"
)

// EventSink publishes events after the conversation lock is released
// ("Broadcasts: emitted after the lock is released").
type EventSink interface {
	Emit(Event)
}

// Membership is the scheduler's read-only view of a space membership: the
// minimum surface advance_to_next_speaker's can_be_scheduled? predicate
// and ScheduleSpeaker's human/auto kind decision need.
type Membership struct {
	ID                 string
	DisplayName        string
	IsHuman            bool
	Active             bool
	Muted              bool
	Removed            bool
	HasAutoResponder   bool
	AutoMode           string // "auto", "copilot", or "" (off)
	AutoStepsRemaining int
}

// CanBeScheduled implements the can_be_scheduled?: "exists, active,
// not muted/removed, has an auto-responder".
func (m Membership) CanBeScheduled() bool {
	return m.Active && !m.Muted && !m.Removed && m.HasAutoResponder
}

// IsAutoUser reports whether m is a human membership with auto-response
// enabled and steps remaining, which ScheduleSpeaker routes to
// KindAutoUserResponse instead of KindAutoResponse.
func (m Membership) IsAutoUser() bool {
	return m.IsHuman && m.AutoMode == "auto" && m.AutoStepsRemaining > 0
}

// ActivatedQueueProvider computes the ordered activated queue for a
// conversation (StartRound step 2, "the external query
// component"). The returned slice is pre-filtered to schedulable members
// only per the wording; the Scheduler does not re-filter it.
type ActivatedQueueProvider interface {
	ActivatedQueue(conversationID string) ([]Membership, error)
}

// MembershipLookup resolves a single membership by id, used by
// advance_to_next_speaker and ResumeRound to re-check schedulability of
// an already-seated participant.
type MembershipLookup interface {
	Membership(membershipID string) (Membership, bool)
}

// AutoModeDisabler disables every human membership's copilot/auto mode in
// one operation (HandleFailure "disable all human-auto
// memberships via column update to avoid cascading broadcasts").
type AutoModeDisabler interface {
	DisableAllHumanAuto(conversationID string)
}

// Kicker nudges the run-queue worker pool to attempt a claim for a
// conversation without blocking the caller (ScheduleSpeaker
// "kick the run only if no running run exists"). Satisfied by
// *runqueue.Pool without this package importing its concrete type beyond
// the one method it needs.
type Kicker interface {
	Kick(conversationID string)
}

// AutoSchedulingEnabled reports whether auto-without-human mode should
// keep starting rounds with no new human trigger, per
// handle_round_complete and AdvanceTurn's assistant-message triggering
// rule. Evaluated from the round metadata the caller passed to CreateRound/
// resumed, not re-derived here, since "is any human membership in auto
// mode" is a conversation-wide query outside this package's scope.
func AutoSchedulingEnabled(meta round.Metadata) bool {
	return meta.AutoWithoutHumanRoundsRemaining > 0
}

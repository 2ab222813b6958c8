package runqueue

import "time"

// Planner is the only legal way to create user-triggered Runs. It wraps a
// Store with the debounce/dedup policy each plan_* operation defines;
// ScheduleSpeaker (pkg/scheduler) and these methods are the only callers
// that may Enqueue.
type Planner struct {
	Store *Store

	// UserTurnDebounce delays a plan_from_user_message run so rapid
	// consecutive user messages coalesce onto one queued run.
	UserTurnDebounce time.Duration

	// AutoFollowupDelay delays a plan_auto_without_human_followup run.
	AutoFollowupDelay time.Duration
}

// NewPlanner returns a Planner backed by store with the given debounce
// delays.
func NewPlanner(store *Store, userTurnDebounce, autoFollowupDelay time.Duration) *Planner {
	return &Planner{Store: store, UserTurnDebounce: userTurnDebounce, AutoFollowupDelay: autoFollowupDelay}
}

// PlanFromUserMessage implements plan_from_user_message : a
// no-op when replyOrder is "manual"; otherwise upserts the single queued
// run for the conversation, extending run_after and debug.user_message_id
// if one is already queued.
func (p *Planner) PlanFromUserMessage(conversationID, userMessageID, replyOrder string) (Run, bool, error) {
	if replyOrder == "manual" {
		return Run{}, false, nil
	}
	runAfter := now().Add(p.UserTurnDebounce)
	r, err := p.Store.Enqueue(Run{
		ConversationID: conversationID,
		Kind:           KindAutoResponse,
		RunAfter:       runAfter,
		Debug:          Debug{Trigger: "user_message", ScheduledBy: "run_planner", UserMessageID: userMessageID},
	})
	if err == nil {
		return r, true, nil
	}
	if _, already := err.(*ErrAlreadyQueued); already {
		r, extendErr := p.Store.ExtendQueuedRun(conversationID, runAfter, userMessageID)
		if extendErr != nil {
			return Run{}, false, extendErr
		}
		return r, true, nil
	}
	return Run{}, false, err
}

// PlanForceTalk implements plan_force_talk : always creates
// a queued force_talk run for an explicit speaker, regardless of
// replyOrder. A pre-existing queued run is canceled first so the explicit
// request is never silently dropped by the unique-queued-run invariant.
func (p *Planner) PlanForceTalk(conversationID, roundID, speakerMembershipID string) (Run, error) {
	p.Store.CancelQueued(conversationID)
	return p.Store.Enqueue(Run{
		ConversationID:      conversationID,
		RoundID:             roundID,
		Kind:                KindForceTalk,
		SpeakerMembershipID: speakerMembershipID,
		RunAfter:            now(),
		Debug:               Debug{Trigger: "force_talk", ScheduledBy: "run_planner"},
	})
}

// PlanAutoWithoutHumanFollowup implements plan_auto_without_human_followup
// : creates a queued auto_without_human run carrying
// debug.expected_last_message_id = triggerMessageID, unless one is
// already queued (in which case it does not override).
func (p *Planner) PlanAutoWithoutHumanFollowup(conversationID, roundID, triggerMessageID string) (Run, bool, error) {
	r, err := p.Store.Enqueue(Run{
		ConversationID: conversationID,
		RoundID:        roundID,
		Kind:           KindAutoWithoutHuman,
		RunAfter:       now().Add(p.AutoFollowupDelay),
		Debug: Debug{
			Trigger:               "auto_without_human_followup",
			ScheduledBy:           "run_planner",
			ExpectedLastMessageID: triggerMessageID,
		},
	})
	if err == nil {
		return r, true, nil
	}
	if _, already := err.(*ErrAlreadyQueued); already {
		return Run{}, false, nil
	}
	return Run{}, false, err
}

// PlanRegenerate implements plan_regenerate : creates a
// queued regenerate run carrying debug.target_message_id and
// debug.expected_last_message_id.
func (p *Planner) PlanRegenerate(conversationID, roundID, targetMessageID, expectedLastMessageID string) (Run, error) {
	p.Store.CancelQueued(conversationID)
	return p.Store.Enqueue(Run{
		ConversationID: conversationID,
		RoundID:        roundID,
		Kind:           KindRegenerate,
		RunAfter:       now(),
		Debug: Debug{
			Trigger:               "regenerate",
			ScheduledBy:           "run_planner",
			TargetMessageID:       targetMessageID,
			ExpectedLastMessageID: expectedLastMessageID,
		},
	})
}

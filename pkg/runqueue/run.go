// Package runqueue holds the ConversationRun type and its in-memory arena
// Store (C12): the queued/running/terminal generation runs the Turn
// Scheduler's ScheduleSpeaker creates and the Run Executor claims,
// streams, and resolves. The Store follows the same arena shape as
// pkg/round (map-keyed values behind a single sync.RWMutex, addressed by
// opaque id), generalized to enforce "at most one queued run" and "at most
// one running run" per conversation.
package runqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a ConversationRun's lifecycle status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusSkipped   Status = "skipped"
)

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled, StatusSkipped:
		return true
	}
	return false
}

// Kind is a ConversationRun's trigger classification, set by whichever of
// ScheduleSpeaker or the Run Planner created the run.
type Kind string

const (
	KindAutoResponse     Kind = "auto_response"
	KindAutoUserResponse Kind = "auto_user_response"
	KindForceTalk        Kind = "force_talk"
	KindAutoWithoutHuman Kind = "auto_without_human"
	KindRegenerate       Kind = "regenerate"
)

// Error is a Run's structured failure ("error{code,message}").
type Error struct {
	Code    string
	Message string
}

// ErrorCodes used across the planner/executor/scheduler boundary.
const (
	ErrCodeStaleRunningRun         = "stale_running_run"
	ErrCodeExpectedMessageMismatch = "expected_last_message_mismatch"
)

// Debug is the Run's free-form provenance bag ("debug").
type Debug struct {
	Trigger               string
	ScheduledBy           string
	ExpectedLastMessageID string
	TargetMessageID       string
	CanceledBy            string
	UserMessageID         string
}

// Run is a ConversationRun.
type Run struct {
	ID                  string
	ConversationID      string
	RoundID             string // empty for an "independent" run with no round
	Status              Status
	Kind                Kind
	Reason              string
	SpeakerMembershipID string
	RunAfter            time.Time
	StartedAt           *time.Time
	HeartbeatAt         *time.Time
	FinishedAt          *time.Time
	CancelRequestedAt   *time.Time
	Error               *Error
	Debug               Debug
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsCancelRequested reports whether the run has a pending cooperative
// cancellation request ("cooperative via cancel_requested_at").
func (r Run) IsCancelRequested() bool { return r.CancelRequestedAt != nil }

// ErrNotFound is returned by Store lookups for an unknown id.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("runqueue: run %q not found", e.ID) }

// ErrAlreadyQueued is returned by Enqueue when a queued run already exists
// for the conversation, modeling the partial unique index
// `(conversation_id) WHERE status='queued'`. Callers that planned this
// race may treat it as a benign no-op.
type ErrAlreadyQueued struct{ ConversationID string }

func (e *ErrAlreadyQueued) Error() string {
	return fmt.Sprintf("runqueue: conversation %q already has a queued run", e.ConversationID)
}

// Store is the in-memory arena of Runs, indexed by opaque id and by
// conversation. All methods are safe for concurrent use; multi-step
// atomicity (claim-with-stale-reclaim, guard-then-transition) is provided
// by the methods themselves taking the write lock for their whole body,
// not by callers composing read-then-write.
type Store struct {
	mu            sync.RWMutex
	runs          map[string]*Run
	queuedByConv  map[string]string // conversationID -> queued run ID
	runningByConv map[string]string // conversationID -> running run ID
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		runs:          make(map[string]*Run),
		queuedByConv:  make(map[string]string),
		runningByConv: make(map[string]string),
	}
}

// Get returns a copy of the run by id.
func (s *Store) Get(runID string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return Run{}, &ErrNotFound{runID}
	}
	return *r, nil
}

// QueuedRun returns the queued run for a conversation, if any.
func (s *Store) QueuedRun(conversationID string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.queuedByConv[conversationID]
	if !ok {
		return Run{}, false
	}
	return *s.runs[id], true
}

// RunningRun returns the running run for a conversation, if any.
func (s *Store) RunningRun(conversationID string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.runningByConv[conversationID]
	if !ok {
		return Run{}, false
	}
	return *s.runs[id], true
}

// Enqueue creates a new queued Run, enforcing the at-most-one-queued-run-
// per-conversation invariant. Returns ErrAlreadyQueued without mutating
// state if one already exists.
func (s *Store) Enqueue(r Run) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.queuedByConv[r.ConversationID]; exists {
		return Run{}, &ErrAlreadyQueued{r.ConversationID}
	}
	r.ID = uuid.NewString()
	r.Status = StatusQueued
	r.CreatedAt = now()
	r.UpdatedAt = now()
	stored := r
	s.runs[stored.ID] = &stored
	s.queuedByConv[r.ConversationID] = stored.ID
	return stored, nil
}

// ExtendQueuedRun updates run_after and debug.user_message_id on the
// existing queued run for a conversation, the plan_from_user_message
// debounce-refresh path. Returns ErrNotFound if none is queued.
func (s *Store) ExtendQueuedRun(conversationID string, runAfter time.Time, userMessageID string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.queuedByConv[conversationID]
	if !ok {
		return Run{}, &ErrNotFound{conversationID}
	}
	r := s.runs[id]
	r.RunAfter = runAfter
	r.Debug.UserMessageID = userMessageID
	r.UpdatedAt = now()
	return *r, nil
}

// CancelQueued cancels the queued run for a conversation, if any, and
// clears the queued index so a new Enqueue may succeed. Called by
// StartRound/StopRound/ResumeRound to cancel any queued run.
func (s *Store) CancelQueued(conversationID string) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.queuedByConv[conversationID]
	if !ok {
		return Run{}, false
	}
	r := s.runs[id]
	r.Status = StatusCanceled
	t := now()
	r.FinishedAt = &t
	r.UpdatedAt = t
	delete(s.queuedByConv, conversationID)
	return *r, true
}

// ClaimQueued atomically transitions the conversation's queued run to
// running, first reclaiming a stale running run (one whose heartbeat_at
// predates staleTimeout) by marking it failed with ErrCodeStaleRunningRun
// and cancel-requesting it. Returns (Run{}, false) if nothing is queued.
func (s *Store) ClaimQueued(conversationID string, staleTimeout time.Duration) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runningID, ok := s.runningByConv[conversationID]; ok {
		running := s.runs[runningID]
		stale := running.HeartbeatAt == nil || now().Sub(*running.HeartbeatAt) > staleTimeout
		if stale {
			t := now()
			running.Status = StatusFailed
			running.Error = &Error{Code: ErrCodeStaleRunningRun, Message: "running run exceeded heartbeat timeout"}
			running.CancelRequestedAt = &t
			running.FinishedAt = &t
			running.UpdatedAt = t
			delete(s.runningByConv, conversationID)
		}
	}

	queuedID, ok := s.queuedByConv[conversationID]
	if !ok {
		return Run{}, false
	}
	if _, stillRunning := s.runningByConv[conversationID]; stillRunning {
		return Run{}, false
	}

	r := s.runs[queuedID]
	t := now()
	r.Status = StatusRunning
	r.StartedAt = &t
	r.HeartbeatAt = &t
	r.UpdatedAt = t
	delete(s.queuedByConv, conversationID)
	s.runningByConv[conversationID] = r.ID
	return *r, true
}

// Heartbeat refreshes a running run's heartbeat_at (step 3
// "While streaming, heartbeat periodically").
func (s *Store) Heartbeat(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return &ErrNotFound{runID}
	}
	t := now()
	r.HeartbeatAt = &t
	r.UpdatedAt = t
	return nil
}

// RequestCancel sets cancel_requested_at on a run if not already set
// ("cooperative via cancel_requested_at").
func (s *Store) RequestCancel(runID, canceledBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return &ErrNotFound{runID}
	}
	if r.CancelRequestedAt == nil {
		t := now()
		r.CancelRequestedAt = &t
	}
	r.Debug.CanceledBy = canceledBy
	r.UpdatedAt = now()
	return nil
}

// Finish transitions a running run to a terminal status (succeeded,
// failed, canceled, or skipped), clearing the running index.
func (s *Store) Finish(runID string, status Status, runErr *Error) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return Run{}, &ErrNotFound{runID}
	}
	t := now()
	r.Status = status
	r.Error = runErr
	r.FinishedAt = &t
	r.UpdatedAt = t
	if s.runningByConv[r.ConversationID] == runID {
		delete(s.runningByConv, r.ConversationID)
	}
	return *r, nil
}

func now() time.Time { return time.Now() }

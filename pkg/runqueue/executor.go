package runqueue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StreamChunk is one piece of incremental LLM output, heartbeated
// periodically while streaming.
type StreamChunk struct {
	Content string
	Done    bool
}

// Generator begins an LLM call for a claimed run and streams its output.
// Implementations own the pipeline-build and dialect-convert steps; the
// Executor only consumes the resulting channels.
type Generator interface {
	Stream(ctx context.Context, run Run) (<-chan StreamChunk, <-chan error)
}

// LastMessageProvider answers the "current last scheduler-visible message
// id" query the expected-last-message guard compares against.
type LastMessageProvider interface {
	LastSchedulerVisibleMessageID(conversationID string) string
}

// ResultSink persists a run's terminal outcome. Implementations are
// expected to translate these into the host's Message/Swipe model: persist
// the produced content as a Message, or as an additional Swipe on
// debug.target_message_id for regenerate runs.
type ResultSink interface {
	PersistSuccess(run Run, content string) error
	PersistFailure(run Run, errInfo Error) error
	PersistSkip(run Run, errInfo Error) error
	// PersistCancel is only invoked under the "queue" mid-generation input
	// policy, which persists partial output on cancellation; under
	// "restart" the Executor never calls it.
	PersistCancel(run Run, partialContent string) error
}

// FailureNotifier is invoked after a run transitions to failed so the
// scheduler's HandleFailure command can run under its own
// conversation lock.
type FailureNotifier interface {
	HandleFailure(run Run)
}

// ExecutorConfig bundles the Executor's collaborators and timing knobs.
type ExecutorConfig struct {
	Store            *Store
	Generator        Generator
	Messages         LastMessageProvider
	Sink             ResultSink
	Failures         FailureNotifier
	StaleTimeout     time.Duration
	HeartbeatEvery   time.Duration
	MidGenPolicy     string // "queue" or "restart" (closing section)
	GroupMemberNames []string
}

// Executor is the Run Executor : it claims a conversation's
// queued run, guards against staleness, streams the LLM call, and resolves
// the run to a terminal status.
type Executor struct {
	cfg ExecutorConfig
}

// NewExecutor returns an Executor wired to cfg. StaleTimeout and
// HeartbeatEvery default to 30s and 5s respectively when zero.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.StaleTimeout == 0 {
		cfg.StaleTimeout = 30 * time.Second
	}
	if cfg.HeartbeatEvery == 0 {
		cfg.HeartbeatEvery = 5 * time.Second
	}
	return &Executor{cfg: cfg}
}

// ClaimAndRun claims the next queued run for conversationID, if any, and
// drives it to a terminal status. It returns (false, nil) when there was
// nothing claimable, which callers treat as a normal idle poll result.
func (e *Executor) ClaimAndRun(ctx context.Context, conversationID string) (bool, error) {
	run, ok := e.cfg.Store.ClaimQueued(conversationID, e.cfg.StaleTimeout)
	if !ok {
		return false, nil
	}

	if run.Debug.ExpectedLastMessageID != "" && e.cfg.Messages != nil {
		if e.cfg.Messages.LastSchedulerVisibleMessageID(conversationID) != run.Debug.ExpectedLastMessageID {
			errInfo := Error{Code: ErrCodeExpectedMessageMismatch, Message: "last scheduler-visible message changed since this run was scheduled"}
			finished, err := e.cfg.Store.Finish(run.ID, StatusSkipped, &errInfo)
			if err != nil {
				return true, err
			}
			if e.cfg.Sink != nil {
				if err := e.cfg.Sink.PersistSkip(finished, errInfo); err != nil {
					return true, err
				}
			}
			return true, nil
		}
	}

	chunks, errs := e.cfg.Generator.Stream(ctx, run)
	heartbeat := time.NewTicker(e.cfg.HeartbeatEvery)
	defer heartbeat.Stop()

	var content strings.Builder
	for {
		// Drain a pending error first: a Generator that both closes chunks
		// and reports an error on the same turn (e.g. a scripted test
		// double) must not have the failure lost to select's random
		// pick between two simultaneously ready channels.
		select {
		case err := <-errs:
			if err != nil {
				return true, e.finishFailure(run, Error{Code: "generation_error", Message: err.Error()})
			}
		default:
		}

		select {
		case chunk, open := <-chunks:
			if !open {
				return true, e.finishSuccess(run, content.String())
			}
			content.WriteString(chunk.Content)
			if chunk.Done {
				return true, e.finishSuccess(run, content.String())
			}
			if current, cerr := e.cfg.Store.Get(run.ID); cerr == nil && current.IsCancelRequested() {
				return true, e.finishCancel(run, content.String())
			}

		case err, open := <-errs:
			if !open {
				errs = nil // never select a closed channel again
				continue
			}
			if err != nil {
				return true, e.finishFailure(run, Error{Code: "generation_error", Message: err.Error()})
			}

		case <-heartbeat.C:
			_ = e.cfg.Store.Heartbeat(run.ID)
			if current, cerr := e.cfg.Store.Get(run.ID); cerr == nil && current.IsCancelRequested() {
				return true, e.finishCancel(run, content.String())
			}

		case <-ctx.Done():
			return true, e.finishCancel(run, content.String())
		}
	}
}

func (e *Executor) finishSuccess(run Run, content string) error {
	if run.Kind != KindRegenerate {
		content = TrimStrayNamePrefixes(content, e.cfg.GroupMemberNames)
	}
	finished, err := e.cfg.Store.Finish(run.ID, StatusSucceeded, nil)
	if err != nil {
		return err
	}
	if e.cfg.Sink != nil {
		return e.cfg.Sink.PersistSuccess(finished, content)
	}
	return nil
}

func (e *Executor) finishFailure(run Run, errInfo Error) error {
	finished, err := e.cfg.Store.Finish(run.ID, StatusFailed, &errInfo)
	if err != nil {
		return err
	}
	if e.cfg.Sink != nil {
		if err := e.cfg.Sink.PersistFailure(finished, errInfo); err != nil {
			return err
		}
	}
	if e.cfg.Failures != nil {
		e.cfg.Failures.HandleFailure(finished)
	}
	return nil
}

func (e *Executor) finishCancel(run Run, partialContent string) error {
	finished, err := e.cfg.Store.Finish(run.ID, StatusCanceled, nil)
	if err != nil {
		return err
	}
	if e.cfg.MidGenPolicy == "queue" && e.cfg.Sink != nil {
		return e.cfg.Sink.PersistCancel(finished, partialContent)
	}
	return nil
}

// TrimStrayNamePrefixes removes a leading "<Name>: " line the model
// sometimes echoes back in group chats, bounded to known member display
// names so ordinary dialogue starting with a colon is never mangled
// (step 4 "trim stray leading <OtherName>: prefixes ...
// bounded to known group members' display names").
func TrimStrayNamePrefixes(content string, memberNames []string) string {
	for _, name := range memberNames {
		prefix := fmt.Sprintf("%s:", name)
		if trimmed, ok := cutPrefixFold(content, prefix); ok {
			return strings.TrimLeft(trimmed, " ")
		}
	}
	return content
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) {
		return s, false
	}
	if !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

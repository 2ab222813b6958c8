package schedmetrics

import (
	"sync"
	"time"

	"github.com/tavernkit/core/pkg/scheduler"
)

// EventRecorder wraps a scheduler.EventSink, forwarding every Event to the
// wrapped sink unchanged while deriving Metrics observations as a side
// effect — round start/finish timestamps become the round_duration_seconds
// histogram, participant_skipped events become the skip counter. This is
// the only place in the module that turns Turn Scheduler events into
// Prometheus series, so schedmetrics stays decoupled from scheduler's
// internals beyond the public Event envelope (pkg/scheduler/types.go).
type EventRecorder struct {
	inner   scheduler.EventSink
	metrics *Metrics

	mu      sync.Mutex
	started map[string]time.Time // round id -> round_started observation time
}

// NewEventRecorder returns an EventRecorder delegating to inner and
// recording onto metrics. metrics may be nil, in which case Emit simply
// forwards to inner with no observations (every Metrics method already
// nil-guards, so this works unconditionally).
func NewEventRecorder(inner scheduler.EventSink, metrics *Metrics) *EventRecorder {
	return &EventRecorder{
		inner:   inner,
		metrics: metrics,
		started: make(map[string]time.Time),
	}
}

// Emit implements scheduler.EventSink.
func (r *EventRecorder) Emit(ev scheduler.Event) {
	if r.inner != nil {
		r.inner.Emit(ev)
	}

	switch ev.Name {
	case scheduler.EventRoundStarted:
		r.metrics.RecordRoundStarted(ev.SpaceID)
		r.mu.Lock()
		r.started[ev.RoundID] = now()
		r.mu.Unlock()

	case scheduler.EventRoundFinished, scheduler.EventRoundFailed:
		reason := ev.Reason
		if reason == "" {
			reason = ev.Name
		}
		r.mu.Lock()
		startedAt, ok := r.started[ev.RoundID]
		if ok {
			delete(r.started, ev.RoundID)
		}
		r.mu.Unlock()

		duration := 0.0
		if ok {
			duration = now().Sub(startedAt).Seconds()
		}
		r.metrics.RecordRoundFinished(ev.SpaceID, reason, duration)

	case scheduler.EventParticipantSkipped:
		r.metrics.RecordParticipantSkipped(ev.SpaceID, ev.Reason)
	}
}

func now() time.Time { return time.Now() }

package schedmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tavernkit/core/pkg/prompt"
)

// Metrics holds the Prometheus collectors for the scheduler and prompt
// assembly cores. A nil *Metrics is valid everywhere its methods are
// called — every method has a nil-receiver guard — so callers can wire it
// in unconditionally and simply pass nil when Config.Enabled is false
// (pkg/observability/metrics.go's NewMetrics/RecordAgentCall pattern).
type Metrics struct {
	registry *prometheus.Registry

	// Turn Scheduler metrics.
	queuedRuns     *prometheus.GaugeVec
	roundDuration  *prometheus.HistogramVec
	roundsStarted  *prometheus.CounterVec
	roundsFinished *prometheus.CounterVec
	participantsSkipped *prometheus.CounterVec

	// Prompt Assembly metrics.
	trimEvictions    *prometheus.CounterVec
	trimTokensBefore *prometheus.HistogramVec
	trimTokensAfter  *prometheus.HistogramVec
	loreEntriesActivated *prometheus.CounterVec
}

// New creates a Metrics instance from cfg. Returns nil, nil when cfg is
// nil or cfg.Enabled is false, so every recording method below must
// tolerate a nil receiver.
func New(cfg *Config) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initSchedulerMetrics(cfg.Namespace)
	m.initPromptMetrics(cfg.Namespace)
	return m, nil
}

func (m *Metrics) initSchedulerMetrics(namespace string) {
	m.queuedRuns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queued_runs",
			Help:      "Number of conversation runs currently queued or running",
		},
		[]string{"conversation_id", "status"},
	)

	m.roundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "round_duration_seconds",
			Help:      "Duration of a round from round_started to round_finished/round_failed",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17min
		},
		[]string{"space_id", "reason"},
	)

	m.roundsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "rounds_started_total",
			Help:      "Total number of rounds started",
		},
		[]string{"space_id"},
	)

	m.roundsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "rounds_finished_total",
			Help:      "Total number of rounds that reached a terminal state",
		},
		[]string{"space_id", "reason"},
	)

	m.participantsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "participants_skipped_total",
			Help:      "Total number of participants skipped during round advancement",
		},
		[]string{"space_id", "reason"},
	)

	m.registry.MustRegister(m.queuedRuns, m.roundDuration, m.roundsStarted,
		m.roundsFinished, m.participantsSkipped)
}

func (m *Metrics) initPromptMetrics(namespace string) {
	m.trimEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trimmer",
			Name:      "evictions_total",
			Help:      "Total number of blocks evicted by the context trimmer, by budget group",
		},
		[]string{"group"},
	)

	m.trimTokensBefore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trimmer",
			Name:      "tokens_before",
			Help:      "Token count of the assembled plan before trimming",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 12), // 256 to ~1M
		},
		[]string{},
	)

	m.trimTokensAfter = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trimmer",
			Name:      "tokens_after",
			Help:      "Token count of the assembled plan after trimming",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 12),
		},
		[]string{},
	)

	m.loreEntriesActivated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lore",
			Name:      "entries_activated_total",
			Help:      "Total number of lore entries activated during World-Info scanning",
		},
		[]string{"book"},
	)

	m.registry.MustRegister(m.trimEvictions, m.trimTokensBefore, m.trimTokensAfter,
		m.loreEntriesActivated)
}

// SetQueuedRuns records the number of runs in the given status for a
// conversation (Turn Scheduler's "at most one queued, at most one
// running" invariant — this gauge is what lets an operator see a stuck
// backlog before it violates that invariant).
func (m *Metrics) SetQueuedRuns(conversationID, status string, count int) {
	if m == nil {
		return
	}
	m.queuedRuns.WithLabelValues(conversationID, status).Set(float64(count))
}

// RecordRoundStarted records a round being started.
func (m *Metrics) RecordRoundStarted(spaceID string) {
	if m == nil {
		return
	}
	m.roundsStarted.WithLabelValues(spaceID).Inc()
}

// RecordRoundFinished records a round reaching a terminal state (finished,
// failed, or stopped) along with its total duration.
func (m *Metrics) RecordRoundFinished(spaceID, reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.roundsFinished.WithLabelValues(spaceID, reason).Inc()
	m.roundDuration.WithLabelValues(spaceID, reason).Observe(durationSeconds)
}

// RecordParticipantSkipped records a participant being skipped during
// round advancement (not schedulable, or explicitly skipped).
func (m *Metrics) RecordParticipantSkipped(spaceID, reason string) {
	if m == nil {
		return
	}
	m.participantsSkipped.WithLabelValues(spaceID, reason).Inc()
}

// RecordTrim records one Trimmer pass: how many blocks were evicted from
// each budget group, and the token counts before/after.
func (m *Metrics) RecordTrim(removedExampleGroups, removedLoreUIDs []string, removedHistoryCount, tokensBefore, tokensAfter int) {
	if m == nil {
		return
	}
	if len(removedExampleGroups) > 0 {
		m.trimEvictions.WithLabelValues("examples").Add(float64(len(removedExampleGroups)))
	}
	if len(removedLoreUIDs) > 0 {
		m.trimEvictions.WithLabelValues("lore").Add(float64(len(removedLoreUIDs)))
	}
	if removedHistoryCount > 0 {
		m.trimEvictions.WithLabelValues("history").Add(float64(removedHistoryCount))
	}
	m.trimTokensBefore.WithLabelValues().Observe(float64(tokensBefore))
	m.trimTokensAfter.WithLabelValues().Observe(float64(tokensAfter))
}

// RecordPlanTrim observes a *prompt.Plan's TrimReport, if any. Call this
// once per pipeline.Build result; a Plan with Fits already true on the
// first pass still records its before/after token counts, just with zero
// evictions.
func (m *Metrics) RecordPlanTrim(plan *prompt.Plan) {
	if m == nil || plan == nil || plan.TrimReport == nil {
		return
	}
	r := plan.TrimReport
	m.RecordTrim(r.RemovedExampleGroups, r.RemovedLoreUIDs, r.RemovedHistoryCount, r.TokensBefore, r.TokensAfter)
}

// RecordLoreActivated records lore entries selected for inclusion from a
// given book during World-Info scanning.
func (m *Metrics) RecordLoreActivated(book string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.loreEntriesActivated.WithLabelValues(book).Add(float64(count))
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint. A
// nil Metrics serves 503, since there is no registry to scrape when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

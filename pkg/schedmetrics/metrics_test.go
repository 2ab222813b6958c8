package schedmetrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernkit/core/pkg/prompt"
)

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = New(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestNilMetricsMethodsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetQueuedRuns("c1", "queued", 2)
		m.RecordRoundStarted("space1")
		m.RecordRoundFinished("space1", "round_complete", 1.5)
		m.RecordParticipantSkipped("space1", "not_schedulable")
		m.RecordTrim([]string{"group-a"}, []string{"uid-1"}, 3, 1000, 500)
		m.RecordLoreActivated("world", 2)
		m.RecordPlanTrim(&prompt.Plan{TrimReport: &prompt.TrimReport{TokensBefore: 10, TokensAfter: 5}})
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 503, rec.Code)
}

func TestRecordRoundFinishedObservesDurationAndCount(t *testing.T) {
	m, err := New(&Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordRoundStarted("space1")
	m.RecordRoundFinished("space1", "round_complete", 2.5)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.roundsStarted.WithLabelValues("space1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.roundsFinished.WithLabelValues("space1", "round_complete")))
}

func TestRecordTrimAccumulatesEvictionsByGroup(t *testing.T) {
	m, err := New(&Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordTrim([]string{"ex-1", "ex-2"}, []string{"uid-1"}, 4, 800, 400)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.trimEvictions.WithLabelValues("examples")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.trimEvictions.WithLabelValues("lore")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.trimEvictions.WithLabelValues("history")))
}

func TestRecordPlanTrimSkipsPlanWithoutReport(t *testing.T) {
	m, err := New(&Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.RecordPlanTrim(&prompt.Plan{})
		m.RecordPlanTrim(nil)
	})
}

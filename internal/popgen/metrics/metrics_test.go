package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCreated()
	m.RecordProduced()
	m.RecordProduced()
	m.RecordTransition("Running", nil)
	m.RecordTransition("Running", errors.New("nope"))
	m.RecordOutcome("Completed")
	m.RecordPublished("csv")
	m.RecordSwept("temporary")
	m.RecordSweepError()
	m.SetRegistered(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsProduced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("Running", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("Running", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("Completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactsPublished.WithLabelValues("csv")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactsSwept.WithLabelValues("temporary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeRequests))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCreated()
		m.RecordTransition("Paused", nil)
		m.RecordProduced()
		m.RecordOutcome("Failed")
		m.RecordPublished("default")
		m.RecordSwept("artifact")
		m.RecordSweepError()
		m.SetRegistered(1)
	})
}

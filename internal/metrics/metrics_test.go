package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.ObserveRun("max_explained", 5, []int{1}, 20*time.Millisecond)
	rec.ObserveRun("exhausted", 4, nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("max_explained")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("exhausted")))
	assert.Equal(t, 9.0, testutil.ToFloat64(rec.scorerCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.explanations))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["edc_runs_total"])
	assert.True(t, names["edc_run_duration_seconds"])
}

func TestRecorder_ObserveFailure(t *testing.T) {
	rec := NewRecorder(prometheus.NewRegistry())

	rec.ObserveFailure(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(rec.scorerCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.scorerErrors))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder

	assert.NotPanics(t, func() {
		rec.ObserveRun("max_iter", 1, []int{2}, time.Second)
		rec.ObserveFailure(1)
	})
}

package observability_test

import (
	"testing"
	"time"

	"github.com/aretw0/tendril/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.ObserveResolve(true)
	m.ObserveResolve(false)
	m.ObserveResolve(false)
	m.ObserveRun(observability.ResultEnded)
	m.ObserveGenerate("fc-mock-echo-inst", 20*time.Millisecond)
	m.ObserveWork("work_new")

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]int{}
	for _, f := range families {
		counts[f.GetName()] = len(f.GetMetric())
	}
	assert.Equal(t, 2, counts["tendril_steps_resolved_total"])
	assert.Equal(t, 1, counts["tendril_steps_run_total"])
	assert.Equal(t, 1, counts["tendril_provider_generate_seconds"])
	assert.Equal(t, 1, counts["tendril_work_events_total"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *observability.Metrics
	assert.NotPanics(t, func() {
		m.ObserveResolve(true)
		m.ObserveResolveFailure()
		m.ObserveRun(observability.ResultFailed)
		m.ObserveGenerate("x", time.Second)
		m.ObserveWork("work_done")
	})
}

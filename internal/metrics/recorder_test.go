package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/contentorc/internal/core"
)

func result(strategy string, success bool, total time.Duration) *core.PipelineResult {
	return &core.PipelineResult{
		RequestID:    "req",
		Strategy:     strategy,
		Success:      success,
		QualityScore: 0.8,
		Metrics: core.PerformanceMetrics{
			Total:              total,
			StageTimings:       map[core.StageName]time.Duration{core.StageGenerate: total / 2},
			StagesRun:          4,
			CacheHits:          1,
			ParallelEfficiency: 0.5,
		},
	}
}

func TestStatsAverageWindow(t *testing.T) {
	r := NewRecorder(10)
	r.Record(result("new_architecture", true, 100*time.Millisecond))
	r.Record(result("legacy", true, 300*time.Millisecond))
	failed := result("new_architecture", false, 200*time.Millisecond)
	failed.FallbackUsed = true
	r.Record(failed)

	st := r.Stats()
	assert.Equal(t, 3, st.Samples)
	assert.EqualValues(t, 3, st.TotalRecorded)
	assert.Equal(t, 200*time.Millisecond, st.AvgTotal)
	assert.InDelta(t, 0.5, st.AvgParallelEfficiency, 1e-9)
	assert.InDelta(t, 0.25, st.AvgCacheHitRate, 1e-9)
	assert.InDelta(t, 2.0/3, st.SuccessRate, 1e-9)
	assert.InDelta(t, 1.0/3, st.FallbackRate, 1e-9)
	assert.InDelta(t, 0.8, st.AvgQuality, 1e-9)
	assert.Equal(t, 100*time.Millisecond, st.StageAverages[core.StageGenerate])
	assert.Equal(t, map[string]int{"new_architecture": 2, "legacy": 1}, st.Strategies)
}

func TestWindowRollsOver(t *testing.T) {
	r := NewRecorder(3)
	for i := 0; i < 3; i++ {
		r.Record(result("legacy", true, time.Second))
	}
	for i := 0; i < 3; i++ {
		r.Record(result("legacy", true, 100*time.Millisecond))
	}

	st := r.Stats()
	assert.Equal(t, 3, st.Samples)
	assert.EqualValues(t, 6, st.TotalRecorded)
	assert.Equal(t, 100*time.Millisecond, st.AvgTotal)
}

func TestEmptyStats(t *testing.T) {
	st := NewRecorder(0).Stats()
	assert.Zero(t, st.Samples)
	assert.Zero(t, st.AvgTotal)
	assert.NotNil(t, st.StageAverages)
}

func TestHealthPredicate(t *testing.T) {
	limits := HealthLimits{MaxConcurrent: 4, QueueDepthThreshold: 5, AvgExecutionCeiling: time.Second}

	tests := []struct {
		name    string
		gate    core.GateStats
		avg     time.Duration
		healthy bool
		failing string
	}{
		{"idle", core.GateStats{}, 0, true, ""},
		{"busy but within limits", core.GateStats{InFlight: 3, Queued: 4}, 900 * time.Millisecond, true, ""},
		{"saturated", core.GateStats{InFlight: 4}, 0, false, "concurrency"},
		{"queue at threshold", core.GateStats{Queued: 5}, 0, false, "queue_depth"},
		{"slow executions", core.GateStats{}, 2 * time.Second, false, "avg_execution_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder(10, WithLimits(limits))
			if tt.avg > 0 {
				r.Record(result("legacy", true, tt.avg))
			}
			report := r.Health(tt.gate)
			assert.Equal(t, tt.healthy, report.Healthy())
			require.Len(t, report.Checks, 3)
			for _, c := range report.Checks {
				if c.Name == tt.failing {
					assert.Equal(t, HealthStatusDegraded, c.Status)
				} else {
					assert.Equal(t, HealthStatusHealthy, c.Status, c.Name)
				}
			}
		})
	}
}

func TestHealthUsesGateBoundWhenUnset(t *testing.T) {
	r := NewRecorder(10, WithLimits(HealthLimits{QueueDepthThreshold: 10}))
	report := r.Health(core.GateStats{InFlight: 2, MaxConcurrent: 2})
	assert.False(t, report.Healthy())
	assert.Equal(t, 2.0, report.Checks[0].Limit)
	assert.Len(t, report.Checks, 2)
}

func TestPrometheusCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(10, WithRegisterer(reg, "test"), WithLimits(HealthLimits{MaxConcurrent: 2, QueueDepthThreshold: 2}))

	ok := result("new_architecture", true, 50*time.Millisecond)
	ok.FallbacksUsed = []string{"generate:retry"}
	r.Record(ok)
	r.Record(result("legacy", false, 50*time.Millisecond))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.collectors.executions.WithLabelValues("new_architecture", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.collectors.executions.WithLabelValues("legacy", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.collectors.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.collectors.fallbacks.WithLabelValues("generate:retry")))

	r.Health(core.GateStats{InFlight: 1, Queued: 1})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.collectors.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.collectors.healthy))

	expected := `
# HELP test_queue_depth Requests waiting for admission.
# TYPE test_queue_depth gauge
test_queue_depth 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_queue_depth"))
}

func TestRecordIsConcurrencySafe(t *testing.T) {
	r := NewRecorder(16)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(result("legacy", true, time.Millisecond))
			_ = r.Stats()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 50, r.Stats().TotalRecorded)
	assert.Equal(t, 16, r.Stats().Samples)
}

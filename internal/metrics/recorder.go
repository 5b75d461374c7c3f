// Package metrics keeps a rolling window of execution samples, mirrors them
// into Prometheus collectors and evaluates orchestrator health.
package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dotcommander/contentorc/internal/core"
)

// DefaultWindow is the number of executions kept for averaging.
const DefaultWindow = 100

// Sample is one completed execution.
type Sample struct {
	At                 time.Time
	Strategy           string
	Success            bool
	FallbackUsed       bool
	Quality            float64
	Total              time.Duration
	ParallelEfficiency float64
	CacheHitRate       float64
	StageTimings       map[core.StageName]time.Duration
}

// Stats are averages over the current window.
type Stats struct {
	Samples               int                              `json:"samples"`
	TotalRecorded         uint64                           `json:"total_recorded"`
	AvgTotal              time.Duration                    `json:"avg_total"`
	AvgParallelEfficiency float64                          `json:"avg_parallel_efficiency"`
	AvgCacheHitRate       float64                          `json:"avg_cache_hit_rate"`
	AvgQuality            float64                          `json:"avg_quality"`
	SuccessRate           float64                          `json:"success_rate"`
	FallbackRate          float64                          `json:"fallback_rate"`
	StageAverages         map[core.StageName]time.Duration `json:"stage_averages"`
	Strategies            map[string]int                   `json:"strategies"`
}

// Recorder is shared by every in-flight request; all methods are safe for
// concurrent use.
type Recorder struct {
	mu     sync.Mutex
	window []Sample
	next   int
	full   bool
	total  uint64
	limits HealthLimits
	logger *slog.Logger

	collectors *collectors
}

type Option func(*Recorder)

// WithRegisterer registers the collectors on reg instead of a private
// registry.
func WithRegisterer(reg prometheus.Registerer, namespace string) Option {
	return func(r *Recorder) { r.collectors = newCollectors(reg, namespace) }
}

func WithLimits(limits HealthLimits) Option {
	return func(r *Recorder) { r.limits = limits }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder keeps the last size samples (DefaultWindow when size <= 0).
func NewRecorder(size int, opts ...Option) *Recorder {
	if size <= 0 {
		size = DefaultWindow
	}
	r := &Recorder{
		window: make([]Sample, size),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.collectors == nil {
		r.collectors = newCollectors(prometheus.NewRegistry(), "contentorc")
	}
	r.logger = r.logger.With("component", "performance_recorder")
	return r
}

// Record adds a finished execution to the window.
func (r *Recorder) Record(result *core.PipelineResult) {
	if result == nil {
		return
	}
	s := Sample{
		At:                 time.Now(),
		Strategy:           result.Strategy,
		Success:            result.Success,
		FallbackUsed:       result.FallbackUsed,
		Quality:            result.QualityScore,
		Total:              result.Metrics.Total,
		ParallelEfficiency: result.Metrics.ParallelEfficiency,
		CacheHitRate:       result.Metrics.CacheHitRate(),
		StageTimings:       make(map[core.StageName]time.Duration, len(result.Metrics.StageTimings)),
	}
	for k, v := range result.Metrics.StageTimings {
		s.StageTimings[k] = v
	}

	r.mu.Lock()
	r.window[r.next] = s
	r.next = (r.next + 1) % len(r.window)
	if r.next == 0 {
		r.full = true
	}
	r.total++
	r.mu.Unlock()

	r.observe(result, s)
	r.logger.Debug("execution recorded",
		"request_id", result.RequestID,
		"strategy", s.Strategy,
		"success", s.Success,
		"duration", s.Total)
}

func (r *Recorder) observe(result *core.PipelineResult, s Sample) {
	status := "success"
	if !s.Success {
		status = "failure"
	}
	c := r.collectors
	c.executions.WithLabelValues(s.Strategy, status).Inc()
	c.executionDuration.WithLabelValues(s.Strategy).Observe(s.Total.Seconds())
	if s.Success {
		c.qualityScore.WithLabelValues(s.Strategy).Observe(s.Quality)
	}
	c.parallelEfficiency.Observe(s.ParallelEfficiency)
	c.cacheHits.Add(float64(result.Metrics.CacheHits))
	for stage, d := range s.StageTimings {
		c.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	}
	for _, f := range result.FallbacksUsed {
		c.fallbacks.WithLabelValues(f).Inc()
	}
	if s.FallbackUsed {
		c.fallbacks.WithLabelValues("legacy_strategy").Inc()
	}
}

// samples returns the live part of the window. Caller holds mu.
func (r *Recorder) samples() []Sample {
	if r.full {
		return r.window
	}
	return r.window[:r.next]
}

// Stats averages the current window.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples := r.samples()
	st := Stats{
		Samples:       len(samples),
		TotalRecorded: r.total,
		StageAverages: make(map[core.StageName]time.Duration),
		Strategies:    make(map[string]int),
	}
	if len(samples) == 0 {
		return st
	}

	var (
		total      time.Duration
		eff, cache float64
		quality    float64
		succeeded  int
		fallbacks  int
		stageSum   = make(map[core.StageName]time.Duration)
		stageCount = make(map[core.StageName]int)
	)
	for _, s := range samples {
		total += s.Total
		eff += s.ParallelEfficiency
		cache += s.CacheHitRate
		st.Strategies[s.Strategy]++
		if s.Success {
			succeeded++
			quality += s.Quality
		}
		if s.FallbackUsed {
			fallbacks++
		}
		for stage, d := range s.StageTimings {
			stageSum[stage] += d
			stageCount[stage]++
		}
	}

	n := float64(len(samples))
	st.AvgTotal = total / time.Duration(len(samples))
	st.AvgParallelEfficiency = eff / n
	st.AvgCacheHitRate = cache / n
	st.SuccessRate = float64(succeeded) / n
	st.FallbackRate = float64(fallbacks) / n
	if succeeded > 0 {
		st.AvgQuality = quality / float64(succeeded)
	}
	for stage, sum := range stageSum {
		st.StageAverages[stage] = sum / time.Duration(stageCount[stage])
	}
	return st
}

// Reset empties the window. Prometheus collectors keep their totals.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.window = make([]Sample, len(r.window))
	r.next = 0
	r.full = false
}

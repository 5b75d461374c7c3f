package core

import "time"

// PhaseTiming is the wall time of one phase.
type PhaseTiming struct {
	Stages   []StageName   `json:"stages"`
	Duration time.Duration `json:"duration"`
}

// PerformanceMetrics summarizes one execution.
type PerformanceMetrics struct {
	Total              time.Duration               `json:"total"`
	StageTimings       map[StageName]time.Duration `json:"stage_timings"`
	PhaseTimings       []PhaseTiming               `json:"phase_timings"`
	StagesRun          int                         `json:"stages_run"`
	ConcurrentStages   int                         `json:"concurrent_stages"`
	ParallelEfficiency float64                     `json:"parallel_efficiency"`
	CacheHits          int                         `json:"cache_hits"`
	FallbackAttempts   int                         `json:"fallback_attempts"`
}

// CacheHitRate is cache hits over stages run.
func (m PerformanceMetrics) CacheHitRate() float64 {
	if m.StagesRun == 0 {
		return 0
	}
	return float64(m.CacheHits) / float64(m.StagesRun)
}

// RolloutDecision explains why a pipeline variant handled a request.
type RolloutDecision struct {
	Strategy   string   `json:"strategy"`
	Confidence float64  `json:"confidence"`
	Reasoning  []string `json:"reasoning"`
}

// PipelineResult is the terminal outcome returned to the caller.
type PipelineResult struct {
	RequestID         string                     `json:"request_id"`
	PlanID            string                     `json:"plan_id,omitempty"`
	Success           bool                       `json:"success"`
	Content           string                     `json:"content"`
	QualityScore      float64                    `json:"quality_score"`
	QualityEstimated  bool                       `json:"quality_estimated"`
	FunctionsExecuted []string                   `json:"functions_executed"`
	FallbacksUsed     []string                   `json:"fallbacks_used"`
	Errors            []error                    `json:"-"`
	Warnings          []string                   `json:"warnings,omitempty"`
	BestEffort        bool                       `json:"best_effort"`
	Regenerated       bool                       `json:"regenerated"`
	Strategy          string                     `json:"strategy"`
	FallbackUsed      bool                       `json:"fallback_used"`
	Decision          *RolloutDecision           `json:"decision,omitempty"`
	Stages            map[StageName]*StageResult `json:"stages,omitempty"`
	Metrics           PerformanceMetrics         `json:"metrics"`
}

// ErrorMessages renders Errors for JSON output and logs.
func (r *PipelineResult) ErrorMessages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		out = append(out, err.Error())
	}
	return out
}

// Failed builds a terminal failure result.
func Failed(requestID, strategy string, errs ...error) *PipelineResult {
	return &PipelineResult{
		RequestID:         requestID,
		Strategy:          strategy,
		Errors:            errs,
		FunctionsExecuted: []string{},
		FallbacksUsed:     []string{},
		Metrics:           PerformanceMetrics{StageTimings: map[StageName]time.Duration{}},
	}
}

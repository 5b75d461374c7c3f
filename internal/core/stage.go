package core

import (
	"sync"
	"time"
)

// StageName identifies one of the four pipeline stages.
type StageName string

const (
	StageResearch StageName = "research"
	StageGenerate StageName = "generate"
	StageOptimize StageName = "optimize"
	StageValidate StageName = "validate"
)

// StageState is the per-stage state machine:
// Pending -> Running -> {Succeeded, Failed, Skipped, TimedOut}.
type StageState string

const (
	StatePending   StageState = "pending"
	StateRunning   StageState = "running"
	StateSucceeded StageState = "succeeded"
	StateFailed    StageState = "failed"
	StateSkipped   StageState = "skipped"
	StateTimedOut  StageState = "timed_out"
)

// Terminal reports whether the state is settled.
func (s StageState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSkipped, StateTimedOut:
		return true
	}
	return false
}

// StageOutput holds whichever payload the stage produced.
type StageOutput struct {
	Research     *ResearchOutput     `json:"research,omitempty"`
	Generation   *GenerationOutput   `json:"generation,omitempty"`
	Optimization *OptimizationOutput `json:"optimization,omitempty"`
	Validation   *ValidationOutput   `json:"validation,omitempty"`
}

// StageResult records the outcome of one stage.
type StageResult struct {
	StageID     string        `json:"stage_id"`
	Stage       StageName     `json:"stage"`
	State       StageState    `json:"state"`
	Output      StageOutput   `json:"output"`
	Success     bool          `json:"success"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	CacheHit    bool          `json:"cache_hit"`
	Attempts    int           `json:"attempts"`
	Substituted bool          `json:"substituted,omitempty"`
	Err         *StageError   `json:"-"`
}

// ExecutionContext accumulates stage results for a single execution. It is
// created per Execute call and never shared between requests; the mutex only
// covers stages of the same phase writing concurrently.
type ExecutionContext struct {
	mu      sync.RWMutex
	results map[StageName]*StageResult
}

func newExecutionContext() *ExecutionContext {
	return &ExecutionContext{results: make(map[StageName]*StageResult)}
}

func (c *ExecutionContext) put(r *StageResult) {
	c.mu.Lock()
	c.results[r.Stage] = r
	c.mu.Unlock()
}

// Get returns the settled result of a stage.
func (c *ExecutionContext) Get(stage StageName) (*StageResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[stage]
	return r, ok
}

func (c *ExecutionContext) succeeded(stage StageName) (*StageResult, bool) {
	r, ok := c.Get(stage)
	if !ok || !r.Success {
		return nil, false
	}
	return r, true
}

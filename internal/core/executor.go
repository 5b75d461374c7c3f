package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultQualityThreshold is the score below which the quality gate
	// considers a regeneration.
	DefaultQualityThreshold = 0.7
	// DefaultQualityEstimate is assumed when validation is unavailable.
	DefaultQualityEstimate = 0.75
)

// ExecutorConfig tunes composition and the quality gate.
type ExecutorConfig struct {
	QualityThreshold float64
	DefaultEstimate  float64
}

// Executor runs execution plans. It holds no per-request state, so one
// instance serves any number of concurrent requests.
type Executor struct {
	backends     Backends
	alternatives Backends
	controller   *FallbackController
	observer     Observer
	cache        *ResearchCache
	config       ExecutorConfig
	logger       *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithAlternatives registers simplified backends used by the "alternative"
// fallback action.
func WithAlternatives(alt Backends) ExecutorOption {
	return func(e *Executor) { e.alternatives = alt }
}

func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

func WithResearchCache(c *ResearchCache) ExecutorOption {
	return func(e *Executor) { e.cache = c }
}

func WithExecutorConfig(cfg ExecutorConfig) ExecutorOption {
	return func(e *Executor) { e.config = cfg }
}

func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor requires at least a generation backend.
func NewExecutor(backends Backends, opts ...ExecutorOption) (*Executor, error) {
	if backends.Generate == nil {
		return nil, fmt.Errorf("executor: generation backend is required")
	}
	e := &Executor{
		backends: backends,
		observer: NopObserver{},
		config: ExecutorConfig{
			QualityThreshold: DefaultQualityThreshold,
			DefaultEstimate:  DefaultQualityEstimate,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.config.QualityThreshold < 0 || e.config.QualityThreshold > 1 {
		return nil, fmt.Errorf("executor: quality threshold %.2f outside [0,1]", e.config.QualityThreshold)
	}
	if e.config.DefaultEstimate < 0 || e.config.DefaultEstimate > 1 {
		return nil, fmt.Errorf("executor: default estimate %.2f outside [0,1]", e.config.DefaultEstimate)
	}
	e.logger = e.logger.With("component", "plan_executor")
	e.controller = NewFallbackController(e.logger)
	return e, nil
}

// run is the state of one Execute call.
type run struct {
	e      *Executor
	plan   *ExecutionPlan
	req    ContentRequest
	ectx   *ExecutionContext
	budget *Budget

	mu         sync.Mutex
	errs       []error
	fallbacks  []string
	warnings   []string
	bestEffort bool
}

func (r *run) recordError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *run) recordFallback(name string) {
	r.mu.Lock()
	r.fallbacks = append(r.fallbacks, name)
	r.mu.Unlock()
}

func (r *run) warn(msg string) {
	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()
}

// Execute runs plan phase by phase. Only an unrecoverable generate failure
// makes the result unsuccessful; every other failure lands in Errors.
func (e *Executor) Execute(ctx context.Context, plan *ExecutionPlan, req ContentRequest) *PipelineResult {
	start := time.Now()
	maxChain := 0
	if plan.Fallback != nil && plan.Fallback.Enabled {
		maxChain = plan.Fallback.MaxChain
	}
	r := &run{
		e:      e,
		plan:   plan,
		req:    req,
		ectx:   newExecutionContext(),
		budget: NewBudget(maxChain),
	}

	e.logger.Info("executing plan",
		"plan_id", plan.ID,
		"request_id", req.ID,
		"phases", len(plan.Phases),
		"fallback", plan.FallbackName)
	e.observer.PlanStarted(plan)

	var phaseTimings []PhaseTiming
	generateFailed := false
	for _, phase := range plan.Phases {
		if err := ctx.Err(); err != nil {
			r.recordError(fmt.Errorf("execution interrupted: %w", err))
			break
		}
		phaseStart := time.Now()
		var g errgroup.Group
		for _, name := range phase {
			name := name
			g.Go(func() error {
				r.runStage(ctx, name)
				return nil
			})
		}
		_ = g.Wait()
		phaseTimings = append(phaseTimings, PhaseTiming{Stages: phase, Duration: time.Since(phaseStart)})

		if containsStage(phase, StageGenerate) {
			if _, ok := r.ectx.succeeded(StageGenerate); !ok {
				generateFailed = true
				break
			}
		}
	}

	result := r.compose(generateFailed)
	if result.Success {
		r.qualityGate(ctx, result)
	}

	r.mu.Lock()
	result.Errors = append(result.Errors, r.errs...)
	result.FallbacksUsed = append(result.FallbacksUsed, r.fallbacks...)
	result.Warnings = append(result.Warnings, r.warnings...)
	result.BestEffort = r.bestEffort
	r.mu.Unlock()

	result.Metrics = r.metrics(phaseTimings, time.Since(start))
	e.observer.PlanCompleted(plan, result)
	return result
}

func containsStage(phase []StageName, name StageName) bool {
	for _, s := range phase {
		if s == name {
			return true
		}
	}
	return false
}

// runStage drives one stage through Pending -> Running -> settled.
func (r *run) runStage(ctx context.Context, name StageName) {
	spec, ok := r.plan.Stage(name)
	if !ok {
		return
	}
	result := &StageResult{StageID: spec.ID, Stage: name, State: StatePending}

	if reason, skip := r.precondition(name); skip {
		result.State = StateSkipped
		result.StartedAt = time.Now()
		result.CompletedAt = result.StartedAt
		r.settle(result)
		r.e.logger.Debug("stage skipped", "plan_id", r.plan.ID, "stage", name, "reason", reason)
		return
	}

	result.State = StateRunning
	result.StartedAt = time.Now()

	if name == StageResearch && r.e.cache != nil {
		if cached, hit := r.e.cache.Get(r.req); hit {
			result.Output = StageOutput{Research: &cached}
			result.Success, result.CacheHit = true, true
			result.State = StateSucceeded
			result.CompletedAt = time.Now()
			result.Duration = result.CompletedAt.Sub(result.StartedAt)
			r.settle(result)
			return
		}
	}

	primary, alternative := r.calls(spec)
	out, serr := primary(ctx, 1)
	result.Attempts = 1

	if serr != nil && ctx.Err() == nil {
		rec := r.e.controller.Recover(ctx, r.plan.Fallback, Attempt{
			Stage:       spec,
			Failure:     serr,
			Primary:     primary,
			Alternative: alternative,
			Budget:      r.budget,
		})
		result.Attempts += rec.Attempts
		if rec.BestEffort {
			r.mu.Lock()
			r.bestEffort = true
			r.mu.Unlock()
		}
		switch {
		case rec.Succeeded:
			serr.Recoverable = true
			r.recordError(serr)
			r.recordFallback(string(name))
			out, serr = rec.Output, nil
			result.Substituted = rec.Substituted
		case rec.Skipped:
			r.recordError(rec.Err)
			result.Err = rec.Err
			result.State = StateSkipped
		default:
			serr = rec.Err
		}
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	switch {
	case result.State == StateSkipped:
	case serr == nil:
		result.Output = out
		result.Success = true
		result.State = StateSucceeded
		if name == StageResearch && r.e.cache != nil && out.Research != nil {
			r.e.cache.Set(r.req, *out.Research)
		}
	default:
		result.Err = serr
		result.State = StateFailed
		if errors.Is(serr, ErrStageTimeout) {
			result.State = StateTimedOut
		}
		r.recordError(serr)
		r.e.logger.Warn("stage failed",
			"plan_id", r.plan.ID,
			"stage", name,
			"attempts", result.Attempts,
			"error", serr)
	}
	r.settle(result)
}

func (r *run) settle(result *StageResult) {
	r.ectx.put(result)
	r.e.observer.StageSettled(r.plan, *result)
}

// precondition reports whether a stage must be skipped because what it
// depends on did not produce usable output.
func (r *run) precondition(name StageName) (string, bool) {
	switch name {
	case StageOptimize, StageValidate:
		gen, ok := r.ectx.succeeded(StageGenerate)
		if !ok || gen.Output.Generation == nil {
			return "generate produced no result", true
		}
		if strings.TrimSpace(gen.Output.Generation.Content) == "" {
			return "generate output is empty", true
		}
	}
	return "", false
}

// calls returns the primary and alternative invocations for a stage.
func (r *run) calls(spec StageSpec) (StageCall, StageCall) {
	switch spec.Name {
	case StageResearch:
		return r.researchCall(spec, r.e.backends.Research, true), r.researchCall(spec, r.e.alternatives.Research, false)
	case StageGenerate:
		gc := GenerationContext{}
		if r.plan.AwaitResearch {
			if res, ok := r.ectx.succeeded(StageResearch); ok {
				gc.Research = res.Output.Research
			}
		}
		return r.generateCall(spec, r.e.backends.Generate, gc, true), r.generateCall(spec, r.e.alternatives.Generate, gc, false)
	case StageOptimize:
		return r.optimizeCall(spec, r.e.backends.Optimize, true), r.optimizeCall(spec, r.e.alternatives.Optimize, false)
	case StageValidate:
		return r.validateCall(spec, r.e.backends.Validate, true), r.validateCall(spec, r.e.alternatives.Validate, false)
	}
	unknown := func(ctx context.Context, attempt int) (StageOutput, *StageError) {
		return StageOutput{}, NewStageError(spec.Name, ErrStageProvider, attempt, fmt.Errorf("unknown stage"))
	}
	return unknown, nil
}

func unavailable(stage StageName) StageCall {
	return func(ctx context.Context, attempt int) (StageOutput, *StageError) {
		return StageOutput{}, NewStageError(stage, ErrStageProvider, attempt, fmt.Errorf("no %s backend configured", stage))
	}
}

func (r *run) researchCall(spec StageSpec, b ResearchBackend, primary bool) StageCall {
	if b == nil {
		return missing(spec.Name, primary)
	}
	return func(ctx context.Context, attempt int) (StageOutput, *StageError) {
		out, err := race(ctx, spec.Timeout, func(c context.Context) (ResearchOutput, error) {
			return b.Research(c, r.req)
		})
		if err != nil {
			return StageOutput{}, classify(spec.Name, attempt, err)
		}
		return StageOutput{Research: &out}, nil
	}
}

func (r *run) generateCall(spec StageSpec, b GenerationBackend, gc GenerationContext, primary bool) StageCall {
	if b == nil {
		return missing(spec.Name, primary)
	}
	return func(ctx context.Context, attempt int) (StageOutput, *StageError) {
		out, err := race(ctx, spec.Timeout, func(c context.Context) (GenerationOutput, error) {
			return b.Generate(c, r.req, gc)
		})
		if err != nil {
			return StageOutput{}, classify(spec.Name, attempt, err)
		}
		if strings.TrimSpace(out.Content) == "" {
			return StageOutput{}, NewStageError(spec.Name, ErrStageInvalidOutput, attempt, errors.New("empty content"))
		}
		return StageOutput{Generation: &out}, nil
	}
}

func (r *run) optimizeCall(spec StageSpec, b OptimizationBackend, primary bool) StageCall {
	if b == nil {
		return missing(spec.Name, primary)
	}
	return func(ctx context.Context, attempt int) (StageOutput, *StageError) {
		content := r.generatedContent()
		out, err := race(ctx, spec.Timeout, func(c context.Context) (OptimizationOutput, error) {
			return b.Optimize(c, content, r.req)
		})
		if err != nil {
			return StageOutput{}, classify(spec.Name, attempt, err)
		}
		if strings.TrimSpace(out.OptimizedContent) == "" {
			return StageOutput{}, NewStageError(spec.Name, ErrStageInvalidOutput, attempt, errors.New("empty optimized content"))
		}
		return StageOutput{Optimization: &out}, nil
	}
}

func (r *run) validateCall(spec StageSpec, b ValidationBackend, primary bool) StageCall {
	if b == nil {
		return missing(spec.Name, primary)
	}
	return func(ctx context.Context, attempt int) (StageOutput, *StageError) {
		return r.validate(ctx, spec, b, r.generatedContent(), attempt)
	}
}

func (r *run) validate(ctx context.Context, spec StageSpec, b ValidationBackend, content string, attempt int) (StageOutput, *StageError) {
	vc := ValidationContext{Request: r.req}
	if res, ok := r.ectx.succeeded(StageResearch); ok {
		vc.Research = res.Output.Research
	}
	out, err := race(ctx, spec.Timeout, func(c context.Context) (ValidationOutput, error) {
		return b.Validate(c, content, vc)
	})
	if err != nil {
		return StageOutput{}, classify(spec.Name, attempt, err)
	}
	if math.IsNaN(out.OverallScore) || out.OverallScore < 0 || out.OverallScore > 1 {
		return StageOutput{}, NewStageError(spec.Name, ErrStageInvalidOutput, attempt,
			fmt.Errorf("score %v outside [0,1]", out.OverallScore))
	}
	return StageOutput{Validation: &out}, nil
}

// missing yields no alternative for an absent fallback backend and a
// failing call for an absent primary one.
func missing(stage StageName, primary bool) StageCall {
	if primary {
		return unavailable(stage)
	}
	return nil
}

func (r *run) generatedContent() string {
	gen, ok := r.ectx.succeeded(StageGenerate)
	if !ok || gen.Output.Generation == nil {
		return ""
	}
	return gen.Output.Generation.Content
}

// compose assembles the result from whatever succeeded.
func (r *run) compose(generateFailed bool) *PipelineResult {
	result := &PipelineResult{
		RequestID:         r.req.ID,
		PlanID:            r.plan.ID,
		Strategy:          "new_architecture",
		FunctionsExecuted: []string{},
		FallbacksUsed:     []string{},
		Stages:            make(map[StageName]*StageResult),
	}
	for _, s := range r.plan.Stages {
		if sr, ok := r.ectx.Get(s.Name); ok {
			result.Stages[s.Name] = sr
			if sr.State != StateSkipped || sr.Attempts > 0 {
				result.FunctionsExecuted = append(result.FunctionsExecuted, string(s.Name))
			}
		}
	}

	gen, ok := r.ectx.succeeded(StageGenerate)
	if generateFailed || !ok {
		cause := error(fmt.Errorf("generate did not run"))
		if sr, found := r.ectx.Get(StageGenerate); found && sr.Err != nil {
			cause = sr.Err
		}
		r.recordError(&PlanError{PlanID: r.plan.ID, Stage: StageGenerate, Cause: cause})
		return result
	}

	result.Success = true
	result.Content = gen.Output.Generation.Content
	if opt, ok := r.ectx.succeeded(StageOptimize); ok && opt.Output.Optimization != nil {
		result.Content = opt.Output.Optimization.OptimizedContent
	}
	if val, ok := r.ectx.succeeded(StageValidate); ok && val.Output.Validation != nil {
		result.QualityScore = val.Output.Validation.OverallScore
	} else {
		result.QualityScore = r.e.config.DefaultEstimate
		result.QualityEstimated = true
	}
	return result
}

func (r *run) metrics(phases []PhaseTiming, total time.Duration) PerformanceMetrics {
	m := PerformanceMetrics{
		Total:            total,
		StageTimings:     make(map[StageName]time.Duration),
		PhaseTimings:     phases,
		FallbackAttempts: r.budget.Used(),
	}
	for _, phase := range phases {
		ran := 0
		for _, name := range phase.Stages {
			sr, ok := r.ectx.Get(name)
			if !ok || (sr.State == StateSkipped && sr.Attempts == 0) {
				continue
			}
			ran++
			m.StageTimings[name] = sr.Duration
			if sr.CacheHit {
				m.CacheHits++
			}
		}
		m.StagesRun += ran
		if ran > 1 {
			m.ConcurrentStages += ran
		}
	}
	if m.StagesRun > 0 {
		m.ParallelEfficiency = float64(m.ConcurrentStages) / float64(m.StagesRun)
	}
	return m
}

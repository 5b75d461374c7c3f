package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DurationHeuristic scales the summed stage timeouts into an estimate. Stages
// rarely run to their deadline and optimize/validate overlap.
const DurationHeuristic = 0.7

// StageSpec describes one planned stage.
type StageSpec struct {
	ID       string            `json:"id"`
	Name     StageName         `json:"name"`
	Required bool              `json:"required"`
	Timeout  time.Duration     `json:"timeout"`
	Retries  int               `json:"retries"`
	Config   map[string]string `json:"config,omitempty"`
}

// ExecutionPlan is built fresh per request and discarded afterwards.
type ExecutionPlan struct {
	ID                string                    `json:"id"`
	RequestID         string                    `json:"request_id"`
	Stages            []StageSpec               `json:"stages"`
	Phases            [][]StageName             `json:"phases"`
	Dependencies      map[StageName][]StageName `json:"dependencies"`
	Fallback          *FallbackStrategy         `json:"-"`
	FallbackName      string                    `json:"fallback"`
	EstimatedDuration time.Duration             `json:"estimated_duration"`
	// AwaitResearch is true when generate waits for research output.
	AwaitResearch bool `json:"await_research"`
}

// Stage returns the spec for a stage name.
func (p *ExecutionPlan) Stage(name StageName) (StageSpec, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageSpec{}, false
}

// Has reports whether a stage is planned.
func (p *ExecutionPlan) Has(name StageName) bool {
	_, ok := p.Stage(name)
	return ok
}

// StageSettings are the per-stage timeout and retry defaults.
type StageSettings struct {
	Timeout time.Duration
	Retries int
}

// PlanConfig configures the builder.
type PlanConfig struct {
	Stages          map[StageName]StageSettings
	DefaultStrategy string
}

// DefaultPlanConfig mirrors the defaults of the config package.
func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		Stages: map[StageName]StageSettings{
			StageResearch: {Timeout: 20 * time.Second},
			StageGenerate: {Timeout: 60 * time.Second, Retries: 1},
			StageOptimize: {Timeout: 30 * time.Second},
			StageValidate: {Timeout: 15 * time.Second},
		},
		DefaultStrategy: "default",
	}
}

// BuildOption adjusts a single Build call.
type BuildOption func(*buildOptions)

type buildOptions struct {
	skip     map[StageName]bool
	strategy string
}

// WithSkip omits stages from the plan.
func WithSkip(stages ...StageName) BuildOption {
	return func(o *buildOptions) {
		for _, s := range stages {
			o.skip[s] = true
		}
	}
}

// WithStrategy overrides the fallback strategy by name.
func WithStrategy(name string) BuildOption {
	return func(o *buildOptions) { o.strategy = name }
}

// PlanBuilder turns requests into execution plans.
type PlanBuilder struct {
	config   PlanConfig
	registry *FallbackRegistry
	catalog  *Catalog
}

func NewPlanBuilder(config PlanConfig, registry *FallbackRegistry, catalog *Catalog) *PlanBuilder {
	if registry == nil {
		registry = NewFallbackRegistry()
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if config.DefaultStrategy == "" {
		config.DefaultStrategy = "default"
	}
	return &PlanBuilder{config: config, registry: registry, catalog: catalog}
}

// Build creates the plan for req. It only fails with ErrInvalidRequest.
func (b *PlanBuilder) Build(req ContentRequest, opts ...BuildOption) (*ExecutionPlan, error) {
	o := buildOptions{skip: make(map[StageName]bool), strategy: b.config.DefaultStrategy}
	for _, opt := range opts {
		opt(&o)
	}

	if err := ValidateRequest(req, b.catalog); err != nil {
		return nil, err
	}
	if o.skip[StageGenerate] {
		return nil, invalidRequest("skip", "generate cannot be skipped")
	}
	strategy, ok := b.registry.Lookup(o.strategy)
	if !ok {
		return nil, invalidRequest("strategy", fmt.Sprintf("unknown fallback strategy %q", o.strategy))
	}

	plan := &ExecutionPlan{
		ID:           uuid.New().String(),
		RequestID:    req.ID,
		Dependencies: make(map[StageName][]StageName),
		Fallback:     strategy,
		FallbackName: strategy.Name,
	}

	research := req.Flags.EnableResearch && !o.skip[StageResearch]
	plan.AwaitResearch = research && !req.Flags.ImmediateGeneration

	profile, _ := b.catalog.ContentType(req.ContentType)
	words := req.WordCount
	if words == 0 {
		words = profile.DefaultWordCount
	}

	if research {
		plan.Stages = append(plan.Stages, b.spec(StageResearch, false, map[string]string{
			"await": strconv.FormatBool(plan.AwaitResearch),
		}))
	}
	plan.Stages = append(plan.Stages, b.spec(StageGenerate, true, map[string]string{
		"content_type": string(req.ContentType),
		"tone":         b.catalog.ToneLabel(req.Tone, req.TargetLanguage),
		"language":     req.TargetLanguage,
		"word_count":   strconv.Itoa(words),
	}))
	if !o.skip[StageOptimize] {
		plan.Stages = append(plan.Stages, b.spec(StageOptimize, false, nil))
	}
	if !o.skip[StageValidate] {
		plan.Stages = append(plan.Stages, b.spec(StageValidate, true, map[string]string{
			"precondition": "non_empty_generation",
		}))
	}

	switch {
	case plan.AwaitResearch:
		plan.Phases = append(plan.Phases, []StageName{StageResearch}, []StageName{StageGenerate})
		plan.Dependencies[StageGenerate] = []StageName{StageResearch}
	case research:
		plan.Phases = append(plan.Phases, []StageName{StageResearch, StageGenerate})
	default:
		plan.Phases = append(plan.Phases, []StageName{StageGenerate})
	}

	var post []StageName
	for _, s := range []StageName{StageOptimize, StageValidate} {
		if plan.Has(s) {
			post = append(post, s)
			plan.Dependencies[s] = []StageName{StageGenerate}
		}
	}
	if len(post) > 0 {
		plan.Phases = append(plan.Phases, post)
	}

	var total time.Duration
	for _, s := range plan.Stages {
		total += s.Timeout
	}
	plan.EstimatedDuration = time.Duration(float64(total) * DurationHeuristic)

	return plan, nil
}

func (b *PlanBuilder) spec(name StageName, required bool, cfg map[string]string) StageSpec {
	settings := b.config.Stages[name]
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultPlanConfig().Stages[name].Timeout
	}
	return StageSpec{
		ID:       string(name) + "-" + uuid.NewString()[:8],
		Name:     name,
		Required: required,
		Timeout:  settings.Timeout,
		Retries:  settings.Retries,
		Config:   cfg,
	}
}

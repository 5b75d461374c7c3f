package core

import "context"

// ResearchOutput is the result of the research stage.
type ResearchOutput struct {
	Sources         []string `json:"sources"`
	EnrichedContent string   `json:"enriched_content"`
}

// QualityFeedback is fed back into generate by the quality gate.
type QualityFeedback struct {
	PreviousContent string             `json:"previous_content"`
	PreviousScore   float64            `json:"previous_score"`
	Threshold       float64            `json:"threshold"`
	Details         map[string]float64 `json:"details,omitempty"`
}

// GenerationContext carries optional inputs for generate.
type GenerationContext struct {
	Research *ResearchOutput
	Feedback *QualityFeedback
}

// GenerationOutput is the result of the generate stage.
type GenerationOutput struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OptimizationOutput is the result of the optimize stage.
type OptimizationOutput struct {
	OptimizedContent string   `json:"optimized_content"`
	Changes          []string `json:"changes,omitempty"`
	Confidence       float64  `json:"confidence"`
}

// ValidationContext is what the validator sees besides the content.
type ValidationContext struct {
	Request  ContentRequest
	Research *ResearchOutput
}

// ValidationOutput is the result of the validate stage.
type ValidationOutput struct {
	OverallScore float64            `json:"overall_score"`
	Details      map[string]float64 `json:"details,omitempty"`
}

type ResearchBackend interface {
	Research(ctx context.Context, req ContentRequest) (ResearchOutput, error)
}

type GenerationBackend interface {
	Generate(ctx context.Context, req ContentRequest, gc GenerationContext) (GenerationOutput, error)
}

type OptimizationBackend interface {
	Optimize(ctx context.Context, content string, req ContentRequest) (OptimizationOutput, error)
}

type ValidationBackend interface {
	Validate(ctx context.Context, content string, vc ValidationContext) (ValidationOutput, error)
}

// Backends bundles the stage implementations. Nil entries mean the stage is
// unavailable; a nil Generate is a configuration error.
type Backends struct {
	Research ResearchBackend
	Generate GenerationBackend
	Optimize OptimizationBackend
	Validate ValidationBackend
}

// Function adapters, handy for wiring closures and test stubs.

type ResearchFunc func(ctx context.Context, req ContentRequest) (ResearchOutput, error)

func (f ResearchFunc) Research(ctx context.Context, req ContentRequest) (ResearchOutput, error) {
	return f(ctx, req)
}

type GenerateFunc func(ctx context.Context, req ContentRequest, gc GenerationContext) (GenerationOutput, error)

func (f GenerateFunc) Generate(ctx context.Context, req ContentRequest, gc GenerationContext) (GenerationOutput, error) {
	return f(ctx, req, gc)
}

type OptimizeFunc func(ctx context.Context, content string, req ContentRequest) (OptimizationOutput, error)

func (f OptimizeFunc) Optimize(ctx context.Context, content string, req ContentRequest) (OptimizationOutput, error) {
	return f(ctx, content, req)
}

type ValidateFunc func(ctx context.Context, content string, vc ValidationContext) (ValidationOutput, error)

func (f ValidateFunc) Validate(ctx context.Context, content string, vc ValidationContext) (ValidationOutput, error) {
	return f(ctx, content, vc)
}

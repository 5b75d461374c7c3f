package agent

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dotcommander/contentorc/internal/core"
)

// Prompt names, matching files under prompts/.
const (
	PromptResearch      = "research"
	PromptGenerate      = "generate"
	PromptGenerateBrief = "generate_brief"
	PromptOptimize      = "optimize"
	PromptValidate      = "validate"
)

// stages adapts an Agent to the four stage backends.
type stages struct {
	agent *Agent
}

// NewBackends returns AI-backed implementations of every stage.
func NewBackends(a *Agent) core.Backends {
	s := &stages{agent: a}
	return core.Backends{Research: s, Generate: s, Optimize: s, Validate: s}
}

// NewAlternatives returns the simplified backends used when a primary stage
// fails: a short single-shot prompt for generation and nothing else.
func NewAlternatives(a *Agent) core.Backends {
	return core.Backends{Generate: &briefGenerator{agent: a}}
}

func (s *stages) Research(ctx context.Context, req core.ContentRequest) (core.ResearchOutput, error) {
	var resp struct {
		Sources []string `json:"sources"`
		Summary string   `json:"summary"`
	}
	if err := s.agent.ExecuteJSON(ctx, PromptResearch, s.agent.data(req), &resp); err != nil {
		return core.ResearchOutput{}, err
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return core.ResearchOutput{}, fmt.Errorf("%w: research summary is empty", core.ErrStageInvalidOutput)
	}
	return core.ResearchOutput{Sources: resp.Sources, EnrichedContent: resp.Summary}, nil
}

func (s *stages) Generate(ctx context.Context, req core.ContentRequest, gc core.GenerationContext) (core.GenerationOutput, error) {
	data := s.agent.data(req)
	data.Research = gc.Research
	data.Feedback = gc.Feedback
	content, err := s.agent.Execute(ctx, PromptGenerate, data)
	if err != nil {
		return core.GenerationOutput{}, err
	}
	return core.GenerationOutput{
		Content: strings.TrimSpace(content),
		Metadata: map[string]string{
			"prompt":        PromptGenerate,
			"with_research": fmt.Sprint(gc.Research != nil),
			"regeneration":  fmt.Sprint(gc.Feedback != nil),
			"word_estimate": fmt.Sprint(len(strings.Fields(content))),
		},
	}, nil
}

func (s *stages) Optimize(ctx context.Context, content string, req core.ContentRequest) (core.OptimizationOutput, error) {
	data := s.agent.data(req)
	data.Content = content
	var resp struct {
		Content    string   `json:"content"`
		Changes    []string `json:"changes"`
		Confidence float64  `json:"confidence"`
	}
	if err := s.agent.ExecuteJSON(ctx, PromptOptimize, data, &resp); err != nil {
		return core.OptimizationOutput{}, err
	}
	return core.OptimizationOutput{
		OptimizedContent: resp.Content,
		Changes:          resp.Changes,
		Confidence:       clamp(resp.Confidence),
	}, nil
}

func (s *stages) Validate(ctx context.Context, content string, vc core.ValidationContext) (core.ValidationOutput, error) {
	data := s.agent.data(vc.Request)
	data.Content = content
	data.Research = vc.Research
	var resp struct {
		OverallScore float64            `json:"overall_score"`
		Details      map[string]float64 `json:"details"`
	}
	if err := s.agent.ExecuteJSON(ctx, PromptValidate, data, &resp); err != nil {
		return core.ValidationOutput{}, err
	}
	return core.ValidationOutput{OverallScore: resp.OverallScore, Details: resp.Details}, nil
}

type briefGenerator struct {
	agent *Agent
}

func (b *briefGenerator) Generate(ctx context.Context, req core.ContentRequest, _ core.GenerationContext) (core.GenerationOutput, error) {
	content, err := b.agent.Execute(ctx, PromptGenerateBrief, b.agent.data(req))
	if err != nil {
		return core.GenerationOutput{}, err
	}
	return core.GenerationOutput{
		Content:  strings.TrimSpace(content),
		Metadata: map[string]string{"prompt": PromptGenerateBrief},
	}, nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

package core

import (
	"context"
	"log/slog"
)

// Pipeline is the planned, phase-based generation path ("new architecture").
type Pipeline struct {
	builder  *PlanBuilder
	executor *Executor
	opts     []BuildOption
	logger   *slog.Logger
}

// NewPipeline pairs a builder with an executor. opts are applied to every
// Build call.
func NewPipeline(builder *PlanBuilder, executor *Executor, logger *slog.Logger, opts ...BuildOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		builder:  builder,
		executor: executor,
		opts:     opts,
		logger:   logger.With("component", "pipeline"),
	}
}

// Name identifies the pipeline variant.
func (p *Pipeline) Name() string { return "new_architecture" }

// Run plans and executes req. The error is non-nil only for a malformed
// request; runtime failures come back as an unsuccessful result.
func (p *Pipeline) Run(ctx context.Context, req ContentRequest) (*PipelineResult, error) {
	plan, err := p.builder.Build(req, p.opts...)
	if err != nil {
		p.logger.Warn("request rejected", "request_id", req.ID, "error", err)
		return nil, err
	}
	return p.executor.Execute(ctx, plan, req), nil
}

// Plan exposes the plan that Run would execute.
func (p *Pipeline) Plan(req ContentRequest, opts ...BuildOption) (*ExecutionPlan, error) {
	return p.builder.Build(req, append(append([]BuildOption{}, p.opts...), opts...)...)
}

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/contentorc/internal/core"
)

// Pipeline is a complete content-generation path.
type Pipeline interface {
	Run(ctx context.Context, req core.ContentRequest) (*core.PipelineResult, error)
}

// Options are per-call routing options.
type Options struct {
	// Override forces a strategy: legacy, new_architecture or hybrid.
	Override string
}

// Router selects a strategy and runs it. A failing new-architecture run is
// retried once through legacy; legacy failures are terminal.
type Router struct {
	selector *Selector
	legacy   Pipeline
	modern   Pipeline
	catalog  *core.Catalog
	margin   float64
	logger   *slog.Logger
}

func New(selector *Selector, legacy, modern Pipeline, catalog *core.Catalog, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		selector: selector,
		legacy:   legacy,
		modern:   modern,
		catalog:  catalog,
		margin:   selector.cfg.HybridMargin,
		logger:   logger.With("component", "hybrid_router"),
	}
}

// Route returns a structured result for every runtime outcome. The error is
// non-nil only for a malformed request or an unknown override.
func (r *Router) Route(ctx context.Context, req core.ContentRequest, opts Options) (*core.PipelineResult, error) {
	if err := core.ValidateRequest(req, r.catalog); err != nil {
		return nil, err
	}
	switch opts.Override {
	case "", StrategyLegacy, StrategyNew, StrategyHybrid:
	default:
		return nil, &core.RequestError{Field: "strategy", Message: fmt.Sprintf("unknown value %q", opts.Override)}
	}

	decision := r.selector.Select(req, opts.Override)

	var (
		result *core.PipelineResult
		err    error
	)
	switch decision.Strategy {
	case StrategyNew:
		result, err = r.withLegacyFallback(ctx, req)
	case StrategyHybrid:
		result, err = r.hybrid(ctx, req, &decision)
	default:
		result, err = r.runLegacy(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	result.Decision = &decision
	r.logger.Info("request routed",
		"request_id", req.ID,
		"strategy", decision.Strategy,
		"served_by", result.Strategy,
		"success", result.Success,
		"fallback_used", result.FallbackUsed,
		"quality", result.QualityScore)
	return result, nil
}

func (r *Router) runLegacy(ctx context.Context, req core.ContentRequest) (*core.PipelineResult, error) {
	res, err := run(ctx, r.legacy, req)
	if errors.Is(err, core.ErrInvalidRequest) {
		return nil, err
	}
	if err != nil {
		return core.Failed(req.ID, StrategyLegacy, err), nil
	}
	return res, nil
}

// withLegacyFallback runs the new architecture and, if it errors, panics or
// reports failure, gives legacy exactly one chance.
func (r *Router) withLegacyFallback(ctx context.Context, req core.ContentRequest) (*core.PipelineResult, error) {
	res, err := run(ctx, r.modern, req)
	if errors.Is(err, core.ErrInvalidRequest) {
		return nil, err
	}
	if err == nil && res.Success {
		return res, nil
	}

	var cause []error
	if err != nil {
		cause = append(cause, err)
	} else {
		cause = append(cause, res.Errors...)
	}
	r.logger.Warn("new architecture failed, falling back to legacy",
		"request_id", req.ID,
		"errors", len(cause))

	fallback, lerr := run(ctx, r.legacy, req)
	if lerr != nil || !fallback.Success {
		failed := core.Failed(req.ID, StrategyLegacy, cause...)
		if lerr != nil {
			failed.Errors = append(failed.Errors, lerr)
		} else {
			failed.Errors = append(failed.Errors, fallback.Errors...)
		}
		failed.FallbackUsed = true
		return failed, nil
	}

	fallback.FallbackUsed = true
	fallback.Errors = append(cause, fallback.Errors...)
	fallback.Warnings = append(fallback.Warnings, "new architecture failed; served by legacy")
	return fallback, nil
}

// hybrid runs both variants concurrently and keeps the new architecture
// unless it trails legacy by more than the margin.
func (r *Router) hybrid(ctx context.Context, req core.ContentRequest, decision *core.RolloutDecision) (*core.PipelineResult, error) {
	var (
		g                    errgroup.Group
		modern, legacy       *core.PipelineResult
		modernErr, legacyErr error
	)
	g.Go(func() error {
		modern, modernErr = run(ctx, r.modern, req)
		return nil
	})
	g.Go(func() error {
		legacy, legacyErr = run(ctx, r.legacy, req)
		return nil
	})
	_ = g.Wait()

	if errors.Is(modernErr, core.ErrInvalidRequest) {
		return nil, modernErr
	}
	if errors.Is(legacyErr, core.ErrInvalidRequest) {
		return nil, legacyErr
	}

	modernOK := modernErr == nil && modern.Success
	legacyOK := legacyErr == nil && legacy.Success

	switch {
	case modernOK && legacyOK:
		if modern.QualityScore < legacy.QualityScore-r.margin {
			decision.Reasoning = append(decision.Reasoning, fmt.Sprintf(
				"hybrid: new %.2f trails legacy %.2f by more than %.2f, using legacy",
				modern.QualityScore, legacy.QualityScore, r.margin))
			return legacy, nil
		}
		decision.Reasoning = append(decision.Reasoning, fmt.Sprintf(
			"hybrid: new %.2f within %.2f of legacy %.2f, using new architecture",
			modern.QualityScore, r.margin, legacy.QualityScore))
		return modern, nil
	case modernOK:
		decision.Reasoning = append(decision.Reasoning, "hybrid: legacy failed, using new architecture")
		return modern, nil
	case legacyOK:
		decision.Reasoning = append(decision.Reasoning, "hybrid: new architecture failed, using legacy")
		legacy.FallbackUsed = true
		return legacy, nil
	}

	decision.Reasoning = append(decision.Reasoning, "hybrid: both strategies failed")
	errs := []error{core.ErrAllStrategiesFailed}
	errs = append(errs, collect(modern, modernErr)...)
	errs = append(errs, collect(legacy, legacyErr)...)
	return core.Failed(req.ID, StrategyHybrid, errs...), nil
}

func collect(res *core.PipelineResult, err error) []error {
	if err != nil {
		return []error{err}
	}
	if res != nil {
		return res.Errors
	}
	return nil
}

// run calls p and turns a panic or a nil result into an error.
func run(ctx context.Context, p Pipeline, req core.ContentRequest) (res *core.PipelineResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, fmt.Errorf("pipeline panic: %v", rec)
		}
	}()
	res, err = p.Run(ctx, req)
	if err == nil && res == nil {
		err = errors.New("pipeline returned no result")
	}
	return res, err
}

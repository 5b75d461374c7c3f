package core

import (
	"context"
	"fmt"
)

// qualityGate runs at most one regeneration when validation scored the
// content below threshold. The regenerated content replaces the original
// only when it scores strictly higher.
func (r *run) qualityGate(ctx context.Context, result *PipelineResult) {
	threshold := r.e.config.QualityThreshold
	if result.QualityEstimated || result.QualityScore >= threshold {
		return
	}

	original := result.QualityScore
	strategy := r.plan.Fallback
	if strategy == nil || !strategy.Enabled || !strategy.AllowRegeneration {
		r.warn(fmt.Sprintf("quality %.2f below threshold %.2f; regeneration disabled by %s strategy", original, threshold, r.plan.FallbackName))
		r.e.observer.QualityWarning(r.plan, original, original, threshold)
		return
	}
	if !r.budget.Take() {
		r.warn(fmt.Sprintf("quality %.2f below threshold %.2f; fallback budget exhausted", original, threshold))
		r.e.observer.QualityWarning(r.plan, original, original, threshold)
		return
	}

	genSpec, _ := r.plan.Stage(StageGenerate)
	valSpec, _ := r.plan.Stage(StageValidate)
	validator := r.e.backends.Validate
	if validator == nil {
		validator = r.e.alternatives.Validate
	}

	var details map[string]float64
	if val, ok := r.ectx.succeeded(StageValidate); ok && val.Output.Validation != nil {
		details = val.Output.Validation.Details
	}
	gc := GenerationContext{Feedback: &QualityFeedback{
		PreviousContent: result.Content,
		PreviousScore:   original,
		Threshold:       threshold,
		Details:         details,
	}}
	if r.plan.AwaitResearch {
		if res, ok := r.ectx.succeeded(StageResearch); ok {
			gc.Research = res.Output.Research
		}
	}

	r.e.logger.Info("quality below threshold, regenerating",
		"plan_id", r.plan.ID,
		"score", original,
		"threshold", threshold)

	regen := r.generateCall(genSpec, r.e.backends.Generate, gc, true)
	out, serr := regen(ctx, 1)
	if serr != nil {
		r.recordError(serr)
		r.warn(fmt.Sprintf("quality %.2f below threshold %.2f; regeneration failed", original, threshold))
		r.e.observer.QualityWarning(r.plan, original, 0, threshold)
		return
	}
	content := out.Generation.Content

	scored, verr := r.validate(ctx, valSpec, validator, content, 1)
	if verr != nil {
		verr.Recoverable = true
		r.recordError(verr)
		r.warn(fmt.Sprintf("quality %.2f below threshold %.2f; regenerated content could not be validated", original, threshold))
		r.e.observer.QualityWarning(r.plan, original, 0, threshold)
		return
	}
	score := scored.Validation.OverallScore

	if score > original {
		result.Content = content
		result.QualityScore = score
		result.Regenerated = true
		r.recordFallback("quality_regeneration")
		r.e.logger.Info("regenerated content adopted",
			"plan_id", r.plan.ID,
			"previous_score", original,
			"score", score)
		if score < threshold {
			r.warn(fmt.Sprintf("quality %.2f still below threshold %.2f after regeneration", score, threshold))
		}
		return
	}

	r.warn(fmt.Sprintf("quality %.2f below threshold %.2f; regeneration scored %.2f, keeping original", original, threshold, score))
	r.e.observer.QualityWarning(r.plan, original, score, threshold)
}

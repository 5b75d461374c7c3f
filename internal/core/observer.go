package core

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives progress notifications from the executor. Stage
// notifications arrive from concurrent goroutines, so implementations must
// be safe for concurrent use.
type Observer interface {
	PlanStarted(plan *ExecutionPlan)
	StageSettled(plan *ExecutionPlan, result StageResult)
	QualityWarning(plan *ExecutionPlan, original, attempted, threshold float64)
	PlanCompleted(plan *ExecutionPlan, result *PipelineResult)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) PlanStarted(*ExecutionPlan)                              {}
func (NopObserver) StageSettled(*ExecutionPlan, StageResult)                {}
func (NopObserver) QualityWarning(*ExecutionPlan, float64, float64, float64) {}
func (NopObserver) PlanCompleted(*ExecutionPlan, *PipelineResult)           {}

// LogObserver writes notifications to a slog logger.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger.With("component", "progress")}
}

func (o *LogObserver) PlanStarted(plan *ExecutionPlan) {
	o.logger.Info("plan started",
		"plan_id", plan.ID,
		"stages", len(plan.Stages),
		"phases", len(plan.Phases),
		"estimated", plan.EstimatedDuration)
}

func (o *LogObserver) StageSettled(plan *ExecutionPlan, r StageResult) {
	attrs := []any{
		"plan_id", plan.ID,
		"stage", r.Stage,
		"state", r.State,
		"duration_ms", r.Duration.Milliseconds(),
		"attempts", r.Attempts,
		"cache_hit", r.CacheHit,
	}
	if r.Err != nil {
		attrs = append(attrs, "error", r.Err)
	}
	o.logger.Info("stage settled", attrs...)
}

func (o *LogObserver) QualityWarning(plan *ExecutionPlan, original, attempted, threshold float64) {
	o.logger.Warn("quality below threshold after regeneration",
		"plan_id", plan.ID,
		"original_score", original,
		"regenerated_score", attempted,
		"threshold", threshold)
}

func (o *LogObserver) PlanCompleted(plan *ExecutionPlan, result *PipelineResult) {
	o.logger.Info("plan completed",
		"plan_id", plan.ID,
		"success", result.Success,
		"quality", result.QualityScore,
		"fallbacks", result.FallbacksUsed,
		"duration_ms", result.Metrics.Total.Milliseconds())
}

// EventType names a progress notification.
type EventType string

const (
	EventPlanStarted    EventType = "plan.started"
	EventStageSettled   EventType = "stage.settled"
	EventQualityWarning EventType = "quality.warning"
	EventPlanCompleted  EventType = "plan.completed"
)

// Event is what ChannelObserver emits.
type Event struct {
	Type      EventType       `json:"type"`
	PlanID    string          `json:"plan_id"`
	Timestamp time.Time       `json:"timestamp"`
	Stage     *StageResult    `json:"stage,omitempty"`
	Result    *PipelineResult `json:"result,omitempty"`
	Scores    []float64       `json:"scores,omitempty"`
}

// ChannelObserver forwards notifications onto a channel without blocking the
// executor. Events are dropped when the buffer is full.
type ChannelObserver struct {
	events  chan Event
	dropped atomic.Int64
}

func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelObserver{events: make(chan Event, buffer)}
}

// Events is the receive side.
func (o *ChannelObserver) Events() <-chan Event { return o.events }

// Dropped counts events lost to a full buffer.
func (o *ChannelObserver) Dropped() int64 { return o.dropped.Load() }

func (o *ChannelObserver) send(e Event) {
	e.Timestamp = time.Now()
	select {
	case o.events <- e:
	default:
		o.dropped.Add(1)
	}
}

func (o *ChannelObserver) PlanStarted(plan *ExecutionPlan) {
	o.send(Event{Type: EventPlanStarted, PlanID: plan.ID})
}

func (o *ChannelObserver) StageSettled(plan *ExecutionPlan, r StageResult) {
	o.send(Event{Type: EventStageSettled, PlanID: plan.ID, Stage: &r})
}

func (o *ChannelObserver) QualityWarning(plan *ExecutionPlan, original, attempted, threshold float64) {
	o.send(Event{Type: EventQualityWarning, PlanID: plan.ID, Scores: []float64{original, attempted, threshold}})
}

func (o *ChannelObserver) PlanCompleted(plan *ExecutionPlan, result *PipelineResult) {
	o.send(Event{Type: EventPlanCompleted, PlanID: plan.ID, Result: result})
}

// MultiObserver fans notifications out to several observers.
type MultiObserver []Observer

func (m MultiObserver) PlanStarted(plan *ExecutionPlan) {
	for _, o := range m {
		o.PlanStarted(plan)
	}
}

func (m MultiObserver) StageSettled(plan *ExecutionPlan, r StageResult) {
	for _, o := range m {
		o.StageSettled(plan, r)
	}
}

func (m MultiObserver) QualityWarning(plan *ExecutionPlan, original, attempted, threshold float64) {
	for _, o := range m {
		o.QualityWarning(plan, original, attempted, threshold)
	}
}

func (m MultiObserver) PlanCompleted(plan *ExecutionPlan, result *PipelineResult) {
	for _, o := range m {
		o.PlanCompleted(plan, result)
	}
}

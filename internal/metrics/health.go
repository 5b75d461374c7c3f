package metrics

import (
	"fmt"
	"time"

	"github.com/dotcommander/contentorc/internal/core"
)

// HealthStatus represents the current health state of the orchestrator
type HealthStatus string

const (
	// HealthStatusHealthy indicates every check passed
	HealthStatusHealthy HealthStatus = "healthy"

	// HealthStatusDegraded indicates at least one check failed
	HealthStatusDegraded HealthStatus = "degraded"
)

// HealthCheck represents a single health check result
type HealthCheck struct {
	// Name of the health check
	Name string `json:"name"`

	// Status of this specific check
	Status HealthStatus `json:"status"`

	// Message provides additional context
	Message string `json:"message,omitempty"`

	// Observed and Limit are the compared values, in the check's unit.
	Observed float64 `json:"observed"`
	Limit    float64 `json:"limit"`
}

// HealthReport is the health predicate with the checks behind it.
type HealthReport struct {
	// Overall status (worst of all checks)
	Status HealthStatus `json:"status"`

	// Individual health checks
	Checks []HealthCheck `json:"checks"`

	// Timestamp of the report
	Timestamp time.Time `json:"timestamp"`

	// Samples is how many executions the averages are drawn from.
	Samples int `json:"samples"`
}

// Healthy reports whether every check passed.
func (r HealthReport) Healthy() bool { return r.Status == HealthStatusHealthy }

// HealthLimits are the thresholds of the health predicate.
type HealthLimits struct {
	// MaxConcurrent falls back to the gate's own bound when zero.
	MaxConcurrent       int
	QueueDepthThreshold int
	AvgExecutionCeiling time.Duration
}

// Health evaluates the predicate: healthy iff in-flight executions are below
// the concurrency bound, queue depth is below its threshold and the average
// execution time is below the ceiling.
func (r *Recorder) Health(gate core.GateStats) HealthReport {
	stats := r.Stats()
	limits := r.limits
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = gate.MaxConcurrent
	}
	queueLimit := limits.QueueDepthThreshold
	if queueLimit <= 0 {
		queueLimit = 1
	}

	r.collectors.inFlight.Set(float64(gate.InFlight))
	r.collectors.queueDepth.Set(float64(gate.Queued))

	checks := []HealthCheck{
		check("concurrency", float64(gate.InFlight), float64(limits.MaxConcurrent),
			fmt.Sprintf("%d of %d execution slots in use", gate.InFlight, limits.MaxConcurrent)),
		check("queue_depth", float64(gate.Queued), float64(queueLimit),
			fmt.Sprintf("%d requests waiting, threshold %d", gate.Queued, queueLimit)),
	}
	if limits.AvgExecutionCeiling > 0 {
		checks = append(checks, check("avg_execution_time",
			stats.AvgTotal.Seconds(), limits.AvgExecutionCeiling.Seconds(),
			fmt.Sprintf("average %s over %d executions, ceiling %s",
				stats.AvgTotal.Round(time.Millisecond), stats.Samples, limits.AvgExecutionCeiling)))
	}

	report := HealthReport{
		Status:    HealthStatusHealthy,
		Checks:    checks,
		Timestamp: time.Now(),
		Samples:   stats.Samples,
	}
	for _, c := range checks {
		if c.Status != HealthStatusHealthy {
			report.Status = HealthStatusDegraded
		}
	}
	if report.Healthy() {
		r.collectors.healthy.Set(1)
	} else {
		r.collectors.healthy.Set(0)
	}
	return report
}

// check passes when observed is strictly below limit.
func check(name string, observed, limit float64, msg string) HealthCheck {
	status := HealthStatusHealthy
	if observed >= limit {
		status = HealthStatusDegraded
	}
	return HealthCheck{Name: name, Status: status, Message: msg, Observed: observed, Limit: limit}
}

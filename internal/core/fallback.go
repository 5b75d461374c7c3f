package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// FailureCondition is the key of a fallback rule.
type FailureCondition string

const (
	ConditionTimeout       FailureCondition = "timeout"
	ConditionProviderError FailureCondition = "provider_error"
	ConditionInvalidOutput FailureCondition = "invalid_output"
)

// FallbackAction is what the controller does about a failed stage.
type FallbackAction string

const (
	ActionSkip        FallbackAction = "skip"
	ActionRetry       FallbackAction = "retry"
	ActionAlternative FallbackAction = "alternative"
	ActionDegrade     FallbackAction = "degrade"
)

// FallbackStrategy configures recovery. Rules map each failure condition to
// an ordered action chain; the controller walks the chain until an action
// settles the stage.
type FallbackStrategy struct {
	Name              string
	Enabled           bool
	Rules             map[FailureCondition][]FallbackAction
	MaxChain          int
	Cooldown          time.Duration
	AllowRegeneration bool
}

// Actions returns the chain for a condition.
func (s *FallbackStrategy) Actions(cond FailureCondition) []FallbackAction {
	if s == nil || !s.Enabled {
		return nil
	}
	return s.Rules[cond]
}

// Validate rejects unknown conditions and actions.
func (s *FallbackStrategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("fallback strategy has no name")
	}
	if s.MaxChain < 0 {
		return fmt.Errorf("fallback strategy %s: negative max chain", s.Name)
	}
	for cond, actions := range s.Rules {
		switch cond {
		case ConditionTimeout, ConditionProviderError, ConditionInvalidOutput:
		default:
			return fmt.Errorf("fallback strategy %s: unknown condition %q", s.Name, cond)
		}
		for _, a := range actions {
			switch a {
			case ActionSkip, ActionRetry, ActionAlternative, ActionDegrade:
			default:
				return fmt.Errorf("fallback strategy %s: unknown action %q", s.Name, a)
			}
		}
	}
	return nil
}

// FallbackRegistry holds named strategies.
type FallbackRegistry struct {
	mu         sync.RWMutex
	strategies map[string]*FallbackStrategy
}

// NewFallbackRegistry returns a registry preloaded with "default", "fast"
// and "strict".
func NewFallbackRegistry() *FallbackRegistry {
	r := &FallbackRegistry{strategies: make(map[string]*FallbackStrategy)}
	for _, s := range builtinStrategies() {
		r.strategies[s.Name] = s
	}
	return r
}

func builtinStrategies() []*FallbackStrategy {
	return []*FallbackStrategy{
		{
			Name:    "default",
			Enabled: true,
			Rules: map[FailureCondition][]FallbackAction{
				ConditionTimeout:       {ActionRetry, ActionAlternative, ActionDegrade},
				ConditionProviderError: {ActionRetry, ActionAlternative, ActionDegrade},
				ConditionInvalidOutput: {ActionAlternative, ActionDegrade},
			},
			MaxChain:          3,
			AllowRegeneration: true,
		},
		{
			Name:    "fast",
			Enabled: true,
			Rules: map[FailureCondition][]FallbackAction{
				ConditionTimeout:       {ActionAlternative, ActionSkip},
				ConditionProviderError: {ActionAlternative, ActionSkip},
				ConditionInvalidOutput: {ActionSkip},
			},
			MaxChain: 1,
		},
		{
			Name:    "strict",
			Enabled: true,
			Rules: map[FailureCondition][]FallbackAction{
				ConditionTimeout:       {ActionRetry, ActionAlternative},
				ConditionProviderError: {ActionRetry, ActionAlternative},
				ConditionInvalidOutput: {ActionRetry, ActionAlternative},
			},
			MaxChain:          5,
			AllowRegeneration: true,
		},
	}
}

// Register adds or replaces a strategy.
func (r *FallbackRegistry) Register(s *FallbackStrategy) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name] = s
	return nil
}

// Lookup finds a strategy by name.
func (r *FallbackRegistry) Lookup(name string) (*FallbackStrategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Names lists registered strategies.
func (r *FallbackRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Budget caps fallback and regeneration attempts for one request. Optimize
// and validate draw from it concurrently.
type Budget struct {
	limit int32
	used  atomic.Int32
}

func NewBudget(limit int) *Budget {
	return &Budget{limit: int32(limit)}
}

// Take consumes one unit, reporting false when exhausted.
func (b *Budget) Take() bool {
	if b == nil {
		return false
	}
	for {
		used := b.used.Load()
		if used >= b.limit {
			return false
		}
		if b.used.CompareAndSwap(used, used+1) {
			return true
		}
	}
}

func (b *Budget) Used() int      { return int(b.used.Load()) }
func (b *Budget) Remaining() int { return int(b.limit - b.used.Load()) }

// StageCall performs one invocation of a stage implementation, returning a
// classified error on failure.
type StageCall func(ctx context.Context, attempt int) (StageOutput, *StageError)

// Attempt describes a failed stage handed to the controller.
type Attempt struct {
	Stage       StageSpec
	Failure     *StageError
	Primary     StageCall
	Alternative StageCall
	Budget      *Budget
}

// Recovery is the controller's verdict.
type Recovery struct {
	Actions     []FallbackAction
	Output      StageOutput
	Succeeded   bool
	Substituted bool
	Skipped     bool
	BestEffort  bool
	Attempts    int
	Err         *StageError
}

// FallbackController decides and applies fallback actions.
type FallbackController struct {
	logger *slog.Logger
}

func NewFallbackController(logger *slog.Logger) *FallbackController {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackController{logger: logger.With("component", "fallback_controller")}
}

// Recover walks the strategy's action chain for the failure. It never
// panics: anything going wrong while recovering ends as a failed Recovery.
func (c *FallbackController) Recover(ctx context.Context, strategy *FallbackStrategy, a Attempt) (rec Recovery) {
	rec.Err = a.Failure
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("fallback panicked", "stage", a.Stage.Name, "panic", r)
			rec.Succeeded = false
			rec.Err = NewStageError(a.Stage.Name, ErrStageProvider, rec.Attempts+1, fmt.Errorf("fallback panic: %v", r))
		}
	}()

	actions := strategy.Actions(a.Failure.Condition())
	if len(actions) == 0 {
		c.logger.Debug("no fallback rule", "stage", a.Stage.Name, "condition", a.Failure.Condition())
		return rec
	}

	attempt := a.Failure.Attempt
	for _, action := range actions {
		rec.Actions = append(rec.Actions, action)
		switch action {
		case ActionSkip:
			if a.Stage.Required {
				continue
			}
			rec.Skipped = true
			c.logger.Info("stage skipped by fallback", "stage", a.Stage.Name)
			return rec

		case ActionDegrade:
			rec.BestEffort = true
			if !a.Stage.Required {
				c.logger.Info("continuing best effort", "stage", a.Stage.Name)
				return rec
			}

		case ActionRetry:
			for i := 0; i < a.Stage.Retries; i++ {
				if !a.Budget.Take() {
					c.logger.Warn("fallback budget exhausted", "stage", a.Stage.Name, "action", action)
					break
				}
				if !c.cooldown(ctx, strategy) {
					return rec
				}
				attempt++
				rec.Attempts++
				out, err := a.Primary(ctx, attempt)
				if err == nil {
					rec.Output, rec.Succeeded = out, true
					c.logger.Info("retry succeeded", "stage", a.Stage.Name, "attempt", attempt)
					return rec
				}
				rec.Err = err
				c.logger.Warn("retry failed", "stage", a.Stage.Name, "attempt", attempt, "error", err)
			}

		case ActionAlternative:
			if a.Alternative == nil {
				continue
			}
			if !a.Budget.Take() {
				c.logger.Warn("fallback budget exhausted", "stage", a.Stage.Name, "action", action)
				continue
			}
			if !c.cooldown(ctx, strategy) {
				return rec
			}
			attempt++
			rec.Attempts++
			out, err := a.Alternative(ctx, attempt)
			if err == nil {
				rec.Output, rec.Succeeded, rec.Substituted = out, true, true
				c.logger.Info("alternative succeeded", "stage", a.Stage.Name)
				return rec
			}
			rec.Err = err
			c.logger.Warn("alternative failed", "stage", a.Stage.Name, "error", err)
		}
	}
	return rec
}

func (c *FallbackController) cooldown(ctx context.Context, strategy *FallbackStrategy) bool {
	if strategy.Cooldown <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(strategy.Cooldown)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

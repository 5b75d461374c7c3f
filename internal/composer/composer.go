// Package composer assembles the orchestrator from configuration and is the
// single entry point for callers: validate, admit, route, record.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dotcommander/contentorc/internal/agent"
	"github.com/dotcommander/contentorc/internal/config"
	"github.com/dotcommander/contentorc/internal/core"
	"github.com/dotcommander/contentorc/internal/legacy"
	"github.com/dotcommander/contentorc/internal/metrics"
	"github.com/dotcommander/contentorc/internal/router"
)

// Composer owns every long-lived component. Build one per process with New
// and share it; all methods are safe for concurrent use.
type Composer struct {
	cfg       *config.Config
	catalog   *core.Catalog
	pipeline  *core.Pipeline
	router    *router.Router
	selector  *router.Selector
	gate      *core.Gate
	recorder  *metrics.Recorder
	registry  *prometheus.Registry
	research  *core.ResearchCache
	responses *agent.CachedClient
	logger    *slog.Logger
}

type options struct {
	logger   *slog.Logger
	client   agent.AIClient
	observer core.Observer
	catalog  *core.Catalog
	random   func() int
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClient replaces the provider client chosen by configuration.
func WithClient(client agent.AIClient) Option {
	return func(o *options) { o.client = client }
}

// WithObserver receives plan events in addition to the log observer.
func WithObserver(obs core.Observer) Option {
	return func(o *options) { o.observer = obs }
}

func WithCatalog(catalog *core.Catalog) Option {
	return func(o *options) { o.catalog = catalog }
}

// WithRandom replaces the draw used for anonymous rollout.
func WithRandom(fn func() int) Option {
	return func(o *options) { o.random = fn }
}

// New wires the orchestrator described by cfg.
func New(cfg *config.Config, opts ...Option) (*Composer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default(), catalog: core.DefaultCatalog()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	c := &Composer{
		cfg:      cfg,
		catalog:  o.catalog,
		registry: prometheus.NewRegistry(),
		logger:   logger.With("component", "composer"),
	}

	client := o.client
	if client == nil {
		client = newClient(cfg.AI, logger)
	}
	if cfg.Cache.ResponseTTL > 0 {
		c.responses = agent.WithCache(client, cfg.Cache.ResponseTTL, cfg.Cache.MaxEntries)
		client = c.responses
	}

	prompts := agent.NewPromptCache(cfg.Paths.Prompts)
	if err := prompts.Preload(agent.PromptResearch, agent.PromptGenerate, agent.PromptGenerateBrief,
		agent.PromptOptimize, agent.PromptValidate); err != nil {
		c.Close()
		return nil, fmt.Errorf("loading prompts: %w", err)
	}
	ai := agent.New(client, prompts, c.catalog).WithLogger(logger)
	backends := agent.NewBackends(ai)

	registry := core.NewFallbackRegistry()
	if err := tuneStrategy(registry, cfg.Fallback); err != nil {
		c.Close()
		return nil, err
	}
	builder := core.NewPlanBuilder(planConfig(cfg), registry, c.catalog)

	var observer core.Observer = core.NewLogObserver(logger)
	if o.observer != nil {
		observer = core.MultiObserver{observer, o.observer}
	}
	execOpts := []core.ExecutorOption{
		core.WithAlternatives(agent.NewAlternatives(ai)),
		core.WithObserver(observer),
		core.WithExecutorConfig(core.ExecutorConfig{
			QualityThreshold: cfg.Quality.Threshold,
			DefaultEstimate:  cfg.Quality.DefaultEstimate,
		}),
		core.WithExecutorLogger(logger),
	}
	if cfg.Cache.ResearchTTL > 0 {
		c.research = core.NewResearchCache(cfg.Cache.ResearchTTL, cfg.Cache.MaxEntries)
		execOpts = append(execOpts, core.WithResearchCache(c.research))
	}
	executor, err := core.NewExecutor(backends, execOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.pipeline = core.NewPipeline(builder, executor, logger)

	legacyGen, err := legacy.New(c.catalog,
		legacy.WithValidator(backends.Validate, cfg.Stages.Validate.Timeout),
		legacy.WithEstimate(cfg.Quality.DefaultEstimate),
		legacy.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, err
	}

	selOpts := []router.SelectorOption{router.WithSelectorLogger(logger)}
	if o.random != nil {
		selOpts = append(selOpts, router.WithRandom(o.random))
	}
	c.selector, err = router.NewSelector(selectorConfig(cfg.Rollout), c.catalog, selOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.router = router.New(c.selector, legacyGen, c.pipeline, c.catalog, logger)

	c.gate = core.NewGate(cfg.Limits.MaxConcurrentExecutions, cfg.Limits.MaxQueueDepth)
	c.recorder = metrics.NewRecorder(cfg.Metrics.WindowSize,
		metrics.WithRegisterer(c.registry, cfg.Metrics.Namespace),
		metrics.WithLimits(metrics.HealthLimits{
			MaxConcurrent:       cfg.Limits.MaxConcurrentExecutions,
			QueueDepthThreshold: cfg.Limits.QueueDepthThreshold,
			AvgExecutionCeiling: cfg.Limits.AvgExecutionCeiling,
		}),
		metrics.WithLogger(logger))

	c.logger.Info("orchestrator ready",
		"provider", cfg.AI.Provider,
		"rollout_percentage", cfg.Rollout.Percentage,
		"new_architecture", cfg.Rollout.NewArchitectureEnabled,
		"hybrid_mode", cfg.Rollout.HybridMode,
		"max_concurrent", cfg.Limits.MaxConcurrentExecutions)
	return c, nil
}

// Compose runs one request end to end. The error is non-nil only for an
// invalid request or a caller context that ended while waiting for
// admission; every other failure is reported in the result.
func (c *Composer) Compose(ctx context.Context, req core.ContentRequest, opts router.Options) (*core.PipelineResult, error) {
	if err := core.ValidateRequest(req, c.catalog); err != nil {
		return nil, err
	}

	release, err := c.gate.Acquire(ctx)
	if err != nil {
		if errors.Is(err, core.ErrQueueFull) {
			c.logger.Warn("request rejected", "request_id", req.ID, "queue_depth", c.gate.Stats().Queued)
			return core.Failed(req.ID, "", err), nil
		}
		return nil, fmt.Errorf("waiting for admission: %w", err)
	}
	defer release()

	if c.cfg.Limits.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Limits.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.router.Route(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	if res.Metrics.Total == 0 {
		res.Metrics.Total = time.Since(start)
	}
	c.recorder.Record(res)
	return res, nil
}

// Plan returns the plan the new architecture would execute for req.
func (c *Composer) Plan(req core.ContentRequest, strategy string) (*core.ExecutionPlan, error) {
	var opts []core.BuildOption
	if strategy != "" {
		opts = append(opts, core.WithStrategy(strategy))
	}
	return c.pipeline.Plan(req, opts...)
}

// Decide reports which strategy would serve req without running it.
func (c *Composer) Decide(req core.ContentRequest, override string) core.RolloutDecision {
	return c.selector.Select(req, override)
}

func (c *Composer) Health() metrics.HealthReport {
	return c.recorder.Health(c.gate.Stats())
}

// CacheStats describes one cache.
type CacheStats struct {
	Enabled bool   `json:"enabled"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Size    int    `json:"size"`
}

// Snapshot is the combined runtime state.
type Snapshot struct {
	Performance   metrics.Stats  `json:"performance"`
	Admission     core.GateStats `json:"admission"`
	ResearchCache CacheStats     `json:"research_cache"`
	ResponseCache CacheStats     `json:"response_cache"`
}

func (c *Composer) Stats() Snapshot {
	s := Snapshot{
		Performance: c.recorder.Stats(),
		Admission:   c.gate.Stats(),
	}
	if c.research != nil {
		h, m, n := c.research.Stats()
		s.ResearchCache = CacheStats{Enabled: true, Hits: h, Misses: m, Size: n}
	}
	if c.responses != nil {
		h, m, n := c.responses.Stats()
		s.ResponseCache = CacheStats{Enabled: true, Hits: h, Misses: m, Size: n}
	}
	return s
}

// Gatherer exposes the Prometheus collectors.
func (c *Composer) Gatherer() prometheus.Gatherer { return c.registry }

// Close stops background cache janitors.
func (c *Composer) Close() {
	if c.research != nil {
		c.research.Close()
	}
	if c.responses != nil {
		c.responses.Close()
	}
	if c.selector != nil {
		c.selector.Close()
	}
}

func newClient(cfg config.AIConfig, logger *slog.Logger) agent.AIClient {
	if cfg.Provider == "mock" {
		return agent.NewMockClient()
	}
	apiType := agent.APIAnthropic
	if cfg.Provider == "openai" {
		apiType = agent.APIOpenAI
	}
	return agent.NewClient(cfg.APIKey,
		agent.WithAPIConfig(cfg.BaseURL, cfg.Model, apiType),
		agent.WithRetry(cfg.MaxRetries),
		agent.WithTimeout(cfg.Timeout),
		agent.WithRateLimit(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize),
		agent.WithLogger(logger))
}

// tuneStrategy applies the configured chain bound and cooldown to the
// selected built-in strategy.
func tuneStrategy(registry *core.FallbackRegistry, cfg config.FallbackConfig) error {
	if cfg.MaxChain <= 0 && cfg.Cooldown <= 0 {
		return nil
	}
	base, ok := registry.Lookup(cfg.Strategy)
	if !ok {
		return fmt.Errorf("unknown fallback strategy %q", cfg.Strategy)
	}
	tuned := *base
	if cfg.MaxChain > 0 {
		tuned.MaxChain = cfg.MaxChain
	}
	if cfg.Cooldown > 0 {
		tuned.Cooldown = cfg.Cooldown
	}
	return registry.Register(&tuned)
}

func planConfig(cfg *config.Config) core.PlanConfig {
	settings := func(s config.StageConfig) core.StageSettings {
		return core.StageSettings{Timeout: s.Timeout, Retries: s.Retries}
	}
	return core.PlanConfig{
		Stages: map[core.StageName]core.StageSettings{
			core.StageResearch: settings(cfg.Stages.Research),
			core.StageGenerate: settings(cfg.Stages.Generate),
			core.StageOptimize: settings(cfg.Stages.Optimize),
			core.StageValidate: settings(cfg.Stages.Validate),
		},
		DefaultStrategy: cfg.Fallback.Strategy,
	}
}

func selectorConfig(cfg config.RolloutConfig) router.Config {
	return router.Config{
		NewArchitectureEnabled: cfg.NewArchitectureEnabled,
		Percentage:             cfg.Percentage,
		HybridMode:             cfg.HybridMode,
		HybridMargin:           cfg.HybridMargin,
		CanaryUsers:            cfg.CanaryUsers,
		ComplexityThreshold:    cfg.ComplexityThreshold,
		CulturalLanguages:      cfg.CulturalLanguages,
		BucketSalt:             cfg.BucketSalt,
		BucketCacheTTL:         cfg.BucketCacheTTL,
	}
}

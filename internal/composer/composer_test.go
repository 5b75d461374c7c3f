package composer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/contentorc/internal/agent"
	"github.com/dotcommander/contentorc/internal/config"
	"github.com/dotcommander/contentorc/internal/core"
	"github.com/dotcommander/contentorc/internal/router"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newComposer(t *testing.T, mutate func(*config.Config), opts ...Option) *Composer {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	c, err := New(cfg, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestComposeRoutesToLegacyByDefault(t *testing.T) {
	c := newComposer(t, nil)

	req := core.NewContentRequest("release notes", core.WithContentType(core.ContentSocialMedia))
	res, err := c.Compose(context.Background(), req, router.Options{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, router.StrategyLegacy, res.Strategy)
	require.NotNil(t, res.Decision)
	assert.Equal(t, router.StrategyLegacy, res.Decision.Strategy)
	assert.NotEmpty(t, res.Content)
}

func TestComposeNewArchitecture(t *testing.T) {
	client := agent.NewMockClient()
	c := newComposer(t, nil, WithClient(client))

	req := core.NewContentRequest("platform engineering", core.WithResearch(true))
	res, err := c.Compose(context.Background(), req, router.Options{Override: router.StrategyNew})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, router.StrategyNew, res.Strategy)
	assert.False(t, res.FallbackUsed)
	assert.ElementsMatch(t, []string{"research", "generate", "optimize", "validate"}, res.FunctionsExecuted)
	assert.InDelta(t, 0.85, res.QualityScore, 1e-9)
	assert.Contains(t, res.Content, "Get in touch.")
	assert.Equal(t, 1, client.Calls(agent.PromptGenerate))
}

func TestComposeFallsBackToLegacy(t *testing.T) {
	client := agent.NewMockClient().
		FailOn(agent.PromptGenerate, errors.New("provider down")).
		FailOn(agent.PromptGenerateBrief, errors.New("provider down"))
	c := newComposer(t, nil, WithClient(client))

	res, err := c.Compose(context.Background(), core.NewContentRequest("observability"), router.Options{Override: router.StrategyNew})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, router.StrategyLegacy, res.Strategy)
	assert.NotEmpty(t, res.Errors)
	assert.EqualValues(t, 1, c.Stats().Performance.Samples)
	assert.InDelta(t, 1.0, c.Stats().Performance.FallbackRate, 1e-9)
}

func TestComposeRejectsInvalidRequest(t *testing.T) {
	c := newComposer(t, nil)

	_, err := c.Compose(context.Background(), core.NewContentRequest("  "), router.Options{})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = c.Compose(context.Background(), core.NewContentRequest("x", core.WithContentType("poem")), router.Options{})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
	assert.Zero(t, c.Stats().Performance.Samples)
}

func TestComposeRejectsWhenQueueIsFull(t *testing.T) {
	client := agent.NewMockClient().WithLatency(agent.PromptValidate, 300*time.Millisecond)
	c := newComposer(t, func(cfg *config.Config) {
		cfg.Limits.MaxConcurrentExecutions = 1
		cfg.Limits.MaxQueueDepth = 1
		cfg.Limits.QueueDepthThreshold = 1
		cfg.Cache.ResponseTTL = 0
	}, WithClient(client))

	req := core.NewContentRequest("queues", core.WithContentType(core.ContentSocialMedia))
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Compose(context.Background(), req, router.Options{})
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	require.Eventually(t, func() bool {
		s := c.Stats().Admission
		return s.InFlight == 1 && s.Queued == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, c.Health().Healthy())

	res, err := c.Compose(context.Background(), req, router.Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, errors.Join(res.Errors...), core.ErrQueueFull)

	wg.Wait()
	assert.Equal(t, 1, c.Stats().Admission.Rejected)
	assert.Equal(t, 2, c.Stats().Performance.Samples)
}

func TestComposeHonoursCallerCancellation(t *testing.T) {
	client := agent.NewMockClient().WithLatency(agent.PromptValidate, 200*time.Millisecond)
	c := newComposer(t, func(cfg *config.Config) {
		cfg.Limits.MaxConcurrentExecutions = 1
		cfg.Cache.ResponseTTL = 0
	}, WithClient(client))

	req := core.NewContentRequest("busy", core.WithContentType(core.ContentSocialMedia))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Compose(context.Background(), req, router.Options{})
	}()
	require.Eventually(t, func() bool { return c.Stats().Admission.InFlight == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Compose(ctx, req, router.Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	<-done
}

func TestHealthAndStats(t *testing.T) {
	c := newComposer(t, nil)

	report := c.Health()
	assert.True(t, report.Healthy())
	assert.Zero(t, report.Samples)

	req := core.NewContentRequest("caching", core.WithResearch(true))
	for i := 0; i < 2; i++ {
		res, err := c.Compose(context.Background(), req, router.Options{Override: router.StrategyNew})
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	stats := c.Stats()
	assert.Equal(t, 2, stats.Performance.Samples)
	assert.Equal(t, 2, stats.Performance.Strategies[router.StrategyNew])
	assert.True(t, stats.ResearchCache.Enabled)
	assert.EqualValues(t, 1, stats.ResearchCache.Hits)
	assert.True(t, stats.ResponseCache.Enabled)
	assert.Positive(t, stats.ResponseCache.Hits)
	assert.True(t, c.Health().Healthy())
}

func TestPlanDryRun(t *testing.T) {
	c := newComposer(t, nil)

	plan, err := c.Plan(core.NewContentRequest("dry run", core.WithResearch(true)), "fast")
	require.NoError(t, err)
	assert.Equal(t, "fast", plan.FallbackName)
	assert.True(t, plan.Has(core.StageResearch))

	_, err = c.Plan(core.NewContentRequest(""), "")
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestDecideUsesRolloutConfig(t *testing.T) {
	c := newComposer(t, func(cfg *config.Config) {
		cfg.Rollout.Percentage = 100
	})
	d := c.Decide(core.NewContentRequest("x", core.WithUser("alice")), "")
	assert.Equal(t, router.StrategyNew, d.Strategy)

	off := newComposer(t, func(cfg *config.Config) {
		cfg.Rollout.NewArchitectureEnabled = false
		cfg.Rollout.Percentage = 100
	})
	assert.Equal(t, router.StrategyLegacy, off.Decide(core.NewContentRequest("x", core.WithUser("alice")), "").Strategy)
}

func TestFallbackTuning(t *testing.T) {
	registry := core.NewFallbackRegistry()
	require.NoError(t, tuneStrategy(registry, config.FallbackConfig{Strategy: "default", MaxChain: 7, Cooldown: time.Millisecond}))

	s, ok := registry.Lookup("default")
	require.True(t, ok)
	assert.Equal(t, 7, s.MaxChain)
	assert.Equal(t, time.Millisecond, s.Cooldown)

	untouched, _ := core.NewFallbackRegistry().Lookup("default")
	assert.Equal(t, 3, untouched.MaxChain)
}

func TestGathererExposesCollectors(t *testing.T) {
	c := newComposer(t, nil)
	_, err := c.Compose(context.Background(), core.NewContentRequest("metrics"), router.Options{})
	require.NoError(t, err)

	families, err := c.Gatherer().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["contentorc_executions_total"])
	assert.True(t, names["contentorc_execution_duration_seconds"])
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.AI.Provider = "bogus"
	_, err := New(cfg, WithLogger(quietLogger()))
	assert.Error(t, err)
}

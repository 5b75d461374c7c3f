// Package router decides which pipeline variant handles a request and runs
// it, falling back to the legacy generator when the newer path fails.
package router

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/language"

	"github.com/dotcommander/contentorc/internal/core"
)

// Strategy names.
const (
	StrategyLegacy = "legacy"
	StrategyNew    = "new_architecture"
	StrategyHybrid = "hybrid"
)

// Confidence attached to each rule's decision.
const (
	confidenceOverride   = 1.0
	confidenceKillSwitch = 1.0
	confidenceCanary     = 0.95
	confidenceRollout    = 0.8
	confidenceLanguage   = 0.7
	confidenceDefault    = 0.6
)

// Config is the static rollout configuration.
type Config struct {
	NewArchitectureEnabled bool
	Percentage             int
	HybridMode             bool
	HybridMargin           float64
	CanaryUsers            []string
	ComplexityThreshold    float64
	CulturalLanguages      []string
	BucketSalt             string
	BucketCacheTTL         time.Duration
}

// DefaultConfig enables the new architecture for nobody but canaries,
// complex requests and culturally sensitive locales.
func DefaultConfig() Config {
	return Config{
		NewArchitectureEnabled: true,
		HybridMargin:           0.1,
		ComplexityThreshold:    0.7,
		CulturalLanguages:      []string{"nb", "nn", "no"},
		BucketSalt:             "contentorc",
		BucketCacheTTL:         time.Hour,
	}
}

// Selector applies the routing rules in precedence order. It is safe for
// concurrent use.
type Selector struct {
	cfg      Config
	catalog  *core.Catalog
	canary   map[string]bool
	cultural map[language.Base]bool
	buckets  *core.MemoryCache[string, int]
	draw     func() int
	logger   *slog.Logger
}

type SelectorOption func(*Selector)

// WithRandom replaces the anonymous-user draw. fn must return [0,100).
func WithRandom(fn func() int) SelectorOption {
	return func(s *Selector) { s.draw = fn }
}

func WithSelectorLogger(logger *slog.Logger) SelectorOption {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSelector(cfg Config, catalog *core.Catalog, opts ...SelectorOption) (*Selector, error) {
	if cfg.Percentage < 0 || cfg.Percentage > 100 {
		return nil, fmt.Errorf("router: rollout percentage %d outside [0,100]", cfg.Percentage)
	}
	if cfg.HybridMargin < 0 || cfg.HybridMargin > 1 {
		return nil, fmt.Errorf("router: hybrid margin %.2f outside [0,1]", cfg.HybridMargin)
	}
	s := &Selector{
		cfg:      cfg,
		catalog:  catalog,
		canary:   make(map[string]bool, len(cfg.CanaryUsers)),
		cultural: make(map[language.Base]bool, len(cfg.CulturalLanguages)),
		buckets:  core.NewMemoryCache[string, int](cfg.BucketCacheTTL, 10000),
		draw:     func() int { return rand.Intn(100) },
		logger:   slog.Default(),
	}
	for _, u := range cfg.CanaryUsers {
		s.canary[u] = true
	}
	for _, l := range cfg.CulturalLanguages {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("router: cultural language %q: %w", l, err)
		}
		base, _ := tag.Base()
		s.cultural[base] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "strategy_selector")
	return s, nil
}

// Close stops the bucket cache janitor.
func (s *Selector) Close() { s.buckets.Close() }

// Select returns the strategy for req. A non-empty override wins outright.
func (s *Selector) Select(req core.ContentRequest, override string) core.RolloutDecision {
	var trail []string
	decide := func(strategy string, confidence float64) core.RolloutDecision {
		d := core.RolloutDecision{Strategy: strategy, Confidence: confidence, Reasoning: trail}
		s.logger.Debug("strategy selected",
			"request_id", req.ID,
			"strategy", strategy,
			"confidence", confidence,
			"reasoning", strings.Join(trail, "; "))
		return d
	}

	// 1. explicit override
	if override != "" {
		trail = append(trail, fmt.Sprintf("override: caller requested %s", override))
		return decide(override, confidenceOverride)
	}
	trail = append(trail, "override: none")

	// 2. kill switch
	if !s.cfg.NewArchitectureEnabled {
		trail = append(trail, "kill_switch: new architecture disabled")
		return decide(StrategyLegacy, confidenceKillSwitch)
	}
	trail = append(trail, "kill_switch: new architecture enabled")

	// 3. canary allow-list
	if req.UserID != "" && s.canary[req.UserID] {
		trail = append(trail, fmt.Sprintf("canary: user %s is on the allow-list", req.UserID))
		return decide(StrategyNew, confidenceCanary)
	}
	trail = append(trail, "canary: not on the allow-list")

	// 4. rollout bucket
	bucket, how := s.bucket(req.UserID)
	if bucket < s.cfg.Percentage {
		strategy := StrategyNew
		if s.cfg.HybridMode {
			strategy = StrategyHybrid
		}
		trail = append(trail, fmt.Sprintf("rollout: %s bucket %d < %d%%, routing to %s", how, bucket, s.cfg.Percentage, strategy))
		return decide(strategy, confidenceRollout)
	}
	trail = append(trail, fmt.Sprintf("rollout: %s bucket %d outside %d%%", how, bucket, s.cfg.Percentage))

	// 5. complexity
	score := Complexity(req, s.catalog)
	if score >= s.cfg.ComplexityThreshold {
		trail = append(trail, fmt.Sprintf("complexity: %.2f >= %.2f", score, s.cfg.ComplexityThreshold))
		return decide(StrategyNew, score)
	}
	trail = append(trail, fmt.Sprintf("complexity: %.2f < %.2f", score, s.cfg.ComplexityThreshold))

	// 6. target language
	if s.requiresCulturalAdaptation(req.TargetLanguage) {
		trail = append(trail, fmt.Sprintf("language: %s requires cultural adaptation", req.TargetLanguage))
		return decide(StrategyNew, confidenceLanguage)
	}
	trail = append(trail, fmt.Sprintf("language: %s has no cultural override", req.TargetLanguage))

	trail = append(trail, "default: legacy")
	return decide(StrategyLegacy, confidenceDefault)
}

// bucket places a user in [0,100). Known users hash to a stable bucket;
// anonymous requests draw a fresh one.
func (s *Selector) bucket(userID string) (int, string) {
	if userID == "" {
		return s.draw(), "random"
	}
	b, _ := s.buckets.GetOrSet(userID, func() int {
		return int(xxhash.Sum64String(s.cfg.BucketSalt+":"+userID) % 100)
	})
	return b, "user"
}

func (s *Selector) requiresCulturalAdaptation(lang string) bool {
	if len(s.cultural) == 0 || lang == "" {
		return false
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	return s.cultural[base]
}

// Complexity scores a request in [0,1] from its length, translation need,
// research flag and content type.
func Complexity(req core.ContentRequest, catalog *core.Catalog) float64 {
	profile, _ := catalog.ContentType(req.ContentType)
	words := req.WordCount
	if words == 0 {
		words = profile.DefaultWordCount
	}

	score := 0.3 * min(float64(words)/2000, 1)
	if req.RequiresTranslation() {
		score += 0.25
	}
	if req.Flags.EnableResearch {
		score += 0.2
	}
	score += 0.25 * profile.Weight
	return min(score, 1)
}

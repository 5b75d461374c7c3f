package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath        = "CONTENTORC_CONFIG"
	EnvRolloutPercentage = "CONTENTORC_ROLLOUT_PERCENTAGE"
	EnvNewArchitecture   = "CONTENTORC_NEW_ARCHITECTURE"
	EnvAPIKey            = "CONTENTORC_API_KEY"
)

type Config struct {
	AI       AIConfig       `yaml:"ai"`
	Rollout  RolloutConfig  `yaml:"rollout"`
	Quality  QualityConfig  `yaml:"quality"`
	Stages   StagesConfig   `yaml:"stages"`
	Fallback FallbackConfig `yaml:"fallback"`
	Limits   Limits         `yaml:"limits"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Paths    PathsConfig    `yaml:"paths"`
}

type AIConfig struct {
	Provider   string          `yaml:"provider" validate:"required,oneof=mock anthropic openai"`
	APIKey     string          `yaml:"api_key" validate:"required_unless=Provider mock"`
	Model      string          `yaml:"model" validate:"required_unless=Provider mock"`
	BaseURL    string          `yaml:"base_url" validate:"omitempty,url"`
	Timeout    time.Duration   `yaml:"timeout" validate:"min=1s,max=1h"`
	MaxRetries int             `yaml:"max_retries" validate:"min=0,max=10"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=10000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=1000"`
}

// RolloutConfig drives strategy selection.
type RolloutConfig struct {
	// NewArchitectureEnabled is the kill switch; false routes everything to
	// legacy.
	NewArchitectureEnabled bool     `yaml:"new_architecture_enabled"`
	Percentage             int      `yaml:"percentage" validate:"min=0,max=100"`
	HybridMode             bool     `yaml:"hybrid_mode"`
	HybridMargin           float64  `yaml:"hybrid_margin" validate:"min=0,max=1"`
	CanaryUsers            []string `yaml:"canary_users"`
	ComplexityThreshold    float64  `yaml:"complexity_threshold" validate:"min=0,max=1"`
	// CulturalLanguages always prefer the new architecture.
	CulturalLanguages []string      `yaml:"cultural_languages" validate:"dive,required"`
	BucketSalt        string        `yaml:"bucket_salt"`
	BucketCacheTTL    time.Duration `yaml:"bucket_cache_ttl" validate:"min=0"`
}

type QualityConfig struct {
	Threshold       float64 `yaml:"threshold" validate:"min=0,max=1"`
	DefaultEstimate float64 `yaml:"default_estimate" validate:"min=0,max=1"`
}

type StageConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"min=1ms,max=1h"`
	Retries int           `yaml:"retries" validate:"min=0,max=10"`
}

type StagesConfig struct {
	Research StageConfig `yaml:"research"`
	Generate StageConfig `yaml:"generate"`
	Optimize StageConfig `yaml:"optimize"`
	Validate StageConfig `yaml:"validate"`
}

type FallbackConfig struct {
	Strategy string `yaml:"strategy" validate:"required,oneof=default fast strict"`
	// MaxChain overrides the strategy's attempt budget when positive.
	MaxChain int           `yaml:"max_chain" validate:"min=0,max=20"`
	Cooldown time.Duration `yaml:"cooldown" validate:"min=0"`
}

type Limits struct {
	MaxConcurrentExecutions int           `yaml:"max_concurrent_executions" validate:"required,min=1,max=1000"`
	MaxQueueDepth           int           `yaml:"max_queue_depth" validate:"min=0,max=100000"`
	QueueDepthThreshold     int           `yaml:"queue_depth_threshold" validate:"min=0"`
	AvgExecutionCeiling     time.Duration `yaml:"avg_execution_ceiling" validate:"required,min=1s"`
	RequestTimeout          time.Duration `yaml:"request_timeout" validate:"required,min=1s,max=24h"`
}

type CacheConfig struct {
	ResearchTTL time.Duration `yaml:"research_ttl" validate:"min=0"`
	ResponseTTL time.Duration `yaml:"response_ttl" validate:"min=0"`
	MaxEntries  int           `yaml:"max_entries" validate:"min=1"`
}

type MetricsConfig struct {
	WindowSize int    `yaml:"window_size" validate:"required,min=1,max=100000"`
	Namespace  string `yaml:"namespace" validate:"required"`
}

type PathsConfig struct {
	// Prompts is an optional directory whose *.tmpl files shadow the
	// built-in prompt templates.
	Prompts string `yaml:"prompts"`
}

// Default returns a configuration that runs offline with the mock provider.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Provider:   "mock",
			Timeout:    60 * time.Second,
			MaxRetries: 2,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
		},
		Rollout: RolloutConfig{
			NewArchitectureEnabled: true,
			Percentage:             0,
			HybridMargin:           0.1,
			ComplexityThreshold:    0.7,
			CulturalLanguages:      []string{"nb", "nn", "no"},
			BucketSalt:             "contentorc",
			BucketCacheTTL:         time.Hour,
		},
		Quality: QualityConfig{
			Threshold:       0.7,
			DefaultEstimate: 0.75,
		},
		Stages: StagesConfig{
			Research: StageConfig{Timeout: 20 * time.Second},
			Generate: StageConfig{Timeout: 60 * time.Second, Retries: 1},
			Optimize: StageConfig{Timeout: 30 * time.Second},
			Validate: StageConfig{Timeout: 15 * time.Second},
		},
		Fallback: FallbackConfig{
			Strategy: "default",
		},
		Limits: Limits{
			MaxConcurrentExecutions: 10,
			MaxQueueDepth:           100,
			QueueDepthThreshold:     20,
			AvgExecutionCeiling:     2 * time.Minute,
			RequestTimeout:          5 * time.Minute,
		},
		Cache: CacheConfig{
			ResearchTTL: 30 * time.Minute,
			ResponseTTL: 10 * time.Minute,
			MaxEntries:  1000,
		},
		Metrics: MetricsConfig{
			WindowSize: 100,
			Namespace:  "contentorc",
		},
	}
}

// Load reads .env, then the YAML file at path (or the discovered default
// path), applies environment overrides and validates the result. A missing
// file at the default location is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = configPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Paths.Prompts = expandTilde(cfg.Paths.Prompts)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func configPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "contentorc", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "contentorc", "config.yaml")
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvRolloutPercentage); v != "" {
		pct, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRolloutPercentage, err)
		}
		c.Rollout.Percentage = pct
	}
	if v := os.Getenv(EnvNewArchitecture); v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvNewArchitecture, err)
		}
		c.Rollout.NewArchitectureEnabled = enabled
	}
	if c.AI.APIKey == "" || strings.HasPrefix(c.AI.APIKey, "${") {
		c.AI.APIKey = os.Getenv(EnvAPIKey)
	}
	return nil
}

// expandTilde expands a tilde (~) at the beginning of a path to the user's home directory
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Limits.QueueDepthThreshold > c.Limits.MaxQueueDepth && c.Limits.MaxQueueDepth > 0 {
		return fmt.Errorf("config validation failed: queue_depth_threshold %d exceeds max_queue_depth %d",
			c.Limits.QueueDepthThreshold, c.Limits.MaxQueueDepth)
	}
	return nil
}

// Save writes cfg as YAML, replacing the API key with an environment
// placeholder.
func Save(cfg *Config, path string) error {
	out := *cfg
	if out.AI.APIKey != "" {
		out.AI.APIKey = "${" + EnvAPIKey + "}"
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

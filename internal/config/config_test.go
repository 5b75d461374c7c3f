package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "real provider requires API key",
			mutate: func(c *Config) {
				c.AI.Provider = "anthropic"
				c.AI.Model = "claude-3-5-sonnet-20241022"
			},
			wantErr: true,
			errMsg:  "APIKey",
		},
		{
			name: "real provider with key and model",
			mutate: func(c *Config) {
				c.AI.Provider = "openai"
				c.AI.Model = "gpt-4o-mini"
				c.AI.APIKey = "sk-1234567890abcdef"
				c.AI.BaseURL = "https://api.openai.com/v1"
			},
			wantErr: false,
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.AI.Provider = "carrier-pigeon" },
			wantErr: true,
			errMsg:  "Provider",
		},
		{
			name:    "invalid base URL",
			mutate:  func(c *Config) { c.AI.BaseURL = "not-a-url" },
			wantErr: true,
			errMsg:  "BaseURL",
		},
		{
			name:    "rollout percentage above 100",
			mutate:  func(c *Config) { c.Rollout.Percentage = 101 },
			wantErr: true,
			errMsg:  "Percentage",
		},
		{
			name:    "hybrid margin outside unit interval",
			mutate:  func(c *Config) { c.Rollout.HybridMargin = 1.5 },
			wantErr: true,
			errMsg:  "HybridMargin",
		},
		{
			name:    "quality threshold outside unit interval",
			mutate:  func(c *Config) { c.Quality.Threshold = -0.1 },
			wantErr: true,
			errMsg:  "Threshold",
		},
		{
			name:    "unknown fallback strategy",
			mutate:  func(c *Config) { c.Fallback.Strategy = "yolo" },
			wantErr: true,
			errMsg:  "Strategy",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Limits.MaxConcurrentExecutions = 0 },
			wantErr: true,
			errMsg:  "MaxConcurrentExecutions",
		},
		{
			name:    "stage timeout too high",
			mutate:  func(c *Config) { c.Stages.Generate.Timeout = 2 * time.Hour },
			wantErr: true,
			errMsg:  "Timeout",
		},
		{
			name: "queue threshold above queue depth",
			mutate: func(c *Config) {
				c.Limits.MaxQueueDepth = 5
				c.Limits.QueueDepthThreshold = 10
			},
			wantErr: true,
			errMsg:  "queue_depth_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv(EnvRolloutPercentage, "")
	t.Setenv(EnvNewArchitecture, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := `
rollout:
  percentage: 25
  hybrid_mode: true
  hybrid_margin: 0.05
  canary_users: [alice, bob]
stages:
  generate:
    timeout: 45s
    retries: 2
quality:
  threshold: 0.8
fallback:
  strategy: strict
`
	if err := os.WriteFile(path, []byte(yamlData), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Rollout.Percentage != 25 || !cfg.Rollout.HybridMode || cfg.Rollout.HybridMargin != 0.05 {
		t.Errorf("rollout not loaded: %+v", cfg.Rollout)
	}
	if len(cfg.Rollout.CanaryUsers) != 2 {
		t.Errorf("CanaryUsers = %v", cfg.Rollout.CanaryUsers)
	}
	if cfg.Stages.Generate.Timeout != 45*time.Second || cfg.Stages.Generate.Retries != 2 {
		t.Errorf("generate stage = %+v", cfg.Stages.Generate)
	}
	if cfg.Stages.Validate.Timeout != 15*time.Second {
		t.Errorf("unset stage should keep default, got %v", cfg.Stages.Validate.Timeout)
	}
	if cfg.Quality.Threshold != 0.8 || cfg.Fallback.Strategy != "strict" {
		t.Errorf("quality/fallback not loaded: %+v %+v", cfg.Quality, cfg.Fallback)
	}
	if !cfg.Rollout.NewArchitectureEnabled {
		t.Error("kill switch should stay at its default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvRolloutPercentage, "75")
	t.Setenv(EnvNewArchitecture, "false")
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Rollout.Percentage != 75 {
		t.Errorf("Percentage = %d, want 75", cfg.Rollout.Percentage)
	}
	if cfg.Rollout.NewArchitectureEnabled {
		t.Error("kill switch env override not applied")
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv(EnvRolloutPercentage, "lots")
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric rollout percentage")
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for explicit missing config file")
	}
}

func TestSaveMasksAPIKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-from-env-1234567890")
	t.Setenv(EnvRolloutPercentage, "")
	t.Setenv(EnvNewArchitecture, "")

	cfg := Default()
	cfg.AI.Provider = "anthropic"
	cfg.AI.Model = "claude-3-5-sonnet-20241022"
	cfg.AI.APIKey = "sk-secret-1234567890"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("saved config leaks the API key")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.AI.APIKey != "sk-from-env-1234567890" {
		t.Errorf("APIKey = %q, want env value", loaded.AI.APIKey)
	}
}

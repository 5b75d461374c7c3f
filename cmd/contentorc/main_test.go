package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dotcommander/contentorc/internal/config"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvRolloutPercentage, "")
	t.Setenv(config.EnvNewArchitecture, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := config.Save(config.Default(), path); err != nil {
		t.Fatalf("config.Save: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.yaml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote default configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, _, err := runCLI(t, []string{"health"}, filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestComposeCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, stderr, err := runCLI(t, []string{"compose", "--type", "social_media", "--progress", "--strategy", "new_architecture", "launch", "day"}, cfg)
	if err != nil {
		t.Fatalf("compose: %v (stderr: %s)", err, stderr)
	}

	var res struct {
		Success  bool   `json:"success"`
		Strategy string `json:"strategy"`
		Content  string `json:"content"`
		Decision struct {
			Strategy string `json:"strategy"`
		} `json:"decision"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if !res.Success {
		t.Fatalf("expected success, got %s", out)
	}
	if res.Strategy != "new_architecture" || res.Decision.Strategy != "new_architecture" {
		t.Errorf("strategy = %q, decision = %q", res.Strategy, res.Decision.Strategy)
	}
	requireContains(t, res.Content, "launch day")
	requireContains(t, stderr, "generate")
}

func TestComposeWritesMetrics(t *testing.T) {
	cfg := writeTestConfig(t)
	metricsPath := filepath.Join(t.TempDir(), "contentorc.prom")

	if _, _, err := runCLI(t, []string{"compose", "--metrics-out", metricsPath, "metrics"}, cfg); err != nil {
		t.Fatalf("compose: %v", err)
	}
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	requireContains(t, string(data), "contentorc_executions_total")
}

func TestComposeRejectsUnknownStrategy(t *testing.T) {
	cfg := writeTestConfig(t)
	_, _, err := runCLI(t, []string{"compose", "--strategy", "quantum", "topic"}, cfg)
	if err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
}

func TestPlanCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, _, err := runCLI(t, []string{"plan", "--research", "--fallback", "strict", "--user", "alice", "topic"}, cfg)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	var got struct {
		Decision struct {
			Strategy  string   `json:"strategy"`
			Reasoning []string `json:"reasoning"`
		} `json:"decision"`
		Plan struct {
			Fallback string     `json:"fallback"`
			Phases   [][]string `json:"phases"`
		} `json:"plan"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if got.Plan.Fallback != "strict" {
		t.Errorf("fallback = %q, want strict", got.Plan.Fallback)
	}
	if len(got.Plan.Phases) != 3 {
		t.Errorf("phases = %v, want research, generate, then optimize+validate", got.Plan.Phases)
	}
	if len(got.Decision.Reasoning) == 0 {
		t.Error("expected a reasoning trail")
	}
}

func TestHealthCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, _, err := runCLI(t, []string{"health"}, cfg)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	requireContains(t, out, `"status": "healthy"`)
	requireContains(t, out, `"admission"`)
}

func TestComposeWritesArtifacts(t *testing.T) {
	cfg := writeTestConfig(t)
	outDir := t.TempDir()

	if _, _, err := runCLI(t, []string{"compose", "--out-dir", outDir, "--out-naming", "descriptive", "edge", "caching"}, cfg); err != nil {
		t.Fatalf("compose: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(outDir, "runs", "*_edge-caching_*", "content.md"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one content.md, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("reading content: %v", err)
	}
	if len(data) == 0 {
		t.Error("content.md is empty")
	}
}

func TestComposeRejectsUnknownNaming(t *testing.T) {
	cfg := writeTestConfig(t)
	if _, _, err := runCLI(t, []string{"compose", "--out-naming", "random", "topic"}, cfg); err == nil {
		t.Fatal("expected an error for an unknown artifact naming")
	}
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockClient returns canned, deterministic responses keyed off the rendered
// prompt. It backs offline runs and tests.
type MockClient struct {
	mu       sync.Mutex
	latency  map[string]time.Duration
	failures map[string]error
	calls    map[string]int
}

// NewMockClient creates a mock AI client for testing
func NewMockClient() *MockClient {
	return &MockClient{
		latency:  make(map[string]time.Duration),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// WithLatency delays every response for operation by d.
func (m *MockClient) WithLatency(operation string, d time.Duration) *MockClient {
	m.mu.Lock()
	m.latency[operation] = d
	m.mu.Unlock()
	return m
}

// FailOn makes every call for operation return err.
func (m *MockClient) FailOn(operation string, err error) *MockClient {
	m.mu.Lock()
	m.failures[operation] = err
	m.mu.Unlock()
	return m
}

// Calls reports how many requests operation received.
func (m *MockClient) Calls(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[operation]
}

func (m *MockClient) CompleteWithSystem(ctx context.Context, _, userPrompt string) (string, error) {
	return m.respond(ctx, userPrompt)
}

func (m *MockClient) CompleteJSONWithSystem(ctx context.Context, _, userPrompt string) (string, error) {
	response, err := m.respond(ctx, userPrompt)
	if err != nil {
		return "", err
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(response), &probe); err != nil {
		return "", fmt.Errorf("mock response is not valid JSON: %w", err)
	}
	return response, nil
}

func (m *MockClient) respond(ctx context.Context, prompt string) (string, error) {
	op := operationOf(prompt)

	m.mu.Lock()
	m.calls[op]++
	delay := m.latency[op]
	failure := m.failures[op]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if failure != nil {
		return "", failure
	}

	switch op {
	case PromptResearch:
		topic := quoted(prompt)
		return mustJSON(map[string]any{
			"sources": []string{"https://example.org/" + slug(topic), "internal style guide"},
			"summary": fmt.Sprintf("Key points on %s: definitions, current practice and common pitfalls.", topic),
		}), nil
	case PromptGenerateBrief:
		return fmt.Sprintf("%s in brief. This short piece covers the essentials.", quoted(prompt)), nil
	case PromptGenerate:
		return mockArticle(prompt), nil
	case PromptOptimize:
		text := after(prompt, "Text:")
		return mustJSON(map[string]any{
			"content":    strings.TrimSpace(text) + "\n\nReady to learn more? Get in touch.",
			"changes":    []string{"added call to action"},
			"confidence": 0.8,
		}), nil
	case PromptValidate:
		text := after(prompt, "Text:")
		score := 0.6
		if n := len(strings.Fields(text)); n >= 40 {
			score = 0.85
		}
		return mustJSON(map[string]any{
			"overall_score": score,
			"details": map[string]float64{
				"relevance": score,
				"structure": score,
				"tone":      0.8,
				"language":  0.9,
				"length":    score,
			},
		}), nil
	}
	return `{"message": "Mock response"}`, nil
}

func mockArticle(prompt string) string {
	topic := quoted(prompt)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", topic)
	fmt.Fprintf(&b, "%s matters because it shapes how teams plan, build and ship. ", topic)
	b.WriteString("This piece walks through the background, the practical steps and the questions worth asking before you start. ")
	if strings.Contains(prompt, "Research notes:") {
		b.WriteString("Recent research points to a handful of recurring patterns that separate successful efforts from stalled ones. ")
	}
	if strings.Contains(prompt, "previous draft scored") {
		b.WriteString("Each section now closes with a concrete takeaway and an example drawn from day to day work. ")
	}
	b.WriteString("\n\nStart small, measure what changes and keep the feedback loop short. ")
	b.WriteString("The teams that do this well write down their assumptions and revisit them often.")
	return b.String()
}

// operationOf maps a rendered prompt back to the template that produced it.
func operationOf(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "Research the topic"):
		return PromptResearch
	case strings.HasPrefix(prompt, "Write a short"):
		return PromptGenerateBrief
	case strings.HasPrefix(prompt, "Write a"):
		return PromptGenerate
	case strings.HasPrefix(prompt, "Tighten and polish"):
		return PromptOptimize
	case strings.HasPrefix(prompt, "Score the"):
		return PromptValidate
	}
	return "unknown"
}

func quoted(s string) string {
	start := strings.Index(s, `"`)
	if start < 0 {
		return "the topic"
	}
	end := strings.Index(s[start+1:], `"`)
	if end < 0 {
		return "the topic"
	}
	return s[start+1 : start+1+end]
}

func after(s, marker string) string {
	if i := strings.LastIndex(s, marker); i >= 0 {
		return s[i+len(marker):]
	}
	return ""
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

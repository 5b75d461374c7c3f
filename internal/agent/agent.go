package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dotcommander/contentorc/internal/core"
)

const defaultSystemPrompt = `You are a senior content strategist and editor. You write clear, accurate, well structured copy for the requested audience and language, and you follow output format instructions exactly.`

// PromptData is what every prompt template is rendered against.
type PromptData struct {
	Request     core.ContentRequest
	ContentType string
	Tone        string
	Research    *core.ResearchOutput
	Feedback    *core.QualityFeedback
	Content     string
}

// Agent renders a named prompt and sends it to an AIClient.
type Agent struct {
	client       AIClient
	prompts      *PromptCache
	catalog      *core.Catalog
	systemPrompt string
	logger       *slog.Logger
}

func New(client AIClient, prompts *PromptCache, catalog *core.Catalog) *Agent {
	if prompts == nil {
		prompts = NewPromptCache("")
	}
	if catalog == nil {
		catalog = core.DefaultCatalog()
	}
	return &Agent{
		client:       client,
		prompts:      prompts,
		catalog:      catalog,
		systemPrompt: defaultSystemPrompt,
		logger:       slog.Default().With("component", "agent"),
	}
}

// WithSystemPrompt replaces the role prompt sent with every request.
func (a *Agent) WithSystemPrompt(prompt string) *Agent {
	a.systemPrompt = prompt
	return a
}

// WithLogger sets a custom logger for the agent
func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	a.logger = logger.With("component", "agent")
	return a
}

// data fills the labels a template needs from the catalog.
func (a *Agent) data(req core.ContentRequest) PromptData {
	d := PromptData{
		Request:     req,
		ContentType: string(req.ContentType),
		Tone:        a.catalog.ToneLabel(req.Tone, req.TargetLanguage),
	}
	if p, ok := a.catalog.ContentType(req.ContentType); ok {
		d.ContentType = p.Label
	}
	return d
}

// Execute renders prompt with data and returns the raw completion.
func (a *Agent) Execute(ctx context.Context, prompt string, data PromptData) (string, error) {
	return a.execute(ctx, prompt, data, false)
}

// ExecuteJSON renders prompt, requests a JSON completion and decodes it
// into v. Undecodable output is reported as invalid stage output.
func (a *Agent) ExecuteJSON(ctx context.Context, prompt string, data PromptData, v any) error {
	response, err := a.execute(ctx, prompt, data, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSON(response)), v); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", core.ErrStageInvalidOutput, prompt, err)
	}
	return nil
}

func (a *Agent) execute(ctx context.Context, prompt string, data PromptData, forceJSON bool) (string, error) {
	start := time.Now()

	userPrompt, err := a.prompts.Render(prompt, data)
	if err != nil {
		return "", fmt.Errorf("preparing %s prompt: %w", prompt, err)
	}

	a.logger.Debug("executing AI request",
		"operation", prompt,
		"request_id", data.Request.ID,
		"prompt_length", len(userPrompt),
		"force_json", forceJSON)

	var response string
	if forceJSON {
		response, err = a.client.CompleteJSONWithSystem(ctx, a.systemPrompt, userPrompt)
	} else {
		response, err = a.client.CompleteWithSystem(ctx, a.systemPrompt, userPrompt)
	}
	duration := time.Since(start)
	if err != nil {
		a.logger.Warn("AI request failed",
			"operation", prompt,
			"request_id", data.Request.ID,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return "", err
	}

	a.logger.Info("AI request completed",
		"operation", prompt,
		"request_id", data.Request.ID,
		"duration_ms", duration.Milliseconds(),
		"response_length", len(response))
	return response, nil
}

// extractJSON strips markdown fences and any prose around the outermost
// object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

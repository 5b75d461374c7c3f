// Package legacy is the template-based generator that predates the staged
// pipeline. It never calls a model, so it is the fallback of last resort.
package legacy

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dotcommander/contentorc/internal/core"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Name is the strategy name legacy results carry.
const Name = "legacy"

const functionName = "legacy_generate"

// Generator renders content from per-type templates.
type Generator struct {
	catalog   *core.Catalog
	templates *template.Template
	validator core.ValidationBackend
	estimate  float64
	timeout   time.Duration
	logger    *slog.Logger
}

type Option func(*Generator)

// WithValidator scores legacy output with the same backend the pipeline
// uses. Without one the default estimate is reported.
func WithValidator(v core.ValidationBackend, timeout time.Duration) Option {
	return func(g *Generator) {
		g.validator = v
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

func WithEstimate(score float64) Option {
	return func(g *Generator) { g.estimate = score }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New parses the embedded templates and checks every catalog content type
// has one.
func New(catalog *core.Catalog, opts ...Option) (*Generator, error) {
	tmpl, err := template.New("legacy").Funcs(template.FuncMap{
		"join":  strings.Join,
		"title": titleCase,
		"seq":   seq,
		"pick":  pick,
	}).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("legacy: parsing templates: %w", err)
	}
	for _, ct := range catalog.ContentTypes() {
		if tmpl.Lookup(string(ct)+".tmpl") == nil {
			return nil, fmt.Errorf("legacy: no template for content type %q", ct)
		}
	}

	g := &Generator{
		catalog:   catalog,
		templates: tmpl,
		estimate:  core.DefaultQualityEstimate,
		timeout:   15 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "legacy")
	return g, nil
}

func (g *Generator) Name() string { return Name }

type view struct {
	Topic      string
	TypeLabel  string
	Tone       string
	Audience   string
	Keywords   []string
	Paragraphs int
	Language   string
}

// Run renders the request's template. The error is non-nil only for a
// malformed request.
func (g *Generator) Run(ctx context.Context, req core.ContentRequest) (*core.PipelineResult, error) {
	if err := core.ValidateRequest(req, g.catalog); err != nil {
		return nil, err
	}
	start := time.Now()

	profile, _ := g.catalog.ContentType(req.ContentType)
	words := req.WordCount
	if words == 0 {
		words = profile.DefaultWordCount
	}
	v := view{
		Topic:      strings.TrimSpace(req.Topic),
		TypeLabel:  profile.Label,
		Tone:       g.catalog.ToneLabel(req.Tone, req.TargetLanguage),
		Audience:   req.Audience,
		Keywords:   req.Keywords,
		Paragraphs: int(math.Max(1, math.Min(8, math.Round(float64(words)/150)))),
		Language:   req.TargetLanguage,
	}
	if v.Audience == "" {
		v.Audience = "readers"
	}

	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, string(req.ContentType)+".tmpl", v); err != nil {
		g.logger.Error("template execution failed", "request_id", req.ID, "error", err)
		return core.Failed(req.ID, Name, fmt.Errorf("legacy template: %w", err)), nil
	}
	content := strings.TrimSpace(buf.String())
	genTime := time.Since(start)

	result := &core.PipelineResult{
		RequestID:         req.ID,
		Success:           true,
		Content:           content,
		QualityScore:      g.estimate,
		QualityEstimated:  true,
		FunctionsExecuted: []string{functionName},
		FallbacksUsed:     []string{},
		Strategy:          Name,
		Metrics: core.PerformanceMetrics{
			StageTimings: map[core.StageName]time.Duration{core.StageGenerate: genTime},
			StagesRun:    1,
		},
	}

	if g.validator != nil {
		g.score(ctx, req, result)
	}
	result.Metrics.Total = time.Since(start)

	g.logger.Debug("legacy content rendered",
		"request_id", req.ID,
		"content_type", req.ContentType,
		"length", len(content),
		"quality", result.QualityScore)
	return result, nil
}

func (g *Generator) score(ctx context.Context, req core.ContentRequest, result *core.PipelineResult) {
	start := time.Now()
	vctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.validator.Validate(vctx, result.Content, core.ValidationContext{Request: req})
	result.Metrics.StageTimings[core.StageValidate] = time.Since(start)
	result.Metrics.StagesRun++
	result.FunctionsExecuted = append(result.FunctionsExecuted, string(core.StageValidate))

	switch {
	case err != nil:
		result.Errors = append(result.Errors, core.NewStageError(core.StageValidate, core.ErrStageProvider, 1, err))
		result.Warnings = append(result.Warnings, "legacy validation failed; quality is estimated")
	case math.IsNaN(out.OverallScore) || out.OverallScore < 0 || out.OverallScore > 1:
		result.Errors = append(result.Errors, core.NewStageError(core.StageValidate, core.ErrStageInvalidOutput, 1,
			fmt.Errorf("score %v outside [0,1]", out.OverallScore)))
	default:
		result.QualityScore = out.OverallScore
		result.QualityEstimated = false
	}
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// pick returns the i-th keyword (wrapping), or fallback when there are none.
func pick(keywords []string, i int, fallback string) string {
	if len(keywords) == 0 {
		return fallback
	}
	return keywords[i%len(keywords)]
}

// titleCase builds a fresh Caser per call; Casers are not goroutine safe.
func titleCase(s string) string {
	return cases.Title(language.Und, cases.NoLower).String(s)
}

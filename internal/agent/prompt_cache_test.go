package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dotcommander/contentorc/internal/core"
)

func TestPromptCache(t *testing.T) {
	tempDir := t.TempDir()

	override := "Custom research prompt for {{.Request.Topic}}"
	if err := os.WriteFile(filepath.Join(tempDir, "research.tmpl"), []byte(override), 0644); err != nil {
		t.Fatal(err)
	}

	cache := NewPromptCache(tempDir)
	req := core.NewContentRequest("Go generics")

	t.Run("override directory shadows built-in", func(t *testing.T) {
		out, err := cache.Render(PromptResearch, PromptData{Request: req})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if out != "Custom research prompt for Go generics" {
			t.Errorf("Render() = %q", out)
		}
	})

	t.Run("falls back to built-in", func(t *testing.T) {
		out, err := cache.Render(PromptGenerate, PromptData{Request: req, ContentType: "blog post", Tone: "casual"})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if !strings.HasPrefix(out, `Write a blog post about "Go generics" in a casual tone.`) {
			t.Errorf("unexpected prompt: %q", out)
		}
	})

	t.Run("caches prompt content", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(tempDir, "research.tmpl"), []byte("modified"), 0644); err != nil {
			t.Fatal(err)
		}
		content, err := cache.LoadPrompt(PromptResearch)
		if err != nil {
			t.Fatal(err)
		}
		if content != override {
			t.Errorf("LoadPrompt() = %q, want cached content %q", content, override)
		}
	})

	t.Run("unknown prompt", func(t *testing.T) {
		if _, err := cache.LoadTemplate("does_not_exist"); err == nil {
			t.Error("expected error for unknown prompt")
		}
	})

	t.Run("clear and stats", func(t *testing.T) {
		templates, raw := cache.Stats()
		if templates == 0 || raw == 0 {
			t.Errorf("Stats() = %d, %d, want non-zero", templates, raw)
		}
		cache.Clear()
		templates, raw = cache.Stats()
		if templates != 0 || raw != 0 {
			t.Errorf("Stats() after Clear = %d, %d", templates, raw)
		}
	})
}

func TestBuiltinPromptsParse(t *testing.T) {
	cache := NewPromptCache("")
	if err := cache.Preload(PromptResearch, PromptGenerate, PromptGenerateBrief, PromptOptimize, PromptValidate); err != nil {
		t.Fatalf("Preload() error = %v", err)
	}
}

func TestGeneratePromptIncludesFeedback(t *testing.T) {
	cache := NewPromptCache("")
	data := PromptData{
		Request:     core.NewContentRequest("Edge caching", core.WithKeywords("cdn", "ttl"), core.WithWordCount(500)),
		ContentType: "article",
		Tone:        "formal",
		Research:    &core.ResearchOutput{EnrichedContent: "notes", Sources: []string{"a", "b"}},
		Feedback: &core.QualityFeedback{
			PreviousContent: "old draft",
			PreviousScore:   0.4,
			Threshold:       0.7,
			Details:         map[string]float64{"tone": 0.3},
		},
	}
	out, err := cache.Render(PromptGenerate, data)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"cdn, ttl", "about 500 words", "Research notes:", "Sources: a; b", "scored 0.40", "- tone: 0.30", "old draft"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q:\n%s", want, out)
		}
	}
}

package agent

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

//go:embed prompts/*.tmpl
var builtinPrompts embed.FS

var promptFuncs = template.FuncMap{
	"join": strings.Join,
}

// PromptCache parses prompt templates once. Templates in the override
// directory shadow the built-in ones of the same name.
type PromptCache struct {
	mu        sync.RWMutex
	dir       string
	templates map[string]*template.Template
	raw       map[string]string
}

// NewPromptCache creates a cache. dir may be empty.
func NewPromptCache(dir string) *PromptCache {
	return &PromptCache{
		dir:       dir,
		templates: make(map[string]*template.Template),
		raw:       make(map[string]string),
	}
}

// LoadPrompt returns the raw text of the named prompt.
func (pc *PromptCache) LoadPrompt(name string) (string, error) {
	pc.mu.RLock()
	if content, ok := pc.raw[name]; ok {
		pc.mu.RUnlock()
		return content, nil
	}
	pc.mu.RUnlock()

	content, err := pc.read(name)
	if err != nil {
		return "", err
	}

	pc.mu.Lock()
	pc.raw[name] = content
	pc.mu.Unlock()

	return content, nil
}

func (pc *PromptCache) read(name string) (string, error) {
	file := name + ".tmpl"
	if pc.dir != "" {
		content, err := os.ReadFile(filepath.Join(pc.dir, file))
		if err == nil {
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("reading prompt file: %w", err)
		}
	}
	content, err := builtinPrompts.ReadFile("prompts/" + file)
	if err != nil {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	return string(content), nil
}

// LoadTemplate loads and parses the named template.
func (pc *PromptCache) LoadTemplate(name string) (*template.Template, error) {
	pc.mu.RLock()
	if tmpl, ok := pc.templates[name]; ok {
		pc.mu.RUnlock()
		return tmpl, nil
	}
	pc.mu.RUnlock()

	content, err := pc.LoadPrompt(name)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=zero").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}

	pc.mu.Lock()
	pc.templates[name] = tmpl
	pc.mu.Unlock()

	return tmpl, nil
}

// Render executes the named template against data.
func (pc *PromptCache) Render(name string, data any) (string, error) {
	tmpl, err := pc.LoadTemplate(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Clear removes all cached prompts and templates
func (pc *PromptCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.templates = make(map[string]*template.Template)
	pc.raw = make(map[string]string)
}

// Preload parses every named template, failing on the first bad one.
func (pc *PromptCache) Preload(names ...string) error {
	for _, name := range names {
		if _, err := pc.LoadTemplate(name); err != nil {
			return fmt.Errorf("preloading %s: %w", name, err)
		}
	}
	return nil
}

// Stats returns cache statistics
func (pc *PromptCache) Stats() (templates int, raw int) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return len(pc.templates), len(pc.raw)
}

package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dotcommander/contentorc/internal/composer"
	"github.com/dotcommander/contentorc/internal/config"
)

type commandContext struct {
	configFlag string
	logLevel   string
	logJSON    bool

	logger *slog.Logger

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{logger: slog.Default()}
}

func (c *commandContext) setupLogging(w io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.logLevel))); err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if c.logJSON {
		handler = slog.NewJSONHandler(w, opts)
	}
	c.logger = slog.New(handler)
	slog.SetDefault(c.logger)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(strings.TrimSpace(c.configFlag))
	})
	return c.config, c.configErr
}

// withComposer builds the orchestrator for the duration of fn.
func (c *commandContext) withComposer(fn func(*composer.Composer) error, opts ...composer.Option) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	comp, err := composer.New(cfg, append([]composer.Option{composer.WithLogger(c.logger)}, opts...)...)
	if err != nil {
		return err
	}
	defer comp.Close()
	return fn(comp)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

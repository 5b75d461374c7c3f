package main

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/contentorc/internal/composer"
	"github.com/dotcommander/contentorc/internal/metrics"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report orchestrator health and runtime statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComposer(func(comp *composer.Composer) error {
				return writeJSON(cmd, struct {
					Health metrics.HealthReport `json:"health"`
					Stats  composer.Snapshot    `json:"stats"`
				}{comp.Health(), comp.Stats()})
			})
		},
	}
}

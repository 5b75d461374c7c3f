package main

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/contentorc/internal/composer"
	"github.com/dotcommander/contentorc/internal/core"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var (
		req      requestFlags
		fallback string
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "plan <topic>",
		Short: "Show the routing decision and execution plan without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComposer(func(comp *composer.Composer) error {
				request := req.request(args)
				plan, err := comp.Plan(request, fallback)
				if err != nil {
					return err
				}
				return writeJSON(cmd, struct {
					Decision core.RolloutDecision `json:"decision"`
					Plan     *core.ExecutionPlan  `json:"plan"`
				}{comp.Decide(request, strategy), plan})
			})
		},
	}

	req.register(cmd)
	cmd.Flags().StringVar(&fallback, "fallback", "", "Fallback strategy (default, fast, strict)")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Force a strategy (legacy, new_architecture, hybrid)")
	return cmd
}

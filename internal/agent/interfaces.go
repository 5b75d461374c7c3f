package agent

import "context"

// AIClient is the completion surface the stage adapters need.
type AIClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSONWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

package pipeline

import "github.com/tavernkit/core/pkg/prompt"

// stageTrimming runs the Trimmer over the assembled Plan. MaxInputTokens
// falls back to context_window minus reserved_response_tokens when the
// preset leaves it unset, matching how context-window-derived budgets are
// usually configured instead of a flat token count.
func stageTrimming(ctx *Context) error {
	preset := ctx.Input.Preset
	if preset == nil || ctx.Plan == nil {
		return nil
	}
	maxTokens := preset.MaxInputTokens
	if maxTokens == 0 {
		maxTokens = preset.ContextWindowTokens - preset.ReservedResponseTokens
	}

	report := prompt.Trim(ctx.Plan, prompt.TrimOptions{
		MaxInputTokens:       maxTokens,
		MessageTokenOverhead: preset.MessageTokenOverhead,
		ExamplesBehavior:     preset.ExamplesBehavior,
		Estimator:            ctx.Input.Estimator,
	})
	ctx.Plan.TrimReport = report
	if !report.Fits {
		ctx.warn("prompt exceeds max_input_tokens after trimming")
	}
	return nil
}

package pipeline

import "github.com/tavernkit/core/pkg/prompt"

// stagePlanAssembly materializes the Context's working state into the
// caller-facing prompt.Plan, resolving the requested greeting and adapting
// the lore package's Result into the lore-free LoreResultView prompt
// exposes (stage 8).
func stagePlanAssembly(ctx *Context) error {
	plan := &prompt.Plan{
		Blocks:   ctx.compiled,
		Outlets:  ctx.Outlets,
		Warnings: ctx.Warnings,
	}

	if ctx.LoreResult != nil {
		view := &prompt.LoreResultView{
			SelectedByPosition: make(map[string][]*prompt.Block, len(ctx.loreBlocksByPosition)),
			DroppedUIDs:        append([]string(nil), ctx.LoreResult.DroppedUIDs...),
		}
		for pos, blocks := range ctx.loreBlocksByPosition {
			view.SelectedByPosition[string(pos)] = blocks
		}
		plan.LoreResult = view
	}

	if char := ctx.Input.Character; char != nil {
		idx := ctx.Input.GreetingIndex
		greeting := ""
		switch {
		case idx == 0:
			greeting = char.FirstMes
		case idx > 0 && idx <= len(char.AlternateGreetings):
			greeting = char.AlternateGreetings[idx-1]
		}
		if greeting != "" && ctx.Engine != nil {
			out, warns := ctx.Engine.Expand(greeting, ctx.Env)
			for _, w := range warns {
				ctx.warn(w.Message)
			}
			greeting = out
		}
		plan.Greeting = greeting
		plan.GreetingIndex = idx
	}

	ctx.Plan = plan
	return nil
}

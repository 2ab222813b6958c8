package pipeline

import "github.com/tavernkit/core/pkg/prompt"

// stageCompilation walks the relative PromptEntry placeholders in order,
// swapping any that reference a pinned group (main_prompt, chat_history,
// world_info_<position>, ...) for that group's Blocks and macro-expanding
// the rest inline, then appends the forced-last entries (always
// post_history_instructions, pinned highest priority so Trimming never
// evicts it ahead of ordinary content) and the continuation Blocks.
func stageCompilation(ctx *Context) error {
	compiled := make([]*prompt.Block, 0, len(ctx.relative)+len(ctx.forcedLast)+len(ctx.continueBlk)+4)
	anPlaced := false

	for _, b := range ctx.relative {
		id, _ := b.Metadata["entry_id"].(string)
		if id == "authors_note" {
			anPlaced = true
		}
		if group, ok := ctx.pinned[id]; ok {
			compiled = append(compiled, group...)
			continue
		}
		compiled = append(compiled, expandEntryBlock(ctx, b))
	}

	// Author's Note has no dedicated relative PromptEntry in simpler
	// presets (its placement is driven entirely by AuthorsNotePosition /
	// AuthorsNoteDepth); fall back to appending it here when nothing in
	// effective_prompt_entries already referenced it.
	if !anPlaced {
		if an, ok := ctx.pinned["authors_note"]; ok {
			compiled = append(compiled, an...)
		}
	}

	for _, b := range ctx.forcedLast {
		id, _ := b.Metadata["entry_id"].(string)
		if group, ok := ctx.pinned[id]; ok {
			for _, g := range group {
				clone := g.Clone()
				clone.Priority = 1000
				clone.BudgetGroup = prompt.BudgetSystem
				compiled = append(compiled, clone)
			}
			continue
		}
		expanded := expandEntryBlock(ctx, b)
		expanded.Priority = 1000
		expanded.BudgetGroup = prompt.BudgetSystem
		compiled = append(compiled, expanded)
	}

	compiled = append(compiled, ctx.continueBlk...)

	ctx.compiled = compiled
	return nil
}

func expandEntryBlock(ctx *Context, b *prompt.Block) *prompt.Block {
	out, warns := ctx.Engine.Expand(b.Content, ctx.Env)
	for _, w := range warns {
		ctx.warn(w.Message)
	}
	clone := b.Clone()
	clone.Content = out
	return clone
}

package pipeline

import (
	"github.com/tavernkit/core/pkg/macro"
	"github.com/tavernkit/core/pkg/prompt"
)

// stageEntries filters effective_prompt_entries by generation-type trigger
// and conditional activation, then partitions them into relative, in_chat,
// and forced_last buckets (stage 3). The built Blocks are
// expanded inline during Compilation (stage 6), so this stage only records
// which PromptEntry values survive and where they belong.
func stageEntries(ctx *Context) error {
	if ctx.Input.Preset == nil {
		return nil
	}
	for _, e := range ctx.Input.Preset.EffectivePromptEntries {
		if !e.Enabled {
			continue
		}
		if !triggersMatch(e.Triggers, ctx.Input.GenerationType) {
			continue
		}
		if e.Condition != "" && !macro.EvalCondition(e.Condition, ctx.Env) {
			continue
		}
		entry := e
		position := entry.Position
		switch entry.ID {
		case entryIDPostHistoryInstructions:
			position = PositionRelative // re-slotted below; always forced-last
		case entryIDChatHistory, entryIDChatExamples:
			position = PositionRelative
		case "authors_note":
			if entry.Position == PositionBeforePrompt || entry.Position == PositionInPrompt {
				position = PositionRelative
			}
		}

		b := entryBlock(&entry)
		switch {
		case entry.ID == entryIDPostHistoryInstructions:
			ctx.forcedLast = append(ctx.forcedLast, b)
		case position == PositionInChat:
			ctx.inChat = append(ctx.inChat, b)
		default:
			ctx.relative = append(ctx.relative, b)
		}
	}
	return nil
}

func triggersMatch(triggers []string, generationType string) bool {
	if len(triggers) == 0 {
		return true
	}
	for _, t := range triggers {
		if t == generationType {
			return true
		}
	}
	return false
}

// entryBlock builds the placeholder Block for a PromptEntry: either a
// reference to a recognized pinned-group id (content filled at Compilation
// time) or a literal custom_prompt Block whose content still needs macro
// expansion.
func entryBlock(e *PromptEntry) *prompt.Block {
	b := prompt.NewBlock(e.Role, e.Content, prompt.SlotCustomEntry)
	if e.Role == "" {
		b.Role = prompt.RoleSystem
	}
	b.Depth = e.Depth
	b.Order = e.Order
	b.Priority = e.Priority
	b.Metadata["entry_id"] = e.ID
	b.Metadata["entry_name"] = e.Name
	b.Metadata["pinned"] = e.Pinned
	return b
}

package pipeline

import (
	"sort"

	"github.com/tavernkit/core/pkg/lore"
	"github.com/tavernkit/core/pkg/prompt"
)

// stageInjection threads in_chat PromptEntries, at-depth lore entries, and
// the character's depth_prompt into the chat-history Block sequence at
// their computed depth index, then prepends/appends the new-chat and
// continuation framing Blocks (stage 5). Depth counts back
// from the most recent message: depth 0 lands after the last message,
// depth 1 before it, and so on; entries sharing a depth are ordered
// assistant, then user, then system.
func stageInjection(ctx *Context) error {
	preset := ctx.Input.Preset
	history := append([]*prompt.Block(nil), ctx.pinned[entryIDChatHistory]...)

	if len(history) > 0 {
		last := history[len(history)-1]
		if last.Slot == prompt.SlotUserMessage && last.Content == "" && preset.ReplaceEmptyMessage != "" {
			replaced := last.Clone()
			replaced.Content = preset.ReplaceEmptyMessage
			replaced.Slot = prompt.SlotEmptyUserReplace
			history[len(history)-1] = replaced
		}
	}

	type depthBlock struct {
		depth    int
		roleRank int
		seq      int
		block    *prompt.Block
	}
	var entries []depthBlock
	seq := 0
	add := func(depth int, role prompt.Role, b *prompt.Block) {
		entries = append(entries, depthBlock{depth, roleRank(role), seq, b})
		seq++
	}

	for _, b := range ctx.inChat {
		add(b.Depth, b.Role, b)
	}

	if ctx.LoreResult != nil {
		for _, e := range ctx.LoreResult.SelectedByPosition[lore.PositionAtDepth] {
			content := e.Content
			if preset.WIFormat != "" {
				content = wrapFormat(preset.WIFormat, content)
			}
			role := prompt.Role(firstNonEmpty(e.Role, string(prompt.RoleSystem)))
			b := prompt.NewBlock(role, content, prompt.Slot(string(prompt.SlotWorldInfoPrefix)+"at_depth"))
			b.InsertionPoint = prompt.InsertionInChat
			b.BudgetGroup = prompt.BudgetLore
			b.Depth = e.Depth
			b.Priority = e.InsertionOrder
			b.Metadata["lore_uid"] = e.UID
			add(e.Depth, role, b)
		}
	}

	if char := ctx.Input.Character; char != nil && char.DepthPrompt != nil && char.DepthPrompt.Prompt != "" {
		role := char.DepthPrompt.Role
		if role == "" {
			role = prompt.RoleSystem
		}
		b := prompt.NewBlock(role, char.DepthPrompt.Prompt, prompt.SlotCharacterDesc)
		b.InsertionPoint = prompt.InsertionInChat
		b.Depth = char.DepthPrompt.Depth
		add(char.DepthPrompt.Depth, role, b)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].depth != entries[j].depth {
			return entries[i].depth < entries[j].depth
		}
		if entries[i].roleRank != entries[j].roleRank {
			return entries[i].roleRank < entries[j].roleRank
		}
		return entries[i].seq < entries[j].seq
	})

	byPos := make(map[int][]*prompt.Block)
	total := len(history)
	for _, e := range entries {
		pos := total - e.depth
		if pos < 0 {
			pos = 0
		}
		if pos > total {
			pos = total
		}
		byPos[pos] = append(byPos[pos], e.block)
	}

	merged := make([]*prompt.Block, 0, total+len(entries))
	for i := 0; i <= total; i++ {
		merged = append(merged, byPos[i]...)
		if i < total {
			merged = append(merged, history[i])
		}
	}

	switch {
	case ctx.Input.IsGroup && preset.NewGroupChatPrompt != "":
		b := prompt.NewBlock(prompt.RoleSystem, preset.NewGroupChatPrompt, prompt.SlotNewGroupChatPrompt)
		b.InsertionPoint = prompt.InsertionInChat
		merged = append([]*prompt.Block{b}, merged...)
	case !ctx.Input.IsGroup && preset.NewChatPrompt != "":
		b := prompt.NewBlock(prompt.RoleSystem, preset.NewChatPrompt, prompt.SlotNewChatPrompt)
		b.InsertionPoint = prompt.InsertionInChat
		merged = append([]*prompt.Block{b}, merged...)
	}

	if ctx.Input.GenerationType == "continue" {
		if preset.ContinueNudgePrompt != "" {
			b := prompt.NewBlock(prompt.RoleSystem, preset.ContinueNudgePrompt, prompt.SlotContinueNudge)
			b.InsertionPoint = prompt.InsertionInChat
			merged = append(merged, b)
		}
		if preset.ContinuePostfix != "" {
			b := prompt.NewBlock(prompt.RoleAssistant, preset.ContinuePostfix, prompt.SlotContinuePostfix)
			b.InsertionPoint = prompt.InsertionInChat
			ctx.continueBlk = append(ctx.continueBlk, b)
		}
	}

	if ctx.Input.IsGroup && preset.GroupNudgePrompt != "" {
		b := prompt.NewBlock(prompt.RoleSystem, preset.GroupNudgePrompt, prompt.SlotGroupNudge)
		b.InsertionPoint = prompt.InsertionInChat
		merged = append(merged, b)
	}

	ctx.pinned[entryIDChatHistory] = merged
	return nil
}

func roleRank(role prompt.Role) int {
	switch role {
	case prompt.RoleAssistant:
		return 0
	case prompt.RoleUser:
		return 1
	default:
		return 2
	}
}

package pipeline

import (
	"strings"

	"github.com/tavernkit/core/pkg/exampledialog"
	"github.com/tavernkit/core/pkg/lore"
	"github.com/tavernkit/core/pkg/prompt"
)

// stagePinnedGroups builds the content Blocks of every recognized pinned
// slot (stage 4).
func stagePinnedGroups(ctx *Context) error {
	preset := ctx.Input.Preset
	char := ctx.Input.Character
	persona := ctx.Input.Persona

	expand := func(s string) string {
		out, warns := ctx.Engine.Expand(s, ctx.Env)
		for _, w := range warns {
			ctx.warn(w.Message)
		}
		return out
	}

	mainPrompt := preset.MainPrompt
	if preset.PreferCharPrompt && char != nil && char.SystemPrompt != "" {
		mainPrompt = char.SystemPrompt
	}
	ctx.setPinned(entryIDMainPrompt, prompt.RoleSystem, prompt.SlotMainPrompt, expand(mainPrompt))

	if persona != nil && persona.Description != "" {
		ctx.setPinned("persona_description", prompt.RoleSystem, prompt.SlotPersonaDesc, expand(persona.Description))
	}
	if char != nil {
		if char.Description != "" {
			ctx.setPinned("character_description", prompt.RoleSystem, prompt.SlotCharacterDesc, expand(char.Description))
		}
		if char.Personality != "" {
			content := char.Personality
			if preset.PersonalityFormat != "" {
				content = wrapFormat(preset.PersonalityFormat, content)
			}
			ctx.setPinned("character_personality", prompt.RoleSystem, prompt.SlotCharacterPersona, expand(content))
		}
		if char.Scenario != "" {
			content := char.Scenario
			if preset.ScenarioFormat != "" {
				content = wrapFormat(preset.ScenarioFormat, content)
			}
			ctx.setPinned("scenario", prompt.RoleSystem, prompt.SlotScenario, expand(content))
		}
	}
	if preset.EnhanceDefinitions != "" {
		ctx.setPinned("enhance_definitions", prompt.RoleSystem, prompt.SlotEnhanceDefs, expand(preset.EnhanceDefinitions))
	}
	if preset.AuxiliaryPrompt != "" {
		ctx.setPinned("auxiliary_prompt", prompt.RoleSystem, prompt.SlotAuxiliaryPrompt, expand(preset.AuxiliaryPrompt))
	}

	phi := preset.PostHistoryInstructions
	if preset.PreferCharInstructions && char != nil && char.PostHistoryInstructions != "" {
		phi = char.PostHistoryInstructions
	}
	if phi != "" {
		ctx.setPinned(entryIDPostHistoryInstructions, prompt.RoleSystem, prompt.SlotPostHistoryInstr, expand(phi))
	}

	if char != nil && char.MesExample != "" {
		groups := exampledialog.Parse(expand(char.MesExample), personaName(persona), char.Name)
		blocks := make([]*prompt.Block, 0, len(groups)*2+len(groups))
		for _, g := range groups {
			if preset.NewExampleChat != "" {
				sep := prompt.NewBlock(prompt.RoleSystem, expand(preset.NewExampleChat), prompt.SlotNewExampleChat)
				sep.BudgetGroup = prompt.BudgetExamples
				sep.Metadata["example_block"] = g.Turns[0].Content
				blocks = append(blocks, sep)
			}
			for _, turn := range g.Turns {
				role := prompt.RoleUser
				if turn.Role == exampledialog.RoleAssistant {
					role = prompt.RoleAssistant
				}
				b := prompt.NewBlock(role, turn.Content, prompt.SlotChatExamples)
				b.BudgetGroup = prompt.BudgetExamples
				b.Metadata["example_block"] = g.Turns[0].Content
				blocks = append(blocks, b)
			}
		}
		ctx.pinned[entryIDChatExamples] = blocks
	}

	ctx.pinned[entryIDChatHistory] = ctx.buildHistoryBlocks(expand)

	if preset.AuthorsNote != "" && authorsNoteDue(ctx.Input.TurnCount, preset.AuthorsNoteFrequency) {
		role := preset.AuthorsNoteRole
		if role == "" {
			role = prompt.RoleSystem
		}
		content := preset.AuthorsNote
		if wiResult := ctx.LoreResult; wiResult != nil && preset.AuthorsNoteAllowWIScan {
			if top := lore.PositionTopAN; len(wiResult.SelectedByPosition[top]) > 0 {
				content = joinLoreContent(wiResult.SelectedByPosition[top]) + "\n" + content
			}
			if bottom := lore.PositionBottomAN; len(wiResult.SelectedByPosition[bottom]) > 0 {
				content += "\n" + joinLoreContent(wiResult.SelectedByPosition[bottom])
			}
		}
		b := prompt.NewBlock(role, expand(content), prompt.SlotAuthorsNote)
		b.Depth = preset.AuthorsNoteDepth
		ctx.pinned["authors_note"] = []*prompt.Block{b}
	}

	ctx.loreBlocksByPosition = make(map[lore.Position][]*prompt.Block)
	if ctx.LoreResult != nil {
		for pos, entries := range ctx.LoreResult.SelectedByPosition {
			if pos == lore.PositionAtDepth || pos == lore.PositionTopAN || pos == lore.PositionBottomAN {
				continue // consumed by Injection/AuthorsNote, not a pinned group
			}
			blocks := make([]*prompt.Block, 0, len(entries))
			for _, e := range entries {
				content := e.Content
				if preset.WIFormat != "" {
					content = wrapFormat(preset.WIFormat, content)
				}
				b := prompt.NewBlock(prompt.Role(firstNonEmpty(e.Role, string(prompt.RoleSystem))), expand(content), prompt.Slot(string(prompt.SlotWorldInfoPrefix)+string(pos)))
				b.BudgetGroup = prompt.BudgetLore
				b.Priority = e.InsertionOrder
				b.Order = e.InsertionOrder
				b.Metadata["lore_uid"] = e.UID
				blocks = append(blocks, b)
			}
			ctx.pinned["world_info_"+string(pos)] = blocks
			ctx.loreBlocksByPosition[pos] = blocks
		}
	}

	return nil
}

func (ctx *Context) setPinned(id string, role prompt.Role, slot prompt.Slot, content string) {
	if content == "" {
		return
	}
	ctx.pinned[id] = []*prompt.Block{prompt.NewBlock(role, content, slot)}
}

// buildHistoryBlocks renders each ChatHistory message plus the current user
// message as ordered, in-chat Blocks (stage 4 "chat_history").
func (ctx *Context) buildHistoryBlocks(expand func(string) string) []*prompt.Block {
	history := ctx.Input.History
	blocks := make([]*prompt.Block, 0, len(history)+1)
	for _, m := range history {
		if m.ExcludedFromPrompt {
			continue
		}
		b := prompt.NewBlock(m.Role, m.Content, prompt.SlotChatHistory)
		b.InsertionPoint = prompt.InsertionInChat
		b.BudgetGroup = prompt.BudgetHistory
		b.Order = m.Seq
		b.Name = m.Name
		blocks = append(blocks, b)
	}
	user := prompt.NewBlock(prompt.RoleUser, expand(ctx.Input.UserMessage), prompt.SlotUserMessage)
	user.InsertionPoint = prompt.InsertionInChat
	user.BudgetGroup = prompt.BudgetHistory
	if len(history) > 0 {
		user.Order = history[len(history)-1].Seq + 1
	}
	blocks = append(blocks, user)
	return blocks
}

func authorsNoteDue(turnCount, frequency int) bool {
	if frequency == 0 {
		return false
	}
	return turnCount%frequency == 0
}

func wrapFormat(format, content string) string {
	return strings.ReplaceAll(format, "{0}", content)
}

func joinLoreContent(entries []*lore.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Content)
	}
	return strings.Join(parts, "\n")
}

func personaName(p *Persona) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

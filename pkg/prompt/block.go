// Package prompt holds the canonical in-memory representation of a unit of
// prompt text (Block) and the ordered sequence that results from running
// the pipeline (Plan), plus the Trimmer (C8) that shrinks a Plan to a
// token budget; the middleware pipeline (C7) that builds a Plan lives in
// pkg/pipeline. Generalized from a role-tagged message/request
// shape to carry the routing metadata the dialect converters need.
package prompt

import "github.com/google/uuid"

// Role is the chat role a Block renders under.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// InsertionPoint says whether a Block sits among the free-floating
// "relative" content or is threaded into the chat history itself.
type InsertionPoint string

const (
	InsertionRelative InsertionPoint = "relative"
	InsertionInChat   InsertionPoint = "in_chat"
)

// BudgetGroup buckets a Block for Trimmer eviction order.
type BudgetGroup string

const (
	BudgetSystem   BudgetGroup = "system"
	BudgetHistory  BudgetGroup = "history"
	BudgetExamples BudgetGroup = "examples"
	BudgetLore     BudgetGroup = "lore"
	BudgetCustom   BudgetGroup = "custom"
)

// Slot names the pinned/semantic origin of a Block, used by Injection and
// Compilation stages to find the chat-history boundary and by the Trimmer
// to recognize "never evict" blocks.
type Slot string

const (
	SlotMainPrompt         Slot = "main_prompt"
	SlotPersonaDesc        Slot = "persona_description"
	SlotCharacterDesc      Slot = "character_description"
	SlotCharacterPersona   Slot = "character_personality"
	SlotScenario           Slot = "scenario"
	SlotEnhanceDefs        Slot = "enhance_definitions"
	SlotAuxiliaryPrompt    Slot = "auxiliary_prompt"
	SlotPostHistoryInstr   Slot = "post_history_instructions"
	SlotChatExamples       Slot = "chat_examples"
	SlotNewExampleChat     Slot = "new_example_chat"
	SlotChatHistory        Slot = "history"
	SlotUserMessage        Slot = "user_message"
	SlotEmptyUserReplace   Slot = "empty_user_message_replacement"
	SlotAuthorsNote        Slot = "authors_note"
	SlotNewChatPrompt      Slot = "new_chat_prompt"
	SlotNewGroupChatPrompt Slot = "new_group_chat_prompt"
	SlotGroupNudge         Slot = "group_nudge_prompt"
	SlotContinueNudge      Slot = "continue_nudge"
	SlotContinuePostfix    Slot = "continue_postfix"
	SlotCustomEntry        Slot = "custom_prompt"
	SlotWorldInfoPrefix    Slot = "world_info_" // + position
)

// Block is a single addressable piece of prompt text with routing
// metadata (Block).
type Block struct {
	ID             string
	Role           Role
	Content        string
	Name           string
	Slot           Slot
	InsertionPoint InsertionPoint
	Depth          int
	Order          int
	Priority       int
	BudgetGroup    BudgetGroup
	Tags           []string
	Metadata       map[string]any
	Enabled        bool
}

// NewBlock creates an enabled Block with a fresh stable ID.
func NewBlock(role Role, content string, slot Slot) *Block {
	return &Block{
		ID:             uuid.NewString(),
		Role:           role,
		Content:        content,
		Slot:           slot,
		InsertionPoint: InsertionRelative,
		BudgetGroup:    BudgetCustom,
		Enabled:        true,
		Metadata:       make(map[string]any),
	}
}

// Clone returns a deep-enough copy of the Block (Metadata and Tags are
// copied) so pipeline stages can freely mutate a working copy.
func (b *Block) Clone() *Block {
	clone := *b
	if b.Tags != nil {
		clone.Tags = append([]string(nil), b.Tags...)
	}
	if b.Metadata != nil {
		clone.Metadata = make(map[string]any, len(b.Metadata))
		for k, v := range b.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Plan is the immutable (by convention — callers should not mutate after
// PlanAssembly) outcome of the pipeline.
type Plan struct {
	Blocks        []*Block
	Outlets       map[string]string
	LoreResult    *LoreResultView
	TrimReport    *TrimReport
	Greeting      string
	GreetingIndex int
	Warnings      []string
}

// LoreResultView is the subset of a lore.Result the Plan exposes, kept as
// an interface{}-free local type so this package doesn't import lore
// (neither package imports the other; pkg/pipeline's planassembly.go
// adapts a lore.Result into this view).
type LoreResultView struct {
	SelectedByPosition map[string][]*Block
	DroppedUIDs        []string
}

// TrimReport records the Trimmer's audit trail.
type TrimReport struct {
	RemovedExampleGroups []string
	RemovedLoreUIDs      []string
	RemovedHistoryCount  int
	TokensBefore         int
	TokensAfter          int
	Fits                 bool
}

// EnabledBlocks returns the Blocks with Enabled == true, preserving order.
func (p *Plan) EnabledBlocks() []*Block {
	out := make([]*Block, 0, len(p.Blocks))
	for _, b := range p.Blocks {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

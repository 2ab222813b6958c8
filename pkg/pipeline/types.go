// Package pipeline implements the Prompt Pipeline (C7): the
// nine-stage middleware chain (Hooks → Lore → Entries → PinnedGroups →
// Injection → Compilation → MacroExpansion → PlanAssembly → Trimming) that
// turns a Character + Persona + ChatHistory + Preset + LoreBook set into an
// assembled prompt.Plan. A fixed sequence of context-mutating steps run in
// order by Build, generalized from "build one LLM call's messages" to
// this module's richer pinned-group/lore/trim pipeline.
package pipeline

import (
	"math/rand"

	"github.com/tavernkit/core/pkg/chatvars"
	"github.com/tavernkit/core/pkg/lore"
	"github.com/tavernkit/core/pkg/macro"
	"github.com/tavernkit/core/pkg/prompt"
	"github.com/tavernkit/core/pkg/tokencount"
)

// DepthPrompt is a Character's extensions.depth_prompt field.
type DepthPrompt struct {
	Prompt string
	Depth  int
	Role   prompt.Role
}

// Character is the immutable character-card data describes.
type Character struct {
	Name                    string
	Description             string
	Personality             string
	Scenario                string
	SystemPrompt            string
	PostHistoryInstructions string
	MesExample              string
	FirstMes                string
	AlternateGreetings      []string
	CreatorNotes            string
	CharacterVersion        string
	DepthPrompt             *DepthPrompt
	Book                    *lore.Book
}

// Persona is the user-side identity (Participant, persona case).
type Persona struct {
	Name        string
	Description string
}

// Message is one ChatHistory entry (Message, the subset this
// pipeline reads).
type Message struct {
	Role               prompt.Role
	Content            string
	Name               string
	ExcludedFromPrompt bool
	Seq                int
}

// PromptEntryPosition is where a PromptEntry's content attaches.
type PromptEntryPosition string

const (
	PositionRelative     PromptEntryPosition = "relative"
	PositionInChat       PromptEntryPosition = "in_chat"
	PositionBeforePrompt PromptEntryPosition = "before_prompt"
	PositionInPrompt     PromptEntryPosition = "in_prompt"
)

// PromptEntry is a preset-level directive (PromptEntry).
type PromptEntry struct {
	ID              string
	Name            string
	Enabled         bool
	Pinned          bool
	Role            prompt.Role
	Position        PromptEntryPosition
	Depth           int
	Order           int
	Priority        int
	Content         string
	Triggers        []string // generation types this entry activates for; empty = all
	ForbidOverrides bool
	Condition       string // bare-identifier/equality macro condition, empty = always
}

const (
	entryIDPostHistoryInstructions = "post_history_instructions"
	entryIDChatHistory             = "chat_history"
	entryIDChatExamples            = "chat_examples"
	entryIDMainPrompt              = "main_prompt"
)

// Preset is the named bundle of templates and knobs (Preset).
type Preset struct {
	MainPrompt              string
	PostHistoryInstructions string
	PersonalityFormat       string
	ScenarioFormat          string
	NewChatPrompt           string
	NewGroupChatPrompt      string
	NewExampleChat          string
	ContinueNudgePrompt     string
	ContinuePostfix         string
	GroupNudgePrompt        string
	WIFormat                string
	AuthorsNote             string
	AuthorsNotePosition     lore.Position
	AuthorsNoteDepth        int
	AuthorsNoteRole         prompt.Role
	AuthorsNoteFrequency    int
	AuthorsNoteAllowWIScan  bool
	EnhanceDefinitions      string
	AuxiliaryPrompt         string
	ReplaceEmptyMessage     string

	ContextWindowTokens    int
	ReservedResponseTokens int
	MaxInputTokens         int
	MessageTokenOverhead   int
	ExamplesBehavior       prompt.ExamplesBehavior

	WorldInfoDepth                  int
	WorldInfoBudget                 int
	WorldInfoMinActivations         int
	WorldInfoMinActivationsDepthMax int
	WorldInfoUseGroupScoring        bool
	CharacterLoreInsertionStrategy  string
	WorldInfoIncludeNames           bool

	PreferCharPrompt       bool
	PreferCharInstructions bool
	ContinuePrefill        string

	EffectivePromptEntries []PromptEntry
}

// Hooks are the user-supplied before/after callables (stage 1).
type Hooks struct {
	BeforeBuild func(*Context) error
	AfterBuild  func(*prompt.Plan)
}

// BuildInput is everything the pipeline needs for one Build call.
type BuildInput struct {
	Character      *Character
	Persona        *Persona
	History        []Message
	UserMessage    string
	Preset         *Preset
	LoreBooks      []*lore.Book
	GenerationType string // "normal", "continue", "impersonate", ...
	TurnCount      int
	CurrentTurn    int
	GreetingIndex  int
	IsGroup        bool
	GroupMembers   []string
	Vars           chatvars.Store
	Rand           *rand.Rand
	Estimator      tokencount.Estimator
	Hooks          *Hooks
	Strict         bool
}

// Context is the shared mutable state threaded through the middleware
// stages ("model the Context as an owned struct moved through a
// pipeline of functions").
type Context struct {
	Input BuildInput

	Engine     *macro.Engine
	Env        *macro.Env
	LoreResult *lore.Result
	Outlets    map[string]string

	pinned               map[string][]*prompt.Block
	loreBlocksByPosition map[lore.Position][]*prompt.Block
	relative             []*prompt.Block
	inChat               []*prompt.Block
	forcedLast           []*prompt.Block
	continueBlk          []*prompt.Block
	compiled             []*prompt.Block

	Plan *prompt.Plan

	Warnings []string
	Strict   bool
}

func newContext(input BuildInput) *Context {
	return &Context{
		Input:   input,
		Outlets: make(map[string]string),
		pinned:  make(map[string][]*prompt.Block),
		Strict:  input.Strict,
	}
}

func (c *Context) warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

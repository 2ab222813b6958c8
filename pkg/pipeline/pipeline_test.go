package pipeline

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernkit/core/pkg/chatvars"
	"github.com/tavernkit/core/pkg/lore"
	"github.com/tavernkit/core/pkg/prompt"
)

func basicInput() BuildInput {
	return BuildInput{
		Character: &Character{
			Name:        "Mika",
			Description: "{{char}} is a lighthouse keeper.",
			Personality: "warm, watchful",
			Scenario:    "A storm is coming.",
			FirstMes:    "Hello, {{user}}.",
		},
		Persona: &Persona{Name: "Alice", Description: "a sailor"},
		History: []Message{
			{Role: prompt.RoleUser, Content: "hi", Seq: 0},
			{Role: prompt.RoleAssistant, Content: "hello there", Seq: 1},
		},
		UserMessage:    "how's the weather?",
		GenerationType: "normal",
		TurnCount:      1,
		CurrentTurn:    1,
		Preset: &Preset{
			MainPrompt:              "You are {{char}}, speaking with {{user}}.",
			PostHistoryInstructions: "Stay in character as {{char}}.",
			MaxInputTokens:          2000,
			ExamplesBehavior:        prompt.ExamplesAlwaysKeep,
			EffectivePromptEntries: []PromptEntry{
				{ID: entryIDMainPrompt, Enabled: true, Position: PositionRelative, Order: 0},
				{ID: entryIDChatHistory, Enabled: true, Position: PositionRelative, Order: 1},
				{ID: entryIDPostHistoryInstructions, Enabled: true, Position: PositionRelative, Order: 2},
			},
		},
		Vars: chatvars.NewMemory(),
		Rand: rand.New(rand.NewSource(1)),
	}
}

func TestBuildAssemblesPlanWithExpandedMacros(t *testing.T) {
	plan, err := Build(basicInput())
	require.NoError(t, err)
	require.NotNil(t, plan)

	var mainPrompt, phi *prompt.Block
	for _, b := range plan.Blocks {
		switch b.Slot {
		case prompt.SlotMainPrompt:
			mainPrompt = b
		case prompt.SlotPostHistoryInstr:
			phi = b
		}
	}
	require.NotNil(t, mainPrompt)
	assert.Equal(t, "You are Mika, speaking with Alice.", mainPrompt.Content)

	require.NotNil(t, phi)
	assert.Equal(t, "Stay in character as Mika.", phi.Content)
	assert.Equal(t, 1000, phi.Priority)
	assert.Equal(t, prompt.BudgetSystem, phi.BudgetGroup)

	assert.Equal(t, "Hello, Alice.", plan.Greeting)
	assert.Equal(t, 0, plan.GreetingIndex)
}

func TestBuildOrdersHistoryBeforeUserMessage(t *testing.T) {
	plan, err := Build(basicInput())
	require.NoError(t, err)

	var historyContents []string
	for _, b := range plan.Blocks {
		if b.BudgetGroup == prompt.BudgetHistory {
			historyContents = append(historyContents, b.Content)
		}
	}
	require.Len(t, historyContents, 3)
	assert.Equal(t, "hi", historyContents[0])
	assert.Equal(t, "hello there", historyContents[1])
	assert.Equal(t, "how's the weather?", historyContents[2])
}

func TestBuildRejectsMissingCharacter(t *testing.T) {
	in := basicInput()
	in.Character = nil
	_, err := Build(in)
	assert.Error(t, err)
}

func TestBuildRejectsOutOfRangeGreetingIndex(t *testing.T) {
	in := basicInput()
	in.GreetingIndex = 3
	_, err := Build(in)
	assert.Error(t, err)
}

func TestBuildResolvesAlternateGreeting(t *testing.T) {
	in := basicInput()
	in.Character.AlternateGreetings = []string{"Good evening, {{user}}."}
	in.GreetingIndex = 1
	plan, err := Build(in)
	require.NoError(t, err)
	assert.Equal(t, "Good evening, Alice.", plan.Greeting)
}

func TestBuildInjectsAtDepthLoreIntoChatHistory(t *testing.T) {
	in := basicInput()
	in.LoreBooks = []*lore.Book{{
		Name:      "book",
		ScanDepth: 5,
		Source:    lore.SourceGlobal,
		Entries: []*lore.Entry{{
			UID:         "e1",
			PrimaryKeys: []string{"weather"},
			Logic:       lore.LogicOr,
			Position:    lore.PositionAtDepth,
			Depth:       0,
			Probability: 100,
			Content:     "The storm grows worse by the hour.",
		}},
	}}
	in.Preset.WorldInfoBudget = 500

	plan, err := Build(in)
	require.NoError(t, err)

	var found bool
	for _, b := range plan.Blocks {
		if b.Content == "The storm grows worse by the hour." {
			found = true
			assert.Equal(t, prompt.InsertionInChat, b.InsertionPoint)
		}
	}
	assert.True(t, found, "expected at-depth lore entry to appear in the assembled plan")
}

func TestBuildAppliesTrimReport(t *testing.T) {
	in := basicInput()
	in.Preset.MaxInputTokens = 1
	plan, err := Build(in)
	require.NoError(t, err)
	require.NotNil(t, plan.TrimReport)
	assert.False(t, plan.TrimReport.Fits)
}

func TestBuildContinueGenerationAddsPostfixBlock(t *testing.T) {
	in := basicInput()
	in.GenerationType = "continue"
	in.Preset.ContinuePostfix = "..."
	plan, err := Build(in)
	require.NoError(t, err)

	var found bool
	for _, b := range plan.Blocks {
		if b.Slot == prompt.SlotContinuePostfix {
			found = true
			assert.Equal(t, "...", b.Content)
		}
	}
	assert.True(t, found)
}

package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernkit/core/pkg/tokencount"
)

func fixedEstimator(tokensPerBlock map[string]int) tokencount.Estimator {
	return tokencount.Func(func(s string) int { return tokensPerBlock[s] })
}

func TestTrimEvictsExamplesByDescendingPriorityThenMinOrder(t *testing.T) {
	// Example-group eviction order: descending priority, ties by
	// ascending insertion order.
	plan := &Plan{}
	costs := map[string]int{"system": 100}

	sys := NewBlock(RoleSystem, "system", SlotMainPrompt)
	sys.BudgetGroup = BudgetSystem
	plan.Blocks = append(plan.Blocks, sys)

	addExampleGroup := func(name string, priority, order, tokens int) {
		costs[name] = tokens
		b := NewBlock(RoleSystem, name, SlotChatExamples)
		b.BudgetGroup = BudgetExamples
		b.Priority = priority
		b.Order = order
		b.Metadata["example_block"] = name
		plan.Blocks = append(plan.Blocks, b)
	}
	addExampleGroup("exampleA", 200, 0, 200)
	addExampleGroup("exampleB", 210, 1, 200)
	addExampleGroup("exampleC", 220, 2, 200)

	// total = 100 + 200*3 = 700; budget 400 forces removing the two
	// highest-priority groups (C then B) to reach 300 <= 400.
	report := Trim(plan, TrimOptions{
		MaxInputTokens:   400,
		ExamplesBehavior: ExamplesTrim,
		Estimator:        fixedEstimator(costs),
	})

	assert.ElementsMatch(t, []string{"exampleC", "exampleB"}, report.RemovedExampleGroups)
	assert.True(t, sys.Enabled)
	require.True(t, report.Fits)
	assert.Equal(t, 300, report.TokensAfter)
}

func TestTrimExamplesDisabledRemovesAllExamples(t *testing.T) {
	plan := &Plan{}
	costs := map[string]int{"system": 50, "ex": 50}
	sys := NewBlock(RoleSystem, "system", SlotMainPrompt)
	sys.BudgetGroup = BudgetSystem
	ex := NewBlock(RoleSystem, "ex", SlotChatExamples)
	ex.BudgetGroup = BudgetExamples
	ex.Metadata["example_block"] = "ex"
	plan.Blocks = []*Block{sys, ex}

	report := Trim(plan, TrimOptions{
		MaxInputTokens:   10,
		ExamplesBehavior: ExamplesDisabled,
		Estimator:        fixedEstimator(costs),
	})
	assert.False(t, ex.Enabled)
	assert.Contains(t, report.RemovedExampleGroups, "ex")
}

func TestTrimAlwaysKeepNeverEvictsExamples(t *testing.T) {
	plan := &Plan{}
	costs := map[string]int{"ex": 500}
	ex := NewBlock(RoleSystem, "ex", SlotChatExamples)
	ex.BudgetGroup = BudgetExamples
	ex.Metadata["example_block"] = "ex"
	plan.Blocks = []*Block{ex}

	report := Trim(plan, TrimOptions{
		MaxInputTokens:   10,
		ExamplesBehavior: ExamplesAlwaysKeep,
		Estimator:        fixedEstimator(costs),
	})
	assert.True(t, ex.Enabled)
	assert.False(t, report.Fits)
}

func TestTrimEvictsLoreByDescendingPriorityThenOrder(t *testing.T) {
	plan := &Plan{}
	costs := map[string]int{}
	addLore := func(uid string, priority, order, tokens int) *Block {
		costs[uid] = tokens
		b := NewBlock(RoleSystem, uid, "world_info_before_char_defs")
		b.BudgetGroup = BudgetLore
		b.Priority = priority
		b.Order = order
		b.Metadata["lore_uid"] = uid
		plan.Blocks = append(plan.Blocks, b)
		return b
	}
	addLore("loreA", 100, 0, 100)
	addLore("loreB", 110, 1, 100)

	// total = 200; budget 150 forces removing the higher-priority entry
	// (loreB) only.
	report := Trim(plan, TrimOptions{
		MaxInputTokens:   150,
		ExamplesBehavior: ExamplesAlwaysKeep,
		Estimator:        fixedEstimator(costs),
	})
	assert.Equal(t, []string{"loreB"}, report.RemovedLoreUIDs)
	require.True(t, report.Fits)
}

func TestTrimEvictsHistoryOldestFirst(t *testing.T) {
	plan := &Plan{}
	costs := map[string]int{}
	addHistory := func(name string, order, tokens int, slot Slot) *Block {
		costs[name] = tokens
		b := NewBlock(RoleUser, name, slot)
		b.BudgetGroup = BudgetHistory
		b.Order = order
		plan.Blocks = append(plan.Blocks, b)
		return b
	}
	h1 := addHistory("h1", 1, 100, SlotChatHistory)
	h2 := addHistory("h2", 2, 100, SlotChatHistory)
	h3 := addHistory("h3", 3, 100, SlotChatHistory)
	user := addHistory("current", 4, 100, SlotUserMessage)

	// total = 400 (h1..h3 + current, 100 each); budget 350 only requires
	// evicting the single oldest history block (h1) to fit.
	report := Trim(plan, TrimOptions{
		MaxInputTokens:   350,
		ExamplesBehavior: ExamplesAlwaysKeep,
		Estimator:        fixedEstimator(costs),
	})
	assert.False(t, h1.Enabled)
	assert.True(t, h2.Enabled)
	assert.True(t, h3.Enabled)
	assert.True(t, user.Enabled, "current user message must never be evicted")
	assert.Equal(t, 1, report.RemovedHistoryCount)
}

func TestTrimNoOpWhenUnderBudget(t *testing.T) {
	plan := &Plan{Blocks: []*Block{NewBlock(RoleSystem, "hi", SlotMainPrompt)}}
	report := Trim(plan, TrimOptions{MaxInputTokens: 1000, Estimator: tokencount.WhitespaceHeuristic})
	require.True(t, report.Fits)
	assert.Equal(t, report.TokensBefore, report.TokensAfter)
}

func TestTrimZeroBudgetEvictsEverythingEvictable(t *testing.T) {
	// boundary: max_input_tokens=0 with total>0.
	plan := &Plan{}
	sys := NewBlock(RoleSystem, "system prompt", SlotMainPrompt)
	sys.BudgetGroup = BudgetSystem
	user := NewBlock(RoleUser, "hello", SlotUserMessage)
	user.BudgetGroup = BudgetHistory
	hist := NewBlock(RoleUser, "older message", SlotChatHistory)
	hist.BudgetGroup = BudgetHistory
	hist.Order = 1
	plan.Blocks = []*Block{sys, user, hist}

	report := Trim(plan, TrimOptions{MaxInputTokens: 0, Estimator: tokencount.WhitespaceHeuristic})
	assert.False(t, report.Fits)
	assert.True(t, sys.Enabled)
	assert.True(t, user.Enabled)
	assert.False(t, hist.Enabled)
}

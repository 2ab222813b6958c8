package exampledialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleGroup(t *testing.T) {
	raw := "<START>\nAlice: Hi there!\nMika: Hello, adventurer.\n"
	groups := Parse(raw, "Alice", "Mika")
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Turns, 2)
	assert.Equal(t, RoleUser, groups[0].Turns[0].Role)
	assert.Equal(t, "Hi there!", groups[0].Turns[0].Content)
	assert.Equal(t, RoleAssistant, groups[0].Turns[1].Role)
	assert.Equal(t, "Hello, adventurer.", groups[0].Turns[1].Content)
}

func TestParseMultipleGroups(t *testing.T) {
	raw := "<START>\nAlice: one\nMika: two\n<START>\nAlice: three\nMika: four\n"
	groups := Parse(raw, "Alice", "Mika")
	require.Len(t, groups, 2)
}

func TestParseContinuationLines(t *testing.T) {
	raw := "<START>\nAlice: first line\nsecond line\nMika: reply\n"
	groups := Parse(raw, "Alice", "Mika")
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Turns, 2)
	assert.Equal(t, "first line\nsecond line", groups[0].Turns[0].Content)
}

func TestParseEmpty(t *testing.T) {
	assert.Empty(t, Parse("", "Alice", "Mika"))
	assert.Empty(t, Parse("   ", "Alice", "Mika"))
}

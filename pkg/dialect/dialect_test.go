package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernkit/core/pkg/prompt"
)

func inChatBlock(role prompt.Role, content string, depth, order int) *prompt.Block {
	b := prompt.NewBlock(role, content, prompt.SlotChatHistory)
	b.InsertionPoint = prompt.InsertionInChat
	b.Depth = depth
	b.Order = order
	return b
}

func TestConvertEmptyPlanYieldsPlaceholder(t *testing.T) {
	plan := &prompt.Plan{}
	for _, name := range []Name{OpenAI, Anthropic, Google, Mistral, AI21, Cohere, XAI, TextCompletion, Raw} {
		out, err := Convert(name, plan)
		require.NoError(t, err, name)
		require.NotNil(t, out, name)
	}
}

func TestConvertUnknownDialectErrors(t *testing.T) {
	_, err := Convert(Name("made_up"), &prompt.Plan{})
	assert.Error(t, err)
}

func TestMergeConsecutiveInChatBlocksWithEqualRoleDepthOrder(t *testing.T) {
	plan := &prompt.Plan{Blocks: []*prompt.Block{
		inChatBlock(prompt.RoleUser, "hello", 0, 0),
		inChatBlock(prompt.RoleUser, "world", 0, 0),
		inChatBlock(prompt.RoleAssistant, "hi", 0, 1),
	}}
	msgs := toMessages(plan)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello\nworld", msgs[0].Content)
}

func TestOpenAISquashesConsecutiveSystemMessages(t *testing.T) {
	sys1 := prompt.NewBlock(prompt.RoleSystem, "rule one", prompt.SlotMainPrompt)
	sys2 := prompt.NewBlock(prompt.RoleSystem, "rule two", prompt.SlotAuxiliaryPrompt)
	user := prompt.NewBlock(prompt.RoleUser, "hi", prompt.SlotUserMessage)
	plan := &prompt.Plan{Blocks: []*prompt.Block{sys1, sys2, user}}

	out, err := ConvertOpenAI(plan)
	require.NoError(t, err)
	req := out.(OpenAIRequest)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "rule one\nrule two", req.Messages[0].Content)
}

func TestOpenAIDoesNotSquashNamedSystemMessage(t *testing.T) {
	sys1 := prompt.NewBlock(prompt.RoleSystem, "rule one", prompt.SlotMainPrompt)
	sys2 := prompt.NewBlock(prompt.RoleSystem, "rule two", prompt.SlotAuxiliaryPrompt)
	sys2.Metadata["name"] = "narrator"
	plan := &prompt.Plan{Blocks: []*prompt.Block{sys1, sys2}}

	out, err := ConvertOpenAI(plan)
	require.NoError(t, err)
	req := out.(OpenAIRequest)
	require.Len(t, req.Messages, 2)
}

func TestAnthropicExtractsLeadingSystemAndAlternates(t *testing.T) {
	sys := prompt.NewBlock(prompt.RoleSystem, "be concise", prompt.SlotMainPrompt)
	u1 := prompt.NewBlock(prompt.RoleUser, "hi", prompt.SlotUserMessage)
	u2 := prompt.NewBlock(prompt.RoleUser, "there", prompt.SlotUserMessage)
	a1 := prompt.NewBlock(prompt.RoleAssistant, "hello", prompt.SlotChatHistory)
	plan := &prompt.Plan{Blocks: []*prompt.Block{sys, u1, u2, a1}}

	out, err := ConvertAnthropic(plan)
	require.NoError(t, err)
	req := out.(AnthropicRequest)
	require.Len(t, req.System, 1)
	assert.Equal(t, "be concise", req.System[0].Text)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
}

func TestAnthropicEmptyTextBecomesZeroWidthPlaceholder(t *testing.T) {
	u := prompt.NewBlock(prompt.RoleUser, "", prompt.SlotUserMessage)
	plan := &prompt.Plan{Blocks: []*prompt.Block{u}}
	out, err := ConvertAnthropic(plan)
	require.NoError(t, err)
	req := out.(AnthropicRequest)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, zeroWidthPlaceholder, req.Messages[0].Content[0].Text)
}

func TestGoogleMapsRolesAndDataURLs(t *testing.T) {
	sys := prompt.NewBlock(prompt.RoleSystem, "sys", prompt.SlotMainPrompt)
	a := prompt.NewBlock(prompt.RoleAssistant, "data:image/png;base64,Zm9v", prompt.SlotChatHistory)
	plan := &prompt.Plan{Blocks: []*prompt.Block{sys, a}}

	out, err := ConvertGoogle(plan)
	require.NoError(t, err)
	req := out.(GoogleRequest)
	require.Len(t, req.Contents, 2)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "model", req.Contents[1].Role)
	require.NotNil(t, req.Contents[1].Parts[0].InlineData)
	assert.Equal(t, "image/png", req.Contents[1].Parts[0].InlineData.MimeType)
	assert.Equal(t, "Zm9v", req.Contents[1].Parts[0].InlineData.Data)
}

func TestMistralSanitizesToolCallIDs(t *testing.T) {
	a := prompt.NewBlock(prompt.RoleAssistant, "", prompt.SlotChatHistory)
	a.Metadata["tool_calls"] = []ToolCall{{ID: "call_abcdef123456", Name: "lookup"}}
	plan := &prompt.Plan{Blocks: []*prompt.Block{a}}

	out, err := ConvertMistral(plan)
	require.NoError(t, err)
	req := out.(MistralRequest)
	require.Len(t, req.Messages, 1)
	require.Len(t, req.Messages[0].ToolCalls, 1)
	assert.Len(t, req.Messages[0].ToolCalls[0].ID, 9)
	assert.NotEqual(t, "call_abcdef123456", req.Messages[0].ToolCalls[0].ID)
}

func TestTextCompletionPlainFormat(t *testing.T) {
	sys := prompt.NewBlock(prompt.RoleSystem, "be nice", prompt.SlotMainPrompt)
	u := prompt.NewBlock(prompt.RoleUser, "hi", prompt.SlotUserMessage)
	plan := &prompt.Plan{Blocks: []*prompt.Block{sys, u}}

	out, err := ConvertTextCompletion(plan)
	require.NoError(t, err)
	req := out.(TextCompletionRequest)
	assert.Contains(t, req.Prompt, "System: be nice\n")
	assert.Contains(t, req.Prompt, "User: hi\n")
}

func TestTextCompletionInstructFormat(t *testing.T) {
	u := prompt.NewBlock(prompt.RoleUser, "hi", prompt.SlotUserMessage)
	plan := &prompt.Plan{Blocks: []*prompt.Block{u}, Outlets: map[string]string{
		"instruct_input_sequence": "[INST]",
		"instruct_stop_sequence":  "[/INST]",
	}}
	out, err := ConvertTextCompletion(plan)
	require.NoError(t, err)
	req := out.(TextCompletionRequest)
	assert.Contains(t, req.Prompt, "[INST]hi")
	assert.Equal(t, []string{"[/INST]"}, req.StopSequences)
}

package dialect

import "github.com/tavernkit/core/pkg/prompt"

// OpenAIMessage is the wire shape of one chat.completions message.
type OpenAIMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Prefix     bool       `json:"prefix,omitempty"`
}

// OpenAIRequest is the converted payload for the OpenAI (and
// OpenAI-compatible) chat.completions dialect.
type OpenAIRequest struct {
	Messages []OpenAIMessage `json:"messages"`
}

// ConvertOpenAI implements the OpenAI converter: a flat message
// list, with an optional squash of consecutive system messages (a block
// whose slot is new_chat_prompt/new_example_chat, or which carries a name,
// breaks the squash so it remains addressable on its own).
func ConvertOpenAI(plan *prompt.Plan) (any, error) {
	msgs := toMessages(plan)
	out := make([]OpenAIMessage, 0, len(msgs))
	var prevSlot prompt.Slot
	for _, m := range msgs {
		next := OpenAIMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Prefix:     m.Prefix,
		}
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if prev.Role == "system" && next.Role == "system" &&
				next.Name == "" && prev.Name == "" &&
				m.Slot != prompt.SlotNewChatPrompt && m.Slot != prompt.SlotNewExampleChat &&
				prevSlot != prompt.SlotNewChatPrompt && prevSlot != prompt.SlotNewExampleChat {
				prev.Content += "\n" + next.Content
				continue
			}
		}
		out = append(out, next)
		prevSlot = m.Slot
	}
	if len(out) == 0 {
		p := placeholderMessage()
		out = append(out, OpenAIMessage{Role: p.Role, Content: p.Content})
	}
	return OpenAIRequest{Messages: out}, nil
}

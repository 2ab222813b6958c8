package dialect

import "github.com/tavernkit/core/pkg/prompt"

// AnthropicSystemBlock is one entry of the top-level `system` array.
type AnthropicSystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicContentBlock covers the text/tool_use/tool_result shapes this
// converter needs (the real Anthropic content-block union is larger; this
// module only ever emits text produced by the prompt pipeline plus tool
// bookkeeping threaded through Block.Metadata).
type AnthropicContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

// AnthropicMessage is one entry of the `messages` array.
type AnthropicMessage struct {
	Role    string                  `json:"role"`
	Content []AnthropicContentBlock `json:"content"`
}

// AnthropicRequest is the converted payload for the Anthropic Messages API
// dialect.
type AnthropicRequest struct {
	System   []AnthropicSystemBlock `json:"system,omitempty"`
	Messages []AnthropicMessage     `json:"messages"`
}

const zeroWidthPlaceholder = "​"

// ConvertAnthropic implements the Anthropic converter: leading
// system messages are pulled into the top-level `system` field, the
// remainder is folded to a strict user/assistant alternation (merging
// consecutive same-role turns), tool calls become `tool_use` blocks and
// tool-role turns become `tool_result` blocks nested under a user message,
// empty text is replaced by a zero-width placeholder, and an assistant
// prefill is appended last when the Plan carries one in its outlets (the
// `anthropic_prefill` outlet, a caller-populated convention since a prefill
// is a request-time option rather than Plan content).
func ConvertAnthropic(plan *prompt.Plan) (any, error) {
	msgs := toMessages(plan)

	req := AnthropicRequest{}
	i := 0
	for ; i < len(msgs); i++ {
		if msgs[i].Role != "system" {
			break
		}
		req.System = append(req.System, AnthropicSystemBlock{Type: "text", Text: nonEmpty(msgs[i].Content)})
	}

	mapped := make([]AnthropicMessage, 0, len(msgs)-i)
	for ; i < len(msgs); i++ {
		m := msgs[i]
		role := m.Role
		var block AnthropicContentBlock
		switch {
		case role == "tool":
			role = "user"
			block = AnthropicContentBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: nonEmpty(m.Content)}
		case len(m.ToolCalls) > 0:
			call := m.ToolCalls[0]
			block = AnthropicContentBlock{Type: "tool_use", ID: call.ID, Name: call.Name, Input: call.Arguments}
		case role == "system":
			// Non-leading system content has no home in Anthropic's
			// alternation; fold it into the user turn.
			role = "user"
			block = AnthropicContentBlock{Type: "text", Text: nonEmpty(m.Content)}
		default:
			block = AnthropicContentBlock{Type: "text", Text: nonEmpty(m.Content)}
		}

		if n := len(mapped); n > 0 && mapped[n-1].Role == role {
			mapped[n-1].Content = append(mapped[n-1].Content, block)
			continue
		}
		mapped = append(mapped, AnthropicMessage{Role: role, Content: []AnthropicContentBlock{block}})
	}
	req.Messages = mapped

	if len(req.Messages) == 0 {
		req.Messages = append(req.Messages, AnthropicMessage{
			Role:    "user",
			Content: []AnthropicContentBlock{{Type: "text", Text: placeholderMessage().Content}},
		})
	}

	if prefill, ok := plan.Outlets["anthropic_prefill"]; ok && prefill != "" {
		req.Messages = append(req.Messages, AnthropicMessage{
			Role:    "assistant",
			Content: []AnthropicContentBlock{{Type: "text", Text: prefill}},
		})
	}

	return req, nil
}

func nonEmpty(s string) string {
	if s == "" {
		return zeroWidthPlaceholder
	}
	return s
}

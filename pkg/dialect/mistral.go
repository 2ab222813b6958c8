package dialect

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/tavernkit/core/pkg/prompt"
)

// MistralMessage is one entry of a MistralRequest.Messages list.
type MistralMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// MistralRequest is the converted payload for the Mistral chat dialect.
type MistralRequest struct {
	Messages []MistralMessage `json:"messages"`
}

// ConvertMistral implements the Mistral converter: tool call ids
// are sanitized to Mistral's required 9-character alphanumeric form via a
// hash digest prefix, example-dialog turns get `example_user`/
// `example_assistant` name prefixes, and a user message immediately
// following a tool result is folded back into the nearest earlier
// user-role message rather than left as its own turn.
func ConvertMistral(plan *prompt.Plan) (any, error) {
	msgs := toMessages(plan)
	out := make([]MistralMessage, 0, len(msgs))
	lastUserIdx := -1

	for _, m := range msgs {
		next := MistralMessage{Role: m.Role, Content: m.Content, Name: m.Name, ToolCallID: sanitizeToolID(m.ToolCallID)}
		for _, tc := range m.ToolCalls {
			next.ToolCalls = append(next.ToolCalls, ToolCall{ID: sanitizeToolID(tc.ID), Name: tc.Name, Arguments: tc.Arguments})
		}
		if m.Slot == prompt.SlotChatExamples {
			switch m.Role {
			case "user":
				next.Name = "example_user"
			case "assistant":
				next.Name = "example_assistant"
			}
		}

		if m.Role == "user" && len(out) > 0 && out[len(out)-1].Role == "tool" && lastUserIdx >= 0 {
			out[lastUserIdx].Content += "\n" + next.Content
			continue
		}

		out = append(out, next)
		if next.Role == "user" {
			lastUserIdx = len(out) - 1
		}
	}

	if len(out) == 0 {
		p := placeholderMessage()
		out = append(out, MistralMessage{Role: p.Role, Content: p.Content})
	}
	return MistralRequest{Messages: out}, nil
}

func sanitizeToolID(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:9]
}

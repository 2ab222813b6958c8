package dialect

import (
	"fmt"

	"github.com/tavernkit/core/pkg/prompt"
)

// XAIMessage is one entry of an XAIRequest.Messages list.
type XAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// XAIRequest is the converted payload for the xAI (Grok) chat dialect.
type XAIRequest struct {
	Messages []XAIMessage `json:"messages"`
}

// ConvertXAI implements the xAI converter: rather than the
// `name` field (unreliable across Grok API versions), a Block's name is
// selectively prepended as a "Name: " text prefix on user/assistant turns
// only — system turns and turns without a name are left untouched.
func ConvertXAI(plan *prompt.Plan) (any, error) {
	msgs := toMessages(plan)
	out := make([]XAIMessage, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if m.Name != "" && (m.Role == "user" || m.Role == "assistant") {
			content = fmt.Sprintf("%s: %s", m.Name, m.Content)
		}
		out = append(out, XAIMessage{Role: m.Role, Content: content})
	}
	if len(out) == 0 {
		p := placeholderMessage()
		out = append(out, XAIMessage{Role: p.Role, Content: p.Content})
	}
	return XAIRequest{Messages: out}, nil
}

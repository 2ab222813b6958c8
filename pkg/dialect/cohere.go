package dialect

import (
	"fmt"
	"strings"

	"github.com/tavernkit/core/pkg/prompt"
)

// CohereTurn is one entry of a CohereRequest.ChatHistory list.
type CohereTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// CohereRequest is the converted payload for the Cohere chat dialect.
type CohereRequest struct {
	ChatHistory []CohereTurn `json:"chat_history"`
}

var cohereRoleNames = map[string]string{
	"system":    "SYSTEM",
	"user":      "USER",
	"assistant": "CHATBOT",
	"tool":      "TOOL",
}

// ConvertCohere implements the Cohere converter: the Plan
// becomes a flat `chat_history`, and an assistant turn's tool calls are
// collapsed into a textual primer line rather than a structured field
// (Cohere's tool-use wire shape has no direct equivalent in this module's
// Block model, so the call is rendered the way a human-readable transcript
// would describe it).
func ConvertCohere(plan *prompt.Plan) (any, error) {
	msgs := toMessages(plan)
	history := make([]CohereTurn, 0, len(msgs))
	for _, m := range msgs {
		role := cohereRoleNames[m.Role]
		if role == "" {
			role = strings.ToUpper(m.Role)
		}
		content := m.Content
		if len(m.ToolCalls) > 0 {
			primers := make([]string, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				primers = append(primers, fmt.Sprintf("calling %s(%v)", tc.Name, tc.Arguments))
			}
			if content != "" {
				content += "\n"
			}
			content += strings.Join(primers, "\n")
		}
		history = append(history, CohereTurn{Role: role, Message: content})
	}

	if len(history) == 0 {
		p := placeholderMessage()
		history = append(history, CohereTurn{Role: cohereRoleNames[p.Role], Message: p.Content})
	}
	return CohereRequest{ChatHistory: history}, nil
}

package dialect

import "github.com/tavernkit/core/pkg/prompt"

// AI21Message is one entry of an AI21Request.Messages list.
type AI21Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AI21Request is the converted payload for the AI21 chat dialect.
type AI21Request struct {
	Messages []AI21Message `json:"messages"`
}

// ConvertAI21 implements the AI21 converter: leading system
// messages are squashed into a single system message, and the remainder
// merges consecutive same-role turns.
func ConvertAI21(plan *prompt.Plan) (any, error) {
	msgs := toMessages(plan)

	out := make([]AI21Message, 0, len(msgs))
	i := 0
	var leadingSystem string
	for ; i < len(msgs); i++ {
		if msgs[i].Role != "system" {
			break
		}
		if leadingSystem != "" {
			leadingSystem += "\n"
		}
		leadingSystem += msgs[i].Content
	}
	if leadingSystem != "" {
		out = append(out, AI21Message{Role: "system", Content: leadingSystem})
	}

	for ; i < len(msgs); i++ {
		m := msgs[i]
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n" + m.Content
			continue
		}
		out = append(out, AI21Message{Role: m.Role, Content: m.Content})
	}

	if len(out) == 0 {
		p := placeholderMessage()
		out = append(out, AI21Message{Role: p.Role, Content: p.Content})
	}
	return AI21Request{Messages: out}, nil
}

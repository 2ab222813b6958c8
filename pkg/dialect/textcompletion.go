package dialect

import (
	"strings"

	"github.com/tavernkit/core/pkg/prompt"
)

// TextCompletionRequest is the converted payload for providers that accept
// a single raw prompt string rather than a chat message array.
type TextCompletionRequest struct {
	Prompt        string   `json:"prompt"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

var textCompletionRoleLabel = map[string]string{
	"system":    "System",
	"user":      "User",
	"assistant": "Assistant",
	"tool":      "Tool",
}

// ConvertTextCompletion implements the text-completion
// converter: "<Role>: <content>\n" lines by default, or instruct-format
// wrapping when the Plan's outlets carry instruct sequence overrides (the
// `instruct_input_sequence`/`instruct_output_sequence`/
// `instruct_system_sequence`/`instruct_stop_sequence` outlet convention —
// instruct mode is a preset-level choice the caller threads through
// outlets rather than Plan content).
func ConvertTextCompletion(plan *prompt.Plan) (any, error) {
	msgs := toMessages(plan)
	if len(msgs) == 0 {
		msgs = []Message{placeholderMessage()}
	}

	inputSeq, hasInstruct := plan.Outlets["instruct_input_sequence"]
	outputSeq := plan.Outlets["instruct_output_sequence"]
	systemSeq := plan.Outlets["instruct_system_sequence"]
	stopSeq := plan.Outlets["instruct_stop_sequence"]

	var b strings.Builder
	for _, m := range msgs {
		if hasInstruct {
			seq := inputSeq
			switch m.Role {
			case "assistant":
				seq = outputSeq
			case "system":
				if systemSeq != "" {
					seq = systemSeq
				}
			}
			b.WriteString(seq)
			b.WriteString(m.Content)
			b.WriteString("\n")
			continue
		}
		label := textCompletionRoleLabel[m.Role]
		if label == "" {
			label = m.Role
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	req := TextCompletionRequest{Prompt: b.String()}
	if stopSeq != "" {
		req.StopSequences = []string{stopSeq}
	}
	return req, nil
}

// Package dialect converts an assembled prompt.Plan into the wire shape a
// specific provider expects (C9): a universal Message is built once, then
// a per-provider ConvertX function (ConvertOpenAI, ConvertAnthropic, ...)
// converts it into that provider's own request shape. This module stops at the wire payload — it never dials a model
// endpoint itself.
package dialect

import (
	"fmt"

	"github.com/tavernkit/core/pkg/prompt"
)

// Name identifies a supported wire dialect.
type Name string

const (
	OpenAI         Name = "openai"
	Anthropic      Name = "anthropic"
	Google         Name = "google"
	Mistral        Name = "mistral"
	AI21           Name = "ai21"
	Cohere         Name = "cohere"
	XAI            Name = "xai"
	TextCompletion Name = "text_completion"
	Raw            Name = "raw"
)

// Message is the universal intermediate shape produced from a Plan's
// enabled Blocks before a provider-specific converter runs. It carries a
// Block's routing metadata so converters can still see depth/order/slot
// when a rule depends on them, e.g. OpenAI's "squash consecutive system
// unless slot is new_chat_prompt/new_example_chat or named".
type Message struct {
	Role       string
	Content    string
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
	Prefix     bool

	Slot  prompt.Slot
	Depth int
	Order int
}

// ToolCall carries a tool invocation's id/name/arguments through from a
// Block's Metadata when a pipeline stage populated one.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Converter turns a Plan into a provider wire payload (an `any` because
// every dialect's request shape genuinely differs: AnthropicRequest,
// OpenAIRequest, and so on are each their own type).
type Converter func(plan *prompt.Plan) (any, error)

var registry = map[Name]Converter{
	OpenAI:         ConvertOpenAI,
	Anthropic:      ConvertAnthropic,
	Google:         ConvertGoogle,
	Mistral:        ConvertMistral,
	AI21:           ConvertAI21,
	Cohere:         ConvertCohere,
	XAI:            ConvertXAI,
	TextCompletion: ConvertTextCompletion,
	Raw:            ConvertRaw,
}

// Convert dispatches to the named dialect's converter.
func Convert(name Name, plan *prompt.Plan) (any, error) {
	conv, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("dialect: unknown dialect %q", name)
	}
	return conv(plan)
}

// toMessages runs the shared pre-processing ("Shared
// pre-processing merges consecutive in-chat blocks with equal (role,
// depth, order)") and maps the result to the universal Message shape.
func toMessages(plan *prompt.Plan) []Message {
	blocks := mergeConsecutive(plan.EnabledBlocks())
	out := make([]Message, 0, len(blocks))
	for _, b := range blocks {
		m := Message{
			Role:    string(b.Role),
			Content: b.Content,
			Slot:    b.Slot,
			Depth:   b.Depth,
			Order:   b.Order,
		}
		if name, ok := b.Metadata["name"].(string); ok {
			m.Name = name
		}
		if id, ok := b.Metadata["tool_call_id"].(string); ok {
			m.ToolCallID = id
		}
		if prefix, ok := b.Metadata["prefix"].(bool); ok {
			m.Prefix = prefix
		}
		if calls, ok := b.Metadata["tool_calls"].([]ToolCall); ok {
			m.ToolCalls = calls
		}
		out = append(out, m)
	}
	return out
}

// mergeConsecutive merges adjacent in-chat Blocks sharing (Role, Depth,
// Order) into one, joining Content with a newline. Blocks outside
// InsertionInChat are passed through unchanged since the merge key is
// only meaningful for threaded history/turn content.
func mergeConsecutive(blocks []*prompt.Block) []*prompt.Block {
	out := make([]*prompt.Block, 0, len(blocks))
	for _, b := range blocks {
		if n := len(out); n > 0 {
			prev := out[n-1]
			if b.InsertionPoint == prompt.InsertionInChat && prev.InsertionPoint == prompt.InsertionInChat &&
				prev.Role == b.Role && prev.Depth == b.Depth && prev.Order == b.Order {
				merged := prev.Clone()
				merged.Content = prev.Content + "\n" + b.Content
				out[n-1] = merged
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

// placeholderMessage is the required empty-conversation placeholder
// ("Empty message arrays always receive a single placeholder
// '...' user message").
func placeholderMessage() Message {
	return Message{Role: "user", Content: "..."}
}

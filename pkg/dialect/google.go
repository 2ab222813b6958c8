package dialect

import (
	"strings"

	"github.com/tavernkit/core/pkg/prompt"
)

// GoogleFunctionCall mirrors Gemini's `functionCall` part.
type GoogleFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// GoogleFunctionResponse mirrors Gemini's `functionResponse` part.
type GoogleFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// GoogleInlineData mirrors Gemini's `inlineData` part (a decoded data: URL).
type GoogleInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GooglePart is one entry of a GoogleContent.Parts list.
type GooglePart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *GoogleFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *GoogleFunctionResponse `json:"functionResponse,omitempty"`
	InlineData       *GoogleInlineData       `json:"inlineData,omitempty"`
	ThoughtSignature string                  `json:"thoughtSignature,omitempty"`
}

// GoogleContent is one turn of a GoogleRequest.Contents list.
type GoogleContent struct {
	Role  string       `json:"role"`
	Parts []GooglePart `json:"parts"`
}

// GoogleRequest is the converted payload for the Gemini generateContent
// dialect.
type GoogleRequest struct {
	Contents []GoogleContent `json:"contents"`
}

// ConvertGoogle implements the Gemini converter: system→user,
// assistant→model role remapping, consecutive-same-role merging, tool
// calls/results become functionCall/functionResponse parts, data: URLs
// become inlineData parts, and gemini-3* models get a thoughtSignature
// marker on model turns (the model name is read from the Plan's
// `model` outlet, a caller-populated convention, since the model is a
// request-time parameter rather than Plan content).
func ConvertGoogle(plan *prompt.Plan) (any, error) {
	model := plan.Outlets["model"]
	msgs := toMessages(plan)

	contents := make([]GoogleContent, 0, len(msgs))
	for _, m := range msgs {
		role := googleRole(m.Role)
		var part GooglePart
		switch {
		case m.Role == "tool":
			part = GooglePart{FunctionResponse: &GoogleFunctionResponse{Name: m.Name, Response: map[string]any{"content": m.Content}}}
		case len(m.ToolCalls) > 0:
			call := m.ToolCalls[0]
			part = GooglePart{FunctionCall: &GoogleFunctionCall{Name: call.Name, Args: call.Arguments}}
		case strings.HasPrefix(m.Content, "data:"):
			part = googleInlineDataPart(m.Content)
		default:
			part = GooglePart{Text: m.Content}
		}
		if role == "model" && strings.HasPrefix(model, "gemini-3") {
			part.ThoughtSignature = "thought-signature-placeholder"
		}

		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			continue
		}
		contents = append(contents, GoogleContent{Role: role, Parts: []GooglePart{part}})
	}

	if len(contents) == 0 {
		contents = append(contents, GoogleContent{Role: "user", Parts: []GooglePart{{Text: placeholderMessage().Content}}})
	}

	return GoogleRequest{Contents: contents}, nil
}

func googleRole(role string) string {
	switch role {
	case "system":
		return "user"
	case "assistant":
		return "model"
	default:
		return role
	}
}

// googleInlineDataPart parses a "data:<mime>;base64,<data>" URL into an
// inlineData part, falling back to a text part if it is malformed.
func googleInlineDataPart(dataURL string) GooglePart {
	rest := strings.TrimPrefix(dataURL, "data:")
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return GooglePart{Text: dataURL}
	}
	mimeType, _, _ := strings.Cut(meta, ";")
	return GooglePart{InlineData: &GoogleInlineData{MimeType: mimeType, Data: data}}
}

package dialect

import "github.com/tavernkit/core/pkg/prompt"

// RawRequest is the supplemented debug dialect's payload: the merged
// Message list with no provider-specific reshaping applied, useful for
// inspecting what the pipeline produced before any wire-format rules run.
type RawRequest struct {
	Messages []Message `json:"messages"`
}

// ConvertRaw implements the debug dialect (an added
// features): shared merge pre-processing only, no provider-specific
// transform.
func ConvertRaw(plan *prompt.Plan) (any, error) {
	msgs := toMessages(plan)
	if len(msgs) == 0 {
		msgs = []Message{placeholderMessage()}
	}
	return RawRequest{Messages: msgs}, nil
}

// Package tokencount estimates the token count of a string. It is pluggable:
// callers can supply any Estimator, and the pipeline never assumes a
// specific tokenizer model ("the token estimator's internal
// model" is explicitly out of scope — we depend on tiktoken-go's behavior
// rather than reimplement BPE).
package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator estimates the number of tokens a string would consume.
type Estimator interface {
	Estimate(s string) int
}

// Func adapts a plain function to the Estimator interface.
type Func func(s string) int

// Estimate implements Estimator.
func (f Func) Estimate(s string) int { return f(s) }

// WhitespaceHeuristic is a cheap, model-agnostic fallback: ~4 chars/token,
// floored at one token per non-empty string. Used when no encoding is
// available for a model, and by tests that want a network-free estimate
// and do not need vocabulary-accurate token counts.
var WhitespaceHeuristic Estimator = Func(func(s string) int {
	if s == "" {
		return 0
	}
	words := len(strings.Fields(s))
	chars := len(s)
	estimate := (chars + 3) / 4
	if words > estimate {
		estimate = words
	}
	if estimate < 1 {
		estimate = 1
	}
	return estimate
})

// tiktokenEstimator wraps a cached *tiktoken.Tiktoken encoding.
type tiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenEstimator) Estimate(s string) int {
	if s == "" {
		return 0
	}
	return len(t.enc.Encode(s, nil, nil))
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]Estimator)
)

// ForModel returns a cached Estimator backed by tiktoken-go's encoding for
// the given model name, falling back to cl100k_base and finally to the
// WhitespaceHeuristic if no encoding can be resolved.
func ForModel(model string) Estimator {
	cacheMu.RLock()
	if e, ok := cache[model]; ok {
		cacheMu.RUnlock()
		return e
	}
	cacheMu.RUnlock()

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}

	var estimator Estimator
	if err != nil {
		estimator = WhitespaceHeuristic
	} else {
		estimator = &tiktokenEstimator{enc: enc}
	}

	cacheMu.Lock()
	cache[model] = estimator
	cacheMu.Unlock()
	return estimator
}

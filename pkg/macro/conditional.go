package macro

import "strings"

// expandConditionals handles the v2 {{if cond}}...{{/if}} and
// {{if cond}}...{{else}}...{{/if}} grammar:
// cond is either a bare identifier (truthy = its resolved value is
// non-empty and not the literal "false") or "identifier::value" which
// additionally requires the resolved value to equal the given literal.
// Unterminated or mismatched blocks produce a Warning and are left
// untouched so a malformed conditional never silently eats prompt text.
func (eng *Engine) expandConditionals(text string, env *Env) (string, []Warning) {
	var warnings []Warning
	var b strings.Builder
	i := 0
	for i < len(text) {
		openIdx := strings.Index(text[i:], "{{if ")
		if openIdx == -1 {
			b.WriteString(text[i:])
			break
		}
		openIdx += i
		b.WriteString(text[i:openIdx])

		headerEnd := strings.Index(text[openIdx:], "}}")
		if headerEnd == -1 {
			warnings = append(warnings, Warning{Message: "unterminated {{if}} header"})
			b.WriteString(text[openIdx:])
			break
		}
		headerEnd += openIdx
		cond := strings.TrimSpace(text[openIdx+len("{{if ") : headerEnd])

		closeIdx, bodyEnd, elseIdx := findIfClose(text, headerEnd+2)
		if closeIdx == -1 {
			warnings = append(warnings, Warning{Message: "unterminated {{if}} block"})
			b.WriteString(text[openIdx : headerEnd+2])
			i = headerEnd + 2
			continue
		}

		var thenBody, elseBody string
		if elseIdx != -1 {
			thenBody = text[headerEnd+2 : elseIdx]
			elseBody = text[elseIdx+len("{{else}}") : bodyEnd]
		} else {
			thenBody = text[headerEnd+2 : bodyEnd]
		}

		if evalCondition(cond, env) {
			b.WriteString(thenBody)
		} else {
			b.WriteString(elseBody)
		}
		i = closeIdx + len("{{/if}}")
	}
	return b.String(), warnings
}

// findIfClose scans forward from start for the matching {{/if}}, honoring
// nested {{if ...}} blocks, and reports the first top-level {{else}} found
// (or -1). Returns closeIdx = index of the "{{/if}}" token, bodyEnd = index
// where the rendered body ends (== closeIdx), elseIdx = index of "{{else}}"
// or -1.
func findIfClose(text string, start int) (closeIdx, bodyEnd, elseIdx int) {
	depth := 0
	elseIdx = -1
	i := start
	for i < len(text) {
		ifPos := indexFrom(text, "{{if ", i)
		elsePos := indexFrom(text, "{{else}}", i)
		closePos := indexFrom(text, "{{/if}}", i)
		if closePos == -1 {
			return -1, -1, -1
		}
		switch firstOf(ifPos, elsePos, closePos) {
		case ifPos:
			depth++
			i = ifPos + len("{{if ")
		case elsePos:
			if depth == 0 && elseIdx == -1 {
				elseIdx = elsePos
			}
			i = elsePos + len("{{else}}")
		default: // closePos
			if depth == 0 {
				return closePos, closePos, elseIdx
			}
			depth--
			i = closePos + len("{{/if}}")
		}
	}
	return -1, -1, -1
}

func indexFrom(text, sub string, from int) int {
	idx := strings.Index(text[from:], sub)
	if idx == -1 {
		return -1
	}
	return idx + from
}

// firstOf returns whichever of a, b, c is smallest and non-negative (-1
// values are treated as "not found" and excluded).
func firstOf(a, b, c int) int {
	best := -1
	for _, v := range []int{a, b, c} {
		if v == -1 {
			continue
		}
		if best == -1 || v < best {
			best = v
		}
	}
	return best
}

// EvalCondition exposes the v2 conditional truthy/equality grammar for
// callers that need to gate non-macro content (e.g. a PromptEntry's
// condition field) on the same rules {{if cond}} uses.
func EvalCondition(cond string, env *Env) bool {
	return evalCondition(cond, env)
}

func evalCondition(cond string, env *Env) bool {
	if name, want, ok := strings.Cut(cond, "::"); ok {
		got, _ := env.lookup(name)
		return got == want
	}
	got, found := env.lookup(cond)
	if !found {
		return false
	}
	return got != "" && strings.ToLower(got) != "false"
}

package pipeline

import "strings"

// maxMacroAuditPasses bounds the MacroExpansion audit pass's re-expansion
// loop ("bounded recursive expansion").
const maxMacroAuditPasses = 3

// stageMacroExpansion is the audit pass stage 7 names. Earlier
// stages already expand the text they themselves build, but content pulled
// in verbatim from lore entries or PromptEntry bodies can itself contain
// macro syntax that only becomes literal text after a first expansion
// round, so this stage re-expands every compiled Block to a bounded
// fixpoint.
func stageMacroExpansion(ctx *Context) error {
	for _, b := range ctx.compiled {
		content := b.Content
		for pass := 0; pass < maxMacroAuditPasses; pass++ {
			if !containsMacroSyntax(content) {
				break
			}
			out, warns := ctx.Engine.Expand(content, ctx.Env)
			for _, w := range warns {
				ctx.warn(w.Message)
			}
			if out == content {
				break
			}
			content = out
		}
		b.Content = content
	}
	return nil
}

func containsMacroSyntax(s string) bool {
	return strings.Contains(s, "{{") && strings.Contains(s, "}}")
}

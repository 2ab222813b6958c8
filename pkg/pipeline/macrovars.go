package pipeline

import (
	"strconv"
	"strings"

	"github.com/tavernkit/core/pkg/macro"
)

// engineForContext returns the v2 engine with outlets gated on whether Lore
// has run yet ("{{outlet.KEY}} ... when true it reads from
// the Plan's outlet map").
func engineForContext(ctx *Context) *macro.Engine {
	rng := ctx.Input.Rand
	return macro.New(macro.V2).WithOutlets(ctx.LoreResult != nil).WithRand(rng)
}

// buildMacroEnv populates the guaranteed identifiers lists,
// pre-expanding character fields with {{char}}/{{user}} before exposing
// them as variables themselves ("Character fields are
// pre-expanded with {{char}} and {{user}} before being exposed as
// variables").
func buildMacroEnv(ctx *Context, engine *macro.Engine) *macro.Env {
	env := macro.NewEnv()
	env.SetOutlets(ctx.Outlets)

	charName, userName := "", ""
	if c := ctx.Input.Character; c != nil {
		charName = c.Name
	}
	if p := ctx.Input.Persona; p != nil {
		userName = p.Name
	}
	env.SetString("char", charName)
	env.SetString("user", userName)

	pre := func(s string) string {
		out, warns := engine.Expand(s, env)
		for _, w := range warns {
			ctx.warn(w.Message)
		}
		return out
	}

	var description, scenario, personality, charPrompt, charInstruction, mesExample, charVersion, creatorNotes, charDepthPrompt string
	if c := ctx.Input.Character; c != nil {
		description = pre(c.Description)
		scenario = pre(c.Scenario)
		personality = pre(c.Personality)
		charPrompt = pre(c.SystemPrompt)
		charInstruction = pre(c.PostHistoryInstructions)
		mesExample = pre(c.MesExample)
		charVersion = c.CharacterVersion
		creatorNotes = c.CreatorNotes
		if c.DepthPrompt != nil {
			charDepthPrompt = pre(c.DepthPrompt.Prompt)
		}
	}
	env.SetString("description", description)
	env.SetString("scenario", scenario)
	env.SetString("personality", personality)
	env.SetString("charprompt", charPrompt)
	env.SetString("charinstruction", charInstruction)
	// No distinct jailbreak-override field exists on Character; charjailbreak
	// aliases charprompt, matching the common convention that an explicit
	// system_prompt override doubles as the jailbreak override when no
	// separate one is configured.
	env.SetString("charjailbreak", charPrompt)
	env.SetString("mesexamplesraw", mesExample)
	env.SetString("mesexamples", mesExample)
	env.SetString("charversion", charVersion)
	env.SetString("creatornotes", creatorNotes)
	env.SetString("chardepthprompt", charDepthPrompt)

	personaDesc := ""
	if p := ctx.Input.Persona; p != nil {
		personaDesc = pre(p.Description)
	}
	env.SetString("persona", personaDesc)

	group := strings.Join(ctx.Input.GroupMembers, ", ")
	env.SetString("group", group)
	// groupnotmuted assumes GroupMembers was already filtered to unmuted
	// participants by the caller (Group.muted per ); the pipeline
	// has no independent mute-list input.
	env.SetString("groupnotmuted", group)
	if ctx.Input.IsGroup {
		env.SetString("charifnotgroup", "")
	} else {
		env.SetString("charifnotgroup", charName)
	}
	env.SetString("notchar", userName)

	env.SetString("input", pre(ctx.Input.UserMessage))
	lastChat := ""
	if n := len(ctx.Input.History); n > 0 {
		lastChat = ctx.Input.History[n-1].Content
	}
	env.SetString("lastchatmessage", lastChat)

	maxPrompt := 0
	if p := ctx.Input.Preset; p != nil {
		maxPrompt = p.MaxInputTokens
	}
	env.SetString("maxprompt", strconv.Itoa(maxPrompt))
	env.SetString("lastgenerationtype", ctx.Input.GenerationType)
	env.SetString("ismobile", "false")

	return env
}

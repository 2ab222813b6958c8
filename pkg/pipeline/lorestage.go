package pipeline

import "github.com/tavernkit/core/pkg/lore"

// loreScanWindow bounds how many trailing history messages join the scan
// buffer alongside the current user message (index 0 = most recent).
const loreScanWindow = 10

// stageLore runs the World Info / Lore Engine over the trailing chat and
// builds the v2 macro Engine/Env pair every later stage reuses: outlets
// read from the Plan's outlet map require Lore to run before any macro
// expansion.
func stageLore(ctx *Context) error {
	preset := ctx.Input.Preset
	char := ctx.Input.Character

	books := make([]*lore.Book, 0, len(ctx.Input.LoreBooks)+1)
	books = append(books, ctx.Input.LoreBooks...)
	if char != nil && char.Book != nil {
		books = append(books, char.Book)
	}

	scanBuffer := make([]string, 0, loreScanWindow+1)
	scanBuffer = append(scanBuffer, ctx.Input.UserMessage)
	history := ctx.Input.History
	for i := len(history) - 1; i >= 0 && len(scanBuffer) < loreScanWindow+1; i-- {
		if history[i].ExcludedFromPrompt {
			continue
		}
		scanBuffer = append(scanBuffer, history[i].Content)
	}

	scanCtx := lore.ScanContext{Fields: make(map[string]string)}
	if char != nil {
		scanCtx.CharacterName = char.Name
		scanCtx.Fields["description"] = char.Description
		scanCtx.Fields["personality"] = char.Personality
		scanCtx.Fields["scenario"] = char.Scenario
	}

	result := lore.Evaluate(lore.Options{
		Books:                          books,
		ScanMessages:                   scanBuffer,
		ScanContext:                    scanCtx,
		GenerationType:                 ctx.Input.GenerationType,
		TokenBudget:                    preset.WorldInfoBudget,
		MinActivations:                 preset.WorldInfoMinActivations,
		MinActivationsDepthMax:         preset.WorldInfoMinActivationsDepthMax,
		UseGroupScoring:                preset.WorldInfoUseGroupScoring,
		CharacterLoreInsertionStrategy: preset.CharacterLoreInsertionStrategy,
		Estimator:                      ctx.Input.Estimator,
		Vars:                           ctx.Input.Vars,
		Rand:                           ctx.Input.Rand,
		IncludeNames:                   preset.WorldInfoIncludeNames,
		CurrentTurn:                    ctx.Input.CurrentTurn,
	})

	ctx.LoreResult = result
	ctx.Outlets = result.Outlets
	for _, w := range result.Warnings {
		ctx.warn(w)
	}

	ctx.Engine = engineForContext(ctx)
	ctx.Env = buildMacroEnv(ctx, ctx.Engine)
	return nil
}

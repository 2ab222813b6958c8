package pipeline

import (
	"fmt"

	"github.com/tavernkit/core/pkg/prompt"
)

// Build runs the nine-stage middleware chain over input and
// returns the assembled, trimmed Plan. In Strict mode the first Warning
// recorded by any stage aborts the build instead of being carried onto the
// Plan, matching how a misconfigured preset should fail loudly in
// development rather than silently degrade in production.
func Build(input BuildInput) (*prompt.Plan, error) {
	ctx := newContext(input)

	stages := []struct {
		name string
		fn   func(*Context) error
	}{
		{"hooks", stageHooks},
		{"lore", stageLore},
		{"entries", stageEntries},
		{"pinned_groups", stagePinnedGroups},
		{"injection", stageInjection},
		{"compilation", stageCompilation},
		{"macro_expansion", stageMacroExpansion},
		{"plan_assembly", stagePlanAssembly},
		{"trimming", stageTrimming},
	}

	for _, stage := range stages {
		if err := stage.fn(ctx); err != nil {
			return nil, fmt.Errorf("pipeline: stage %s: %w", stage.name, err)
		}
		if ctx.Strict && len(ctx.Warnings) > 0 {
			return nil, fmt.Errorf("pipeline: stage %s: %s", stage.name, ctx.Warnings[0])
		}
	}

	if input.Hooks != nil && input.Hooks.AfterBuild != nil {
		input.Hooks.AfterBuild(ctx.Plan)
	}

	return ctx.Plan, nil
}
